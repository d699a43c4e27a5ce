package httpserver

import "errors"

var (
	ErrAlreadyRunning = errors.New("httpserver: server is already running")
	ErrClosed         = errors.New("httpserver: server was shut down")
	ErrListen         = errors.New("httpserver: failed to listen")
	ErrServe          = errors.New("httpserver: server stopped unexpectedly")
	ErrShutdown       = errors.New("httpserver: graceful shutdown failed")
)
