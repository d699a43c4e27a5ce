package events

import "errors"

var (
	ErrMailboxFull    = errors.New("events: async listener mailbox is full")
	ErrListenerClosed = errors.New("events: async listener is closed")
	ErrListenerPanic  = errors.New("events: listener panicked")
)
