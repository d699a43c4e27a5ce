package sms

import "errors"

var (
	ErrInvalidConfig      = errors.New("sms: invalid config")
	ErrFailedToLoadConfig = errors.New("sms: failed to load aws config")
	ErrInvalidPhone       = errors.New("sms: phone number must be in E.164 format")
	ErrEmptyMessage       = errors.New("sms: message is empty")
	ErrFailedToSend       = errors.New("sms: failed to send message")
)
