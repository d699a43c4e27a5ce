package directory

import "errors"

var (
	ErrUserNotFound = errors.New("directory: user not found")
	ErrEmptyUserID  = errors.New("directory: empty user id")
	ErrLookupFailed = errors.New("directory: lookup failed")
)
