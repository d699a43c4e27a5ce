package environment

import "errors"

var ErrUnknownEnvironment = errors.New("unknown environment")
