package mongo

import "errors"

var (
	ErrConnect           = errors.New("mongo: failed to connect")
	ErrHealthcheckFailed = errors.New("mongo: primary did not answer ping")
	ErrEmptyDatabase     = errors.New("mongo: empty database name")
	ErrEnsureIndexes     = errors.New("mongo: failed to ensure indexes")
)
