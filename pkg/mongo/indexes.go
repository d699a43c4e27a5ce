package mongo

import (
	"context"
	"errors"
)

// Indexer is implemented by the MongoDB-backed stores.
type Indexer interface {
	EnsureIndexes(ctx context.Context) error
}

// EnsureIndexes creates the indexes of every store. All stores are tried;
// failures are joined.
func EnsureIndexes(ctx context.Context, stores ...Indexer) error {
	var errs []error
	for _, s := range stores {
		if s == nil {
			continue
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(ErrEnsureIndexes, errors.Join(errs...))
	}
	return nil
}
