package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifykit/pkg/queue"
)

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 30 * time.Second},
		{attempt: 1, want: 30 * time.Second},
		{attempt: 2, want: time.Minute},
		{attempt: 3, want: 2 * time.Minute},
		{attempt: 5, want: 8 * time.Minute},
		{attempt: 7, want: 32 * time.Minute},
		{attempt: 8, want: time.Hour},
		{attempt: 50, want: time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, queue.ExponentialBackoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	assert.Nil(t, queue.Permanent(nil))
	assert.False(t, queue.IsPermanent(assert.AnError))

	err := queue.Permanent(assert.AnError)
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, assert.AnError)
}
