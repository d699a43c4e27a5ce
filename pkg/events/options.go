package events

import "time"

// EmitOption overrides event defaults at emission time.
type EmitOption func(*emitOptions)

type emitOptions struct {
	priority Priority
	channels []Channel
	metadata Metadata
}

// WithPriority overrides the default priority. Invalid values are ignored.
func WithPriority(p Priority) EmitOption {
	return func(o *emitOptions) { o.priority = p }
}

// WithChannels overrides the default requested channels. Unknown channels are dropped.
func WithChannels(channels ...Channel) EmitOption {
	return func(o *emitOptions) {
		o.channels = o.channels[:0]
		for _, c := range channels {
			if c.Valid() {
				o.channels = append(o.channels, c)
			}
		}
	}
}

// WithMetadata replaces the event metadata.
func WithMetadata(m Metadata) EmitOption {
	return func(o *emitOptions) { o.metadata = m }
}

// WithSource sets Metadata.Source.
func WithSource(source string) EmitOption {
	return func(o *emitOptions) { o.metadata.Source = source }
}

// WithExpiresAt sets Metadata.ExpiresAt.
func WithExpiresAt(t time.Time) EmitOption {
	return func(o *emitOptions) { o.metadata.ExpiresAt = &t }
}

// WithRetryable sets Metadata.Retryable.
func WithRetryable(retryable bool) EmitOption {
	return func(o *emitOptions) { o.metadata.Retryable = retryable }
}

// WithIdempotencyKey sets Metadata.IdempotencyKey.
func WithIdempotencyKey(key string) EmitOption {
	return func(o *emitOptions) { o.metadata.IdempotencyKey = key }
}
