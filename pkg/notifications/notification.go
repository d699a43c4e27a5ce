package notifications

import (
	"maps"
	"slices"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

// ChannelStatus is the delivery state of one channel of a notification.
type ChannelStatus string

const (
	StatusPending ChannelStatus = "pending"
	StatusSent    ChannelStatus = "sent"
	StatusFailed  ChannelStatus = "failed"
	StatusUnread  ChannelStatus = "unread"
	StatusRead    ChannelStatus = "read"
)

// Delivered reports whether the channel reached the user.
func (s ChannelStatus) Delivered() bool {
	return s == StatusSent || s == StatusUnread || s == StatusRead
}

// OverallStatus is the aggregate state of a notification.
type OverallStatus string

const (
	OverallPending OverallStatus = "pending"
	OverallPartial OverallStatus = "partial"
	OverallSent    OverallStatus = "sent"
	OverallFailed  OverallStatus = "failed"
	OverallExpired OverallStatus = "expired"
)

// ChannelState is the per-channel part of a notification.
type ChannelState struct {
	Enabled   bool          `bson:"enabled" json:"enabled"`
	Status    ChannelStatus `bson:"status" json:"status"`
	Error     string        `bson:"error,omitempty" json:"error,omitempty"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updated_at"`
}

// Rich is the call-to-action part of a notification.
type Rich struct {
	ActionURL  string `bson:"action_url,omitempty" json:"action_url,omitempty"`
	ActionText string `bson:"action_text,omitempty" json:"action_text,omitempty"`
	ImageURL   string `bson:"image_url,omitempty" json:"image_url,omitempty"`
}

// Metadata links a notification to the event that produced it.
type Metadata struct {
	EventID        string         `bson:"event_id,omitempty" json:"event_id,omitempty"`
	Source         string         `bson:"source,omitempty" json:"source,omitempty"`
	IdempotencyKey string         `bson:"idempotency_key,omitempty" json:"idempotency_key,omitempty"`
	ExpiresAt      *time.Time     `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	Payload        map[string]any `bson:"payload,omitempty" json:"payload,omitempty"`
}

// Notification is one record per (event, recipient).
type Notification struct {
	ID            string                          `bson:"_id" json:"id"`
	UserID        string                          `bson:"user_id" json:"user_id"`
	Type          events.Type                     `bson:"type" json:"type"`
	Priority      events.Priority                 `bson:"priority" json:"priority"`
	Title         string                          `bson:"title" json:"title"`
	Body          string                          `bson:"body" json:"body"`
	Rich          Rich                            `bson:"rich" json:"rich"`
	Channels      map[events.Channel]ChannelState `bson:"channels" json:"channels"`
	OverallStatus OverallStatus                   `bson:"overall_status" json:"overall_status"`
	Metadata      Metadata                        `bson:"metadata" json:"metadata"`
	ReadAt        *time.Time                      `bson:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt     time.Time                       `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time                       `bson:"updated_at" json:"updated_at"`
}

// EnabledChannels returns the enabled channels in stable order.
func (n Notification) EnabledChannels() []events.Channel {
	var out []events.Channel
	for _, ch := range events.AllChannels() {
		if st, ok := n.Channels[ch]; ok && st.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

// IsUnread reports whether the in-app copy has not been read.
func (n Notification) IsUnread() bool {
	st, ok := n.Channels[events.ChannelInApp]
	return ok && st.Enabled && st.Status == StatusUnread
}

// IsExpired reports whether ExpiresAt has passed.
func (n Notification) IsExpired(now time.Time) bool {
	return n.Metadata.ExpiresAt != nil && n.Metadata.ExpiresAt.Before(now)
}

// Clone returns a copy that shares no maps with n.
func (n Notification) Clone() Notification {
	n.Channels = maps.Clone(n.Channels)
	n.Metadata.Payload = maps.Clone(n.Metadata.Payload)
	return n
}

// DeriveOverallStatus aggregates the statuses of enabled channels: all
// delivered is sent, all failed is failed, all pending is pending, any other
// mix is partial. Disabled channels are ignored.
func DeriveOverallStatus(channels map[events.Channel]ChannelState) OverallStatus {
	var total, delivered, failed, pending int
	for _, st := range channels {
		if !st.Enabled {
			continue
		}
		total++
		switch {
		case st.Status.Delivered():
			delivered++
		case st.Status == StatusFailed:
			failed++
		default:
			pending++
		}
	}

	switch {
	case total == 0 || pending == total:
		return OverallPending
	case delivered == total:
		return OverallSent
	case failed == total:
		return OverallFailed
	}
	return OverallPartial
}

// NewChannels builds the channel map of a new record. Every requested
// channel is present; enabled ones start pending, except in-app which is
// delivered on creation and starts unread.
func NewChannels(requested, enabled []events.Channel, now time.Time) map[events.Channel]ChannelState {
	out := make(map[events.Channel]ChannelState, len(requested))
	for _, ch := range requested {
		st := ChannelState{Status: StatusPending, UpdatedAt: now}
		if slices.Contains(enabled, ch) {
			st.Enabled = true
			if ch == events.ChannelInApp {
				st.Status = StatusUnread
			}
		}
		out[ch] = st
	}
	return out
}
