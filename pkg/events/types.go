package events

import (
	"slices"
	"time"
)

// Type identifies a domain event.
type Type string

const (
	SubscriptionGranted         Type = "subscription:granted"
	SubscriptionRenewed         Type = "subscription:renewed"
	SubscriptionCancelled       Type = "subscription:cancelled"
	SubscriptionExpiringSoon    Type = "subscription:expiring-soon"
	SubscriptionExpiringToday   Type = "subscription:expiring-today"
	SubscriptionExpired         Type = "subscription:expired"
	SubscriptionExpiredReminder Type = "subscription:expired-reminder"
	SubscriptionPaymentFailed   Type = "subscription:payment-failed"

	InsightPublished        Type = "insight:published"
	InsightPremiumPublished Type = "insight:premium-published"

	InsightRequestSubmitted Type = "insight-request:submitted"
	InsightRequestAnswered  Type = "insight-request:answered"

	EngagementComment Type = "engagement:comment"
	EngagementLike    Type = "engagement:like"
	EngagementFollow  Type = "engagement:follow"

	PremiumAccessGranted Type = "premium:access-granted"
	PremiumAccessRevoked Type = "premium:access-revoked"

	DigestWeekly Type = "digest:weekly"

	SystemAnnouncement Type = "system:announcement"
	SystemMaintenance  Type = "system:maintenance"
)

// Priority is the urgency of an event.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Channel is a delivery mechanism.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelPush    Channel = "push"
	ChannelSMS     Channel = "sms"
	ChannelInApp   Channel = "inApp"
	ChannelWebhook Channel = "webhook"
)

// AllChannels lists every channel in a stable order.
func AllChannels() []Channel {
	return []Channel{ChannelEmail, ChannelPush, ChannelSMS, ChannelInApp, ChannelWebhook}
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	return slices.Contains(AllChannels(), c)
}

// Metadata carries producer-side information about an event.
type Metadata struct {
	Source    string     `json:"source,omitempty"`
	Retryable bool       `json:"retryable"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// IdempotencyKey, when set, makes dispatch skip recipients that already
	// have a notification with the same key.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Event is a transient domain event. It is never persisted by the bus.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Priority  Priority  `json:"priority"`
	Channels  []Channel `json:"channels"`
	Payload   Payload   `json:"payload,omitempty"`
	Metadata  Metadata  `json:"metadata"`
}

// Expired reports whether the event's ExpiresAt is before now.
func (e Event) Expired(now time.Time) bool {
	return e.Metadata.ExpiresAt != nil && e.Metadata.ExpiresAt.Before(now)
}
