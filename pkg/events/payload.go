package events

import (
	"fmt"
	"strconv"
	"time"
)

// Payload is the event-specific data. Keys are snake_case by convention
// (user_id, subscription_id, tier, end_date, ...).
type Payload map[string]any

// Common payload keys.
const (
	KeyUserID         = "user_id"
	KeySubscriptionID = "subscription_id"
	KeyTier           = "tier"
	KeyEndDate        = "end_date"
	KeyDaysLeft       = "days_left"
	KeyInsightID      = "insight_id"
	KeyTitle          = "title"
	KeyCategory       = "category"
	KeyActorName      = "actor_name"
	KeyRequestID      = "request_id"
	KeyMessage        = "message"
	KeyItems          = "items"
	KeyURL            = "url"
	KeyImageURL       = "image_url"
)

// String returns the value under key formatted as a string, or "".
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the value under key as an int. Strings are parsed.
func (p Payload) Int(key string) (int, bool) {
	switch t := p[key].(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	}
	return 0, false
}

// Time returns the value under key as a time. RFC 3339 strings are parsed.
func (p Payload) Time(key string) (time.Time, bool) {
	switch t := p[key].(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

// Bool returns the value under key as a bool.
func (p Payload) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// UserID is shorthand for String(KeyUserID).
func (p Payload) UserID() string {
	return p.String(KeyUserID)
}

// Clone returns a shallow copy so listeners can't mutate each other's view.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
