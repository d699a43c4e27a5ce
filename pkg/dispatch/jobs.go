package dispatch

import (
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// JobPrefix prefixes the names of channel delivery jobs.
const JobPrefix = "deliver."

// DeliveryPayload is the payload of every deliver.<channel> job.
type DeliveryPayload struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
}

// JobName returns the delivery job name of ch, e.g. "deliver.email".
func JobName(ch events.Channel) string {
	return JobPrefix + string(ch)
}

// ChannelFromJob is the inverse of JobName.
func ChannelFromJob(name string) (events.Channel, bool) {
	rest, ok := strings.CutPrefix(name, JobPrefix)
	if !ok {
		return "", false
	}
	ch := events.Channel(rest)
	return ch, ch.Valid()
}

// JobPriority maps event priority onto the queue's 0-10 scale.
func JobPriority(p events.Priority) queue.Priority {
	switch p {
	case events.PriorityCritical:
		return queue.PriorityCritical
	case events.PriorityHigh:
		return queue.PriorityHigh
	case events.PriorityLow:
		return queue.PriorityLow
	default:
		return queue.PriorityMedium
	}
}
