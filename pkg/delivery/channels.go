package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/directory"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/push"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/sms"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

func (d *Deliverer) sendEmail(ctx context.Context, n *notifications.Notification, u directory.User) error {
	if u.Email == "" {
		return fmt.Errorf("%w: email", ErrNoAddress)
	}

	html, text, err := email.Compose(email.Message{
		Title:      n.Title,
		Body:       n.Body,
		ActionURL:  n.Rich.ActionURL,
		ActionText: n.Rich.ActionText,
		ImageURL:   n.Rich.ImageURL,
		Footer:     d.cfg.EmailFooter,
	})
	if err != nil {
		return queue.Permanent(err)
	}

	err = d.deps.Email.SendEmail(ctx, email.SendEmailParams{
		SendTo:   u.Email,
		Subject:  n.Title,
		BodyHTML: html,
		BodyText: text,
		Tag:      string(n.Type),
		Metadata: map[string]string{
			"notification_id": n.ID,
			"user_id":         n.UserID,
		},
	})
	if errors.Is(err, email.ErrInvalidParams) {
		return queue.Permanent(err)
	}
	return err
}

func (d *Deliverer) sendPush(ctx context.Context, n *notifications.Notification, u directory.User) error {
	if len(u.PushTokens) == 0 {
		return fmt.Errorf("%w: push", ErrNoAddress)
	}

	data := map[string]string{
		"notification_id": n.ID,
		"type":            string(n.Type),
	}
	if n.Rich.ActionURL != "" {
		data["action_url"] = n.Rich.ActionURL
	}

	res, err := d.deps.Push.Send(ctx, u.PushTokens, push.Message{
		Title:    n.Title,
		Body:     n.Body,
		ImageURL: n.Rich.ImageURL,
		Data:     data,
		Urgent:   n.Priority == events.PriorityCritical,
	})
	if len(res.InvalidTokens) > 0 {
		// TODO: prune rejected tokens once the directory exposes a write path.
		d.logger.LogAttrs(ctx, slog.LevelWarn, "push tokens rejected",
			logger.UserID(u.ID),
			logger.Count("tokens", len(res.InvalidTokens)),
		)
	}
	switch {
	case errors.Is(err, push.ErrNoTokens):
		return fmt.Errorf("%w: %w", ErrNoAddress, err)
	case errors.Is(err, push.ErrNoValidTokens), errors.Is(err, push.ErrEmptyMessage):
		return queue.Permanent(err)
	}
	return err
}

func (d *Deliverer) sendSMS(ctx context.Context, n *notifications.Notification, u directory.User) error {
	if u.Phone == "" {
		return fmt.Errorf("%w: sms", ErrNoAddress)
	}

	_, err := d.deps.SMS.Send(ctx, u.Phone, smsText(n))
	if errors.Is(err, sms.ErrInvalidPhone) || errors.Is(err, sms.ErrEmptyMessage) {
		return queue.Permanent(err)
	}
	return err
}

// smsText joins title, body and link into one line.
func smsText(n *notifications.Notification) string {
	parts := make([]string, 0, 3)
	if t := strings.TrimSpace(n.Title); t != "" {
		parts = append(parts, t+":")
	}
	if b := strings.TrimSpace(n.Body); b != "" {
		parts = append(parts, b)
	}
	if n.Rich.ActionURL != "" {
		parts = append(parts, n.Rich.ActionURL)
	}
	return strings.Join(parts, " ")
}

// WebhookPayload is the JSON body POSTed to user webhooks.
type WebhookPayload struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      events.Type     `json:"type"`
	Priority  events.Priority `json:"priority"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	ActionURL string          `json:"action_url,omitempty"`
	ImageURL  string          `json:"image_url,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (d *Deliverer) sendWebhook(ctx context.Context, n *notifications.Notification, u directory.User) error {
	if u.WebhookURL == "" {
		return fmt.Errorf("%w: webhook", ErrNoAddress)
	}

	opts := []webhook.SendOption{
		webhook.WithDeliveryID(n.ID),
		webhook.WithTimeout(d.cfg.WebhookTimeout),
	}
	if d.cfg.WebhookSecret != "" {
		opts = append(opts, webhook.WithSignature(d.cfg.WebhookSecret))
	}

	_, err := d.deps.Webhook.Send(ctx, u.WebhookURL, WebhookPayload{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Priority:  n.Priority,
		Title:     n.Title,
		Body:      n.Body,
		ActionURL: n.Rich.ActionURL,
		ImageURL:  n.Rich.ImageURL,
		Data:      n.Metadata.Payload,
		CreatedAt: n.CreatedAt,
	}, opts...)
	if webhook.IsPermanent(err) {
		return queue.Permanent(err)
	}
	return err
}
