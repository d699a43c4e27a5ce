package push

import (
	"context"
	"fmt"
	"slices"

	"firebase.google.com/go/v4/messaging"
)

// maxMulticastTokens is the FCM limit of tokens per multicast request.
const maxMulticastTokens = 500

// Client is satisfied by *messaging.Client.
type Client interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Message is the device-facing part of a push notification.
type Message struct {
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
	Urgent   bool
}

// Result summarizes one Send call.
type Result struct {
	Sent          int
	Failed        int
	InvalidTokens []string
}

// Sender sends push messages. It is safe for concurrent use.
type Sender struct {
	client    Client
	batchSize int
}

// NewSender wraps an FCM client. batchSize values outside 1..500 use 500.
func NewSender(client Client, batchSize int) *Sender {
	if batchSize <= 0 || batchSize > maxMulticastTokens {
		batchSize = maxMulticastTokens
	}
	return &Sender{client: client, batchSize: batchSize}
}

// Send delivers msg to every token. It succeeds when at least one device
// accepted the message. When every token was rejected as invalid the error
// is ErrNoValidTokens, which retrying cannot fix.
func (s *Sender) Send(ctx context.Context, tokens []string, msg Message) (Result, error) {
	tokens = uniqueTokens(tokens)
	if len(tokens) == 0 {
		return Result{}, ErrNoTokens
	}
	if msg.Title == "" && msg.Body == "" {
		return Result{}, ErrEmptyMessage
	}

	var res Result
	var lastErr error
	for batch := range slices.Chunk(tokens, s.batchSize) {
		resp, err := s.client.SendEachForMulticast(ctx, buildMessage(batch, msg))
		if err != nil {
			res.Failed += len(batch)
			lastErr = err
			continue
		}
		res.Sent += resp.SuccessCount
		res.Failed += resp.FailureCount
		for i, r := range resp.Responses {
			if r == nil || r.Success || i >= len(batch) {
				continue
			}
			if invalidToken(r.Error) {
				res.InvalidTokens = append(res.InvalidTokens, batch[i])
			} else {
				lastErr = r.Error
			}
		}
	}

	switch {
	case res.Sent > 0:
		return res, nil
	case len(res.InvalidTokens) == len(tokens):
		return res, ErrNoValidTokens
	case lastErr != nil:
		return res, fmt.Errorf("%w: %w", ErrFailedToSend, lastErr)
	}
	return res, ErrFailedToSend
}

func buildMessage(tokens []string, msg Message) *messaging.MulticastMessage {
	m := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title:    msg.Title,
			Body:     msg.Body,
			ImageURL: msg.ImageURL,
		},
		Data: msg.Data,
	}
	if msg.Urgent {
		m.Android = &messaging.AndroidConfig{Priority: "high"}
		m.APNS = &messaging.APNSConfig{Headers: map[string]string{"apns-priority": "10"}}
	}
	return m
}

func invalidToken(err error) bool {
	return err != nil && (messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err))
}

func uniqueTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
