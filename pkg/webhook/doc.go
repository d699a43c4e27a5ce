// Package webhook delivers JSON payloads to HTTP endpoints.
//
// A Sender signs requests with HMAC-SHA256 over "<timestamp>.<body>",
// classifies failures as permanent (most 4xx) or temporary, and can keep one
// circuit breaker per endpoint host:
//
//	sender := webhook.NewSender(
//		webhook.WithCircuitBreakers(webhook.CircuitConfig{}, 1024),
//	)
//	res, err := sender.Send(ctx, user.WebhookURL, body,
//		webhook.WithSignature(secret),
//		webhook.WithDeliveryID(notificationID),
//	)
//	if webhook.IsPermanent(err) {
//		// do not retry
//	}
//
// Receivers check requests with Verify.
//
// In-process retries are off by default; WithRetries enables them with an
// ExponentialBackoff.
package webhook
