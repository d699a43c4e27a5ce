// Package push delivers mobile push notifications through Firebase Cloud
// Messaging.
//
// Sender fans a Message out to every device token of a user with multicast
// requests and reports tokens FCM rejected as unregistered or malformed, so
// the caller can prune them.
package push
