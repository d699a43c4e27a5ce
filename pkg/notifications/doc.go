// Package notifications stores one record per (event, recipient) with a
// delivery status per channel and a derived overall status.
//
// # Architecture
//
//   - Storage: persistence with atomic conditional updates (MemoryStorage, MongoStorage)
//   - Deliverer: live push of in-app records to connected sessions (BroadcastDeliverer)
//   - Manager: creates records, serves the read API and applies delivery outcomes
//
// # Status model
//
// Every requested channel is present on a record; only enabled channels count.
// Enabled channels start pending, except in-app which starts unread because
// creating the record is the in-app delivery. Background jobs move a channel
// to sent or failed. The overall status is derived:
//
//	all enabled channels delivered (sent, unread, read) -> sent
//	all enabled channels failed                         -> failed
//	all enabled channels pending                        -> pending
//	anything else                                       -> partial
//
// expired is set only by MarkExpired for records still pending past
// Metadata.ExpiresAt. Records are never deleted by this package.
//
// # Live delivery
//
//	deliverer := notifications.NewBroadcastDeliverer(100)
//	manager := notifications.NewManager(storage, deliverer)
//
//	sub := deliverer.Subscribe(r.Context(), userID)
//	defer sub.Close()
//	for msg := range sub.Receive(r.Context()) {
//	    // write msg.Data as an SSE event
//	}
package notifications
