// Package broadcast provides generic fan-out of messages to subscribers.
//
// MemoryBroadcaster never blocks the publisher: a subscriber whose buffer is
// full misses the message and is dropped. Subscriptions end when their
// context is cancelled, when Close is called on them, or when the broadcaster
// is closed.
//
//	b := broadcast.NewMemoryBroadcaster[Notification](16)
//	sub := b.Subscribe(ctx)
//	defer sub.Close()
//	for msg := range sub.Receive(ctx) {
//	    // handle msg.Data
//	}
package broadcast
