// Package events defines the notification event taxonomy and an in-process
// publish/subscribe bus.
//
// The taxonomy is closed: every Type has a Definition describing its default
// priority and channels, its preference category and notification type, and
// how recipients are found. Producers call Bus.Emit; the bus stamps the event,
// fills defaults from the definition and publishes it on the type topic and on
// the catch-all TopicNotification.
//
// Listeners run synchronously, in registration order, before Emit returns.
// A failing or panicking listener is logged and does not stop the others.
// Slow consumers (the dispatch pipeline) are wrapped in an AsyncListener so
// that Emit only hands the event to a supervised worker pool.
//
//	bus := events.NewBus(events.WithBusLogger(log))
//	async := events.NewAsyncListener(orchestrator.Handle, events.WithWorkers(4))
//	defer async.Close(ctx)
//	bus.Subscribe(events.TopicNotification, async.Listen)
//
//	bus.Emit(ctx, events.SubscriptionGranted, events.Payload{
//	    "user_id": "u1",
//	    "tier":    "premium",
//	})
package events
