// Package reminders produces time-triggered notification events.
//
// A Runner queries a SubscriptionSource for subscriptions crossing expiry
// thresholds and emits the matching events on the bus; it also builds the
// weekly digest from a ContentSource and sweeps expired notification records.
// Every run is a periodic job registered on a queue.Scheduler and executed by
// a queue.Worker:
//
//	runner, err := reminders.New(reminders.Deps{
//		Subscriptions: reminders.NewMongoSubscriptions(db.Collection("subscriptions")),
//		Content:       reminders.NewMongoContent(db.Collection("insights")),
//		Audience:      prefsEngine,
//		Emitter:       bus,
//		Expirer:       notificationsManager,
//	}, reminders.WithConfig(cfg))
//	if err != nil {
//		return err
//	}
//	if err := runner.Register(scheduler, worker); err != nil {
//		return err
//	}
//
// Emissions carry an idempotency key of the form
// "<subscription id>:<threshold>:<YYYY-MM-DD>", so a run that is repeated on
// the same day does not notify a user twice.
package reminders
