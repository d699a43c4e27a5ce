// Package eventbridge forwards bus events to a RabbitMQ topic exchange so
// services outside the process can observe notification traffic.
//
// Publisher.Listen has the events.Listener signature. Wrap it in an
// events.AsyncListener so a slow broker never blocks emitters:
//
//	pub, err := eventbridge.Dial(ctx, cfg, eventbridge.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	defer pub.Close()
//	bus.Subscribe(events.TopicNotification, events.NewAsyncListener(pub.Listen).Listen)
//
// Events are routed by type, e.g. subscription:expiring-soon is published
// with routing key "notifykit.subscription.expiring-soon".
package eventbridge
