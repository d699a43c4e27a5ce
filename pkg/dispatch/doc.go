// Package dispatch turns bus events into stored notifications and delivery
// jobs.
//
// For every recipient the Orchestrator classifies the event, skips it when a
// record with the same idempotency key exists, applies preference gates
// (flags, quiet hours, then the daily quota), renders content, stores one
// notification record and enqueues one deliver.<channel> job per external
// channel in a single batch. In-app delivery needs no job: the record itself
// is the in-app copy.
//
//	orch, err := dispatch.New(dispatch.Deps{...}, dispatch.WithLogger(log))
//	bus.Subscribe(events.TopicNotification, orch.Handle)
package dispatch
