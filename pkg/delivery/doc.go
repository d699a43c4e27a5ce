// Package delivery executes the deliver.<channel> jobs enqueued by dispatch.
//
// Every handler loads the notification record and its recipient, skips
// channels that are no longer pending, sends through the channel's sender and
// records the outcome with a conditional status transition. Failures that
// retrying cannot fix are returned as queue.Permanent so the worker
// dead-letters the job at once; DeadLetterHook marks the channel failed for
// jobs that exhausted their attempts.
//
//	d, err := delivery.New(delivery.Deps{
//		Records: manager,
//		Users:   users,
//		Email:   mailer,
//		Webhook: webhook.NewSender(),
//	})
//	worker, err := queue.NewWorker(repo, queue.WithDeadLetterHook(d.DeadLetterHook()))
//	worker.RegisterHandlers(d.Handlers()...)
package delivery
