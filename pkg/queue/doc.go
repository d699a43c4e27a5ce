// Package queue is a small persistent job queue with one-time and periodic
// jobs.
//
// Three components share storage through narrow repository interfaces:
//
//   - Enqueuer adds one-time jobs, singly or as an atomic batch
//   - Scheduler materializes periodic jobs from a Schedule
//   - Worker claims due jobs by priority and runs the registered Handler
//
// MemoryStorage and PgStorage implement every repository. PgStorage claims
// with FOR UPDATE SKIP LOCKED; its schema ships as Migrations.
//
// Attempts are counted on claim. A failed job is retried after
// ExponentialBackoff until MaxAttempts is reached, then moved to the
// dead-letter table and reported to every DeadLetterHook. Errors wrapped with
// Permanent skip the remaining attempts.
//
//	storage := queue.NewPgStorage(pool)
//	enq, _ := queue.NewEnqueuer(storage, queue.WithDefaultQueue("notifications"))
//	_, err := enq.Enqueue(ctx, "deliver.email", payload, queue.WithPriority(queue.PriorityHigh))
//
//	worker, _ := queue.NewWorker(storage, queue.WithQueues("notifications"))
//	worker.RegisterHandlers(queue.NewJobHandler("deliver.email", sendEmail))
//	g.Go(worker.Run(ctx))
package queue
