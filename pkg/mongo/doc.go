// Package mongo connects to MongoDB with retry and exposes a readiness check.
//
// Notification records, preference documents, the user directory and the
// subscription and content sources all live in the database returned by
// NewWithDatabase. Their stores implement Indexer, so a process creates every
// index at startup with one call:
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	records := notifications.NewMongoStorage(db.Collection("notifications"))
//	if err := mongo.EnsureIndexes(ctx, records, users); err != nil {
//		return err
//	}
//
// Healthcheck returns a function suitable for the /health endpoint.
package mongo
