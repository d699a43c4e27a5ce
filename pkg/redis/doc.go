// Package redis connects to Redis with retry and exposes a readiness check.
//
// The client backs the optional daily-quota counter of the preferences
// package; without Redis the counters live in the preference documents.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	counter := preferences.NewRedisCounter(client)
//	check := redis.Healthcheck(client)
package redis
