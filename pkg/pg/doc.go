// Package pg connects to PostgreSQL with pgx/v5 and applies goose migrations
// shipped inside the binary.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, queue.Migrations, log); err != nil {
//		return err
//	}
package pg
