package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrations is a set of goose SQL files and the directory inside FS that
// holds them.
type Migrations struct {
	FS  fs.FS
	Dir string
}

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// Migrate applies every pending migration of set through the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, set Migrations, log *slog.Logger) error {
	if set.FS == nil {
		return errors.Join(ErrFailedToApplyMigrations, ErrNoMigrations)
	}
	if log == nil {
		log = slog.Default()
	}
	dir := set.Dir
	if dir == "" {
		dir = "."
	}
	table := cfg.MigrationsTable
	if table == "" {
		table = "notifykit_migrations"
	}

	// goose works on database/sql, the bridge shares the pool's connections
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration connection", slog.String("error", err.Error()))
		}
	}()

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(set.FS)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(slogAdapter{log: log})
	goose.SetTableName(table)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// slogAdapter routes goose's printf logging into slog.
type slogAdapter struct {
	log *slog.Logger
}

func (a slogAdapter) Fatalf(format string, v ...any) {
	a.log.Error(fmt.Sprintf(format, v...))
}

func (a slogAdapter) Printf(format string, v ...any) {
	a.log.Info(fmt.Sprintf(format, v...))
}
