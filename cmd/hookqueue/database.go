package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	hookqueuemigrations "github.com/goliatone/go-hookqueue/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const databasePingTimeout = 5 * time.Second

type persistenceConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.dsn }
func (c persistenceConfig) GetPingTimeout() time.Duration { return databasePingTimeout }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-hookqueue" }

// openPersistence opens the configured database and applies the migrations
// of its dialect.
func openPersistence(ctx context.Context, cfg core.DatabaseConfig) (*persistence.Client, error) {
	driver, dialect, err := resolveDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	migrationDialect, err := hookqueuemigrations.DialectForDriver(driver)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("hookqueue: open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: driver, dsn: cfg.DSN, debug: cfg.Debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("hookqueue: persistence client: %w", err)
	}
	_, err = hookqueuemigrations.Register(ctx, func(_ context.Context, name string, _ string, fsys fs.FS) error {
		if name != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, hookqueuemigrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("hookqueue: migrate: %w", err)
	}
	return client, nil
}

func resolveDriver(name string) (string, schema.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return "sqlite3", sqlitedialect.New(), nil
	case "postgres", "postgresql", "pg":
		return "postgres", pgdialect.New(), nil
	default:
		return "", nil, fmt.Errorf("hookqueue: unsupported database driver %q", name)
	}
}
