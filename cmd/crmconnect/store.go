package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/goliatone/go-crm-connect/core"
	servicemigrations "github.com/goliatone/go-crm-connect/migrations"
	sqlstore "github.com/goliatone/go-crm-connect/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	driverMemory   = "memory"
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool { return c.debug }
func (c persistenceConfig) GetDriver() string { return c.driver }
func (c persistenceConfig) GetServer() string { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string { return "go-crm-connect" }

// openClient opens the SQL backed persistence client and registers the
// migrations for its dialect.
func openClient(ctx context.Context, cfg StoreEnv) (*persistence.Client, error) {
	var (
		sqlDriver string
		dialect   schema.Dialect
	)
	switch cfg.Driver {
	case driverSQLite:
		sqlDriver, dialect = "sqlite3", sqlitedialect.New()
	case driverPostgres:
		sqlDriver, dialect = "postgres", pgdialect.New()
	default:
		return nil, fmt.Errorf("store driver %q has no database", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store driver %q requires a dsn", cfg.Driver)
	}

	sqlDB, err := sql.Open(sqlDriver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == driverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		driver: sqlDriver,
		server: cfg.DSN,
		debug:  cfg.Debug,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	err = servicemigrations.RegisterDialect(ctx, sqlDriver, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// openTransientStore builds the configured store. The returned close func is
// never nil.
func openTransientStore(ctx context.Context, cfg StoreEnv, migrate bool) (core.TransientStore, func(), error) {
	if cfg.Driver == "" || cfg.Driver == driverMemory {
		return core.NewMemoryTransientStore(), func() {}, nil
	}

	client, err := openClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = client.Close() }

	if migrate {
		if err := client.Migrate(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if cfg.Cache {
		store, err := sqlstore.NewCachedTransientStoreFromDB(client, nil)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return store, closeFn, nil
	}
	store, err := sqlstore.NewTransientStoreFromPersistence(client)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}
