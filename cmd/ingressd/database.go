package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	ingressmigrations "github.com/goliatone/go-ingress/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// migrationDialect maps a database/sql driver name to the dialect of the
// embedded migration tree.
func migrationDialect(driver string) (string, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return ingressmigrations.DialectSQLite, nil
	case "postgres", "pgx":
		return ingressmigrations.DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q (use sqlite3, postgres or pgx)", driver)
	}
}

func openPersistence(settings Settings) (*persistence.Client, string, error) {
	dialect, err := migrationDialect(settings.DatabaseDriver)
	if err != nil {
		return nil, "", err
	}
	driver := settings.DatabaseDriver
	if driver == "sqlite" {
		driver = "sqlite3"
	}

	sqlDB, err := sql.Open(driver, settings.DatabaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("open %s database: %w", driver, err)
	}
	cfg := persistenceConfig{settings: settings}
	var client *persistence.Client
	if dialect == ingressmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
		client, err = persistence.New(cfg, sqlDB, sqlitedialect.New())
	} else {
		client, err = persistence.New(cfg, sqlDB, pgdialect.New())
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("persistence client: %w", err)
	}
	return client, dialect, nil
}

func migrate(ctx context.Context, client *persistence.Client, dialect string) error {
	_, err := ingressmigrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, ingressmigrations.WithValidationTargets(dialect))
	if err != nil {
		return err
	}
	return client.Migrate(ctx)
}
