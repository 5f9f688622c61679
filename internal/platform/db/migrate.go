package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is a single embedded schema file.
type Migration struct {
	Version string
	SQL     string
}

// MigrationFS returns the embedded schema files rooted at the migrations dir.
func MigrationFS() (fs.FS, error) {
	return fs.Sub(migrationFiles, "migrations")
}

// Migrations returns the embedded schema files ordered by version.
func Migrations() ([]Migration, error) {
	fsys, err := MigrationFS()
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	out := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(entry.Name(), ".sql"),
			SQL:     string(body),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies pending embedded migrations with goose and returns the
// versions it ran. Concurrent migrators wait on a postgres session lock.
func Migrate(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	fsys, err := MigrationFS()
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("migration locker: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		return nil, fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	applied := make([]string, 0, len(results))
	for _, res := range results {
		applied = append(applied, strings.TrimSuffix(path.Base(res.Source.Path), ".sql"))
	}
	return applied, nil
}
