// Package migrations exposes the embedded transient store schema per SQL
// dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	crmconnect "github.com/goliatone/go-crm-connect"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	SourceLabel = "go-crm-connect"

	rootPath   = "data/sql/migrations"
	sqlitePath = "sqlite"
)

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel string
	Targets     []string
	Filesystems []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		next := make([]string, 0, len(targets))
		for _, target := range targets {
			if dialect, err := NormalizeDialect(target); err == nil && !slices.Contains(next, dialect) {
				next = append(next, dialect)
			}
		}
		if len(next) > 0 {
			r.Targets = next
		}
	}
}

// NormalizeDialect maps driver and dialect spellings onto a dialect constant.
func NormalizeDialect(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", name)
	}
}

// Filesystems resolves the per-dialect migration directories. The embedded
// tree is used unless a source is passed.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := crmconnect.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	postgresFS, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqliteFS, err := fs.Sub(postgresFS, sqlitePath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	specs := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: rootPath, FS: postgresFS},
		{Dialect: DialectSQLite, Path: rootPath + "/" + sqlitePath, FS: sqliteFS},
	}
	for _, spec := range specs {
		ups, err := fs.Glob(spec.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", spec.Path, err)
		}
		downs, err := fs.Glob(spec.FS, "*.down.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", spec.Path, err)
		}
		if len(ups) == 0 {
			return nil, fmt.Errorf("migrations: %s has no *.up.sql files", spec.Path)
		}
		if len(ups) != len(downs) {
			return nil, fmt.Errorf("migrations: %s has %d up and %d down files", spec.Path, len(ups), len(downs))
		}
	}
	return specs, nil
}

// Register hands each targeted dialect filesystem to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: SourceLabel,
		Targets:     []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	specs, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = specs

	for _, spec := range specs {
		if !slices.Contains(reg.Targets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s: %w", spec.Dialect, err)
		}
	}
	return reg, nil
}

// RegisterDialect registers only the migrations for driver, which may be a
// database/sql driver name or a dialect.
func RegisterDialect(ctx context.Context, driver string, register func(fs.FS)) error {
	dialect, err := NormalizeDialect(driver)
	if err != nil {
		return err
	}
	if register == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	_, err = Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		register(fsys)
		return nil
	}, WithValidationTargets(dialect))
	return err
}
