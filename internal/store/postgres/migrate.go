package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationPattern matches migration files such as 0001_name.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// ParseMigrationFilename returns the version and name encoded in a migration
// file name.
func ParseMigrationFilename(filename string) (int, string, bool) {
	m := migrationPattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return version, m[2], true
}

// Migrations lists the embedded migrations sorted by version.
func Migrations() ([]Migration, error) {
	return readMigrations(migrationFiles, "migrations")
}

func readMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("readMigrations: %w", err)
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, ok := ParseMigrationFilename(e.Name())
		if !ok {
			continue
		}
		content, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("readMigrations: reading %s: %w", e.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: e.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// AppliedMigrations returns the rows of schema_migrations.
func (s *Store) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx,
		`SELECT version, name, applied_at, checksum, applied_by FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowToStructByPos[AppliedMigration])
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: %w", err)
	}
	return applied, nil
}

// Migrate applies every pending embedded migration, each in its own
// transaction, and returns the ones it ran. A checksum mismatch on an applied
// migration is an error.
func (s *Store) Migrate(ctx context.Context, appliedBy string) ([]Migration, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	done := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		done[am.Version] = am
	}

	var ran []Migration
	for _, m := range migrations {
		if am, ok := done[m.Version]; ok {
			if am.Checksum != m.Checksum {
				return ran, fmt.Errorf("Migrate: %04d_%s changed after it was applied", m.Version, m.Name)
			}
			continue
		}
		if err := s.apply(ctx, m, appliedBy); err != nil {
			return ran, err
		}
		ran = append(ran, m)
	}
	return ran, nil
}

func (s *Store) apply(ctx context.Context, m Migration, appliedBy string) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply %04d_%s: %w", m.Version, m.Name, err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO schema_migrations (version, name, applied_at, checksum, applied_by)
			VALUES ($1, $2, now(), $3, $4)`,
			m.Version, m.Name, m.Checksum, appliedBy)
		if err != nil {
			return fmt.Errorf("record %04d_%s: %w", m.Version, m.Name, err)
		}
		return nil
	})
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL,
			checksum   TEXT NOT NULL,
			applied_by TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensureSchemaMigrations: %w", err)
	}
	return nil
}
