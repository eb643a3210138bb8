package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

// Options selects which tables a local schema gets.
type Options struct {
	// Archive also creates the legacy readings table.
	Archive bool
	// Seed loads a demo fleet after the schema exists.
	Seed bool
}

// schemaSet is one independently versioned group of migrations.
type schemaSet struct {
	dir   string
	table string
}

var (
	coreSchema    = schemaSet{dir: "core", table: "schema_migrations"}
	archiveSchema = schemaSet{dir: "archive", table: "schema_migrations_archive"}
)

// Run applies the embedded migrations for dialect ("postgres", "mysql" or "sqlite").
// In production the collectors own this schema; Run exists for local and
// self-hosted environments. The archive table is versioned separately so it can be
// added to an existing schema later.
func Run(ctx context.Context, conn *gorm.DB, dialect string, opts Options) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("reach database: %w", err)
	}

	sets := []schemaSet{coreSchema}
	if opts.Archive {
		sets = append(sets, archiveSchema)
	}
	for _, set := range sets {
		if err := apply(sqlDB, dialect, set); err != nil {
			return fmt.Errorf("%s schema: %w", set.dir, err)
		}
	}
	return nil
}

func apply(db *sql.DB, dialect string, set schemaSet) error {
	sub, err := fs.Sub(embeddedMigrations, path.Join(migrationsDir, dialect, set.dir))
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := newDriver(db, dialect, set.table)
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, dialect, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

func newDriver(db *sql.DB, dialect, table string) (database.Driver, error) {
	switch dialect {
	case "postgres":
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	case "mysql":
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
	case "sqlite":
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported %s type", dialect)
	}
}
