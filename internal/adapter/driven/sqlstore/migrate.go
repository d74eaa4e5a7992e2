package sqlstore

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending migrations for the DB's dialect.
// It is safe to call on every startup; already-applied migrations are skipped.
func RunMigrations(db *DB) error {
	dir := "migrations/" + string(db.dialect)

	sourceDriver, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var (
		dbDriver database.Driver
		dbName   string
	)
	switch db.dialect {
	case DialectPostgres:
		dbDriver, err = migratepgx.WithInstance(db.Writer.DB, &migratepgx.Config{})
		dbName = "pgx5"
	default:
		dbDriver, err = migratesqlite.WithInstance(db.Writer.DB, &migratesqlite.Config{})
		dbName = "sqlite"
	}
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
