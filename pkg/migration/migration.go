package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Config points the runner at a schema directory and a database.
type Config struct {
	// MigrationsPath is a directory or a source URL such as file://migrations.
	MigrationsPath string
	// DatabaseURL is a lib/pq connection string.
	DatabaseURL string
	Logger      *slog.Logger
}

// Runner applies the stored_files and file_events schema.
type Runner struct {
	config *Config
	logger *slog.Logger
}

func NewRunner(config *Config) *Runner {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return &Runner{config: config, logger: logger.With("component", "migrations")}
}

// SourceURL normalises a bare directory into a file:// source.
func SourceURL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return "file://" + path
}

// Up applies every pending migration.
func (r *Runner) Up() error {
	r.logger.Info("applying migrations", "source", SourceURL(r.config.MigrationsPath))
	return r.run(func(m *migrate.Migrate) error { return m.Up() })
}

// Steps applies n migrations, or rolls back -n when negative.
func (r *Runner) Steps(n int) error {
	r.logger.Info("stepping migrations", "steps", n)
	return r.run(func(m *migrate.Migrate) error { return m.Steps(n) })
}

// Down rolls back the last migration.
func (r *Runner) Down() error {
	return r.Steps(-1)
}

// Force records version as applied without running anything. It is the way
// out of a dirty state after a failed migration was repaired by hand.
func (r *Runner) Force(version int) error {
	r.logger.Warn("forcing migration version", "version", version)
	return r.run(func(m *migrate.Migrate) error { return m.Force(version) })
}

// Version reports the applied version; zero means nothing was applied yet.
func (r *Runner) Version() (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := r.run(func(m *migrate.Migrate) error {
		var err error
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

func (r *Runner) run(op func(m *migrate.Migrate) error) error {
	m, err := r.open()
	if err != nil {
		return fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer m.Close()

	if err := op(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("schema already up to date")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// open uses its own connection because closing the migrate instance closes
// the database handle it was given.
func (r *Runner) open() (*migrate.Migrate, error) {
	db, err := sql.Open("postgres", r.config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(SourceURL(r.config.MigrationsPath), "postgres", driver)
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// AutoMigrate brings the schema up to date at startup and refuses to touch a
// dirty database.
func AutoMigrate(dbURL, migrationsPath string, logger *slog.Logger) error {
	runner := NewRunner(&Config{MigrationsPath: migrationsPath, DatabaseURL: dbURL, Logger: logger})

	version, dirty, err := runner.Version()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database in dirty state at version %d; repair it and run migrate force", version)
	}

	if err := runner.Up(); err != nil {
		return err
	}

	newVersion, _, err := runner.Version()
	if err != nil {
		return err
	}
	runner.logger.Info("schema ready", "from_version", version, "to_version", newVersion)
	return nil
}
