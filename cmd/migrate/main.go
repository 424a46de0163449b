// Command migrate applies or rolls back the database schema.
//
//	migrate up
//	migrate down
//	migrate steps 2
//	migrate force 1
//	migrate version
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/saransh1220/s3files/internal/shared/infrastructure/config"
	"github.com/saransh1220/s3files/pkg/migration"
)

func main() {
	cfg := config.Load()
	path := flag.String("path", cfg.Migrations.Path, "migrations directory or source URL")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	runner := migration.NewRunner(&migration.Config{
		MigrationsPath: *path,
		DatabaseURL:    cfg.Database.DSN(),
		Logger:         logger,
	})

	if err := execute(runner, flag.Args()); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

type runner interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

func execute(r runner, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: migrate [-path dir] up|down|steps N|force V|version")
	}

	switch args[0] {
	case "up":
		return r.Up()
	case "down":
		return r.Down()
	case "steps", "force":
		if len(args) != 2 {
			return fmt.Errorf("%s needs a number", args[0])
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		if args[0] == "steps" {
			return r.Steps(n)
		}
		return r.Force(n)
	case "version":
		v, dirty, err := r.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d dirty=%t\n", v, dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
