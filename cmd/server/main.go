package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/saransh1220/s3files/internal/gateway"
	"github.com/saransh1220/s3files/internal/gateway/middleware"
	"github.com/saransh1220/s3files/internal/modules/events"
	"github.com/saransh1220/s3files/internal/modules/storedfile"
	"github.com/saransh1220/s3files/internal/shared/infrastructure/config"
	"github.com/saransh1220/s3files/internal/shared/infrastructure/database"
	"github.com/saransh1220/s3files/pkg/migration"
)

func main() {
	cfg := config.Load()
	logger := newLogger(os.Getenv("LOG_FORMAT"), cfg.Files.DumpDerivations || cfg.Files.DumpResponses)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("s3files: %v", err)
	}
}

// newLogger returns a JSON logger unless format is "text". Debug output is
// only useful with one of the dump flags on.
func newLogger(format string, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	log.Println("Connecting to DB...")
	db, err := database.NewPostgresDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Printf("Database Connected Successfully!")

	if cfg.Migrations.Auto {
		if err := migration.AutoMigrate(cfg.Database.DSN(), cfg.Migrations.Path, logger); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	var redisClient *redis.Client
	if client, err := database.NewRedis(cfg.Redis); err != nil {
		logger.Warn("redis unavailable", "addr", cfg.Redis.Addr(), "error", err)
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	eventsModule := events.NewModule(db, logger)
	defer eventsModule.Stop()

	filesModule, err := storedfile.NewModule(ctx, db, redisClient, cfg, eventsModule.Publisher(), logger)
	if err != nil {
		return fmt.Errorf("storedfile module: %w", err)
	}

	router := gateway.NewRouter(gateway.RouterConfig{
		AuthMiddleware: middleware.NewAuthMiddleware(cfg.JWT.Secret),
		FileHandler:    filesModule.HTTPHandler(),
		EventHandler:   eventsModule.HTTPHandler(),
	}, cfg.Server.AllowedOrigins)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		filesModule.RunWorkers(ctx)
	}()
	go func() {
		defer workers.Done()
		eventsModule.RunPruner(ctx, cfg.Workers.EventRetention)
	}()

	logger.Info("s3files ready",
		"remote_mode", cfg.Files.RemoteMode,
		"server_type", cfg.Files.ServerType,
		"node_id", cfg.Files.NodeID,
	)

	server := gateway.NewServer(cfg.Server.Port, router.Handler(), cfg.Server.ShutdownTimeout)
	serveErr := server.Start(ctx)

	// a listen error returns before ctx is done
	cancel()
	workers.Wait()
	return serveErr
}
