package storedfile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/saransh1220/s3files/internal/modules/storedfile/application"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
	"github.com/saransh1220/s3files/internal/modules/storedfile/infrastructure/cache"
	"github.com/saransh1220/s3files/internal/modules/storedfile/infrastructure/derivations"
	"github.com/saransh1220/s3files/internal/modules/storedfile/infrastructure/fetch"
	"github.com/saransh1220/s3files/internal/modules/storedfile/infrastructure/local"
	"github.com/saransh1220/s3files/internal/modules/storedfile/infrastructure/persistence/postgres"
	"github.com/saransh1220/s3files/internal/modules/storedfile/infrastructure/s3"
	files_http "github.com/saransh1220/s3files/internal/modules/storedfile/interfaces/http"
	"github.com/saransh1220/s3files/internal/shared/infrastructure/config"
)

// Module represents the stored file module: uploads, derivations, serving,
// migration to S3 and expiry.
type Module struct {
	service  *application.FileService
	handler  *files_http.FileHandler
	migrator *application.Migrator
	sweeper  *application.Sweeper
	s3Mode   bool
}

// NewModule wires the module. redisClient may be nil, in which case
// derivation lookups are cached per node only. events may be nil.
func NewModule(
	ctx context.Context,
	db *sqlx.DB,
	redisClient *redis.Client,
	cfg config.Config,
	events domain.EventPublisher,
	logger *slog.Logger,
) (*Module, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "storedfile")
	files := cfg.Files

	localStore, err := local.NewLocalStorage(files.LocalDir)
	if err != nil {
		return nil, err
	}

	var remote domain.RemoteStore
	s3Mode := files.RemoteMode == application.RemoteModeS3
	switch files.RemoteMode {
	case application.RemoteModeS3:
		store, err := s3.NewS3Storage(ctx, s3.S3Config{
			BucketName:     cfg.S3.Bucket,
			BucketDir:      cfg.S3.BucketDir,
			Region:         cfg.S3.Region,
			Endpoint:       cfg.S3.Endpoint,
			PublicEndpoint: cfg.S3.PublicEndpoint,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 storage: %w", err)
		}
		remote = store
	case application.RemoteModeLocal:
	default:
		return nil, fmt.Errorf("unknown remote mode %q", files.RemoteMode)
	}

	registry, err := derivations.Load(files.DerivationsFile)
	if err != nil {
		return nil, err
	}

	var derivationCache domain.DerivationCache
	if redisClient != nil {
		derivationCache = cache.NewRedisDerivationCache(redisClient, files.CacheTTL)
	} else {
		logger.Warn("redis unavailable, derivation lookups cached in memory")
		derivationCache = cache.NewMemoryDerivationCache(files.CacheTTL, nil)
	}

	repo := postgres.NewPgFileRepository(db)
	clock := domain.RealClock{}

	service := application.NewFileService(application.Deps{
		Repo:       repo,
		Local:      localStore,
		Remote:     remote,
		Cache:      derivationCache,
		Events:     events,
		Registry:   registry,
		Clock:      clock,
		HTTPClient: fetch.NewClient(files.FetchTimeout, files.FetchAllowPrivate),
		Logger:     logger,
	}, application.Config{
		RemoteMode:        files.RemoteMode,
		AutoExpire:        files.AutoExpire,
		CheckImages:       files.CheckImages,
		SplitLevels:       files.SplitLevels,
		SplitChars:        files.SplitChars,
		HashSecret:        files.HashSecret,
		InternalURL:       files.InternalURL,
		ExternalURL:       files.ExternalURL,
		NodeID:            files.NodeID,
		ResultDerivations: files.ResultDerivations,
		PresignTTL:        files.PresignTTL,
		MaxFetchSize:      files.MaxFetchSize,
		DumpDerivations:   files.DumpDerivations,
	})

	handler := files_http.NewFileHandler(service, files_http.HandlerConfig{
		ServerType:    files.ServerType,
		MaxUploadSize: files.MaxUploadSize,
		DumpResponses: files.DumpResponses,
	})

	workers := cfg.Workers
	migrator := application.NewMigrator(repo, localStore, remote, events, clock, logger, application.MigratorConfig{
		NodeID:       files.NodeID,
		Interval:     workers.MigrateInterval,
		Batch:        workers.MigrateBatch,
		Workers:      workers.MigrateWorkers,
		MaxAttempts:  workers.MigrateMaxAttempts,
		ClaimTimeout: workers.ClaimTimeout,
	})
	sweeper := application.NewSweeper(repo, service, events, clock, logger, workers.SweepInterval, workers.SweepBatch)

	return &Module{
		service:  service,
		handler:  handler,
		migrator: migrator,
		sweeper:  sweeper,
		s3Mode:   s3Mode,
	}, nil
}

// Service returns the file service
func (m *Module) Service() *application.FileService { return m.service }

// HTTPHandler returns the HTTP handler
func (m *Module) HTTPHandler() *files_http.FileHandler { return m.handler }

// RunWorkers blocks until ctx is done. The migrator only runs in s3 mode.
func (m *Module) RunWorkers(ctx context.Context) {
	done := make(chan struct{})
	if m.s3Mode {
		go func() {
			defer close(done)
			m.migrator.Run(ctx)
		}()
	} else {
		close(done)
	}
	m.sweeper.Run(ctx)
	<-done
}
