package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
	"golang.org/x/sync/errgroup"
)

type MigratorConfig struct {
	NodeID       string
	Interval     time.Duration
	Batch        int
	Workers      int
	MaxAttempts  int
	ClaimTimeout time.Duration
}

// Migrator copies LOCAL_READY files held by this node to S3 and drops the
// local copy once the upload succeeds.
type Migrator struct {
	repo   domain.Repository
	local  domain.LocalStore
	remote domain.RemoteStore
	events domain.EventPublisher
	clock  domain.Clock
	logger *slog.Logger
	cfg    MigratorConfig
}

func NewMigrator(repo domain.Repository, local domain.LocalStore, remote domain.RemoteStore, events domain.EventPublisher, clock domain.Clock, logger *slog.Logger, cfg MigratorConfig) *Migrator {
	if clock == nil {
		clock = domain.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 20
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Migrator{repo: repo, local: local, remote: remote, events: events, clock: clock, logger: logger, cfg: cfg}
}

// Run migrates on every tick until ctx is cancelled.
func (m *Migrator) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, _, err := m.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("migration pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch and copies it.
func (m *Migrator) RunOnce(ctx context.Context) (stored, failed int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	now := m.clock.Now()
	if m.cfg.ClaimTimeout > 0 {
		n, err := m.repo.ResetStaleClaims(ctx, now.Add(-m.cfg.ClaimTimeout))
		if err != nil {
			return 0, 0, fmt.Errorf("reset stale claims: %w", err)
		}
		if n > 0 {
			m.logger.Warn("released stale migration claims", "count", n)
		}
	}

	files, err := m.repo.ClaimForMigration(ctx, m.cfg.NodeID, m.cfg.Batch, m.cfg.MaxAttempts, now)
	if err != nil {
		return 0, 0, err
	}
	if len(files) == 0 {
		return 0, 0, nil
	}

	// one file failing must not cancel the uploads running beside it
	var ok, bad int64
	var g errgroup.Group
	g.SetLimit(m.cfg.Workers)
	for i := range files {
		f := &files[i]
		g.Go(func() error {
			if err := m.migrate(ctx, f); err != nil {
				atomic.AddInt64(&bad, 1)
				m.logger.Warn("migration failed", "file", f.String(), "attempt", f.MigrationAttempts+1, "error", err)
				return fmt.Errorf("migrate %s: %w", f.ID, err)
			}
			atomic.AddInt64(&ok, 1)
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		m.logger.Warn("migration pass complete with failures", "claimed", len(files), "stored", ok, "failed", bad, "first_error", werr)
		return int(ok), int(bad), nil
	}

	m.logger.Info("migration pass complete", "claimed", len(files), "stored", ok, "failed", bad)
	return int(ok), int(bad), nil
}

func (m *Migrator) migrate(ctx context.Context, f *domain.StoredFile) error {
	start := time.Now()

	fh, err := m.local.Open(f.GeneratedFilename)
	if err != nil {
		if errors.Is(err, domain.ErrNotLocal) {
			// claimed on this node but the bytes are gone
			f.MarkCorrupt()
			f.ClaimedAt = nil
			if uerr := m.repo.Update(ctx, f); uerr != nil {
				return uerr
			}
			migrationsTotal.WithLabelValues("missing").Inc()
			return err
		}
		return m.fail(ctx, f, err)
	}

	// a previous attempt may have uploaded before failing to record it
	key := m.remote.Key(f.GeneratedFilename)
	exists, err := m.remote.Exists(ctx, key)
	if err != nil {
		fh.Close()
		return m.fail(ctx, f, err)
	}
	if !exists {
		size := int64(-1)
		if info, serr := fh.Stat(); serr == nil {
			size = info.Size()
		}
		err = m.remote.Upload(ctx, key, fh, size, f.MimeType)
	}
	fh.Close()
	if err != nil {
		return m.fail(ctx, f, err)
	}

	storedAt := m.clock.Now()
	if err := m.repo.MarkStored(ctx, f.ID, storedAt); err != nil {
		return fmt.Errorf("mark stored: %w", err)
	}
	if err := m.local.Remove(f.GeneratedFilename); err != nil {
		m.logger.Warn("failed to remove migrated local file", "file", f.String(), "error", err)
	}

	f.RemoteStatus = domain.RemoteStatusRemoteOnly
	f.DateStored = &storedAt
	f.ClaimedAt = nil
	migrationsTotal.WithLabelValues("stored").Inc()
	migrationDuration.Observe(time.Since(start).Seconds())
	m.publish(ctx, domain.EventStored, f)
	return nil
}

func (m *Migrator) fail(ctx context.Context, f *domain.StoredFile, cause error) error {
	if err := m.repo.ReleaseClaim(ctx, f.ID); err != nil {
		m.logger.Error("failed to release migration claim", "file", f.ID, "error", err)
	}
	f.RemoteStatus = domain.RemoteStatusLocalReady
	f.ClaimedAt = nil
	f.MigrationAttempts++
	migrationsTotal.WithLabelValues("failed").Inc()
	if f.MigrationAttempts >= m.cfg.MaxAttempts {
		m.publish(ctx, domain.EventMigrationFailed, f)
	}
	return cause
}

func (m *Migrator) publish(ctx context.Context, t domain.EventType, f *domain.StoredFile) {
	if m.events == nil || f.OwnerID == nil {
		return
	}
	m.events.Publish(ctx, *f.OwnerID, domain.NewFileEvent(t, f, "", m.clock.Now()))
}
