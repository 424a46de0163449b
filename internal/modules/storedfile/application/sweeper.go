package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
)

// Sweeper deletes uploads whose expiry passed without anyone keeping them.
type Sweeper struct {
	repo     domain.Repository
	files    *FileService
	events   domain.EventPublisher
	clock    domain.Clock
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewSweeper(repo domain.Repository, files *FileService, events domain.EventPublisher, clock domain.Clock, logger *slog.Logger, interval time.Duration, batch int) *Sweeper {
	if clock == nil {
		clock = domain.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{repo: repo, files: files, events: events, clock: clock, logger: logger, interval: interval, batch: batch}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("expiry sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce deletes one batch of expired files and reports how many went.
// Derivations removed along with an earlier parent in the batch are skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.clock.Now()
	expired, err := s.repo.ListExpired(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}

	deleted := 0
	gone := make(map[string]bool)
	for i := range expired {
		f := &expired[i]
		if f.DerivedFromID != nil && gone[f.DerivedFromID.String()] {
			continue
		}
		if err := s.files.Delete(ctx, f); err != nil {
			if errors.Is(err, domain.ErrFileNotFound) {
				continue
			}
			s.logger.Error("failed to delete expired file", "file", f.String(), "error", err)
			continue
		}
		gone[f.ID.String()] = true
		deleted++
		expiredTotal.Inc()
		if s.events != nil && f.OwnerID != nil {
			s.events.Publish(ctx, *f.OwnerID, domain.NewFileEvent(domain.EventExpired, f, "", now))
		}
	}
	if deleted > 0 {
		s.logger.Info("expired files removed", "count", deleted)
	}
	return deleted, nil
}
