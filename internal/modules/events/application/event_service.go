package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/saransh1220/s3files/internal/modules/events/domain"
	fileDomain "github.com/saransh1220/s3files/internal/modules/storedfile/domain"
)

// Sender delivers a payload to the live connections of one user.
type Sender interface {
	SendToUser(userID uuid.UUID, message []byte)
	Connections(userID uuid.UUID) int
}

// EventService records file events and pushes them to connected owners.
type EventService struct {
	repo   domain.EventRepository
	sender Sender
	logger *slog.Logger
}

func NewEventService(repo domain.EventRepository, sender Sender, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{repo: repo, sender: sender, logger: logger}
}

var _ fileDomain.EventPublisher = (*EventService)(nil)

// Publish never fails the caller: a lost event only costs the owner a
// live update.
func (s *EventService) Publish(ctx context.Context, ownerID uuid.UUID, event fileDomain.FileEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if s.repo != nil {
		record := &domain.Event{
			ID:        uuid.New(),
			UserID:    ownerID,
			Type:      string(event.Type),
			FileID:    event.FileID,
			Hash:      event.Hash,
			Status:    event.StatusName,
			URL:       event.URL,
			CreatedAt: event.At,
		}
		if err := s.repo.Create(ctx, record); err != nil {
			s.logger.Warn("failed to record file event", "type", event.Type, "file", event.FileID, "error", err)
		}
	}

	if s.sender.Connections(ownerID) == 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to encode file event", "type", event.Type, "error", err)
		return
	}
	s.sender.SendToUser(ownerID, payload)
}

func (s *EventService) List(ctx context.Context, userID uuid.UUID, since *time.Time, limit, offset int) ([]domain.Event, error) {
	return s.repo.ListByUser(ctx, userID, since, limit, offset)
}

// Prune drops recorded events older than retention.
func (s *EventService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteBefore(ctx, time.Now().UTC().Add(-retention))
}
