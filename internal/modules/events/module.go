package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/saransh1220/s3files/internal/modules/events/application"
	"github.com/saransh1220/s3files/internal/modules/events/infrastructure/persistence/postgres"
	"github.com/saransh1220/s3files/internal/modules/events/infrastructure/websocket"
	events_http "github.com/saransh1220/s3files/internal/modules/events/interfaces/http"
)

type Module struct {
	service *application.EventService
	handler *events_http.EventHandler
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewModule starts the websocket hub; call Stop on shutdown.
func NewModule(db *sqlx.DB, logger *slog.Logger) *Module {
	repo := postgres.NewPgEventRepository(db)
	hub := websocket.NewHub()
	go hub.Run()

	if logger == nil {
		logger = slog.Default()
	}
	service := application.NewEventService(repo, hub, logger)
	return &Module{
		service: service,
		handler: events_http.NewEventHandler(service, hub),
		hub:     hub,
		logger:  logger,
	}
}

func (m *Module) HTTPHandler() *events_http.EventHandler { return m.handler }

// Publisher is handed to the storedfile module.
func (m *Module) Publisher() *application.EventService { return m.service }

func (m *Module) Stop() { m.hub.Stop() }

// RunPruner deletes events older than retention once an hour until ctx is
// done. A zero retention keeps events forever.
func (m *Module) RunPruner(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		if n, err := m.service.Prune(ctx, retention); err != nil {
			if ctx.Err() == nil {
				m.logger.Error("event pruning failed", "error", err)
			}
		} else if n > 0 {
			m.logger.Info("pruned events", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
