package http

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/saransh1220/s3files/internal/gateway/middleware"
	"github.com/saransh1220/s3files/internal/modules/events/domain"
	"github.com/saransh1220/s3files/internal/modules/events/infrastructure/websocket"
	"github.com/saransh1220/s3files/internal/shared/utils"
)

type EventLister interface {
	List(ctx context.Context, userID uuid.UUID, since *time.Time, limit, offset int) ([]domain.Event, error)
}

type EventHandler struct {
	service EventLister
	hub     *websocket.Hub
}

func NewEventHandler(service EventLister, hub *websocket.Hub) *EventHandler {
	return &EventHandler{service: service, hub: hub}
}

// Subscribe upgrades to a websocket that receives the caller's file events.
func (h *EventHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.ContextKeyUserId).(uuid.UUID)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	websocket.ServeWs(h.hub, w, r, userID)
}

// List returns recorded events so a reconnecting client can catch up.
// ?since takes an RFC 3339 timestamp.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.ContextKeyUserId).(uuid.UUID)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	q := r.URL.Query()
	limit := 20
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	var since *time.Time
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid since", err)
			return
		}
		since = &t
	}

	events, err := h.service.List(r.Context(), userID, since, limit, offset)
	if err != nil {
		log.Printf("[EventHandler.List] service error: %v", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to fetch events", nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": events})
}
