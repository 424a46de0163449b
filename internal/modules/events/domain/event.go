package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a delivered file event as kept for later listing.
type Event struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Type      string    `json:"type" db:"type"`
	FileID    uuid.UUID `json:"file_id" db:"file_id"`
	Hash      string    `json:"hash" db:"hash"`
	Status    string    `json:"status" db:"status"`
	URL       string    `json:"url,omitempty" db:"url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventRepository interface {
	Create(ctx context.Context, e *Event) error
	ListByUser(ctx context.Context, userID uuid.UUID, since *time.Time, limit, offset int) ([]Event, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
