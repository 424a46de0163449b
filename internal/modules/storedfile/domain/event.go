package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventUploaded        EventType = "file.uploaded"
	EventDerived         EventType = "file.derived"
	EventStored          EventType = "file.stored"
	EventMigrationFailed EventType = "file.migration_failed"
	EventExpired         EventType = "file.expired"
	EventDeleted         EventType = "file.deleted"
)

// FileEvent is pushed to the owner of a file when its state changes.
type FileEvent struct {
	Type       EventType    `json:"type"`
	FileID     uuid.UUID    `json:"file_id"`
	Hash       string       `json:"hash"`
	Status     RemoteStatus `json:"status"`
	StatusName string       `json:"status_name"`
	URL        string       `json:"url,omitempty"`
	At         time.Time    `json:"at"`
}

// NewFileEvent snapshots f for an event of type t.
func NewFileEvent(t EventType, f *StoredFile, url string, at time.Time) FileEvent {
	return FileEvent{
		Type:       t,
		FileID:     f.ID,
		Hash:       f.Hash,
		Status:     f.RemoteStatus,
		StatusName: f.RemoteStatus.String(),
		URL:        url,
		At:         at,
	}
}
