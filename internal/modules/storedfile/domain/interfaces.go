package domain

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows Repository.List.
type ListFilter struct {
	OwnerID       *uuid.UUID
	Status        *RemoteStatus
	OriginalsOnly bool
	Limit         int
	Offset        int
}

// Repository persists StoredFile records.
type Repository interface {
	Create(ctx context.Context, f *StoredFile) error
	Update(ctx context.Context, f *StoredFile) error
	GetByID(ctx context.Context, id uuid.UUID) (*StoredFile, error)
	GetByHash(ctx context.Context, hash string) (*StoredFile, error)
	FindDerivation(ctx context.Context, parentID uuid.UUID, derivationType int) (*StoredFile, error)
	ListDerivations(ctx context.Context, parentID uuid.UUID) ([]StoredFile, error)
	List(ctx context.Context, filter ListFilter) ([]StoredFile, int, error)

	// ClearExpiry clears the expiry date of a file and of all its derivations.
	ClearExpiry(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error

	// ClaimForMigration atomically moves up to limit LOCAL_READY files held by
	// node into IN_PROGRESS and returns them.
	ClaimForMigration(ctx context.Context, node string, limit, maxAttempts int, now time.Time) ([]StoredFile, error)
	MarkStored(ctx context.Context, id uuid.UUID, storedAt time.Time) error
	// ReleaseClaim puts a claimed file back to LOCAL_READY and counts the failed attempt.
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
	ResetStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]StoredFile, error)
}

// StagedFile is upload content written to disk before its final name is known.
type StagedFile struct {
	Path string
	Size int64
	Head []byte // first bytes, for content sniffing
}

// LocalStore keeps file content on this node's disk.
type LocalStore interface {
	Stage(ctx context.Context, r io.Reader) (*StagedFile, error)
	Promote(staged *StagedFile, rel string) error
	Discard(staged *StagedFile)
	Write(ctx context.Context, rel string, r io.Reader) (int64, error)
	Open(rel string) (*os.File, error)
	Remove(rel string) error
	Exists(rel string) bool
	Path(rel string) string
}

// RemoteStore is the S3 side of a migrated file.
type RemoteStore interface {
	Key(generatedFilename string) string
	Upload(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error)
	// PublicURL is the unsigned URL of key, for buckets that allow public reads.
	PublicURL(key string) string
}

// DerivationCache remembers derivation lookups across nodes. A nil id with
// found=true is a remembered "no such derivation".
type DerivationCache interface {
	Get(ctx context.Context, parentID uuid.UUID, derivationType int) (id *uuid.UUID, found bool, err error)
	Set(ctx context.Context, parentID uuid.UUID, derivationType int, id *uuid.UUID) error
	Invalidate(ctx context.Context, parentID uuid.UUID) error
}

// EventPublisher delivers file lifecycle events to the file's owner.
type EventPublisher interface {
	Publish(ctx context.Context, ownerID uuid.UUID, event FileEvent)
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }
