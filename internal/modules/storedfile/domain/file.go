package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RemoteStatus tracks where the bytes of a stored file live.
type RemoteStatus int

const (
	RemoteStatusLocalCorrupt    RemoteStatus = -1 // saved incorrectly on the local server
	RemoteStatusLocalIncomplete RemoteStatus = 0  // still being written, never copied
	RemoteStatusLocalOnly       RemoteStatus = 1  // complete and stays on the local server
	RemoteStatusLocalReady      RemoteStatus = 2  // complete and waiting to be copied
	RemoteStatusInProgress      RemoteStatus = 3  // being copied to S3
	RemoteStatusRemoteOnly      RemoteStatus = 4  // on S3, no longer present locally
)

var remoteStatusNames = map[RemoteStatus]string{
	RemoteStatusLocalCorrupt:    "LOCAL_CORRUPT",
	RemoteStatusLocalIncomplete: "LOCAL_INCOMPLETE",
	RemoteStatusLocalOnly:       "LOCAL_ONLY",
	RemoteStatusLocalReady:      "LOCAL_READY",
	RemoteStatusInProgress:      "IN_PROGRESS",
	RemoteStatusRemoteOnly:      "REMOTE_ONLY",
}

func (s RemoteStatus) String() string {
	if name, ok := remoteStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(s)) + ")"
}

// ParseRemoteStatus accepts either the status name or its integer value.
func ParseRemoteStatus(v string) (RemoteStatus, error) {
	v = strings.TrimSpace(v)
	for s, name := range remoteStatusNames {
		if strings.EqualFold(name, v) {
			return s, nil
		}
	}
	if n, err := strconv.Atoi(v); err == nil {
		if _, ok := remoteStatusNames[RemoteStatus(n)]; ok {
			return RemoteStatus(n), nil
		}
	}
	return 0, fmt.Errorf("unknown remote status %q", v)
}

// IsLocal reports whether the bytes are expected on a node's disk.
func (s RemoteStatus) IsLocal() bool {
	switch s {
	case RemoteStatusLocalIncomplete, RemoteStatusLocalOnly, RemoteStatusLocalReady, RemoteStatusInProgress:
		return true
	}
	return false
}

// IsRemote reports whether an S3 object may exist for the file.
func (s RemoteStatus) IsRemote() bool {
	return s == RemoteStatusInProgress || s == RemoteStatusRemoteOnly
}

// StoredFile is the metadata record for one uploaded or derived file.
//
// A single record type covers originals and their derivations; fields that
// only apply to some kinds of file are left nil.
type StoredFile struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	Hash              string       `json:"hash" db:"hash"`
	OwnerID           *uuid.UUID   `json:"owner_id,omitempty" db:"owner_id"`
	OriginalFilename  string       `json:"original_filename" db:"original_filename"`
	Size              *int64       `json:"size" db:"size"`
	Width             *int         `json:"width" db:"width"`
	Height            *int         `json:"height" db:"height"`
	Duration          *float64     `json:"duration" db:"duration"`
	MimeType          string       `json:"mime_type" db:"mime_type"` // client-supplied unless sniffing was specific
	GeneratedFilename string       `json:"generated_filename" db:"generated_filename"`
	IsValid           *bool        `json:"is_valid" db:"is_valid"`
	RemoteStatus      RemoteStatus `json:"remote_status" db:"remote_status"`
	LocalNode         string       `json:"local_node" db:"local_node"`
	MigrationAttempts int          `json:"migration_attempts" db:"migration_attempts"`
	ClaimedAt         *time.Time   `json:"claimed_at,omitempty" db:"claimed_at"`
	DerivedFromID     *uuid.UUID   `json:"derived_from_id,omitempty" db:"derived_from_id"`
	DerivationType    *int         `json:"derivation_type,omitempty" db:"derivation_type"`
	DateCreated       time.Time    `json:"date_created" db:"date_created"`
	DateStored        *time.Time   `json:"date_stored,omitempty" db:"date_stored"`
	DateExpires       *time.Time   `json:"date_expires,omitempty" db:"date_expires"`
}

var (
	imageTypes = []string{"image/gif", "image/jpeg", "image/png"}    // not included: BMP, TIFF
	videoTypes = []string{"video/mpeg", "video/webm", "video/x-flv"} // not included: Windows Media
	audioTypes = []string{"audio/mpeg", "audio/x-wav"}               // not included: RealAudio, AIFF
)

// BaseMimeType strips parameters such as charset from a MIME type.
func BaseMimeType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func hasType(mimeType string, types []string) bool {
	base := BaseMimeType(mimeType)
	for _, t := range types {
		if t == base {
			return true
		}
	}
	return false
}

// IsImage reports whether the file is an image type the processing code understands.
func (f *StoredFile) IsImage() bool { return hasType(f.MimeType, imageTypes) }

func (f *StoredFile) IsVideo() bool { return hasType(f.MimeType, videoTypes) }

func (f *StoredFile) IsAudio() bool { return hasType(f.MimeType, audioTypes) }

// IsDerived reports whether the file was generated from another stored file.
func (f *StoredFile) IsDerived() bool { return f.DerivationType != nil }

// Valid reports whether a check explicitly passed the file. Unchecked files
// are not valid; derivations are only made from valid sources.
func (f *StoredFile) Valid() bool { return f.IsValid != nil && *f.IsValid }

// Servable reports whether no check has failed the file. IsValid is only
// set when an image check ran, so nil counts.
func (f *StoredFile) Servable() bool { return f.IsValid == nil || *f.IsValid }

// IsReady reports whether the file can be handed out to clients.
func (f *StoredFile) IsReady() bool {
	return f.Servable() && (f.RemoteStatus == RemoteStatusLocalOnly || f.RemoteStatus == RemoteStatusRemoteOnly)
}

// MarkCorrupt flags the file as unusable.
func (f *StoredFile) MarkCorrupt() {
	f.IsValid = BoolPtr(false)
	f.RemoteStatus = RemoteStatusLocalCorrupt
}

// String is a debugging representation; never show it to users.
func (f *StoredFile) String() string {
	shortHash := "-"
	if len(f.Hash) >= 8 {
		shortHash = f.Hash[:8]
	} else if f.Hash != "" {
		shortHash = f.Hash
	}
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = "-"
	}
	return fmt.Sprintf("[StoredFile:%s] %s %s %s x %s %s %s",
		f.ID, shortHash, optional(f.Size), optional(f.Width), optional(f.Height), mimeType, f.RemoteStatus)
}

func optional[T int | int64](v *T) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(int64(*v), 10)
}

func BoolPtr(v bool) *bool { return &v }

func IntPtr(v int) *int { return &v }

func Int64Ptr(v int64) *int64 { return &v }

func TimePtr(v time.Time) *time.Time { return &v }
