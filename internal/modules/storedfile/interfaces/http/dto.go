package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/saransh1220/s3files/internal/modules/storedfile/application"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
)

// ImportRequest asks the server to fetch a file from a URL.
type ImportRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Keep     bool   `json:"keep"`
}

// FileResponse is the metadata view of a stored file.
type FileResponse struct {
	ID               uuid.UUID  `json:"id"`
	Hash             string     `json:"hash"`
	OriginalFilename string     `json:"original_filename"`
	MimeType         string     `json:"mime_type"`
	Size             *int64     `json:"size"`
	Width            *int       `json:"width"`
	Height           *int       `json:"height"`
	URL              string     `json:"url"`
	IsImage          bool       `json:"is_image"`
	IsVideo          bool       `json:"is_video"`
	IsAudio          bool       `json:"is_audio"`
	IsReady          bool       `json:"is_ready"`
	Status           string     `json:"status"`
	Derivation       string     `json:"derivation,omitempty"`
	DerivedFrom      *uuid.UUID `json:"derived_from,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StoredAt         *time.Time `json:"stored_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// ToFileResponse combines the record with its client-facing result view.
func ToFileResponse(f *domain.StoredFile, result application.ResultFile, derivation string) FileResponse {
	return FileResponse{
		ID:               f.ID,
		Hash:             f.Hash,
		OriginalFilename: f.OriginalFilename,
		MimeType:         f.MimeType,
		Size:             f.Size,
		Width:            f.Width,
		Height:           f.Height,
		URL:              result.URL,
		IsImage:          result.IsImage,
		IsVideo:          result.IsVideo,
		IsAudio:          result.IsAudio,
		IsReady:          f.IsReady(),
		Status:           f.RemoteStatus.String(),
		Derivation:       derivation,
		DerivedFrom:      f.DerivedFromID,
		CreatedAt:        f.DateCreated,
		StoredAt:         f.DateStored,
		ExpiresAt:        f.DateExpires,
	}
}

// ListResponse wraps a page of files the way the other list endpoints do.
type ListResponse struct {
	Data     []FileResponse `json:"data"`
	Metadata ListMetadata   `json:"metadata"`
}

type ListMetadata struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
