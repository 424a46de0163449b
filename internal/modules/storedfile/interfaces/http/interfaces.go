package http

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/saransh1220/s3files/internal/modules/storedfile/application"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
)

// FileService is what the handler needs from application.FileService.
type FileService interface {
	CreateFromUpload(ctx context.Context, in application.UploadInput) (*application.UploadResult, error)
	CreateFromURL(ctx context.Context, url string, attrs *application.CreateAttrs) (*application.UploadResult, error)
	GetByHash(ctx context.Context, hash string) (*domain.StoredFile, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.StoredFile, int, error)
	ResolveDerivation(nameOrValue string) (domain.DerivationType, error)
	GetDerivation(ctx context.Context, f *domain.StoredFile, derivation string, processLazy, forceReload bool) (*domain.StoredFile, error)
	GenerateDerivation(ctx context.Context, f *domain.StoredFile, dt domain.DerivationType, original image.Image) (*domain.StoredFile, error)
	Keep(ctx context.Context, f *domain.StoredFile) (*domain.StoredFile, error)
	Delete(ctx context.Context, f *domain.StoredFile) error
	Locate(ctx context.Context, f *domain.StoredFile) (*application.Location, error)
	Open(f *domain.StoredFile) (io.ReadSeekCloser, error)
	DefaultDateExpires(now time.Time) *time.Time
	ResultFor(f *domain.StoredFile) application.ResultFile
	Results(res *application.UploadResult, include []string) map[string]application.ResultFile
}

var _ FileService = (*application.FileService)(nil)
