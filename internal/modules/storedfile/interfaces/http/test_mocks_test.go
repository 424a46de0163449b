package http_test

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/saransh1220/s3files/internal/modules/storedfile/application"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
	"github.com/stretchr/testify/mock"
)

type mockFileService struct{ mock.Mock }

func (m *mockFileService) CreateFromUpload(ctx context.Context, in application.UploadInput) (*application.UploadResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.UploadResult), args.Error(1)
}

func (m *mockFileService) CreateFromURL(ctx context.Context, url string, attrs *application.CreateAttrs) (*application.UploadResult, error) {
	args := m.Called(ctx, url, attrs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.UploadResult), args.Error(1)
}

func (m *mockFileService) GetByHash(ctx context.Context, hash string) (*domain.StoredFile, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StoredFile), args.Error(1)
}

func (m *mockFileService) List(ctx context.Context, filter domain.ListFilter) ([]domain.StoredFile, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.StoredFile), args.Int(1), args.Error(2)
}

func (m *mockFileService) ResolveDerivation(nameOrValue string) (domain.DerivationType, error) {
	args := m.Called(nameOrValue)
	return args.Get(0).(domain.DerivationType), args.Error(1)
}

func (m *mockFileService) GetDerivation(ctx context.Context, f *domain.StoredFile, derivation string, processLazy, forceReload bool) (*domain.StoredFile, error) {
	args := m.Called(ctx, f, derivation, processLazy, forceReload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StoredFile), args.Error(1)
}

func (m *mockFileService) GenerateDerivation(ctx context.Context, f *domain.StoredFile, dt domain.DerivationType, original image.Image) (*domain.StoredFile, error) {
	args := m.Called(ctx, f, dt, original)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StoredFile), args.Error(1)
}

func (m *mockFileService) Keep(ctx context.Context, f *domain.StoredFile) (*domain.StoredFile, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StoredFile), args.Error(1)
}

func (m *mockFileService) Delete(ctx context.Context, f *domain.StoredFile) error {
	return m.Called(ctx, f).Error(0)
}

func (m *mockFileService) Locate(ctx context.Context, f *domain.StoredFile) (*application.Location, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.Location), args.Error(1)
}

func (m *mockFileService) Open(f *domain.StoredFile) (io.ReadSeekCloser, error) {
	args := m.Called(f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadSeekCloser), args.Error(1)
}

func (m *mockFileService) DefaultDateExpires(now time.Time) *time.Time {
	args := m.Called(now)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*time.Time)
}

func (m *mockFileService) ResultFor(f *domain.StoredFile) application.ResultFile {
	return application.ResultFile{Hash: f.Hash, Size: f.Size, URL: "https://files.test/" + f.GeneratedFilename, IsImage: f.IsImage()}
}

func (m *mockFileService) Results(res *application.UploadResult, include []string) map[string]application.ResultFile {
	m.Called(res, include)
	out := map[string]application.ResultFile{"file": m.ResultFor(res.File)}
	for k, d := range res.Derivations {
		out[k] = m.ResultFor(d)
	}
	return out
}

type nopSeekCloser struct{ io.ReadSeeker }

func (nopSeekCloser) Close() error { return nil }
