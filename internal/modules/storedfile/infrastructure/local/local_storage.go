package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
)

// sniffLength is how much of each upload is kept for content detection.
const sniffLength = 512

const incomingDir = ".incoming"

// LocalStorage keeps file content under a base directory on this node.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the base directory and its staging area.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("local storage path is required")
	}
	if err := os.MkdirAll(filepath.Join(basePath, incomingDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Path returns the absolute location of a generated filename.
func (l *LocalStorage) Path(rel string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(rel))
}

func (l *LocalStorage) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if rel == "" || filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("invalid storage path %q", rel)
	}
	return filepath.Join(l.basePath, clean), nil
}

// Stage copies r into a temporary file inside the storage area so it can be
// renamed into place once its final name is known.
func (l *LocalStorage) Stage(ctx context.Context, r io.Reader) (*domain.StagedFile, error) {
	tmp, err := os.CreateTemp(filepath.Join(l.basePath, incomingDir), "upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tmp.Close()

	staged := &domain.StagedFile{Path: tmp.Name()}
	head := &headWriter{limit: sniffLength}
	n, err := io.Copy(io.MultiWriter(tmp, head), contextReader{ctx: ctx, r: r})
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to save temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to flush temp file: %w", err)
	}
	staged.Size = n
	staged.Head = head.buf
	return staged, nil
}

// Promote moves a staged file to its final location.
func (l *LocalStorage) Promote(staged *domain.StagedFile, rel string) error {
	fullPath, err := l.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Rename(staged.Path, fullPath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// Discard removes a staged file that will not be kept.
func (l *LocalStorage) Discard(staged *domain.StagedFile) {
	if staged != nil && staged.Path != "" {
		_ = os.Remove(staged.Path)
	}
}

// Write stores r at rel, replacing anything already there.
func (l *LocalStorage) Write(ctx context.Context, rel string, r io.Reader) (int64, error) {
	staged, err := l.Stage(ctx, r)
	if err != nil {
		return 0, err
	}
	if err := l.Promote(staged, rel); err != nil {
		l.Discard(staged)
		return 0, err
	}
	return staged.Size, nil
}

// Open opens a stored file for reading.
func (l *LocalStorage) Open(rel string) (*os.File, error) {
	fullPath, err := l.resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotLocal, rel)
	}
	return f, err
}

// Remove deletes a stored file; a missing file is not an error.
func (l *LocalStorage) Remove(rel string) error {
	fullPath, err := l.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// Exists reports whether rel is present on this node.
func (l *LocalStorage) Exists(rel string) bool {
	fullPath, err := l.resolve(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

type headWriter struct {
	buf   []byte
	limit int
}

func (h *headWriter) Write(p []byte) (int, error) {
	if room := h.limit - len(h.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		h.buf = append(h.buf, p[:room]...)
	}
	return len(p), nil
}

// contextReader stops a long copy once the request is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
