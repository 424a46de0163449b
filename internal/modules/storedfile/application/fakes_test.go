package application_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/saransh1220/s3files/internal/modules/storedfile/application"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
	"github.com/saransh1220/s3files/internal/modules/storedfile/infrastructure/cache"
	"github.com/saransh1220/s3files/internal/modules/storedfile/infrastructure/fetch"
	"github.com/saransh1220/s3files/internal/modules/storedfile/infrastructure/local"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ current time.Time }

func (c *fakeClock) Now() time.Time          { return c.current }
func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

// memRepo keeps records in memory with the same status rules as the
// Postgres repository.
type memRepo struct {
	mu    sync.Mutex
	files map[uuid.UUID]domain.StoredFile

	getByIDCalls int
	findCalls    int
}

func newMemRepo() *memRepo { return &memRepo{files: map[uuid.UUID]domain.StoredFile{}} }

func (r *memRepo) Create(_ context.Context, f *domain.StoredFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[f.ID] = *f
	return nil
}

func (r *memRepo) Update(_ context.Context, f *domain.StoredFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[f.ID]; !ok {
		return domain.ErrFileNotFound
	}
	r.files[f.ID] = *f
	return nil
}

func (r *memRepo) get(id uuid.UUID) (*domain.StoredFile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	return &f, ok
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.StoredFile, error) {
	r.mu.Lock()
	r.getByIDCalls++
	r.mu.Unlock()
	f, ok := r.get(id)
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	return f, nil
}

func (r *memRepo) GetByHash(_ context.Context, hash string) (*domain.StoredFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.Hash == hash {
			return &f, nil
		}
	}
	return nil, domain.ErrFileNotFound
}

func (r *memRepo) FindDerivation(_ context.Context, parentID uuid.UUID, derivationType int) (*domain.StoredFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	for _, f := range r.files {
		if f.DerivedFromID != nil && *f.DerivedFromID == parentID && f.DerivationType != nil && *f.DerivationType == derivationType {
			return &f, nil
		}
	}
	return nil, domain.ErrFileNotFound
}

func (r *memRepo) ListDerivations(_ context.Context, parentID uuid.UUID) ([]domain.StoredFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.StoredFile{}
	for _, f := range r.files {
		if f.DerivedFromID != nil && *f.DerivedFromID == parentID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memRepo) List(_ context.Context, filter domain.ListFilter) ([]domain.StoredFile, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.StoredFile{}
	for _, f := range r.files {
		if filter.OwnerID != nil && (f.OwnerID == nil || *f.OwnerID != *filter.OwnerID) {
			continue
		}
		if filter.OriginalsOnly && f.DerivedFromID != nil {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateCreated.After(out[j].DateCreated) })
	return out, len(out), nil
}

func (r *memRepo) ClearExpiry(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, f := range r.files {
		if f.ID == id || (f.DerivedFromID != nil && *f.DerivedFromID == id) {
			f.DateExpires = nil
			r.files[k] = f
			n++
		}
	}
	if n == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[id]; !ok {
		return domain.ErrFileNotFound
	}
	delete(r.files, id)
	return nil
}

func (r *memRepo) ClaimForMigration(_ context.Context, node string, limit, maxAttempts int, now time.Time) ([]domain.StoredFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.StoredFile{}
	for k, f := range r.files {
		if len(out) >= limit {
			break
		}
		if f.RemoteStatus == domain.RemoteStatusLocalReady && f.LocalNode == node && f.MigrationAttempts < maxAttempts {
			f.RemoteStatus = domain.RemoteStatusInProgress
			f.ClaimedAt = domain.TimePtr(now)
			r.files[k] = f
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memRepo) MarkStored(_ context.Context, id uuid.UUID, storedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || f.RemoteStatus != domain.RemoteStatusInProgress {
		return domain.ErrFileNotFound
	}
	f.RemoteStatus = domain.RemoteStatusRemoteOnly
	f.DateStored = domain.TimePtr(storedAt)
	f.ClaimedAt = nil
	r.files[id] = f
	return nil
}

func (r *memRepo) ReleaseClaim(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if ok && f.RemoteStatus == domain.RemoteStatusInProgress {
		f.RemoteStatus = domain.RemoteStatusLocalReady
		f.ClaimedAt = nil
		f.MigrationAttempts++
		r.files[id] = f
	}
	return nil
}

func (r *memRepo) ResetStaleClaims(_ context.Context, claimedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, f := range r.files {
		if f.RemoteStatus == domain.RemoteStatusInProgress && f.ClaimedAt != nil && f.ClaimedAt.Before(claimedBefore) {
			f.RemoteStatus = domain.RemoteStatusLocalReady
			f.ClaimedAt = nil
			f.MigrationAttempts++
			r.files[k] = f
			n++
		}
	}
	return n, nil
}

func (r *memRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.StoredFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.StoredFile{}
	for _, f := range r.files {
		if f.DateExpires != nil && f.DateExpires.Before(now) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DerivedFromID == nil && out[j].DerivedFromID != nil
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRemote struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	uploads   int
	uploadErr error
	existsErr error
}

func newFakeRemote() *fakeRemote { return &fakeRemote{objects: map[string][]byte{}} }

func (f *fakeRemote) Key(generated string) string { return "uploads/" + generated }

func (f *fakeRemote) Upload(_ context.Context, key string, body io.ReadSeeker, _ int64, _ string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.uploads++
	return nil
}

func (f *fakeRemote) Exists(_ context.Context, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeRemote) PublicURL(key string) string { return "https://bucket.test/" + key }

func (f *fakeRemote) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	return out
}

func (f *fakeRemote) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeRemote) PresignGet(_ context.Context, key string, ttl time.Duration, downloadName string) (string, error) {
	return "https://s3.test/" + key + "?ttl=" + ttl.String() + "&name=" + downloadName, nil
}

type recordedEvent struct {
	owner uuid.UUID
	event domain.FileEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) Publish(_ context.Context, owner uuid.UUID, e domain.FileEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{owner: owner, event: e})
}

func (p *fakePublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Type)
	}
	return out
}

func testRegistry(t *testing.T) *domain.Registry {
	t.Helper()
	types := append(domain.DefaultDerivationTypes(),
		domain.DerivationType{
			Value: 1, Name: "preview", Mode: domain.DerivationLazy,
			Operations: []domain.Operation{{Operation: domain.OperationResize, TargetSize: [2]int{40, 40}, ResizeMode: domain.ResizeMaximumSize}},
		},
		domain.DerivationType{
			Value: 2, Name: "banner", Mode: domain.DerivationManual,
			Operations: []domain.Operation{{Operation: domain.OperationResize, TargetSize: [2]int{60, 20}, ResizeMode: domain.ResizeCrop, AnchorHorizontal: domain.AnchorHCenter, AnchorVertical: domain.AnchorVCenter}},
		},
	)
	reg, err := domain.NewRegistry(types)
	require.NoError(t, err)
	return reg
}

type harness struct {
	svc    *application.FileService
	repo   *memRepo
	local  *local.LocalStorage
	remote *fakeRemote
	cache  *cache.MemoryDerivationCache
	events *fakePublisher
	clock  *fakeClock
	cfg    application.Config
}

func newHarness(t *testing.T, mutate func(*application.Config)) *harness {
	t.Helper()
	ls, err := local.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		repo:   newMemRepo(),
		local:  ls,
		remote: newFakeRemote(),
		events: &fakePublisher{},
		clock:  &fakeClock{current: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	h.cache = cache.NewMemoryDerivationCache(time.Hour, h.clock)

	cfg := application.Config{
		RemoteMode:        application.RemoteModeLocal,
		AutoExpire:        24 * time.Hour,
		CheckImages:       true,
		SplitLevels:       2,
		SplitChars:        1,
		HashSecret:        "test-secret",
		InternalURL:       "/internal/",
		ExternalURL:       "https://files.test/",
		NodeID:            "node-a",
		ResultDerivations: []string{"THUMBNAIL"},
		PresignTTL:        time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.cfg = cfg

	h.svc = application.NewFileService(application.Deps{
		Repo:     h.repo,
		Local:    h.local,
		Remote:   h.remote,
		Cache:    h.cache,
		Events:   h.events,
		Registry: testRegistry(t),
		Clock:    h.clock,
		// test servers listen on loopback
		HTTPClient: fetch.NewClient(5*time.Second, true),
	}, cfg)
	return h
}

// peer is another node sharing the harness database, cache and bucket but
// with its own disk.
func (h *harness) peer(t *testing.T, node string) *application.FileService {
	t.Helper()
	ls, err := local.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	cfg := h.cfg
	cfg.NodeID = node
	return application.NewFileService(application.Deps{
		Repo:     h.repo,
		Local:    ls,
		Remote:   h.remote,
		Cache:    h.cache,
		Events:   h.events,
		Registry: testRegistry(t),
		Clock:    h.clock,
	}, cfg)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func imageSize(t *testing.T, h *harness, f *domain.StoredFile) image.Point {
	t.Helper()
	fh, err := h.local.Open(f.GeneratedFilename)
	require.NoError(t, err)
	defer fh.Close()
	img, err := imaging.Decode(fh)
	require.NoError(t, err)
	return img.Bounds().Size()
}
