package application

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
	"github.com/saransh1220/s3files/internal/modules/storedfile/infrastructure/fetch"
	"github.com/saransh1220/s3files/internal/modules/storedfile/infrastructure/imageproc"
)

const (
	RemoteModeLocal = "local"
	RemoteModeS3    = "s3"

	derivedFilename = "_auto_generated.jpg"
	derivedMimeType = "image/jpeg"
	unknownFilename = "_unknown_"
)

// Config controls how files are named, checked and handed out.
type Config struct {
	RemoteMode        string
	AutoExpire        time.Duration // zero keeps uploads forever
	CheckImages       bool
	SplitLevels       int
	SplitChars        int
	HashSecret        string
	InternalURL       string
	ExternalURL       string
	NodeID            string
	ResultDerivations []string
	PresignTTL        time.Duration
	MaxFetchSize      int64
	DumpDerivations   bool
}

// UploadInput describes one incoming upload.
type UploadInput struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	OwnerID     *uuid.UUID
}

// CreateAttrs overrides the attributes a created file would otherwise get.
type CreateAttrs struct {
	OriginalFilename string
	OwnerID          *uuid.UUID
	DateExpires      *time.Time
}

// UploadResult is a created file plus the derivations produced with it,
// keyed by lower-case derivation name.
type UploadResult struct {
	File        *domain.StoredFile
	Derivations map[string]*domain.StoredFile
}

// Location says where a ready file can be served from.
type Location struct {
	Local       bool
	Path        string
	InternalURL string
	ExternalURL string
	RemoteURL   string
}

type FileService struct {
	repo       domain.Repository
	local      domain.LocalStore
	remote     domain.RemoteStore
	cache      domain.DerivationCache
	events     domain.EventPublisher
	registry   *domain.Registry
	processor  *imageproc.Processor
	clock      domain.Clock
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config
}

// Deps groups the collaborators of FileService. Remote may be nil in local
// mode and Events may be nil when nobody listens.
type Deps struct {
	Repo       domain.Repository
	Local      domain.LocalStore
	Remote     domain.RemoteStore
	Cache      domain.DerivationCache
	Events     domain.EventPublisher
	Registry   *domain.Registry
	Processor  *imageproc.Processor
	Clock      domain.Clock
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewFileService(deps Deps, cfg Config) *FileService {
	s := &FileService{
		repo:       deps.Repo,
		local:      deps.Local,
		remote:     deps.Remote,
		cache:      deps.Cache,
		events:     deps.Events,
		registry:   deps.Registry,
		processor:  deps.Processor,
		clock:      deps.Clock,
		httpClient: deps.HTTPClient,
		logger:     deps.Logger,
		cfg:        cfg,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = domain.RealClock{}
	}
	if s.httpClient == nil {
		s.httpClient = fetch.NewClient(30*time.Second, false)
	}
	if s.processor == nil {
		s.processor = imageproc.NewProcessor(s.logger, cfg.DumpDerivations)
	}
	if s.registry == nil {
		s.registry, _ = domain.NewRegistry(domain.DefaultDerivationTypes())
	}
	if s.cfg.RemoteMode == "" {
		s.cfg.RemoteMode = RemoteModeLocal
	}
	return s
}

// DefaultRemoteStatus is the status of a file that has just been written
// completely.
func (s *FileService) DefaultRemoteStatus() domain.RemoteStatus {
	if s.cfg.RemoteMode == RemoteModeS3 {
		return domain.RemoteStatusLocalReady
	}
	return domain.RemoteStatusLocalOnly
}

func (s *FileService) DefaultDateExpires(now time.Time) *time.Time {
	if s.cfg.AutoExpire <= 0 {
		return nil
	}
	return domain.TimePtr(now.Add(s.cfg.AutoExpire))
}

func (s *FileService) InternalURL(f *domain.StoredFile) string {
	return s.cfg.InternalURL + f.GeneratedFilename
}

func (s *FileService) ExternalURL(f *domain.StoredFile) string {
	return s.cfg.ExternalURL + f.GeneratedFilename
}

// CreateFromUpload stores an upload, checks it and generates its immediate
// derivations. Uploads expire by default until kept.
func (s *FileService) CreateFromUpload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	now := s.clock.Now()
	f := &domain.StoredFile{
		ID:               uuid.New(),
		OwnerID:          in.OwnerID,
		OriginalFilename: in.Filename,
		DateCreated:      now,
		DateExpires:      s.DefaultDateExpires(now),
	}
	return s.create(ctx, f, in.Reader, in.ContentType)
}

// CreateFromHTTPResponse stores the body of resp. Size and MIME type always
// come from the response; attrs may set the filename, owner and expiry.
func (s *FileService) CreateFromHTTPResponse(ctx context.Context, resp *http.Response, attrs *CreateAttrs) (*UploadResult, error) {
	f := &domain.StoredFile{
		ID:               uuid.New(),
		OriginalFilename: unknownFilename,
		DateCreated:      s.clock.Now(),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		f.OriginalFilename = filenameFromPath(resp.Request.URL.Path)
	}
	if attrs != nil {
		if attrs.OriginalFilename != "" {
			f.OriginalFilename = attrs.OriginalFilename
		}
		f.OwnerID = attrs.OwnerID
		f.DateExpires = attrs.DateExpires
	}

	var body io.Reader = resp.Body
	if s.cfg.MaxFetchSize > 0 {
		body = &limitedReader{r: resp.Body, remaining: s.cfg.MaxFetchSize}
	}
	return s.create(ctx, f, body, resp.Header.Get("Content-Type"))
}

// CreateFromURL fetches url and stores the response. Whether non-public
// addresses may be fetched is up to the HTTP client; the default refuses.
func (s *FileService) CreateFromURL(ctx context.Context, url string, attrs *CreateAttrs) (*UploadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", domain.ErrInvalidSource, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: fetch %s: status %d", domain.ErrInvalidSource, url, resp.StatusCode)
	}
	return s.CreateFromHTTPResponse(ctx, resp, attrs)
}

func (s *FileService) create(ctx context.Context, f *domain.StoredFile, r io.Reader, declaredType string) (*UploadResult, error) {
	f.OriginalFilename = domain.TruncateFilename(f.OriginalFilename)
	staged, err := s.local.Stage(ctx, r)
	if err != nil {
		return nil, err
	}

	f.Size = domain.Int64Ptr(staged.Size)
	f.MimeType = chooseMimeType(declaredType, staged.Head)
	f.LocalNode = s.cfg.NodeID
	f.RemoteStatus = domain.RemoteStatusLocalIncomplete

	if err := s.ensureName(f); err != nil {
		s.local.Discard(staged)
		return nil, err
	}
	if err := s.local.Promote(staged, f.GeneratedFilename); err != nil {
		s.local.Discard(staged)
		s.logger.Error("failed to write stored file", "file", f.String(), "error", err)
		f.MarkCorrupt()
	} else {
		f.RemoteStatus = s.DefaultRemoteStatus()
	}

	var original image.Image
	if f.RemoteStatus != domain.RemoteStatusLocalCorrupt && s.cfg.CheckImages && f.IsImage() {
		original = s.checkImage(f)
	}

	if err := s.repo.Create(ctx, f); err != nil {
		if f.RemoteStatus != domain.RemoteStatusLocalCorrupt {
			_ = s.local.Remove(f.GeneratedFilename)
		}
		return nil, fmt.Errorf("failed to save stored file: %w", err)
	}
	uploadsTotal.WithLabelValues(f.RemoteStatus.String()).Inc()

	result := &UploadResult{File: f, Derivations: map[string]*domain.StoredFile{}}
	if f.Valid() && original != nil {
		for key, d := range s.GenerateImmediateDerivations(ctx, f, original) {
			result.Derivations[key] = d
		}
	}
	s.publish(ctx, domain.EventUploaded, f)
	return result, nil
}

// checkImage decodes an image file to record its dimensions. Files that
// fail to decode are kept but flagged invalid.
func (s *FileService) checkImage(f *domain.StoredFile) image.Image {
	fh, err := s.local.Open(f.GeneratedFilename)
	if err != nil {
		f.IsValid = domain.BoolPtr(false)
		return nil
	}
	defer fh.Close()

	img, err := imageproc.Decode(fh)
	if err != nil {
		f.IsValid = domain.BoolPtr(false)
		return nil
	}
	b := img.Bounds()
	f.Width = domain.IntPtr(b.Dx())
	f.Height = domain.IntPtr(b.Dy())
	f.IsValid = domain.BoolPtr(true)
	return img
}

func (s *FileService) ensureName(f *domain.StoredFile) error {
	if f.Hash == "" {
		size := ""
		if f.Size != nil {
			size = strconv.FormatInt(*f.Size, 10)
		}
		hash, err := domain.GenerateHash(s.cfg.HashSecret, f.OriginalFilename, size, f.MimeType)
		if err != nil {
			return err
		}
		f.Hash = hash
		f.GeneratedFilename = ""
	}
	if f.GeneratedFilename == "" {
		name, err := domain.GenerateFilename(f.Hash, f.OriginalFilename, s.cfg.SplitLevels, s.cfg.SplitChars)
		if err != nil {
			return err
		}
		f.GeneratedFilename = name
	}
	return nil
}

// WriteToDisk writes r as the content of f, naming f first if needed. A
// failed write marks f corrupt instead of returning an error; only a failed
// save is reported.
func (s *FileService) WriteToDisk(ctx context.Context, f *domain.StoredFile, r io.Reader, save bool) error {
	if err := s.ensureName(f); err != nil {
		return err
	}
	if f.LocalNode == "" {
		f.LocalNode = s.cfg.NodeID
	}

	n, err := s.local.Write(ctx, f.GeneratedFilename, r)
	if err != nil {
		s.logger.Error("failed to write stored file", "file", f.String(), "error", err)
		f.MarkCorrupt()
	} else {
		f.Size = domain.Int64Ptr(n)
		f.RemoteStatus = s.DefaultRemoteStatus()
	}

	if save {
		if err := s.repo.Update(ctx, f); err != nil {
			return fmt.Errorf("failed to save stored file: %w", err)
		}
	}
	return nil
}

// ResolveDerivation accepts a derivation name or its numeric value.
func (s *FileService) ResolveDerivation(nameOrValue string) (domain.DerivationType, error) {
	if dt, err := s.registry.ByName(nameOrValue); err == nil {
		return dt, nil
	}
	if v, err := strconv.Atoi(nameOrValue); err == nil {
		return s.registry.ByValue(v)
	}
	return domain.DerivationType{}, fmt.Errorf("%w: %q", domain.ErrUnknownDerivation, nameOrValue)
}

// GetDerivation returns the derivation of f named by derivation, generating
// it when its mode allows and processLazy is set. A nil file with a nil
// error means no derivation is available.
//
// A remembered "none" answer is trusted and suppresses generation; pass
// forceReload to look again. Nodes that do not hold the source never
// remember "none", so the owning node can still generate it.
func (s *FileService) GetDerivation(ctx context.Context, f *domain.StoredFile, derivation string, processLazy, forceReload bool) (*domain.StoredFile, error) {
	dt, err := s.ResolveDerivation(derivation)
	if err != nil {
		return nil, err
	}

	derived, allowLazy, err := s.lookupDerivation(ctx, f, dt, forceReload)
	if err != nil {
		return nil, err
	}
	if s.cfg.DumpDerivations {
		s.logger.Info("derivation requested", "derivation", dt.Name, "found", derived != nil, "parent", f.String())
	}

	if derived != nil {
		// corrupt derivations are not regenerated automatically
		if derived.RemoteStatus == domain.RemoteStatusLocalCorrupt {
			return nil, nil
		}
		return derived, nil
	}

	if !allowLazy {
		return nil, nil
	}
	if processLazy && (dt.Mode == domain.DerivationLazy || dt.Mode == domain.DerivationImmediately) {
		return s.GenerateDerivation(ctx, f, dt, nil)
	}
	// only the node holding the source may tell the others not to try
	if s.holdsSource(f) {
		s.remember(ctx, f.ID, dt.Value, nil)
	}
	return nil, nil
}

func (s *FileService) lookupDerivation(ctx context.Context, f *domain.StoredFile, dt domain.DerivationType, forceReload bool) (*domain.StoredFile, bool, error) {
	if !forceReload {
		id, found, err := s.cache.Get(ctx, f.ID, dt.Value)
		if err != nil {
			s.logger.Warn("derivation cache unavailable", "error", err)
		}
		if err == nil && found {
			if id == nil {
				return nil, false, nil
			}
			derived, err := s.repo.GetByID(ctx, *id)
			if err == nil {
				return derived, true, nil
			}
			if !errors.Is(err, domain.ErrFileNotFound) {
				return nil, false, err
			}
			// stale entry; fall through to the database
		}
	}

	derived, err := s.repo.FindDerivation(ctx, f.ID, dt.Value)
	if errors.Is(err, domain.ErrFileNotFound) {
		derived = nil
	} else if err != nil {
		return nil, false, err
	}

	if derived != nil {
		s.remember(ctx, f.ID, dt.Value, &derived.ID)
	}
	return derived, true, nil
}

func (s *FileService) remember(ctx context.Context, parentID uuid.UUID, value int, id *uuid.UUID) {
	if err := s.cache.Set(ctx, parentID, value, id); err != nil {
		s.logger.Warn("failed to cache derivation", "parent", parentID, "derivation", value, "error", err)
	}
}

// GenerateDerivation produces a new derived file of type dt from f. When
// original is nil the source is read from local disk. Any failure leaves
// no derivation, remembered as such, and returns nil without an error;
// only database failures are returned.
func (s *FileService) GenerateDerivation(ctx context.Context, f *domain.StoredFile, dt domain.DerivationType, original image.Image) (*domain.StoredFile, error) {
	if s.cfg.DumpDerivations {
		s.logger.Info("derivation being generated", "derivation", dt.Name, "parent", f.String())
	}

	if f.RemoteStatus == domain.RemoteStatusLocalCorrupt || !f.Valid() {
		reason := "file not explicitly marked valid"
		if f.RemoteStatus == domain.RemoteStatusLocalCorrupt {
			reason = "corrupted source"
		}
		return s.derivationFailed(ctx, f, dt, reason, nil)
	}

	if original == nil {
		if !s.holdsSource(f) {
			// the owning node can still generate it; leave the shared cache alone
			s.logger.Debug("derivation source held elsewhere", "derivation", dt.Name, "parent", f.String(), "node", f.LocalNode)
			derivationsTotal.WithLabelValues(dt.Key(), "elsewhere").Inc()
			return nil, nil
		}
		fh, err := s.local.Open(f.GeneratedFilename)
		if err != nil {
			return s.derivationFailed(ctx, f, dt, "unable to read source", err)
		}
		original, err = imageproc.Decode(fh)
		fh.Close()
		if err != nil {
			return s.derivationFailed(ctx, f, dt, "unable to read source", err)
		}
	}

	out, err := s.processor.Process(original, dt.Operations)
	if err != nil {
		return s.derivationFailed(ctx, f, dt, "unable to process", err)
	}
	buf, err := imageproc.EncodeJPEG(out)
	if err != nil {
		return s.derivationFailed(ctx, f, dt, "unable to encode", err)
	}

	// the record exists before its content so the hash can place the file;
	// it stays incomplete until the write succeeds
	b := out.Bounds()
	sf := &domain.StoredFile{
		ID:               uuid.New(),
		OwnerID:          f.OwnerID,
		OriginalFilename: derivedFilename,
		Size:             domain.Int64Ptr(int64(buf.Len())),
		Width:            domain.IntPtr(b.Dx()),
		Height:           domain.IntPtr(b.Dy()),
		MimeType:         derivedMimeType,
		RemoteStatus:     domain.RemoteStatusLocalIncomplete,
		LocalNode:        s.cfg.NodeID,
		DerivedFromID:    &f.ID,
		DerivationType:   domain.IntPtr(dt.Value),
		DateCreated:      s.clock.Now(),
		DateExpires:      f.DateExpires,
	}
	if err := s.ensureName(sf); err != nil {
		return s.derivationFailed(ctx, f, dt, "unable to name", err)
	}
	if err := s.repo.Create(ctx, sf); err != nil {
		return nil, fmt.Errorf("failed to save derived file: %w", err)
	}

	sf.IsValid = domain.BoolPtr(true)
	if err := s.WriteToDisk(ctx, sf, buf, true); err != nil {
		return nil, err
	}
	if sf.RemoteStatus == domain.RemoteStatusLocalCorrupt {
		return s.derivationFailed(ctx, f, dt, "unable to save", nil)
	}

	if s.cfg.DumpDerivations {
		s.logger.Info("derivation completed", "derivation", dt.Name, "file", sf.String())
	}
	derivationsTotal.WithLabelValues(dt.Key(), "generated").Inc()
	s.remember(ctx, f.ID, dt.Value, &sf.ID)
	s.publish(ctx, domain.EventDerived, sf)
	return sf, nil
}

// holdsSource reports whether the bytes of f are meant to be on this node.
func (s *FileService) holdsSource(f *domain.StoredFile) bool {
	if !f.RemoteStatus.IsLocal() {
		return false
	}
	return f.LocalNode == "" || f.LocalNode == s.cfg.NodeID
}

func (s *FileService) derivationFailed(ctx context.Context, f *domain.StoredFile, dt domain.DerivationType, reason string, err error) (*domain.StoredFile, error) {
	if err != nil {
		s.logger.Error("derivation failed", "derivation", dt.Name, "parent", f.String(), "reason", reason, "error", err)
	} else if s.cfg.DumpDerivations {
		s.logger.Info("derivation failed", "derivation", dt.Name, "parent", f.String(), "reason", reason)
	}
	derivationsTotal.WithLabelValues(dt.Key(), "failed").Inc()
	s.remember(ctx, f.ID, dt.Value, nil)
	return nil, nil
}

// GenerateImmediateDerivations runs every IMMEDIATELY rule against f and
// returns what was produced, keyed by lower-case name.
func (s *FileService) GenerateImmediateDerivations(ctx context.Context, f *domain.StoredFile, original image.Image) map[string]*domain.StoredFile {
	out := make(map[string]*domain.StoredFile)
	if !f.Valid() {
		return out
	}
	if original == nil {
		fh, err := s.local.Open(f.GeneratedFilename)
		if err != nil {
			s.logger.Warn("cannot read source for derivations", "file", f.String(), "error", err)
			return out
		}
		original, err = imageproc.Decode(fh)
		fh.Close()
		if err != nil {
			s.logger.Warn("cannot decode source for derivations", "file", f.String(), "error", err)
			return out
		}
	}

	for _, dt := range s.registry.Immediate() {
		d, err := s.GenerateDerivation(ctx, f, dt, original)
		if err != nil {
			s.logger.Error("failed to record derivation", "derivation", dt.Name, "file", f.String(), "error", err)
			continue
		}
		if d != nil {
			out[dt.Key()] = d
		}
	}
	return out
}

// Keep clears the expiry of a file's family. Called on a derivation it
// keeps the original instead.
func (s *FileService) Keep(ctx context.Context, f *domain.StoredFile) (*domain.StoredFile, error) {
	keepable := f
	if f.IsDerived() && f.DerivedFromID != nil {
		parent, err := s.repo.GetByID(ctx, *f.DerivedFromID)
		if err != nil {
			return nil, err
		}
		keepable = parent
	}
	if err := s.repo.ClearExpiry(ctx, keepable.ID); err != nil {
		return nil, err
	}
	keepable.DateExpires = nil
	return keepable, nil
}

// Delete removes f, its derivations and their content.
func (s *FileService) Delete(ctx context.Context, f *domain.StoredFile) error {
	derivations, err := s.repo.ListDerivations(ctx, f.ID)
	if err != nil {
		return err
	}
	for i := range derivations {
		if err := s.Delete(ctx, &derivations[i]); err != nil && !errors.Is(err, domain.ErrFileNotFound) {
			return err
		}
	}

	if f.GeneratedFilename != "" {
		if err := s.local.Remove(f.GeneratedFilename); err != nil {
			s.logger.Warn("failed to remove local file", "file", f.String(), "error", err)
		}
		if f.RemoteStatus.IsRemote() && s.remote != nil {
			if err := s.remote.Delete(ctx, s.remote.Key(f.GeneratedFilename)); err != nil {
				return err
			}
		}
	}

	if err := s.repo.Delete(ctx, f.ID); err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, f.ID); err != nil {
		s.logger.Warn("failed to invalidate derivation cache", "file", f.ID, "error", err)
	}
	if f.DerivedFromID != nil {
		if err := s.cache.Invalidate(ctx, *f.DerivedFromID); err != nil {
			s.logger.Warn("failed to invalidate derivation cache", "file", *f.DerivedFromID, "error", err)
		}
	}
	s.publish(ctx, domain.EventDeleted, f)
	return nil
}

// Locate works out how f can be served from this node. Remote files get a
// presigned URL, or the public bucket URL when presigning is disabled.
func (s *FileService) Locate(ctx context.Context, f *domain.StoredFile) (*Location, error) {
	if f.RemoteStatus == domain.RemoteStatusLocalCorrupt {
		return nil, domain.ErrFileCorrupt
	}
	if !f.Servable() || f.RemoteStatus == domain.RemoteStatusLocalIncomplete {
		return nil, domain.ErrNotReady
	}

	loc := &Location{
		InternalURL: s.InternalURL(f),
		ExternalURL: s.ExternalURL(f),
	}
	if !f.RemoteStatus.IsLocal() {
		if s.remote == nil {
			return loc, nil
		}
		key := s.remote.Key(f.GeneratedFilename)
		if s.cfg.PresignTTL <= 0 {
			loc.RemoteURL = s.remote.PublicURL(key)
			return loc, nil
		}
		url, err := s.remote.PresignGet(ctx, key, s.cfg.PresignTTL, f.OriginalFilename)
		if err != nil {
			return nil, err
		}
		loc.RemoteURL = url
		return loc, nil
	}

	if !s.local.Exists(f.GeneratedFilename) {
		return loc, domain.ErrNotLocal
	}
	loc.Local = true
	loc.Path = s.local.Path(f.GeneratedFilename)
	return loc, nil
}

// Open returns the content of a locally held file.
func (s *FileService) Open(f *domain.StoredFile) (io.ReadSeekCloser, error) {
	fh, err := s.local.Open(f.GeneratedFilename)
	if err != nil {
		return nil, err
	}
	return fh, nil
}

func (s *FileService) GetByHash(ctx context.Context, hash string) (*domain.StoredFile, error) {
	return s.repo.GetByHash(ctx, hash)
}

func (s *FileService) List(ctx context.Context, filter domain.ListFilter) ([]domain.StoredFile, int, error) {
	return s.repo.List(ctx, filter)
}

// ResultFile is the client-facing summary of a stored file.
type ResultFile struct {
	Hash    string `json:"hash"`
	Size    *int64 `json:"size"`
	URL     string `json:"url"`
	Width   *int   `json:"width"`
	Height  *int   `json:"height"`
	IsImage bool   `json:"is_image"`
	IsVideo bool   `json:"is_video"`
	IsAudio bool   `json:"is_audio"`
}

func (s *FileService) ResultFor(f *domain.StoredFile) ResultFile {
	return ResultFile{
		Hash:    f.Hash,
		Size:    f.Size,
		URL:     s.ExternalURL(f),
		Width:   f.Width,
		Height:  f.Height,
		IsImage: f.IsImage(),
		IsVideo: f.IsVideo(),
		IsAudio: f.IsAudio(),
	}
}

// Results builds the upload response: the file under "file" and each
// requested derivation that was produced, under its lower-case name. A nil
// include uses the configured list.
func (s *FileService) Results(res *UploadResult, include []string) map[string]ResultFile {
	if include == nil {
		include = s.cfg.ResultDerivations
	}
	out := map[string]ResultFile{"file": s.ResultFor(res.File)}
	for _, name := range include {
		key := strings.ToLower(name)
		if d, ok := res.Derivations[key]; ok && d != nil {
			out[key] = s.ResultFor(d)
		}
	}
	return out
}

func (s *FileService) publish(ctx context.Context, t domain.EventType, f *domain.StoredFile) {
	if s.events == nil || f.OwnerID == nil {
		return
	}
	s.events.Publish(ctx, *f.OwnerID, domain.NewFileEvent(t, f, s.ExternalURL(f), s.clock.Now()))
}

// chooseMimeType trusts content detection when it is specific and falls
// back to the declared type otherwise.
func chooseMimeType(declared string, head []byte) string {
	declared = domain.BaseMimeType(declared)
	if len(declared) > domain.MaxMimeTypeLength {
		declared = ""
	}
	detected := mimetype.Detect(head)
	sniffed := domain.BaseMimeType(detected.String())
	if !detected.Is("application/octet-stream") && !detected.Is("text/plain") {
		return sniffed
	}
	if declared != "" {
		return declared
	}
	return sniffed
}

// filenameFromPath picks the last path element, or the last directory for
// a bare directory URL.
func filenameFromPath(p string) string {
	base := p[strings.LastIndex(p, "/")+1:]
	if base == "" {
		dir := strings.TrimSuffix(p, "/")
		base = dir[strings.LastIndex(dir, "/")+1:]
	}
	if base == "" {
		return unknownFilename
	}
	return base
}

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		// read one more byte to tell "exactly at the limit" from "over"
		var one [1]byte
		n, err := l.r.Read(one[:])
		if n > 0 {
			return 0, domain.ErrFileTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
