package http

import (
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/saransh1220/s3files/internal/gateway/middleware"
	"github.com/saransh1220/s3files/internal/modules/storedfile/application"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
	"github.com/saransh1220/s3files/internal/shared/utils"
)

const (
	ServerNginx  = "nginx"
	ServerApache = "apache"
	ServerDirect = "direct"

	uploadField     = "uploaded_file"
	maxMemory       = 32 << 20
	defaultPageSize = 20
	maxPageSize     = 100

	contentSecurityPolicy = "default-src 'none'; sandbox"
)

// HandlerConfig tunes how FileHandler accepts and serves files.
type HandlerConfig struct {
	// ServerType picks how local content is handed out: nginx answers
	// X-Accel-Redirect, apache answers X-Sendfile, direct streams it here.
	ServerType    string
	MaxUploadSize int64
	DumpResponses bool
}

// FileHandler serves the /files routes.
type FileHandler struct {
	service FileService
	cfg     HandlerConfig
	now     func() time.Time
}

// NewFileHandler defaults to streaming content itself when no server type
// is configured.
func NewFileHandler(service FileService, cfg HandlerConfig) *FileHandler {
	if cfg.ServerType == "" {
		cfg.ServerType = ServerDirect
	}
	return &FileHandler{service: service, cfg: cfg, now: time.Now}
}

// Upload stores the multipart field "uploaded_file" and answers with the
// file and its immediate derivations.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	if h.cfg.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			log.Printf("[FileHandler.Upload] upload exceeds %d bytes", h.cfg.MaxUploadSize)
			utils.WriteError(w, http.StatusRequestEntityTooLarge, "file too large", nil)
			return
		}
		log.Printf("[FileHandler.Upload] ParseMultipartForm error: %v", err)
		utils.WriteError(w, http.StatusBadRequest, "invalid multipart form", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, uploadField+" is required", nil)
		return
	}
	defer file.Close()

	res, err := h.service.CreateFromUpload(r.Context(), application.UploadInput{
		Reader:      file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		OwnerID:     &userID,
	})
	if err != nil {
		log.Printf("[FileHandler.Upload] create failed: %v", err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("[FileHandler.Upload] stored %s (%s) for user %s", res.File.Hash, res.File.MimeType, userID)
	h.writeJSON(w, "Upload", http.StatusCreated, h.service.Results(res, derivationsParam(r)))
}

// Import fetches a remote URL into a new stored file.
func (h *FileHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		utils.WriteError(w, http.StatusBadRequest, "url must be an absolute http(s) URL", nil)
		return
	}

	attrs := &application.CreateAttrs{OriginalFilename: req.Filename, OwnerID: &userID}
	if !req.Keep {
		attrs.DateExpires = h.service.DefaultDateExpires(h.now().UTC())
	}

	res, err := h.service.CreateFromURL(r.Context(), u.String(), attrs)
	if err != nil {
		log.Printf("[FileHandler.Import] import of %s failed: %v", u.Redacted(), err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, "Import", http.StatusCreated, h.service.Results(res, derivationsParam(r)))
}

// List returns the caller's originals, newest first.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	filter := domain.ListFilter{OwnerID: &userID, OriginalsOnly: true, Limit: limit, Offset: offset}
	if s := q.Get("status"); s != "" {
		status, err := domain.ParseRemoteStatus(s)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid status", err)
			return
		}
		filter.Status = &status
	}

	files, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		log.Printf("[FileHandler.List] list failed: %v", err)
		h.writeServiceError(w, err)
		return
	}

	data := make([]FileResponse, 0, len(files))
	for i := range files {
		data = append(data, ToFileResponse(&files[i], h.service.ResultFor(&files[i]), ""))
	}
	h.writeJSON(w, "List", http.StatusOK, ListResponse{
		Data:     data,
		Metadata: ListMetadata{Total: total, Limit: limit, Offset: offset},
	})
}

// Get returns the metadata of a file. Anyone holding the hash may read it.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, ok := h.fileByHash(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, "Get", http.StatusOK, h.response(f))
}

// Content hands out the bytes of a file, or points the client at them.
func (h *FileHandler) Content(w http.ResponseWriter, r *http.Request) {
	f, ok := h.fileByHash(w, r)
	if !ok {
		return
	}

	loc, err := h.service.Locate(r.Context(), f)
	if errors.Is(err, domain.ErrNotLocal) && loc != nil && loc.ExternalURL != "" {
		// held by another node; the public URL reaches it
		http.Redirect(w, r, loc.ExternalURL, http.StatusFound)
		return
	}
	if err != nil {
		log.Printf("[FileHandler.Content] cannot serve %s: %v", f.Hash, err)
		h.writeServiceError(w, err)
		return
	}

	if !loc.Local {
		target := loc.RemoteURL
		if target == "" {
			target = loc.ExternalURL
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	contentType, disposition := servingHeaders(f.MimeType, r.URL.Query().Get("download") == "true")
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": f.OriginalFilename}))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", contentSecurityPolicy)

	switch h.cfg.ServerType {
	case ServerNginx:
		w.Header().Set("X-Accel-Redirect", loc.InternalURL)
		w.WriteHeader(http.StatusOK)
	case ServerApache:
		w.Header().Set("X-Sendfile", loc.Path)
		w.WriteHeader(http.StatusOK)
	default:
		rc, err := h.service.Open(f)
		if err != nil {
			log.Printf("[FileHandler.Content] open %s failed: %v", f.Hash, err)
			h.writeServiceError(w, err)
			return
		}
		defer rc.Close()
		http.ServeContent(w, r, f.OriginalFilename, f.DateCreated, rc)
	}
}

// GetDerivation looks a derivation up, generating it when its mode allows.
// ?lazy=false only looks, ?reload=true ignores the cached answer.
func (h *FileHandler) GetDerivation(w http.ResponseWriter, r *http.Request) {
	f, ok := h.fileByHash(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	processLazy := q.Get("lazy") != "false"
	reload := q.Get("reload") == "true"

	name := r.PathValue("name")
	d, err := h.service.GetDerivation(r.Context(), f, name, processLazy, reload)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if d == nil {
		utils.WriteError(w, http.StatusNotFound, "derivation not available", nil)
		return
	}
	h.writeJSON(w, "GetDerivation", http.StatusOK, h.response(d))
}

// GenerateDerivation produces a derivation on request, including MANUAL
// ones. An existing derivation is returned as is unless ?reload=true, which
// replaces it.
func (h *FileHandler) GenerateDerivation(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFileByHash(w, r)
	if !ok {
		return
	}
	dt, err := h.service.ResolveDerivation(r.PathValue("name"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	existing, err := h.service.GetDerivation(r.Context(), f, dt.Name, false, true)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if existing != nil {
		if r.URL.Query().Get("reload") != "true" {
			h.writeJSON(w, "GenerateDerivation", http.StatusOK, h.response(existing))
			return
		}
		if err := h.service.Delete(r.Context(), existing); err != nil && !errors.Is(err, domain.ErrFileNotFound) {
			log.Printf("[FileHandler.GenerateDerivation] failed to drop old %s: %v", dt.Name, err)
			h.writeServiceError(w, err)
			return
		}
	}

	d, err := h.service.GenerateDerivation(r.Context(), f, dt, nil)
	if err != nil {
		log.Printf("[FileHandler.GenerateDerivation] %s of %s failed: %v", dt.Name, f.Hash, err)
		h.writeServiceError(w, err)
		return
	}
	if d == nil {
		utils.WriteError(w, http.StatusConflict, "derivation could not be generated", nil)
		return
	}
	h.writeJSON(w, "GenerateDerivation", http.StatusCreated, h.response(d))
}

// Keep stops a file, and everything derived from it, from expiring.
func (h *FileHandler) Keep(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFileByHash(w, r)
	if !ok {
		return
	}
	kept, err := h.service.Keep(r.Context(), f)
	if err != nil {
		log.Printf("[FileHandler.Keep] keep %s failed: %v", f.Hash, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, "Keep", http.StatusOK, h.response(kept))
}

// Delete removes a file the caller owns along with its derivations.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFileByHash(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), f); err != nil {
		log.Printf("[FileHandler.Delete] delete %s failed: %v", f.Hash, err)
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// servingHeaders decides how stored bytes go out. Only media types keep
// their type and may be rendered inline; anything else, HTML and SVG
// included, is a download of opaque bytes so uploads cannot script the API
// origin.
func servingHeaders(mimeType string, download bool) (contentType, disposition string) {
	base := domain.BaseMimeType(mimeType)
	media := base != "image/svg+xml" &&
		(strings.HasPrefix(base, "image/") || strings.HasPrefix(base, "video/") || strings.HasPrefix(base, "audio/"))
	if !media {
		return "application/octet-stream", "attachment"
	}
	if download {
		return base, "attachment"
	}
	return base, "inline"
}

func (h *FileHandler) fileByHash(w http.ResponseWriter, r *http.Request) (*domain.StoredFile, bool) {
	hash := r.PathValue("hash")
	if len(hash) != domain.HashLength {
		utils.WriteError(w, http.StatusNotFound, "file not found", nil)
		return nil, false
	}
	f, err := h.service.GetByHash(r.Context(), hash)
	if err != nil {
		h.writeServiceError(w, err)
		return nil, false
	}
	return f, true
}

func (h *FileHandler) ownedFileByHash(w http.ResponseWriter, r *http.Request) (*domain.StoredFile, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return nil, false
	}
	f, ok := h.fileByHash(w, r)
	if !ok {
		return nil, false
	}
	role, _ := r.Context().Value(middleware.ContextKeyRole).(string)
	if role != "admin" && (f.OwnerID == nil || *f.OwnerID != userID) {
		h.writeServiceError(w, domain.ErrForbidden)
		return nil, false
	}
	return f, true
}

func (h *FileHandler) response(f *domain.StoredFile) FileResponse {
	name := ""
	if f.DerivationType != nil {
		if dt, err := h.service.ResolveDerivation(strconv.Itoa(*f.DerivationType)); err == nil {
			name = dt.Key()
		}
	}
	return ToFileResponse(f, h.service.ResultFor(f), name)
}

func (h *FileHandler) writeJSON(w http.ResponseWriter, op string, status int, body any) {
	if h.cfg.DumpResponses {
		if b, err := json.Marshal(body); err == nil {
			log.Printf("[FileHandler.%s] response %d: %s", op, status, b)
		}
	}
	utils.WriteJSON(w, status, body)
}

func (h *FileHandler) writeServiceError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrFileNotFound):
		utils.WriteError(w, http.StatusNotFound, "file not found", nil)
	case errors.Is(err, domain.ErrUnknownDerivation):
		utils.WriteError(w, http.StatusNotFound, "unknown derivation", nil)
	case errors.Is(err, domain.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, domain.ErrNotReady):
		utils.WriteError(w, http.StatusConflict, "file is not ready", nil)
	case errors.Is(err, domain.ErrFileCorrupt):
		utils.WriteError(w, http.StatusConflict, "file is corrupt", nil)
	case errors.Is(err, domain.ErrNotLocal):
		utils.WriteError(w, http.StatusNotFound, "file is not available", nil)
	case errors.Is(err, domain.ErrInvalidSource):
		// the cause may describe the internal network
		utils.WriteError(w, http.StatusBadRequest, "could not fetch source", nil)
	case errors.Is(err, domain.ErrFileTooLarge), errors.As(err, &tooLarge):
		utils.WriteError(w, http.StatusRequestEntityTooLarge, "file too large", nil)
	default:
		utils.WriteError(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

// derivationsParam reads ?derivations=a,b; absent means the configured set.
func derivationsParam(r *http.Request) []string {
	v, ok := r.URL.Query()["derivations"]
	if !ok {
		return nil
	}
	out := []string{}
	for _, part := range strings.Split(strings.Join(v, ","), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
