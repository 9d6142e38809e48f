package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-share/internal/database"
	"media-share/internal/logging"
	"media-share/internal/media"
	"media-share/internal/mediatypes"
	"media-share/internal/metrics"
	"media-share/internal/middleware"
	"media-share/internal/streaming"
)

// Upload handles POST /media/upload. The file is streamed to the
// intake directory while being hashed, probed for metadata, then moved
// into the content-addressed store and recorded. Identical bytes
// uploaded twice share one blob but get separate media rows.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		writeJSONError(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !mediatypes.IsSupported(mimeType) {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		writeJSONError(w, "only image and video uploads are supported", http.StatusBadRequest)
		return
	}

	intakePath, hash, size, err := h.receive(file)
	if err != nil {
		logging.Error("Receiving upload from user %d: %v", user.ID, err)
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		writeJSONError(w, "upload failed", http.StatusInternalServerError)
		return
	}

	info, err := h.prober.Probe(r.Context(), intakePath, mimeType)
	if err != nil {
		media.Discard(intakePath)
		logging.Error("Probing upload %s (%s): %v", hash, mimeType, err)
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		writeJSONError(w, "upload failed", http.StatusInternalServerError)
		return
	}

	existed, err := media.Place(intakePath, h.storageRoot, hash)
	if err != nil {
		media.Discard(intakePath)
		logging.Error("Placing blob %s: %v", hash, err)
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		writeJSONError(w, "upload failed", http.StatusInternalServerError)
		return
	}

	row, err := h.db.CreateMedia(r.Context(), &database.Media{
		Hash:      hash,
		MediaType: mimeType,
		Width:     info.Width,
		Height:    info.Height,
		Duration:  info.Duration,
		Size:      size,
		CreatedBy: user.ID,
	})
	if err != nil {
		h.cleanupOrphanBlob(r, hash, existed)
		logging.Error("Recording upload %s: %v", hash, err)
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		writeJSONError(w, "upload failed", http.StatusInternalServerError)
		return
	}

	h.deriver.Notify()

	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	metrics.UploadBytes.Add(float64(size))
	logging.Debug("Upload %s by user %d accepted in %s", hash, user.ID, time.Since(start))
	writeJSON(w, http.StatusOK, row)
}

// receive spools the upload into the intake directory, hashing as it
// streams so the file is read exactly once.
func (h *Handlers) receive(file io.Reader) (intakePath, hash string, size int64, err error) {
	tmp, err := os.CreateTemp(h.intakeDir, "upload-*")
	if err != nil {
		return "", "", 0, err
	}
	intakePath = tmp.Name()

	hash, size, err = media.HashReader(io.TeeReader(file, tmp))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		media.Discard(intakePath)
		return "", "", 0, err
	}
	return intakePath, hash, size, nil
}

// cleanupOrphanBlob removes a freshly placed blob after a failed media
// insert, unless some earlier row still references the same hash.
func (h *Handlers) cleanupOrphanBlob(r *http.Request, hash string, existedBefore bool) {
	if existedBefore {
		return
	}
	n, err := h.db.CountMediaByHash(r.Context(), hash)
	if err != nil {
		logging.Warn("Checking references for orphan blob %s: %v", hash, err)
		return
	}
	if n > 0 {
		return
	}
	if err := os.Remove(media.BlobPath(h.storageRoot, hash)); err != nil {
		logging.Warn("Removing orphan blob %s: %v", hash, err)
	}
}

type listRequest struct {
	Type   string  `json:"type"`
	Tags   []int64 `json:"tags"`
	Offset int     `json:"offset"`
}

// ListMedia handles POST /media/list.
func (h *Handlers) ListMedia(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	var req listRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}
	visibility, err := database.ParseVisibility(req.Type)
	if err != nil {
		writeJSONError(w, "type must be Self, Shared, or All", http.StatusBadRequest)
		return
	}
	if req.Offset < 0 {
		writeJSONError(w, "offset must be non-negative", http.StatusBadRequest)
		return
	}

	rows, err := h.db.ListMedia(r.Context(), database.ListOptions{
		ViewerID:   user.ID,
		Visibility: visibility,
		TagIDs:     req.Tags,
		Offset:     req.Offset,
	})
	if err != nil {
		logging.Error("Listing media for user %d: %v", user.ID, err)
		writeJSONError(w, "listing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// lookupVisible resolves a hash path variable to a media row the
// requesting user may see, writing the error response itself on
// failure.
func (h *Handlers) lookupVisible(w http.ResponseWriter, r *http.Request) (*database.Media, bool) {
	user := middleware.UserFrom(r.Context())
	hash := mux.Vars(r)["hash"]
	if !mediatypes.IsValidHashRef(hash) {
		writeJSONError(w, "invalid media hash", http.StatusBadRequest)
		return nil, false
	}

	m, err := h.db.GetVisibleMediaByHash(r.Context(), user.ID, hash)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "media not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logging.Error("Looking up media %s: %v", hash, err)
		writeJSONError(w, "lookup failed", http.StatusInternalServerError)
		return nil, false
	}
	return m, true
}

// Download handles GET /media/download/{hash} and its {thumbnail}
// variant. Thumbnails and images are served whole; video goes through
// the range-aware path.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookupVisible(w, r)
	if !ok {
		return
	}

	if wantThumbnail(mux.Vars(r)["thumbnail"]) {
		path := media.ThumbnailPath(h.storageRoot, m.Hash)
		if _, err := os.Stat(path); err != nil {
			writeJSONError(w, "thumbnail not available", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		http.ServeFile(w, r, path)
		return
	}

	blobPath := media.BlobPath(h.storageRoot, m.Hash)
	if _, err := os.Stat(blobPath); err != nil {
		logging.Error("Blob %s missing for media %d", m.Hash, m.ID)
		writeJSONError(w, "media not available", http.StatusInternalServerError)
		return
	}

	if mediatypes.CategoryOf(m.MediaType) == mediatypes.CategoryVideo {
		streaming.ServeRange(w, r, blobPath, m.MediaType)
		return
	}

	w.Header().Set("Content-Type", m.MediaType)
	http.ServeFile(w, r, blobPath)
}

// wantThumbnail treats anything except an explicit false-y value as a
// request for the thumbnail variant.
func wantThumbnail(v string) bool {
	switch v {
	case "", "0", "false":
		return false
	}
	return true
}

// GetMedia handles GET /media/{hash}: the media row plus the state of
// its derivation job.
func (h *Handlers) GetMedia(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookupVisible(w, r)
	if !ok {
		return
	}

	status := database.JobDone
	if job, err := h.db.JobForMedia(r.Context(), m.ID); err == nil {
		status = job.Status
	} else if !errors.Is(err, database.ErrNotFound) {
		logging.Warn("Reading derive job for media %d: %v", m.ID, err)
	}

	writeJSON(w, http.StatusOK, struct {
		*database.Media
		DeriveStatus string `json:"deriveStatus"`
	}{m, status})
}

// ListSubtitles handles GET /media/listSubtitles/{hash}.
func (h *Handlers) ListSubtitles(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookupVisible(w, r)
	if !ok {
		return
	}

	indexes, err := media.ListSubtitles(h.storageRoot, m.Hash)
	if err != nil {
		logging.Error("Listing subtitles for %s: %v", m.Hash, err)
		writeJSONError(w, "subtitle listing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tracks": len(indexes)})
}

// DownloadSubtitle handles GET /media/downloadSubtitle/{hash}/{index}.
func (h *Handlers) DownloadSubtitle(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookupVisible(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || index < 1 {
		writeJSONError(w, "invalid subtitle index", http.StatusBadRequest)
		return
	}

	path, err := media.FindSubtitle(h.storageRoot, m.Hash, index)
	if err != nil {
		writeJSONError(w, "subtitle not found", http.StatusNotFound)
		return
	}
	contentType := "text/vtt"
	if strings.HasSuffix(path, ".srt") {
		contentType = "application/x-subrip"
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeFile(w, r, path)
}
