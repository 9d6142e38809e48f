package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"media-share/internal/database"
	"media-share/internal/logging"
	"media-share/internal/mediatypes"
	"media-share/internal/middleware"
)

const tagSearchLimit = 10

type createTagRequest struct {
	Namespace string `json:"namespace"`
	TagName   string `json:"tagName"`
	// MediaHash, when present, attaches the tag to that media row in
	// the same request.
	MediaHash string `json:"mediaHash"`
}

// CreateTag handles POST /tags: 201 when the tag is new, 200 when it
// already existed. Optionally attaches the tag to a media row.
func (h *Handlers) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if err := validateNamespace(req.Namespace); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateTagName(req.TagName); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tag, created, err := h.db.UpsertTag(r.Context(), req.Namespace, req.TagName)
	if err != nil {
		logging.Error("Upserting tag %s:%s: %v", req.Namespace, req.TagName, err)
		writeJSONError(w, "tag creation failed", http.StatusInternalServerError)
		return
	}

	if req.MediaHash != "" {
		if !h.attachTag(w, r, tag, req.MediaHash) {
			return
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, tag)
}

// attachTag links the tag to the media row named by the request's
// mediaHash, honoring visibility. Writes the error response itself and
// returns false on failure.
func (h *Handlers) attachTag(w http.ResponseWriter, r *http.Request, tag *database.Tag, hash string) bool {
	user := middleware.UserFrom(r.Context())
	if !mediatypes.IsValidHashRef(hash) {
		writeJSONError(w, "invalid media hash", http.StatusBadRequest)
		return false
	}
	m, err := h.db.GetVisibleMediaByHash(r.Context(), user.ID, hash)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "media not found", http.StatusNotFound)
		return false
	}
	if err != nil {
		logging.Error("Looking up media %s: %v", hash, err)
		writeJSONError(w, "tagging failed", http.StatusInternalServerError)
		return false
	}
	if err := h.db.AddTagsToMedia(r.Context(), m.ID, []int64{tag.ID}); err != nil {
		logging.Error("Attaching tag %d to media %d: %v", tag.ID, m.ID, err)
		writeJSONError(w, "tagging failed", http.StatusInternalServerError)
		return false
	}
	return true
}

// SearchTags handles GET /tags/search?search=&exclude=. The search
// term may carry a namespace prefix ("ns:name"); exclude is a
// comma-separated list of tag ids to omit.
func (h *Handlers) SearchTags(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("search")

	var exclude []int64
	if raw := r.URL.Query().Get("exclude"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				writeJSONError(w, "exclude must be a comma-separated id list", http.StatusBadRequest)
				return
			}
			exclude = append(exclude, id)
		}
	}

	tags, err := h.db.SearchTags(r.Context(), query, exclude, tagSearchLimit)
	if err != nil {
		logging.Error("Searching tags for %q: %v", query, err)
		writeJSONError(w, "tag search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// TagMedia handles POST /media/{hash}/tags: attach existing tags by id.
func (h *Handlers) TagMedia(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags []int64 `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if len(req.Tags) == 0 {
		writeJSONError(w, "tags must be a non-empty id list", http.StatusBadRequest)
		return
	}

	m, ok := h.lookupVisible(w, r)
	if !ok {
		return
	}
	if err := h.db.AddTagsToMedia(r.Context(), m.ID, req.Tags); err != nil {
		logging.Error("Tagging media %d: %v", m.ID, err)
		writeJSONError(w, "tagging failed", http.StatusInternalServerError)
		return
	}

	tags, err := h.db.TagsForMedia(r.Context(), m.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		logging.Error("Reading tags for media %d: %v", m.ID, err)
		writeJSONError(w, "tagging failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}
