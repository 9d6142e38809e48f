package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"media-share/internal/database"
	"media-share/internal/middleware"
)

// NewRouter wires the full API surface. The /media and /tags subtrees
// sit behind session authentication; account and health endpoints do
// not.
func NewRouter(h *Handlers, db *database.Database) *mux.Router {
	r := mux.NewRouter()

	// Account endpoints
	r.HandleFunc("/users", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/users/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/users/logout", h.Logout).Methods(http.MethodPost)

	// Health endpoints
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.VersionInfo).Methods(http.MethodGet)

	auth := middleware.RequireSession(db)

	media := r.PathPrefix("/media").Subrouter()
	media.Use(auth)
	media.HandleFunc("/upload", h.Upload).Methods(http.MethodPost)
	media.HandleFunc("/list", h.ListMedia).Methods(http.MethodPost)
	media.HandleFunc("/download/{hash}", h.Download).Methods(http.MethodGet, http.MethodHead)
	media.HandleFunc("/download/{hash}/{thumbnail}", h.Download).Methods(http.MethodGet, http.MethodHead)
	media.HandleFunc("/listSubtitles/{hash}", h.ListSubtitles).Methods(http.MethodGet)
	media.HandleFunc("/downloadSubtitle/{hash}/{index}", h.DownloadSubtitle).Methods(http.MethodGet)
	media.HandleFunc("/{hash}/tags", h.TagMedia).Methods(http.MethodPost)
	media.HandleFunc("/{hash}", h.GetMedia).Methods(http.MethodGet)

	tags := r.PathPrefix("/tags").Subrouter()
	tags.Use(auth)
	tags.HandleFunc("", h.CreateTag).Methods(http.MethodPost)
	tags.HandleFunc("/search", h.SearchTags).Methods(http.MethodGet)

	return r
}
