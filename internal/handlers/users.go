package handlers

import (
	"errors"
	"net/http"

	"media-share/internal/database"
	"media-share/internal/logging"
	"media-share/internal/metrics"
	"media-share/internal/middleware"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *credentialsRequest) validate() error {
	if err := validateUsername(c.Username); err != nil {
		return err
	}
	return validatePassword(c.Password)
}

// Register handles POST /users: creates the account and its default
// collection, then logs the new user straight in.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Username, req.Password)
	if errors.Is(err, database.ErrUsernameTaken) {
		writeJSONError(w, "username already taken", http.StatusBadRequest)
		return
	}
	if err != nil {
		logging.Error("Registering user: %v", err)
		writeJSONError(w, "registration failed", http.StatusInternalServerError)
		return
	}

	sess, err := h.db.CreateSession(r.Context(), user.ID)
	if err != nil {
		logging.Error("Creating session for new user %d: %v", user.ID, err)
		writeJSONError(w, "registration failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, middleware.SessionCookie(sess.Token))
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /users/login. A fresh session is minted on every
// successful login; existing sessions on other devices stay valid
// until they expire.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.db.ValidateCredentials(r.Context(), req.Username, req.Password)
	if errors.Is(err, database.ErrInvalidCredentials) {
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		writeJSONError(w, "invalid username or password", http.StatusBadRequest)
		return
	}
	if err != nil {
		logging.Error("Validating credentials: %v", err)
		writeJSONError(w, "login failed", http.StatusInternalServerError)
		return
	}

	sess, err := h.db.CreateSession(r.Context(), user.ID)
	if err != nil {
		logging.Error("Creating session for user %d: %v", user.ID, err)
		writeJSONError(w, "login failed", http.StatusInternalServerError)
		return
	}

	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	http.SetCookie(w, middleware.SessionCookie(sess.Token))
	writeJSON(w, http.StatusOK, user)
}

// Logout handles POST /users/logout: revokes the presented session and
// clears the cookie. Requests without a session cookie still get the
// clearing cookie back.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		if err := h.db.DeleteSession(r.Context(), cookie.Value); err != nil {
			logging.Warn("Deleting session on logout: %v", err)
		}
	}
	http.SetCookie(w, middleware.ExpiredSessionCookie())
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
