package middleware

import (
	"context"
	"net/http"

	"media-share/internal/database"
	"media-share/internal/logging"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "media_share_session"

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// UserFrom returns the authenticated user stored by RequireSession, or
// nil on unauthenticated requests.
func UserFrom(ctx context.Context) *database.User {
	u, _ := ctx.Value(userContextKey).(*database.User)
	return u
}

// RequireSession rejects requests without a valid session cookie with
// 401 and slides the session expiry forward on every authenticated
// request.
func RequireSession(db *database.Database) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil {
				unauthorized(w)
				return
			}

			user, err := db.ValidateSession(r.Context(), cookie.Value)
			if err != nil {
				unauthorized(w)
				return
			}

			if err := db.ExtendSession(r.Context(), cookie.Value); err != nil {
				// The request is still authenticated; losing one
				// extension only shortens the session.
				logging.Warn("Extending session for user %d: %v", user.ID, err)
			}
			http.SetCookie(w, SessionCookie(cookie.Value))

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionCookie builds the session cookie for a token with the standard
// attributes and current lifetime.
func SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(database.SessionDuration().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredSessionCookie clears the session cookie on logout.
func ExpiredSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"message":"authentication required"}`))
}
