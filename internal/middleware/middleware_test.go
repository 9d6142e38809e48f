package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"media-share/internal/database"
)

func TestSanitizeLogField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean", "GET /media/list", "GET /media/list"},
		{"newline forging", "ok\n2026-01-01 fake line", "ok 2026-01-01 fake line"},
		{"carriage return", "a\rb", "a b"},
		{"null byte", "a\x00b", "ab"},
		{"ansi escape", "a\x1b[31mred", "a[31mred"},
		{"tab preserved", "a\tb", "a\tb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeLogField(tt.input); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "10.0.0.1:54321", nil, "10.0.0.1"},
		{"x-forwarded-for single", "10.0.0.1:54321", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "203.0.113.7"},
		{"x-forwarded-for chain", "10.0.0.1:54321", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "203.0.113.7"},
		{"x-real-ip", "10.0.0.1:54321", map[string]string{"X-Real-IP": "198.51.100.4"}, "198.51.100.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := getClientIP(r); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"/media/list", "/media/list"},
		{"/media/download/a9993e364706816aba3e25717850c26c9cd0d89d", "/media/download/{hash}"},
		{"/media/downloadSubtitle/a9993e364706816aba3e25717850c26c9cd0d89d/2", "/media/downloadSubtitle/{hash}/{n}"},
		{"/users/login", "/users/login"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func setupAuthDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRequireSession(t *testing.T) {
	db := setupAuthDB(t)
	ctx := context.Background()

	u, err := db.CreateUser(ctx, "alice", "hunter2!")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	sess, err := db.CreateSession(ctx, u.ID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	var seenUser *database.User
	handler := RequireSession(db)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = UserFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/list", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("bogus token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/media/list", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "nope"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("valid session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/media/list", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if seenUser == nil || seenUser.ID != u.ID {
			t.Fatalf("handler saw user %+v, want id %d", seenUser, u.ID)
		}

		// Authenticated responses refresh the cookie.
		cookies := rec.Result().Cookies()
		found := false
		for _, c := range cookies {
			if c.Name == SessionCookieName && c.Value == sess.Token {
				found = true
			}
		}
		if !found {
			t.Fatal("session cookie not refreshed")
		}
	})
}
