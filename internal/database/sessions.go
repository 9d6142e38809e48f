package database

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"media-share/internal/logging"
	"media-share/internal/metrics"
)

const minSessionDuration = time.Minute

var sessionDuration = time.Hour

// SetSessionDuration overrides the session lifetime. Durations below
// one minute are clamped.
func SetSessionDuration(d time.Duration) {
	if d < minSessionDuration {
		logging.Warn("Session duration %s below minimum, clamping to %s", d, minSessionDuration)
		d = minSessionDuration
	}
	sessionDuration = d
}

// SessionDuration returns the current session lifetime.
func SessionDuration() time.Duration {
	return sessionDuration
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateSession mints a session for the user and returns it with the
// plaintext token set. Only the sha256 digest is stored.
func (d *Database) CreateSession(ctx context.Context, userID int64) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("create_session")

	expires := time.Now().Add(sessionDuration)
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
		hashToken(token), userID, expires.Unix())
	done(err)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading session id: %w", err)
	}

	metrics.ActiveSessions.Inc()
	return &Session{ID: id, Token: token, UserID: userID, ExpiresAt: expires}, nil
}

// ValidateSession resolves a token to its user, or ErrInvalidSession
// when the token is unknown or expired.
func (d *Database) ValidateSession(ctx context.Context, token string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("validate_session")

	var (
		user    User
		created int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, u.created_at
		 FROM sessions s INNER JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash = ? AND s.expires_at > ?`,
		hashToken(token), time.Now().Unix()).Scan(&user.ID, &user.Username, &created)
	done(err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("validating session: %w", err)
	}
	user.CreatedAt = time.Unix(created, 0)
	return &user, nil
}

// ExtendSession pushes the expiry forward by the session duration.
// Expired or unknown tokens are left alone.
func (d *Database) ExtendSession(ctx context.Context, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("extend_session")

	_, err := d.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ? WHERE token_hash = ? AND expires_at > ?`,
		time.Now().Add(sessionDuration).Unix(), hashToken(token), time.Now().Unix())
	done(err)
	if err != nil {
		return fmt.Errorf("extending session: %w", err)
	}
	return nil
}

// DeleteSession revokes a single session by token.
func (d *Database) DeleteSession(ctx context.Context, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("delete_session")

	res, err := d.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token_hash = ?`, hashToken(token))
	done(err)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		metrics.ActiveSessions.Dec()
	}
	return nil
}

// CleanExpiredSessions removes expired rows and returns how many were
// deleted. Run periodically from main.
func (d *Database) CleanExpiredSessions(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("clean_sessions")

	res, err := d.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, time.Now().Unix())
	done(err)
	if err != nil {
		return 0, fmt.Errorf("cleaning sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting cleaned sessions: %w", err)
	}
	if n > 0 {
		metrics.ActiveSessions.Sub(float64(n))
		logging.Debug("Cleaned %d expired sessions", n)
	}
	return n, nil
}
