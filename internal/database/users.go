package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"media-share/internal/logging"
)

const bcryptCost = 12

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// CreateUser registers a new account and its default collection in one
// transaction. Returns ErrUsernameTaken when the name is in use.
func (d *Database) CreateUser(ctx context.Context, username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("create_user")

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, string(hash), now.Unix())
	if err != nil {
		done(err)
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	userID, err := res.LastInsertId()
	if err != nil {
		done(err)
		return nil, fmt.Errorf("reading user id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name, type, owner_id, created_at) VALUES (?, ?, ?, ?)`,
		"Default Collection", CollectionDefault, userID, now.Unix()); err != nil {
		done(err)
		return nil, fmt.Errorf("creating default collection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return nil, fmt.Errorf("committing user: %w", err)
	}
	done(nil)

	logging.Info("Registered user %q (id %d)", username, userID)
	return &User{ID: userID, Username: username, CreatedAt: now}, nil
}

// ValidateCredentials checks a username/password pair and returns the
// matching user. Unknown usernames and wrong passwords both map to
// ErrInvalidCredentials so callers cannot distinguish them.
func (d *Database) ValidateCredentials(ctx context.Context, username, password string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("validate_credentials")

	var (
		user    User
		hash    string
		created int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username).Scan(&user.ID, &user.Username, &hash, &created)
	done(err)
	if errors.Is(err, sql.ErrNoRows) {
		// Burn a compare anyway so timing does not leak which usernames exist.
		bcrypt.CompareHashAndPassword([]byte("$2a$12$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	user.CreatedAt = time.Unix(created, 0)
	return &user, nil
}

// GetUserByID fetches a single user row.
func (d *Database) GetUserByID(ctx context.Context, id int64) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("get_user")

	var (
		user    User
		created int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM users WHERE id = ?`,
		id).Scan(&user.ID, &user.Username, &created)
	done(err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user %d: %w", id, err)
	}
	user.CreatedAt = time.Unix(created, 0)
	return &user, nil
}

// UpdatePassword replaces a user's password hash and revokes all of
// their sessions. Used by the resetpw tool.
func (d *Database) UpdatePassword(ctx context.Context, username, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("update_password")

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE username = ?`,
		string(hash), username)
	if err != nil {
		done(err)
		return fmt.Errorf("updating password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		done(err)
		return fmt.Errorf("checking update: %w", err)
	}
	if n == 0 {
		done(nil)
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = (SELECT id FROM users WHERE username = ?)`,
		username); err != nil {
		done(err)
		return fmt.Errorf("revoking sessions: %w", err)
	}

	err = tx.Commit()
	done(err)
	if err != nil {
		return fmt.Errorf("committing password update: %w", err)
	}

	logging.Info("Password updated for user %q", username)
	return nil
}

// ListUsernames returns all usernames, ordered by id. Used by the
// resetpw tool's status output.
func (d *Database) ListUsernames(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("list_usernames")

	rows, err := d.db.QueryContext(ctx, `SELECT username FROM users ORDER BY id`)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			done(err)
			return nil, fmt.Errorf("scanning username: %w", err)
		}
		names = append(names, name)
	}
	err = rows.Err()
	done(err)
	if err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return names, nil
}
