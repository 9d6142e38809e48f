package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-share/internal/logging"
)

// ListPageSize is the fixed page length of media listings.
const ListPageSize = 100

// Visibility selects which media a listing covers, always evaluated
// from the viewer's perspective.
type Visibility string

const (
	// VisibilitySelf lists only media the viewer uploaded.
	VisibilitySelf Visibility = "Self"
	// VisibilityShared lists media in collections shared with the viewer.
	VisibilityShared Visibility = "Shared"
	// VisibilityAll is the union of Self and Shared, deduplicated.
	VisibilityAll Visibility = "All"
)

// ParseVisibility validates a client-supplied visibility string.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilitySelf, VisibilityShared, VisibilityAll:
		return Visibility(s), nil
	}
	return "", fmt.Errorf("unknown visibility %q", s)
}

// ListOptions parameterizes ListMedia. TagIDs, when present, restricts
// results to media carrying every one of the tags.
type ListOptions struct {
	ViewerID   int64
	Visibility Visibility
	TagIDs     []int64
	Offset     int
}

const sharedSubquery = `SELECT cm.media_id FROM collection_media cm
	INNER JOIN collection_shares cs ON cs.collection_id = cm.collection_id
	WHERE cs.user_id = ?`

// CreateMedia records an upload: the media row, its membership in the
// uploader's default collection, and a pending derive job, atomically.
// Returns ErrNoDefaultCollection if the uploader somehow lacks one; the
// whole insert is rolled back in that case.
func (d *Database) CreateMedia(ctx context.Context, m *Media) (*Media, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("create_media")

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var collectionID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM collections WHERE owner_id = ? AND type = ?`,
		m.CreatedBy, CollectionDefault).Scan(&collectionID)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, ErrNoDefaultCollection
	}
	if err != nil {
		done(err)
		return nil, fmt.Errorf("finding default collection: %w", err)
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO media (hash, media_type, width, height, duration, size, created_at, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Hash, m.MediaType, m.Width, m.Height, m.Duration, m.Size, now.Unix(), m.CreatedBy)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("inserting media: %w", err)
	}
	mediaID, err := res.LastInsertId()
	if err != nil {
		done(err)
		return nil, fmt.Errorf("reading media id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collection_media (collection_id, media_id) VALUES (?, ?)`,
		collectionID, mediaID); err != nil {
		done(err)
		return nil, fmt.Errorf("linking media to collection: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO derive_jobs (media_id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		mediaID, JobPending, now.Unix(), now.Unix()); err != nil {
		done(err)
		return nil, fmt.Errorf("enqueueing derive job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return nil, fmt.Errorf("committing media: %w", err)
	}
	done(nil)

	out := *m
	out.ID = mediaID
	out.CreatedAt = now
	logging.Debug("Recorded media %d (%s, %s, %d bytes)", mediaID, out.Hash, out.MediaType, out.Size)
	return &out, nil
}

func scanMedia(scan func(dest ...any) error) (*Media, error) {
	var (
		m       Media
		created int64
	)
	if err := scan(&m.ID, &m.Hash, &m.MediaType, &m.Width, &m.Height,
		&m.Duration, &m.Size, &created, &m.CreatedBy); err != nil {
		return nil, err
	}
	m.CreatedAt = time.Unix(created, 0)
	return &m, nil
}

const mediaColumns = `id, hash, media_type, width, height, duration, size, created_at, created_by`

// GetMediaByID fetches a single media row.
func (d *Database) GetMediaByID(ctx context.Context, id int64) (*Media, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("get_media_by_id")

	row := d.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	m, err := scanMedia(row.Scan)
	done(err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up media %d: %w", id, err)
	}
	return m, nil
}

// GetMediaByHash returns one media row carrying the given content hash.
// Several rows may share a hash; the oldest wins, matching the blob's
// first upload.
func (d *Database) GetMediaByHash(ctx context.Context, hash string) (*Media, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("get_media_by_hash")

	row := d.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE hash = ? ORDER BY id ASC LIMIT 1`, hash)
	m, err := scanMedia(row.Scan)
	done(err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up media %s: %w", hash, err)
	}
	return m, nil
}

// GetVisibleMediaByHash is GetMediaByHash restricted to rows the viewer
// may see: their own uploads or media in collections shared with them.
func (d *Database) GetVisibleMediaByHash(ctx context.Context, viewerID int64, hash string) (*Media, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("get_visible_media")

	row := d.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media
		 WHERE hash = ? AND (created_by = ? OR id IN (`+sharedSubquery+`))
		 ORDER BY id ASC LIMIT 1`,
		hash, viewerID, viewerID)
	m, err := scanMedia(row.Scan)
	done(err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up media %s: %w", hash, err)
	}
	return m, nil
}

// ListMedia returns one page of media visible to the viewer, ordered by
// ascending id so pagination is stable across inserts.
func (d *Database) ListMedia(ctx context.Context, opts ListOptions) ([]*Media, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("list_media")

	var (
		where []string
		args  []any
	)
	switch opts.Visibility {
	case VisibilitySelf:
		where = append(where, `m.created_by = ?`)
		args = append(args, opts.ViewerID)
	case VisibilityShared:
		where = append(where, `m.id IN (`+sharedSubquery+`)`)
		args = append(args, opts.ViewerID)
	default:
		where = append(where, `(m.created_by = ? OR m.id IN (`+sharedSubquery+`))`)
		args = append(args, opts.ViewerID, opts.ViewerID)
	}

	if len(opts.TagIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.TagIDs)), ",")
		where = append(where,
			`m.id IN (SELECT tm.media_id FROM tag_media tm WHERE tm.tag_id IN (`+placeholders+`)
			 GROUP BY tm.media_id HAVING COUNT(DISTINCT tm.tag_id) = ?)`)
		for _, id := range opts.TagIDs {
			args = append(args, id)
		}
		args = append(args, len(opts.TagIDs))
	}

	query := `SELECT m.` + strings.ReplaceAll(mediaColumns, ", ", ", m.") + ` FROM media m
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY m.id ASC LIMIT ? OFFSET ?`
	args = append(args, ListPageSize, opts.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("listing media: %w", err)
	}
	defer rows.Close()

	out := make([]*Media, 0, ListPageSize)
	for rows.Next() {
		m, err := scanMedia(rows.Scan)
		if err != nil {
			done(err)
			return nil, fmt.Errorf("scanning media row: %w", err)
		}
		out = append(out, m)
	}
	err = rows.Err()
	done(err)
	if err != nil {
		return nil, fmt.Errorf("iterating media: %w", err)
	}
	return out, nil
}

// CountMediaByHash reports how many media rows reference the hash.
// Zero means the blob is unreferenced.
func (d *Database) CountMediaByHash(ctx context.Context, hash string) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("count_media_by_hash")

	var n int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media WHERE hash = ?`, hash).Scan(&n)
	done(err)
	if err != nil {
		return 0, fmt.Errorf("counting media for %s: %w", hash, err)
	}
	return n, nil
}
