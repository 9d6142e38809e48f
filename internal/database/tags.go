package database

import (
	"context"
	"fmt"
	"time"
)

// UpsertTag creates the tag if absent and returns it either way. The
// second return is true when this call created the row, so handlers can
// answer 201 vs 200.
func (d *Database) UpsertTag(ctx context.Context, namespace, tagName string) (*Tag, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("upsert_tag")

	now := time.Now()
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO tags (namespace, tag_name, type, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, tag_name) DO NOTHING`,
		namespace, tagName, TagUser, now.Unix())
	if err != nil {
		done(err)
		return nil, false, fmt.Errorf("upserting tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		done(err)
		return nil, false, fmt.Errorf("checking tag upsert: %w", err)
	}
	created := n > 0

	var (
		tag Tag
		ts  int64
	)
	err = d.db.QueryRowContext(ctx,
		`SELECT id, namespace, tag_name, type, created_at FROM tags WHERE namespace = ? AND tag_name = ?`,
		namespace, tagName).Scan(&tag.ID, &tag.Namespace, &tag.TagName, &tag.Type, &ts)
	done(err)
	if err != nil {
		return nil, false, fmt.Errorf("reading tag back: %w", err)
	}
	tag.CreatedAt = time.Unix(ts, 0)
	return &tag, created, nil
}

// SearchTags returns tags whose name starts with the query, scoped to a
// namespace when the query contains "ns:prefix". Tags whose ids appear
// in exclude are dropped so pickers can hide already-applied tags.
func (d *Database) SearchTags(ctx context.Context, query string, exclude []int64, limit int) ([]*Tag, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("search_tags")

	namespace, prefix := "", query
	if i := indexColon(query); i >= 0 {
		namespace, prefix = query[:i], query[i+1:]
	}

	sqlQuery := `SELECT id, namespace, tag_name, type, created_at FROM tags WHERE tag_name LIKE ? ESCAPE '\'`
	args := []any{escapeLike(prefix) + "%"}
	if namespace != "" {
		sqlQuery += ` AND namespace = ?`
		args = append(args, namespace)
	}
	for _, id := range exclude {
		sqlQuery += ` AND id != ?`
		args = append(args, id)
	}
	sqlQuery += ` ORDER BY namespace, tag_name LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("searching tags: %w", err)
	}
	defer rows.Close()

	out := []*Tag{}
	for rows.Next() {
		var (
			tag Tag
			ts  int64
		)
		if err := rows.Scan(&tag.ID, &tag.Namespace, &tag.TagName, &tag.Type, &ts); err != nil {
			done(err)
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tag.CreatedAt = time.Unix(ts, 0)
		out = append(out, &tag)
	}
	err = rows.Err()
	done(err)
	if err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	return out, nil
}

func indexColon(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// AddTagsToMedia attaches every tag id to the media row. Pairs that
// already exist are skipped.
func (d *Database) AddTagsToMedia(ctx context.Context, mediaID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("add_tags_to_media")

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tag_media (tag_id, media_id) VALUES (?, ?)
			 ON CONFLICT(tag_id, media_id) DO NOTHING`,
			tagID, mediaID); err != nil {
			done(err)
			return fmt.Errorf("tagging media %d with %d: %w", mediaID, tagID, err)
		}
	}

	err = tx.Commit()
	done(err)
	if err != nil {
		return fmt.Errorf("committing tags: %w", err)
	}
	return nil
}

// TagsForMedia returns every tag attached to the media row.
func (d *Database) TagsForMedia(ctx context.Context, mediaID int64) ([]*Tag, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("tags_for_media")

	rows, err := d.db.QueryContext(ctx,
		`SELECT t.id, t.namespace, t.tag_name, t.type, t.created_at
		 FROM tags t INNER JOIN tag_media tm ON tm.tag_id = t.id
		 WHERE tm.media_id = ? ORDER BY t.namespace, t.tag_name`, mediaID)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("listing tags for media %d: %w", mediaID, err)
	}
	defer rows.Close()

	out := []*Tag{}
	for rows.Next() {
		var (
			tag Tag
			ts  int64
		)
		if err := rows.Scan(&tag.ID, &tag.Namespace, &tag.TagName, &tag.Type, &ts); err != nil {
			done(err)
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tag.CreatedAt = time.Unix(ts, 0)
		out = append(out, &tag)
	}
	err = rows.Err()
	done(err)
	if err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	return out, nil
}
