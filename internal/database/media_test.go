package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func insertTestMedia(t *testing.T, d *Database, ownerID int64, hash string) *Media {
	t.Helper()
	w, h := int64(640), int64(480)
	m, err := d.CreateMedia(context.Background(), &Media{
		Hash:      hash,
		MediaType: "image/png",
		Width:     &w,
		Height:    &h,
		Size:      1234,
		CreatedBy: ownerID,
	})
	if err != nil {
		t.Fatalf("CreateMedia(%s): %v", hash, err)
	}
	return m
}

func shareDefaultCollection(t *testing.T, d *Database, ownerID, withUserID int64) {
	t.Helper()
	var collectionID int64
	err := d.db.QueryRow(
		`SELECT id FROM collections WHERE owner_id = ? AND type = ?`,
		ownerID, CollectionDefault).Scan(&collectionID)
	if err != nil {
		t.Fatalf("finding default collection: %v", err)
	}
	if _, err := d.db.Exec(
		`INSERT INTO collection_shares (collection_id, user_id) VALUES (?, ?)`,
		collectionID, withUserID); err != nil {
		t.Fatalf("sharing collection: %v", err)
	}
}

func TestCreateMediaEnqueuesJobAndJoinsDefault(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, d, "alice")

	m := insertTestMedia(t, d, u.ID, "aabbccddeeff00112233aabbccddeeff00112233")

	job, err := d.JobForMedia(ctx, m.ID)
	if err != nil {
		t.Fatalf("JobForMedia: %v", err)
	}
	if job.Status != JobPending {
		t.Fatalf("job status = %q, want pending", job.Status)
	}

	var linked int
	if err := d.db.QueryRow(
		`SELECT COUNT(*) FROM collection_media WHERE media_id = ?`, m.ID).Scan(&linked); err != nil {
		t.Fatalf("counting collection links: %v", err)
	}
	if linked != 1 {
		t.Fatalf("collection links = %d, want 1", linked)
	}
}

func TestCreateMediaNoDefaultCollection(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, d, "alice")

	if _, err := d.db.Exec(`DELETE FROM collections WHERE owner_id = ?`, u.ID); err != nil {
		t.Fatalf("dropping collections: %v", err)
	}

	_, err := d.CreateMedia(ctx, &Media{
		Hash: "ffff", MediaType: "image/png", Size: 1, CreatedBy: u.ID,
	})
	if !errors.Is(err, ErrNoDefaultCollection) {
		t.Fatalf("error = %v, want ErrNoDefaultCollection", err)
	}

	// The failed upload must not leave a media row behind.
	var count int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM media`).Scan(&count); err != nil {
		t.Fatalf("counting media: %v", err)
	}
	if count != 0 {
		t.Fatalf("media rows = %d, want 0", count)
	}
}

func TestGetMediaByHashPrefersOldest(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	alice := mustCreateUser(t, d, "alice")
	bob := mustCreateUser(t, d, "bob")

	const hash = "0123456789abcdef0123456789abcdef01234567"
	first := insertTestMedia(t, d, alice.ID, hash)
	insertTestMedia(t, d, bob.ID, hash)

	got, err := d.GetMediaByHash(ctx, hash)
	if err != nil {
		t.Fatalf("GetMediaByHash: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("id = %d, want oldest %d", got.ID, first.ID)
	}
}

func TestGetVisibleMediaByHash(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	alice := mustCreateUser(t, d, "alice")
	bob := mustCreateUser(t, d, "bob")
	carol := mustCreateUser(t, d, "carol")

	m := insertTestMedia(t, d, alice.ID, "1111111111111111111111111111111111111111")
	shareDefaultCollection(t, d, alice.ID, bob.ID)

	if _, err := d.GetVisibleMediaByHash(ctx, alice.ID, m.Hash); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
	if _, err := d.GetVisibleMediaByHash(ctx, bob.ID, m.Hash); err != nil {
		t.Fatalf("share recipient denied: %v", err)
	}
	if _, err := d.GetVisibleMediaByHash(ctx, carol.ID, m.Hash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger error = %v, want ErrNotFound", err)
	}
}

func TestListMediaVisibility(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	alice := mustCreateUser(t, d, "alice")
	bob := mustCreateUser(t, d, "bob")

	mine := insertTestMedia(t, d, alice.ID, "aaaa111111111111111111111111111111111111")
	theirs := insertTestMedia(t, d, bob.ID, "bbbb222222222222222222222222222222222222")
	insertTestMedia(t, d, bob.ID, "cccc333333333333333333333333333333333333")
	shareDefaultCollection(t, d, bob.ID, alice.ID)

	tests := []struct {
		vis     Visibility
		wantIDs []int64
	}{
		{VisibilitySelf, []int64{mine.ID}},
		{VisibilityShared, []int64{theirs.ID, theirs.ID + 1}},
		{VisibilityAll, []int64{mine.ID, theirs.ID, theirs.ID + 1}},
	}
	for _, tt := range tests {
		t.Run(string(tt.vis), func(t *testing.T) {
			got, err := d.ListMedia(ctx, ListOptions{ViewerID: alice.ID, Visibility: tt.vis})
			if err != nil {
				t.Fatalf("ListMedia: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d rows, want %d", len(got), len(tt.wantIDs))
			}
			for i, m := range got {
				if m.ID != tt.wantIDs[i] {
					t.Fatalf("row %d id = %d, want %d", i, m.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestListMediaOrderedByID(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	alice := mustCreateUser(t, d, "alice")

	for i := 0; i < 5; i++ {
		insertTestMedia(t, d, alice.ID, fmt.Sprintf("%040d", i))
	}

	got, err := d.ListMedia(ctx, ListOptions{ViewerID: alice.ID, Visibility: VisibilitySelf})
	if err != nil {
		t.Fatalf("ListMedia: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Fatalf("ids not ascending: %d after %d", got[i].ID, got[i-1].ID)
		}
	}
}

func TestListMediaTagIntersection(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	alice := mustCreateUser(t, d, "alice")

	cats := insertTestMedia(t, d, alice.ID, "aaaa000000000000000000000000000000000001")
	both := insertTestMedia(t, d, alice.ID, "aaaa000000000000000000000000000000000002")

	catTag, _, err := d.UpsertTag(ctx, "", "cats")
	if err != nil {
		t.Fatalf("UpsertTag: %v", err)
	}
	vacationTag, _, err := d.UpsertTag(ctx, "trips", "vacation")
	if err != nil {
		t.Fatalf("UpsertTag: %v", err)
	}

	if err := d.AddTagsToMedia(ctx, cats.ID, []int64{catTag.ID}); err != nil {
		t.Fatalf("AddTagsToMedia: %v", err)
	}
	if err := d.AddTagsToMedia(ctx, both.ID, []int64{catTag.ID, vacationTag.ID}); err != nil {
		t.Fatalf("AddTagsToMedia: %v", err)
	}

	got, err := d.ListMedia(ctx, ListOptions{
		ViewerID:   alice.ID,
		Visibility: VisibilitySelf,
		TagIDs:     []int64{catTag.ID, vacationTag.ID},
	})
	if err != nil {
		t.Fatalf("ListMedia: %v", err)
	}
	if len(got) != 1 || got[0].ID != both.ID {
		t.Fatalf("got %d rows, want exactly media %d", len(got), both.ID)
	}
}

func TestListMediaPagination(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	alice := mustCreateUser(t, d, "alice")

	total := ListPageSize + 7
	for i := 0; i < total; i++ {
		insertTestMedia(t, d, alice.ID, fmt.Sprintf("%040d", i))
	}

	page1, err := d.ListMedia(ctx, ListOptions{ViewerID: alice.ID, Visibility: VisibilitySelf})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != ListPageSize {
		t.Fatalf("page 1 length = %d, want %d", len(page1), ListPageSize)
	}

	page2, err := d.ListMedia(ctx, ListOptions{ViewerID: alice.ID, Visibility: VisibilitySelf, Offset: ListPageSize})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 7 {
		t.Fatalf("page 2 length = %d, want 7", len(page2))
	}
	if page2[0].ID <= page1[len(page1)-1].ID {
		t.Fatalf("pages overlap: %d <= %d", page2[0].ID, page1[len(page1)-1].ID)
	}
}
