package database

import (
	"context"
	"testing"
)

func TestUpsertTagCreatedFlag(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	tag, created, err := d.UpsertTag(ctx, "animals", "cat")
	if err != nil {
		t.Fatalf("first UpsertTag: %v", err)
	}
	if !created {
		t.Fatal("first upsert reported existing")
	}
	if tag.Type != TagUser {
		t.Fatalf("type = %q, want %q", tag.Type, TagUser)
	}

	again, created, err := d.UpsertTag(ctx, "animals", "cat")
	if err != nil {
		t.Fatalf("second UpsertTag: %v", err)
	}
	if created {
		t.Fatal("second upsert reported created")
	}
	if again.ID != tag.ID {
		t.Fatalf("second upsert id = %d, want %d", again.ID, tag.ID)
	}
}

func TestUpsertTagNamespacesAreDistinct(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	plain, _, err := d.UpsertTag(ctx, "", "cat")
	if err != nil {
		t.Fatalf("UpsertTag: %v", err)
	}
	scoped, _, err := d.UpsertTag(ctx, "animals", "cat")
	if err != nil {
		t.Fatalf("UpsertTag: %v", err)
	}
	if plain.ID == scoped.ID {
		t.Fatal("same id across namespaces")
	}
}

func TestSearchTags(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	seed := []struct{ ns, name string }{
		{"", "cat"},
		{"", "car"},
		{"", "dog"},
		{"animals", "cat"},
	}
	ids := map[string]int64{}
	for _, s := range seed {
		tag, _, err := d.UpsertTag(ctx, s.ns, s.name)
		if err != nil {
			t.Fatalf("UpsertTag(%s:%s): %v", s.ns, s.name, err)
		}
		ids[s.ns+":"+s.name] = tag.ID
	}

	tests := []struct {
		name    string
		query   string
		exclude []int64
		want    int
	}{
		{"prefix matches both namespaces", "ca", nil, 3},
		{"namespace scoped", "animals:ca", nil, 1},
		{"no match", "zebra", nil, 0},
		{"exclude drops a hit", "ca", []int64{ids[":car"]}, 2},
		{"empty prefix in namespace", "animals:", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.SearchTags(ctx, tt.query, tt.exclude, 50)
			if err != nil {
				t.Fatalf("SearchTags: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d tags, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSearchTagsEscapesLikeWildcards(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	if _, _, err := d.UpsertTag(ctx, "", "100%true"); err != nil {
		t.Fatalf("UpsertTag: %v", err)
	}
	if _, _, err := d.UpsertTag(ctx, "", "100x"); err != nil {
		t.Fatalf("UpsertTag: %v", err)
	}

	got, err := d.SearchTags(ctx, "100%", nil, 50)
	if err != nil {
		t.Fatalf("SearchTags: %v", err)
	}
	if len(got) != 1 || got[0].TagName != "100%true" {
		t.Fatalf("wildcard leaked: got %d tags", len(got))
	}
}

func TestAddTagsToMediaIdempotent(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, d, "alice")
	m := insertTestMedia(t, d, u.ID, "dddd000000000000000000000000000000000000")

	tag, _, err := d.UpsertTag(ctx, "", "cats")
	if err != nil {
		t.Fatalf("UpsertTag: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := d.AddTagsToMedia(ctx, m.ID, []int64{tag.ID}); err != nil {
			t.Fatalf("AddTagsToMedia pass %d: %v", i, err)
		}
	}

	got, err := d.TagsForMedia(ctx, m.ID)
	if err != nil {
		t.Fatalf("TagsForMedia: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("tags = %d, want 1", len(got))
	}
}
