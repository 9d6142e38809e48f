package deriver

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-share/internal/database"
	"media-share/internal/media"
)

func setupRunner(t *testing.T) (*Runner, *database.Database, string) {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	root := t.TempDir()
	r := New(db, root)
	r.pollInterval = 10 * time.Millisecond
	return r, db, root
}

func storeTestImage(t *testing.T, db *database.Database, root string) *database.Media {
	t.Helper()
	ctx := context.Background()

	u, err := db.CreateUser(ctx, "alice", "hunter2!")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}

	hash, size, err := media.HashReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	if err := os.WriteFile(media.BlobPath(root, hash), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing blob: %v", err)
	}

	w, h := int64(64), int64(48)
	m, err := db.CreateMedia(ctx, &database.Media{
		Hash: hash, MediaType: "image/png", Width: &w, Height: &h,
		Size: size, CreatedBy: u.ID,
	})
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}
	return m
}

func waitForJob(t *testing.T, db *database.Database, mediaID int64, want string) *database.DeriveJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := db.JobForMedia(context.Background(), mediaID)
		if err != nil {
			t.Fatalf("JobForMedia: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job for media %d never reached %q", mediaID, want)
	return nil
}

func TestRunnerDerivesImageThumbnail(t *testing.T) {
	r, db, root := setupRunner(t)
	m := storeTestImage(t, db, root)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()
	r.Notify()

	waitForJob(t, db, m.ID, database.JobDone)

	if _, err := os.Stat(media.ThumbnailPath(root, m.Hash)); err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}
}

func TestRunnerRetriesThenParksMissingBlob(t *testing.T) {
	r, db, _ := setupRunner(t)
	ctx := context.Background()

	u, err := db.CreateUser(ctx, "alice", "hunter2!")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	// Media row without a blob on disk: every attempt fails.
	m, err := db.CreateMedia(ctx, &database.Media{
		Hash: "00000000000000000000000000000000000000ff",
		MediaType: "image/png", Size: 10, CreatedBy: u.ID,
	})
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()
	r.Notify()

	job := waitForJob(t, db, m.ID, database.JobFailed)
	if job.Attempts != database.MaxJobAttempts {
		t.Fatalf("attempts = %d, want %d", job.Attempts, database.MaxJobAttempts)
	}
	if job.LastError == "" {
		t.Fatal("failed job has no recorded error")
	}
}

func TestRunnerRequeuesInterruptedOnStart(t *testing.T) {
	r, db, root := setupRunner(t)
	m := storeTestImage(t, db, root)

	// Simulate a crash mid-job: claim it so it sits in running.
	if _, err := db.ClaimPendingJob(context.Background()); err != nil {
		t.Fatalf("ClaimPendingJob: %v", err)
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	waitForJob(t, db, m.ID, database.JobDone)
}

func TestNotifyDoesNotBlock(t *testing.T) {
	r, _, _ := setupRunner(t)
	// No workers running; repeated notifications must coalesce.
	for i := 0; i < 10; i++ {
		r.Notify()
	}
}

func TestStopBeforeStart(t *testing.T) {
	r, _, _ := setupRunner(t)
	r.Stop()
}
