package database

import (
	"context"
	"errors"
	"testing"
)

func TestClaimPendingJobOrderAndEmpty(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, d, "alice")

	first := insertTestMedia(t, d, u.ID, "0000000000000000000000000000000000000001")
	second := insertTestMedia(t, d, u.ID, "0000000000000000000000000000000000000002")

	job1, err := d.ClaimPendingJob(ctx)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if job1.MediaID != first.ID {
		t.Fatalf("first claim media = %d, want %d", job1.MediaID, first.ID)
	}
	if job1.Status != JobRunning {
		t.Fatalf("claimed status = %q, want running", job1.Status)
	}

	job2, err := d.ClaimPendingJob(ctx)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if job2.MediaID != second.ID {
		t.Fatalf("second claim media = %d, want %d", job2.MediaID, second.ID)
	}

	if _, err := d.ClaimPendingJob(ctx); !errors.Is(err, ErrNoJob) {
		t.Fatalf("empty queue error = %v, want ErrNoJob", err)
	}
}

func TestMarkJobFailedRetriesThenParks(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, d, "alice")
	m := insertTestMedia(t, d, u.ID, "0000000000000000000000000000000000000003")

	for attempt := 1; attempt <= MaxJobAttempts; attempt++ {
		job, err := d.ClaimPendingJob(ctx)
		if err != nil {
			t.Fatalf("claim attempt %d: %v", attempt, err)
		}
		retrying, err := d.MarkJobFailed(ctx, job.ID, "ffprobe exploded")
		if err != nil {
			t.Fatalf("fail attempt %d: %v", attempt, err)
		}
		wantRetry := attempt < MaxJobAttempts
		if retrying != wantRetry {
			t.Fatalf("attempt %d retrying = %v, want %v", attempt, retrying, wantRetry)
		}
	}

	job, err := d.JobForMedia(ctx, m.ID)
	if err != nil {
		t.Fatalf("JobForMedia: %v", err)
	}
	if job.Status != JobFailed {
		t.Fatalf("final status = %q, want failed", job.Status)
	}
	if job.Attempts != MaxJobAttempts {
		t.Fatalf("attempts = %d, want %d", job.Attempts, MaxJobAttempts)
	}
	if job.LastError != "ffprobe exploded" {
		t.Fatalf("last error = %q", job.LastError)
	}
}

func TestMarkJobDone(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, d, "alice")
	m := insertTestMedia(t, d, u.ID, "0000000000000000000000000000000000000004")

	job, err := d.ClaimPendingJob(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := d.MarkJobDone(ctx, job.ID); err != nil {
		t.Fatalf("MarkJobDone: %v", err)
	}

	got, err := d.JobForMedia(ctx, m.ID)
	if err != nil {
		t.Fatalf("JobForMedia: %v", err)
	}
	if got.Status != JobDone {
		t.Fatalf("status = %q, want done", got.Status)
	}
}

func TestRequeueInterruptedJobs(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, d, "alice")
	insertTestMedia(t, d, u.ID, "0000000000000000000000000000000000000005")

	if _, err := d.ClaimPendingJob(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	n, err := d.RequeueInterruptedJobs(ctx)
	if err != nil {
		t.Fatalf("RequeueInterruptedJobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued = %d, want 1", n)
	}

	if _, err := d.ClaimPendingJob(ctx); err != nil {
		t.Fatalf("reclaim after requeue: %v", err)
	}
}

func TestCountPendingJobs(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, d, "alice")

	insertTestMedia(t, d, u.ID, "0000000000000000000000000000000000000006")
	insertTestMedia(t, d, u.ID, "0000000000000000000000000000000000000007")

	n, err := d.CountPendingJobs(ctx)
	if err != nil {
		t.Fatalf("CountPendingJobs: %v", err)
	}
	if n != 2 {
		t.Fatalf("pending = %d, want 2", n)
	}

	job, err := d.ClaimPendingJob(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := d.MarkJobDone(ctx, job.ID); err != nil {
		t.Fatalf("MarkJobDone: %v", err)
	}

	n, err = d.CountPendingJobs(ctx)
	if err != nil {
		t.Fatalf("CountPendingJobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
}
