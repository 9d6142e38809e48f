package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media-share/internal/logging"
)

// MaxJobAttempts is how many times a derive job runs before it is
// parked as failed.
const MaxJobAttempts = 3

// ErrNoJob is returned by ClaimPendingJob when the queue is empty.
var ErrNoJob = errors.New("database: no pending derive job")

// ClaimPendingJob atomically moves the oldest pending job to running
// and returns it. The write lock makes the select-then-update safe
// against other claimers in this process.
func (d *Database) ClaimPendingJob(ctx context.Context) (*DeriveJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("claim_job")

	var job DeriveJob
	err := d.db.QueryRowContext(ctx,
		`SELECT id, media_id, attempts, last_error FROM derive_jobs
		 WHERE status = ? ORDER BY id ASC LIMIT 1`, JobPending).
		Scan(&job.ID, &job.MediaID, &job.Attempts, &job.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, ErrNoJob
	}
	if err != nil {
		done(err)
		return nil, fmt.Errorf("selecting pending job: %w", err)
	}

	_, err = d.db.ExecContext(ctx,
		`UPDATE derive_jobs SET status = ?, updated_at = ? WHERE id = ?`,
		JobRunning, time.Now().Unix(), job.ID)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("claiming job %d: %w", job.ID, err)
	}
	job.Status = JobRunning
	return &job, nil
}

// MarkJobDone finishes a job successfully.
func (d *Database) MarkJobDone(ctx context.Context, jobID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("finish_job")

	_, err := d.db.ExecContext(ctx,
		`UPDATE derive_jobs SET status = ?, last_error = '', updated_at = ? WHERE id = ?`,
		JobDone, time.Now().Unix(), jobID)
	done(err)
	if err != nil {
		return fmt.Errorf("finishing job %d: %w", jobID, err)
	}
	return nil
}

// MarkJobFailed records a failed attempt. The job goes back to pending
// until it has burned MaxJobAttempts, then it is parked as failed. The
// returned bool is true when the job will be retried.
func (d *Database) MarkJobFailed(ctx context.Context, jobID int64, cause string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("fail_job")

	var attempts int
	err := d.db.QueryRowContext(ctx,
		`SELECT attempts FROM derive_jobs WHERE id = ?`, jobID).Scan(&attempts)
	if err != nil {
		done(err)
		return false, fmt.Errorf("reading job %d: %w", jobID, err)
	}

	attempts++
	status := JobPending
	if attempts >= MaxJobAttempts {
		status = JobFailed
	}
	_, err = d.db.ExecContext(ctx,
		`UPDATE derive_jobs SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		status, attempts, cause, time.Now().Unix(), jobID)
	done(err)
	if err != nil {
		return false, fmt.Errorf("failing job %d: %w", jobID, err)
	}
	if status == JobFailed {
		logging.Warn("Derive job %d failed permanently after %d attempts: %s", jobID, attempts, cause)
	}
	return status == JobPending, nil
}

// RequeueInterruptedJobs moves running jobs back to pending. Called
// once at startup so work interrupted by a crash or restart is retried.
func (d *Database) RequeueInterruptedJobs(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("requeue_jobs")

	res, err := d.db.ExecContext(ctx,
		`UPDATE derive_jobs SET status = ?, updated_at = ? WHERE status = ?`,
		JobPending, time.Now().Unix(), JobRunning)
	done(err)
	if err != nil {
		return 0, fmt.Errorf("requeueing interrupted jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting requeued jobs: %w", err)
	}
	if n > 0 {
		logging.Info("Requeued %d interrupted derive jobs", n)
	}
	return n, nil
}

// JobForMedia returns the derive job attached to a media row, or
// ErrNotFound when the row predates the job queue.
func (d *Database) JobForMedia(ctx context.Context, mediaID int64) (*DeriveJob, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("job_for_media")

	var (
		job     DeriveJob
		updated int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, media_id, status, attempts, last_error, updated_at
		 FROM derive_jobs WHERE media_id = ? ORDER BY id DESC LIMIT 1`, mediaID).
		Scan(&job.ID, &job.MediaID, &job.Status, &job.Attempts, &job.LastError, &updated)
	done(err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up job for media %d: %w", mediaID, err)
	}
	job.UpdatedAt = time.Unix(updated, 0)
	return &job, nil
}

// CountPendingJobs reports the queue depth, pending plus running.
func (d *Database) CountPendingJobs(ctx context.Context) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	done := observeQuery("count_pending_jobs")

	var n int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM derive_jobs WHERE status IN (?, ?)`,
		JobPending, JobRunning).Scan(&n)
	done(err)
	if err != nil {
		return 0, fmt.Errorf("counting pending jobs: %w", err)
	}
	return n, nil
}
