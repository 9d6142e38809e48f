package deriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"media-share/internal/database"
	"media-share/internal/logging"
	"media-share/internal/media"
	"media-share/internal/mediatypes"
	"media-share/internal/metrics"
	"media-share/internal/workers"
)

const defaultPollInterval = 10 * time.Second

// Runner drains the derive job queue with a small worker pool. Workers
// wake on Notify after an upload and on a poll ticker so jobs are never
// stranded if a notification is lost.
type Runner struct {
	db          *database.Database
	storageRoot string

	prober      *media.Prober
	thumbnailer *media.Thumbnailer
	subtitles   *media.SubtitleExtractor

	pollInterval time.Duration
	workerCount  int

	notify chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a runner over the shared database and storage root.
func New(db *database.Database, storageRoot string) *Runner {
	return &Runner{
		db:           db,
		storageRoot:  storageRoot,
		prober:       media.NewProber(),
		thumbnailer:  media.NewThumbnailer(),
		subtitles:    media.NewSubtitleExtractor(),
		pollInterval: defaultPollInterval,
		workerCount:  workers.ForMixed(8),
		notify:       make(chan struct{}, 1),
	}
}

// SetTimeout adjusts how long each external tool invocation may run.
func (r *Runner) SetTimeout(d time.Duration) {
	r.prober.Timeout = d
	r.thumbnailer.Timeout = d
	r.subtitles.Timeout = d
}

// Start requeues jobs stranded in the running state and launches the
// worker pool.
func (r *Runner) Start(ctx context.Context) error {
	if _, err := r.db.RequeueInterruptedJobs(ctx); err != nil {
		return fmt.Errorf("requeueing interrupted jobs: %w", err)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	logging.Info("Derive runner started with %d workers", r.workerCount)
	return nil
}

// Stop halts the pool and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Notify wakes a worker. Safe to call from any goroutine; redundant
// notifications coalesce.
func (r *Runner) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		r.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-r.notify:
		case <-ticker.C:
		}
	}
}

// drain claims and processes jobs until the queue is empty.
func (r *Runner) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := r.db.ClaimPendingJob(ctx)
		if errors.Is(err, database.ErrNoJob) {
			return
		}
		if err != nil {
			logging.Error("Claiming derive job: %v", err)
			return
		}
		r.run(ctx, job)
	}
}

func (r *Runner) run(ctx context.Context, job *database.DeriveJob) {
	metrics.DeriveJobsInFlight.Inc()
	defer metrics.DeriveJobsInFlight.Dec()

	start := time.Now()
	err := r.process(ctx, job)
	metrics.DeriveJobDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		if dbErr := r.db.MarkJobDone(ctx, job.ID); dbErr != nil {
			logging.Error("Marking job %d done: %v", job.ID, dbErr)
			return
		}
		metrics.DeriveJobsTotal.WithLabelValues("done").Inc()
		logging.Debug("Derive job %d for media %d done in %s", job.ID, job.MediaID, time.Since(start))
		return
	}

	logging.Warn("Derive job %d for media %d: %v", job.ID, job.MediaID, err)
	retrying, dbErr := r.db.MarkJobFailed(ctx, job.ID, err.Error())
	if dbErr != nil {
		logging.Error("Marking job %d failed: %v", job.ID, dbErr)
		return
	}
	if retrying {
		metrics.DeriveJobsTotal.WithLabelValues("retried").Inc()
	} else {
		metrics.DeriveJobsTotal.WithLabelValues("failed").Inc()
	}
}

func (r *Runner) process(ctx context.Context, job *database.DeriveJob) error {
	m, err := r.db.GetMediaByID(ctx, job.MediaID)
	if err != nil {
		return fmt.Errorf("loading media %d: %w", job.MediaID, err)
	}

	category := mediatypes.CategoryOf(m.MediaType)
	blobPath := media.BlobPath(r.storageRoot, m.Hash)
	thumbPath := media.ThumbnailPath(r.storageRoot, m.Hash)

	if err := r.thumbnailer.Generate(ctx, blobPath, thumbPath, category, m.Duration); err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}

	if category == mediatypes.CategoryVideo {
		n, err := r.subtitles.Extract(ctx, r.storageRoot, m.Hash)
		if err != nil {
			return fmt.Errorf("subtitles: %w", err)
		}
		if n > 0 {
			logging.Debug("Extracted %d subtitle tracks for %s", n, m.Hash)
		}
	}
	return nil
}
