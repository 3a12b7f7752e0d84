package upload

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nimbusdrive/file-service/internal/blob"
	"github.com/nimbusdrive/file-service/internal/events"
	"github.com/nimbusdrive/file-service/internal/metadata"
	"github.com/nimbusdrive/file-service/internal/models"
	"github.com/nimbusdrive/file-service/internal/queue"
	"github.com/nimbusdrive/file-service/internal/staging"
)

// disposition tells the delivery loop what to do with the message after a
// processing pass.
type disposition int

const (
	// dispositionAck: all effects are durable, remove the job.
	dispositionAck disposition = iota
	// dispositionRetry: transient failure, redeliver later.
	dispositionRetry
	// dispositionTerm: terminal, no redelivery will change the outcome.
	dispositionTerm
)

// fetchBackoff is the pause after a failed queue fetch.
const fetchBackoff = time.Second

// settleTimeout bounds the bookkeeping writes that settle a dead-lettered job.
const settleTimeout = 30 * time.Second

// WorkerConfig bounds the worker's resource use.
type WorkerConfig struct {
	Concurrency int
	JobTimeout  time.Duration
	RetryDelay  time.Duration
}

// Worker drains upload jobs and makes each one's effects durable: blob write,
// status flip, quota increment, staging cleanup. Delivery is at least once,
// so every step is idempotent or guarded.
type Worker struct {
	meta     metadata.Store
	blobs    blob.Store
	staging  *staging.Area
	consumer queue.Consumer
	events   events.Publisher
	cfg      WorkerConfig
	logger   *slog.Logger
}

func NewWorker(meta metadata.Store, blobs blob.Store, area *staging.Area, consumer queue.Consumer, ev events.Publisher, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if ev == nil {
		ev = events.Noop{}
	}
	return &Worker{
		meta:     meta,
		blobs:    blobs,
		staging:  area,
		consumer: consumer,
		events:   ev,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "upload_worker")),
	}
}

// Run fetches and processes jobs until ctx is cancelled, with at most
// Concurrency jobs in flight. In-flight jobs are drained before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", slog.Int("concurrency", w.cfg.Concurrency))

	slots := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup

	for {
		if err := ctx.Err(); err != nil {
			break
		}

		d, err := w.consumer.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if errors.Is(err, queue.ErrMalformedJob) {
				continue
			}
			// Broker errors back off briefly so a broken subscription
			// cannot spin this loop hot.
			select {
			case <-ctx.Done():
			case <-time.After(fetchBackoff):
			}
			continue
		}

		slots <- struct{}{}
		wg.Add(1)
		go func(d queue.Delivery) {
			defer wg.Done()
			defer func() { <-slots }()
			w.Handle(ctx, d)
		}(d)
	}

	wg.Wait()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

// Handle runs one delivery under the job timeout and settles it with the
// queue. A timed-out job is returned for redelivery rather than left
// invisible until the ack deadline.
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) {
	job := d.Job()
	logger := w.logger.With(
		slog.String("job_id", job.JobID),
		slog.String("file_id", job.File.ID),
		slog.Int("attempt", d.Attempts()))

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	disp := w.process(jobCtx, job, logger)

	switch disp {
	case dispositionAck:
		if err := d.Ack(); err != nil {
			logger.Warn("failed to ack job", slog.Any("error", err))
		}
	case dispositionTerm:
		if err := d.Term(); err != nil {
			logger.Warn("failed to terminate job", slog.Any("error", err))
		}
	case dispositionRetry:
		if d.Attempts() >= w.consumer.MaxAttempts() {
			// Retry budget exhausted: dead-letter. The record is flagged
			// failed so the stuck upload is queryable, not just logged.
			// jobCtx may already be expired here (the retryable failure
			// can be the job timeout itself), so the terminal writes run
			// under their own deadline.
			logger.Error("upload job exhausted retries, dead-lettering")
			settleCtx, settle := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
			defer settle()
			w.markFailed(settleCtx, job.File.ID, logger)
			w.removeStaged(job.TempFilePath, logger)
			if err := d.Term(); err != nil {
				logger.Warn("failed to terminate exhausted job", slog.Any("error", err))
			}
			return
		}
		if err := d.Retry(w.cfg.RetryDelay); err != nil {
			logger.Warn("failed to requeue job", slog.Any("error", err))
		}
	}
}

// process performs the durable side effects in their required order:
// the blob write completes and is confirmed before the status flip, and the
// staged file is deleted only once the bytes are safe (or the job is
// terminally dead). Safe to run any number of times for the same job.
func (w *Worker) process(ctx context.Context, job models.UploadJob, logger *slog.Logger) disposition {
	logger.Info("processing upload job")

	rec, err := w.meta.FindFile(ctx, job.File.ID, job.File.OwnerID)
	if errors.Is(err, metadata.ErrNotFound) {
		// Record deleted between enqueue and processing; nothing to
		// finalize, just reclaim the staged bytes.
		logger.Info("file record gone, dropping job")
		w.removeStaged(job.TempFilePath, logger)
		return dispositionTerm
	}
	if err != nil {
		logger.Warn("failed to load file record", slog.Any("error", err))
		return dispositionRetry
	}

	switch rec.Status {
	case models.StatusPresent:
		// A previous pass already completed every effect, including the
		// quota increment; only the staged file may remain.
		logger.Info("record already present, redelivery is a no-op")
		w.removeStaged(job.TempFilePath, logger)
		return dispositionAck
	case models.StatusFailed:
		w.removeStaged(job.TempFilePath, logger)
		return dispositionTerm
	}

	if _, err := w.staging.Stat(job.TempFilePath); err != nil {
		// Staged bytes are gone. If a prior pass already pushed them to
		// the blob store we can still finalize; otherwise the content is
		// unrecoverable and the job is terminally failed.
		exists, exErr := w.blobs.Exists(ctx, rec.StoragePath)
		if exErr != nil {
			logger.Warn("failed to check blob after missing staged file", slog.Any("error", exErr))
			return dispositionRetry
		}
		if !exists {
			logger.Error("staged file missing and blob absent, failing job",
				slog.String("temp_path", job.TempFilePath))
			w.markFailed(ctx, rec.ID, logger)
			return dispositionTerm
		}
		logger.Info("staged file gone but blob present, finalizing")
		return w.finalize(ctx, job, rec, logger)
	}

	src, err := w.staging.Open(job.TempFilePath)
	if err != nil {
		logger.Warn("failed to open staged file", slog.Any("error", err))
		return dispositionRetry
	}

	// Streaming write: memory use stays flat no matter the file size.
	// Re-writing identical bytes to the same key on redelivery is an
	// overwrite, not an error.
	err = w.blobs.Put(ctx, rec.StoragePath, src, rec.Size, rec.MimeType)
	src.Close()
	if err != nil {
		logger.Warn("blob write failed", slog.Any("error", err))
		return dispositionRetry
	}

	return w.finalize(ctx, job, rec, logger)
}

// finalize runs once the bytes are confirmed in the blob store: flip the
// record, account the quota, reclaim staging. The guarded flip is what keeps
// the quota increment single-shot across redeliveries.
func (w *Worker) finalize(ctx context.Context, job models.UploadJob, rec *models.FileRecord, logger *slog.Logger) disposition {
	// The blob write is confirmed, so the staged copy is no longer needed
	// regardless of how the remaining steps go.
	defer w.removeStaged(job.TempFilePath, logger)

	flipped, err := w.meta.MarkFilePresent(ctx, rec.ID)
	if err != nil {
		logger.Warn("failed to mark record present", slog.Any("error", err))
		return dispositionRetry
	}

	if !flipped {
		// The guarded flip matched nothing: a previous pass already
		// finalized this record, or the owner deleted it while the job
		// was in flight. A deleted record leaves the object just written
		// without an owner row, so it must not stay in the blob store.
		if _, ferr := w.meta.FindFile(ctx, rec.ID, rec.OwnerID); errors.Is(ferr, metadata.ErrNotFound) {
			logger.Info("record deleted during processing, removing stored object")
			if derr := w.blobs.Delete(ctx, rec.StoragePath); derr != nil {
				logger.Warn("failed to remove orphaned object",
					slog.String("storage_path", rec.StoragePath), slog.Any("error", derr))
			}
		}
		return dispositionAck
	}

	if err := w.meta.AddStorageUsed(ctx, job.User.ID, rec.Size); err != nil {
		// The flip is already durable, so a redelivery would skip the
		// increment; surface this loudly instead of retrying into a
		// guaranteed no-op.
		logger.Error("quota increment failed after status flip",
			slog.String("owner_id", job.User.ID),
			slog.Int64("size", rec.Size),
			slog.Any("error", err))
	}

	if err := w.events.Publish(ctx, events.SubjectFileReady, readyEvent(rec)); err != nil {
		logger.Warn("failed to publish ready event", slog.Any("error", err))
	}

	logger.Info("upload job completed",
		slog.String("storage_path", rec.StoragePath),
		slog.Int64("size", rec.Size))
	return dispositionAck
}

func (w *Worker) markFailed(ctx context.Context, fileID string, logger *slog.Logger) {
	if err := w.meta.MarkFileFailed(ctx, fileID); err != nil {
		logger.Error("failed to flag record as failed",
			slog.String("file_id", fileID), slog.Any("error", err))
	}
}

func (w *Worker) removeStaged(path string, logger *slog.Logger) {
	if err := w.staging.Remove(path); err != nil {
		logger.Warn("failed to remove staged file",
			slog.String("path", path), slog.Any("error", err))
	}
}

func readyEvent(rec *models.FileRecord) map[string]any {
	return map[string]any{
		"action":       "ready",
		"file_id":      rec.ID,
		"owner_id":     rec.OwnerID,
		"storage_path": rec.StoragePath,
		"size":         rec.Size,
		"hash":         rec.Hash,
	}
}
