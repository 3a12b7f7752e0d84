// Package upload contains the asynchronous upload pipeline: intake (the
// synchronous request path) and the worker that finalizes jobs pulled from
// the queue. The two never share memory; everything flows through the
// metadata store and the job queue.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nimbusdrive/file-service/internal/metadata"
	"github.com/nimbusdrive/file-service/internal/models"
	"github.com/nimbusdrive/file-service/internal/queue"
	"github.com/nimbusdrive/file-service/internal/staging"
)

// Options carries the optional per-upload metadata fields.
type Options struct {
	FolderID   *string
	Visibility models.Visibility
	Tags       []string
}

// IncomingFile describes one file of a multi-file upload. Open is called at
// most once, when the file's turn comes in the sequential flow.
type IncomingFile struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// FileError pairs a rejected file with the reason, for the multi-file
// response body.
type FileError struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

// Intake is the synchronous half of the pipeline: it validates, stages,
// records, and enqueues. The caller gets its response once the job is
// durably queued, not once the bytes reach final storage.
type Intake struct {
	meta        metadata.Store
	staging     *staging.Area
	queue       queue.Publisher
	backendName string
	maxFileSize int64
	logger      *slog.Logger
}

func NewIntake(meta metadata.Store, area *staging.Area, q queue.Publisher, backendName string, maxFileSize int64, logger *slog.Logger) *Intake {
	return &Intake{
		meta:        meta,
		staging:     area,
		queue:       q,
		backendName: backendName,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "intake")),
	}
}

// Accept runs the single-file flow: quota admission, staged streaming copy
// with an incremental content digest, provisional record, job enqueue. If
// any step fails, nothing survives: the staged file is deleted, and a record
// created before a failed enqueue is deleted again before the error returns.
func (in *Intake) Accept(ctx context.Context, ownerID string, r io.Reader, name, mimeType string, size int64, opts Options) (*models.FileRecord, error) {
	user, err := in.meta.FindUser(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("resolve owner: %w", err)
	}
	if !user.Active {
		return nil, ErrOwnerInactive
	}

	if err := validateUpload(name, mimeType, size, in.maxFileSize); err != nil {
		return nil, err
	}

	// Admission is a point-in-time check against committed usage; jobs
	// admitted but not yet finalized may transiently over-commit the quota.
	if !user.HasStorageSpace(size) {
		return nil, ErrInsufficientStorage
	}

	tempPath, written, hash, err := in.staging.Write(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStagingWriteFailed, err)
	}
	if written != size {
		in.removeStaged(tempPath)
		return nil, fmt.Errorf("%w: declared %d bytes, received %d", ErrValidationFailed, size, written)
	}

	fileID := uuid.New().String()
	ext := strings.ToLower(filepath.Ext(name))
	storageName := fileID + ext
	storagePath := fmt.Sprintf("users/%s/files/%s", ownerID, storageName)

	visibility := opts.Visibility
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}

	rec := &models.FileRecord{
		ID:             fileID,
		OwnerID:        ownerID,
		Name:           name,
		StorageName:    storageName,
		MimeType:       contentTypeFor(mimeType, name),
		Size:           written,
		Hash:           hash,
		StoragePath:    storagePath,
		StorageBackend: in.backendName,
		FolderID:       opts.FolderID,
		Visibility:     visibility,
		Tags:           pq.StringArray(opts.Tags),
		Status:         models.StatusProcessing,
	}

	if err := in.meta.CreateFile(ctx, rec); err != nil {
		in.removeStaged(tempPath)
		return nil, fmt.Errorf("create file record: %w", err)
	}

	job := models.UploadJob{
		JobID:        uuid.New().String(),
		TempFilePath: tempPath,
		File: models.JobFile{
			ID:          rec.ID,
			OwnerID:     rec.OwnerID,
			StoragePath: rec.StoragePath,
			Size:        rec.Size,
		},
		User: models.JobUser{ID: ownerID},
	}

	if _, err := in.queue.Publish(ctx, job); err != nil {
		// Compensate: without a job the record would sit in processing
		// forever, so it must not survive this request.
		if derr := in.meta.DeleteFile(ctx, rec.ID, ownerID); derr != nil {
			in.logger.Error("failed to delete orphaned record after enqueue failure",
				slog.String("file_id", rec.ID), slog.Any("error", derr))
		}
		in.removeStaged(tempPath)
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	in.logger.Info("upload accepted",
		slog.String("file_id", rec.ID),
		slog.String("owner_id", ownerID),
		slog.String("job_id", job.JobID),
		slog.Int64("size", rec.Size))
	return rec, nil
}

// AcceptAll runs the multi-file flow: one aggregate quota admission, then the
// single-file flow sequentially per file. One file failing does not abort the
// rest; an error is returned only when no file was accepted.
func (in *Intake) AcceptAll(ctx context.Context, ownerID string, files []IncomingFile, opts Options) ([]*models.FileRecord, []FileError, error) {
	user, err := in.meta.FindUser(ctx, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve owner: %w", err)
	}
	if !user.Active {
		return nil, nil, ErrOwnerInactive
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}
	if !user.HasStorageSpace(total) {
		return nil, nil, ErrInsufficientStorage
	}

	var accepted []*models.FileRecord
	var failures []FileError
	for _, f := range files {
		rec, err := in.acceptOne(ctx, ownerID, f, opts)
		if err != nil {
			in.logger.Warn("file rejected in batch upload",
				slog.String("name", f.Name), slog.Any("error", err))
			failures = append(failures, FileError{Name: f.Name, Err: err})
			continue
		}
		accepted = append(accepted, rec)
	}

	if len(accepted) == 0 {
		return nil, failures, ErrAllUploadsFailed
	}
	return accepted, failures, nil
}

func (in *Intake) acceptOne(ctx context.Context, ownerID string, f IncomingFile, opts Options) (*models.FileRecord, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer rc.Close()
	return in.Accept(ctx, ownerID, rc, f.Name, f.MimeType, f.Size, opts)
}

func (in *Intake) removeStaged(path string) {
	if err := in.staging.Remove(path); err != nil {
		in.logger.Warn("failed to remove staged file",
			slog.String("path", path), slog.Any("error", err))
	}
}
