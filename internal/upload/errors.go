package upload

import "errors"

var (
	// ErrInsufficientStorage means the quota admission check failed; no
	// record or staged file is created.
	ErrInsufficientStorage = errors.New("insufficient storage space")

	// ErrValidationFailed covers filename policy and size/type violations
	// rejected before any persistent state is created. The more specific
	// sentinels below also match it via errors.Is.
	ErrValidationFailed = errors.New("upload validation failed")

	ErrFileTooLarge    = &validationError{"file exceeds the maximum allowed size"}
	ErrUnsupportedType = &validationError{"file type is not allowed"}
	ErrBadFilename     = &validationError{"invalid filename"}
	ErrEmptyFile       = &validationError{"file is empty"}
	ErrOwnerInactive   = &validationError{"owner account is not active"}

	// ErrStagingWriteFailed means the staged copy could not be written; the
	// partial file is already gone by the time this surfaces.
	ErrStagingWriteFailed = errors.New("failed to stage uploaded file")

	// ErrQueueUnavailable means enqueue failed after the record was created;
	// the record has been compensated away before this is returned.
	ErrQueueUnavailable = errors.New("upload queue unavailable")

	// ErrAllUploadsFailed is returned by the multi-file flow only when not a
	// single file was accepted.
	ErrAllUploadsFailed = errors.New("all file uploads failed")
)

type validationError struct {
	reason string
}

func (e *validationError) Error() string { return e.reason }

// Is makes every specific validation failure match ErrValidationFailed.
func (e *validationError) Is(target error) bool { return target == ErrValidationFailed }
