// Package metadata is the relational persistence layer for file records and
// user quota fields.
package metadata

import (
	"context"
	"errors"

	"github.com/nimbusdrive/file-service/internal/models"
)

// ErrNotFound is returned when a record or user does not exist (or is not
// visible to the given owner).
var ErrNotFound = errors.New("metadata: not found")

type Store interface {
	CreateFile(ctx context.Context, rec *models.FileRecord) error
	FindFile(ctx context.Context, id, ownerID string) (*models.FileRecord, error)
	ListFiles(ctx context.Context, ownerID string, folderID *string) ([]models.FileRecord, error)
	DeleteFile(ctx context.Context, id, ownerID string) error

	// MarkFilePresent flips a record from processing to present. It reports
	// whether this call performed the flip; a record that is already present
	// (or failed, or gone) is left untouched. Status never moves backwards.
	MarkFilePresent(ctx context.Context, id string) (bool, error)

	// MarkFileFailed moves a record from processing to the terminal failed
	// state. Present records are never demoted.
	MarkFileFailed(ctx context.Context, id string) error

	// TouchFileAccess bumps the download counter and last-accessed time.
	TouchFileAccess(ctx context.Context, id string) error

	FindUser(ctx context.Context, id string) (*models.User, error)

	// AddStorageUsed atomically adds delta bytes to the owner's usage.
	// Concurrent job completions for the same user must not lose updates,
	// so this is a single in-database increment.
	AddStorageUsed(ctx context.Context, ownerID string, delta int64) error

	// ReleaseStorageUsed atomically subtracts delta, flooring at zero.
	ReleaseStorageUsed(ctx context.Context, ownerID string, delta int64) error
}
