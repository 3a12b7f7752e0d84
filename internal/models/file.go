package models

import (
	"time"

	"github.com/lib/pq"
)

// FileStatus is the lifecycle state of an uploaded file's bytes.
type FileStatus string

const (
	// StatusProcessing means the record exists but the bytes have not yet
	// been confirmed in the blob store.
	StatusProcessing FileStatus = "processing"
	// StatusPresent means the bytes are durably stored at StoragePath.
	StatusPresent FileStatus = "present"
	// StatusFailed is terminal: the upload job exhausted its retries or hit
	// a non-retriable error. Set only by the worker.
	StatusFailed FileStatus = "failed"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

// FileRecord is the metadata row for one uploaded object.
type FileRecord struct {
	ID             string         `db:"id" json:"id"`
	OwnerID        string         `db:"owner_id" json:"owner_id"`
	Name           string         `db:"name" json:"name"`
	StorageName    string         `db:"storage_name" json:"storage_name"`
	MimeType       string         `db:"mime_type" json:"mime_type"`
	Size           int64          `db:"size" json:"size"`
	Hash           string         `db:"hash" json:"hash"`
	StoragePath    string         `db:"storage_path" json:"storage_path"`
	StorageBackend string         `db:"storage_backend" json:"storage_backend"`
	FolderID       *string        `db:"folder_id" json:"folder_id,omitempty"`
	Visibility     Visibility     `db:"visibility" json:"visibility"`
	Tags           pq.StringArray `db:"tags" json:"tags"`
	Status         FileStatus     `db:"status" json:"status"`
	DownloadCount  int64          `db:"download_count" json:"download_count"`
	LastAccessedAt *time.Time     `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// User carries the quota fields the upload path needs. The user aggregate
// itself is owned by the accounts service.
type User struct {
	ID           string `db:"id" json:"id"`
	Active       bool   `db:"active" json:"active"`
	StorageQuota int64  `db:"storage_quota" json:"storage_quota"`
	StorageUsed  int64  `db:"storage_used" json:"storage_used"`
}

// HasStorageSpace reports whether n more bytes fit under the quota.
func (u *User) HasStorageSpace(n int64) bool {
	return u.StorageUsed+n <= u.StorageQuota
}
