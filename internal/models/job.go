package models

// JobFile is the slice of the file record an upload job carries on the wire.
type JobFile struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	StoragePath string `json:"storagePath"`
	Size        int64  `json:"size"`
}

type JobUser struct {
	ID string `json:"id"`
}

// UploadJob is the unit of work published to the upload queue. It is created
// by intake once per accepted file and consumed by exactly one worker at a
// time; its job id is independent of the file record id.
type UploadJob struct {
	JobID        string  `json:"jobId"`
	TempFilePath string  `json:"tempFilePath"`
	File         JobFile `json:"file"`
	User         JobUser `json:"user"`
}
