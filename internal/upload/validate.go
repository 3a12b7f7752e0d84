package upload

import (
	"path/filepath"
	"strings"
)

// Extensions that are rejected outright regardless of declared MIME type.
var blockedExtensions = map[string]bool{
	".exe": true,
	".bat": true,
	".cmd": true,
	".com": true,
	".msi": true,
	".scr": true,
	".ps1": true,
}

// validateUpload enforces the synchronous admission rules. Everything here
// fails before any persistent state exists.
func validateUpload(name, mimeType string, size, maxSize int64) error {
	if size <= 0 {
		return ErrEmptyFile
	}
	if maxSize > 0 && size > maxSize {
		return ErrFileTooLarge
	}
	if err := validateFilename(name); err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(name))
	if blockedExtensions[ext] {
		return ErrUnsupportedType
	}
	// A declared MIME type claiming plain content for a blocked container
	// is caught above by extension; beyond that only obvious nonsense is
	// rejected here.
	if mimeType != "" && !strings.Contains(mimeType, "/") {
		return ErrUnsupportedType
	}
	return nil
}

func validateFilename(name string) error {
	if name == "" || len(name) > 255 {
		return ErrBadFilename
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return ErrBadFilename
	}
	if name == "." || name == ".." {
		return ErrBadFilename
	}
	return nil
}

// contentTypeFor falls back from a declared MIME type to one derived from
// the extension, defaulting to a generic binary type.
func contentTypeFor(declared, name string) string {
	if declared != "" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
