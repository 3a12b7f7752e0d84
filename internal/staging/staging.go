// Package staging holds inbound upload bytes between the request handler and
// the worker's durable write. Files here are scratch data: anything left
// behind by a crashed process is safe to purge.
package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type Area struct {
	dir    string
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) (*Area, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging dir: %w", err)
	}
	return &Area{
		dir:    abs,
		logger: logger.With(slog.String("component", "staging")),
	}, nil
}

// Write streams r into a new staged file, hashing the bytes as they pass
// through so the caller never has to buffer or re-read the content. A partial
// file is removed before the error is returned.
func (a *Area) Write(r io.Reader) (path string, size int64, hash string, err error) {
	f, err := os.CreateTemp(a.dir, "upload-*")
	if err != nil {
		return "", 0, "", fmt.Errorf("create staged file: %w", err)
	}
	path = f.Name()

	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			a.logger.Warn("failed to remove partial staged file",
				slog.String("path", path), slog.Any("error", rmErr))
		}
		return "", 0, "", fmt.Errorf("write staged file: %w", err)
	}

	return path, size, hex.EncodeToString(h.Sum(nil)), nil
}

// Open returns a read stream over a staged file.
func (a *Area) Open(path string) (io.ReadCloser, error) {
	if err := a.contains(path); err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Stat returns the staged file's size.
func (a *Area) Stat(path string) (int64, error) {
	if err := a.contains(path); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes a staged file. Removing a file that is already gone is not
// an error: cleanup runs from both success and failure paths.
func (a *Area) Remove(path string) error {
	if err := a.contains(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// contains rejects paths outside the staging directory. Staged paths travel
// through the job queue, so they are not trusted blindly on the way back in.
func (a *Area) contains(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if filepath.Dir(abs) != a.dir {
		return fmt.Errorf("path %q is outside the staging area", path)
	}
	return nil
}
