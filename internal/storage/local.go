package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Static errors for storage operations.
var (
	// ErrS3NotConfigured is returned by PublishVideo when no delivery
	// bucket is configured.
	ErrS3NotConfigured = errors.New("S3 storage is not configured")
	// ErrEmptyDocument is returned when an uploaded document carries no
	// content.
	ErrEmptyDocument = errors.New("uploaded document is empty")
)

// documentName is the filename every upload's source document is stored
// under; the extraction steps resolve media relative to it.
const documentName = "source.pdf"

// LocalStorage keeps upload artifacts on local disk under one directory
// per upload id. Publishing the composed video requires the S3Storage
// wrapper.
type LocalStorage struct {
	workDir string
}

// NewLocalStorage creates a LocalStorage rooted at workDir, creating the
// directory if needed. An empty workDir falls back to a slidecast
// directory under the system temp dir.
func NewLocalStorage(workDir string) (*LocalStorage, error) {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "slidecast")
	}

	if err := os.MkdirAll(workDir, 0750); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	return &LocalStorage{workDir: workDir}, nil
}

// WorkDir returns the root working directory.
func (s *LocalStorage) WorkDir() string {
	return s.workDir
}

// SaveDocument writes the uploaded document to the upload's working
// directory, replacing any document from a previous submission attempt.
func (s *LocalStorage) SaveDocument(ctx context.Context, uploadID string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("save document: %w", err)
	}

	dir := filepath.Join(s.workDir, uploadID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	path := filepath.Join(dir, documentName)
	f, err := os.Create(path) // #nosec G304 - path derived from a generated upload id
	if err != nil {
		return "", fmt.Errorf("create document file: %w", err)
	}

	written, err := io.Copy(f, data)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close document file: %w", err)
	}
	if written == 0 {
		_ = os.Remove(path)
		return "", ErrEmptyDocument
	}

	return path, nil
}

// Cleanup removes the given working files. Already-absent files are
// fine; other deletion failures are collected and joined.
func (s *LocalStorage) Cleanup(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// PublishVideo is not supported without S3 and returns ErrS3NotConfigured.
func (s *LocalStorage) PublishVideo(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}
