// Package storage keeps the pipeline's media artifacts: the uploaded
// document, per-slide working media, and the composed video. It defines
// the Storage port plus local-disk and S3-backed implementations.
package storage

import (
	"context"
	"io"
)

// Storage is the port for upload artifact files. Working media lives on
// local disk for the duration of a run; the composed video is optionally
// published through S3 for delivery.
type Storage interface {
	// SaveDocument writes an uploaded document under the upload's
	// working directory and returns its path. Saving again for the same
	// upload id replaces the previous document.
	SaveDocument(ctx context.Context, uploadID string, data io.Reader) (path string, err error)

	// Cleanup removes working media files after a run. It keeps going
	// past individual deletion failures and reports them joined.
	Cleanup(ctx context.Context, paths []string) error

	// PublishVideo uploads the composed video for an upload and returns
	// its public URL. Returns ErrS3NotConfigured when no delivery
	// bucket is configured.
	PublishVideo(ctx context.Context, uploadID string, data io.Reader) (url string, err error)
}
