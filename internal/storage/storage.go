package storage

import "context"

// UploadResult is the durable handle returned by an object store.
type UploadResult struct {
	URL    string
	FileID string
}

// Uploader persists a blob and returns a stable, publicly fetchable URL. It is
// used identically for original images, generated images and generated videos.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeType, fileName, folder string) (*UploadResult, error)
}
