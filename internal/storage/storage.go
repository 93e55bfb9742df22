package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by GetObject for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the minimal S3-compatible operations the snapshot export needs.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	UploadObject(ctx context.Context, key string, data []byte) error
}
