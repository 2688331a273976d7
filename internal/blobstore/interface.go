package blobstore

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("blob content not found")

// PutResult describes one persisted blob payload.
type PutResult struct {
	BlobID    string
	Digest    string
	SizeBytes int64
	Key       string
}

// BlobStore is the byte-storage abstraction behind the local network.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (PutResult, error)
	Open(ctx context.Context, blobID string) (io.ReadCloser, error)
	Delete(ctx context.Context, blobID string) error
}
