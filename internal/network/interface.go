// Package network defines the ledger and storage collaborators consumed by the
// verification and lifecycle engine.
package network

import (
	"context"
	"errors"

	"blobguard/internal/models"
)

// ErrBlobNotFound reports that the storage network does not know a blob id.
var ErrBlobNotFound = errors.New("blob not found")

// ObjectState is the ledger's view of one on-chain object.
type ObjectState struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Owner   string            `json:"owner,omitempty"`
	Version int64             `json:"version"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ExtensionReceipt is returned by a successful storage extension transaction.
type ExtensionReceipt struct {
	Digest             string `json:"digest"`
	NewExpirationEpoch int64  `json:"new_expiration_epoch"`
}

// WriteResult describes one accepted blob write.
type WriteResult struct {
	BlobID          string `json:"blob_id"`
	ObjectID        string `json:"object_id,omitempty"`
	RegisteredEpoch int64  `json:"registered_epoch"`
	EndEpoch        int64  `json:"end_epoch"`
}

// LedgerClient is the blockchain surface used for epochs and renewals.
type LedgerClient interface {
	GetSystemEpoch(ctx context.Context) (int64, error)
	GetObjectState(ctx context.Context, id string) (ObjectState, error)
	SubmitStorageExtension(ctx context.Context, blobID string, additionalEpochs int64, signer Signer) (ExtensionReceipt, error)
}

// StorageClient is the distributed blob-storage surface.
type StorageClient interface {
	WriteBlob(ctx context.Context, data []byte, signer Signer, attributes map[string]string, epochs int64) (WriteResult, error)
	ReadBlob(ctx context.Context, blobID string) ([]byte, error)
	GetBlobInfo(ctx context.Context, blobID string) (models.BlobInfo, error)
	GetBlobMetadata(ctx context.Context, blobID string) (map[string]string, error)
	GetStorageProviders(ctx context.Context, blobID string) ([]string, error)
	VerifyProofOfAvailability(ctx context.Context, blobID string) (bool, error)
}

// Signer authorizes transactions. Key material never leaves the implementation.
type Signer interface {
	Address() string
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}
