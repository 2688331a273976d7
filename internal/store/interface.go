package store

import (
	"context"

	"blobguard/internal/models"
)

// BlobRecordStore is the tracking surface for stored blobs ("the vault").
// Expiry queries are epoch-denominated; callers convert day thresholds.
type BlobRecordStore interface {
	PutBlobRecord(ctx context.Context, record *models.BlobRecord) error
	GetBlobRecord(ctx context.Context, blobID string) (*models.BlobRecord, error)
	ListBlobRecords(ctx context.Context) ([]models.BlobRecord, error)
	GetExpiringBlobs(ctx context.Context, untilEpoch int64) ([]models.BlobRecord, error)
	UpdateBlobExpiry(ctx context.Context, blobID string, newEpoch int64) (bool, error)
	MarkCertified(ctx context.Context, blobID string, epoch int64) error
	DropBlobRecord(ctx context.Context, blobID string) error
	RecordRenewal(ctx context.Context, entry models.RenewalEntry) error
	ListRenewals(ctx context.Context, blobID string) ([]models.RenewalEntry, error)
}

var _ BlobRecordStore = (*Store)(nil)
