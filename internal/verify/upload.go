package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"blobguard/internal/checksum"
	"blobguard/internal/models"
	"blobguard/internal/network"
)

const (
	DefaultWaitTimeout  = 2 * time.Minute
	DefaultUploadEpochs = 5
)

// RecordStore is the slice of the tracking store written by the upload path.
type RecordStore interface {
	PutBlobRecord(ctx context.Context, record *models.BlobRecord) error
	MarkCertified(ctx context.Context, blobID string, epoch int64) error
}

// UploadOptions tunes one verified upload.
type UploadOptions struct {
	Attributes           map[string]string
	Epochs               int64
	Signer               network.Signer
	WaitForCertification bool
	WaitTimeout          time.Duration
	MinProviders         int
	RequireAvailability  bool
}

// UploadResult describes a written and verified blob. Uploaded and certified
// are separate guarantees: BlobID is set as soon as the write is accepted.
type UploadResult struct {
	BlobID          string           `json:"blob_id"`
	Size            int64            `json:"size"`
	Checksums       models.Checksums `json:"checksums"`
	RegisteredEpoch int64            `json:"registered_epoch"`
	ExpirationEpoch int64            `json:"expiration_epoch"`
	Certified       bool             `json:"certified"`
	CertifiedEpoch  *int64           `json:"certified_epoch,omitempty"`
	PoAComplete     bool             `json:"poa_complete"`
	HasMinProviders bool             `json:"has_min_providers"`
	Providers       int              `json:"providers"`
	Warnings        []string         `json:"warnings,omitempty"`
}

// UploadVerifier writes content and verifies it immediately afterwards.
type UploadVerifier struct {
	storage  network.StorageClient
	verifier *BlobVerifier
	tracker  *CertificationTracker
	records  RecordStore
	logger   *slog.Logger
}

// NewUploadVerifier wires an upload verifier. records may be nil when the
// caller does not track uploads locally.
func NewUploadVerifier(storage network.StorageClient, verifier *BlobVerifier, tracker *CertificationTracker, records RecordStore, logger *slog.Logger) *UploadVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadVerifier{
		storage:  storage,
		verifier: verifier,
		tracker:  tracker,
		records:  records,
		logger:   logger.With("component", "upload"),
	}
}

// VerifyUpload writes content, tracks the new blob, optionally waits for
// certification, and verifies the stored bytes. A certification timeout is
// returned together with a fully populated result once content verification
// has passed.
func (u *UploadVerifier) VerifyUpload(ctx context.Context, content []byte, opts UploadOptions) (UploadResult, error) {
	var result UploadResult
	if u == nil || u.storage == nil || u.verifier == nil {
		return result, fmt.Errorf("upload verifier is not configured")
	}
	epochs := opts.Epochs
	if epochs <= 0 {
		epochs = DefaultUploadEpochs
	}

	result.Checksums = checksum.Compute(content)
	result.Size = int64(len(content))

	written, err := u.storage.WriteBlob(ctx, content, opts.Signer, opts.Attributes, epochs)
	if err != nil {
		return result, &NetworkError{Op: "write blob", Err: err}
	}
	result.BlobID = written.BlobID
	result.RegisteredEpoch = written.RegisteredEpoch
	result.ExpirationEpoch = written.EndEpoch
	u.logger.Info("blob written", "blob_id", written.BlobID, "size", result.Size, "registered_epoch", written.RegisteredEpoch, "end_epoch", written.EndEpoch)

	if u.records != nil {
		record := &models.BlobRecord{
			BlobID:          written.BlobID,
			ObjectID:        written.ObjectID,
			Size:            result.Size,
			Checksums:       result.Checksums,
			RegisteredEpoch: written.RegisteredEpoch,
			ExpirationEpoch: written.EndEpoch,
			Attributes:      models.CloneAttributes(opts.Attributes),
		}
		if err := u.records.PutBlobRecord(ctx, record); err != nil {
			return result, fmt.Errorf("track blob %s: %w", written.BlobID, err)
		}
	}

	var timeoutErr error
	if opts.WaitForCertification && u.tracker != nil {
		timeout := opts.WaitTimeout
		if timeout <= 0 {
			timeout = DefaultWaitTimeout
		}
		if _, err := u.tracker.WaitForCertification(ctx, written.BlobID, timeout); err != nil {
			if !errors.Is(err, ErrCertificationTimeout) {
				return result, err
			}
			timeoutErr = err
		}
	}

	verified, err := u.verifier.VerifyBlob(ctx, written.BlobID, content, opts.Attributes, Options{
		VerifyAttributes:    len(opts.Attributes) > 0,
		MinProviders:        opts.MinProviders,
		RequireAvailability: opts.RequireAvailability,
	})
	result.Certified = verified.Details.Certified
	result.CertifiedEpoch = verified.Details.CertifiedEpoch
	result.PoAComplete = verified.PoAComplete
	result.HasMinProviders = verified.HasMinProviders
	result.Providers = verified.Providers
	result.Warnings = verified.Warnings
	if err != nil {
		return result, err
	}

	if result.CertifiedEpoch != nil && u.records != nil {
		if err := u.records.MarkCertified(ctx, written.BlobID, *result.CertifiedEpoch); err != nil {
			u.logger.Warn("record certification failed", "blob_id", written.BlobID, "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("could not record certification: %v", err))
		}
	}

	if timeoutErr != nil && !result.Certified {
		return result, timeoutErr
	}
	return result, nil
}
