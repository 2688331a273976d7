// Package verify checks stored blobs against expected content, certification,
// attributes and provider availability.
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
	"blobguard/internal/retry"
)

const (
	DefaultMinProviders = 1
	defaultReadAttempts = 3
)

// Options tunes one verification pass.
type Options struct {
	RequireCertification bool
	VerifyAttributes     bool
	StrictAttributes     bool
	SkipAvailability     bool
	RequireAvailability  bool
	MinProviders         int
}

// Details summarizes the verified blob.
type Details struct {
	BlobID         string `json:"blob_id"`
	Size           int64  `json:"size"`
	Certified      bool   `json:"certified"`
	CertifiedEpoch *int64 `json:"certified_epoch,omitempty"`
}

// VerificationResult is the outcome of one verification pass. Success is true
// only when content matched and every requested requirement held.
type VerificationResult struct {
	Success         bool             `json:"success"`
	Details         Details          `json:"details"`
	Checksums       models.Checksums `json:"checksums"`
	PoAComplete     bool             `json:"poa_complete"`
	Providers       int              `json:"providers"`
	HasMinProviders bool             `json:"has_min_providers"`
	Warnings        []string         `json:"warnings,omitempty"`
}

// BlobVerifier runs the ordered verification checks for one blob.
type BlobVerifier struct {
	storage      network.StorageClient
	availability *AvailabilityProofVerifier
	readRetry    retry.Retry
	logger       *slog.Logger
}

func NewBlobVerifier(storage network.StorageClient, logger *slog.Logger) *BlobVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobVerifier{
		storage:      storage,
		availability: NewAvailabilityProofVerifier(storage, logger),
		readRetry: retry.Retry{
			InitialDelay: 200 * time.Millisecond,
			MaximumDelay: 2 * time.Second,
			MaxAttempts:  defaultReadAttempts,
		},
		logger: logger.With("component", "verifier"),
	}
}

// SetReadRetry overrides the retry budget used for transient read failures.
func (v *BlobVerifier) SetReadRetry(r retry.Retry) {
	v.readRetry = r
}

// VerifyBlob fetches blobID and checks, in order: content digests, certification,
// attributes, then provider quorum. The first failing required check ends the
// pass with a typed error and Success=false.
func (v *BlobVerifier) VerifyBlob(ctx context.Context, blobID string, expectedContent []byte, expectedAttributes map[string]string, opts Options) (VerificationResult, error) {
	result := VerificationResult{Details: Details{BlobID: blobID}}
	if v == nil || v.storage == nil {
		return result, fmt.Errorf("blob verifier is not configured")
	}

	data, err := v.readBlob(ctx, blobID)
	if err != nil {
		return result, err
	}
	expected := checksum.Compute(expectedContent)
	actual := checksum.Compute(data)
	result.Details.Size = int64(len(data))
	result.Checksums = actual
	if !actual.Equal(expected) {
		v.logger.Error("content mismatch", "blob_id", blobID, "expected_sha256", expected.SHA256, "actual_sha256", actual.SHA256)
		return result, &ContentMismatchError{BlobID: blobID, Expected: expected, Actual: actual}
	}

	var info models.BlobInfo
	err = v.call(ctx, "get blob info", blobID, func() error {
		var err error
		info, err = v.storage.GetBlobInfo(ctx, blobID)
		return err
	})
	if err != nil {
		return result, err
	}
	result.Details.Certified = info.Certified()
	result.Details.CertifiedEpoch = info.CertifiedEpoch
	if !info.Certified() {
		if opts.RequireCertification {
			return result, &CertificationRequiredError{BlobID: blobID, RegisteredEpoch: info.RegisteredEpoch}
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("blob not yet certified (registered at epoch %d)", info.RegisteredEpoch))
	}

	if len(expectedAttributes) > 0 || opts.StrictAttributes {
		var stored map[string]string
		err := v.call(ctx, "get blob metadata", blobID, func() error {
			var err error
			stored, err = v.storage.GetBlobMetadata(ctx, blobID)
			return err
		})
		switch {
		case err != nil && opts.VerifyAttributes:
			return result, err
		case err != nil:
			result.Warnings = append(result.Warnings, fmt.Sprintf("attributes not checked: %v", err))
		default:
			diffs := compareAttributes(expectedAttributes, stored, opts.StrictAttributes)
			if len(diffs) > 0 && opts.VerifyAttributes {
				return result, &AttributeMismatchError{BlobID: blobID, Mismatches: diffs}
			}
			for _, d := range diffs {
				result.Warnings = append(result.Warnings, "attribute "+d.String())
			}
		}
	}

	if !opts.SkipAvailability {
		minProviders := opts.MinProviders
		if minProviders <= 0 {
			minProviders = DefaultMinProviders
		}
		report := v.availability.CheckQuorum(ctx, blobID, minProviders)
		result.PoAComplete = report.PoAComplete
		result.Providers = report.Providers
		result.HasMinProviders = report.HasMinProviders
		result.Warnings = append(result.Warnings, report.Warnings...)
		if opts.RequireAvailability && (!report.PoAComplete || !report.HasMinProviders) {
			return result, &AvailabilityRequiredError{
				BlobID:       blobID,
				PoAComplete:  report.PoAComplete,
				Providers:    report.Providers,
				MinProviders: minProviders,
			}
		}
	}

	result.Success = true
	v.logger.Info("blob verified", "blob_id", blobID, "size", result.Details.Size, "certified", result.Details.Certified, "providers", result.Providers, "poa_complete", result.PoAComplete)
	return result, nil
}

func (v *BlobVerifier) readBlob(ctx context.Context, blobID string) ([]byte, error) {
	var data []byte
	err := v.call(ctx, "read blob", blobID, func() error {
		var err error
		data, err = v.storage.ReadBlob(ctx, blobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// call runs one storage request within the read retry budget. Unknown blobs
// and cancellation end the loop at once.
func (v *BlobVerifier) call(ctx context.Context, op, blobID string, f func() error) error {
	return v.readRetry.Do(ctx, func(attempt int) (bool, error) {
		err := f()
		if err == nil {
			return false, nil
		}
		wrapped := &NetworkError{Op: op, BlobID: blobID, Err: err}
		if errors.Is(err, network.ErrBlobNotFound) || ctx.Err() != nil {
			return false, wrapped
		}
		v.logger.Debug(op+" failed", "blob_id", blobID, "attempt", attempt, "error", err)
		return true, wrapped
	})
}
