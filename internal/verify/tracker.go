package verify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"blobguard/internal/network"
	"blobguard/internal/retry"
)

const DefaultPollInterval = 2 * time.Second

// CertificationState is the tracker's view of a blob's certification progress.
type CertificationState string

const (
	StateRegistered CertificationState = "registered"
	StateCertifying CertificationState = "certifying"
	StateCertified  CertificationState = "certified"
	StateTimedOut   CertificationState = "timed_out"
)

// CertificationTracker polls blob metadata until a certification epoch appears.
type CertificationTracker struct {
	storage      network.StorageClient
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewCertificationTracker builds a tracker. A non-positive interval uses DefaultPollInterval.
func NewCertificationTracker(storage network.StorageClient, pollInterval time.Duration, logger *slog.Logger) *CertificationTracker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CertificationTracker{storage: storage, pollInterval: pollInterval, logger: logger.With("component", "certification")}
}

// WaitForCertification returns the certified epoch of blobID. Poll failures are
// retried until timeout; a *CertificationTimeoutError is returned once timeout
// has fully elapsed without certification.
func (t *CertificationTracker) WaitForCertification(ctx context.Context, blobID string, timeout time.Duration) (int64, error) {
	if t == nil || t.storage == nil {
		return 0, fmt.Errorf("certification tracker is not configured")
	}
	start := time.Now()
	deadline := start.Add(timeout)
	state := StateRegistered
	polls := 0
	var lastErr error

	for {
		polls++
		info, err := t.storage.GetBlobInfo(ctx, blobID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			lastErr = &NetworkError{Op: "get blob info", BlobID: blobID, Err: err}
			t.logger.Debug("certification poll failed", "blob_id", blobID, "poll", polls, "error", err)
		case info.CertifiedEpoch != nil:
			t.logger.Info("blob certified", "blob_id", blobID, "epoch", *info.CertifiedEpoch, "polls", polls, "elapsed", time.Since(start))
			return *info.CertifiedEpoch, nil
		default:
			lastErr = nil
			if state == StateRegistered {
				state = StateCertifying
				t.logger.Debug("waiting for certification", "blob_id", blobID, "registered_epoch", info.RegisteredEpoch)
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.logger.Warn("certification timed out", "blob_id", blobID, "timeout", timeout, "polls", polls, "state", StateTimedOut)
			return 0, &CertificationTimeoutError{BlobID: blobID, Timeout: timeout, Polls: polls, LastErr: lastErr}
		}
		wait := t.pollInterval
		if remaining < wait {
			wait = remaining
		}
		if err := retry.Sleep(ctx, wait); err != nil {
			return 0, err
		}
	}
}
