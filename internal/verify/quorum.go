package verify

import (
	"context"
	"fmt"
	"log/slog"

	"blobguard/internal/network"
)

// QuorumReport is the outcome of one provider quorum and PoA check.
// PoAComplete and HasMinProviders are independent; callers decide severity.
type QuorumReport struct {
	PoAComplete     bool     `json:"poa_complete"`
	Providers       int      `json:"providers"`
	MinProviders    int      `json:"min_providers"`
	HasMinProviders bool     `json:"has_min_providers"`
	Warnings        []string `json:"warnings,omitempty"`
}

// AvailabilityProofVerifier checks the provider set and proof of availability for a blob.
type AvailabilityProofVerifier struct {
	storage network.StorageClient
	logger  *slog.Logger
}

func NewAvailabilityProofVerifier(storage network.StorageClient, logger *slog.Logger) *AvailabilityProofVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityProofVerifier{storage: storage, logger: logger.With("component", "poa")}
}

// CheckQuorum never fails on transport errors; they are reported as warnings
// with a negative outcome for the affected check.
func (v *AvailabilityProofVerifier) CheckQuorum(ctx context.Context, blobID string, minProviders int) QuorumReport {
	report := QuorumReport{MinProviders: minProviders}

	providers, err := v.storage.GetStorageProviders(ctx, blobID)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("provider lookup failed: %v", err))
		v.logger.Warn("provider lookup failed", "blob_id", blobID, "error", err)
	}
	report.Providers = len(providers)
	report.HasMinProviders = report.Providers >= minProviders

	ok, err := v.storage.VerifyProofOfAvailability(ctx, blobID)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("proof of availability check failed: %v", err))
		v.logger.Warn("poa check failed", "blob_id", blobID, "error", err)
	}
	report.PoAComplete = err == nil && ok

	if !report.HasMinProviders {
		report.Warnings = append(report.Warnings, fmt.Sprintf("only %d of %d required providers responded", report.Providers, minProviders))
	}
	if err == nil && !ok {
		report.Warnings = append(report.Warnings, "proof of availability incomplete")
	}
	v.logger.Debug("quorum checked", "blob_id", blobID, "providers", report.Providers, "min_providers", minProviders, "poa_complete", report.PoAComplete)
	return report
}
