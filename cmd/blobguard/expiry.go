package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"blobguard/internal/config"
	"blobguard/internal/expiry"
	"blobguard/internal/network"
)

// expiryConfig maps configuration onto monitor settings. signer may be nil
// when only thresholds are needed.
func expiryConfig(cfg *config.Config, signer network.Signer) expiry.Config {
	return expiry.Config{
		CheckInterval:      cfg.Expiry.CheckInterval.Duration,
		WarningThreshold:   cfg.Expiry.WarningDays,
		AutoRenewThreshold: cfg.Expiry.AutoRenewDays,
		RenewalPeriod:      cfg.Expiry.RenewalEpochs,
		EpochDuration:      cfg.Expiry.EpochDuration.Duration,
		Signer:             signer,
	}
}

type expiryEvent struct {
	Event         string  `json:"event"`
	BlobID        string  `json:"blob_id"`
	Epoch         int64   `json:"epoch,omitempty"`
	DaysRemaining float64 `json:"days_remaining,omitempty"`
	AddedEpochs   int64   `json:"added_epochs,omitempty"`
	Digest        string  `json:"digest,omitempty"`
	Error         string  `json:"error,omitempty"`
}

func newExpiryCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expiry",
		Short: "Warn about and renew expiring blobs",
	}
	cmd.AddCommand(
		newExpiryScanCmd(cfg, jsonOutput),
		newExpiryWatchCmd(cfg, jsonOutput),
	)
	return cmd
}

func newExpiryScanCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one expiry scan and renew what is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := loadSigner(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withBackend(cfg, backendNeeds{vault: true}, func(b *backend) error {
				monitor, err := newExpiryMonitor(cfg, signer, b, *jsonOutput)
				if err != nil {
					return err
				}
				report, err := monitor.Scan(ctx)
				if err != nil {
					return err
				}
				if *jsonOutput {
					if err := writeJSON(report); err != nil {
						return err
					}
				} else if err := writePlain("scan %s at epoch %d: checked %d, warned %d, renewed %d, failed %d, skipped %d\n",
					report.ScanID, report.CurrentEpoch, report.Checked, report.Warned, report.Renewed, report.Failed, report.Skipped); err != nil {
					return err
				}
				if report.Failed > 0 {
					return fmt.Errorf("%w: %d renewal(s) failed", expiry.ErrRenewalFailed, report.Failed)
				}
				return nil
			})
		},
	}
}

func newExpiryWatchCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	interval := cfg.Expiry.CheckInterval.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scan periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := loadSigner(cfg)
			if err != nil {
				return err
			}
			cfg.Expiry.CheckInterval = config.D(interval)
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withBackend(cfg, backendNeeds{vault: true}, func(b *backend) error {
				monitor, err := newExpiryMonitor(cfg, signer, b, *jsonOutput)
				if err != nil {
					return err
				}
				b.logger.Info("expiry watch started", "interval", interval.String(), "warning_days", cfg.Expiry.WarningDays, "auto_renew_days", cfg.Expiry.AutoRenewDays)
				monitor.Start(ctx)
				<-ctx.Done()
				monitor.Stop()
				b.logger.Info("expiry watch stopped")
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", interval, "time between scans")
	return cmd
}

func newExpiryMonitor(cfg *config.Config, signer network.Signer, b *backend, jsonOutput bool) (*expiry.Monitor, error) {
	monitor, err := expiry.NewMonitor(expiryConfig(cfg, signer), b.ledger, b.vault, b.logger)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	emit := func(ev expiryEvent, line string) {
		mu.Lock()
		defer mu.Unlock()
		if jsonOutput {
			_ = writeJSON(ev)
			return
		}
		fmt.Fprintln(os.Stdout, line)
	}

	monitor.OnWarning(func(w expiry.Warning) {
		emit(expiryEvent{
			Event:         "warning",
			BlobID:        w.Record.BlobID,
			Epoch:         w.Record.ExpirationEpoch,
			DaysRemaining: w.DaysRemaining,
		}, fmt.Sprintf("warning: blob %s expires at epoch %d (%.1f days left)", w.Record.BlobID, w.Record.ExpirationEpoch, w.DaysRemaining))
	})
	monitor.OnRenewal(func(r expiry.Renewal) {
		emit(expiryEvent{
			Event:       "renewed",
			BlobID:      r.BlobID,
			Epoch:       r.Receipt.NewExpirationEpoch,
			AddedEpochs: r.AddedEpochs,
			Digest:      r.Receipt.Digest,
		}, fmt.Sprintf("renewed: blob %s %d -> %d (%s)", r.BlobID, r.PreviousEpoch, r.Receipt.NewExpirationEpoch, r.Receipt.Digest))
	})
	monitor.OnRenewalFailed(func(e *expiry.RenewalTransactionFailedError) {
		emit(expiryEvent{
			Event:       "renewal_failed",
			BlobID:      e.BlobID,
			AddedEpochs: e.AdditionalEpochs,
			Error:       e.Err.Error(),
		}, fmt.Sprintf("renewal failed: blob %s: %v", e.BlobID, e.Err))
	})
	return monitor, nil
}
