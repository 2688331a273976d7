package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"blobguard/internal/config"
	"blobguard/internal/expiry"
	"blobguard/internal/models"
)

type vaultEntry struct {
	models.BlobRecord
	State         expiry.State `json:"state"`
	DaysRemaining float64      `json:"days_remaining"`
}

type vaultListing struct {
	CurrentEpoch int64        `json:"current_epoch"`
	Blobs        []vaultEntry `json:"blobs"`
}

func newVaultCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Inspect blobs tracked in the local vault",
	}
	cmd.AddCommand(
		newVaultListCmd(cfg, jsonOutput),
		newVaultShowCmd(cfg, jsonOutput),
		newVaultDropCmd(cfg, jsonOutput),
		newVaultRenewalsCmd(cfg, jsonOutput),
	)
	return cmd
}

func newVaultListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var expiringDays int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked blobs by expiration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withBackend(cfg, backendNeeds{vault: true}, func(b *backend) error {
				epoch, err := b.ledger.GetSystemEpoch(ctx)
				if err != nil {
					return fmt.Errorf("get system epoch: %w", err)
				}
				records, err := listVault(ctx, b, epoch, expiringDays, cfg.Expiry.EpochDuration.Duration)
				if err != nil {
					return err
				}
				thresholds := expiryConfig(cfg, nil)
				listing := vaultListing{CurrentEpoch: epoch, Blobs: make([]vaultEntry, 0, len(records))}
				for _, record := range records {
					listing.Blobs = append(listing.Blobs, vaultEntry{
						BlobRecord:    record,
						State:         thresholds.Classify(record.ExpirationEpoch, epoch),
						DaysRemaining: thresholds.DaysRemaining(record.ExpirationEpoch, epoch),
					})
				}
				if *jsonOutput {
					return writeJSON(listing)
				}
				if len(listing.Blobs) == 0 {
					return writePlain("no tracked blobs\n")
				}
				for _, entry := range listing.Blobs {
					if err := writeRecordLine(entry.BlobRecord, epoch, thresholds.EpochDuration); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&expiringDays, "expiring-within", 0, "only show blobs expiring within this many days")
	return cmd
}

func listVault(ctx context.Context, b *backend, epoch int64, days int, epochDuration time.Duration) ([]models.BlobRecord, error) {
	if days <= 0 {
		return b.vault.ListBlobRecords(ctx)
	}
	if epochDuration <= 0 {
		epochDuration = expiry.DefaultEpochDuration
	}
	horizon := epoch + int64(math.Ceil(float64(days)*24/epochDuration.Hours()))
	return b.vault.GetExpiringBlobs(ctx, horizon)
}

func newVaultShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <blob-id>",
		Short: "Show one tracked blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withBackend(cfg, backendNeeds{vault: true}, func(b *backend) error {
				record, err := b.vaultRecord(ctx, args[0])
				if err != nil {
					return err
				}
				epoch, err := b.ledger.GetSystemEpoch(ctx)
				if err != nil {
					return fmt.Errorf("get system epoch: %w", err)
				}
				thresholds := expiryConfig(cfg, nil)
				if *jsonOutput {
					return writeJSON(vaultEntry{
						BlobRecord:    *record,
						State:         thresholds.Classify(record.ExpirationEpoch, epoch),
						DaysRemaining: thresholds.DaysRemaining(record.ExpirationEpoch, epoch),
					})
				}
				return writeRecordDetail(*record, epoch, thresholds.EpochDuration)
			})
		},
	}
}

func newVaultDropCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <blob-id>...",
		Short: "Stop tracking blobs (stored data is untouched)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withBackend(cfg, backendNeeds{vault: true}, func(b *backend) error {
				for _, blobID := range args {
					if err := b.vault.DropBlobRecord(ctx, blobID); err != nil {
						return fmt.Errorf("drop %s: %w", blobID, err)
					}
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"dropped": args})
				}
				return writePlain("dropped %d blob(s)\n", len(args))
			})
		},
	}
}

func newVaultRenewalsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "renewals <blob-id>",
		Short: "Show the renewal history of a tracked blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withBackend(cfg, backendNeeds{vault: true}, func(b *backend) error {
				entries, err := b.vault.ListRenewals(ctx, args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					if entries == nil {
						entries = []models.RenewalEntry{}
					}
					return writeJSON(entries)
				}
				if len(entries) == 0 {
					return writePlain("no renewals recorded for %s\n", args[0])
				}
				for _, entry := range entries {
					if err := writePlain("%s  +%d epochs  %d -> %d  %s\n",
						formatTime(entry.CreatedAt), entry.AddedEpochs, entry.PreviousEpoch, entry.NewExpirationEpoch, entry.Digest); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
