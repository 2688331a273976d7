package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"blobguard/internal/checksum"
	"blobguard/internal/config"
	"blobguard/internal/models"
	"blobguard/internal/verify"
)

type monitorOutput struct {
	BlobID      string           `json:"blob_id"`
	Available   bool             `json:"available"`
	Expected    models.Checksums `json:"expected"`
	MaxAttempts int              `json:"max_attempts"`
}

func newMonitorCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		sha256Hex   string
		file        string
		fromVault   bool
		interval    = cfg.Monitor.Interval.Duration
		maxAttempts = cfg.Monitor.MaxAttempts
		timeout     = cfg.Monitor.Timeout.Duration
	)

	cmd := &cobra.Command{
		Use:   "monitor <blob-id>",
		Short: "Poll a blob until its content is readable and intact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blobID := args[0]
			sources := 0
			for _, set := range []bool{sha256Hex != "", file != "", fromVault} {
				if set {
					sources++
				}
			}
			if sources != 1 {
				return fmt.Errorf("exactly one of --sha256, --file or --vault is required")
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withBackend(cfg, backendNeeds{vault: fromVault}, func(b *backend) error {
				var expected models.Checksums
				switch {
				case sha256Hex != "":
					digest, err := parseSHA256Flag(sha256Hex)
					if err != nil {
						return err
					}
					expected.SHA256 = digest
				case file != "":
					f, err := os.Open(file)
					if err != nil {
						return fmt.Errorf("open %s: %w", file, err)
					}
					sums, _, err := checksum.ComputeReader(f)
					_ = f.Close()
					if err != nil {
						return fmt.Errorf("checksum %s: %w", file, err)
					}
					expected = sums
				default:
					record, err := b.vaultRecord(ctx, blobID)
					if err != nil {
						return err
					}
					expected = record.Checksums
				}

				monitor := verify.NewAvailabilityMonitor(b.storage, b.logger)
				err := monitor.MonitorBlobAvailability(ctx, blobID, expected, verify.MonitorOptions{
					Interval:    interval,
					MaxAttempts: maxAttempts,
					Timeout:     timeout,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(monitorOutput{BlobID: blobID, Available: true, Expected: expected, MaxAttempts: maxAttempts})
				}
				return writePlain("blob %s is available and intact\n", blobID)
			})
		},
	}

	cmd.Flags().StringVar(&sha256Hex, "sha256", "", "expected SHA-256 digest (hex)")
	cmd.Flags().StringVar(&file, "file", "", "file holding the expected content")
	cmd.Flags().BoolVar(&fromVault, "vault", false, "use digests recorded in the local vault")
	cmd.Flags().DurationVar(&interval, "interval", interval, "delay between attempts")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", maxAttempts, "maximum read attempts")
	cmd.Flags().DurationVar(&timeout, "timeout", timeout, "overall deadline (0 for attempts only)")
	return cmd
}

// parseSHA256Flag normalizes a user-supplied digest to the lowercase hex the
// checksum engine produces.
func parseSHA256Flag(raw string) (string, error) {
	digest := strings.ToLower(strings.TrimSpace(raw))
	decoded, err := hex.DecodeString(digest)
	if err != nil || len(decoded) != sha256.Size {
		return "", fmt.Errorf("--sha256 must be %d hex characters, got %q", 2*sha256.Size, raw)
	}
	return digest, nil
}
