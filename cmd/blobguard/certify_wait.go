package main

import (
	"time"

	"github.com/spf13/cobra"

	"blobguard/internal/config"
	"blobguard/internal/verify"
)

type certifyWaitOutput struct {
	BlobID         string `json:"blob_id"`
	CertifiedEpoch int64  `json:"certified_epoch"`
	Waited         string `json:"waited"`
}

func newCertifyWaitCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		timeout  = cfg.Verify.WaitTimeout.Duration
		interval = cfg.Verify.PollInterval.Duration
	)

	cmd := &cobra.Command{
		Use:   "certify-wait <blob-id>",
		Short: "Wait until the ledger certifies a blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blobID := args[0]
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withBackend(cfg, backendNeeds{}, func(b *backend) error {
				start := time.Now()
				tracker := verify.NewCertificationTracker(b.storage, interval, b.logger)
				epoch, err := tracker.WaitForCertification(ctx, blobID, timeout)
				if err != nil {
					return err
				}
				waited := time.Since(start).Round(time.Millisecond)
				if *jsonOutput {
					return writeJSON(certifyWaitOutput{BlobID: blobID, CertifiedEpoch: epoch, Waited: waited.String()})
				}
				return writePlain("blob %s certified at epoch %d (waited %s)\n", blobID, epoch, waited)
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", timeout, "maximum time to wait")
	cmd.Flags().DurationVar(&interval, "interval", interval, "poll interval")
	return cmd
}
