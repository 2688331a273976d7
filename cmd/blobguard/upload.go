package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"blobguard/internal/config"
	"blobguard/internal/verify"
)

func newUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		attrFlags    []string
		attrFile     string
		epochs       int64
		wait         bool
		minProviders int
		requireAvail bool
		waitTimeout  = cfg.Verify.WaitTimeout.Duration
		untracked    bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file|->",
		Short: "Upload a blob and verify it was stored intact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(args[0])
			if err != nil {
				return err
			}
			attrs, err := collectAttributes(attrFile, attrFlags)
			if err != nil {
				return err
			}
			signer, err := loadSigner(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withBackend(cfg, backendNeeds{vault: !untracked}, func(b *backend) error {
				verifier := verify.NewBlobVerifier(b.storage, b.logger)
				tracker := verify.NewCertificationTracker(b.storage, cfg.Verify.PollInterval.Duration, b.logger)
				var records verify.RecordStore
				if b.vault != nil {
					records = b.vault
				}
				uploader := verify.NewUploadVerifier(b.storage, verifier, tracker, records, b.logger)

				result, err := uploader.VerifyUpload(ctx, content, verify.UploadOptions{
					Attributes:           attrs,
					Epochs:               epochs,
					Signer:               signer,
					WaitForCertification: wait,
					WaitTimeout:          waitTimeout,
					MinProviders:         minProviders,
					RequireAvailability:  requireAvail,
				})
				if result.BlobID == "" {
					return err
				}
				if writeErr := writeUploadResult(result, *jsonOutput); writeErr != nil {
					return writeErr
				}
				if errors.Is(err, verify.ErrCertificationTimeout) {
					return fmt.Errorf("blob %s uploaded but not yet certified: %w", result.BlobID, err)
				}
				return err
			})
		},
	}

	cmd.Flags().StringArrayVar(&attrFlags, "attr", nil, "attribute key=value (repeatable)")
	cmd.Flags().StringVar(&attrFile, "attributes-file", "", "YAML file of attributes")
	cmd.Flags().Int64Var(&epochs, "epochs", cfg.Verify.UploadEpochs, "storage epochs to purchase")
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for certification")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", waitTimeout, "maximum time to wait for certification")
	cmd.Flags().IntVar(&minProviders, "min-providers", cfg.Verify.MinProviders, "minimum storage providers expected")
	cmd.Flags().BoolVar(&requireAvail, "require-availability", false, "fail unless proof of availability passes")
	cmd.Flags().BoolVar(&untracked, "no-track", false, "do not record the blob in the local vault")
	return cmd
}

func writeUploadResult(result verify.UploadResult, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(result)
	}
	return writeUpload(result)
}

// readInput reads a file path, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// signalContext cancels on interrupt. Callers must invoke the returned stop.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}
