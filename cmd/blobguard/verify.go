package main

import (
	"github.com/spf13/cobra"

	"blobguard/internal/config"
	"blobguard/internal/verify"
)

func newVerifyCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		requireCert  bool
		checkAttrs   bool
		strictAttrs  bool
		skipAvail    bool
		requireAvail bool
		minProviders int
		attrFlags    []string
		attrFile     string
	)

	cmd := &cobra.Command{
		Use:   "verify <blob-id> <file|->",
		Short: "Verify a stored blob against expected content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			blobID := args[0]
			content, err := readInput(args[1])
			if err != nil {
				return err
			}
			attrs, err := collectAttributes(attrFile, attrFlags)
			if err != nil {
				return err
			}
			if len(attrs) > 0 {
				checkAttrs = true
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withBackend(cfg, backendNeeds{}, func(b *backend) error {
				verifier := verify.NewBlobVerifier(b.storage, b.logger)
				result, err := verifier.VerifyBlob(ctx, blobID, content, attrs, verify.Options{
					RequireCertification: requireCert,
					VerifyAttributes:     checkAttrs,
					StrictAttributes:     strictAttrs,
					SkipAvailability:     skipAvail,
					RequireAvailability:  requireAvail,
					MinProviders:         minProviders,
				})
				if err != nil && result.Checksums.IsZero() {
					return err
				}
				var writeErr error
				if *jsonOutput {
					writeErr = writeJSON(result)
				} else {
					writeErr = writeVerification(result)
				}
				if err != nil {
					return err
				}
				return writeErr
			})
		},
	}

	cmd.Flags().BoolVar(&requireCert, "require-certification", false, "fail when the blob is not certified")
	cmd.Flags().BoolVar(&checkAttrs, "verify-attributes", false, "compare stored attributes with --attr values")
	cmd.Flags().BoolVar(&strictAttrs, "strict-attributes", false, "fail on stored attributes that were not expected")
	cmd.Flags().BoolVar(&skipAvail, "skip-availability", false, "skip the proof of availability check")
	cmd.Flags().BoolVar(&requireAvail, "require-availability", false, "fail unless proof of availability passes")
	cmd.Flags().IntVar(&minProviders, "min-providers", cfg.Verify.MinProviders, "minimum storage providers expected")
	cmd.Flags().StringArrayVar(&attrFlags, "attr", nil, "expected attribute key=value (repeatable)")
	cmd.Flags().StringVar(&attrFile, "attributes-file", "", "YAML file of expected attributes")
	return cmd
}
