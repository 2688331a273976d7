package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"blobguard/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:           "blobguard",
		Short:         "Blobguard verifies, monitors, and renews blobs on decentralized storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel, logFormat)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return cfg.Validate()
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text or json)")
	cmd.PersistentFlags().StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend: local or gateway")
	cmd.PersistentFlags().StringVar(&cfg.GatewayURL, "gateway-url", cfg.GatewayURL, "gateway base URL for --backend gateway")

	cmd.AddCommand(
		newUploadCmd(cfg, &jsonOutput),
		newVerifyCmd(cfg, &jsonOutput),
		newMonitorCmd(cfg, &jsonOutput),
		newCertifyWaitCmd(cfg, &jsonOutput),
		newChecksumCmd(&jsonOutput),
		newVaultCmd(cfg, &jsonOutput),
		newExpiryCmd(cfg, &jsonOutput),
		newDevnetCmd(cfg, &jsonOutput),
		newKeygenCmd(&jsonOutput),
		newConfigCmd(cfg),
		newMigrateCmd(cfg, &jsonOutput),
	)

	return cmd
}
