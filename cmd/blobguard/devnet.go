package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"blobguard/internal/config"
	"blobguard/internal/localnet"
	"blobguard/internal/server"
)

func newDevnetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		addr          string
		certifyDelay  = cfg.Localnet.CertifyDelay.Duration
		epochDuration = cfg.Localnet.EpochDuration.Duration
		providers     int
	)

	cmd := &cobra.Command{
		Use:   "devnet",
		Short: "Serve the local network over HTTP for gateway clients",
		Long: "Serve the local network over HTTP for gateway clients.\n\n" +
			"The advance, provider and certify subcommands edit the local network state " +
			"directly; stop a running devnet before using them.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				listen, err := server.ListenAddr(cfg.GatewayURL)
				if err != nil {
					return err
				}
				addr = listen
			}
			if providers <= 0 {
				return fmt.Errorf("providers must be positive")
			}
			names := make([]string, providers)
			for i := range names {
				names[i] = "node-" + strconv.Itoa(i)
			}

			logger := slog.Default().With("component", "devnet")
			lnet, err := localnet.Open(localnet.Options{
				Dir:           cfg.LocalnetDir(),
				Persist:       true,
				Providers:     names,
				CertifyDelay:  certifyDelay,
				EpochDuration: epochDuration,
				Logger:        logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			logger.Info("devnet starting", "addr", addr, "dir", cfg.LocalnetDir(), "providers", providers, "certify_delay", certifyDelay.String())
			return server.New(addr, lnet, logger).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to the gateway URL host)")
	cmd.Flags().DurationVar(&certifyDelay, "certify-delay", certifyDelay, "delay before writes certify (negative for manual)")
	cmd.Flags().DurationVar(&epochDuration, "epoch-duration", epochDuration, "wall time per epoch (0 freezes the epoch)")
	cmd.Flags().IntVar(&providers, "providers", len(localnet.DefaultProviders), "number of simulated storage providers")

	cmd.AddCommand(
		newDevnetAdvanceCmd(cfg, jsonOutput),
		newDevnetProviderCmd(cfg, jsonOutput),
		newDevnetCertifyCmd(cfg, jsonOutput),
	)
	return cmd
}

func newDevnetAdvanceCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "advance [epochs]",
		Short: "Move the local epoch forward",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta := int64(1)
			if len(args) == 1 {
				parsed, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid epoch count %q", args[0])
				}
				delta = parsed
			}
			lnet, err := openLocalnet(cfg)
			if err != nil {
				return err
			}
			epoch, err := lnet.AdvanceEpoch(delta)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(map[string]int64{"epoch": epoch})
			}
			return writePlain("epoch %d\n", epoch)
		},
	}
}

func newDevnetProviderCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:       "provider <name> <up|down>",
		Short:     "Mark a simulated storage provider up or down",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name, state := args[0], args[1]
			if state != "up" && state != "down" {
				return fmt.Errorf("state must be up or down, got %q", state)
			}
			lnet, err := openLocalnet(cfg)
			if err != nil {
				return err
			}
			if err := lnet.SetProviderDown(name, state == "down"); err != nil {
				return fmt.Errorf("%w (known: %v)", err, lnet.Providers())
			}
			if *jsonOutput {
				return writeJSON(map[string]string{"provider": name, "state": state})
			}
			return writePlain("provider %s is %s\n", name, state)
		},
	}
}

func newDevnetCertifyCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "certify [blob-id...]",
		Short: "Certify blobs on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			lnet, err := openLocalnet(cfg)
			if err != nil {
				return err
			}
			ids := args
			if all {
				ids = lnet.BlobIDs()
			}
			if len(ids) == 0 {
				return fmt.Errorf("no blob ids given (use --all to certify every blob)")
			}
			certified := make(map[string]int64, len(ids))
			for _, id := range ids {
				epoch, err := lnet.Certify(id)
				if err != nil {
					return err
				}
				certified[id] = epoch
			}
			if *jsonOutput {
				return writeJSON(certified)
			}
			for _, id := range ids {
				if err := writePlain("%s certified at epoch %d\n", id, certified[id]); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "certify every blob")
	return cmd
}
