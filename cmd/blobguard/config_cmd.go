package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"blobguard/internal/config"
	"blobguard/internal/format"
)

func newConfigCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(cfg))
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print one config value, or every key with its effective value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := config.AllowedKeys()
			if len(args) == 1 {
				if !config.IsAllowedKey(args[0]) {
					return fmt.Errorf("unknown key: %s (allowed: %v)", args[0], keys)
				}
				value, err := cfg.Get(args[0])
				if err != nil {
					return err
				}
				return writePlain("%s\n", value)
			}

			pairs := format.Pairs{}
			for _, key := range keys {
				value, err := cfg.Get(key)
				if err != nil {
					return err
				}
				pairs = pairs.Add(key, value)
			}
			return writeText(pairs)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value in the global config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GlobalPath()
			if err != nil {
				return err
			}
			return config.SetKey(path, args[0], args[1])
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the global config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GlobalPath()
			if err != nil {
				return err
			}
			return writePlain("%s\n", path)
		},
	}
}
