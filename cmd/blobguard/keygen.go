package main

import (
	"github.com/spf13/cobra"

	"blobguard/internal/config"
	"blobguard/internal/network"
)

type keygenOutput struct {
	Address string `json:"address"`
	Seed    string `json:"seed,omitempty"`
	Saved   string `json:"saved,omitempty"`
}

func newKeygenCmd(jsonOutput *bool) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signer key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, seed, err := network.GenerateKeySigner()
			if err != nil {
				return err
			}
			out := keygenOutput{Address: signer.Address(), Seed: seed}
			if save {
				path, err := config.GlobalPath()
				if err != nil {
					return err
				}
				if err := config.SetKey(path, "signer_key", seed); err != nil {
					return err
				}
				out.Seed = ""
				out.Saved = path
			}
			if *jsonOutput {
				return writeJSON(out)
			}
			if out.Saved != "" {
				return writePlain("address: %s\nsaved signer_key to %s\n", out.Address, out.Saved)
			}
			return writePlain("address: %s\nseed: %s\n", out.Address, out.Seed)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "store the seed as signer_key in the global config")
	return cmd
}
