package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"blobguard/internal/blobstore"
	"blobguard/internal/checksum"
	"blobguard/internal/models"
)

type checksumOutput struct {
	Path      string           `json:"path"`
	BlobID    string           `json:"blob_id"`
	Size      int64            `json:"size"`
	Checksums models.Checksums `json:"checksums"`
}

func newChecksumCmd(jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "checksum <file|->...",
		Short: "Compute content digests and the blob id for files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputs := make([]checksumOutput, 0, len(args))
			for _, path := range args {
				out, err := checksumFile(path)
				if err != nil {
					return err
				}
				outputs = append(outputs, out)
			}
			if *jsonOutput {
				return writeJSON(outputs)
			}
			for _, out := range outputs {
				if err := writeLines([]string{
					out.Path,
					fmt.Sprintf("  blob_id: %s", out.BlobID),
					fmt.Sprintf("  size:    %s (%d bytes)", formatSize(out.Size), out.Size),
					fmt.Sprintf("  sha256:  %s", out.Checksums.SHA256),
					fmt.Sprintf("  sha512:  %s", out.Checksums.SHA512),
					fmt.Sprintf("  blake2b: %s", out.Checksums.Blake2b),
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func checksumFile(path string) (checksumOutput, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return checksumOutput{}, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return checksumOutput{}, fmt.Errorf("read %s: %w", path, err)
	}
	return checksumOutput{
		Path:      path,
		BlobID:    blobstore.BlobID(data),
		Size:      int64(len(data)),
		Checksums: checksum.Compute(data),
	}, nil
}
