// Package checksum fingerprints blob content with several independent digests.
package checksum

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"

	"blobguard/internal/models"
)

// Compute returns the SHA-256, SHA-512 and BLAKE2b-512 digests of data.
func Compute(data []byte) models.Checksums {
	s256 := sha256.Sum256(data)
	s512 := sha512.Sum512(data)
	b2 := blake2b.Sum512(data)
	return models.Checksums{
		SHA256:  hex.EncodeToString(s256[:]),
		SHA512:  hex.EncodeToString(s512[:]),
		Blake2b: hex.EncodeToString(b2[:]),
	}
}

// ComputeReader streams r through all digests and returns them with the byte count.
func ComputeReader(r io.Reader) (models.Checksums, int64, error) {
	b2, err := blake2b.New512(nil)
	if err != nil {
		return models.Checksums{}, 0, err
	}
	s256 := sha256.New()
	s512 := sha512.New()
	n, err := io.Copy(io.MultiWriter(s256, s512, b2), r)
	if err != nil {
		return models.Checksums{}, n, err
	}
	return models.Checksums{
		SHA256:  sum(s256),
		SHA512:  sum(s512),
		Blake2b: sum(b2),
	}, n, nil
}

func sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
