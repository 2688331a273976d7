package models

import (
	"fmt"
	"strings"
	"time"
)

// Checksums holds hex-encoded content digests computed at write time.
type Checksums struct {
	SHA256  string `json:"sha256"`
	SHA512  string `json:"sha512"`
	Blake2b string `json:"blake2b"`
}

// IsZero reports whether no digest is set.
func (c Checksums) IsZero() bool {
	return c.SHA256 == "" && c.SHA512 == "" && c.Blake2b == ""
}

// Equal compares all three digests exactly.
func (c Checksums) Equal(other Checksums) bool {
	return c.SHA256 == other.SHA256 && c.SHA512 == other.SHA512 && c.Blake2b == other.Blake2b
}

// Matches compares every digest set in expected against c by exact lowercase
// hex. At least one digest must be set in expected.
func (c Checksums) Matches(expected Checksums) bool {
	if expected.IsZero() {
		return false
	}
	if expected.SHA256 != "" && expected.SHA256 != c.SHA256 {
		return false
	}
	if expected.SHA512 != "" && expected.SHA512 != c.SHA512 {
		return false
	}
	if expected.Blake2b != "" && expected.Blake2b != c.Blake2b {
		return false
	}
	return true
}

// BlobRecord is one tracked blob in the local vault.
type BlobRecord struct {
	BlobID          string            `json:"blob_id"`
	ObjectID        string            `json:"object_id,omitempty"`
	Size            int64             `json:"size"`
	Checksums       Checksums         `json:"checksums"`
	RegisteredEpoch int64             `json:"registered_epoch"`
	CertifiedEpoch  *int64            `json:"certified_epoch,omitempty"`
	ExpirationEpoch int64             `json:"expiration_epoch"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Certified reports whether the ledger has certified the blob.
func (r BlobRecord) Certified() bool {
	return r.CertifiedEpoch != nil
}

// Validate checks record invariants.
func (r BlobRecord) Validate() error {
	if strings.TrimSpace(r.BlobID) == "" {
		return fmt.Errorf("blob_id is required")
	}
	if r.Size < 0 {
		return fmt.Errorf("size must be non-negative")
	}
	if r.CertifiedEpoch != nil && *r.CertifiedEpoch < r.RegisteredEpoch {
		return fmt.Errorf("certified epoch %d precedes registered epoch %d", *r.CertifiedEpoch, r.RegisteredEpoch)
	}
	if r.ExpirationEpoch < r.RegisteredEpoch {
		return fmt.Errorf("expiration epoch %d precedes registered epoch %d", r.ExpirationEpoch, r.RegisteredEpoch)
	}
	return nil
}

// BlobInfo is the storage network's current view of one blob.
type BlobInfo struct {
	BlobID          string            `json:"blob_id"`
	ObjectID        string            `json:"object_id,omitempty"`
	Size            int64             `json:"size"`
	RegisteredEpoch int64             `json:"registered_epoch"`
	CertifiedEpoch  *int64            `json:"certified_epoch,omitempty"`
	EndEpoch        int64             `json:"end_epoch"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}

// Certified reports whether a certification epoch is present.
func (i BlobInfo) Certified() bool {
	return i.CertifiedEpoch != nil
}

// RenewalEntry records one storage extension applied to a tracked blob.
type RenewalEntry struct {
	BlobID             string    `json:"blob_id"`
	Digest             string    `json:"digest"`
	AddedEpochs        int64     `json:"added_epochs"`
	PreviousEpoch      int64     `json:"previous_epoch"`
	NewExpirationEpoch int64     `json:"new_expiration_epoch"`
	CreatedAt          time.Time `json:"created_at"`
}

// Epoch returns a pointer to e, for optional epoch fields.
func Epoch(e int64) *int64 {
	return &e
}

// CloneAttributes copies an attribute map. Nil stays nil.
func CloneAttributes(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
