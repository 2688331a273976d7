package verify

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"blobguard/internal/models"
)

var (
	ErrContentMismatch              = errors.New("content mismatch")
	ErrCertificationRequired        = errors.New("certification required")
	ErrCertificationTimeout         = errors.New("certification timeout")
	ErrAttributeMismatch            = errors.New("attribute mismatch")
	ErrAvailabilityRequired         = errors.New("availability requirement not met")
	ErrAvailabilityMonitoringFailed = errors.New("availability monitoring failed")
	ErrMonitorBusy                  = errors.New("availability monitor already running for blob")
)

// ContentMismatchError reports fetched bytes whose digests differ from the
// expected content. It is never retried.
type ContentMismatchError struct {
	BlobID   string
	Expected models.Checksums
	Actual   models.Checksums
}

func (e *ContentMismatchError) Error() string {
	return fmt.Sprintf("content mismatch for blob %s: expected sha256 %s, got %s", e.BlobID, e.Expected.SHA256, e.Actual.SHA256)
}

func (e *ContentMismatchError) Is(target error) bool { return target == ErrContentMismatch }

// CertificationRequiredError reports an uncertified blob when certification was required.
type CertificationRequiredError struct {
	BlobID          string
	RegisteredEpoch int64
}

func (e *CertificationRequiredError) Error() string {
	return fmt.Sprintf("blob %s is not certified (registered at epoch %d)", e.BlobID, e.RegisteredEpoch)
}

func (e *CertificationRequiredError) Is(target error) bool { return target == ErrCertificationRequired }

// CertificationTimeoutError reports that no certification epoch appeared in time.
type CertificationTimeoutError struct {
	BlobID  string
	Timeout time.Duration
	Polls   int
	LastErr error
}

func (e *CertificationTimeoutError) Error() string {
	msg := fmt.Sprintf("blob %s not certified within %s after %d polls", e.BlobID, e.Timeout, e.Polls)
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.LastErr)
	}
	return msg
}

func (e *CertificationTimeoutError) Is(target error) bool { return target == ErrCertificationTimeout }

func (e *CertificationTimeoutError) Unwrap() error { return e.LastErr }

// AttributeDiff describes one attribute that differs from the expected value.
// Missing is set when the stored map lacks the key; Unexpected when the key
// exists only in storage (strict mode).
type AttributeDiff struct {
	Key        string `json:"key"`
	Expected   string `json:"expected,omitempty"`
	Actual     string `json:"actual,omitempty"`
	Missing    bool   `json:"missing,omitempty"`
	Unexpected bool   `json:"unexpected,omitempty"`
}

func (d AttributeDiff) String() string {
	switch {
	case d.Missing:
		return fmt.Sprintf("%s: missing (expected %q)", d.Key, d.Expected)
	case d.Unexpected:
		return fmt.Sprintf("%s: unexpected value %q", d.Key, d.Actual)
	default:
		return fmt.Sprintf("%s: expected %q, got %q", d.Key, d.Expected, d.Actual)
	}
}

// AttributeMismatchError lists every attribute difference found.
type AttributeMismatchError struct {
	BlobID     string
	Mismatches []AttributeDiff
}

func (e *AttributeMismatchError) Error() string {
	parts := make([]string, 0, len(e.Mismatches))
	for _, d := range e.Mismatches {
		parts = append(parts, d.String())
	}
	return fmt.Sprintf("attribute mismatch for blob %s: %s", e.BlobID, strings.Join(parts, "; "))
}

func (e *AttributeMismatchError) Is(target error) bool { return target == ErrAttributeMismatch }

// AvailabilityRequiredError reports a failed PoA or provider quorum when the
// caller asked for availability to be enforced.
type AvailabilityRequiredError struct {
	BlobID       string
	PoAComplete  bool
	Providers    int
	MinProviders int
}

func (e *AvailabilityRequiredError) Error() string {
	return fmt.Sprintf("blob %s availability not confirmed: poa_complete=%t providers=%d/%d", e.BlobID, e.PoAComplete, e.Providers, e.MinProviders)
}

func (e *AvailabilityRequiredError) Is(target error) bool { return target == ErrAvailabilityRequired }

// AvailabilityMonitoringFailedError reports an exhausted monitoring budget.
type AvailabilityMonitoringFailedError struct {
	BlobID   string
	Attempts int
	Elapsed  time.Duration
	LastErr  error
}

func (e *AvailabilityMonitoringFailedError) Error() string {
	msg := fmt.Sprintf("blob %s not available after %d attempts in %s", e.BlobID, e.Attempts, e.Elapsed.Round(time.Millisecond))
	if e.LastErr != nil {
		msg += fmt.Sprintf(": %v", e.LastErr)
	}
	return msg
}

func (e *AvailabilityMonitoringFailedError) Is(target error) bool {
	return target == ErrAvailabilityMonitoringFailed
}

func (e *AvailabilityMonitoringFailedError) Unwrap() error { return e.LastErr }

// NetworkError wraps a transport failure from a collaborator.
type NetworkError struct {
	Op     string
	BlobID string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.BlobID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.BlobID, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func compareAttributes(expected, actual map[string]string, strict bool) []AttributeDiff {
	var diffs []AttributeDiff
	for key, want := range expected {
		got, ok := actual[key]
		switch {
		case !ok:
			diffs = append(diffs, AttributeDiff{Key: key, Expected: want, Missing: true})
		case got != want:
			diffs = append(diffs, AttributeDiff{Key: key, Expected: want, Actual: got})
		}
	}
	if strict {
		for key, got := range actual {
			if _, ok := expected[key]; !ok {
				diffs = append(diffs, AttributeDiff{Key: key, Actual: got, Unexpected: true})
			}
		}
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Key < diffs[j].Key })
	return diffs
}
