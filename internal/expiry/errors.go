package expiry

import (
	"errors"
	"fmt"
)

var ErrRenewalFailed = errors.New("renewal transaction failed")

// RenewalTransactionFailedError reports a renewal that will be retried on the next scan.
type RenewalTransactionFailedError struct {
	BlobID           string
	AdditionalEpochs int64
	Err              error
}

func (e *RenewalTransactionFailedError) Error() string {
	return fmt.Sprintf("renew blob %s by %d epochs: %v", e.BlobID, e.AdditionalEpochs, e.Err)
}

func (e *RenewalTransactionFailedError) Is(target error) bool { return target == ErrRenewalFailed }

func (e *RenewalTransactionFailedError) Unwrap() error { return e.Err }
