package main

import (
	"context"
	"errors"
	"net"

	"blobguard/internal/api"
	"blobguard/internal/expiry"
	"blobguard/internal/network"
	"blobguard/internal/store"
	"blobguard/internal/verify"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	switch {
	case errors.Is(err, errSignerRequired):
		lines = append(lines,
			"hint: generate a key with: blobguard keygen --save",
			"hint: or set BLOBGUARD_SIGNER_KEY to a hex ed25519 seed.",
		)
	case errors.Is(err, verify.ErrContentMismatch):
		lines = append(lines, "hint: stored bytes differ from the expected content; re-upload the blob or check the file you compared against.")
	case errors.Is(err, verify.ErrCertificationTimeout):
		lines = append(lines, "hint: the blob was written; resume with: blobguard certify-wait <blob-id>")
	case errors.Is(err, verify.ErrCertificationRequired):
		lines = append(lines, "hint: wait for certification with: blobguard certify-wait <blob-id>")
	case errors.Is(err, verify.ErrAttributeMismatch):
		lines = append(lines, "hint: drop --verify-attributes to report attribute differences as warnings.")
	case errors.Is(err, verify.ErrAvailabilityRequired):
		lines = append(lines, "hint: too few storage providers answered; retry later or lower --min-providers.")
	case errors.Is(err, verify.ErrAvailabilityMonitoringFailed):
		lines = append(lines, "hint: raise --max-attempts or --timeout if replication is still in progress.")
	case errors.Is(err, verify.ErrMonitorBusy):
		lines = append(lines, "hint: another monitor is already polling this blob.")
	case errors.Is(err, expiry.ErrRenewalFailed):
		lines = append(lines, "hint: failed renewals are retried on the next scan; check signer funds and network status.")
	case errors.Is(err, store.ErrRecordNotFound):
		lines = append(lines, "hint: list tracked blobs with: blobguard vault list")
	case errors.Is(err, network.ErrBlobNotFound):
		lines = append(lines, "hint: the blob id is unknown to the storage network or its storage has expired.")
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: the gateway rejected the request signature; check signer_key.")
		case "resource_exhausted":
			lines = append(lines, "hint: the gateway is busy with other uploads; retry shortly.")
		case "unavailable":
			lines = append(lines, "hint: the storage network behind the gateway is unavailable; retry later.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify BLOBGUARD_GATEWAY_URL points to a blobguard gateway.")
		}
		if apiErr.Status >= 500 && apiErr.Code != "unavailable" {
			lines = append(lines, "hint: gateway returned an internal error; check gateway logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check gateway health or increase BLOBGUARD_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a gateway is running at BLOBGUARD_GATEWAY_URL.",
			"hint: start a local gateway with: blobguard devnet",
			"hint: or use the in-process network with: --backend local",
		)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
