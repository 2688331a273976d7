package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"blobguard/internal/format"
	"blobguard/internal/models"
	"blobguard/internal/verify"
)

var (
	jsonFormatter format.Formatter = format.JSONFormatter{Indent: "  "}
	textFormatter format.Formatter = format.TextFormatter{}
)

func writeJSON(payload any) error {
	return jsonFormatter.Write(os.Stdout, payload)
}

func writeText(pairs format.Pairs) error {
	return textFormatter.Write(os.Stdout, pairs)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeLines(lines []string) error {
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatSize(size int64) string {
	if size < 0 {
		return "?"
	}
	return humanize.IBytes(uint64(size))
}

func formatEpoch(epoch *int64) string {
	if epoch == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *epoch)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// formatExpiry renders an expiration epoch relative to now.
func formatExpiry(expirationEpoch, currentEpoch int64, epochDuration time.Duration, now time.Time) string {
	remaining := time.Duration(expirationEpoch-currentEpoch) * epochDuration
	return fmt.Sprintf("epoch %d (%s)", expirationEpoch, humanize.Time(now.Add(remaining)))
}

func writeRecordLine(record models.BlobRecord, currentEpoch int64, epochDuration time.Duration) error {
	certified := "uncertified"
	if record.Certified() {
		certified = "certified"
	}
	return writePlain("%s  %8s  %-11s  expires %s\n",
		record.BlobID,
		formatSize(record.Size),
		certified,
		formatExpiry(record.ExpirationEpoch, currentEpoch, epochDuration, time.Now()),
	)
}

func writeRecordDetail(record models.BlobRecord, currentEpoch int64, epochDuration time.Duration) error {
	pairs := format.Pairs{}.
		Add("blob_id", record.BlobID).
		Add("size", fmt.Sprintf("%s (%d bytes)", formatSize(record.Size), record.Size)).
		Add("sha256", record.Checksums.SHA256).
		Add("sha512", record.Checksums.SHA512).
		Add("blake2b", record.Checksums.Blake2b).
		Add("registered_epoch", record.RegisteredEpoch).
		Add("certified_epoch", formatEpoch(record.CertifiedEpoch)).
		Add("expiration", formatExpiry(record.ExpirationEpoch, currentEpoch, epochDuration, time.Now())).
		Add("created_at", formatTime(record.CreatedAt)).
		Add("updated_at", formatTime(record.UpdatedAt))
	if record.ObjectID != "" {
		pairs = pairs.Add("object_id", record.ObjectID)
	}
	for _, key := range sortedKeys(record.Attributes) {
		pairs = pairs.Add("attr."+key, record.Attributes[key])
	}
	return writeText(pairs)
}

func writeVerification(result verify.VerificationResult) error {
	pairs := format.Pairs{}.
		Add("blob_id", result.Details.BlobID).
		Add("verified", result.Success).
		Add("size", formatSize(result.Details.Size)).
		Add("sha256", result.Checksums.SHA256).
		Add("certified_epoch", formatEpoch(result.Details.CertifiedEpoch)).
		Add("poa_complete", result.PoAComplete).
		Add("providers", result.Providers)
	for _, warning := range result.Warnings {
		pairs = pairs.Add("warning", warning)
	}
	return writeText(pairs)
}

func writeUpload(result verify.UploadResult) error {
	pairs := format.Pairs{}.
		Add("blob_id", result.BlobID).
		Add("size", formatSize(result.Size)).
		Add("sha256", result.Checksums.SHA256).
		Add("registered_epoch", result.RegisteredEpoch).
		Add("expiration_epoch", result.ExpirationEpoch).
		Add("certified_epoch", formatEpoch(result.CertifiedEpoch)).
		Add("poa_complete", result.PoAComplete).
		Add("providers", result.Providers)
	for _, warning := range result.Warnings {
		pairs = pairs.Add("warning", warning)
	}
	return writeText(pairs)
}
