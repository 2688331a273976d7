package store

import (
	"context"
	"fmt"
	"time"

	"blobguard/internal/models"
)

// RecordRenewal appends one renewal to the blob's history.
func (s *Store) RecordRenewal(ctx context.Context, entry models.RenewalEntry) error {
	if entry.BlobID == "" {
		return fmt.Errorf("blob_id is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blob_renewals (blob_id, digest, added_epochs, previous_epoch, new_expiration_epoch, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.BlobID, entry.Digest, entry.AddedEpochs, entry.PreviousEpoch, entry.NewExpirationEpoch, dbFormatTime(entry.CreatedAt))
	return err
}

// ListRenewals lists renewals for one blob, oldest first.
func (s *Store) ListRenewals(ctx context.Context, blobID string) ([]models.RenewalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT blob_id, digest, added_epochs, previous_epoch, new_expiration_epoch, created_at
		FROM blob_renewals WHERE blob_id = ? ORDER BY id ASC
	`, blobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.RenewalEntry{}
	for rows.Next() {
		var entry models.RenewalEntry
		var createdAt string
		if err := rows.Scan(&entry.BlobID, &entry.Digest, &entry.AddedEpochs, &entry.PreviousEpoch, &entry.NewExpirationEpoch, &createdAt); err != nil {
			return nil, err
		}
		if entry.CreatedAt, err = dbParseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
