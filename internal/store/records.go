package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"blobguard/internal/models"
)

// ErrRecordNotFound reports a blob id absent from the vault.
var ErrRecordNotFound = errors.New("blob record not found")

const blobRecordColumns = "blob_id, object_id, size, sha256, sha512, blake2b, registered_epoch, certified_epoch, expiration_epoch, created_at, updated_at"

// PutBlobRecord inserts a record or replaces it on re-upload. A re-upload
// keeps an existing certification and never shortens the expiration epoch.
func (s *Store) PutBlobRecord(ctx context.Context, record *models.BlobRecord) (err error) {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	record.BlobID = strings.TrimSpace(record.BlobID)
	if err := record.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO blob_records (`+blobRecordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(blob_id) DO UPDATE SET
		  object_id = excluded.object_id,
		  size = excluded.size,
		  sha256 = excluded.sha256,
		  sha512 = excluded.sha512,
		  blake2b = excluded.blake2b,
		  certified_epoch = COALESCE(blob_records.certified_epoch, excluded.certified_epoch),
		  expiration_epoch = MAX(blob_records.expiration_epoch, excluded.expiration_epoch),
		  updated_at = excluded.updated_at
	`,
		record.BlobID,
		nullString(record.ObjectID),
		record.Size,
		record.Checksums.SHA256,
		record.Checksums.SHA512,
		record.Checksums.Blake2b,
		record.RegisteredEpoch,
		nullEpoch(record.CertifiedEpoch),
		record.ExpirationEpoch,
		dbFormatTime(record.CreatedAt),
		dbFormatTime(record.UpdatedAt),
	)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM blob_attributes WHERE blob_id = ?", record.BlobID); err != nil {
		return err
	}
	for key, value := range record.Attributes {
		if _, err = tx.ExecContext(ctx, "INSERT INTO blob_attributes (blob_id, key, value) VALUES (?, ?, ?)", record.BlobID, key, value); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetBlobRecord returns one record with attributes, or nil when absent.
func (s *Store) GetBlobRecord(ctx context.Context, blobID string) (*models.BlobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobRecordColumns+` FROM blob_records WHERE blob_id = ?`, blobID)
	record, err := scanBlobRecord(row)
	if err != nil || record == nil {
		return record, err
	}
	attrs, err := s.listAttributes(ctx, blobID)
	if err != nil {
		return nil, err
	}
	record.Attributes = attrs
	return record, nil
}

// ListBlobRecords lists all records ordered by expiration epoch.
func (s *Store) ListBlobRecords(ctx context.Context) ([]models.BlobRecord, error) {
	return s.queryRecords(ctx, `SELECT `+blobRecordColumns+` FROM blob_records ORDER BY expiration_epoch ASC, blob_id ASC`)
}

// GetExpiringBlobs lists records whose expiration epoch is at or before untilEpoch.
func (s *Store) GetExpiringBlobs(ctx context.Context, untilEpoch int64) ([]models.BlobRecord, error) {
	return s.queryRecords(ctx, `SELECT `+blobRecordColumns+` FROM blob_records WHERE expiration_epoch <= ? ORDER BY expiration_epoch ASC, blob_id ASC`, untilEpoch)
}

// UpdateBlobExpiry moves the expiration epoch forward. It reports false when
// newEpoch would not extend the lease.
func (s *Store) UpdateBlobExpiry(ctx context.Context, blobID string, newEpoch int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE blob_records SET expiration_epoch = ?, updated_at = ? WHERE blob_id = ? AND expiration_epoch < ?",
		newEpoch, dbFormatTime(time.Now().UTC()), blobID, newEpoch)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	exists, err := s.recordExists(ctx, blobID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("%w: %s", ErrRecordNotFound, blobID)
	}
	return false, nil
}

// MarkCertified sets the certification epoch once. Later calls are no-ops.
func (s *Store) MarkCertified(ctx context.Context, blobID string, epoch int64) error {
	record, err := s.GetBlobRecord(ctx, blobID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, blobID)
	}
	if record.CertifiedEpoch != nil {
		return nil
	}
	if epoch < record.RegisteredEpoch {
		return fmt.Errorf("certified epoch %d precedes registered epoch %d", epoch, record.RegisteredEpoch)
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE blob_records SET certified_epoch = ?, updated_at = ? WHERE blob_id = ? AND certified_epoch IS NULL",
		epoch, dbFormatTime(time.Now().UTC()), blobID)
	return err
}

// DropBlobRecord stops tracking a blob. Missing records are ignored.
func (s *Store) DropBlobRecord(ctx context.Context, blobID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM blob_records WHERE blob_id = ?", blobID)
	return err
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]models.BlobRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.BlobRecord{}
	for rows.Next() {
		record, err := scanBlobRecord(rows)
		if err != nil {
			return nil, err
		}
		if record == nil {
			continue
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		attrs, err := s.listAttributes(ctx, records[i].BlobID)
		if err != nil {
			return nil, err
		}
		records[i].Attributes = attrs
	}
	return records, nil
}

func (s *Store) listAttributes(ctx context.Context, blobID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM blob_attributes WHERE blob_id = ? ORDER BY key ASC", blobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attrs map[string]string
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		if attrs == nil {
			attrs = map[string]string{}
		}
		attrs[key] = value
	}
	return attrs, rows.Err()
}

func (s *Store) recordExists(ctx context.Context, blobID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM blob_records WHERE blob_id = ? LIMIT 1", blobID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanBlobRecord(scanner interface {
	Scan(dest ...any) error
}) (*models.BlobRecord, error) {
	record := models.BlobRecord{}

	var objectID sql.NullString
	var certified sql.NullInt64
	var createdAt, updatedAt string

	err := scanner.Scan(
		&record.BlobID,
		&objectID,
		&record.Size,
		&record.Checksums.SHA256,
		&record.Checksums.SHA512,
		&record.Checksums.Blake2b,
		&record.RegisteredEpoch,
		&certified,
		&record.ExpirationEpoch,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	record.ObjectID = objectID.String
	if certified.Valid {
		record.CertifiedEpoch = models.Epoch(certified.Int64)
	}
	if record.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &record, nil
}

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func dbParseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", value, err)
	}
	return t, nil
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}

func nullEpoch(epoch *int64) sql.NullInt64 {
	if epoch == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *epoch, Valid: true}
}
