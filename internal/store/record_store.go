package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vbonduro/tcmtongue/internal/domain"
)

type RecordStore struct {
	db *sql.DB
}

func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

const recordColumns = `id, original_filename, storage_key, mime_type, backend, analysis, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	rec := &domain.Record{}
	err := row.Scan(&rec.ID, &rec.OriginalFilename, &rec.StorageKey, &rec.MimeType,
		&rec.Backend, &rec.Analysis, &rec.CreatedAt)
	return rec, err
}

// Create inserts rec and returns the stored row, including its created_at.
func (s *RecordStore) Create(ctx context.Context, rec *domain.Record) (*domain.Record, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, original_filename, storage_key, mime_type, backend, analysis)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.OriginalFilename, rec.StorageKey, rec.MimeType, rec.Backend, rec.Analysis)
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	return s.GetByID(ctx, rec.ID)
}

// GetByID returns nil, nil when no record has the given id.
func (s *RecordStore) GetByID(ctx context.Context, id string) (*domain.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// List returns all records, newest first.
func (s *RecordStore) List(ctx context.Context) ([]*domain.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// CountByStorageKey reports how many records point at the same saved file.
func (s *RecordStore) CountByStorageKey(ctx context.Context, storageKey string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE storage_key = ?`, storageKey).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

func (s *RecordStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("record not found")
	}

	return nil
}
