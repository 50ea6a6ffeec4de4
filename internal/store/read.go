package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/txsignal/internal/record"
)

// CountRecords returns the number of committed records of a kind.
func (s *Store) CountRecords(ctx context.Context, kind string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records WHERE kind = ?
	`, kind).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// ListRecords returns all committed records of a kind.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if no records exist.
func (s *Store) ListRecords(ctx context.Context, kind string) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provisional_id, kind, name, seq, scope_id, created_at, committed_at
		FROM records
		WHERE kind = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []record.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// ReadRecord retrieves a single committed record by permanent ID.
// Returns sql.ErrNoRows (wrapped) if not found.
func (s *Store) ReadRecord(ctx context.Context, id string) (record.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provisional_id, kind, name, seq, scope_id, created_at, committed_at
		FROM records
		WHERE id = ?
	`, id)

	return scanRecord(row)
}

// MaxSeq returns the highest committed seq, or 0 for an empty store.
// Used to resume the logical clock after a restart.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM records`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one records row.
func scanRecord(row rowScanner) (record.Record, error) {
	var rec record.Record
	var createdAt, committedAt string

	if err := row.Scan(
		&rec.ID, &rec.ProvisionalID, &rec.Kind, &rec.Name, &rec.Seq,
		&rec.ScopeID, &createdAt, &committedAt,
	); err != nil {
		return record.Record{}, fmt.Errorf("scan record: %w", err)
	}

	var err error
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return record.Record{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if rec.CommittedAt, err = time.Parse(timeLayout, committedAt); err != nil {
		return record.Record{}, fmt.Errorf("parse committed_at %q: %w", committedAt, err)
	}

	return rec, nil
}
