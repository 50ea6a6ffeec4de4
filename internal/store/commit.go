package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/txsignal/internal/record"
)

// timeLayout is the on-disk timestamp format. Always UTC.
const timeLayout = time.RFC3339Nano

// CommitRecords makes a scope's pending records durable in a single SQL
// transaction. Each record receives a permanent ID and CommittedAt.
//
// Either every record is written or none is. An identity collision is
// returned as *CommitConflictError; other failures are wrapped with context.
// The input slice is not modified.
func (s *Store) CommitRecords(ctx context.Context, pending []record.Record) ([]record.Record, error) {
	if len(pending) == 0 {
		return []record.Record{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("commit records: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	committedAt := s.now().UTC()
	committed := make([]record.Record, 0, len(pending))

	for _, rec := range pending {
		rec.ID = s.ids.Generate()
		rec.CommittedAt = committedAt

		_, err := tx.ExecContext(ctx, `
			INSERT INTO records
			(id, provisional_id, kind, name, seq, scope_id, created_at, committed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID,
			rec.ProvisionalID,
			rec.Kind,
			rec.Name,
			rec.Seq,
			rec.ScopeID,
			rec.CreatedAt.UTC().Format(timeLayout),
			committedAt.Format(timeLayout),
		)
		if err != nil {
			if isConstraintViolation(err) {
				return nil, &CommitConflictError{ID: rec.ID, ProvisionalID: rec.ProvisionalID, Err: err}
			}
			return nil, fmt.Errorf("commit records: insert %s: %w", rec.ProvisionalID, err)
		}

		committed = append(committed, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit records: commit: %w", err)
	}

	return committed, nil
}
