package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/txsignal/internal/record"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a pending record with minimal required fields.
func createTestRecord(provisionalID, name string, seq int64) record.Record {
	return record.Record{
		ProvisionalID: provisionalID,
		Kind:          record.DefaultKind,
		Name:          name,
		Seq:           seq,
		ScopeID:       "scope-1",
		CreatedAt:     testEpoch.Add(time.Duration(seq) * time.Second),
	}
}

func fixedNow() time.Time {
	return testEpoch.Add(time.Hour)
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		t.Fatalf("table_info(%s): %v", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan column: %v", err)
		}
		cols = append(cols, name)
	}
	return cols
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_index_list(?)", table)
	if err != nil {
		t.Fatalf("index_list(%s): %v", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan index: %v", err)
		}
		names = append(names, name)
	}
	return names
}
