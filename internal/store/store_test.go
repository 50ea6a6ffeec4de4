package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var name string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='records'").Scan(&name)
	assert.NoError(t, err, "records table missing after idempotent opens")
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 1, s.db.Stats().MaxOpenConnections)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.name, tt.expected))
		})
	}
}

func TestSchema_RecordsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "records")
	for _, col := range []string{
		"id", "provisional_id", "kind", "name", "seq", "scope_id", "created_at", "committed_at",
	} {
		assert.Contains(t, columns, col)
	}
}

func TestSchema_RecordsIndexes(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "records")
	assert.Contains(t, indexes, "idx_records_kind_seq")
	assert.Contains(t, indexes, "idx_records_scope")
	assert.Contains(t, indexes, "idx_records_provisional_unique")
}

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)

	// Simulate a database created before v1.
	_, err = s.db.Exec("DROP INDEX idx_records_provisional_unique")
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	s.Close()

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.verifyPragma("user_version", "1"))
	assert.Contains(t, getTableIndexes(t, s.db, "records"), "idx_records_provisional_unique")
}
