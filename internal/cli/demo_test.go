package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "demo.db")

	out, _, err := execute(t, "demo", "--db", db, "--delay", "0s")
	require.NoError(t, err)

	assert.Contains(t, out, "sync view:")
	assert.Contains(t, out, `create "Sync Test": committed`)
	assert.Contains(t, out, "thread view:")
	assert.Contains(t, out, `create "Thread Test": committed`)
	assert.Contains(t, out, "transaction view:")
	assert.Contains(t, out, `create "Rollback Test" (explicit): rolled_back`)
	assert.Contains(t, out, "Row count after transaction: 2")

	out, _, err = execute(t, "count", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestDemoCommand_JSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "demo.db")

	out, _, err := execute(t, "demo", "--db", db, "--delay", "0s", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			View     string `json:"view"`
			Expected string `json:"expected"`
			Outcome  struct {
				Status      string `json:"status"`
				ExecutionID string `json:"execution_id"`
			} `json:"outcome"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 3)

	ids := map[string]bool{}
	for _, v := range resp.Data {
		assert.Equal(t, v.Expected, v.Outcome.Status, v.View)
		ids[v.Outcome.ExecutionID] = true
	}
	assert.Len(t, ids, 3, "each view runs in its own execution context")
}
