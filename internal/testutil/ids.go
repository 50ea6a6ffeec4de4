package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates prefix-0001, prefix-0002, ... without end.
//
// Unlike record.FixedGenerator, which panics once its list is exhausted,
// SequentialIDs suits scenarios whose ID count is not known up front.
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "id".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate implements record.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
