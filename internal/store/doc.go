// Package store provides SQLite-backed durable storage for committed records.
//
// Only committed records live here. A scope keeps its pending writes in
// memory and hands them to CommitRecords in one call when it commits, so
// another scope can never observe them early.
//
// # Critical Patterns
//
// Atomic commits
//   - CommitRecords writes every record of a scope in one SQL transaction
//   - Any failure rolls the whole batch back
//
// Identity on commit
//   - Permanent IDs come from the store's IDGenerator at commit time
//   - A collision on id or provisional_id is reported as CommitConflictError
//
// Deterministic reads
//   - All list queries use ORDER BY seq ASC, id ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection: commits are serialized by the pool
package store
