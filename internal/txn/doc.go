// Package txn implements transaction scopes: explicit units of work whose
// pending writes become durable together or not at all.
//
// A scope travels in a context.Context. Code running inside the scope's
// dynamic extent, including listeners invoked synchronously during a write,
// sees the scope through FromContext and can add to it or mark it
// rollback-only.
//
// State machine:
//
//	Active --Commit--> Committed   (terminal)
//	Active --Rollback--> RolledBack (terminal)
//
// Pending writes are owned by the scope and never shared, so concurrent
// scopes need no locking until commit. Commits are serialized by the Manager.
package txn
