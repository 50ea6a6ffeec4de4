// Package record defines the persisted entity shared by the store, the
// transaction scope and the event dispatcher.
//
// A Record moves through two identities:
//   - ProvisionalID is stamped when the record is created inside a scope
//   - ID is assigned by the durable store when the owning scope commits
//
// Ordering uses Seq from the logical Clock, never CreatedAt. CreatedAt is
// observability data only.
package record
