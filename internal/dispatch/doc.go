// Package dispatch delivers record events to listeners synchronously.
//
// Listeners are registered on a Builder at startup and frozen into an
// immutable Registry. A Dispatcher then invokes, for each event, every
// listener registered for (event kind, source kind):
//
//   - on the calling goroutine, with no queueing or parallelism
//   - in registration order, never re-sorted
//   - fail-fast: the first listener error stops dispatch, and the remaining
//     listeners are not invoked
//
// Dispatch reports its outcome as a Result rather than panicking, and the
// caller (the record store) decides what the failure means for the
// enclosing transaction scope.
package dispatch
