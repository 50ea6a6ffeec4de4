// Package listeners provides the listeners that txsignal wires into its
// dispatcher: a configurable Demo listener that blocks, counts what it can
// see and optionally fails, plus a Recorder that captures what every
// invocation observed.
//
// All listeners run synchronously on the goroutine that created the record,
// inside that goroutine's scope.
package listeners
