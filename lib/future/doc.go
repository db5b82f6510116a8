// Package future provides a minimal completable future.
//
// A Future is completed at most once, either with a value or with an error.
// Consumers block on Get (bounded by a context) or select on Done.
package future
