// Package container holds the local data of a node.
//
// The DataContainer maps keys to immutable Entry snapshots. Entries are never
// mutated in place: a command works on an MVCCEntry (a private, mutable copy
// created by the invocation pipeline) and the pipeline commits the copy back
// into the container once the command completed.
//
// Every entry carries two kinds of metadata:
//
//   - Metadata: user visible attributes (lifespan, creation time).
//   - InternalMetadata: bookkeeping of the replication protocol (version). It is
//     assigned by the primary owner and copied verbatim by the backup owners, so
//     all owners agree on the version of an entry.
//
// The container is backed by an xsync.MapOf and is safe for concurrent use.
// Per key mutual exclusion for read-modify-write cycles is the job of the lock
// manager, the container itself only guarantees atomic single operations.
package container
