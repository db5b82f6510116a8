// Package ack implements the acknowledgment collector of the originator.
//
// The originator of a write registers an entry per invocation id before it
// sends the write to the primary owner(s). The entry records what still has to
// arrive:
//
//   - single key: the result of the primary owner and one ack per backup owner
//     of the key.
//   - multi key: the result of every primary owner involved and one ack per
//     (segment, backup owner) pair.
//
// An entry moves from StateAwaiting to exactly one final state:
//
//   - StateComplete: everything arrived, the future holds the Result.
//   - StateTopologyInvalidated: the topology changed while the operation was in
//     flight, the future fails with commands.ErrOutdatedTopology and the caller
//     retries the operation.
//   - StateFailed: an exception ack or a timeout failed the future.
//
// Acknowledgments carry the topology id the write was dispatched under. Acks of
// an older topology than the one of the entry are stale and ignored, acks of a
// newer topology invalidate the entry. A backup ack is only counted once per
// backup (and segment), redelivered acks are ignored. The entry is removed from
// the collector when it reaches its final state.
//
// Every entry is guarded by its own mutex, so acks of different operations never
// contend and concurrent acks of the same operation complete it exactly once.
package ack
