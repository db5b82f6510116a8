// Package order keeps the backup commands of a segment in the order the primary
// owner applied them.
//
// Primary side: the Sequencer hands out sequence numbers per (segment,
// topology). Within one topology a segment has exactly one primary owner, so
// the pair identifies the stream of backup commands of one primary. The first
// sequence of every stream is 1.
//
// Backup side: the Receiver applies the commands of a segment strictly in
// sequence order. Commands that arrive early are buffered in a sequence heap
// until the gap before them is filled, commands with a sequence that was
// already applied (redeliveries) are dropped. A command of a newer topology
// starts a new stream for its segment and discards what was buffered for the
// old one, a command of an older topology is dropped.
//
// The application of the commands of one segment is serialized, different
// segments are independent.
package order
