// Package invocation executes write commands against the local data container.
//
// The Pipeline runs a command in an invocation Context in the following steps:
//
//  1. Lock: the keys of the command are locked with the invocation id as lock
//     owner, unless the command carries the SkipLocking flag (backup owners).
//     A command with ZeroLockAcquisitionTimeout tries the locks exactly once.
//  2. Wrap: every affected key is wrapped into a private MVCC entry.
//  3. Perform: the command is performed against the wrapped entries.
//  4. Commit: changed entries are written back into the container.
//  5. Hook: an optional commit hook runs while the locks are still held. The
//     primary owner uses it to assign sequence numbers and send the backups, so
//     the backup order always matches the order the writes were applied in.
//  6. Unlock.
//
// Records remembers the outcome of commands a primary owner executed, keyed by
// invocation id. A retried command finds the outcome of its earlier attempt
// there instead of being executed twice. Records expire after a TTL.
package invocation
