// Package lockmgr implements the per key locks a primary owner takes while it
// executes a write command.
//
// The primary owner is the only node that evaluates the condition of a write
// and assigns the backup sequence number, so it must serialize all writes to
// the same key. Backup owners never lock: the order of their writes is decided
// by the primary and enforced by the sequence numbers of the backup commands.
//
// Core Functionality:
//   - Lock acquisition with an owner (the invocation id of the command)
//   - Bounded waiting: a lock that is not acquired within the timeout fails
//     with ErrTimeout. A zero timeout tries exactly once.
//   - Safe release: only the owner of a lock can release it
//   - Multi key locking in sorted key order, so two multi key commands never
//     deadlock each other
//
// Implementation Approach:
//
//	Every locked key maps to a lock record in an xsync.MapOf. The record holds
//	a one slot channel that acts as the mutex and a reference count of the
//	goroutines holding or waiting for it. The record is created on first use and
//	removed when the last reference is gone, so the map only contains keys that
//	are currently in use.
//
// Usage Example:
//
//	locks := lockmgr.NewLockManager()
//
//	if err := locks.LockAll(owner, []string{"b", "a"}, time.Second); err != nil {
//	    // errors.Is(err, lockmgr.ErrTimeout)
//	}
//	defer locks.UnlockAll(owner, []string{"a", "b"})
package lockmgr
