package lockmgr

import (
	"errors"
	"time"
)

// ErrTimeout is returned if a lock could not be acquired in time.
var ErrTimeout = errors.New("lock acquisition timed out")

// ErrNotOwner is returned when releasing a lock held by someone else.
var ErrNotOwner = errors.New("lock is not held by owner")

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// Lock acquires the lock of key for owner, waiting at most timeout.
	Lock(owner, key string, timeout time.Duration) error

	// LockAll acquires the locks of all keys. Either all locks are acquired or
	// none: on failure the already acquired locks are released again.
	LockAll(owner string, keys []string, timeout time.Duration) error

	// Unlock releases the lock of key held by owner.
	Unlock(owner, key string) error

	// UnlockAll releases the locks of all keys held by owner.
	UnlockAll(owner string, keys []string)

	// Owner returns the current owner of the lock of key.
	Owner(key string) (owner string, locked bool)
}
