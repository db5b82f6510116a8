package lockmgr

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type lockRecord struct {
	sem   chan struct{}
	refs  int
	mu    sync.Mutex
	owner string
}

type lockMgrImpl struct {
	locks *xsync.MapOf[string, *lockRecord]
}

func NewLockManager() ILockManager {
	return &lockMgrImpl{
		locks: xsync.NewMapOf[string, *lockRecord](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see interface.go)
// --------------------------------------------------------------------------

func (lm *lockMgrImpl) Lock(owner, key string, timeout time.Duration) error {
	rec := lm.retain(key)

	if !acquire(rec.sem, timeout) {
		lm.release(key)
		return fmt.Errorf("key %q (owner %s, waited %s): %w", key, owner, timeout, ErrTimeout)
	}

	rec.mu.Lock()
	rec.owner = owner
	rec.mu.Unlock()
	return nil
}

func (lm *lockMgrImpl) LockAll(owner string, keys []string, timeout time.Duration) error {
	sorted := uniqueSorted(keys)
	deadline := time.Now().Add(timeout)

	for i, key := range sorted {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if err := lm.Lock(owner, key, remaining); err != nil {
			lm.UnlockAll(owner, sorted[:i])
			return err
		}
	}
	return nil
}

func (lm *lockMgrImpl) Unlock(owner, key string) error {
	rec, ok := lm.locks.Load(key)
	if !ok {
		return fmt.Errorf("key %q: %w", key, ErrNotOwner)
	}

	rec.mu.Lock()
	if rec.owner != owner {
		rec.mu.Unlock()
		return fmt.Errorf("key %q is held by %s, not %s: %w", key, rec.owner, owner, ErrNotOwner)
	}
	rec.owner = ""
	rec.mu.Unlock()

	<-rec.sem
	lm.release(key)
	return nil
}

func (lm *lockMgrImpl) UnlockAll(owner string, keys []string) {
	for _, key := range uniqueSorted(keys) {
		_ = lm.Unlock(owner, key)
	}
}

func (lm *lockMgrImpl) Owner(key string) (string, bool) {
	rec, ok := lm.locks.Load(key)
	if !ok {
		return "", false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.owner, rec.owner != ""
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// retain returns the record of key and increments its reference count.
func (lm *lockMgrImpl) retain(key string) *lockRecord {
	rec, _ := lm.locks.Compute(key, func(old *lockRecord, loaded bool) (*lockRecord, bool) {
		if !loaded {
			old = &lockRecord{sem: make(chan struct{}, 1)}
		}
		old.refs++
		return old, false
	})
	return rec
}

// release decrements the reference count and drops unused records.
func (lm *lockMgrImpl) release(key string) {
	lm.locks.Compute(key, func(old *lockRecord, loaded bool) (*lockRecord, bool) {
		if !loaded {
			return nil, true
		}
		old.refs--
		return old, old.refs <= 0
	})
}

func acquire(sem chan struct{}, timeout time.Duration) bool {
	select {
	case sem <- struct{}{}:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func uniqueSorted(keys []string) []string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, k := range sorted {
		if i == 0 || k != sorted[i-1] {
			out = append(out, k)
		}
	}
	return out
}
