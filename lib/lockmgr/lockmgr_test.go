package lockmgr

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestLockUnlock(t *testing.T) {
	lm := NewLockManager()

	if err := lm.Lock("a", "k", 0); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if owner, locked := lm.Owner("k"); !locked || owner != "a" {
		t.Errorf("Owner() = %q, %v", owner, locked)
	}

	tests := []struct {
		name    string
		owner   string
		timeout time.Duration
	}{
		{"zero timeout tries once", "b", 0},
		{"short timeout", "b", 5 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := lm.Lock(tt.owner, "k", tt.timeout)
			if !errors.Is(err, ErrTimeout) {
				t.Errorf("Lock() error = %v, want ErrTimeout", err)
			}
		})
	}

	if err := lm.Unlock("b", "k"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Unlock() by non owner error = %v", err)
	}
	if err := lm.Unlock("a", "k"); err != nil {
		t.Errorf("Unlock() error = %v", err)
	}
	if _, locked := lm.Owner("k"); locked {
		t.Errorf("lock still held after Unlock()")
	}
	if err := lm.Unlock("a", "k"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("double Unlock() error = %v", err)
	}
	if n := lm.(*lockMgrImpl).locks.Size(); n != 0 {
		t.Errorf("%d lock records leaked", n)
	}
}

func TestLockWaitsForRelease(t *testing.T) {
	defer goleak.VerifyNone(t)

	lm := NewLockManager()
	if err := lm.Lock("a", "k", 0); err != nil {
		t.Fatal(err)
	}

	acquired := make(chan error)
	go func() {
		acquired <- lm.Lock("b", "k", time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := lm.Unlock("a", "k"); err != nil {
		t.Fatal(err)
	}
	if err := <-acquired; err != nil {
		t.Fatalf("waiting Lock() error = %v", err)
	}
	if owner, _ := lm.Owner("k"); owner != "b" {
		t.Errorf("Owner() = %q, want b", owner)
	}
	_ = lm.Unlock("b", "k")
}

func TestLockAllIsAllOrNothing(t *testing.T) {
	lm := NewLockManager()
	if err := lm.Lock("x", "c", 0); err != nil {
		t.Fatal(err)
	}

	err := lm.LockAll("y", []string{"c", "a", "b", "a"}, 0)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("LockAll() error = %v, want ErrTimeout", err)
	}
	for _, k := range []string{"a", "b"} {
		if _, locked := lm.Owner(k); locked {
			t.Errorf("key %s still locked after failed LockAll()", k)
		}
	}

	_ = lm.Unlock("x", "c")
	if err := lm.LockAll("y", []string{"c", "a", "b", "a"}, 0); err != nil {
		t.Fatalf("LockAll() error = %v", err)
	}
	lm.UnlockAll("y", []string{"a", "b", "c"})
	if n := lm.(*lockMgrImpl).locks.Size(); n != 0 {
		t.Errorf("%d lock records leaked", n)
	}
}

func TestMutualExclusion(t *testing.T) {
	defer goleak.VerifyNone(t)

	lm := NewLockManager()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				if err := lm.Lock(owner, "k", time.Second); err != nil {
					t.Errorf("Lock() error = %v", err)
					return
				}
				counter++
				_ = lm.Unlock(owner, "k")
			}
		}(i)
	}
	wg.Wait()
	if counter != 800 {
		t.Errorf("counter = %d, want 800", counter)
	}
}
