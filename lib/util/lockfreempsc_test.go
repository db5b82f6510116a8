package util

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// TestBasicOperations tests basic push and consume functionality
func TestBasicOperations(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewLockFreeMPSC[int]()

	for i := 0; i < 10; i++ {
		if !q.Push(i) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case val := <-q.Recv():
			if val != i {
				t.Errorf("Expected %d, got %v", i, val)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case val := <-q.Recv():
		t.Errorf("Queue should be empty, but got %v", val)
	case <-time.After(10 * time.Millisecond):
	}

	q.Close()
	for range q.Recv() {
	}
	q.Wait()
}

// TestPerProducerOrder verifies that every producer's items arrive in push order
func TestPerProducerOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	type item struct {
		producer int
		seq      int
	}

	q := NewLockFreeMPSC[item]()

	const numProducers = 8
	const itemsPerProducer = 500

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producer int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				if !q.Push(item{producer: producer, seq: i}) {
					t.Errorf("Producer %d failed to push item %d", producer, i)
				}
			}
		}(p)
	}

	last := make(map[int]int)
	for p := 0; p < numProducers; p++ {
		last[p] = -1
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for it := range q.Recv() {
			if it.seq != last[it.producer]+1 {
				t.Errorf("producer %d: got seq %d after %d", it.producer, it.seq, last[it.producer])
			}
			last[it.producer] = it.seq
		}
	}()

	wg.Wait()
	q.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer did not finish")
	}
	q.Wait()

	for p := 0; p < numProducers; p++ {
		if last[p] != itemsPerProducer-1 {
			t.Errorf("producer %d: last received %d, want %d", p, last[p], itemsPerProducer-1)
		}
	}
}

// TestCloseQueue verifies pending items are drained and pushes fail afterwards
func TestCloseQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewLockFreeMPSC[string]()
	q.Push("a")
	q.Push("b")
	q.Close()

	if q.Push("c") {
		t.Errorf("Push after Close must fail")
	}
	if !q.IsClosed() {
		t.Errorf("IsClosed() = false")
	}

	var got []string
	for v := range q.Recv() {
		got = append(got, v)
	}
	q.Wait()

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("drained %v, want [a b]", got)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func BenchmarkMultiProducer(b *testing.B) {
	q := NewLockFreeMPSC[int]()
	done := make(chan struct{})
	go func() {
		for range q.Recv() {
		}
		close(done)
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q.Push(i)
			i++
		}
	})
	b.StopTimer()

	q.Close()
	<-done
}
