package cluster_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/tKV/lib/cluster"
	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/topology"
	"go.uber.org/goleak"
)

const numSegments = 8

type testCluster struct {
	t       *testing.T
	network *cluster.LocalNetwork
	nodes   []*cluster.Node
	members []topology.Address
}

func newCluster(t *testing.T, size, owners int) *testCluster {
	t.Helper()
	c := &testCluster{t: t, network: cluster.NewLocalNetwork()}
	for i := 0; i < size; i++ {
		c.members = append(c.members, topology.Address(fmt.Sprintf("node-%d-%s", i, topology.NewAddress())))
	}
	initial, err := topology.NewCacheTopology(1, c.members, numSegments, owners)
	if err != nil {
		t.Fatal(err)
	}
	cfg := cluster.Config{AckTimeout: 5 * time.Second, RetryBackoff: 20 * time.Millisecond, MaxRetries: 5}
	for _, m := range c.members {
		tr, err := c.network.Join(m)
		if err != nil {
			t.Fatal(err)
		}
		c.nodes = append(c.nodes, cluster.NewNode(tr, initial, cfg))
	}
	return c
}

func (c *testCluster) close() {
	for _, n := range c.nodes {
		_ = n.Close()
	}
}

func (c *testCluster) node(a topology.Address) *cluster.Node {
	for _, n := range c.nodes {
		if n.Address() == a {
			return n
		}
	}
	c.t.Fatalf("no node %s", a)
	return nil
}

// install installs a topology with the same members and owners count on all
// nodes.
func (c *testCluster) install(id, owners int) {
	next := c.newTopology(id, owners)
	for _, n := range c.nodes {
		n.UpdateTopology(next)
	}
}

// newTopology returns a topology with the members of the cluster.
func (c *testCluster) newTopology(id, owners int) *topology.CacheTopology {
	next, err := topology.NewCacheTopology(id, c.members, numSegments, owners)
	if err != nil {
		c.t.Fatal(err)
	}
	return next
}

// keyWithPrimary returns a key whose primary owner is primary.
func (c *testCluster) keyWithPrimary(primary topology.Address) string {
	t := c.nodes[0].Topology()
	for i := 0; ; i++ {
		key := fmt.Sprintf("key-%d", i)
		if t.Distribution(key, primary).IsPrimary() {
			return key
		}
	}
}

func (c *testCluster) owners(key string) []topology.Address {
	return c.nodes[0].Topology().Distribution(key, "").WriteOwners()
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestPutGetReplicated(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 3, 2)
	defer c.close()

	tests := []struct {
		name       string
		originator int
		primary    int
	}{
		{"local primary", 0, 0},
		{"remote primary", 0, 1},
		{"remote primary other node", 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin := c.nodes[tt.originator]
			key := c.keyWithPrimary(c.members[tt.primary])
			value := []byte("value of " + tt.name)

			prev, err := origin.Put(ctx(t), key, value)
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if prev != nil {
				t.Errorf("Put() prev = %q, want nil", prev)
			}
			// the write completes only after all backups acknowledged it
			for _, owner := range c.owners(key) {
				got, ok := c.node(owner).Container().Peek(key)
				if !ok || string(got) != string(value) {
					t.Errorf("owner %s has %q (%v)", owner, got, ok)
				}
			}
			for _, n := range c.nodes {
				got, ok, err := n.Get(ctx(t), key)
				if err != nil || !ok || string(got) != string(value) {
					t.Errorf("%s: Get() = %q, %v, %v", n.Address(), got, ok, err)
				}
			}

			prev, err = origin.Put(ctx(t), key, []byte("second"))
			if err != nil || string(prev) != string(value) {
				t.Errorf("second Put() = %q, %v", prev, err)
			}
		})
	}
}

func TestConditionalWrites(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 3, 2)
	defer c.close()

	origin := c.nodes[0]
	key := c.keyWithPrimary(c.members[1])

	if _, ok, err := origin.PutIfAbsent(ctx(t), key, []byte("v1")); err != nil || !ok {
		t.Fatalf("PutIfAbsent() = %v, %v", ok, err)
	}
	existing, ok, err := origin.PutIfAbsent(ctx(t), key, []byte("v2"))
	if err != nil || ok || string(existing) != "v1" {
		t.Errorf("second PutIfAbsent() = %q, %v, %v", existing, ok, err)
	}

	if ok, err := origin.ReplaceIf(ctx(t), key, []byte("wrong"), []byte("v3")); err != nil || ok {
		t.Errorf("ReplaceIf(wrong) = %v, %v", ok, err)
	}
	if ok, err := origin.ReplaceIf(ctx(t), key, []byte("v1"), []byte("v3")); err != nil || !ok {
		t.Errorf("ReplaceIf(v1) = %v, %v", ok, err)
	}
	prev, ok, err := origin.Replace(ctx(t), key, []byte("v4"))
	if err != nil || !ok || string(prev) != "v3" {
		t.Errorf("Replace() = %q, %v, %v", prev, ok, err)
	}
	if _, ok, err := origin.Replace(ctx(t), "missing", []byte("x")); err != nil || ok {
		t.Errorf("Replace(missing) = %v, %v", ok, err)
	}

	if ok, err := origin.RemoveIf(ctx(t), key, []byte("v1")); err != nil || ok {
		t.Errorf("RemoveIf(v1) = %v, %v", ok, err)
	}
	if ok, err := origin.RemoveIf(ctx(t), key, []byte("v4")); err != nil || !ok {
		t.Errorf("RemoveIf(v4) = %v, %v", ok, err)
	}
	for _, owner := range c.owners(key) {
		if _, ok := c.node(owner).Container().Peek(key); ok {
			t.Errorf("owner %s still has %q", owner, key)
		}
	}
}

func TestComputeAndFunctions(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 3, 2)
	defer c.close()

	origin := c.nodes[2]
	key := c.keyWithPrimary(c.members[0])

	for i := 1; i <= 3; i++ {
		got, err := origin.Compute(ctx(t), key, commands.FnIncrement, nil)
		if err != nil || string(got) != strconv.Itoa(i) {
			t.Fatalf("Compute() #%d = %q, %v", i, got, err)
		}
	}
	if got, err := origin.ComputeIfAbsent(ctx(t), key, commands.FnAppend, []byte("x")); err != nil || string(got) != "3" {
		t.Errorf("ComputeIfAbsent(existing) = %q, %v", got, err)
	}
	if got, err := origin.ComputeIfPresent(ctx(t), "absent-key", commands.FnAppend, []byte("x")); err != nil || got != nil {
		t.Errorf("ComputeIfPresent(missing) = %q, %v", got, err)
	}
	if got, err := origin.Eval(ctx(t), key, commands.FnGetAndSet, []byte("reset")); err != nil || string(got) != "3" {
		t.Errorf("Eval() = %q, %v", got, err)
	}
	if err := origin.EvalWriteOnly(ctx(t), key, commands.FnSet, []byte("written")); err != nil {
		t.Fatalf("EvalWriteOnly() error = %v", err)
	}
	for _, owner := range c.owners(key) {
		if got, _ := c.node(owner).Container().Peek(key); string(got) != "written" {
			t.Errorf("owner %s has %q", owner, got)
		}
	}

	if _, err := origin.Compute(ctx(t), key, "no-such-function", nil); err == nil {
		t.Error("Compute() with unknown function succeeded")
	}
}

func TestPutAllSplitsByOwner(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 3, 2)
	defer c.close()

	entries := make(map[string][]byte)
	for i := 0; i < 20; i++ {
		entries[fmt.Sprintf("bulk-%d", i)] = []byte(strconv.Itoa(i))
	}
	prev, err := c.nodes[1].PutAll(ctx(t), entries)
	if err != nil {
		t.Fatalf("PutAll() error = %v", err)
	}
	if len(prev) != 0 {
		t.Errorf("PutAll() prev = %v, want none", prev)
	}
	for key, value := range entries {
		for _, owner := range c.owners(key) {
			if got, ok := c.node(owner).Container().Peek(key); !ok || string(got) != string(value) {
				t.Errorf("owner %s has %s=%q (%v)", owner, key, got, ok)
			}
		}
	}

	keys := []string{"bulk-1", "bulk-2", "bulk-3"}
	returns, err := c.nodes[0].EvalMany(ctx(t), keys, commands.FnGetAndSet, []byte("new"))
	if err != nil {
		t.Fatalf("EvalMany() error = %v", err)
	}
	for _, k := range keys {
		if string(returns[k]) != string(entries[k]) {
			t.Errorf("EvalMany()[%s] = %q, want %q", k, returns[k], entries[k])
		}
	}
	if err := c.nodes[2].WriteOnlyMany(ctx(t), keys, commands.FnDelete, nil); err != nil {
		t.Fatalf("WriteOnlyMany() error = %v", err)
	}
	for _, k := range keys {
		for _, owner := range c.owners(k) {
			if _, ok := c.node(owner).Container().Peek(k); ok {
				t.Errorf("owner %s still has %s", owner, k)
			}
		}
	}
}

func TestRemoveMissingIsNotReplicated(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 3, 3)
	defer c.close()

	var backups atomic.Int32
	c.network.SetInterceptor(func(_, _ topology.Address, cmd commands.ReplicableCommand) bool {
		if cmd.CommandID() == commands.TypeBackupWrite {
			backups.Add(1)
		}
		return true
	})

	key := c.keyWithPrimary(c.members[1])
	if prev, err := c.nodes[0].Remove(ctx(t), key); err != nil || prev != nil {
		t.Fatalf("Remove() = %q, %v", prev, err)
	}
	if got := backups.Load(); got != 0 {
		t.Errorf("remove of a missing key sent %d backups", got)
	}

	if _, err := c.nodes[0].Put(ctx(t), key, []byte("v")); err != nil {
		t.Fatal(err)
	}
	if got := backups.Load(); got != 2 {
		t.Errorf("put sent %d backups, want 2", got)
	}
}

func TestBackupsApplyInSequenceOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 2, 2)
	defer c.close()

	primary, backup := c.members[0], c.members[1]
	key := c.keyWithPrimary(primary)

	var mu sync.Mutex
	var held []commands.ReplicableCommand
	c.network.SetInterceptor(func(_, to topology.Address, cmd commands.ReplicableCommand) bool {
		if to != backup || cmd.CommandID() != commands.TypeBackupWrite {
			return true
		}
		mu.Lock()
		defer mu.Unlock()
		held = append(held, cmd)
		return false
	})

	values := []string{"v1", "v2", "v3"}
	var wg sync.WaitGroup
	errs := make(chan error, len(values))
	for i, v := range values {
		// one write at a time reaches the primary, so sequence i+1 carries v
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			_, err := c.node(primary).Put(ctx(t), key, []byte(v))
			errs <- err
		}(v)
		waitFor(t, "held backup", func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(held) == i+1
		})
	}

	// deliver in the order 3, 1, 2
	mu.Lock()
	order := []commands.ReplicableCommand{held[2], held[0], held[1]}
	mu.Unlock()
	for _, cmd := range order {
		if err := c.network.Deliver(primary, backup, cmd); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Put() error = %v", err)
		}
	}
	if got, _ := c.node(backup).Container().Peek(key); string(got) != "v3" {
		t.Errorf("backup has %q, want v3", got)
	}
}

func TestRetryAfterTopologyChange(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 3, 2)
	defer c.close()

	origin := c.nodes[0]
	key := c.keyWithPrimary(c.members[1])

	// backups of the first topology never arrive
	var dropped atomic.Int32
	c.network.SetInterceptor(func(_, _ topology.Address, cmd commands.ReplicableCommand) bool {
		if b, ok := cmd.(*commands.BackupWriteCommand); ok && b.TopologyID() == 1 {
			dropped.Add(1)
			return false
		}
		return true
	})

	done := make(chan error, 1)
	go func() {
		_, err := origin.Put(ctx(t), key, []byte("v"))
		done <- err
	}()
	waitFor(t, "dropped backup", func() bool { return dropped.Load() > 0 })
	c.install(2, 2)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("Put() did not complete after the topology change")
	}
	if origin.Stats().Retries == 0 {
		t.Error("write completed without a retry")
	}
	for _, owner := range c.owners(key) {
		if got, _ := c.node(owner).Container().Peek(key); string(got) != "v" {
			t.Errorf("owner %s has %q", owner, got)
		}
	}
}

func TestRetryWaitsForNewerTopology(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 3, 2)
	defer c.close()

	origin := c.nodes[0]
	key := c.keyWithPrimary(c.members[1])

	// the originator learns about topology 2 after the other nodes
	next := c.newTopology(2, 2)
	c.nodes[1].UpdateTopology(next)
	c.nodes[2].UpdateTopology(next)
	installed := make(chan struct{})
	go func() {
		defer close(installed)
		time.Sleep(300 * time.Millisecond)
		origin.UpdateTopology(next)
	}()

	_, err := origin.Put(ctx(t), key, []byte("v"))
	<-installed
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if origin.Stats().Retries == 0 {
		t.Error("write completed without a retry")
	}
	for _, owner := range c.owners(key) {
		if got, _ := c.node(owner).Container().Peek(key); string(got) != "v" {
			t.Errorf("owner %s has %q", owner, got)
		}
	}
}

func TestPrimaryWaitsForNewerTopology(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 3, 2)
	defer c.close()

	origin := c.nodes[0]
	key := c.keyWithPrimary(c.members[1])

	// the primary owner learns about topology 2 after the originator
	next := c.newTopology(2, 2)
	origin.UpdateTopology(next)
	c.nodes[2].UpdateTopology(next)
	installed := make(chan struct{})
	go func() {
		defer close(installed)
		time.Sleep(100 * time.Millisecond)
		c.nodes[1].UpdateTopology(next)
	}()

	_, err := origin.Put(ctx(t), key, []byte("v"))
	<-installed
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if retries := origin.Stats().Retries; retries != 0 {
		t.Errorf("retries = %d, want 0", retries)
	}
	if got, ok, err := origin.Get(ctx(t), key); err != nil || !ok || string(got) != "v" {
		t.Errorf("Get() = %q, %v, %v", got, ok, err)
	}
}

func TestConditionalWritesOnExpiredEntry(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 3, 2)
	defer c.close()

	origin := c.nodes[0]
	key := c.keyWithPrimary(c.members[1])
	if _, err := origin.Put(ctx(t), key, []byte("old"), cluster.WithLifespan(10*time.Millisecond)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if v, ok, err := origin.Get(ctx(t), key); err != nil || ok {
		t.Fatalf("Get() = %q, %v, %v, want absent", v, ok, err)
	}
	if _, ok, err := origin.Replace(ctx(t), key, []byte("x")); err != nil || ok {
		t.Errorf("Replace() = %v, %v, want not applied", ok, err)
	}
	if ok, err := origin.RemoveIf(ctx(t), key, []byte("old")); err != nil || ok {
		t.Errorf("RemoveIf() = %v, %v, want not applied", ok, err)
	}
	existing, ok, err := origin.PutIfAbsent(ctx(t), key, []byte("new"))
	if err != nil || !ok || existing != nil {
		t.Fatalf("PutIfAbsent() = %q, %v, %v, want applied", existing, ok, err)
	}
	for _, owner := range c.owners(key) {
		if got, _ := c.node(owner).Container().Peek(key); string(got) != "new" {
			t.Errorf("owner %s has %q, want new", owner, got)
		}
	}
}

func TestCacheModeLocal(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 3, 2)
	defer c.close()

	origin := c.nodes[0]
	key := c.keyWithPrimary(c.members[1])
	if _, err := origin.Put(ctx(t), key, []byte("local"), cluster.WithFlags(commands.CacheModeLocal)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got, ok := origin.Container().Peek(key); !ok || string(got) != "local" {
		t.Errorf("originator has %q (%v)", got, ok)
	}
	if _, ok := c.node(c.members[1]).Container().Peek(key); ok {
		t.Error("local write reached the primary owner")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 3, 2)
	defer c.close()

	key := c.keyWithPrimary(c.members[2])
	const perNode = 20

	var wg sync.WaitGroup
	for _, n := range c.nodes {
		wg.Add(1)
		go func(n *cluster.Node) {
			defer wg.Done()
			for i := 0; i < perNode; i++ {
				if _, err := n.Compute(ctx(t), key, commands.FnIncrement, nil); err != nil {
					t.Errorf("%s: Compute() error = %v", n.Address(), err)
					return
				}
			}
		}(n)
	}
	wg.Wait()

	want := strconv.Itoa(perNode * len(c.nodes))
	for _, owner := range c.owners(key) {
		if got, _ := c.node(owner).Container().Peek(key); string(got) != want {
			t.Errorf("owner %s has %q, want %s", owner, got, want)
		}
	}
	for _, n := range c.nodes {
		if pending := n.Stats().Acks.Pending; pending != 0 {
			t.Errorf("%s: %d pending acks", n.Address(), pending)
		}
	}
}

func TestClosedNode(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newCluster(t, 1, 1)
	c.close()

	if _, err := c.nodes[0].Put(context.Background(), "k", []byte("v")); err != cluster.ErrClosed {
		t.Errorf("Put() error = %v, want %v", err, cluster.ErrClosed)
	}
}
