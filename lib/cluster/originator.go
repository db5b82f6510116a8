package cluster

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ValentinKolb/tKV/lib/ack"
	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/future"
	"github.com/ValentinKolb/tKV/lib/invocation"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// invoke sends cmd and waits for its result. Attempts that fail with
// commands.ErrOutdatedTopology are retried under a newer topology.
func (n *Node) invoke(ctx context.Context, cmd commands.WriteCommand) (ack.Result, error) {
	if n.closed.Load() {
		return ack.Result{}, ErrClosed
	}
	cmd.SetTopologyID(n.topology.TopologyID())
	return n.withRetry(ctx, cmd.InvocationID(), func() (*future.Future[ack.Result], int) {
		return n.dispatch(cmd), cmd.TopologyID()
	}, cmd.Retry)
}

// withRetry runs attempt until it succeeds, fails with an error that is not
// retryable or the retries are used up. attempt returns the topology id it was
// sent under. A retry waits for a topology newer than the one that failed and
// prepare is called with the installed topology id before it.
func (n *Node) withRetry(ctx context.Context, id commands.InvocationID, attempt func() (*future.Future[ack.Result], int), prepare func(topologyID int)) (ack.Result, error) {
	for retry := 0; ; retry++ {
		f, attempted := attempt()
		res, err := f.Get(ctx)
		if err == nil {
			return res, nil
		}
		if !commands.IsRetryable(err) || retry >= n.cfg.MaxRetries {
			return ack.Result{}, err
		}

		n.retries.Inc()
		select {
		case <-time.After(n.cfg.RetryBackoff):
		case <-ctx.Done():
			return ack.Result{}, ctx.Err()
		}

		// the same topology is rejected again
		wanted := max(n.topology.TopologyID(), attempted+1)
		if werr := n.awaitTopology(ctx, wanted); werr != nil {
			if ctx.Err() != nil {
				return ack.Result{}, ctx.Err()
			}
			if n.closed.Load() {
				return ack.Result{}, ErrClosed
			}
			return ack.Result{}, fmt.Errorf("%w (topology %d not installed after %s)", err, wanted, n.cfg.TopologyTimeout)
		}
		topologyID := n.topology.TopologyID()
		log.Debugf("%s: retrying %s under topology %d (retry %d): %v", n.address, id, topologyID, retry+1, err)
		prepare(topologyID)
	}
}

// awaitTopology waits at most TopologyTimeout until a topology with an id of
// at least topologyID is installed.
func (n *Node) awaitTopology(ctx context.Context, topologyID int) error {
	if n.topology.TopologyID() >= topologyID {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, n.cfg.TopologyTimeout)
	defer cancel()
	stop := context.AfterFunc(n.done, cancel)
	defer stop()
	return n.topology.WaitFor(ctx, topologyID)
}

// dispatch starts one attempt of cmd.
func (n *Node) dispatch(cmd commands.WriteCommand) *future.Future[ack.Result] {
	if n.topology.Current() == nil {
		return future.Failed[ack.Result](ErrNoTopology)
	}
	if cmd.Flags().Has(commands.CacheModeLocal) {
		return n.dispatchLocal(cmd)
	}
	switch c := cmd.(type) {
	case commands.DataWriteCommand:
		return n.dispatchKey(c)
	case commands.MultiKeyWriteCommand:
		return n.dispatchKeys(c)
	default:
		return future.Failed[ack.Result](fmt.Errorf("dispatch %T: %w", cmd, commands.ErrUnknownCommand))
	}
}

// dispatchLocal performs cmd on this node only.
func (n *Node) dispatchLocal(cmd commands.WriteCommand) *future.Future[ack.Result] {
	local, err := clone(cmd)
	if err != nil {
		return future.Failed[ack.Result](err)
	}
	f := future.New[ack.Result]()
	n.pipeline.InvokeAsync(invocation.NewLocalContext(n.address), local, nil).Then(func(rv interface{}, err error) {
		if err != nil {
			f.CompleteExceptionally(err)
			return
		}
		f.Complete(ack.Result{Value: rv, Successful: local.IsSuccessful()})
	})
	return f
}

// dispatchKey registers the acks of a single key write and sends it to the
// primary owner of the key.
func (n *Node) dispatchKey(cmd commands.DataWriteCommand) *future.Future[ack.Result] {
	id := cmd.InvocationID()
	info := n.topology.Current().DistributionForSegment(cmd.Segment(), n.address)

	f := n.collector.Create(id, info.Primary(), info.WriteBackups(), cmd.TopologyID())
	// the topology may have changed before the entry was registered
	if n.topology.TopologyID() != cmd.TopologyID() {
		n.collector.PrimaryException(id, commands.ErrOutdatedTopology)
		return f
	}

	if info.IsPrimary() {
		local, err := clone(cmd)
		if err != nil {
			n.collector.PrimaryException(id, err)
			return f
		}
		n.async(func() {
			result, replicated, err := n.executeWrite(invocation.NewLocalContext(n.address), local)
			if err != nil {
				n.collector.PrimaryException(id, err)
				return
			}
			n.collector.PrimaryResult(id, local.TopologyID(), result, replicated)
		})
		return f
	}

	n.forwarded.Inc()
	if err := n.transport.Send(info.Primary(), cmd); err != nil {
		n.collector.PrimaryException(id, fmt.Errorf("forward %s to %s: %w", id, info.Primary(), err))
	}
	return f
}

// dispatchKeys splits a multi key write by primary owner. The collector expects
// a result of every primary owner and an ack of every backup owner of every
// segment touched.
func (n *Node) dispatchKeys(cmd commands.MultiKeyWriteCommand) *future.Future[ack.Result] {
	id := cmd.InvocationID()
	t := n.topology.Current()

	byPrimary := make(map[topology.Address][]string)
	segmentsOf := make(map[topology.Address]map[int]struct{})
	for _, key := range cmd.AffectedKeys() {
		info := t.Distribution(key, n.address)
		byPrimary[info.Primary()] = append(byPrimary[info.Primary()], key)
		for _, b := range info.WriteBackups() {
			if segmentsOf[b] == nil {
				segmentsOf[b] = make(map[int]struct{})
			}
			segmentsOf[b][info.Segment()] = struct{}{}
		}
	}
	primaries := make([]topology.Address, 0, len(byPrimary))
	for p := range byPrimary {
		primaries = append(primaries, p)
	}
	sort.Slice(primaries, func(i, j int) bool { return primaries[i] < primaries[j] })
	backups := make(map[topology.Address][]int, len(segmentsOf))
	for b, set := range segmentsOf {
		for s := range set {
			backups[b] = append(backups[b], s)
		}
	}

	f := n.collector.CreateMultiKey(id, primaries, backups, cmd.TopologyID())
	if n.topology.TopologyID() != cmd.TopologyID() {
		n.collector.PrimaryException(id, commands.ErrOutdatedTopology)
		return f
	}

	for _, p := range primaries {
		sub := cmd.Subset(byPrimary[p])
		if p == n.address {
			local, err := clone(sub)
			if err != nil {
				n.collector.PrimaryException(id, err)
				return f
			}
			n.async(func() {
				returns, err := n.executeMultiWrite(invocation.NewLocalContext(n.address), local)
				if err != nil {
					n.collector.PrimaryException(id, err)
					return
				}
				n.collector.PrimaryMultiKeyResult(id, n.address, local.TopologyID(), returns)
			})
			continue
		}
		n.forwarded.Inc()
		if err := n.transport.Send(p, sub); err != nil {
			n.collector.PrimaryException(id, fmt.Errorf("forward %s to %s: %w", id, p, err))
			return f
		}
	}
	return f
}

// get reads key from its primary owner.
func (n *Node) get(ctx context.Context, key string) ([]byte, error) {
	if n.closed.Load() {
		return nil, ErrClosed
	}
	id := n.ids.Next()
	res, err := n.withRetry(ctx, id, func() (*future.Future[ack.Result], int) {
		t := n.topology.Current()
		if t == nil {
			return future.Failed[ack.Result](ErrNoTopology), topology.NoTopology
		}
		segment := t.Segment(key)
		primary := t.DistributionForSegment(segment, n.address).Primary()
		if primary == n.address {
			v, _ := n.pipeline.Read(key)
			return future.Completed(ack.Result{Value: v, Successful: true}), t.TopologyID
		}
		f := n.collector.Create(id, primary, nil, t.TopologyID)
		n.send(primary, commands.NewGetKeyValueCommand(id, key, segment, t.TopologyID))
		return f, t.TopologyID
	}, func(int) {})
	if err != nil {
		return nil, err
	}
	v, _ := res.Value.([]byte)
	return v, nil
}
