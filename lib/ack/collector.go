package ack

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/future"
	"github.com/ValentinKolb/tKV/lib/topology"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("ack")

// DefaultTimeout is used when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// Stats is a snapshot of the collector counters.
type Stats struct {
	Pending     int
	Completed   uint64
	Outdated    uint64
	Failed      uint64
	TimedOut    uint64
	Stale       uint64
	Duplicate   uint64
	MeanLatency time.Duration
	P99Latency  time.Duration
}

// Collector tracks the acknowledgments of the writes originated by one node.
type Collector struct {
	node    topology.Address
	timeout time.Duration
	entries *xsync.MapOf[commands.InvocationID, *entry]

	latency   gometrics.Timer
	completed *metrics.Counter
	outdated  *metrics.Counter
	failed    *metrics.Counter
	timedOut  *metrics.Counter
	stale     *metrics.Counter
	duplicate *metrics.Counter
	pending   *metrics.Counter
}

// NewCollector creates a collector for node. Entries that are not complete after
// timeout fail with a commands.TimeoutError.
func NewCollector(node topology.Address, timeout time.Duration) *Collector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	counter := func(name string) *metrics.Counter {
		return metrics.GetOrCreateCounter(fmt.Sprintf(`%s{node=%q}`, name, node))
	}
	// a nil meter keeps the timer free of the global meter ticker
	latency := gometrics.NewCustomTimer(
		gometrics.NewHistogram(gometrics.NewExpDecaySample(1028, 0.015)),
		gometrics.NilMeter{},
	)
	return &Collector{
		node:      node,
		timeout:   timeout,
		entries:   xsync.NewMapOf[commands.InvocationID, *entry](),
		latency:   latency,
		completed: counter("tkv_ack_completed_total"),
		outdated:  counter("tkv_ack_outdated_total"),
		failed:    counter("tkv_ack_failed_total"),
		timedOut:  counter("tkv_ack_timeout_total"),
		stale:     counter("tkv_ack_stale_total"),
		duplicate: counter("tkv_ack_duplicate_total"),
		pending:   counter("tkv_ack_pending"),
	}
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// Create registers a single key write dispatched under topologyID to primary,
// which replicates it to backups.
func (c *Collector) Create(id commands.InvocationID, primary topology.Address, backups []topology.Address, topologyID int) *future.Future[Result] {
	e := c.newEntry(id, topologyID, false)
	e.primary = primary
	e.backups = make(map[topology.Address]struct{}, len(backups))
	for _, b := range backups {
		e.backups[b] = struct{}{}
	}
	c.register(e)
	return e.future
}

// CreateMultiKey registers a multi key write dispatched under topologyID to the
// given primaries. backups maps every backup owner to the segments it has to
// acknowledge.
func (c *Collector) CreateMultiKey(id commands.InvocationID, primaries []topology.Address, backups map[topology.Address][]int, topologyID int) *future.Future[Result] {
	e := c.newEntry(id, topologyID, true)
	e.primaries = make(map[topology.Address]struct{}, len(primaries))
	for _, p := range primaries {
		e.primaries[p] = struct{}{}
	}
	e.segmentBackups = make(map[topology.Address]map[int]struct{}, len(backups))
	for b, segments := range backups {
		if len(segments) == 0 {
			continue
		}
		set := make(map[int]struct{}, len(segments))
		for _, s := range segments {
			set[s] = struct{}{}
		}
		e.segmentBackups[b] = set
	}
	c.register(e)

	// nothing to wait for
	e.mu.Lock()
	if e.done() {
		c.finish(e, StateComplete, e.outcome(), nil)
	}
	e.mu.Unlock()
	return e.future
}

func (c *Collector) newEntry(id commands.InvocationID, topologyID int, multi bool) *entry {
	return &entry{
		id:         id,
		topologyID: topologyID,
		multi:      multi,
		started:    time.Now(),
		future:     future.New[Result](),
	}
}

func (c *Collector) register(e *entry) {
	c.pending.Inc()
	previous, loaded := c.entries.LoadAndStore(e.id, e)
	if loaded {
		// a retry replaces the entry of the previous attempt
		previous.mu.Lock()
		c.finish(previous, StateTopologyInvalidated, Result{}, commands.ErrOutdatedTopology)
		previous.mu.Unlock()
	}

	// acks may arrive as soon as e is published
	e.mu.Lock()
	if e.state == StateAwaiting {
		e.timer = time.AfterFunc(c.timeout, func() { c.expire(e) })
	}
	e.mu.Unlock()
}

// --------------------------------------------------------------------------
// Primary results
// --------------------------------------------------------------------------

// PrimaryResult records the result of the primary owner of a single key write.
// An unsuccessful write is not replicated, so the entry completes right away.
func (c *Collector) PrimaryResult(id commands.InvocationID, topologyID int, value interface{}, successful bool) {
	c.withEntry(id, topologyID, "primary result", func(e *entry) {
		if e.multi || e.primaryDone {
			c.duplicate.Inc()
			return
		}
		e.primaryDone = true
		e.result = value
		e.successful = successful
		if !successful {
			e.backups = nil
		}
		if e.done() {
			c.finish(e, StateComplete, e.outcome(), nil)
		}
	})
}

// PrimaryMultiKeyResult records the result of one primary owner of a multi key
// write and merges its returns.
func (c *Collector) PrimaryMultiKeyResult(id commands.InvocationID, from topology.Address, topologyID int, returns map[string][]byte) {
	c.withEntry(id, topologyID, "primary result", func(e *entry) {
		if _, ok := e.primaries[from]; !e.multi || !ok {
			c.duplicate.Inc()
			return
		}
		delete(e.primaries, from)
		if len(returns) > 0 {
			if e.returns == nil {
				e.returns = make(map[string][]byte, len(returns))
			}
			for k, v := range returns {
				e.returns[k] = v
			}
		}
		if e.done() {
			c.finish(e, StateComplete, e.outcome(), nil)
		}
	})
}

// PrimaryException fails the entry with err. An outdated topology invalidates
// the entry instead, so the caller retries.
func (c *Collector) PrimaryException(id commands.InvocationID, err error) {
	e, ok := c.entries.Load(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if commands.IsRetryable(err) {
		c.finish(e, StateTopologyInvalidated, Result{}, err)
		return
	}
	c.finish(e, StateFailed, Result{}, err)
}

// --------------------------------------------------------------------------
// Backup acks
// --------------------------------------------------------------------------

// BackupAck records the ack of backup for a single key write.
func (c *Collector) BackupAck(id commands.InvocationID, from topology.Address, topologyID int) {
	c.withEntry(id, topologyID, "backup ack", func(e *entry) {
		if _, ok := e.backups[from]; e.multi || !ok {
			c.duplicate.Inc()
			return
		}
		delete(e.backups, from)
		if e.done() {
			c.finish(e, StateComplete, e.outcome(), nil)
		}
	})
}

// MultiKeyBackupAck records the ack of backup for the given segments of a multi
// key write.
func (c *Collector) MultiKeyBackupAck(id commands.InvocationID, from topology.Address, topologyID int, segments []int) {
	c.withEntry(id, topologyID, "backup ack", func(e *entry) {
		pending, ok := e.segmentBackups[from]
		if !e.multi || !ok {
			c.duplicate.Inc()
			return
		}
		for _, s := range segments {
			if _, ok := pending[s]; !ok {
				c.duplicate.Inc()
				continue
			}
			delete(pending, s)
		}
		if len(pending) == 0 {
			delete(e.segmentBackups, from)
		}
		if e.done() {
			c.finish(e, StateComplete, e.outcome(), nil)
		}
	})
}

// ExceptionAck records an exception reported by from while executing the write.
func (c *Collector) ExceptionAck(id commands.InvocationID, from topology.Address, topologyID int, err error) {
	c.withEntry(id, topologyID, "exception ack", func(e *entry) {
		log.Debugf("%s: exception from %s: %v", id, from, err)
		if commands.IsRetryable(err) {
			c.finish(e, StateTopologyInvalidated, Result{}, err)
			return
		}
		c.finish(e, StateFailed, Result{}, err)
	})
}

// withEntry runs fn for the entry of id if the ack is not fenced off. An ack of
// an older topology is ignored, one of a newer topology invalidates the entry.
func (c *Collector) withEntry(id commands.InvocationID, topologyID int, what string, fn func(e *entry)) {
	e, ok := c.entries.Load(id)
	if !ok {
		log.Debugf("%s: %s for unknown or completed invocation", id, what)
		c.duplicate.Inc()
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.state != StateAwaiting:
		c.duplicate.Inc()
	case topologyID < e.topologyID:
		log.Debugf("%s: ignoring stale %s of topology %d (entry %d)", id, what, topologyID, e.topologyID)
		c.stale.Inc()
	case topologyID > e.topologyID:
		c.finish(e, StateTopologyInvalidated, Result{}, commands.ErrOutdatedTopology)
	default:
		fn(e)
	}
}

// --------------------------------------------------------------------------
// Topology and membership
// --------------------------------------------------------------------------

// InvalidateTopology fails every entry dispatched under a topology older than
// topologyID with commands.ErrOutdatedTopology.
func (c *Collector) InvalidateTopology(topologyID int) {
	c.entries.Range(func(_ commands.InvocationID, e *entry) bool {
		e.mu.Lock()
		if e.topologyID < topologyID {
			c.finish(e, StateTopologyInvalidated, Result{}, commands.ErrOutdatedTopology)
		}
		e.mu.Unlock()
		return true
	})
}

// OnMembersChange stops waiting for backups that left the cluster. Entries
// whose primary owner left are invalidated.
func (c *Collector) OnMembersChange(members []topology.Address) {
	alive := make(map[topology.Address]bool, len(members))
	for _, m := range members {
		alive[m] = true
	}
	c.entries.Range(func(_ commands.InvocationID, e *entry) bool {
		e.mu.Lock()
		switch {
		case e.state != StateAwaiting:
		case !e.retainMembers(alive):
			c.finish(e, StateTopologyInvalidated, Result{}, commands.ErrOutdatedTopology)
		case e.done():
			c.finish(e, StateComplete, e.outcome(), nil)
		}
		e.mu.Unlock()
		return true
	})
}

// TopologyListener returns a topology.Listener that invalidates entries of
// older topologies and drops members that left.
func (c *Collector) TopologyListener() topology.Listener {
	return func(_, current *topology.CacheTopology) {
		c.OnMembersChange(current.Members)
		c.InvalidateTopology(current.TopologyID)
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Pending returns the number of entries that are not complete.
func (c *Collector) Pending() int {
	return c.entries.Size()
}

// State returns the state of the entry of id. Completed entries are removed, so
// ok is false for them.
func (c *Collector) State(id commands.InvocationID) (state State, ok bool) {
	e, ok := c.entries.Load(id)
	if !ok {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Stats returns a snapshot of the collector counters.
func (c *Collector) Stats() Stats {
	snap := c.latency.Snapshot()
	return Stats{
		Pending:     c.entries.Size(),
		Completed:   c.completed.Get(),
		Outdated:    c.outdated.Get(),
		Failed:      c.failed.Get(),
		TimedOut:    c.timedOut.Get(),
		Stale:       c.stale.Get(),
		Duplicate:   c.duplicate.Get(),
		MeanLatency: time.Duration(snap.Mean()),
		P99Latency:  time.Duration(snap.Percentile(0.99)),
	}
}

// Stop fails every pending entry with ErrStopped.
func (c *Collector) Stop() {
	c.entries.Range(func(_ commands.InvocationID, e *entry) bool {
		e.mu.Lock()
		c.finish(e, StateFailed, Result{}, ErrStopped)
		e.mu.Unlock()
		return true
	})
}

func (c *Collector) expire(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAwaiting {
		return
	}
	log.Warningf("%s: not acknowledged after %s", e.id, c.timeout)
	c.timedOut.Inc()
	c.finish(e, StateFailed, Result{}, &commands.TimeoutError{
		Op:    "acks for " + e.id.String(),
		After: c.timeout,
	})
}

// finish moves e to its final state and completes the future. It is a no-op if
// e is already final. Must hold e.mu.
func (c *Collector) finish(e *entry, state State, result Result, err error) {
	if e.state != StateAwaiting {
		return
	}
	e.state = state
	if e.timer != nil {
		e.timer.Stop()
	}
	c.entries.Compute(e.id, func(current *entry, loaded bool) (*entry, bool) {
		// keep the entry of a newer attempt
		return current, !loaded || current == e
	})
	c.pending.Dec()

	switch state {
	case StateComplete:
		c.completed.Inc()
		c.latency.UpdateSince(e.started)
		e.future.Complete(result)
	case StateTopologyInvalidated:
		c.outdated.Inc()
		e.future.CompleteExceptionally(err)
	default:
		c.failed.Inc()
		e.future.CompleteExceptionally(err)
	}
}
