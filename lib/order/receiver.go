package order

import (
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("order")

// Sequenced is a backup command with its position in the stream of its segment.
type Sequenced interface {
	Segment() int
	Sequence() uint64
	TopologyID() int
}

// ApplyFunc applies a command. It is called in sequence order per segment.
type ApplyFunc func(cmd Sequenced)

type segmentState struct {
	mu         sync.Mutex
	topologyID int
	delivered  uint64
	pending    *seqHeap
}

// Receiver applies the backup commands received by a node in sequence order.
type Receiver struct {
	segments *xsync.MapOf[int, *segmentState]
	apply    ApplyFunc

	applied    *metrics.Counter
	stale      *metrics.Counter
	duplicates *metrics.Counter
	buffered   *metrics.Counter
}

// NewReceiver creates a receiver for node that applies commands with apply.
func NewReceiver(node string, apply ApplyFunc) *Receiver {
	return &Receiver{
		segments:   xsync.NewMapOf[int, *segmentState](),
		apply:      apply,
		applied:    metrics.GetOrCreateCounter(fmt.Sprintf(`tkv_backup_applied_total{node=%q}`, node)),
		stale:      metrics.GetOrCreateCounter(fmt.Sprintf(`tkv_backup_dropped_total{node=%q,reason="stale"}`, node)),
		duplicates: metrics.GetOrCreateCounter(fmt.Sprintf(`tkv_backup_dropped_total{node=%q,reason="duplicate"}`, node)),
		buffered:   metrics.GetOrCreateCounter(fmt.Sprintf(`tkv_backup_buffered{node=%q}`, node)),
	}
}

// Deliver hands a received command to the receiver. It applies the command and
// every buffered command that follows it, or buffers the command if an earlier
// one is missing.
func (r *Receiver) Deliver(cmd Sequenced) {
	st, _ := r.segments.LoadOrCompute(cmd.Segment(), func() *segmentState {
		return &segmentState{topologyID: cmd.TopologyID(), pending: newSeqHeap()}
	})

	st.mu.Lock()
	defer st.mu.Unlock()

	switch {
	case cmd.TopologyID() < st.topologyID:
		log.Debugf("dropping stale backup segment=%d seq=%d topology=%d (current %d)",
			cmd.Segment(), cmd.Sequence(), cmd.TopologyID(), st.topologyID)
		r.stale.Inc()
		return
	case cmd.TopologyID() > st.topologyID:
		log.Debugf("segment %d: new stream for topology %d, discarding %d buffered",
			cmd.Segment(), cmd.TopologyID(), st.pending.Len())
		r.stale.Add(st.pending.Len())
		r.buffered.Add(-st.pending.Len())
		st.topologyID = cmd.TopologyID()
		st.delivered = 0
		st.pending.clear()
	}

	switch {
	case cmd.Sequence() <= st.delivered:
		r.duplicates.Inc()
		return
	case cmd.Sequence() > st.delivered+1:
		if st.pending.add(cmd) {
			r.buffered.Inc()
		} else {
			r.duplicates.Inc()
		}
		return
	}

	r.deliver(st, cmd)
	for {
		next, ok := st.pending.peek()
		if !ok || next.Sequence != st.delivered+1 {
			return
		}
		st.pending.popMin()
		r.buffered.Dec()
		r.deliver(st, next.Value)
	}
}

func (r *Receiver) deliver(st *segmentState, cmd Sequenced) {
	st.delivered = cmd.Sequence()
	r.applied.Inc()
	r.apply(cmd)
}

// Buffered returns the number of buffered commands of segment.
func (r *Receiver) Buffered(segment int) int {
	st, ok := r.segments.Load(segment)
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.pending.Len()
}

// Delivered returns the last applied sequence and the topology of segment.
func (r *Receiver) Delivered(segment int) (sequence uint64, topologyID int) {
	st, ok := r.segments.Load(segment)
	if !ok {
		return 0, 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.delivered, st.topologyID
}
