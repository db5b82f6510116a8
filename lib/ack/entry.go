package ack

import (
	"sync"
	"time"

	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/future"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// State is the state of a collector entry.
type State uint8

const (
	StateAwaiting State = iota
	StateComplete
	StateTopologyInvalidated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaiting:
		return "AWAITING_BACKUPS"
	case StateComplete:
		return "COMPLETE"
	case StateTopologyInvalidated:
		return "TOPOLOGY_INVALIDATED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of a collected operation. Value is the result of the
// primary owner, for multi key operations the merged per key returns.
type Result struct {
	Value      interface{}
	Successful bool
}

type entry struct {
	mu         sync.Mutex
	id         commands.InvocationID
	topologyID int
	state      State
	multi      bool
	started    time.Time
	timer      *time.Timer
	future     *future.Future[Result]

	// single key
	primary     topology.Address
	primaryDone bool
	result      interface{}
	successful  bool
	backups     map[topology.Address]struct{}

	// multi key
	primaries      map[topology.Address]struct{}
	segmentBackups map[topology.Address]map[int]struct{}
	returns        map[string][]byte
}

// done reports whether nothing is outstanding. Must hold mu.
func (e *entry) done() bool {
	if !e.multi {
		return e.primaryDone && len(e.backups) == 0
	}
	if len(e.primaries) > 0 {
		return false
	}
	for _, segments := range e.segmentBackups {
		if len(segments) > 0 {
			return false
		}
	}
	return true
}

// outcome builds the result of a completed entry. Must hold mu.
func (e *entry) outcome() Result {
	if e.multi {
		if e.returns == nil {
			return Result{Successful: true}
		}
		return Result{Value: e.returns, Successful: true}
	}
	return Result{Value: e.result, Successful: e.successful}
}

// retainMembers drops outstanding backups that left the cluster. It reports
// false if a primary owner left. Must hold mu.
func (e *entry) retainMembers(members map[topology.Address]bool) bool {
	if !e.multi {
		for a := range e.backups {
			if !members[a] {
				delete(e.backups, a)
			}
		}
		return e.primaryDone || members[e.primary]
	}
	for a := range e.segmentBackups {
		if !members[a] {
			delete(e.segmentBackups, a)
		}
	}
	for a := range e.primaries {
		if !members[a] {
			return false
		}
	}
	return true
}
