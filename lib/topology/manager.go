package topology

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("topology")

// Listener is called after a newer topology was installed.
type Listener func(previous, current *CacheTopology)

// Manager holds the current topology of a node.
type Manager struct {
	current   atomic.Pointer[CacheTopology]
	mu        sync.Mutex // serializes updates and listener registration
	listeners []Listener
	changed   chan struct{} // closed and replaced by every installed topology
}

// NewManager creates a manager with an initial topology (may be nil).
func NewManager(initial *CacheTopology) *Manager {
	m := &Manager{changed: make(chan struct{})}
	if initial != nil {
		m.current.Store(initial)
	}
	return m
}

// Current returns the installed topology or nil.
func (m *Manager) Current() *CacheTopology {
	return m.current.Load()
}

// TopologyID returns the id of the installed topology, NoTopology if none.
func (m *Manager) TopologyID() int {
	if t := m.current.Load(); t != nil {
		return t.TopologyID
	}
	return NoTopology
}

// AddListener registers a listener for future topology updates.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Update installs t if it is newer than the current topology and notifies all
// listeners. It returns false for stale or duplicate topologies.
func (m *Manager) Update(t *CacheTopology) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.current.Load()
	if previous != nil && t.TopologyID <= previous.TopologyID {
		log.Debugf("ignoring topology %d, current is %d", t.TopologyID, previous.TopologyID)
		return false
	}
	m.current.Store(t)
	close(m.changed)
	m.changed = make(chan struct{})
	log.Infof("installed %s", t)

	for _, l := range m.listeners {
		l(previous, t)
	}
	return true
}

// WaitFor blocks until a topology with an id of at least topologyID is
// installed or ctx is done.
func (m *Manager) WaitFor(ctx context.Context, topologyID int) error {
	for {
		m.mu.Lock()
		changed := m.changed
		m.mu.Unlock()
		if m.TopologyID() >= topologyID {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
