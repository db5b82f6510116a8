package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/tKV/lib/ack"
	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/container"
	"github.com/ValentinKolb/tKV/lib/invocation"
	"github.com/ValentinKolb/tKV/lib/lockmgr"
	"github.com/ValentinKolb/tKV/lib/order"
	"github.com/ValentinKolb/tKV/lib/topology"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("cluster")

var (
	ErrClosed     = errors.New("node closed")
	ErrNoTopology = errors.New("no topology installed")
)

// Node is one member of the cluster. It is originator of the writes started
// through its cache operations and primary or backup owner of the segments the
// topology assigns to it.
type Node struct {
	address   topology.Address
	cfg       Config
	transport Transport
	topology  *topology.Manager
	pipeline  *invocation.Pipeline
	records   *invocation.Records
	collector *ack.Collector
	sequencer *order.Sequencer
	receiver  *order.Receiver
	ids       *commands.IDGenerator

	wg     sync.WaitGroup
	closed atomic.Bool
	done   context.Context // cancelled by Close
	stop   context.CancelFunc

	retries   *metrics.Counter
	forwarded *metrics.Counter
}

// NewNode creates the node behind transport. initial may be nil, writes fail
// with ErrNoTopology until a topology is installed.
func NewNode(transport Transport, initial *topology.CacheTopology, cfg Config) *Node {
	cfg = cfg.withDefaults()
	address := transport.Address()

	n := &Node{
		address:   address,
		cfg:       cfg,
		transport: transport,
		topology:  topology.NewManager(initial),
		pipeline:  invocation.NewPipeline(container.NewDataContainer(), lockmgr.NewLockManager(), cfg.LockTimeout),
		records:   invocation.NewRecords(cfg.RecordTTL),
		collector: ack.NewCollector(address, cfg.AckTimeout),
		sequencer: order.NewSequencer(),
		ids:       commands.NewIDGenerator(address),
		retries:   metrics.GetOrCreateCounter(fmt.Sprintf(`tkv_write_retries_total{node=%q}`, address)),
		forwarded: metrics.GetOrCreateCounter(fmt.Sprintf(`tkv_write_forwarded_total{node=%q}`, address)),
	}
	n.done, n.stop = context.WithCancel(context.Background())
	n.receiver = order.NewReceiver(string(address), n.applyBackup)
	n.topology.AddListener(n.collector.TopologyListener())
	transport.SetHandler(n.handle)

	log.Infof("node %s started", address)
	return n
}

// Address returns the address of the node.
func (n *Node) Address() topology.Address {
	return n.address
}

// Topology returns the installed topology, nil if none.
func (n *Node) Topology() *topology.CacheTopology {
	return n.topology.Current()
}

// UpdateTopology installs t if it is newer than the installed topology. Writes
// in flight under an older topology fail and are retried.
func (n *Node) UpdateTopology(t *topology.CacheTopology) bool {
	return n.topology.Update(t)
}

// OnTopologyChange registers l for topology updates of the node.
func (n *Node) OnTopologyChange(l topology.Listener) {
	n.topology.AddListener(l)
}

// Container returns the local data container.
func (n *Node) Container() *container.DataContainer {
	return n.pipeline.Container()
}

// Close stops the transport, waits for running executions and fails pending
// writes.
func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := n.transport.Close()
	n.stop()
	n.wg.Wait()
	n.collector.Stop()
	n.records.Close()
	log.Infof("node %s stopped", n.address)
	return err
}

// --------------------------------------------------------------------------
// Messaging
// --------------------------------------------------------------------------

// send delivers cmd to to. Commands to the node itself are handled directly.
func (n *Node) send(to topology.Address, cmd commands.ReplicableCommand) {
	if to == n.address {
		n.handle(n.address, cmd)
		return
	}
	if err := n.transport.Send(to, cmd); err != nil {
		log.Warningf("%s: sending %s to %s: %v", n.address, cmd.CommandID(), to, err)
	}
}

func (n *Node) handle(origin topology.Address, cmd commands.ReplicableCommand) {
	if err := cmd.Accept(origin, inbound{n: n}); err != nil {
		log.Errorf("%s: handling %s from %s: %v", n.address, cmd.CommandID(), origin, err)
	}
}

// async runs fn on a goroutine that Close waits for.
func (n *Node) async(fn func()) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		fn()
	}()
}

// checkTopology fails with commands.ErrOutdatedTopology if topologyID is not the
// installed topology. A command of a newer topology waits for it first.
func (n *Node) checkTopology(topologyID int) (*topology.CacheTopology, error) {
	if err := n.awaitTopology(context.Background(), topologyID); err != nil {
		log.Debugf("%s: topology %d not installed: %v", n.address, topologyID, err)
	}
	t := n.topology.Current()
	if t == nil {
		return nil, ErrNoTopology
	}
	if t.TopologyID != topologyID {
		return nil, fmt.Errorf("%s: command of topology %d, installed %d: %w",
			n.address, topologyID, t.TopologyID, commands.ErrOutdatedTopology)
	}
	return t, nil
}

// clone returns a copy of cmd that shares no state with it.
func clone[T commands.ReplicableCommand](cmd T) (T, error) {
	var zero T
	c, err := commands.Unmarshal(commands.Marshal(cmd))
	if err != nil {
		return zero, err
	}
	cp, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("clone of %s: %w", cmd.CommandID(), commands.ErrUnknownCommand)
	}
	return cp, nil
}
