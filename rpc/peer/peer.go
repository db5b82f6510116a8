package peer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/tKV/lib/cluster"
	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/topology"
	"github.com/ValentinKolb/tKV/lib/util"
	"github.com/ValentinKolb/tKV/rpc/common"
	"github.com/ValentinKolb/tKV/rpc/serializer"
	"github.com/ValentinKolb/tKV/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("peer")

// ClientFactory creates the client transport of one link
type ClientFactory func() transport.IRPCClientTransport

// Peer carries the commands of a cluster node over the rpc transports. Every
// destination gets one link that sends its commands in push order on a single
// connection, received commands are handed to the node in arrival order.
type Peer struct {
	self       topology.Address
	endpoints  map[topology.Address]string
	newClient  ClientFactory
	clientCfg  common.ClientConfig
	serializer serializer.IRPCSerializer

	links   *xsync.MapOf[topology.Address, *link]
	inbox   *util.LockFreeMPSC[envelope]
	handler atomic.Pointer[cluster.Handler]

	mu     sync.Mutex // orders link creation before Close
	closed atomic.Bool
	wg     sync.WaitGroup

	sent     *metrics.Counter
	dropped  *metrics.Counter
	received *metrics.Counter
}

type envelope struct {
	from topology.Address
	cmd  commands.ReplicableCommand
}

// New creates the peer of self. endpoints maps every other member to the
// endpoint of its rpc server, clientCfg is used for the links with the
// endpoint of the destination.
func New(
	self topology.Address,
	endpoints map[topology.Address]string,
	newClient ClientFactory,
	clientCfg common.ClientConfig,
	s serializer.IRPCSerializer,
) *Peer {
	p := &Peer{
		self:       self,
		endpoints:  endpoints,
		newClient:  newClient,
		clientCfg:  clientCfg,
		serializer: s,
		links:      xsync.NewMapOf[topology.Address, *link](),
		inbox:      util.NewLockFreeMPSC[envelope](),
		sent:       metrics.GetOrCreateCounter(fmt.Sprintf(`tkv_peer_sent_total{node=%q}`, self)),
		dropped:    metrics.GetOrCreateCounter(fmt.Sprintf(`tkv_peer_dropped_total{node=%q}`, self)),
		received:   metrics.GetOrCreateCounter(fmt.Sprintf(`tkv_peer_received_total{node=%q}`, self)),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// --------------------------------------------------------------------------
// Interface Methods (docu see cluster.Transport)
// --------------------------------------------------------------------------

func (p *Peer) Address() topology.Address {
	return p.self
}

func (p *Peer) Send(to topology.Address, cmd commands.ReplicableCommand) error {
	if p.closed.Load() {
		return cluster.ErrTransportClosed
	}
	if to == p.self {
		return p.push(p.self, cmd)
	}

	l, err := p.link(to)
	if err != nil {
		return err
	}
	req, err := p.serializer.Serialize(*common.NewCommandRequest(string(p.self), commands.Marshal(cmd)))
	if err != nil {
		return fmt.Errorf("serializing %s for %s: %w", cmd.CommandID(), to, err)
	}
	if !l.queue.Push(req) {
		return cluster.ErrTransportClosed
	}
	return nil
}

func (p *Peer) SetHandler(h cluster.Handler) {
	p.handler.Store(&h)
}

func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.links.Range(func(_ topology.Address, l *link) bool {
		l.close()
		return true
	})
	p.inbox.Close()
	p.wg.Wait()
	return nil
}

// Receive hands a command received by the rpc server to the node. payload is
// not retained.
func (p *Peer) Receive(origin string, payload []byte) error {
	if p.closed.Load() {
		return cluster.ErrTransportClosed
	}
	cmd, err := commands.Unmarshal(payload)
	if err != nil {
		return fmt.Errorf("command from %s: %w", origin, err)
	}
	return p.push(topology.Address(origin), cmd)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (p *Peer) push(from topology.Address, cmd commands.ReplicableCommand) error {
	if !p.inbox.Push(envelope{from: from, cmd: cmd}) {
		return cluster.ErrTransportClosed
	}
	p.received.Inc()
	return nil
}

// run calls the handler for every received command
func (p *Peer) run() {
	defer p.wg.Done()
	for env := range p.inbox.Recv() {
		if h := p.handler.Load(); h != nil {
			(*h)(env.from, env.cmd)
		}
	}
}

// link returns the link to to and starts it on first use
func (p *Peer) link(to topology.Address) (*link, error) {
	if l, ok := p.links.Load(to); ok {
		return l, nil
	}
	endpoint, ok := p.endpoints[to]
	if !ok {
		return nil, fmt.Errorf("send to %s: %w", to, cluster.ErrUnknownNode)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return nil, cluster.ErrTransportClosed
	}
	if l, ok := p.links.Load(to); ok {
		return l, nil
	}
	l := &link{
		peer:     p,
		to:       to,
		endpoint: endpoint,
		queue:    util.NewLockFreeMPSC[[]byte](),
	}
	p.links.Store(to, l)
	p.wg.Add(1)
	go l.run()
	Logger.Debugf("%s: opened link to %s on %s", p.self, to, endpoint)
	return l, nil
}
