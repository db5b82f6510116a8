package cluster

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/topology"
	"github.com/ValentinKolb/tKV/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	ErrUnknownNode     = errors.New("unknown node")
	ErrTransportClosed = errors.New("transport closed")
)

// Handler is called for every command a transport receives. It is called from
// one goroutine per transport, in arrival order.
type Handler func(origin topology.Address, cmd commands.ReplicableCommand)

// Transport sends commands to other nodes. Sends are one way and never block on
// the receiver.
type Transport interface {
	// Address returns the address of the local node.
	Address() topology.Address

	// Send delivers cmd to the node to.
	Send(to topology.Address, cmd commands.ReplicableCommand) error

	// SetHandler sets the handler for received commands.
	SetHandler(h Handler)

	// Close stops the transport.
	Close() error
}

// --------------------------------------------------------------------------
// Local Network
// --------------------------------------------------------------------------

// Interceptor decides whether a command is delivered. Commands it rejects are
// dropped, they can be delivered later with LocalNetwork.Deliver.
type Interceptor func(from, to topology.Address, cmd commands.ReplicableCommand) bool

// LocalNetwork connects transports of one process. Commands are marshalled on
// send and unmarshalled on delivery, so nodes never share command values.
type LocalNetwork struct {
	nodes       *xsync.MapOf[topology.Address, *localTransport]
	interceptor atomic.Pointer[Interceptor]
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{nodes: xsync.NewMapOf[topology.Address, *localTransport]()}
}

// Join creates the transport of address.
func (n *LocalNetwork) Join(address topology.Address) (Transport, error) {
	t := &localTransport{
		network: n,
		address: address,
		inbox:   util.NewLockFreeMPSC[envelope](),
	}
	if _, loaded := n.nodes.LoadOrStore(address, t); loaded {
		t.inbox.Close()
		for range t.inbox.Recv() {
		}
		return nil, fmt.Errorf("join %s: address in use", address)
	}
	t.wg.Add(1)
	go t.run()
	return t, nil
}

// SetInterceptor installs i, nil delivers everything.
func (n *LocalNetwork) SetInterceptor(i Interceptor) {
	if i == nil {
		n.interceptor.Store(nil)
		return
	}
	n.interceptor.Store(&i)
}

// Deliver sends cmd from from to to, bypassing the interceptor.
func (n *LocalNetwork) Deliver(from, to topology.Address, cmd commands.ReplicableCommand) error {
	t, ok := n.nodes.Load(to)
	if !ok {
		return fmt.Errorf("deliver to %s: %w", to, ErrUnknownNode)
	}
	if !t.inbox.Push(envelope{from: from, data: commands.Marshal(cmd)}) {
		return fmt.Errorf("deliver to %s: %w", to, ErrTransportClosed)
	}
	return nil
}

func (n *LocalNetwork) send(from, to topology.Address, cmd commands.ReplicableCommand) error {
	if i := n.interceptor.Load(); i != nil && !(*i)(from, to, cmd) {
		return nil
	}
	return n.Deliver(from, to, cmd)
}

type envelope struct {
	from topology.Address
	data []byte
}

type localTransport struct {
	network *LocalNetwork
	address topology.Address
	inbox   *util.LockFreeMPSC[envelope]
	handler atomic.Pointer[Handler]
	wg      sync.WaitGroup
	once    sync.Once
}

func (t *localTransport) Address() topology.Address {
	return t.address
}

func (t *localTransport) Send(to topology.Address, cmd commands.ReplicableCommand) error {
	if t.inbox.IsClosed() {
		return ErrTransportClosed
	}
	return t.network.send(t.address, to, cmd)
}

func (t *localTransport) SetHandler(h Handler) {
	t.handler.Store(&h)
}

func (t *localTransport) Close() error {
	t.once.Do(func() {
		t.network.nodes.Delete(t.address)
		t.inbox.Close()
		t.wg.Wait()
	})
	return nil
}

func (t *localTransport) run() {
	defer t.wg.Done()
	for env := range t.inbox.Recv() {
		cmd, err := commands.Unmarshal(env.data)
		if err != nil {
			log.Errorf("%s: dropping command from %s: %v", t.address, env.from, err)
			continue
		}
		if h := t.handler.Load(); h != nil {
			(*h)(env.from, cmd)
		}
	}
}
