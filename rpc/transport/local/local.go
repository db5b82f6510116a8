package local

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/tKV/rpc/common"
	"github.com/ValentinKolb/tKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// servers holds the listening server transports of the process by endpoint
var servers = xsync.NewMapOf[string, *serverTransport]()

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// NewLocalServerTransport creates a server transport reachable by local client
// transports of the same process under the configured endpoint
func NewLocalServerTransport() transport.IRPCServerTransport {
	return &serverTransport{done: make(chan struct{})}
}

type serverTransport struct {
	handler transport.ServerHandleFunc
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex // orders wg.Add before wg.Wait
	closed bool
	wg     sync.WaitGroup
}

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	endpoint := config.Transport.Endpoint
	if _, loaded := servers.LoadOrStore(endpoint, t); loaded {
		return fmt.Errorf("local endpoint %s in use", endpoint)
	}
	Logger.Infof("Starting local server on %s", endpoint)

	<-t.done
	servers.Compute(endpoint, func(old *serverTransport, loaded bool) (*serverTransport, bool) {
		return old, !loaded || old == t
	})
	return transport.ErrServerClosed
}

func (t *serverTransport) Close() error {
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.done)
		t.wg.Wait()
	})
	return nil
}

// serve runs the handler with a private copy of req
func (t *serverTransport) serve(req []byte) ([]byte, error) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return nil, transport.ErrServerClosed
	}
	t.wg.Add(1)
	t.mu.RUnlock()
	defer t.wg.Done()

	cp := make([]byte, len(req))
	copy(cp, req)
	return t.handler(cp), nil
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// NewLocalClientTransport creates a client transport calling local server
// transports directly
func NewLocalClientTransport() transport.IRPCClientTransport {
	return &clientTransport{}
}

type clientTransport struct {
	endpoints []string
	counter   atomic.Uint64
	closed    atomic.Bool
}

func (c *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}
	c.endpoints = append([]string(nil), config.Transport.Endpoints...)
	c.closed.Store(false)
	return nil
}

func (c *clientTransport) Send(req []byte) ([]byte, error) {
	if c.closed.Load() || len(c.endpoints) == 0 {
		return nil, transport.ErrClientClosed
	}
	endpoint := c.endpoints[c.counter.Add(1)%uint64(len(c.endpoints))]
	server, ok := servers.Load(endpoint)
	if !ok {
		return nil, fmt.Errorf("no local server listening on %s", endpoint)
	}
	return server.serve(req)
}

func (c *clientTransport) Close() error {
	c.closed.Store(true)
	return nil
}
