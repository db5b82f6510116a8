package peer

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/tKV/lib/topology"
	"github.com/ValentinKolb/tKV/lib/util"
	"github.com/ValentinKolb/tKV/rpc/common"
	"github.com/ValentinKolb/tKV/rpc/transport"
)

// link sends the commands for one destination
type link struct {
	peer     *Peer
	to       topology.Address
	endpoint string
	queue    *util.LockFreeMPSC[[]byte]

	mu     sync.Mutex // protects client and closed
	client transport.IRPCClientTransport
	closed bool
}

// run sends the queued requests until the queue is closed
func (l *link) run() {
	defer l.peer.wg.Done()
	for req := range l.queue.Recv() {
		if err := l.deliver(req); err != nil {
			l.peer.dropped.Inc()
			if !l.peer.closed.Load() {
				Logger.Warningf("%s: dropping command for %s: %v", l.peer.self, l.to, err)
			}
			continue
		}
		l.peer.sent.Inc()
	}
}

// deliver sends one request and checks the response
func (l *link) deliver(req []byte) error {
	client, err := l.connect()
	if err != nil {
		return err
	}
	data, err := client.Send(req)
	if err != nil {
		return err
	}

	var resp common.Message
	if err := l.peer.serializer.Deserialize(data, &resp); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	if resp.Err != "" {
		return fmt.Errorf("rejected by %s: %s", l.to, resp.Err)
	}
	return nil
}

// connect returns the client of the link and creates it if necessary
func (l *link) connect() (transport.IRPCClientTransport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, transport.ErrClientClosed
	}
	if l.client != nil {
		return l.client, nil
	}

	cfg := l.peer.clientCfg
	cfg.Transport.Endpoints = []string{l.endpoint}
	client := l.peer.newClient()
	if err := client.Connect(cfg); err != nil {
		return nil, fmt.Errorf("connecting to %s on %s: %w", l.to, l.endpoint, err)
	}
	l.client = client
	return client, nil
}

// close stops the link, queued requests are dropped
func (l *link) close() {
	l.queue.Close()
	l.mu.Lock()
	l.closed = true
	if l.client != nil {
		_ = l.client.Close()
	}
	l.mu.Unlock()
}
