package base

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/tKV/rpc/common"
	"github.com/ValentinKolb/tKV/rpc/transport"
	"go.uber.org/goleak"
)

// testConnector listens and dials plain TCP and reports the listen address
type testConnector struct {
	addr chan string
}

func newTestConnector() *testConnector {
	return &testConnector{addr: make(chan string, 1)}
}

func (c *testConnector) GetName() string { return "test" }

func (c *testConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	l, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return nil, err
	}
	c.addr <- l.Addr().String()
	return l, nil
}

func (c *testConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("tcp", endpoint)
}

func (c *testConnector) UpgradeConnection(net.Conn, common.ServerConfig) error { return nil }

type testClientConnector struct{ testConnector }

func (c *testClientConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

// startServer starts a server transport on endpoint and returns its address
// and a channel receiving the result of Listen
func startServer(t *testing.T, endpoint string, handler transport.ServerHandleFunc) (transport.IRPCServerTransport, string, <-chan error) {
	t.Helper()
	connector := newTestConnector()
	server := NewBaseServerTransport(connector, 1024, 8)
	server.RegisterHandler(handler)

	done := make(chan error, 1)
	go func() {
		done <- server.Listen(common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: endpoint}})
	}()

	select {
	case addr := <-connector.addr:
		return server, addr, done
	case err := <-done:
		t.Fatalf("Listen failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not start")
	}
	return nil, "", nil
}

func newClient(t *testing.T, addr string, timeoutSecond, retries, conns int) transport.IRPCClientTransport {
	t.Helper()
	client := NewBaseClientTransport(&testClientConnector{})
	err := client.Connect(common.ClientConfig{
		TimeoutSecond: timeoutSecond,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{addr},
			RetryCount:             retries,
			ConnectionsPerEndpoint: conns,
		},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return client
}

func echo(req []byte) []byte {
	return append([]byte("echo:"), req...)
}

func TestSendReceive(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, addr, done := startServer(t, "127.0.0.1:0", echo)
	client := newClient(t, addr, 5, 1, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := fmt.Sprintf("request-%d", i)
			resp, err := client.Send([]byte(req))
			if err != nil {
				errs <- err
				return
			}
			if string(resp) != "echo:"+req {
				errs <- fmt.Errorf("response %q for %q", resp, req)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	// empty payloads are valid frames
	resp, err := client.Send(nil)
	if err != nil || string(resp) != "echo:" {
		t.Errorf("Send(nil) = %q, %v", resp, err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("client Close: %v", err)
	}
	if _, err := client.Send([]byte("x")); !errors.Is(err, transport.ErrClientClosed) {
		t.Errorf("Send after Close = %v, want ErrClientClosed", err)
	}
	if err := server.Close(); err != nil {
		t.Errorf("server Close: %v", err)
	}
	if err := <-done; !errors.Is(err, transport.ErrServerClosed) {
		t.Errorf("Listen returned %v, want ErrServerClosed", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	server, addr, done := startServer(t, "127.0.0.1:0", func(req []byte) []byte {
		<-release
		return req
	})
	client := newClient(t, addr, 1, 1, 1)

	_, err := client.Send([]byte("slow"))
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Send = %v, want timeout", err)
	}

	close(release)
	_ = client.Close()
	_ = server.Close()
	<-done
}

func TestReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, addr, done := startServer(t, "127.0.0.1:0", echo)
	client := newClient(t, addr, 2, 1, 1)

	if _, err := client.Send([]byte("first")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// restart the server on the same address
	_ = server.Close()
	<-done
	server, _, done = startServer(t, addr, func(req []byte) []byte {
		return append([]byte("restarted:"), req...)
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := client.Send([]byte("second"))
		if err == nil {
			if string(resp) != "restarted:second" {
				t.Errorf("unexpected response %q", resp)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("client did not reconnect: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	_ = client.Close()
	_ = server.Close()
	<-done
}

func TestConnectFails(t *testing.T) {
	client := NewBaseClientTransport(&testClientConnector{})
	err := client.Connect(common.ClientConfig{})
	if err == nil {
		t.Errorf("expected error without endpoints")
	}

	// a closed listener leaves a port nobody listens on
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	err = client.Connect(common.ClientConfig{Transport: common.ClientTransportConfig{Endpoints: []string{addr}}})
	if err == nil {
		t.Errorf("expected error for unreachable endpoint")
	}
}
