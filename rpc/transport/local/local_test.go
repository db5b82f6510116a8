package local

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/tKV/rpc/common"
	"github.com/ValentinKolb/tKV/rpc/transport"
	"go.uber.org/goleak"
)

func listen(t *testing.T, endpoint string, handler transport.ServerHandleFunc) (transport.IRPCServerTransport, <-chan error) {
	t.Helper()
	server := NewLocalServerTransport()
	server.RegisterHandler(handler)
	done := make(chan error, 1)
	go func() {
		done <- server.Listen(common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: endpoint}})
	}()

	// wait until the endpoint is registered
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := servers.Load(endpoint); ok {
			return server, done
		}
		if time.Now().After(deadline) {
			t.Fatalf("server %s did not start", endpoint)
		}
		time.Sleep(time.Millisecond)
	}
}

func connect(t *testing.T, endpoints ...string) transport.IRPCClientTransport {
	t.Helper()
	client := NewLocalClientTransport()
	if err := client.Connect(common.ClientConfig{Transport: common.ClientTransportConfig{Endpoints: endpoints}}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return client
}

func TestLocalTransport(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, done := listen(t, "node-a", func(req []byte) []byte {
		resp := append([]byte("a:"), req...)
		req[0] = 'X' // handlers own their copy
		return resp
	})
	client := connect(t, "node-a")

	req := []byte("hello")
	resp, err := client.Send(req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp) != "a:hello" {
		t.Errorf("response = %q, want %q", resp, "a:hello")
	}
	if string(req) != "hello" {
		t.Errorf("request was modified: %q", req)
	}

	if err := server.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := <-done; !errors.Is(err, transport.ErrServerClosed) {
		t.Errorf("Listen returned %v, want ErrServerClosed", err)
	}
	if _, err := client.Send(req); err == nil || !strings.Contains(err.Error(), "no local server") {
		t.Errorf("Send after server Close = %v", err)
	}

	_ = client.Close()
	if _, err := client.Send(req); !errors.Is(err, transport.ErrClientClosed) {
		t.Errorf("Send after client Close = %v, want ErrClientClosed", err)
	}
}

func TestLocalTransportEndpoints(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, doneA := listen(t, "ep-a", func(req []byte) []byte { return []byte("a") })
	b, doneB := listen(t, "ep-b", func(req []byte) []byte { return []byte("b") })

	// the endpoint is taken
	dup := NewLocalServerTransport()
	dup.RegisterHandler(func(req []byte) []byte { return nil })
	if err := dup.Listen(common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: "ep-a"}}); err == nil {
		t.Errorf("expected error for endpoint in use")
	}

	// round robin over both endpoints
	client := connect(t, "ep-a", "ep-b")
	seen := map[string]int{}
	for i := 0; i < 10; i++ {
		resp, err := client.Send(nil)
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		seen[string(resp)]++
	}
	if seen["a"] != 5 || seen["b"] != 5 {
		t.Errorf("unbalanced responses: %v", seen)
	}

	_ = client.Close()
	_ = a.Close()
	_ = b.Close()
	<-doneA
	<-doneB

	if err := NewLocalClientTransport().Connect(common.ClientConfig{}); err == nil {
		t.Errorf("expected error without endpoints")
	}
}
