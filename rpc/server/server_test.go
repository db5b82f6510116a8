package server

import (
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/tKV/rpc/client"
	"github.com/ValentinKolb/tKV/rpc/common"
	"github.com/ValentinKolb/tKV/rpc/serializer"
	"github.com/ValentinKolb/tKV/rpc/transport/local"
	"go.uber.org/goleak"
)

var members = map[string]string{
	"node-a": "server-test-a",
	"node-b": "server-test-b",
	"node-c": "server-test-c",
}

type testCluster struct {
	servers map[string]*RPCServer
	done    []chan error
}

func startCluster(t *testing.T, s serializer.IRPCSerializer) *testCluster {
	t.Helper()
	c := &testCluster{servers: map[string]*RPCServer{}}
	for name, endpoint := range members {
		srv := NewRPCServer(common.ServerConfig{
			NodeName:       name,
			ClusterMembers: members,
			NumSegments:    16,
			NumOwners:      2,
			TopologyID:     1,
			AckTimeout:     5 * time.Second,
			TimeoutSecond:  10,
			Transport:      common.ServerTransportConfig{Endpoint: endpoint},
		}, local.NewLocalServerTransport(), local.NewLocalClientTransport, s)

		done := make(chan error, 1)
		go func() { done <- srv.Serve() }()
		c.servers[name] = srv
		c.done = append(c.done, done)
	}

	// wait until every server answers
	for name := range members {
		cache := c.client(t, name, s)
		deadline := time.Now().Add(5 * time.Second)
		for {
			if _, err := cache.Stats(); err == nil {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("server %s did not start", name)
			}
			time.Sleep(5 * time.Millisecond)
		}
		_ = cache.Close()
	}
	return c
}

func (c *testCluster) client(t *testing.T, name string, s serializer.IRPCSerializer) *client.RPCCache {
	t.Helper()
	cache, err := client.NewRPCCache(common.ClientConfig{
		TimeoutSecond: 10,
		Transport:     common.ClientTransportConfig{Endpoints: []string{members[name]}},
	}, local.NewLocalClientTransport(), s)
	if err != nil {
		t.Fatalf("NewRPCCache: %v", err)
	}
	return cache
}

// copies counts the nodes holding key
func (c *testCluster) copies(key string) int {
	n := 0
	for _, srv := range c.servers {
		if _, ok := srv.Node().Container().Peek(key); ok {
			n++
		}
	}
	return n
}

func (c *testCluster) close(t *testing.T) {
	for _, srv := range c.servers {
		if err := srv.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}
	for _, done := range c.done {
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	}
}

func TestCacheOperations(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, name := range []string{"json", "gob", "binary"} {
		t.Run(name, func(t *testing.T) {
			s, err := serializer.New(name)
			if err != nil {
				t.Fatal(err)
			}
			c := startCluster(t, s)
			defer c.close(t)

			a := c.client(t, "node-a", s)
			defer a.Close()
			b := c.client(t, "node-b", s)
			defer b.Close()

			// put and read through another node
			prev, err := a.Put("k1", []byte("v1"), 0)
			if err != nil || prev != nil {
				t.Fatalf("Put = %q, %v", prev, err)
			}
			if v, ok, err := b.Get("k1"); err != nil || !ok || string(v) != "v1" {
				t.Errorf("Get = %q, %v, %v", v, ok, err)
			}
			if n := c.copies("k1"); n != 2 {
				t.Errorf("k1 stored on %d nodes, want 2", n)
			}
			if _, ok, err := b.Get("missing"); err != nil || ok {
				t.Errorf("Get(missing) = %v, %v", ok, err)
			}

			// conditional writes
			if existing, stored, err := b.PutIfAbsent("k1", []byte("other"), 0); err != nil || stored || string(existing) != "v1" {
				t.Errorf("PutIfAbsent(k1) = %q, %v, %v", existing, stored, err)
			}
			if _, stored, err := b.PutIfAbsent("k2", []byte("v2"), 0); err != nil || !stored {
				t.Errorf("PutIfAbsent(k2) = %v, %v", stored, err)
			}
			if prev, ok, err := a.Replace("k1", []byte("v1b"), 0); err != nil || !ok || string(prev) != "v1" {
				t.Errorf("Replace(k1) = %q, %v, %v", prev, ok, err)
			}
			if _, ok, err := a.Replace("missing", []byte("x"), 0); err != nil || ok {
				t.Errorf("Replace(missing) = %v, %v", ok, err)
			}
			if ok, err := b.ReplaceIf("k1", []byte("wrong"), []byte("v1c"), 0); err != nil || ok {
				t.Errorf("ReplaceIf(wrong) = %v, %v", ok, err)
			}
			if ok, err := b.ReplaceIf("k1", []byte("v1b"), []byte("v1c"), 0); err != nil || !ok {
				t.Errorf("ReplaceIf = %v, %v", ok, err)
			}
			if ok, err := a.RemoveIf("k1", []byte("v1b")); err != nil || ok {
				t.Errorf("RemoveIf(stale) = %v, %v", ok, err)
			}
			if ok, err := a.RemoveIf("k1", []byte("v1c")); err != nil || !ok {
				t.Errorf("RemoveIf = %v, %v", ok, err)
			}
			if _, ok, _ := a.Get("k1"); ok {
				t.Errorf("k1 still exists after RemoveIf")
			}
			if n := c.copies("k1"); n != 0 {
				t.Errorf("k1 left on %d nodes", n)
			}
			if prev, err := b.Remove("k2"); err != nil || string(prev) != "v2" {
				t.Errorf("Remove(k2) = %q, %v", prev, err)
			}

			// compute with the builtin functions
			if v, err := a.Compute("counter", "increment", []byte("5"), 0); err != nil || string(v) != "5" {
				t.Errorf("Compute = %q, %v", v, err)
			}
			if v, err := b.Compute("counter", "increment", []byte("5"), 0); err != nil || string(v) != "10" {
				t.Errorf("Compute = %q, %v", v, err)
			}

			// multi key writes
			prevs, err := a.PutAll(map[string][]byte{"m1": []byte("1"), "m2": []byte("2")}, 0)
			if err != nil || len(prevs) != 0 {
				t.Errorf("PutAll = %v, %v", prevs, err)
			}
			prevs, err = b.PutAll(map[string][]byte{"m1": []byte("3")}, 0)
			if err != nil || string(prevs["m1"]) != "1" {
				t.Errorf("PutAll = %v, %v", prevs, err)
			}

			stats, err := a.Stats()
			if err != nil || !strings.Contains(stats, "node-a") {
				t.Errorf("Stats = %q, %v", stats, err)
			}
		})
	}
}

func TestLifespan(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := serializer.NewBinarySerializer()
	c := startCluster(t, s)
	defer c.close(t)
	a := c.client(t, "node-a", s)
	defer a.Close()

	if _, err := a.Put("short", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := a.Put("long", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, ok, err := a.Get("short"); err != nil || ok {
		t.Errorf("expired entry returned: %v, %v", ok, err)
	}
	if _, ok, err := a.Get("long"); err != nil || !ok {
		t.Errorf("Get(long) = %v, %v", ok, err)
	}
}

func TestInvalidRequests(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := serializer.NewBinarySerializer()
	c := startCluster(t, s)
	defer c.close(t)

	raw := local.NewLocalClientTransport()
	if err := raw.Connect(common.ClientConfig{Transport: common.ClientTransportConfig{Endpoints: []string{members["node-a"]}}}); err != nil {
		t.Fatal(err)
	}
	defer raw.Close()

	tests := []struct {
		name string
		req  []byte
		want string
	}{
		{"garbage", []byte{0x01}, "failed to deserialize request"},
		{"unsupported type", mustSerialize(t, s, common.Message{MsgType: common.MsgTSuccess}), "Unsupported message type"},
		{"invalid command", mustSerialize(t, s, *common.NewCommandRequest("node-b", []byte{0xff})), "command from node-b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := raw.Send(tt.req)
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			var resp common.Message
			if err := s.Deserialize(data, &resp); err != nil {
				t.Fatalf("Deserialize: %v", err)
			}
			if !strings.Contains(resp.Err, tt.want) {
				t.Errorf("Err = %q, want %q", resp.Err, tt.want)
			}
		})
	}
}

func mustSerialize(t *testing.T, s serializer.IRPCSerializer, msg common.Message) []byte {
	t.Helper()
	data, err := s.Serialize(msg)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
