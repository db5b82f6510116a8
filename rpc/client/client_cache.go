package client

import (
	"time"

	"github.com/ValentinKolb/tKV/rpc/common"
	"github.com/ValentinKolb/tKV/rpc/serializer"
	"github.com/ValentinKolb/tKV/rpc/transport"
)

// NewRPCCache creates a new RPC cache client
// The function takes a config, a transport and a serializer as parameters
// It returns the connected client and an error
func NewRPCCache(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCCache, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	return &RPCCache{
		rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// RPCCache calls the cache operations of a tKV node. Writes are replicated by
// the node that receives them. A zero lifespan never expires.
type RPCCache struct {
	rpcClientAdapter
}

func lifespanMillis(lifespan time.Duration) uint64 {
	if lifespan <= 0 {
		return 0
	}
	if ms := lifespan.Milliseconds(); ms > 0 {
		return uint64(ms)
	}
	return 1
}

// Put stores value under key and returns the previous value, nil if there was none
func (c *RPCCache) Put(key string, value []byte, lifespan time.Duration) ([]byte, error) {
	resp, err := invokeRPCRequest(common.NewPutRequest(key, value, lifespanMillis(lifespan)), c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// PutIfAbsent stores value if key does not exist. It returns true if the value
// was stored, otherwise the existing value.
func (c *RPCCache) PutIfAbsent(key string, value []byte, lifespan time.Duration) (existing []byte, stored bool, err error) {
	resp, err := invokeRPCRequest(common.NewPutIfAbsentRequest(key, value, lifespanMillis(lifespan)), c.transport, c.serializer)
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

// Get returns the value of key and whether it exists
func (c *RPCCache) Get(key string) ([]byte, bool, error) {
	resp, err := invokeRPCRequest(common.NewGetRequest(key), c.transport, c.serializer)
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

// Remove removes key and returns the previous value
func (c *RPCCache) Remove(key string) ([]byte, error) {
	resp, err := invokeRPCRequest(common.NewRemoveRequest(key), c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// RemoveIf removes key if it holds expected
func (c *RPCCache) RemoveIf(key string, expected []byte) (bool, error) {
	resp, err := invokeRPCRequest(common.NewRemoveIfRequest(key, expected), c.transport, c.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// Replace stores value if key exists. It returns the previous value and whether
// the value was replaced.
func (c *RPCCache) Replace(key string, value []byte, lifespan time.Duration) ([]byte, bool, error) {
	resp, err := invokeRPCRequest(common.NewReplaceRequest(key, value, lifespanMillis(lifespan)), c.transport, c.serializer)
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

// ReplaceIf stores value if key holds expected
func (c *RPCCache) ReplaceIf(key string, expected, value []byte, lifespan time.Duration) (bool, error) {
	resp, err := invokeRPCRequest(common.NewReplaceIfRequest(key, expected, value, lifespanMillis(lifespan)), c.transport, c.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// Compute stores the result of the compute function fn registered on the
// nodes and returns it. A nil result removes the key.
func (c *RPCCache) Compute(key, fn string, arg []byte, lifespan time.Duration) ([]byte, error) {
	resp, err := invokeRPCRequest(common.NewComputeRequest(key, fn, arg, lifespanMillis(lifespan)), c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// PutAll stores all entries and returns the previous values of the keys that
// existed
func (c *RPCCache) PutAll(entries map[string][]byte, lifespan time.Duration) (map[string][]byte, error) {
	resp, err := invokeRPCRequest(common.NewPutAllRequest(entries, lifespanMillis(lifespan)), c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Stats returns the statistics of the node serving the request
func (c *RPCCache) Stats() (string, error) {
	resp, err := invokeRPCRequest(common.NewStatsRequest(), c.transport, c.serializer)
	if err != nil {
		return "", err
	}
	return string(resp.Meta), nil
}

// Close closes the transport of the client
func (c *RPCCache) Close() error {
	return c.transport.Close()
}
