// Package client implements the RPC client of the tKV cache.
//
// RPCCache sends the cache operations to the configured endpoints through an
// IRPCClientTransport. Every node of the cluster accepts every operation, the
// node receiving a write replicates it to the owners of the key.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8080"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	cache, _ := client.NewRPCCache(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	defer cache.Close()
//
//	cache.Put("mykey", []byte("myvalue"), time.Minute)
//	value, exists, _ := cache.Get("mykey")
//	counter, _ := cache.Compute("visits", "increment", nil, 0)
//
// Errors reported by the server are returned as *RemoteError.
//
// Thread Safety:
//
//	RPCCache is thread-safe and can be used concurrently from multiple
//	goroutines without additional synchronization.
package client
