// Package server implements the RPC server of a tKV node.
//
// An RPCServer creates the cluster node of the process, the peer carrying the
// replication commands between the members and registers a single handler at
// the server transport. The handler serves two kinds of requests:
//
//   - Cache operations (put, get, remove, replace, compute, putAll, stats) sent
//     by clients. They are translated into node operations by the
//     IRPCServerAdapter returned from NewCacheServerAdapter. The node that
//     receives a write is its originator.
//
//   - Command messages sent by the peers of the other members.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  NodeName:       "node-1",
//	  ClusterMembers: map[string]string{"node-1": "10.0.0.1:8080", "node-2": "10.0.0.2:8080"},
//	  NumSegments:    256,
//	  NumOwners:      2,
//	  TopologyID:     1,
//	  TimeoutSecond:  5,
//	  Transport:      common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  tcp.NewTCPClientTransport,
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// All members must use the same serializer and the same topology parameters.
// If MetricsEndpoint is set the server also exposes the metrics of the process
// in the prometheus text format under /metrics.
package server
