// Package rpc provides the network layer of the replicated cache. It carries
// client requests to cache nodes and replication commands between nodes.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP, in-process).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - peer: Adapter exposing a client transport as the transport between the
//     nodes of a cluster.
//
//   - server: RPC server hosting one cache node.
//
//   - client: RPC client implementing the cache operations against a remote node.
package rpc
