// Package common provides core data structures and utilities shared across
// the RPC layer of the replicated cache. It defines the wire message, the
// configuration structures and the logger factory used by the other packages.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. Client requests
//     to a node and replication commands between nodes share the envelope,
//     the message type decides which fields are used.
//
//   - MessageType: Enumeration defining all supported operation types, split
//     into cache operations and cluster operations.
//
//   - ServerConfig: Configuration of a cache node, including its identity, the
//     cluster members, topology and replication parameters and the transport.
//     Provides utilities for converting to the cluster node configuration.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
