// Package transport defines the interfaces and abstractions for RPC communication
// in the replicated cache. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Request/response exchanges of opaque byte payloads, the serializer
//     defines their content
//   - Enabling multiple transport implementations (HTTP, TCP, Unix sockets and
//     the in-process local transport)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
package transport
