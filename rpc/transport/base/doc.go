// Package base provides the protocol independent part of the framed socket
// transports (TCP, Unix sockets). Protocol specific packages only provide a
// connector that dials, listens and tunes sockets.
//
// Framing:
//
//	8 bytes request id | 4 bytes payload length | payload
//
// Responses carry the id of their request, so one connection serves many
// requests at once.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Manages several connections per endpoint with round-robin
//     selection. A reader goroutine per connection correlates responses by request
//     id. A lost connection fails all requests waiting on it and is restored with
//     exponential backoff, sends are retried with jittered backoff.
//
//   - serverTransport: Accepts connections and runs the handler on a bounded
//     number of workers per connection. Close stops accepting, closes all open
//     connections and waits for running handlers.
//
// Performance Optimizations:
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse read buffers.
//
//   - Frame Batching: The transport uses net.Buffers to reduce syscalls when
//     writing frames, combining header and payload into a single write operation.
//
// Thread Safety:
//
//	All public methods are thread-safe.
package base
