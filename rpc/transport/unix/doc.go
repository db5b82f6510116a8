// Package unix implements the RPC transport over Unix domain sockets, for
// clients and nodes running on the same machine.
//
// This package extends the base transport layer with Unix socket-specific connectors
// while inheriting framing, connection pooling and reconnects from the base package.
//
// The default server buffer size is 64 KB. The socket file given as endpoint is
// removed before listening.
package unix
