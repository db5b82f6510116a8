// Package tcp implements TCP socket based transport for the RPC layer. It
// provides concrete implementations of the base package's connector interfaces
// and applies the configured socket options (no delay, keep alive, linger and
// buffer sizes) to every connection.
//
// See the base package documentation for the framing, connection pooling and
// reconnect behavior.
//
// The default server buffer size is set to 512 KB, which provides good performance
// for typical workloads, but can be customized for specific use cases.
package tcp
