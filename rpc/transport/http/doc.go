// Package http implements an HTTP based transport for the RPC layer. Every
// request is a POST of the serialized message to /rpc, the response body is the
// serialized response.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. It selects endpoints
//     round-robin and retries failed requests on the next endpoint.
//
//   - httpServerTransport: Implements IRPCServerTransport. Close shuts the
//     server down gracefully, waiting for running handlers.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use once connected.
package http
