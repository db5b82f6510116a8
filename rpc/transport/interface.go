package transport

import (
	"errors"

	"github.com/ValentinKolb/tKV/rpc/common"
)

var (
	// ErrServerClosed is returned by Listen after Close was called
	ErrServerClosed = errors.New("transport: server closed")
	// ErrClientClosed is returned by Send after Close was called
	ErrClientClosed = errors.New("transport: client closed")
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes the serialized request and returns the serialized response
type ServerHandleFunc func(req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler must be registered before Listen is called
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and serves incoming requests until
	// Close is called, it then returns ErrServerClosed
	Listen(config common.ServerConfig) error
	// Close stops listening, closes all connections and waits for running handlers
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
