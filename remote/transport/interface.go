package transport

import (
	"github.com/accordlabs/accord/remote/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// HandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes an encoded request as a parameter and returns an encoded response
type HandleFunc func(req []byte) (resp []byte)

// ServerTransport is the interface for the server side of the sync exchange
type ServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler is called for every received request
	RegisterHandler(handler HandleFunc)
	// Listen starts the transport layer and listens for incoming requests
	Listen(config common.ServerConfig) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// ClientTransport is the interface for the client side of the sync exchange
type ClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
