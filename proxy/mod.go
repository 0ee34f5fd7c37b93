// Package proxy defines the HTTP endpoint of a node. The modules of the node
// register their handlers on it, like the Prometheus metrics or the cached
// state of the community.
package proxy

import (
	"net"
	"net/http"
)

// Proxy defines the primitives of the HTTP server of the node.
type Proxy interface {
	// Listen starts the server. This call is blocking until the server is
	// stopped.
	Listen()

	// Stop stops the server.
	Stop()

	// GetAddr returns the address the server is listening on, or nil if it is
	// not listening yet.
	GetAddr() net.Addr

	// RegisterHandler registers a new handler.
	RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request))
}
