package adapter

import (
	"context"
	"net"
)

// Adapter is a network front end that feeds requests into the shared task
// queue and writes replies back to clients.
//
// Lifecycle:
//  1. Creation: the adapter is created with its configuration and the queue
//  2. Listen: binds the socket so the address is known before serving
//  3. Serve: accepts connections and blocks until the context is cancelled
//  4. Stop: initiates graceful shutdown and waits for connections to finish
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop may be called
// concurrently with Serve.
type Adapter interface {
	// Listen binds the listening socket. Serve calls it if it has not been
	// called yet. Calling it twice is an error.
	Listen() error

	// Serve accepts connections until ctx is cancelled or an unrecoverable
	// error occurs.
	//
	// When ctx is cancelled, Serve must:
	//   - stop accepting new connections
	//   - stop reading new requests from open connections
	//   - let connections write the replies they still owe (with timeout)
	//   - force-close whatever remains after the timeout
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if the listener fails or shutdown timed out
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown and waits for connections to finish
	// or ctx to end. Idempotent and safe to call concurrently with Serve.
	Stop(ctx context.Context) error

	// Protocol returns a human-readable protocol name for logging.
	Protocol() string

	// Port returns the bound port once listening, the configured port before.
	Port() int

	// Addr returns the bound address, or nil before Listen.
	Addr() net.Addr

	// ActiveConnections returns the number of open client connections.
	ActiveConnections() int32
}
