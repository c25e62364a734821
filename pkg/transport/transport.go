package transport

import (
	"context"
	"errors"
)

// ErrConnectionClosed is returned by Receive when the peer closed the
// connection in an orderly fashion.
var ErrConnectionClosed = errors.New("connection closed")

// Connection represents a bidirectional message channel to a WAMP router
type Connection interface {
	// Send sends one encoded message to the remote peer
	Send(data []byte) error

	// Receive blocks until a message is received from the remote peer
	Receive() ([]byte, error)

	// Close closes the connection
	Close() error
}

// Dialer establishes connections for a serializer's subprotocol
type Dialer interface {
	// Dial connects to the router at uri
	Dial(ctx context.Context, uri string) (Connection, error)
}
