/*
Package wamp implements the client side of a WAMP session: request
correlation, inbound message dispatch, subscription multiplexing and the
goodbye handshake.

A Session is created from an already joined transport.Connection (see the
client package for dialing and joining). Every request method blocks until the
router answers, the context is done, or the session disconnects; in the last
case the method returns ErrSessionClosed.

	session, err := client.ConnectAnonymous(ctx, "ws://localhost:8080/ws", "realm1")
	if err != nil {
		return err
	}
	defer session.Close()

	result, err := session.Call(ctx, "io.xconn.echo", []any{"hello"}, nil, nil)

Invocation handlers run on their own goroutines. Event handlers run one at a
time on a delivery goroutine, in the order events arrive, and may call back
into the session.
*/
package wamp
