package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/kbirk/wamp/pkg/auth"
	"github.com/kbirk/wamp/pkg/log"
	"github.com/kbirk/wamp/pkg/messages"
	"github.com/kbirk/wamp/pkg/serializer"
	"github.com/kbirk/wamp/pkg/transport"
	"github.com/kbirk/wamp/pkg/wamp"
)

// ErrJoinClosed is returned when the connection ends before WELCOME.
var ErrJoinClosed = errors.New("connection closed before session was established")

// AbortError is returned when the router refuses the join.
type AbortError struct {
	Reason  string
	Details map[string]any
}

func (e *AbortError) Error() string {
	if msg, ok := e.Details["message"].(string); ok && msg != "" {
		return fmt.Sprintf("join aborted: %s: %s", e.Reason, msg)
	}
	return "join aborted: " + e.Reason
}

// roles announced in HELLO
var clientRoles = map[string]any{
	"caller":     map[string]any{"features": map[string]any{}},
	"callee":     map[string]any{"features": map[string]any{}},
	"publisher":  map[string]any{"features": map[string]any{}},
	"subscriber": map[string]any{"features": map[string]any{}},
}

// Joiner runs the opening handshake on an established connection.
type Joiner struct {
	Serializer    serializer.Serializer
	Authenticator auth.Authenticator
	Logger        log.Logger
}

func (j *Joiner) logDebug(msg string) {
	if j.Logger != nil {
		j.Logger.Debug(msg)
	}
}

func (j *Joiner) hello(realm string) *messages.Hello {
	details := map[string]any{
		"roles": clientRoles,
	}

	a := j.Authenticator
	if a == nil {
		a = auth.NewAnonymous("", nil)
	}
	details["authmethods"] = []any{a.AuthMethod()}
	if a.AuthID() != "" {
		details["authid"] = a.AuthID()
	}
	if extra := a.AuthExtra(); len(extra) > 0 {
		details["authextra"] = extra
	}

	return &messages.Hello{Realm: realm, Details: details}
}

// Join sends HELLO for realm and answers challenges until the router
// welcomes or aborts the session. Cancelling ctx closes conn.
func (j *Joiner) Join(ctx context.Context, conn transport.Connection, realm string) (*wamp.SessionDetails, error) {
	if err := j.send(conn, j.hello(realm)); err != nil {
		return nil, err
	}

	for {
		msg, err := j.receive(ctx, conn)
		if err != nil {
			return nil, err
		}

		switch msg := msg.(type) {
		case *messages.Welcome:
			j.logDebug(fmt.Sprintf("Joined realm %s as session %d", realm, msg.SessionID))
			details := &wamp.SessionDetails{
				ID:      msg.SessionID,
				Realm:   realm,
				Details: msg.Details,
			}
			details.AuthID, _ = msg.Details["authid"].(string)
			details.AuthRole, _ = msg.Details["authrole"].(string)
			return details, nil

		case *messages.Abort:
			return nil, &AbortError{Reason: msg.Reason, Details: msg.Details}

		case *messages.Challenge:
			if j.Authenticator == nil {
				return nil, fmt.Errorf("%w: no authenticator for %q", auth.ErrUnexpectedChallenge, msg.AuthMethod)
			}
			j.logDebug("Answering " + msg.AuthMethod + " challenge")
			reply, err := j.Authenticator.Authenticate(msg)
			if err != nil {
				return nil, fmt.Errorf("failed to authenticate: %w", err)
			}
			if err := j.send(conn, reply); err != nil {
				return nil, err
			}

		default:
			return nil, &wamp.ProtocolError{Message: "unexpected " + messages.TypeName(msg.Type()) + " during join"}
		}
	}
}

func (j *Joiner) send(conn transport.Connection, msg messages.Message) error {
	bs, err := j.Serializer.Serialize(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", messages.TypeName(msg.Type()), err)
	}
	if err := conn.Send(bs); err != nil {
		return fmt.Errorf("failed to send %s: %w", messages.TypeName(msg.Type()), err)
	}
	return nil
}

func (j *Joiner) receive(ctx context.Context, conn transport.Connection) (messages.Message, error) {
	type received struct {
		bs  []byte
		err error
	}

	ch := make(chan received, 1)
	go func() {
		bs, err := conn.Receive()
		ch <- received{bs: bs, err: err}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	case rcv := <-ch:
		if rcv.err != nil {
			if errors.Is(rcv.err, transport.ErrConnectionClosed) {
				return nil, ErrJoinClosed
			}
			return nil, rcv.err
		}
		msg, err := j.Serializer.Deserialize(rcv.bs)
		if err != nil {
			return nil, &wamp.ProtocolError{Message: err.Error()}
		}
		return msg, nil
	}
}
