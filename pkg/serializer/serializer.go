package serializer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kbirk/wamp/pkg/messages"
)

const (
	JSONSubprotocol    = "wamp.2.json"
	MsgPackSubprotocol = "wamp.2.msgpack"
	CBORSubprotocol    = "wamp.2.cbor"
)

// RawSocket serializer identifiers.
const (
	JSONRawSocketID    byte = 1
	MsgPackRawSocketID byte = 2
	CBORRawSocketID    byte = 3
)

var ErrUnknownSerializer = errors.New("unknown serializer")

// Serializer converts messages to and from their encoded wire form.
type Serializer interface {
	Serialize(messages.Message) ([]byte, error)
	Deserialize([]byte) (messages.Message, error)
	// Subprotocol is the websocket subprotocol negotiated for this serializer.
	Subprotocol() string
	// RawSocketID is the serializer identifier used in the RawSocket handshake.
	RawSocketID() byte
	// Binary reports whether encoded messages must be sent as binary frames.
	Binary() bool
}

// ByName returns a serializer for "json", "cbor" or "msgpack".
func ByName(name string) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return NewJSONSerializer(), nil
	case "cbor", "":
		return NewCBORSerializer(), nil
	case "msgpack":
		return NewMsgPackSerializer(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSerializer, name)
}

// BySubprotocol returns the serializer matching a negotiated websocket subprotocol.
func BySubprotocol(subprotocol string) (Serializer, error) {
	switch subprotocol {
	case JSONSubprotocol:
		return NewJSONSerializer(), nil
	case CBORSubprotocol:
		return NewCBORSerializer(), nil
	case MsgPackSubprotocol:
		return NewMsgPackSerializer(), nil
	}
	return nil, fmt.Errorf("%w: subprotocol %q", ErrUnknownSerializer, subprotocol)
}

// ByRawSocketID returns the serializer for a RawSocket serializer identifier.
func ByRawSocketID(id byte) (Serializer, error) {
	switch id {
	case JSONRawSocketID:
		return NewJSONSerializer(), nil
	case CBORRawSocketID:
		return NewCBORSerializer(), nil
	case MsgPackRawSocketID:
		return NewMsgPackSerializer(), nil
	}
	return nil, fmt.Errorf("%w: rawsocket id %d", ErrUnknownSerializer, id)
}

func decodeError(err error) error {
	return fmt.Errorf("%w: %v", messages.ErrInvalidMessage, err)
}
