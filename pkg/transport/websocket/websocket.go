package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kbirk/wamp/pkg/serializer"
	"github.com/kbirk/wamp/pkg/transport"
)

var (
	ErrSubprotocolMismatch = errors.New("router did not accept the requested subprotocol")
	ErrMessageTooLarge     = errors.New("message exceeds size limit")
)

const closeFrameTimeout = time.Second

// Connection is a WAMP transport over a single WebSocket.
type Connection struct {
	conn        *websocket.Conn
	writeMu     *sync.Mutex
	closeOnce   *sync.Once
	messageType int
	sendLimit   uint32
}

func newConnection(conn *websocket.Conn, binary bool, maxSend, maxRecv uint32) *Connection {
	if maxRecv > 0 {
		conn.SetReadLimit(int64(maxRecv))
	}
	messageType := websocket.TextMessage
	if binary {
		messageType = websocket.BinaryMessage
	}
	return &Connection{
		conn:        conn,
		writeMu:     &sync.Mutex{},
		closeOnce:   &sync.Once{},
		messageType: messageType,
		sendLimit:   maxSend,
	}
}

func (c *Connection) Send(data []byte) error {
	if c.sendLimit > 0 && uint32(len(data)) > c.sendLimit {
		return fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, len(data), c.sendLimit)
	}

	// gorilla allows one concurrent writer
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(c.messageType, data)
}

func (c *Connection) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	switch {
	case err == nil:
		return data, nil
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived),
		errors.Is(err, net.ErrClosed):
		return nil, transport.ErrConnectionClosed
	case errors.Is(err, websocket.ErrReadLimit):
		return nil, fmt.Errorf("%w: %v", ErrMessageTooLarge, err)
	}
	return nil, err
}

// Close sends a normal closure frame and closes the socket. Only the first
// call does any work.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		writeErr := c.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(closeFrameTimeout))
		err = c.conn.Close()
		if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) && !errors.Is(writeErr, net.ErrClosed) {
			err = writeErr
		}
	})
	return err
}

// Subprotocol returns the negotiated WAMP subprotocol
func (c *Connection) Subprotocol() string {
	return c.conn.Subprotocol()
}

type Config struct {
	Serializer         serializer.Serializer
	TLSConfig          *tls.Config
	Header             http.Header
	HandshakeTimeout   time.Duration
	MaxSendMessageSize uint32 // Maximum send message size in bytes (0 for no limit)
	MaxRecvMessageSize uint32 // Maximum receive message size in bytes (0 for no limit)
}

// Dialer connects to WAMP routers over WebSocket
type Dialer struct {
	conf Config
}

func NewDialer(conf Config) *Dialer {
	if conf.Serializer == nil {
		conf.Serializer = serializer.NewCBORSerializer()
	}
	if conf.HandshakeTimeout == 0 {
		conf.HandshakeTimeout = 10 * time.Second
	}
	return &Dialer{conf: conf}
}

func (d *Dialer) Dial(ctx context.Context, uri string) (transport.Connection, error) {
	subprotocol := d.conf.Serializer.Subprotocol()

	dialer := websocket.Dialer{
		Subprotocols:     []string{subprotocol},
		TLSClientConfig:  d.conf.TLSConfig,
		HandshakeTimeout: d.conf.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, uri, d.conf.Header)
	if err != nil {
		return nil, err
	}

	if conn.Subprotocol() != subprotocol {
		conn.Close()
		return nil, fmt.Errorf("%w: requested %q, got %q", ErrSubprotocolMismatch, subprotocol, conn.Subprotocol())
	}

	return newConnection(conn, d.conf.Serializer.Binary(), d.conf.MaxSendMessageSize, d.conf.MaxRecvMessageSize), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	Subprotocols: []string{
		serializer.CBORSubprotocol,
		serializer.MsgPackSubprotocol,
		serializer.JSONSubprotocol,
	},
}

// Accept upgrades an HTTP request to a WAMP WebSocket connection and returns
// the serializer matching the negotiated subprotocol.
func Accept(w http.ResponseWriter, r *http.Request) (*Connection, serializer.Serializer, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, nil, err
	}

	s, err := serializer.BySubprotocol(conn.Subprotocol())
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	return newConnection(conn, s.Binary(), 0, 0), s, nil
}
