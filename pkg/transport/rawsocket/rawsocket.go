package rawsocket

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/kbirk/wamp/pkg/serializer"
	"github.com/kbirk/wamp/pkg/transport"
)

const (
	magic = 0x7F

	frameRegular = 0x00
	framePing    = 0x01
	framePong    = 0x02

	// DefaultMaxMessageExponent advertises 2^(9+15) = 16MB messages.
	DefaultMaxMessageExponent = 15
	maxFrameLength            = 1<<24 - 1
)

// Handshake error codes sent by routers in place of a serializer id.
const (
	ErrCodeSerializerUnsupported = 1
	ErrCodeMaxLengthUnacceptable = 2
	ErrCodeReservedBitsUsed      = 3
	ErrCodeMaxConnectionsReached = 4
)

var (
	ErrInvalidHandshake = errors.New("invalid rawsocket handshake")
	ErrHandshakeRefused = errors.New("rawsocket handshake refused")
)

// maxLength converts a handshake length exponent to a byte count
func maxLength(exponent byte) uint32 {
	n := uint32(1) << (9 + uint32(exponent&0x0F))
	if n > maxFrameLength {
		return maxFrameLength
	}
	return n
}

// setNoDelay sets the TCP_NODELAY option on a TCP connection
func setNoDelay(conn net.Conn, noDelay bool) error {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		return tcpConn.SetNoDelay(noDelay)
	}
	return nil
}

// Connection implements the transport.Connection interface for RawSocket
type Connection struct {
	conn    net.Conn
	mu      sync.Mutex
	maxSend uint32
	maxRecv uint32
}

func (c *Connection) writeFrame(frameType byte, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	header[0] = frameType

	if _, err := c.conn.Write(header); err != nil {
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		return err
	}
	return nil
}

func (c *Connection) Send(data []byte) error {
	if uint32(len(data)) > c.maxSend {
		return fmt.Errorf("message size %d exceeds send limit %d", len(data), c.maxSend)
	}
	return c.writeFrame(frameRegular, data)
}

func (c *Connection) Receive() ([]byte, error) {
	for {
		header := make([]byte, 4)
		if _, err := io.ReadFull(c.conn, header); err != nil {
			if err == io.EOF {
				return nil, transport.ErrConnectionClosed
			}
			return nil, err
		}
		frameType := header[0] & 0x07
		header[0] = 0
		length := binary.BigEndian.Uint32(header)

		if length > c.maxRecv {
			return nil, fmt.Errorf("message size %d exceeds receive limit %d", length, c.maxRecv)
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(c.conn, data); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, transport.ErrConnectionClosed
			}
			return nil, err
		}

		switch frameType {
		case frameRegular:
			return data, nil
		case framePing:
			if err := c.writeFrame(framePong, data); err != nil {
				return nil, err
			}
		case framePong:
			// unsolicited pongs are ignored
		default:
			return nil, fmt.Errorf("unknown rawsocket frame type %d", frameType)
		}
	}
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

type Config struct {
	Serializer         serializer.Serializer
	TLSConfig          *tls.Config
	NoDelay            bool // Disable Nagle's algorithm for better latency
	MaxMessageExponent byte // Receive limit is 2^(9+n) bytes, n in [0, 15]
	DialTimeout        time.Duration
}

// Dialer connects to WAMP routers over RawSocket. Supported schemes are
// rs/tcp, rss/tcps (TLS) and unix.
type Dialer struct {
	conf Config
}

func NewDialer(conf Config) *Dialer {
	if conf.Serializer == nil {
		conf.Serializer = serializer.NewCBORSerializer()
	}
	if conf.MaxMessageExponent == 0 || conf.MaxMessageExponent > 15 {
		conf.MaxMessageExponent = DefaultMaxMessageExponent
	}
	if conf.DialTimeout == 0 {
		conf.DialTimeout = 10 * time.Second
	}
	return &Dialer{conf: conf}
}

func (d *Dialer) Dial(ctx context.Context, uri string) (transport.Connection, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}

	netDialer := &net.Dialer{Timeout: d.conf.DialTimeout}

	var conn net.Conn
	switch u.Scheme {
	case "rs", "tcp":
		conn, err = netDialer.DialContext(ctx, "tcp", u.Host)
	case "rss", "tcps":
		tlsDialer := &tls.Dialer{NetDialer: netDialer, Config: d.conf.TLSConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", u.Host)
	case "unix":
		conn, err = netDialer.DialContext(ctx, "unix", u.Path)
	default:
		return nil, fmt.Errorf("unsupported rawsocket scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	// Set TCP_NODELAY option
	if err := setNoDelay(conn, d.conf.NoDelay); err != nil {
		conn.Close()
		return nil, err
	}

	c, err := Handshake(ctx, conn, d.conf.Serializer.RawSocketID(), d.conf.MaxMessageExponent)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Handshake performs the client side of the RawSocket opening handshake.
func Handshake(ctx context.Context, conn net.Conn, serializerID byte, exponent byte) (*Connection, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	request := []byte{magic, exponent<<4 | serializerID&0x0F, 0, 0}
	if _, err := conn.Write(request); err != nil {
		return nil, err
	}

	reply := make([]byte, 4)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return nil, err
	}
	if reply[0] != magic {
		return nil, fmt.Errorf("%w: bad magic octet 0x%02x", ErrInvalidHandshake, reply[0])
	}
	if reply[1]&0x0F == 0 {
		return nil, fmt.Errorf("%w: error code %d", ErrHandshakeRefused, reply[1]>>4)
	}
	if reply[1]&0x0F != serializerID {
		return nil, fmt.Errorf("%w: router echoed serializer %d", ErrInvalidHandshake, reply[1]&0x0F)
	}

	return &Connection{
		conn:    conn,
		maxSend: maxLength(reply[1] >> 4),
		maxRecv: maxLength(exponent),
	}, nil
}

// AcceptHandshake performs the router side of the opening handshake and
// returns the connection with the serializer the client asked for.
func AcceptHandshake(conn net.Conn) (*Connection, serializer.Serializer, error) {
	request := make([]byte, 4)
	if _, err := io.ReadFull(conn, request); err != nil {
		return nil, nil, err
	}
	if request[0] != magic {
		return nil, nil, fmt.Errorf("%w: bad magic octet 0x%02x", ErrInvalidHandshake, request[0])
	}
	if request[2] != 0 || request[3] != 0 {
		conn.Write([]byte{magic, ErrCodeReservedBitsUsed << 4, 0, 0})
		return nil, nil, fmt.Errorf("%w: reserved octets set", ErrInvalidHandshake)
	}

	exponent := request[1] >> 4
	s, err := serializer.ByRawSocketID(request[1] & 0x0F)
	if err != nil {
		conn.Write([]byte{magic, ErrCodeSerializerUnsupported << 4, 0, 0})
		return nil, nil, err
	}

	reply := []byte{magic, DefaultMaxMessageExponent<<4 | s.RawSocketID(), 0, 0}
	if _, err := conn.Write(reply); err != nil {
		return nil, nil, err
	}

	return &Connection{
		conn:    conn,
		maxSend: maxLength(exponent),
		maxRecv: maxLength(DefaultMaxMessageExponent),
	}, s, nil
}
