package rawsocket

import (
	"context"
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"

	"github.com/kbirk/wamp/pkg/serializer"
	"github.com/kbirk/wamp/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoListener(t *testing.T, network, address string) net.Listener {
	l, err := net.Listen(network, address)
	require.NoError(t, err)

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				c, _, err := AcceptHandshake(conn)
				if err != nil {
					conn.Close()
					return
				}
				defer c.Close()
				for {
					bs, err := c.Receive()
					if err != nil {
						return
					}
					if err := c.Send(bs); err != nil {
						return
					}
				}
			}()
		}
	}()

	return l
}

func TestDialTCP(t *testing.T) {
	l := echoListener(t, "tcp", "127.0.0.1:0")
	defer l.Close()

	for _, s := range []serializer.Serializer{
		serializer.NewJSONSerializer(),
		serializer.NewCBORSerializer(),
		serializer.NewMsgPackSerializer(),
	} {
		conn, err := NewDialer(Config{Serializer: s, NoDelay: true}).Dial(context.Background(), "rs://"+l.Addr().String())
		require.NoError(t, err)

		require.NoError(t, conn.Send([]byte("hello")))
		bs, err := conn.Receive()
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), bs)

		require.NoError(t, conn.Close())
	}
}

func TestDialUnix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wamp.sock")
	l := echoListener(t, "unix", path)
	defer l.Close()

	conn, err := NewDialer(Config{}).Dial(context.Background(), "unix://"+path)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send([]byte("hello")))
	bs, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), bs)
}

func TestHandshakeRefused(t *testing.T) {
	client, router := net.Pipe()
	defer client.Close()

	go func() {
		request := make([]byte, 4)
		router.Read(request)
		router.Write([]byte{magic, ErrCodeSerializerUnsupported << 4, 0, 0})
		router.Close()
	}()

	_, err := Handshake(context.Background(), client, serializer.JSONRawSocketID, DefaultMaxMessageExponent)
	assert.ErrorIs(t, err, ErrHandshakeRefused)
}

func TestReceiveAnswersPing(t *testing.T) {
	client, router := net.Pipe()
	conn := &Connection{conn: client, maxSend: maxLength(15), maxRecv: maxLength(15)}

	go func() {
		ping := []byte{framePing, 0, 0, 2, 'h', 'i'}
		router.Write(ping)

		pong := make([]byte, 6)
		n := 0
		for n < len(pong) {
			m, err := router.Read(pong[n:])
			if err != nil {
				return
			}
			n += m
		}

		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, 3)
		router.Write(append(header, 'm', 's', 'g'))
		router.Close()
	}()

	bs, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, []byte("msg"), bs)

	_, err = conn.Receive()
	assert.ErrorIs(t, err, transport.ErrConnectionClosed)
}

func TestSendLimit(t *testing.T) {
	client, router := net.Pipe()
	defer router.Close()
	conn := &Connection{conn: client, maxSend: 4, maxRecv: maxLength(15)}
	assert.Error(t, conn.Send([]byte("too large")))
}

func TestMaxLength(t *testing.T) {
	assert.Equal(t, uint32(512), maxLength(0))
	assert.Equal(t, uint32(1<<24-1), maxLength(15))
}

func TestUnsupportedScheme(t *testing.T) {
	_, err := NewDialer(Config{}).Dial(context.Background(), "http://localhost:8080")
	assert.Error(t, err)
}
