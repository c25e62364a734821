package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/kbirk/wamp/pkg/auth"
	"github.com/kbirk/wamp/pkg/log"
	"github.com/kbirk/wamp/pkg/serializer"
	"github.com/kbirk/wamp/pkg/transport"
	"github.com/kbirk/wamp/pkg/transport/rawsocket"
	"github.com/kbirk/wamp/pkg/transport/websocket"
	"github.com/kbirk/wamp/pkg/wamp"
)

type Config struct {
	// Serializer defaults to CBOR.
	Serializer    serializer.Serializer
	Authenticator auth.Authenticator
	TLSConfig     *tls.Config
	// Dialer overrides scheme based transport selection.
	Dialer       transport.Dialer
	ErrHandler   func(error)
	Logger       log.Logger
	CloseTimeout time.Duration
	Middleware   []wamp.InvocationMiddleware
}

type Client struct {
	conf Config
}

func NewClient(conf Config) *Client {
	if conf.Serializer == nil {
		conf.Serializer = serializer.NewCBORSerializer()
	}
	return &Client{conf: conf}
}

func (c *Client) logDebug(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Debug(msg)
	}
}

func (c *Client) logInfo(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Info(msg)
	}
}

func (c *Client) logWarn(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Warn(msg)
	}
}

func (c *Client) dialer(uri string) (transport.Dialer, error) {
	if c.conf.Dialer != nil {
		return c.conf.Dialer, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "ws", "wss":
		return websocket.NewDialer(websocket.Config{
			Serializer: c.conf.Serializer,
			TLSConfig:  c.conf.TLSConfig,
		}), nil
	case "rs", "tcp", "rss", "tcps", "unix":
		return rawsocket.NewDialer(rawsocket.Config{
			Serializer: c.conf.Serializer,
			TLSConfig:  c.conf.TLSConfig,
			NoDelay:    true,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// Connect dials uri, joins realm and returns the running session.
func (c *Client) Connect(ctx context.Context, uri string, realm string) (*wamp.Session, error) {
	dialer, err := c.dialer(uri)
	if err != nil {
		return nil, err
	}

	c.logDebug("Connecting to " + uri)
	conn, err := dialer.Dial(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", uri, err)
	}

	joiner := &Joiner{
		Serializer:    c.conf.Serializer,
		Authenticator: c.conf.Authenticator,
		Logger:        c.conf.Logger,
	}
	details, err := joiner.Join(ctx, conn, realm)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return wamp.NewSession(conn, c.conf.Serializer, *details, wamp.Config{
		ErrHandler:   c.conf.ErrHandler,
		Logger:       c.conf.Logger,
		CloseTimeout: c.conf.CloseTimeout,
		Middleware:   c.conf.Middleware,
	}), nil
}

// Connect joins realm at uri with conf.
func Connect(ctx context.Context, uri string, realm string, conf Config) (*wamp.Session, error) {
	return NewClient(conf).Connect(ctx, uri, realm)
}

func ConnectAnonymous(ctx context.Context, uri string, realm string) (*wamp.Session, error) {
	return Connect(ctx, uri, realm, Config{})
}

func ConnectTicket(ctx context.Context, uri string, realm string, authID string, ticket string) (*wamp.Session, error) {
	return Connect(ctx, uri, realm, Config{
		Authenticator: auth.NewTicket(authID, ticket, nil),
	})
}

func ConnectCRA(ctx context.Context, uri string, realm string, authID string, secret string) (*wamp.Session, error) {
	return Connect(ctx, uri, realm, Config{
		Authenticator: auth.NewWAMPCRA(authID, secret, nil),
	})
}

func ConnectCryptosign(ctx context.Context, uri string, realm string, authID string, privateKeyHex string) (*wamp.Session, error) {
	a, err := auth.NewCryptosign(authID, privateKeyHex, nil)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, uri, realm, Config{Authenticator: a})
}
