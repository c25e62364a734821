// Package routertest provides a small in-process WAMP router with a dealer,
// a broker and static authentication, for exercising clients in tests.
package routertest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbirk/wamp/pkg/auth"
	"github.com/kbirk/wamp/pkg/log"
	"github.com/kbirk/wamp/pkg/messages"
	"github.com/kbirk/wamp/pkg/serializer"
	"github.com/kbirk/wamp/pkg/transport"
	"github.com/kbirk/wamp/pkg/transport/rawsocket"
	"github.com/kbirk/wamp/pkg/transport/websocket"
)

const DefaultRealm = "realm1"

// URIs sent by the router.
const (
	ErrNoSuchRealm          = "wamp.error.no_such_realm"
	ErrAuthenticationFailed = "wamp.error.authentication_failed"
	ErrNoSuchProcedure      = "wamp.error.no_such_procedure"
	ErrProcedureExists      = "wamp.error.procedure_already_exists"
	ErrNoSuchSubscription   = "wamp.error.no_such_subscription"
	ErrInvalidURI           = "wamp.error.invalid_uri"
	ErrCanceled             = "wamp.error.canceled"
)

// CRASalt enables salted WAMP-CRA for an authid.
type CRASalt struct {
	Salt       string
	Iterations int
	KeyLen     int
}

type Config struct {
	Realm            string
	DisableAnonymous bool
	Tickets          map[string]string
	CRASecrets       map[string]string
	CRASalts         map[string]CRASalt
	// CryptosignKeys maps authids to hex encoded public keys.
	CryptosignKeys map[string]string
	// IgnoreGoodbye leaves client GOODBYEs unanswered.
	IgnoreGoodbye bool
	ErrHandler    func(error)
	Logger        log.Logger
}

type peer struct {
	id         uint64
	conn       transport.Connection
	serializer serializer.Serializer
	// kicked is set once the router sent GOODBYE first
	kicked atomic.Bool
}

type registration struct {
	id        uint64
	procedure string
	callee    *peer
}

type topic struct {
	id          uint64
	uri         string
	subscribers map[*peer]struct{}
}

type invocation struct {
	caller    *peer
	requestID uint64
	callee    *peer
}

type Router struct {
	conf Config
	ids  atomic.Uint64

	mu            *sync.Mutex
	peers         map[uint64]*peer
	procedures    map[string]*registration
	registrations map[uint64]*registration
	topics        map[string]*topic
	topicsByID    map[uint64]*topic
	invocations   map[uint64]*invocation
	listeners     []net.Listener
}

func NewRouter(conf Config) *Router {
	if conf.Realm == "" {
		conf.Realm = DefaultRealm
	}
	return &Router{
		conf:          conf,
		mu:            &sync.Mutex{},
		peers:         make(map[uint64]*peer),
		procedures:    make(map[string]*registration),
		registrations: make(map[uint64]*registration),
		topics:        make(map[string]*topic),
		topicsByID:    make(map[uint64]*topic),
		invocations:   make(map[uint64]*invocation),
	}
}

func (r *Router) handleError(err error) {
	if errors.Is(err, transport.ErrConnectionClosed) {
		r.logInfo("Client disconnected")
		return
	}
	r.logError("Encountered error: " + err.Error())
	if r.conf.ErrHandler != nil {
		r.conf.ErrHandler(err)
	}
}

func (r *Router) logDebug(msg string) {
	if r.conf.Logger != nil {
		r.conf.Logger.Debug(msg)
	}
}

func (r *Router) logInfo(msg string) {
	if r.conf.Logger != nil {
		r.conf.Logger.Info(msg)
	}
}

func (r *Router) logError(msg string) {
	if r.conf.Logger != nil {
		r.conf.Logger.Error(msg)
	}
}

func (r *Router) nextID() uint64 {
	return r.ids.Add(1)
}

// Pipe serves a new in-memory connection and returns the client end.
func (r *Router) Pipe(s serializer.Serializer) transport.Connection {
	client, server := transport.Pipe()
	go r.Serve(server, s)
	return client
}

// Dialer returns a dialer that connects through Pipe regardless of uri.
func (r *Router) Dialer(s serializer.Serializer) transport.Dialer {
	return pipeDialer{router: r, serializer: s}
}

// ServeHTTP accepts WebSocket connections.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, s, err := websocket.Accept(w, req)
	if err != nil {
		r.handleError(err)
		return
	}
	r.Serve(conn, s)
}

// ListenRawSocket accepts RawSocket connections on network and address until
// the router is closed.
func (r *Router) ListenRawSocket(network string, address string) (net.Listener, error) {
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.listeners = append(r.listeners, listener)
	r.mu.Unlock()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				c, s, err := rawsocket.AcceptHandshake(conn)
				if err != nil {
					conn.Close()
					r.handleError(err)
					return
				}
				r.Serve(c, s)
			}()
		}
	}()

	return listener, nil
}

// Close stops all listeners and drops every session without a goodbye.
func (r *Router) Close() {
	r.mu.Lock()
	listeners := r.listeners
	r.listeners = nil
	peers := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.Unlock()

	for _, l := range listeners {
		l.Close()
	}
	for _, p := range peers {
		p.conn.Close()
	}
}

// SessionCount returns the number of joined sessions.
func (r *Router) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Kick sends a GOODBYE with reason to a joined session.
func (r *Router) Kick(sessionID uint64, reason string) error {
	r.mu.Lock()
	p, ok := r.peers[sessionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no session %d", sessionID)
	}
	p.kicked.Store(true)
	return r.send(p, &messages.Goodbye{Reason: reason})
}

func (r *Router) send(p *peer, msg messages.Message) error {
	bs, err := p.serializer.Serialize(msg)
	if err != nil {
		return err
	}
	return p.conn.Send(bs)
}

func (r *Router) receive(conn transport.Connection, s serializer.Serializer) (messages.Message, error) {
	bs, err := conn.Receive()
	if err != nil {
		return nil, err
	}
	return s.Deserialize(bs)
}

// Serve runs the join handshake and the session loop on conn until it closes.
func (r *Router) Serve(conn transport.Connection, s serializer.Serializer) {
	defer conn.Close()

	p := &peer{id: r.nextID(), conn: conn, serializer: s}

	if err := r.join(p); err != nil {
		r.handleError(err)
		return
	}

	r.mu.Lock()
	r.peers[p.id] = p
	r.mu.Unlock()

	defer r.leave(p)

	for {
		msg, err := r.receive(conn, s)
		if err != nil {
			r.handleError(err)
			return
		}

		r.logDebug(fmt.Sprintf("Session %d sent %s", p.id, messages.TypeName(msg.Type())))

		if goodbye, ok := msg.(*messages.Goodbye); ok {
			r.logInfo(fmt.Sprintf("Session %d left: %s", p.id, goodbye.Reason))
			if p.kicked.Load() {
				return
			}
			if r.conf.IgnoreGoodbye {
				continue
			}
			r.send(p, &messages.Goodbye{Reason: messages.CloseGoodbyeOut})
			return
		}

		if err := r.handle(p, msg); err != nil {
			r.handleError(err)
			return
		}
	}
}

func (r *Router) abort(p *peer, reason string, message string) error {
	r.send(p, &messages.Abort{Reason: reason, Details: map[string]any{"message": message}})
	return fmt.Errorf("aborted join: %s: %s", reason, message)
}

func (r *Router) join(p *peer) error {
	msg, err := r.receive(p.conn, p.serializer)
	if err != nil {
		return err
	}
	hello, ok := msg.(*messages.Hello)
	if !ok {
		return r.abort(p, messages.ErrProtocolError, "expected HELLO")
	}
	if hello.Realm != r.conf.Realm {
		return r.abort(p, ErrNoSuchRealm, "no realm "+hello.Realm)
	}

	authID, _ := hello.Details["authid"].(string)
	authExtra, _ := messages.ToDict(hello.Details["authextra"])

	var methods []string
	if raw, ok := hello.Details["authmethods"].([]any); ok {
		for _, m := range raw {
			if s, ok := m.(string); ok {
				methods = append(methods, s)
			}
		}
	}
	if len(methods) == 0 {
		methods = []string{auth.MethodAnonymous}
	}

	for _, method := range methods {
		role, handled, err := r.authenticate(p, method, authID, authExtra)
		if err != nil {
			return err
		}
		if !handled {
			continue
		}
		if authID == "" {
			authID = fmt.Sprintf("anonymous-%d", p.id)
		}
		return r.send(p, &messages.Welcome{
			SessionID: p.id,
			Details: map[string]any{
				"authid":     authID,
				"authrole":   role,
				"authmethod": method,
				"roles": map[string]any{
					"broker": map[string]any{},
					"dealer": map[string]any{},
				},
			},
		})
	}

	return r.abort(p, ErrAuthenticationFailed, "no acceptable authmethod")
}

// authenticate challenges p with method if the router knows authID for it.
// handled is false when method is not configured for authID.
func (r *Router) authenticate(p *peer, method string, authID string, authExtra map[string]any) (role string, handled bool, err error) {
	switch method {
	case auth.MethodAnonymous:
		if r.conf.DisableAnonymous {
			return "", false, nil
		}
		return "anonymous", true, nil

	case auth.MethodTicket:
		ticket, ok := r.conf.Tickets[authID]
		if !ok {
			return "", false, nil
		}
		signature, err := r.challenge(p, method, map[string]any{})
		if err != nil {
			return "", true, err
		}
		if signature != ticket {
			return "", true, r.abort(p, ErrAuthenticationFailed, "invalid ticket")
		}
		return "user", true, nil

	case auth.MethodWAMPCRA:
		secret, ok := r.conf.CRASecrets[authID]
		if !ok {
			return "", false, nil
		}
		text, err := json.Marshal(map[string]any{
			"authid":       authID,
			"authrole":     "user",
			"authmethod":   method,
			"authprovider": "static",
			"nonce":        randomHex(16),
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
			"session":      p.id,
		})
		if err != nil {
			return "", true, err
		}
		extra := map[string]any{"challenge": string(text)}
		key := []byte(secret)
		if salt, ok := r.conf.CRASalts[authID]; ok {
			extra["salt"] = salt.Salt
			extra["iterations"] = salt.Iterations
			extra["keylen"] = salt.KeyLen
			key = auth.DeriveCRAKey(secret, salt.Salt, salt.Iterations, salt.KeyLen)
		}
		signature, err := r.challenge(p, method, extra)
		if err != nil {
			return "", true, err
		}
		if signature != auth.SignCRA(key, string(text)) {
			return "", true, r.abort(p, ErrAuthenticationFailed, "invalid signature")
		}
		return "user", true, nil

	case auth.MethodCryptosign:
		pubkey, ok := r.conf.CryptosignKeys[authID]
		if !ok {
			return "", false, nil
		}
		if offered, _ := authExtra["pubkey"].(string); offered != pubkey {
			return "", true, r.abort(p, ErrAuthenticationFailed, "unknown public key")
		}
		text := randomHex(32)
		signature, err := r.challenge(p, method, map[string]any{"challenge": text})
		if err != nil {
			return "", true, err
		}
		if !auth.VerifyCryptosign(pubkey, text, signature) {
			return "", true, r.abort(p, ErrAuthenticationFailed, "invalid signature")
		}
		return "user", true, nil
	}

	return "", false, nil
}

func (r *Router) challenge(p *peer, method string, extra map[string]any) (string, error) {
	if err := r.send(p, &messages.Challenge{AuthMethod: method, Extra: extra}); err != nil {
		return "", err
	}
	msg, err := r.receive(p.conn, p.serializer)
	if err != nil {
		return "", err
	}
	authenticate, ok := msg.(*messages.Authenticate)
	if !ok {
		return "", r.abort(p, messages.ErrProtocolError, "expected AUTHENTICATE")
	}
	return authenticate.Signature, nil
}

func randomHex(n int) string {
	bs := make([]byte, n)
	if _, err := rand.Read(bs); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bs)
}

type pipeDialer struct {
	router     *Router
	serializer serializer.Serializer
}

func (d pipeDialer) Dial(_ context.Context, _ string) (transport.Connection, error) {
	return d.router.Pipe(d.serializer), nil
}
