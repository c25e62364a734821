package wamp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbirk/wamp/pkg/log"
	"github.com/kbirk/wamp/pkg/messages"
	"github.com/kbirk/wamp/pkg/serializer"
	"github.com/kbirk/wamp/pkg/transport"
	"golang.org/x/sync/errgroup"
)

const DefaultCloseTimeout = 10 * time.Second

type Config struct {
	// ErrHandler receives errors that have no caller to return to: protocol
	// violations, transport failures and panicking handlers.
	ErrHandler func(error)
	Logger     log.Logger
	// CloseTimeout bounds how long Close waits for the router's GOODBYE.
	CloseTimeout time.Duration
	Middleware   []InvocationMiddleware
}

type Session struct {
	conf       Config
	conn       transport.Connection
	serializer serializer.Serializer
	details    SessionDetails

	ids idGenerator

	calls        *requestTable[struct{}, *Result]
	registers    *requestTable[InvocationHandler, *Registration]
	unregisters  *requestTable[uint64, struct{}]
	publishes    *requestTable[struct{}, struct{}]
	subscribes   *requestTable[EventHandler, *Subscription]
	unsubscribes *requestTable[*Subscription, struct{}]

	registrations *registrationTable
	subscriptions *subscriptionMux
	events        *eventQueue

	middlewareMu *sync.RWMutex

	// ctx is cancelled on disconnect and passed to invocation handlers
	ctx    context.Context
	cancel context.CancelFunc

	connected    atomic.Bool
	closing      atomic.Bool
	disconnected atomic.Bool

	callbacksMu  *sync.Mutex
	callbacks    []func()
	callbacksRan bool

	// goodbye is closed once disconnect callbacks have completed
	goodbye chan struct{}
}

// NewSession starts a session on a connection that has completed the join
// handshake using s.
func NewSession(conn transport.Connection, s serializer.Serializer, details SessionDetails, conf Config) *Session {
	if conf.CloseTimeout <= 0 {
		conf.CloseTimeout = DefaultCloseTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	session := &Session{
		conf:          conf,
		conn:          conn,
		serializer:    s,
		details:       details,
		calls:         newRequestTable[struct{}, *Result](),
		registers:     newRequestTable[InvocationHandler, *Registration](),
		unregisters:   newRequestTable[uint64, struct{}](),
		publishes:     newRequestTable[struct{}, struct{}](),
		subscribes:    newRequestTable[EventHandler, *Subscription](),
		unsubscribes:  newRequestTable[*Subscription, struct{}](),
		registrations: newRegistrationTable(),
		subscriptions: newSubscriptionMux(),
		events:        newEventQueue(),
		middlewareMu:  &sync.RWMutex{},
		ctx:           ctx,
		cancel:        cancel,
		callbacksMu:   &sync.Mutex{},
		goodbye:       make(chan struct{}),
	}
	session.connected.Store(true)

	go session.dispatchLoop()
	go session.deliverEvents()

	return session
}

func (s *Session) ID() uint64 {
	return s.details.ID
}

func (s *Session) Realm() string {
	return s.details.Realm
}

func (s *Session) AuthID() string {
	return s.details.AuthID
}

func (s *Session) AuthRole() string {
	return s.details.AuthRole
}

func (s *Session) Details() SessionDetails {
	return s.details
}

// Connected reports whether the session is still joined.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Done returns a channel that is closed after the session disconnected and
// all disconnect callbacks returned.
func (s *Session) Done() <-chan struct{} {
	return s.goodbye
}

// Use appends a middleware to the invocation handler chain.
func (s *Session) Use(middleware InvocationMiddleware) {
	s.middlewareMu.Lock()
	defer s.middlewareMu.Unlock()
	s.conf.Middleware = append(s.conf.Middleware, middleware)
}

func (s *Session) middleware() []InvocationMiddleware {
	s.middlewareMu.RLock()
	defer s.middlewareMu.RUnlock()
	return append([]InvocationMiddleware(nil), s.conf.Middleware...)
}

func (s *Session) handleError(err error) {
	s.logError("Encountered error: " + err.Error())
	if s.conf.ErrHandler != nil {
		s.conf.ErrHandler(err)
	}
}

func (s *Session) logDebug(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Debug(msg)
	}
}

func (s *Session) logInfo(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Info(msg)
	}
}

func (s *Session) logWarn(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Warn(msg)
	}
}

func (s *Session) logError(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Error(msg)
	}
}

// send serializes and writes msg. A transport failure closes the connection,
// which the dispatch loop turns into a disconnect.
func (s *Session) send(msg messages.Message) error {
	name := messages.TypeName(msg.Type())

	bs, err := s.serializer.Serialize(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", name, err)
	}

	if err := s.conn.Send(bs); err != nil {
		s.logWarn(fmt.Sprintf("Failed to send %s: %v", name, err))
		s.conn.Close()
		return fmt.Errorf("failed to send %s: %w", name, err)
	}

	s.logDebug("Sent " + name)
	return nil
}

// Call calls a remote procedure and waits for its result.
func (s *Session) Call(ctx context.Context, procedure string, args []any, kwargs map[string]any, options map[string]any) (*Result, error) {
	if !s.Connected() {
		return nil, ErrSessionClosed
	}

	id := s.ids.next()
	req, err := s.calls.add(id, struct{}{})
	if err != nil {
		return nil, err
	}

	err = s.send(&messages.Call{
		RequestID: id,
		Options:   options,
		Procedure: procedure,
		Args:      args,
		Kwargs:    kwargs,
	})
	if err != nil {
		s.calls.take(id)
		return nil, err
	}

	return await(ctx, s.calls, id, req)
}

// Register registers handler for procedure.
func (s *Session) Register(ctx context.Context, procedure string, handler InvocationHandler, options map[string]any) (*Registration, error) {
	if !s.Connected() {
		return nil, ErrSessionClosed
	}

	id := s.ids.next()
	req, err := s.registers.add(id, handler)
	if err != nil {
		return nil, err
	}

	err = s.send(&messages.Register{
		RequestID: id,
		Options:   options,
		Procedure: procedure,
	})
	if err != nil {
		s.registers.take(id)
		return nil, err
	}

	return await(ctx, s.registers, id, req)
}

// Unregister removes a registration.
func (s *Session) Unregister(ctx context.Context, registration *Registration) error {
	if registration.session != s {
		return ErrForeignHandle
	}
	if !s.Connected() {
		return ErrSessionClosed
	}

	id := s.ids.next()
	req, err := s.unregisters.add(id, registration.id)
	if err != nil {
		return err
	}

	err = s.send(&messages.Unregister{
		RequestID:      id,
		RegistrationID: registration.id,
	})
	if err != nil {
		s.unregisters.take(id)
		return err
	}

	_, err = await(ctx, s.unregisters, id, req)
	var appErr *ApplicationError
	if err != nil && !errors.As(err, &appErr) {
		// abandoned or disconnected: the router drops the registration
		// without this session hearing about it
		s.registrations.remove(registration.id)
	}
	return err
}

// Publish publishes an event to topic. Unless options["acknowledge"] is true
// it returns as soon as the message is sent.
func (s *Session) Publish(ctx context.Context, topic string, args []any, kwargs map[string]any, options map[string]any) error {
	if !s.Connected() {
		return ErrSessionClosed
	}

	id := s.ids.next()
	msg := &messages.Publish{
		RequestID: id,
		Options:   options,
		Topic:     topic,
		Args:      args,
		Kwargs:    kwargs,
	}

	if acknowledge, _ := options["acknowledge"].(bool); !acknowledge {
		return s.send(msg)
	}

	req, err := s.publishes.add(id, struct{}{})
	if err != nil {
		return err
	}

	if err := s.send(msg); err != nil {
		s.publishes.take(id)
		return err
	}

	_, err = await(ctx, s.publishes, id, req)
	return err
}

// Subscribe subscribes handler to topic. Subscribing the same topic more than
// once yields independent subscriptions sharing one router subscription.
func (s *Session) Subscribe(ctx context.Context, topic string, handler EventHandler, options map[string]any) (*Subscription, error) {
	if !s.Connected() {
		return nil, ErrSessionClosed
	}

	id := s.ids.next()
	req, err := s.subscribes.add(id, handler)
	if err != nil {
		return nil, err
	}

	err = s.send(&messages.Subscribe{
		RequestID: id,
		Options:   options,
		Topic:     topic,
	})
	if err != nil {
		s.subscribes.take(id)
		return nil, err
	}

	return await(ctx, s.subscribes, id, req)
}

// Unsubscribe removes a subscription. The router is only contacted when no
// other subscription of this session shares the router subscription.
func (s *Session) Unsubscribe(ctx context.Context, subscription *Subscription) error {
	if subscription.session != s {
		return ErrForeignHandle
	}
	if !s.Connected() {
		return ErrSessionClosed
	}

	last, ok := s.subscriptions.detach(subscription)
	if !ok {
		return ErrUnknownSubscription
	}
	if !last {
		return nil
	}

	id := s.ids.next()
	req, err := s.unsubscribes.add(id, subscription)
	if err != nil {
		s.subscriptions.restore(subscription)
		return err
	}

	err = s.send(&messages.Unsubscribe{
		RequestID:      id,
		SubscriptionID: subscription.id,
	})
	if err != nil {
		s.unsubscribes.take(id)
		s.subscriptions.restore(subscription)
		return err
	}

	_, err = await(ctx, s.unsubscribes, id, req)
	if err != nil {
		var appErr *ApplicationError
		if errors.As(err, &appErr) {
			s.subscriptions.restore(subscription)
		} else {
			// abandoned or disconnected: a late UNSUBSCRIBED is ignored as stale
			s.subscriptions.unbind(subscription)
		}
	}
	return err
}

// OnDisconnect registers a callback run once when the session disconnects,
// whether by Close, a router GOODBYE or a transport failure. Callbacks run
// concurrently. A callback registered after the disconnect runs immediately.
func (s *Session) OnDisconnect(callback func()) {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()

	if s.callbacksRan {
		go s.runDisconnectCallback(callback)
		return
	}
	s.callbacks = append(s.callbacks, callback)
}

// Close leaves the realm: it sends GOODBYE, waits for the router's reply or
// CloseTimeout, and closes the connection in either case. It returns once the
// disconnect callbacks have completed, also when the session was already
// disconnecting. Close is idempotent. Calling it from an OnDisconnect
// callback deadlocks; the session is already closed there.
func (s *Session) Close() error {
	if s.closing.CompareAndSwap(false, true) && s.Connected() {
		s.logDebug("Sending goodbye")

		err := s.send(&messages.Goodbye{Reason: messages.CloseRealm})
		if err != nil {
			s.logWarn("Failed to send goodbye: " + err.Error())
		} else {
			timer := time.NewTimer(s.conf.CloseTimeout)
			defer timer.Stop()

			select {
			case <-s.goodbye:
				s.logDebug("Goodbye acknowledged")
			case <-timer.C:
				s.logWarn("Timed out waiting for goodbye")
			}
		}
	}

	s.conn.Close()
	s.markDisconnected()
	<-s.goodbye
	return nil
}

// markDisconnected runs once per session. It fails pending requests, runs
// the disconnect callbacks and releases Close.
func (s *Session) markDisconnected() {
	if !s.disconnected.CompareAndSwap(false, true) {
		return
	}

	s.connected.Store(false)
	s.cancel()
	s.events.close()
	s.logInfo("Session disconnected")

	s.calls.rejectAll(ErrSessionClosed)
	s.registers.rejectAll(ErrSessionClosed)
	s.unregisters.rejectAll(ErrSessionClosed)
	s.publishes.rejectAll(ErrSessionClosed)
	s.subscribes.rejectAll(ErrSessionClosed)
	s.unsubscribes.rejectAll(ErrSessionClosed)

	s.callbacksMu.Lock()
	callbacks := s.callbacks
	s.callbacks = nil
	s.callbacksRan = true
	s.callbacksMu.Unlock()

	var g errgroup.Group
	for _, callback := range callbacks {
		callback := callback
		g.Go(func() error {
			return s.runDisconnectCallback(callback)
		})
	}
	// each failure was already reported by runDisconnectCallback
	_ = g.Wait()

	close(s.goodbye)
}

func (s *Session) runDisconnectCallback(callback func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("disconnect callback panicked: %v", r)
			s.handleError(err)
		}
	}()
	callback()
	return nil
}
