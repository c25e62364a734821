package wamp

import "context"

// SessionDetails identifies a joined session.
type SessionDetails struct {
	ID       uint64
	Realm    string
	AuthID   string
	AuthRole string
	// Details holds the router's WELCOME details.
	Details map[string]any
}

// Result is the outcome of a call, or the value an invocation handler returns.
type Result struct {
	Args    []any
	Kwargs  map[string]any
	Details map[string]any
}

func NewResult(args []any, kwargs map[string]any) *Result {
	return &Result{Args: args, Kwargs: kwargs}
}

// Invocation is a call routed to a procedure this session registered.
type Invocation struct {
	RegistrationID uint64
	Args           []any
	Kwargs         map[string]any
	Details        map[string]any
}

// Event is a publication delivered to a subscription.
type Event struct {
	SubscriptionID uint64
	PublicationID  uint64
	Args           []any
	Kwargs         map[string]any
	Details        map[string]any
}

// InvocationHandler serves invocations of a registered procedure. Returning
// an *ApplicationError sends that error to the caller; any other error is
// reported as wamp.error.runtime_error.
type InvocationHandler func(ctx context.Context, inv *Invocation) (*Result, error)

// EventHandler receives events for a subscription.
type EventHandler func(event *Event)

// Registration is a procedure registered by a session.
type Registration struct {
	id      uint64
	session *Session
}

// ID returns the router assigned registration ID.
func (r *Registration) ID() uint64 {
	return r.id
}

// Unregister removes the registration from the router.
func (r *Registration) Unregister(ctx context.Context) error {
	return r.session.Unregister(ctx, r)
}

// Subscription is one local subscription to a topic. Several subscriptions of
// the same session may share a router subscription ID.
type Subscription struct {
	id      uint64
	session *Session
	handler EventHandler
}

// ID returns the router assigned subscription ID.
func (s *Subscription) ID() uint64 {
	return s.id
}

// Unsubscribe removes this subscription.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	return s.session.Unsubscribe(ctx, s)
}
