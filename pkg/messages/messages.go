package messages

// Message is one WAMP protocol message. The set of implementations is closed;
// every type below is a variant.
type Message interface {
	// Type returns the numeric message type code.
	Type() uint64
	// ToList returns the message in its wire array form.
	ToList() []any

	isMessage()
}

type Hello struct {
	Realm   string
	Details map[string]any
}

type Welcome struct {
	SessionID uint64
	Details   map[string]any
}

type Abort struct {
	Details map[string]any
	Reason  string
}

type Challenge struct {
	AuthMethod string
	Extra      map[string]any
}

type Authenticate struct {
	Signature string
	Extra     map[string]any
}

type Goodbye struct {
	Details map[string]any
	Reason  string
}

// Error reports the failure of a request. RequestType is the type code of
// the message that caused it.
type Error struct {
	RequestType uint64
	RequestID   uint64
	Details     map[string]any
	URI         string
	Args        []any
	Kwargs      map[string]any
}

type Publish struct {
	RequestID uint64
	Options   map[string]any
	Topic     string
	Args      []any
	Kwargs    map[string]any
}

type Published struct {
	RequestID     uint64
	PublicationID uint64
}

type Subscribe struct {
	RequestID uint64
	Options   map[string]any
	Topic     string
}

type Subscribed struct {
	RequestID      uint64
	SubscriptionID uint64
}

type Unsubscribe struct {
	RequestID      uint64
	SubscriptionID uint64
}

type Unsubscribed struct {
	RequestID uint64
}

type Event struct {
	SubscriptionID uint64
	PublicationID  uint64
	Details        map[string]any
	Args           []any
	Kwargs         map[string]any
}

type Call struct {
	RequestID uint64
	Options   map[string]any
	Procedure string
	Args      []any
	Kwargs    map[string]any
}

type Result struct {
	RequestID uint64
	Details   map[string]any
	Args      []any
	Kwargs    map[string]any
}

type Register struct {
	RequestID uint64
	Options   map[string]any
	Procedure string
}

type Registered struct {
	RequestID      uint64
	RegistrationID uint64
}

type Unregister struct {
	RequestID      uint64
	RegistrationID uint64
}

type Unregistered struct {
	RequestID uint64
}

type Invocation struct {
	RequestID      uint64
	RegistrationID uint64
	Details        map[string]any
	Args           []any
	Kwargs         map[string]any
}

type Yield struct {
	RequestID uint64
	Options   map[string]any
	Args      []any
	Kwargs    map[string]any
}

func (*Hello) Type() uint64        { return MessageTypeHello }
func (*Welcome) Type() uint64      { return MessageTypeWelcome }
func (*Abort) Type() uint64        { return MessageTypeAbort }
func (*Challenge) Type() uint64    { return MessageTypeChallenge }
func (*Authenticate) Type() uint64 { return MessageTypeAuthenticate }
func (*Goodbye) Type() uint64      { return MessageTypeGoodbye }
func (*Error) Type() uint64        { return MessageTypeError }
func (*Publish) Type() uint64      { return MessageTypePublish }
func (*Published) Type() uint64    { return MessageTypePublished }
func (*Subscribe) Type() uint64    { return MessageTypeSubscribe }
func (*Subscribed) Type() uint64   { return MessageTypeSubscribed }
func (*Unsubscribe) Type() uint64  { return MessageTypeUnsubscribe }
func (*Unsubscribed) Type() uint64 { return MessageTypeUnsubscribed }
func (*Event) Type() uint64        { return MessageTypeEvent }
func (*Call) Type() uint64         { return MessageTypeCall }
func (*Result) Type() uint64       { return MessageTypeResult }
func (*Register) Type() uint64     { return MessageTypeRegister }
func (*Registered) Type() uint64   { return MessageTypeRegistered }
func (*Unregister) Type() uint64   { return MessageTypeUnregister }
func (*Unregistered) Type() uint64 { return MessageTypeUnregistered }
func (*Invocation) Type() uint64   { return MessageTypeInvocation }
func (*Yield) Type() uint64        { return MessageTypeYield }

func (*Hello) isMessage()        {}
func (*Welcome) isMessage()      {}
func (*Abort) isMessage()        {}
func (*Challenge) isMessage()    {}
func (*Authenticate) isMessage() {}
func (*Goodbye) isMessage()      {}
func (*Error) isMessage()        {}
func (*Publish) isMessage()      {}
func (*Published) isMessage()    {}
func (*Subscribe) isMessage()    {}
func (*Subscribed) isMessage()   {}
func (*Unsubscribe) isMessage()  {}
func (*Unsubscribed) isMessage() {}
func (*Event) isMessage()        {}
func (*Call) isMessage()         {}
func (*Result) isMessage()       {}
func (*Register) isMessage()     {}
func (*Registered) isMessage()   {}
func (*Unregister) isMessage()   {}
func (*Unregistered) isMessage() {}
func (*Invocation) isMessage()   {}
func (*Yield) isMessage()        {}

func (m *Hello) ToList() []any {
	return []any{MessageTypeHello, m.Realm, dict(m.Details)}
}

func (m *Welcome) ToList() []any {
	return []any{MessageTypeWelcome, m.SessionID, dict(m.Details)}
}

func (m *Abort) ToList() []any {
	return []any{MessageTypeAbort, dict(m.Details), m.Reason}
}

func (m *Challenge) ToList() []any {
	return []any{MessageTypeChallenge, m.AuthMethod, dict(m.Extra)}
}

func (m *Authenticate) ToList() []any {
	return []any{MessageTypeAuthenticate, m.Signature, dict(m.Extra)}
}

func (m *Goodbye) ToList() []any {
	return []any{MessageTypeGoodbye, dict(m.Details), m.Reason}
}

func (m *Error) ToList() []any {
	list := []any{MessageTypeError, m.RequestType, m.RequestID, dict(m.Details), m.URI}
	return appendPayload(list, m.Args, m.Kwargs)
}

func (m *Publish) ToList() []any {
	list := []any{MessageTypePublish, m.RequestID, dict(m.Options), m.Topic}
	return appendPayload(list, m.Args, m.Kwargs)
}

func (m *Published) ToList() []any {
	return []any{MessageTypePublished, m.RequestID, m.PublicationID}
}

func (m *Subscribe) ToList() []any {
	return []any{MessageTypeSubscribe, m.RequestID, dict(m.Options), m.Topic}
}

func (m *Subscribed) ToList() []any {
	return []any{MessageTypeSubscribed, m.RequestID, m.SubscriptionID}
}

func (m *Unsubscribe) ToList() []any {
	return []any{MessageTypeUnsubscribe, m.RequestID, m.SubscriptionID}
}

func (m *Unsubscribed) ToList() []any {
	return []any{MessageTypeUnsubscribed, m.RequestID}
}

func (m *Event) ToList() []any {
	list := []any{MessageTypeEvent, m.SubscriptionID, m.PublicationID, dict(m.Details)}
	return appendPayload(list, m.Args, m.Kwargs)
}

func (m *Call) ToList() []any {
	list := []any{MessageTypeCall, m.RequestID, dict(m.Options), m.Procedure}
	return appendPayload(list, m.Args, m.Kwargs)
}

func (m *Result) ToList() []any {
	list := []any{MessageTypeResult, m.RequestID, dict(m.Details)}
	return appendPayload(list, m.Args, m.Kwargs)
}

func (m *Register) ToList() []any {
	return []any{MessageTypeRegister, m.RequestID, dict(m.Options), m.Procedure}
}

func (m *Registered) ToList() []any {
	return []any{MessageTypeRegistered, m.RequestID, m.RegistrationID}
}

func (m *Unregister) ToList() []any {
	return []any{MessageTypeUnregister, m.RequestID, m.RegistrationID}
}

func (m *Unregistered) ToList() []any {
	return []any{MessageTypeUnregistered, m.RequestID}
}

func (m *Invocation) ToList() []any {
	list := []any{MessageTypeInvocation, m.RequestID, m.RegistrationID, dict(m.Details)}
	return appendPayload(list, m.Args, m.Kwargs)
}

func (m *Yield) ToList() []any {
	list := []any{MessageTypeYield, m.RequestID, dict(m.Options)}
	return appendPayload(list, m.Args, m.Kwargs)
}

// dict never returns nil so that empty dictionaries encode as {} rather than null.
func dict(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// appendPayload adds the optional positional and keyword arguments. Args are
// only omitted when kwargs are empty too.
func appendPayload(list []any, args []any, kwargs map[string]any) []any {
	if len(kwargs) > 0 {
		if args == nil {
			args = []any{}
		}
		return append(list, args, kwargs)
	}
	if len(args) > 0 {
		return append(list, args)
	}
	return list
}
