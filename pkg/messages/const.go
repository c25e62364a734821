package messages

const (
	MessageTypeHello        uint64 = 1
	MessageTypeWelcome      uint64 = 2
	MessageTypeAbort        uint64 = 3
	MessageTypeChallenge    uint64 = 4
	MessageTypeAuthenticate uint64 = 5
	MessageTypeGoodbye      uint64 = 6
	MessageTypeError        uint64 = 8
	MessageTypePublish      uint64 = 16
	MessageTypePublished    uint64 = 17
	MessageTypeSubscribe    uint64 = 32
	MessageTypeSubscribed   uint64 = 33
	MessageTypeUnsubscribe  uint64 = 34
	MessageTypeUnsubscribed uint64 = 35
	MessageTypeEvent        uint64 = 36
	MessageTypeCall         uint64 = 48
	MessageTypeResult       uint64 = 50
	MessageTypeRegister     uint64 = 64
	MessageTypeRegistered   uint64 = 65
	MessageTypeUnregister   uint64 = 66
	MessageTypeUnregistered uint64 = 67
	MessageTypeInvocation   uint64 = 68
	MessageTypeYield        uint64 = 70
)

// Well known URIs used by the client.
const (
	CloseRealm       = "wamp.close.close_realm"
	CloseGoodbyeOut  = "wamp.close.goodbye_and_out"
	ErrRuntimeError  = "wamp.error.runtime_error"
	ErrNoSuchReg     = "wamp.error.no_such_registration"
	ErrInvalidArg    = "wamp.error.invalid_argument"
	ErrProtocolError = "wamp.error.protocol_violation"
)

var typeNames = map[uint64]string{
	MessageTypeHello:        "HELLO",
	MessageTypeWelcome:      "WELCOME",
	MessageTypeAbort:        "ABORT",
	MessageTypeChallenge:    "CHALLENGE",
	MessageTypeAuthenticate: "AUTHENTICATE",
	MessageTypeGoodbye:      "GOODBYE",
	MessageTypeError:        "ERROR",
	MessageTypePublish:      "PUBLISH",
	MessageTypePublished:    "PUBLISHED",
	MessageTypeSubscribe:    "SUBSCRIBE",
	MessageTypeSubscribed:   "SUBSCRIBED",
	MessageTypeUnsubscribe:  "UNSUBSCRIBE",
	MessageTypeUnsubscribed: "UNSUBSCRIBED",
	MessageTypeEvent:        "EVENT",
	MessageTypeCall:         "CALL",
	MessageTypeResult:       "RESULT",
	MessageTypeRegister:     "REGISTER",
	MessageTypeRegistered:   "REGISTERED",
	MessageTypeUnregister:   "UNREGISTER",
	MessageTypeUnregistered: "UNREGISTERED",
	MessageTypeInvocation:   "INVOCATION",
	MessageTypeYield:        "YIELD",
}

// TypeName returns the protocol name of a message type, e.g. "CALL".
func TypeName(typ uint64) string {
	if name, ok := typeNames[typ]; ok {
		return name
	}
	return "UNKNOWN"
}
