package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidMessage is wrapped by every error returned from Parse.
var ErrInvalidMessage = errors.New("invalid message")

// Parse converts a decoded wire array into a typed Message.
func Parse(raw []any) (Message, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidMessage)
	}
	typ, ok := toID(raw[0])
	if !ok {
		return nil, fmt.Errorf("%w: message type %v is not an integer", ErrInvalidMessage, raw[0])
	}

	f := &fields{raw: raw, name: TypeName(typ)}

	var msg Message
	switch typ {
	case MessageTypeHello:
		f.arity(3, 3)
		msg = &Hello{Realm: f.str(1), Details: f.dict(2)}
	case MessageTypeWelcome:
		f.arity(3, 3)
		msg = &Welcome{SessionID: f.id(1), Details: f.dict(2)}
	case MessageTypeAbort:
		f.arity(3, 3)
		msg = &Abort{Details: f.dict(1), Reason: f.str(2)}
	case MessageTypeChallenge:
		f.arity(3, 3)
		msg = &Challenge{AuthMethod: f.str(1), Extra: f.dict(2)}
	case MessageTypeAuthenticate:
		f.arity(3, 3)
		msg = &Authenticate{Signature: f.str(1), Extra: f.dict(2)}
	case MessageTypeGoodbye:
		f.arity(3, 3)
		msg = &Goodbye{Details: f.dict(1), Reason: f.str(2)}
	case MessageTypeError:
		f.arity(5, 7)
		msg = &Error{
			RequestType: f.id(1),
			RequestID:   f.id(2),
			Details:     f.dict(3),
			URI:         f.str(4),
			Args:        f.optList(5),
			Kwargs:      f.optDict(6),
		}
	case MessageTypePublish:
		f.arity(4, 6)
		msg = &Publish{
			RequestID: f.id(1),
			Options:   f.dict(2),
			Topic:     f.str(3),
			Args:      f.optList(4),
			Kwargs:    f.optDict(5),
		}
	case MessageTypePublished:
		f.arity(3, 3)
		msg = &Published{RequestID: f.id(1), PublicationID: f.id(2)}
	case MessageTypeSubscribe:
		f.arity(4, 4)
		msg = &Subscribe{RequestID: f.id(1), Options: f.dict(2), Topic: f.str(3)}
	case MessageTypeSubscribed:
		f.arity(3, 3)
		msg = &Subscribed{RequestID: f.id(1), SubscriptionID: f.id(2)}
	case MessageTypeUnsubscribe:
		f.arity(3, 3)
		msg = &Unsubscribe{RequestID: f.id(1), SubscriptionID: f.id(2)}
	case MessageTypeUnsubscribed:
		// routers implementing subscription revocation append a details dict
		f.arity(2, 3)
		msg = &Unsubscribed{RequestID: f.id(1)}
	case MessageTypeEvent:
		f.arity(4, 6)
		msg = &Event{
			SubscriptionID: f.id(1),
			PublicationID:  f.id(2),
			Details:        f.dict(3),
			Args:           f.optList(4),
			Kwargs:         f.optDict(5),
		}
	case MessageTypeCall:
		f.arity(4, 6)
		msg = &Call{
			RequestID: f.id(1),
			Options:   f.dict(2),
			Procedure: f.str(3),
			Args:      f.optList(4),
			Kwargs:    f.optDict(5),
		}
	case MessageTypeResult:
		f.arity(3, 5)
		msg = &Result{
			RequestID: f.id(1),
			Details:   f.dict(2),
			Args:      f.optList(3),
			Kwargs:    f.optDict(4),
		}
	case MessageTypeRegister:
		f.arity(4, 4)
		msg = &Register{RequestID: f.id(1), Options: f.dict(2), Procedure: f.str(3)}
	case MessageTypeRegistered:
		f.arity(3, 3)
		msg = &Registered{RequestID: f.id(1), RegistrationID: f.id(2)}
	case MessageTypeUnregister:
		f.arity(3, 3)
		msg = &Unregister{RequestID: f.id(1), RegistrationID: f.id(2)}
	case MessageTypeUnregistered:
		f.arity(2, 3)
		msg = &Unregistered{RequestID: f.id(1)}
	case MessageTypeInvocation:
		f.arity(4, 6)
		msg = &Invocation{
			RequestID:      f.id(1),
			RegistrationID: f.id(2),
			Details:        f.dict(3),
			Args:           f.optList(4),
			Kwargs:         f.optDict(5),
		}
	case MessageTypeYield:
		f.arity(3, 5)
		msg = &Yield{
			RequestID: f.id(1),
			Options:   f.dict(2),
			Args:      f.optList(3),
			Kwargs:    f.optDict(4),
		}
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrInvalidMessage, typ)
	}

	if f.err != nil {
		return nil, f.err
	}
	return msg, nil
}

// fields reads typed values out of a wire array, keeping the first error.
type fields struct {
	raw  []any
	name string
	err  error
}

func (f *fields) fail(format string, args ...any) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: %s: %s", ErrInvalidMessage, f.name, fmt.Sprintf(format, args...))
	}
}

func (f *fields) arity(min, max int) {
	if len(f.raw) < min || len(f.raw) > max {
		f.fail("expected %d to %d fields, got %d", min, max, len(f.raw))
	}
}

func (f *fields) at(i int) (any, bool) {
	if f.err != nil || i >= len(f.raw) {
		return nil, false
	}
	return f.raw[i], true
}

func (f *fields) id(i int) uint64 {
	v, ok := f.at(i)
	if !ok {
		return 0
	}
	id, ok := toID(v)
	if !ok {
		f.fail("field %d must be a non-negative integer, got %T", i, v)
	}
	return id
}

func (f *fields) str(i int) string {
	v, ok := f.at(i)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		f.fail("field %d must be a string, got %T", i, v)
	}
	return s
}

func (f *fields) dict(i int) map[string]any {
	v, ok := f.at(i)
	if !ok {
		return nil
	}
	m, ok := ToDict(v)
	if !ok {
		f.fail("field %d must be a dictionary, got %T", i, v)
	}
	return m
}

func (f *fields) optDict(i int) map[string]any {
	if i >= len(f.raw) {
		return nil
	}
	return f.dict(i)
}

func (f *fields) optList(i int) []any {
	v, ok := f.at(i)
	if !ok || v == nil {
		return nil
	}
	l, ok := v.([]any)
	if !ok {
		f.fail("field %d must be a list, got %T", i, v)
	}
	return l
}

// ToDict converts decoded maps to map[string]any. Codecs differ in how they
// represent maps with interface keys.
func ToDict(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	case nil:
		return map[string]any{}, true
	}
	return nil, false
}

// toID accepts every integer representation the supported codecs produce.
func toID(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int64:
		return signedID(n)
	case int32:
		return signedID(int64(n))
	case int16:
		return signedID(int64(n))
	case int8:
		return signedID(int64(n))
	case int:
		return signedID(int64(n))
	case float64:
		return floatID(n)
	case float32:
		return floatID(float64(n))
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return signedID(i)
	}
	return 0, false
}

func signedID(n int64) (uint64, bool) {
	if n < 0 {
		return 0, false
	}
	return uint64(n), true
}

func floatID(n float64) (uint64, bool) {
	if n < 0 || n != math.Trunc(n) || n > math.MaxUint64 {
		return 0, false
	}
	return uint64(n), true
}
