package auth

import (
	"errors"
	"fmt"

	"github.com/kbirk/wamp/pkg/messages"
)

const (
	MethodAnonymous  = "anonymous"
	MethodTicket     = "ticket"
	MethodWAMPCRA    = "wampcra"
	MethodCryptosign = "cryptosign"
)

var (
	// ErrUnexpectedChallenge is returned when the router challenges a method
	// the authenticator does not implement.
	ErrUnexpectedChallenge = errors.New("unexpected challenge")
	// ErrInvalidChallenge is returned when a challenge is missing fields or
	// carries malformed values.
	ErrInvalidChallenge = errors.New("invalid challenge")
)

// Authenticator supplies the HELLO authentication fields and answers the
// router's CHALLENGE.
type Authenticator interface {
	AuthMethod() string
	AuthID() string
	AuthExtra() map[string]any
	Authenticate(challenge *messages.Challenge) (*messages.Authenticate, error)
}

func checkMethod(a Authenticator, challenge *messages.Challenge) error {
	if challenge.AuthMethod != a.AuthMethod() {
		return fmt.Errorf("%w: %s authenticator received %q challenge", ErrUnexpectedChallenge, a.AuthMethod(), challenge.AuthMethod)
	}
	return nil
}

func stringExtra(extra map[string]any, key string) (string, error) {
	raw, ok := extra[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidChallenge, key)
	}
	v, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is %T, not a string", ErrInvalidChallenge, key, raw)
	}
	return v, nil
}

func intExtra(extra map[string]any, key string, def int) (int, error) {
	raw, ok := extra[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidChallenge, key)
}

func copyExtra(extra map[string]any) map[string]any {
	if extra == nil {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
