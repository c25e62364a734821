package auth

import "github.com/kbirk/wamp/pkg/messages"

// Anonymous joins without credentials.
type Anonymous struct {
	authID string
	extra  map[string]any
}

func NewAnonymous(authID string, extra map[string]any) *Anonymous {
	return &Anonymous{authID: authID, extra: copyExtra(extra)}
}

func (a *Anonymous) AuthMethod() string        { return MethodAnonymous }
func (a *Anonymous) AuthID() string            { return a.authID }
func (a *Anonymous) AuthExtra() map[string]any { return a.extra }

// Authenticate always fails: anonymous joins are never challenged.
func (a *Anonymous) Authenticate(challenge *messages.Challenge) (*messages.Authenticate, error) {
	if err := checkMethod(a, challenge); err != nil {
		return nil, err
	}
	return nil, ErrUnexpectedChallenge
}
