package auth

import "github.com/kbirk/wamp/pkg/messages"

// Ticket answers a challenge with a static ticket.
type Ticket struct {
	authID string
	ticket string
	extra  map[string]any
}

func NewTicket(authID string, ticket string, extra map[string]any) *Ticket {
	return &Ticket{authID: authID, ticket: ticket, extra: copyExtra(extra)}
}

func (a *Ticket) AuthMethod() string        { return MethodTicket }
func (a *Ticket) AuthID() string            { return a.authID }
func (a *Ticket) AuthExtra() map[string]any { return a.extra }

func (a *Ticket) Authenticate(challenge *messages.Challenge) (*messages.Authenticate, error) {
	if err := checkMethod(a, challenge); err != nil {
		return nil, err
	}
	return &messages.Authenticate{Signature: a.ticket}, nil
}
