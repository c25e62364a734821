package wamp

import (
	"context"
	"errors"
	"fmt"

	"github.com/kbirk/wamp/pkg/messages"
	"github.com/kbirk/wamp/pkg/transport"
)

func (s *Session) dispatchLoop() {
	for {
		bs, err := s.conn.Receive()
		if err != nil {
			if !s.Connected() || s.closing.Load() || errors.Is(err, transport.ErrConnectionClosed) {
				s.logDebug("Connection closed: " + err.Error())
			} else {
				s.handleError(fmt.Errorf("failed to receive message: %w", err))
			}
			s.markDisconnected()
			return
		}

		msg, err := s.serializer.Deserialize(bs)
		if err != nil {
			s.fail(protocolErrorf("failed to decode message: %v", err))
			return
		}

		if err := s.dispatch(msg); err != nil {
			s.fail(err)
			return
		}

		if _, ok := msg.(*messages.Goodbye); ok {
			return
		}
	}
}

// fail tears the session down after a fatal inbound message.
func (s *Session) fail(err error) {
	s.handleError(err)
	s.conn.Close()
	s.markDisconnected()
}

func (s *Session) dispatch(msg messages.Message) error {
	s.logDebug("Received " + messages.TypeName(msg.Type()))

	switch msg := msg.(type) {
	case *messages.Result:
		if req, ok := s.calls.take(msg.RequestID); ok {
			req.resolve(&Result{
				Args:    msg.Args,
				Kwargs:  msg.Kwargs,
				Details: msg.Details,
			})
		} else {
			s.logStale(msg.Type(), msg.RequestID)
		}

	case *messages.Registered:
		if req, ok := s.registers.take(msg.RequestID); ok {
			s.registrations.add(msg.RegistrationID, req.payload)
			req.resolve(&Registration{
				id:      msg.RegistrationID,
				session: s,
			})
		} else {
			s.logStale(msg.Type(), msg.RequestID)
			s.release(&messages.Unregister{
				RequestID:      s.ids.next(),
				RegistrationID: msg.RegistrationID,
			})
		}

	case *messages.Unregistered:
		if req, ok := s.unregisters.take(msg.RequestID); ok {
			s.registrations.remove(req.payload)
			req.resolve(struct{}{})
		} else {
			s.logStale(msg.Type(), msg.RequestID)
		}

	case *messages.Invocation:
		return s.handleInvocation(msg)

	case *messages.Published:
		if req, ok := s.publishes.take(msg.RequestID); ok {
			req.resolve(struct{}{})
		} else {
			s.logStale(msg.Type(), msg.RequestID)
		}

	case *messages.Subscribed:
		if req, ok := s.subscribes.take(msg.RequestID); ok {
			sub := &Subscription{
				id:      msg.SubscriptionID,
				session: s,
				handler: req.payload,
			}
			s.subscriptions.bind(sub)
			req.resolve(sub)
		} else {
			s.logStale(msg.Type(), msg.RequestID)
			// other subscriptions of this session may share the router subscription
			if s.subscriptions.count(msg.SubscriptionID) == 0 {
				s.release(&messages.Unsubscribe{
					RequestID:      s.ids.next(),
					SubscriptionID: msg.SubscriptionID,
				})
			}
		}

	case *messages.Unsubscribed:
		if req, ok := s.unsubscribes.take(msg.RequestID); ok {
			s.subscriptions.unbind(req.payload)
			req.resolve(struct{}{})
		} else {
			s.logStale(msg.Type(), msg.RequestID)
		}

	case *messages.Event:
		s.handleEvent(msg)

	case *messages.Error:
		return s.handleErrorMessage(msg)

	case *messages.Goodbye:
		s.handleGoodbye(msg)

	default:
		return protocolErrorf("unexpected %s message", messages.TypeName(msg.Type()))
	}

	return nil
}

func (s *Session) logStale(typ uint64, requestID uint64) {
	s.logDebug(fmt.Sprintf("Ignoring %s for unknown request %d", messages.TypeName(typ), requestID))
}

func (s *Session) handleErrorMessage(msg *messages.Error) error {
	appErr := NewApplicationError(msg.URI, msg.Args, msg.Kwargs)

	var found bool
	switch msg.RequestType {
	case messages.MessageTypeCall:
		var req *request[struct{}, *Result]
		if req, found = s.calls.take(msg.RequestID); found {
			req.reject(appErr)
		}
	case messages.MessageTypeRegister:
		var req *request[InvocationHandler, *Registration]
		if req, found = s.registers.take(msg.RequestID); found {
			req.reject(appErr)
		}
	case messages.MessageTypeUnregister:
		var req *request[uint64, struct{}]
		if req, found = s.unregisters.take(msg.RequestID); found {
			req.reject(appErr)
		}
	case messages.MessageTypePublish:
		var req *request[struct{}, struct{}]
		if req, found = s.publishes.take(msg.RequestID); found {
			req.reject(appErr)
		}
	case messages.MessageTypeSubscribe:
		var req *request[EventHandler, *Subscription]
		if req, found = s.subscribes.take(msg.RequestID); found {
			req.reject(appErr)
		}
	case messages.MessageTypeUnsubscribe:
		var req *request[*Subscription, struct{}]
		if req, found = s.unsubscribes.take(msg.RequestID); found {
			req.reject(appErr)
		}
	default:
		return protocolErrorf("ERROR for unsupported request type %d", msg.RequestType)
	}

	if !found {
		s.logStale(msg.Type(), msg.RequestID)
	}
	return nil
}

func (s *Session) handleEvent(msg *messages.Event) {
	s.events.push(&Event{
		SubscriptionID: msg.SubscriptionID,
		PublicationID:  msg.PublicationID,
		Args:           msg.Args,
		Kwargs:         msg.Kwargs,
		Details:        msg.Details,
	})
}

// release tells the router to drop a registration or subscription whose
// request was abandoned before the acknowledgement arrived.
func (s *Session) release(msg messages.Message) {
	s.logDebug("Releasing abandoned " + messages.TypeName(msg.Type()))
	if err := s.reply(msg); err != nil {
		s.logWarn(err.Error())
	}
}

func (s *Session) handleInvocation(msg *messages.Invocation) error {
	handler, ok := s.registrations.get(msg.RegistrationID)
	if !ok {
		s.logWarn(fmt.Sprintf("Received INVOCATION for unknown registration %d", msg.RegistrationID))
		return s.reply(&messages.Error{
			RequestType: messages.MessageTypeInvocation,
			RequestID:   msg.RequestID,
			URI:         messages.ErrNoSuchReg,
		})
	}

	inv := &Invocation{
		RegistrationID: msg.RegistrationID,
		Args:           msg.Args,
		Kwargs:         msg.Kwargs,
		Details:        msg.Details,
	}
	middleware := s.middleware()

	go func() {
		res, err := s.invoke(s.ctx, inv, middleware, handler)
		if err := s.reply(s.invocationReply(msg.RequestID, res, err)); err != nil {
			s.handleError(err)
		}
	}()

	return nil
}

func (s *Session) invoke(ctx context.Context, inv *Invocation, middleware []InvocationMiddleware, handler InvocationHandler) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("invocation handler panicked: %v", r)
		}
	}()
	return ApplyHandlerChain(ctx, inv, middleware, handler)
}

func (s *Session) invocationReply(requestID uint64, res *Result, err error) messages.Message {
	if err != nil {
		var appErr *ApplicationError
		if errors.As(err, &appErr) {
			return &messages.Error{
				RequestType: messages.MessageTypeInvocation,
				RequestID:   requestID,
				URI:         appErr.URI,
				Args:        appErr.Args,
				Kwargs:      appErr.Kwargs,
			}
		}
		s.logWarn(fmt.Sprintf("Invocation %d failed: %v", requestID, err))
		return &messages.Error{
			RequestType: messages.MessageTypeInvocation,
			RequestID:   requestID,
			URI:         messages.ErrRuntimeError,
			Args:        []any{err.Error()},
		}
	}

	yield := &messages.Yield{RequestID: requestID}
	if res != nil {
		yield.Args = res.Args
		yield.Kwargs = res.Kwargs
	}
	return yield
}

// reply sends a response to the router unless the session is already gone.
func (s *Session) reply(msg messages.Message) error {
	if !s.Connected() {
		s.logDebug("Dropping " + messages.TypeName(msg.Type()) + " for disconnected session")
		return nil
	}
	return s.send(msg)
}

func (s *Session) handleGoodbye(msg *messages.Goodbye) {
	if s.closing.Load() {
		s.logDebug("Received goodbye reply: " + msg.Reason)
	} else {
		s.logInfo("Router closed session: " + msg.Reason)
		if err := s.send(&messages.Goodbye{Reason: messages.CloseGoodbyeOut}); err != nil {
			s.logWarn("Failed to reply to goodbye: " + err.Error())
		}
	}
	s.markDisconnected()
	s.conn.Close()
}
