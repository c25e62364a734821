package routertest

import (
	"fmt"

	"github.com/kbirk/wamp/pkg/messages"
)

type outbound struct {
	to  *peer
	msg messages.Message
}

func (r *Router) handle(p *peer, msg messages.Message) error {
	var out []outbound

	r.mu.Lock()
	switch msg := msg.(type) {
	case *messages.Register:
		out = r.register(p, msg)
	case *messages.Unregister:
		out = r.unregister(p, msg)
	case *messages.Call:
		out = r.call(p, msg)
	case *messages.Yield:
		out = r.yield(p, msg)
	case *messages.Error:
		out = r.invocationError(p, msg)
	case *messages.Subscribe:
		out = r.subscribe(p, msg)
	case *messages.Unsubscribe:
		out = r.unsubscribe(p, msg)
	case *messages.Publish:
		out = r.publish(p, msg)
	default:
		r.mu.Unlock()
		return fmt.Errorf("unexpected %s from session %d", messages.TypeName(msg.Type()), p.id)
	}
	r.mu.Unlock()

	for _, o := range out {
		if err := r.send(o.to, o.msg); err != nil {
			if o.to == p {
				return err
			}
			// the other session's own loop notices the failure
			r.logDebug(fmt.Sprintf("Failed to deliver to session %d: %v", o.to.id, err))
		}
	}
	return nil
}

func errorReply(requestType uint64, requestID uint64, uri string) *messages.Error {
	return &messages.Error{RequestType: requestType, RequestID: requestID, URI: uri}
}

func (r *Router) register(p *peer, msg *messages.Register) []outbound {
	if msg.Procedure == "" {
		return []outbound{{p, errorReply(msg.Type(), msg.RequestID, ErrInvalidURI)}}
	}
	if _, ok := r.procedures[msg.Procedure]; ok {
		return []outbound{{p, errorReply(msg.Type(), msg.RequestID, ErrProcedureExists)}}
	}

	reg := &registration{id: r.nextID(), procedure: msg.Procedure, callee: p}
	r.procedures[reg.procedure] = reg
	r.registrations[reg.id] = reg

	return []outbound{{p, &messages.Registered{RequestID: msg.RequestID, RegistrationID: reg.id}}}
}

func (r *Router) unregister(p *peer, msg *messages.Unregister) []outbound {
	reg, ok := r.registrations[msg.RegistrationID]
	if !ok || reg.callee != p {
		return []outbound{{p, errorReply(msg.Type(), msg.RequestID, messages.ErrNoSuchReg)}}
	}

	delete(r.registrations, reg.id)
	delete(r.procedures, reg.procedure)

	return []outbound{{p, &messages.Unregistered{RequestID: msg.RequestID}}}
}

func (r *Router) call(p *peer, msg *messages.Call) []outbound {
	reg, ok := r.procedures[msg.Procedure]
	if !ok {
		return []outbound{{p, errorReply(msg.Type(), msg.RequestID, ErrNoSuchProcedure)}}
	}

	id := r.nextID()
	r.invocations[id] = &invocation{caller: p, requestID: msg.RequestID, callee: reg.callee}

	return []outbound{{reg.callee, &messages.Invocation{
		RequestID:      id,
		RegistrationID: reg.id,
		Details:        map[string]any{"procedure": reg.procedure},
		Args:           msg.Args,
		Kwargs:         msg.Kwargs,
	}}}
}

func (r *Router) yield(p *peer, msg *messages.Yield) []outbound {
	inv, ok := r.invocations[msg.RequestID]
	if !ok || inv.callee != p {
		return nil
	}
	delete(r.invocations, msg.RequestID)

	return []outbound{{inv.caller, &messages.Result{
		RequestID: inv.requestID,
		Args:      msg.Args,
		Kwargs:    msg.Kwargs,
	}}}
}

func (r *Router) invocationError(p *peer, msg *messages.Error) []outbound {
	if msg.RequestType != messages.MessageTypeInvocation {
		return nil
	}
	inv, ok := r.invocations[msg.RequestID]
	if !ok || inv.callee != p {
		return nil
	}
	delete(r.invocations, msg.RequestID)

	return []outbound{{inv.caller, &messages.Error{
		RequestType: messages.MessageTypeCall,
		RequestID:   inv.requestID,
		URI:         msg.URI,
		Args:        msg.Args,
		Kwargs:      msg.Kwargs,
	}}}
}

func (r *Router) subscribe(p *peer, msg *messages.Subscribe) []outbound {
	if msg.Topic == "" {
		return []outbound{{p, errorReply(msg.Type(), msg.RequestID, ErrInvalidURI)}}
	}

	t, ok := r.topics[msg.Topic]
	if !ok {
		t = &topic{id: r.nextID(), uri: msg.Topic, subscribers: make(map[*peer]struct{})}
		r.topics[t.uri] = t
		r.topicsByID[t.id] = t
	}
	t.subscribers[p] = struct{}{}

	return []outbound{{p, &messages.Subscribed{RequestID: msg.RequestID, SubscriptionID: t.id}}}
}

func (r *Router) unsubscribe(p *peer, msg *messages.Unsubscribe) []outbound {
	t, ok := r.topicsByID[msg.SubscriptionID]
	if !ok {
		return []outbound{{p, errorReply(msg.Type(), msg.RequestID, ErrNoSuchSubscription)}}
	}
	if _, ok := t.subscribers[p]; !ok {
		return []outbound{{p, errorReply(msg.Type(), msg.RequestID, ErrNoSuchSubscription)}}
	}

	r.dropSubscriber(t, p)

	return []outbound{{p, &messages.Unsubscribed{RequestID: msg.RequestID}}}
}

func (r *Router) dropSubscriber(t *topic, p *peer) {
	delete(t.subscribers, p)
	if len(t.subscribers) == 0 {
		delete(r.topics, t.uri)
		delete(r.topicsByID, t.id)
	}
}

func (r *Router) publish(p *peer, msg *messages.Publish) []outbound {
	acknowledge, _ := msg.Options["acknowledge"].(bool)

	if msg.Topic == "" {
		if acknowledge {
			return []outbound{{p, errorReply(msg.Type(), msg.RequestID, ErrInvalidURI)}}
		}
		return nil
	}

	excludeMe := true
	if v, ok := msg.Options["exclude_me"].(bool); ok {
		excludeMe = v
	}

	publicationID := r.nextID()

	var out []outbound
	if t, ok := r.topics[msg.Topic]; ok {
		for sub := range t.subscribers {
			if sub == p && excludeMe {
				continue
			}
			out = append(out, outbound{sub, &messages.Event{
				SubscriptionID: t.id,
				PublicationID:  publicationID,
				Details:        map[string]any{"topic": t.uri},
				Args:           msg.Args,
				Kwargs:         msg.Kwargs,
			}})
		}
	}

	if acknowledge {
		out = append(out, outbound{p, &messages.Published{RequestID: msg.RequestID, PublicationID: publicationID}})
	}
	return out
}

// leave removes everything p owned and fails calls it was serving.
func (r *Router) leave(p *peer) {
	var out []outbound

	r.mu.Lock()
	delete(r.peers, p.id)

	for id, reg := range r.registrations {
		if reg.callee == p {
			delete(r.registrations, id)
			delete(r.procedures, reg.procedure)
		}
	}

	for _, t := range r.topics {
		if _, ok := t.subscribers[p]; ok {
			r.dropSubscriber(t, p)
		}
	}

	for id, inv := range r.invocations {
		switch {
		case inv.callee == p:
			delete(r.invocations, id)
			out = append(out, outbound{inv.caller, errorReply(messages.MessageTypeCall, inv.requestID, ErrCanceled)})
		case inv.caller == p:
			delete(r.invocations, id)
		}
	}
	r.mu.Unlock()

	for _, o := range out {
		r.send(o.to, o.msg)
	}
}
