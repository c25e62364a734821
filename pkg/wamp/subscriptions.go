package wamp

import "sync"

// subscriptionMux binds local subscriptions to router subscription IDs. Any
// number of local subscriptions may share one router subscription.
type subscriptionMux struct {
	mu   sync.RWMutex
	subs map[uint64]map[*Subscription]struct{}
	// leaving holds last subscriptions waiting for UNSUBSCRIBED
	leaving map[*Subscription]struct{}
}

func newSubscriptionMux() *subscriptionMux {
	return &subscriptionMux{
		subs:    make(map[uint64]map[*Subscription]struct{}),
		leaving: make(map[*Subscription]struct{}),
	}
}

func (m *subscriptionMux) bind(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.subs[sub.id]
	if !ok {
		set = make(map[*Subscription]struct{})
		m.subs[sub.id] = set
	}
	set[sub] = struct{}{}
}

// detach removes sub if other subscriptions still share its router ID and
// reports last=false. The last subscription reports last=true and stays bound
// to its router ID, without receiving events, until unbind or restore. ok is
// false if sub is not bound or already leaving.
func (m *subscriptionMux) detach(sub *Subscription) (last bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, found := m.subs[sub.id]
	if !found {
		return false, false
	}
	if _, found := set[sub]; !found {
		return false, false
	}
	if _, found := m.leaving[sub]; found {
		return false, false
	}
	if len(set) == 1 {
		m.leaving[sub] = struct{}{}
		return true, true
	}
	delete(set, sub)
	return false, true
}

// unbind removes sub and drops its router ID once no subscriptions remain.
func (m *subscriptionMux) unbind(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.leaving, sub)
	set, ok := m.subs[sub.id]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(m.subs, sub.id)
	}
}

// restore reactivates a leaving subscription the router refused to drop.
func (m *subscriptionMux) restore(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leaving, sub)
}

// handlers returns a snapshot of the handlers bound to id, excluding leaving
// subscriptions.
func (m *subscriptionMux) handlers(id uint64) []EventHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.subs[id]
	handlers := make([]EventHandler, 0, len(set))
	for sub := range set {
		if _, leaving := m.leaving[sub]; leaving {
			continue
		}
		handlers = append(handlers, sub.handler)
	}
	return handlers
}

func (m *subscriptionMux) count(id uint64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[id])
}
