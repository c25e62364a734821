package wamp

import (
	"fmt"
	"sync"
)

// eventQueue hands events from the dispatch loop to the delivery goroutine.
// push never blocks, so handlers may call back into the session while the
// loop keeps reading replies.
type eventQueue struct {
	mu      *sync.Mutex
	cond    *sync.Cond
	pending []*Event
	closed  bool
}

func newEventQueue() *eventQueue {
	mu := &sync.Mutex{}
	return &eventQueue{
		mu:   mu,
		cond: sync.NewCond(mu),
	}
}

func (q *eventQueue) push(event *Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.pending = append(q.pending, event)
	q.cond.Signal()
}

// next blocks until an event is queued. It returns false once the queue is
// closed and empty.
func (q *eventQueue) next() (*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.pending) == 0 {
		return nil, false
	}

	event := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return event, true
}

// close lets the delivery goroutine exit after the queued events.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// deliverEvents runs event handlers in arrival order. Handlers are looked up
// at delivery so a subscription removed in the meantime is skipped.
func (s *Session) deliverEvents() {
	for {
		event, ok := s.events.next()
		if !ok {
			return
		}

		handlers := s.subscriptions.handlers(event.SubscriptionID)
		if len(handlers) == 0 {
			s.logDebug(fmt.Sprintf("Ignoring EVENT for unknown subscription %d", event.SubscriptionID))
			continue
		}
		for _, handler := range handlers {
			s.runEventHandler(handler, event)
		}
	}
}

func (s *Session) runEventHandler(handler EventHandler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			s.handleError(fmt.Errorf("event handler for subscription %d panicked: %v", event.SubscriptionID, r))
		}
	}()
	handler(event)
}
