package wamp

import "sync"

// registrationTable maps router registration IDs to local handlers.
type registrationTable struct {
	mu       sync.RWMutex
	handlers map[uint64]InvocationHandler
}

func newRegistrationTable() *registrationTable {
	return &registrationTable{
		handlers: make(map[uint64]InvocationHandler),
	}
}

func (t *registrationTable) add(id uint64, handler InvocationHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[id] = handler
}

func (t *registrationTable) get(id uint64) (InvocationHandler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	handler, ok := t.handlers[id]
	return handler, ok
}

func (t *registrationTable) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, id)
}

func (t *registrationTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}
