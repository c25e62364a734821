package wamp

import (
	"context"
	"sync"
)

type response[R any] struct {
	value R
	err   error
}

// request is a pending client request carrying kind specific payload P and
// resolving with R. The owning table hands it out at most once, so it is
// resolved at most once.
type request[P, R any] struct {
	payload P
	done    chan response[R]
}

func (r *request[P, R]) resolve(value R) {
	r.done <- response[R]{value: value}
}

func (r *request[P, R]) reject(err error) {
	r.done <- response[R]{err: err}
}

// requestTable correlates request IDs of one message kind with their
// pending requests.
type requestTable[P, R any] struct {
	mu      sync.Mutex
	entries map[uint64]*request[P, R]
	closed  bool
}

func newRequestTable[P, R any]() *requestTable[P, R] {
	return &requestTable[P, R]{
		entries: make(map[uint64]*request[P, R]),
	}
}

func (t *requestTable[P, R]) add(id uint64, payload P) (*request[P, R], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrSessionClosed
	}

	req := &request[P, R]{
		payload: payload,
		done:    make(chan response[R], 1),
	}
	t.entries[id] = req
	return req, nil
}

// take removes and returns the request for id. A miss means the request was
// already resolved, abandoned, or never existed.
func (t *requestTable[P, R]) take(id uint64) (*request[P, R], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return req, ok
}

// drain removes every pending request and refuses new ones.
func (t *requestTable[P, R]) drain() []*request[P, R] {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	reqs := make([]*request[P, R], 0, len(t.entries))
	for id, req := range t.entries {
		delete(t.entries, id)
		reqs = append(reqs, req)
	}
	return reqs
}

func (t *requestTable[P, R]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *requestTable[P, R]) rejectAll(err error) {
	for _, req := range t.drain() {
		req.reject(err)
	}
}

// await blocks until req resolves or ctx is done. An abandoned request is
// removed so a late response is ignored. ctx.Err() is only returned when the
// request was abandoned; a request already claimed by the dispatch loop or a
// disconnect reports its outcome.
func await[P, R any](ctx context.Context, table *requestTable[P, R], id uint64, req *request[P, R]) (R, error) {
	select {
	case resp := <-req.done:
		return resp.value, resp.err
	case <-ctx.Done():
		if _, ok := table.take(id); ok {
			var zero R
			return zero, ctx.Err()
		}
		resp := <-req.done
		return resp.value, resp.err
	}
}
