package transport

import (
	"sync"
)

// Pipe returns two in-memory connections wired to each other. Messages sent on
// one are received on the other in order.
func Pipe() (Connection, Connection) {
	done := make(chan struct{})
	once := &sync.Once{}
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a := &pipeConnection{in: ba, out: ab, done: done, once: once}
	b := &pipeConnection{in: ab, out: ba, done: done, once: once}
	return a, b
}

type pipeConnection struct {
	in   chan []byte
	out  chan []byte
	done chan struct{}
	once *sync.Once
}

func (c *pipeConnection) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	bs := make([]byte, len(data))
	copy(bs, data)
	select {
	case c.out <- bs:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	}
}

func (c *pipeConnection) Receive() ([]byte, error) {
	// drain anything already delivered before reporting closure
	select {
	case bs := <-c.in:
		return bs, nil
	default:
	}
	select {
	case bs := <-c.in:
		return bs, nil
	case <-c.done:
		return nil, ErrConnectionClosed
	}
}

func (c *pipeConnection) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}
