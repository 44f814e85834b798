package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed socket.
var ErrClosed = errors.New("socket closed")

// Socket carries whole PLDM messages between two endpoints. Implementations
// must be safe for one concurrent sender and one concurrent receiver.
type Socket interface {
	// Send transmits one message. The socket does not retain msg.
	Send(ctx context.Context, msg []byte) error

	// Receive blocks until a message arrives, ctx is done or the socket closes.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the socket and unblocks pending calls.
	Close() error
}

// pipeEnd is one side of an in-memory pipe.
type pipeEnd struct {
	rx <-chan []byte
	tx chan<- []byte

	done      chan struct{}
	closeOnce *sync.Once
}

// Pipe returns two connected in-memory sockets. Messages sent on one are
// received on the other in order. Closing either end closes both.
func Pipe() (Socket, Socket) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &pipeEnd{rx: ba, tx: ab, done: done, closeOnce: once}
	b := &pipeEnd{rx: ab, tx: ba, done: done, closeOnce: once}
	return a, b
}

func (p *pipeEnd) Send(ctx context.Context, msg []byte) error {
	buf := append([]byte(nil), msg...)
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.tx <- buf:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.rx:
		return msg, nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
