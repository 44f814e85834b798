package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/moffa90/go-pldm/protocol"
)

// lengthPrefixSize is the size of the little-endian frame length.
const lengthPrefixSize = 2

// FrameTooLargeError is returned when a frame exceeds the maximum message size.
type FrameTooLargeError struct {
	Size int
	Max  int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds maximum %d", e.Size, e.Max)
}

// StreamConfig holds the stream socket configuration.
type StreamConfig struct {
	// MaxFrameSize bounds the size of one message
	MaxFrameSize int

	// WriteTimeout bounds a single Send; zero disables it
	WriteTimeout time.Duration
}

func defaultStreamConfig() StreamConfig {
	return StreamConfig{
		MaxFrameSize: protocol.MaxMessageSize,
		WriteTimeout: 5 * time.Second,
	}
}

// StreamOption is a functional option for NewStreamSocket.
type StreamOption func(*StreamConfig)

// WithMaxFrameSize sets the largest message accepted in either direction.
//
// Example:
//
//	sock := transport.NewStreamSocket(conn, transport.WithMaxFrameSize(4096+16))
func WithMaxFrameSize(n int) StreamOption {
	return func(c *StreamConfig) {
		if n > 0 && n <= 0xFFFF {
			c.MaxFrameSize = n
		}
	}
}

// WithWriteTimeout bounds each Send.
func WithWriteTimeout(d time.Duration) StreamOption {
	return func(c *StreamConfig) {
		if d >= 0 {
			c.WriteTimeout = d
		}
	}
}

// StreamSocket frames messages over a byte stream with a 2-byte
// little-endian length prefix.
type StreamSocket struct {
	conn   net.Conn
	config StreamConfig

	wmu sync.Mutex
	rmu sync.Mutex
}

// NewStreamSocket wraps conn. The socket owns conn and closes it on Close.
//
// Example:
//
//	conn, _ := net.Dial("tcp", "localhost:5000")
//	sock := transport.NewStreamSocket(conn)
//	defer sock.Close()
func NewStreamSocket(conn net.Conn, opts ...StreamOption) *StreamSocket {
	if conn == nil {
		panic("conn cannot be nil")
	}
	cfg := defaultStreamConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &StreamSocket{conn: conn, config: cfg}
}

// Send writes one length-prefixed frame.
func (s *StreamSocket) Send(ctx context.Context, msg []byte) error {
	if len(msg) > s.config.MaxFrameSize {
		return &FrameTooLargeError{Size: len(msg), Max: s.config.MaxFrameSize}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	frame := make([]byte, lengthPrefixSize+len(msg))
	binary.LittleEndian.PutUint16(frame, uint16(len(msg)))
	copy(frame[lengthPrefixSize:], msg)

	s.wmu.Lock()
	defer s.wmu.Unlock()

	deadline := time.Time{}
	if s.config.WriteTimeout > 0 {
		deadline = time.Now().Add(s.config.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if _, err := s.conn.Write(frame); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

// Receive reads one frame. Cancelling ctx interrupts a blocked read.
func (s *StreamSocket) Receive(ctx context.Context) ([]byte, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	if d, ok := ctx.Deadline(); ok {
		if err := s.conn.SetReadDeadline(d); err != nil {
			return nil, errors.Wrap(err, "set read deadline")
		}
	} else if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, errors.Wrap(err, "set read deadline")
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(s.conn, prefix[:]); err != nil {
		return nil, s.readError(ctx, err, "read frame length")
	}
	n := int(binary.LittleEndian.Uint16(prefix[:]))
	if n > s.config.MaxFrameSize {
		return nil, &FrameTooLargeError{Size: n, Max: s.config.MaxFrameSize}
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(s.conn, msg); err != nil {
		return nil, s.readError(ctx, err, "read frame body")
	}
	return msg, nil
}

func (s *StreamSocket) readError(ctx context.Context, err error, what string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return ErrClosed
	}
	return errors.Wrap(err, what)
}

// Close closes the underlying connection.
func (s *StreamSocket) Close() error {
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "close connection")
	}
	return nil
}

// Handler serves one accepted connection.
type Handler func(ctx context.Context, sock Socket) error

// Serve accepts connections on ln and runs handler for each in its own
// goroutine until ctx is done or a handler fails. ln is closed on return.
func Serve(ctx context.Context, ln net.Listener, handler Handler, opts ...StreamOption) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "accept")
			}
			sock := NewStreamSocket(conn, opts...)
			g.Go(func() error {
				defer sock.Close()
				if err := handler(ctx, sock); err != nil && !errors.Is(err, ErrClosed) {
					return err
				}
				return nil
			})
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
