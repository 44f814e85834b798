package device

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moffa90/go-pldm/metrics"
	"github.com/moffa90/go-pldm/transport"
)

// Service runs an FD over a socket: it feeds every received message and a
// periodic tick into Step and sends whatever Step returns.
type Service struct {
	fd   *FD
	sock transport.Socket
}

// NewService binds fd to sock.
//
// Example:
//
//	svc := device.NewService(device.New(ops), sock)
//	err := svc.Run(ctx)
func NewService(fd *FD, sock transport.Socket) *Service {
	return &Service{fd: fd, sock: sock}
}

// FD returns the firmware device driven by s.
func (s *Service) FD() *FD {
	return s.fd
}

// Run serves until ctx is done or the socket closes. Both end the service
// without error.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	rx := make(chan []byte)

	g.Go(func() error {
		defer close(rx)
		for {
			msg, err := s.sock.Receive(ctx)
			if err != nil {
				return err
			}
			select {
			case rx <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(s.fd.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-rx:
				if !ok {
					return nil
				}
				if err := s.step(ctx, msg); err != nil {
					return err
				}
				// Let a request answered above start the FD's own traffic
				// without waiting for the ticker.
				if err := s.step(ctx, nil); err != nil {
					return err
				}
			case <-ticker.C:
				if err := s.step(ctx, nil); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, transport.ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// step runs one Step and sends its output. Only socket errors are fatal.
func (s *Service) step(ctx context.Context, msg []byte) error {
	out, err := s.fd.Step(ctx, time.Now(), msg)
	if err != nil {
		if errors.Is(err, ErrUnexpectedResponse) && s.fd.config.Metrics {
			metrics.FDDroppedResponsesTotal.Inc()
		}
		s.fd.logDebug("message not processed", "error", err.Error())
		return nil
	}
	if out == nil {
		return nil
	}
	return s.sock.Send(ctx, out)
}
