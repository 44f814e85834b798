package agent

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/moffa90/go-pldm/fwupdate"
)

// Config holds the update agent configuration.
type Config struct {
	// ProgressCallback is called as the update advances (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger logr.Logger

	// ResponseTimeout is how long a request waits for its response
	ResponseTimeout time.Duration

	// InactivityTimeout bounds the wait for the next FD request while the
	// FD transfers, verifies or applies a component
	InactivityTimeout time.Duration

	// Retries is how many times an unanswered request is resent
	Retries int

	// MaxTransferSize is offered to the FD in RequestUpdate
	MaxTransferSize uint32

	// QueueSize is the capacity of the inbound event queue
	QueueSize int

	// TID is assigned to the FD during discovery
	TID uint8

	// Discovery customizes the discovery steps
	Discovery DiscoveryActions

	// Update customizes device matching, component selection and data serving
	Update UpdateActions

	// Metrics enables the Prometheus collectors
	Metrics bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Logger:            logr.Discard(),
		ResponseTimeout:   5 * time.Second,
		InactivityTimeout: 120 * time.Second,
		Retries:           1,
		MaxTransferSize:   64,
		QueueSize:         64,
		TID:               1,
		Discovery:         DefaultDiscoveryActions{},
		Update:            DefaultUpdateActions{},
		Metrics:           true,
	}
}

// Option is a functional option for configuring the Agent.
type Option func(*Config)

// WithProgressCallback sets a callback function to track update progress.
//
// Example:
//
//	ua := agent.New(sock, pkg,
//	    agent.WithProgressCallback(func(p agent.Progress) {
//	        fmt.Printf("[%s] %.1f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets the logger.
//
// Example:
//
//	ua := agent.New(sock, pkg, agent.WithLogger(zapr.NewLogger(zapLog)))
func WithLogger(logger logr.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithResponseTimeout sets how long a request waits for its response before
// it is resent. Default is 5 seconds.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ResponseTimeout = d
		}
	}
}

// WithInactivityTimeout sets how long the agent waits for the FD to send its
// next request during a component update. Default is 120 seconds.
func WithInactivityTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InactivityTimeout = d
		}
	}
}

// WithRetries sets how many times an unanswered request is resent.
//
// Example:
//
//	ua := agent.New(sock, pkg, agent.WithRetries(3))
func WithRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.Retries = n
		}
	}
}

// WithMaxTransferSize sets the transfer size offered to the FD. Default is
// 64 bytes. Values outside 32..4096 are ignored.
func WithMaxTransferSize(n uint32) Option {
	return func(c *Config) {
		if n >= fwupdate.BaselineTransferSize && n <= fwupdate.MaxTransferSize {
			c.MaxTransferSize = n
		}
	}
}

// WithQueueSize sets the capacity of the inbound event queue. Sizes below 16
// are ignored.
func WithQueueSize(n int) Option {
	return func(c *Config) {
		if n >= 16 {
			c.QueueSize = n
		}
	}
}

// WithTID sets the terminus ID assigned to the FD. 0 and 0xFF are reserved
// and ignored.
func WithTID(tid uint8) Option {
	return func(c *Config) {
		if tid != 0x00 && tid != 0xFF {
			c.TID = tid
		}
	}
}

// WithDiscoveryActions replaces the discovery checks.
//
// Example:
//
//	ua := agent.New(sock, pkg, agent.WithDiscoveryActions(agent.SkipDiscovery{}))
func WithDiscoveryActions(a DiscoveryActions) Option {
	return func(c *Config) {
		if a != nil {
			c.Discovery = a
		}
	}
}

// WithUpdateActions replaces device matching, component selection or image
// serving.
func WithUpdateActions(a UpdateActions) Option {
	return func(c *Config) {
		if a != nil {
			c.Update = a
		}
	}
}

// WithMetrics enables or disables the Prometheus collectors. Default is true.
func WithMetrics(enabled bool) Option {
	return func(c *Config) {
		c.Metrics = enabled
	}
}
