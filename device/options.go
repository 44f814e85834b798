package device

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/protocol"
)

// Config holds the firmware device configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger logr.Logger

	// T1Timeout is the inactivity timeout of every non-Idle state
	T1Timeout time.Duration

	// T2RetryTime is how long an initiator request waits for its response
	T2RetryTime time.Duration

	// Retries is how many times an unanswered initiator request is resent
	Retries int

	// MaxTransferSize caps the negotiated RequestFirmwareData size
	MaxTransferSize uint32

	// TID is the terminus ID reported before SetTID
	TID uint8

	// PollInterval is how often Service ticks the FD when idle on the socket
	PollInterval time.Duration

	// Metrics enables the Prometheus collectors
	Metrics bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Logger:          logr.Discard(),
		T1Timeout:       120 * time.Second,
		T2RetryTime:     5 * time.Second,
		Retries:         1,
		MaxTransferSize: fwupdate.MaxTransferSize,
		TID:             protocol.TIDUnassigned,
		PollInterval:    100 * time.Millisecond,
		Metrics:         true,
	}
}

// Option is a functional option for configuring the FD.
type Option func(*Config)

// WithLogger sets the logger.
//
// Example:
//
//	fd := device.New(ops, device.WithLogger(zapr.NewLogger(zapLog)))
func WithLogger(logger logr.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithT1Timeout sets the inactivity timeout after which an update in
// progress is abandoned. Default is 120 seconds.
//
// Example:
//
//	fd := device.New(ops, device.WithT1Timeout(30*time.Second))
func WithT1Timeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.T1Timeout = d
		}
	}
}

// WithT2RetryTime sets how long an FD request waits before it is resent.
// Default is 5 seconds.
func WithT2RetryTime(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.T2RetryTime = d
		}
	}
}

// WithRetries sets how many times an unanswered FD request is resent.
//
// Example:
//
//	fd := device.New(ops, device.WithRetries(3))
func WithRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.Retries = n
		}
	}
}

// WithMaxTransferSize caps the transfer size negotiated in RequestUpdate.
// Values outside 32..4096 are ignored.
func WithMaxTransferSize(n uint32) Option {
	return func(c *Config) {
		if n >= fwupdate.BaselineTransferSize && n <= fwupdate.MaxTransferSize {
			c.MaxTransferSize = n
		}
	}
}

// WithTID sets the terminus ID reported until the agent assigns one.
func WithTID(tid uint8) Option {
	return func(c *Config) {
		c.TID = tid
	}
}

// WithPollInterval sets how often Service ticks the FD.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}

// WithMetrics enables or disables the Prometheus collectors. Default is true.
func WithMetrics(enabled bool) Option {
	return func(c *Config) {
		c.Metrics = enabled
	}
}
