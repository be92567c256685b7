package rabbitair

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ClientOption configures a Client.
type ClientOption func(*clientConfig) error

// clientConfig holds the configuration for a Client.
type clientConfig struct {
	port           int
	requestTimeout time.Duration
	maxRetries     int
	logger         *slog.Logger
	failFast       bool
	random         io.Reader
	protocol       Protocol
	network        string

	timeoutSet bool
	retriesSet bool
}

// TCP defaults: the device answers on the stream or not at all.
const (
	defaultTCPTimeout = 5 * time.Second
	defaultTCPRetries = 0
)

// defaultConfig returns the default client configuration.
func defaultConfig() *clientConfig {
	return &clientConfig{
		port:           9009,
		requestTimeout: 2 * time.Second,
		maxRetries:     2,
		logger:         nil,
		protocol:       ProtocolFirmware,
		network:        NetworkUDP,
	}
}

// WithPort sets the UDP port of the device.
// Default is 9009.
func WithPort(port int) ClientOption {
	return func(c *clientConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		c.port = port
		return nil
	}
}

// WithRequestTimeout sets how long each attempt waits for a reply.
// Default is 2 seconds, or 5 seconds with WithTCP.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		c.requestTimeout = d
		c.timeoutSet = true
		return nil
	}
}

// WithMaxRetries sets how many times a request is resent after a timeout.
// Default is 2, for three attempts in total, or 0 with WithTCP.
func WithMaxRetries(n int) ClientOption {
	return func(c *clientConfig) error {
		if n < 0 {
			return errors.New("max retries must not be negative")
		}
		c.maxRetries = n
		c.retriesSet = true
		return nil
	}
}

// WithLogger sets a structured logger for debug and error logging.
// By default, no logging is performed.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) error {
		c.logger = logger
		return nil
	}
}

// WithFailFast makes a call that overlaps another call on the same client
// return ErrBusy instead of waiting for it.
func WithFailFast() ClientOption {
	return func(c *clientConfig) error {
		c.failFast = true
		return nil
	}
}

// WithRandom sets the source of the nonce prefix and the initial request id.
// Default is crypto/rand.
func WithRandom(r io.Reader) ClientOption {
	return func(c *clientConfig) error {
		if r == nil {
			return errors.New("random source must not be nil")
		}
		c.random = r
		return nil
	}
}

// WithProtocol selects the message layout. Default is ProtocolFirmware.
func WithProtocol(p Protocol) ClientOption {
	return func(c *clientConfig) error {
		if p != ProtocolFirmware && p != ProtocolSealed {
			return fmt.Errorf("unknown protocol %s", p)
		}
		c.protocol = p
		return nil
	}
}

// WithTCP talks to the device over TCP instead of UDP, on the same port.
func WithTCP() ClientOption {
	return func(c *clientConfig) error {
		c.network = NetworkTCP
		return nil
	}
}

// transportTimeout returns the per-attempt timeout for the chosen network.
func (c *clientConfig) transportTimeout() time.Duration {
	if c.network == NetworkTCP && !c.timeoutSet {
		return defaultTCPTimeout
	}
	return c.requestTimeout
}

// transportRetries returns the retry count for the chosen network.
func (c *clientConfig) transportRetries() int {
	if c.network == NetworkTCP && !c.retriesSet {
		return defaultTCPRetries
	}
	return c.maxRetries
}
