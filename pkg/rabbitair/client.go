package rabbitair

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Client talks to one Rabbit Air device. Every call is an independent
// encode, encrypt, send, receive, decrypt, decode exchange. The only state
// kept between calls is the request id counter and, for the firmware
// protocol, the device clock offset learned from a timestamp request.
// Calls on one Client are serialized. Distinct clients are independent.
type Client struct {
	token     Token
	format    wireFormat
	transport *Transport
	logger    *slog.Logger
	failFast  bool

	// inflight holds one token while an exchange runs.
	inflight chan struct{}

	// Fields below are only touched while inflight is held.
	nextID  uint32
	tsValid bool
	tsBase  int64
	tsAt    time.Time

	mu       sync.Mutex
	isClosed bool
}

// NewClient creates a client for the device at host using the hex encoded
// access token. No packets are sent until the first call.
func NewClient(host, token string, opts ...ClientOption) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	if host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrValidation)
	}
	tok, err := ParseToken(token)
	if err != nil {
		return nil, err
	}

	random := cfg.random
	if random == nil {
		random = rand.Reader
	}

	var format wireFormat
	switch cfg.protocol {
	case ProtocolSealed:
		nonces, err := NewNonceSource(random)
		if err != nil {
			return nil, err
		}
		format = &sealedFormat{token: tok, nonces: nonces}
	default:
		format, err = newFirmwareFormat(tok, random)
		if err != nil {
			return nil, err
		}
	}

	var idBuf [4]byte
	if _, err := io.ReadFull(random, idBuf[:]); err != nil {
		return nil, fmt.Errorf("read request id: %w", err)
	}

	c := &Client{
		token:  tok,
		format: format,
		transport: NewTransport(cfg.network, host, cfg.port,
			cfg.transportTimeout(), cfg.transportRetries(), cfg.logger),
		logger:   cfg.logger,
		failFast: cfg.failFast,
		inflight: make(chan struct{}, 1),
		nextID:   binary.BigEndian.Uint32(idBuf[:]) & 0xFFFFFF,
	}
	if c.logger != nil {
		c.logger.Debug("client created",
			"addr", c.transport.Addr(),
			"network", cfg.network,
			"protocol", cfg.protocol,
			"token", c.token,
		)
	}
	return c, nil
}

// Close releases the socket. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return nil
	}
	c.isClosed = true
	if c.logger != nil {
		c.logger.Debug("client closed", "addr", c.transport.Addr())
	}
	return c.transport.Close()
}

func (c *Client) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isClosed
}

func (c *Client) acquire(ctx context.Context) error {
	if c.failFast {
		select {
		case c.inflight <- struct{}{}:
			return nil
		default:
			return ErrBusy
		}
	}
	select {
	case c.inflight <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	}
}

func (c *Client) release() { <-c.inflight }

// exchange sends payload under op and returns the decrypted reply payload.
// For timestamped formats it first learns the device clock if needed.
func (c *Client) exchange(ctx context.Context, op Opcode, payload []byte) ([]byte, error) {
	if c.closed() {
		return nil, ErrClosed
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	var ts *int64
	if c.format.timestamped() {
		now, err := c.deviceTime(ctx)
		if err != nil {
			return nil, c.fail(err)
		}
		ts = &now
	}

	reply, err := c.roundTrip(ctx, op, ts, payload)
	if err != nil {
		return nil, c.fail(err)
	}
	if c.logger != nil {
		c.logger.Debug("response received", "opcode", op, "len", len(reply))
	}
	return reply, nil
}

// deviceTime returns the current device clock, asking the device for it
// after a failure or on first use.
func (c *Client) deviceTime(ctx context.Context) (int64, error) {
	if c.tsValid {
		elapsed := math.Round(time.Since(c.tsAt).Seconds())
		return c.tsBase + int64(elapsed), nil
	}
	reply, err := c.roundTrip(ctx, OpTimestamp, nil, nil)
	if err != nil {
		return 0, err
	}
	ts, err := decodeTimestamp(reply)
	if err != nil {
		return 0, err
	}
	c.tsBase, c.tsAt, c.tsValid = ts, time.Now(), true
	if c.logger != nil {
		c.logger.Debug("device clock synchronized", "ts", ts)
	}
	return ts, nil
}

// fail discards the socket and the clock offset after a failed exchange so
// the next call starts over. Rejections by the device keep both.
func (c *Client) fail(err error) error {
	if errors.Is(err, ErrDevice) {
		return err
	}
	c.tsValid = false
	c.transport.Close()
	if c.closed() && errors.Is(err, ErrNetwork) {
		return ErrClosed
	}
	return err
}

// roundTrip runs one request through the transport. Every attempt gets a
// fresh request id.
func (c *Client) roundTrip(ctx context.Context, op Opcode, ts *int64, payload []byte) ([]byte, error) {
	build := func() ([]byte, AcceptFunc, error) {
		id := c.nextID
		c.nextID++

		msg, err := c.format.seal(op, id, ts, payload)
		if err != nil {
			return nil, nil, err
		}
		accept := func(reply []byte) ([]byte, bool, error) {
			out, ok, err := c.format.open(reply, op, id)
			if err != nil && c.logger != nil && !errors.Is(err, ErrDevice) {
				c.logger.Warn("response failed verification", "requestID", id, "error", err)
			}
			return out, ok, err
		}
		return msg, accept, nil
	}
	return c.transport.SendAndReceive(ctx, build)
}

// GetState reads the current state of the device.
func (c *Client) GetState(ctx context.Context) (*State, error) {
	reply, err := c.exchange(ctx, OpState, nil)
	if err != nil {
		return nil, err
	}
	return c.format.decodeState(reply)
}

// SetState changes the settings present in req. Invalid values fail with
// ErrValidation before anything is sent. On success it returns whatever
// fields the device echoed back, which may be none; on failure it returns
// nil, never a partially applied state.
func (c *Client) SetState(ctx context.Context, req SetRequest) (*State, error) {
	fields, err := req.Fields()
	if err != nil {
		return nil, err
	}
	payload, err := c.format.encodeFields(fields)
	if err != nil {
		return nil, err
	}
	reply, err := c.exchange(ctx, OpState, payload)
	if err != nil {
		return nil, err
	}
	return c.format.decodeState(reply)
}

// GetInfo reads information about the device's Wi-Fi module.
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	reply, err := c.exchange(ctx, OpInfo, nil)
	if err != nil {
		return nil, err
	}
	return c.format.decodeInfo(reply)
}

// Command sends data under op without field validation and returns the
// decoded reply data. Keys are wire names such as "power"; with
// ProtocolSealed a decimal tag such as "200" addresses a field this package
// does not know, and unknown reply tags come back under their decimal tag.
// It is meant for device features this package does not model yet.
func (c *Client) Command(ctx context.Context, op Opcode, data map[string]any) (map[string]any, error) {
	payload, err := c.format.encodeRaw(data)
	if err != nil {
		return nil, err
	}
	reply, err := c.exchange(ctx, op, payload)
	if err != nil {
		return nil, err
	}
	return c.format.decodeRaw(reply)
}
