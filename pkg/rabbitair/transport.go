package rabbitair

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// RequestFunc seals a fresh request for one attempt. It returns the message
// and the check that recognizes the reply to it.
type RequestFunc func() (msg []byte, accept AcceptFunc, err error)

// AcceptFunc inspects a message received while waiting for a reply.
// ok=false discards the message and keeps waiting; a non-nil error ends
// the exchange.
type AcceptFunc func(msg []byte) (payload []byte, ok bool, err error)

// Networks supported by Transport.
const (
	NetworkUDP = "udp"
	NetworkTCP = "tcp"
)

// tcpHeaderLen is the little endian length prefix of each TCP message.
const tcpHeaderLen = 2

var errAttemptTimeout = errors.New("attempt timed out")

// aLongTimeAgo is a non-zero time in the past, used to unblock reads.
var aLongTimeAgo = time.Unix(1, 0)

// Transport exchanges messages with one device. Over UDP each message is
// one datagram on a connected socket, so the kernel drops datagrams from
// any other source. Over TCP each message carries a two byte little endian
// length prefix. Exchanges must not overlap; Client serializes them.
type Transport struct {
	network string
	addr    string
	timeout time.Duration
	retries int
	logger  *slog.Logger
	dialer  net.Dialer

	mu   sync.Mutex
	conn net.Conn
}

// NewTransport creates a transport for host:port over network, which is
// NetworkUDP or NetworkTCP. No socket is opened until the first exchange.
func NewTransport(network, host string, port int, timeout time.Duration, retries int, logger *slog.Logger) *Transport {
	return &Transport{
		network: network,
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: timeout,
		retries: retries,
		logger:  logger,
	}
}

// Addr returns the device address as host:port.
func (t *Transport) Addr() string { return t.addr }

// Network returns NetworkUDP or NetworkTCP.
func (t *Transport) Network() string { return t.network }

func (t *Transport) stream() bool { return t.network == NetworkTCP }

// Close releases the socket. The transport can still be used; the next
// exchange opens a new socket.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// open returns the cached socket or resolves the address and dials a new one.
func (t *Transport) open(ctx context.Context) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn, nil
	}
	conn, err := t.dialer.DialContext(ctx, t.network, t.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s %s: %v", ErrNetwork, t.network, t.addr, err)
	}
	t.conn = conn
	if t.logger != nil {
		t.logger.Debug("socket opened", "network", t.network, "addr", t.addr, "local", conn.LocalAddr())
	}
	return conn, nil
}

// drop discards a failed socket so the next exchange re-resolves the address.
func (t *Transport) drop(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn.Close()
	if t.conn == conn {
		t.conn = nil
	}
}

func (t *Transport) writeMsg(conn net.Conn, msg []byte) error {
	if !t.stream() {
		_, err := conn.Write(msg)
		return err
	}
	if len(msg) > 0xFFFF {
		return fmt.Errorf("message of %d bytes exceeds the frame limit", len(msg))
	}
	frame := make([]byte, tcpHeaderLen+len(msg))
	binary.LittleEndian.PutUint16(frame, uint16(len(msg)))
	copy(frame[tcpHeaderLen:], msg)
	_, err := conn.Write(frame)
	return err
}

// readMsg reads one message into buf. A TCP frame larger than buf is
// skipped and reported with its full length so the caller discards it.
func (t *Transport) readMsg(conn net.Conn, buf []byte) (int, error) {
	if !t.stream() {
		return conn.Read(buf)
	}
	var hdr [tcpHeaderLen]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return 0, err
	}
	size := int(binary.LittleEndian.Uint16(hdr[:]))
	if size > len(buf) {
		if _, err := io.CopyN(io.Discard, conn, int64(size)); err != nil {
			return 0, err
		}
		return size, nil
	}
	return io.ReadFull(conn, buf[:size])
}

// SendAndReceive runs one exchange. Each attempt calls build, sends the
// message and waits up to the transport timeout for a reply that accept
// recognizes. After retries+1 silent attempts it fails with ErrTimeout.
// Cancelling ctx abandons the wait at once. A UDP socket stays usable; a
// TCP stream abandoned mid-wait is closed and reopened on the next attempt.
func (t *Transport) SendAndReceive(ctx context.Context, build RequestFunc) ([]byte, error) {
	buf := make([]byte, MaxDatagramLen+1)
	attempts := t.retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("request canceled: %w", err)
		}
		conn, err := t.open(ctx)
		if err != nil {
			return nil, err
		}

		msg, accept, err := build()
		if err != nil {
			return nil, err
		}
		payload, err := t.attempt(ctx, conn, msg, buf, accept)
		if err == nil {
			return payload, nil
		}
		if t.stream() && (errors.Is(err, errAttemptTimeout) || ctx.Err() != nil) {
			// The rest of a late frame would desync the stream.
			t.drop(conn)
		}
		if !errors.Is(err, errAttemptTimeout) {
			return nil, err
		}
		if t.logger != nil {
			t.logger.Warn("request timeout", "addr", t.addr, "attempt", attempt, "of", attempts)
		}
	}
	return nil, fmt.Errorf("%w: no reply from %s after %d attempts", ErrTimeout, t.addr, attempts)
}

func (t *Transport) attempt(ctx context.Context, conn net.Conn, msg, buf []byte, accept AcceptFunc) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	if err := t.writeMsg(conn, msg); err != nil {
		t.drop(conn)
		if t.logger != nil {
			t.logger.Error("failed to send request", "addr", t.addr, "error", err)
		}
		return nil, fmt.Errorf("%w: send to %s: %v", ErrNetwork, t.addr, err)
	}
	if t.logger != nil {
		t.logger.Debug("request sent", "network", t.network, "addr", t.addr, "len", len(msg))
	}
	return t.await(ctx, conn, buf, accept)
}

func (t *Transport) await(ctx context.Context, conn net.Conn, buf []byte, accept AcceptFunc) ([]byte, error) {
	deadline := time.Now().Add(t.timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		t.drop(conn)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	// The cancel hook may have run before the deadline above replaced its own.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("request canceled: %w", err)
	}

	for {
		n, err := t.readMsg(conn, buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("request canceled: %w", ctxErr)
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if !t.stream() && time.Now().Before(deadline) {
					// A cancel hook from an earlier call fired late.
					conn.SetReadDeadline(deadline)
					continue
				}
				return nil, errAttemptTimeout
			}
			t.drop(conn)
			if t.logger != nil {
				t.logger.Error("failed to receive reply", "addr", t.addr, "error", err)
			}
			return nil, fmt.Errorf("%w: receive from %s: %v", ErrNetwork, t.addr, err)
		}
		if n > MaxDatagramLen {
			if t.logger != nil {
				t.logger.Warn("message exceeds max length", "len", n, "max", MaxDatagramLen)
			}
			continue
		}

		payload, ok, err := accept(buf[:n])
		if err != nil {
			return nil, err
		}
		if !ok {
			if t.logger != nil {
				t.logger.Debug("discarding uncorrelated message", "addr", t.addr, "len", n)
			}
			continue
		}
		return payload, nil
	}
}
