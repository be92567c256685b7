package rabbitair

import (
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testTokenHex is 32 bytes of 0x01.
var testTokenHex = strings.Repeat("01", 32)

func testToken(t *testing.T) Token {
	t.Helper()
	tok, err := ParseToken(testTokenHex)
	require.NoError(t, err)
	return tok
}

// deviceReply is one datagram the fake device sends back.
type deviceReply struct {
	status    uint8
	payload   []byte
	requestID *uint32 // overrides the echoed request id
	corrupt   bool    // flip a bit in the tag
	raw       []byte  // sent verbatim instead of a sealed envelope
	fromOther bool    // sent from a different socket
}

// deviceHandler decides how the fake device answers its n-th request (1-based).
type deviceHandler func(n int, req *Envelope, payload []byte) []deviceReply

// fakeDevice is a purifier stand-in listening on 127.0.0.1.
type fakeDevice struct {
	conn    *net.UDPConn
	other   *net.UDPConn
	token   Token
	nonces  *NonceSource
	handler deviceHandler

	mu       sync.Mutex
	requests []*Envelope
	payloads [][]byte
}

func newFakeDevice(t *testing.T, handler deviceHandler) *fakeDevice {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	other, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	nonces, err := NewNonceSource(nil)
	require.NoError(t, err)

	d := &fakeDevice{
		conn:    conn,
		other:   other,
		token:   testToken(t),
		nonces:  nonces,
		handler: handler,
	}
	t.Cleanup(func() {
		conn.Close()
		other.Close()
	})
	go d.serve()
	return d
}

func (d *fakeDevice) port() int {
	return d.conn.LocalAddr().(*net.UDPAddr).Port
}

func (d *fakeDevice) attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func (d *fakeDevice) request(i int) (*Envelope, []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[i], d.payloads[i]
}

func (d *fakeDevice) serve() {
	buf := make([]byte, MaxDatagramLen)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req, err := DecodeEnvelope(buf[:n])
		if err != nil {
			continue
		}
		payload, err := req.Open(d.token, DirectionRequest)
		if err != nil {
			continue
		}

		d.mu.Lock()
		d.requests = append(d.requests, req)
		d.payloads = append(d.payloads, payload)
		count := len(d.requests)
		d.mu.Unlock()

		for _, r := range d.handler(count, req, payload) {
			d.send(from, req, r)
		}
	}
}

func (d *fakeDevice) send(to *net.UDPAddr, req *Envelope, r deviceReply) {
	conn := d.conn
	if r.fromOther {
		conn = d.other
	}
	if r.raw != nil {
		conn.WriteToUDP(r.raw, to)
		return
	}
	id := req.RequestID
	if r.requestID != nil {
		id = *r.requestID
	}
	nonce, err := d.nonces.Next()
	if err != nil {
		return
	}
	resp, err := SealEnvelope(d.token, DirectionResponse, req.Opcode, r.status, id, nonce, r.payload)
	if err != nil {
		return
	}
	if r.corrupt {
		resp.Tag[0] ^= 0x01
	}
	conn.WriteToUDP(resp.Encode(), to)
}

// reply answers every request with payload.
func reply(payload []byte) deviceHandler {
	return func(int, *Envelope, []byte) []deviceReply {
		return []deviceReply{{payload: payload}}
	}
}

// silent never answers.
func silent() deviceHandler {
	return func(int, *Envelope, []byte) []deviceReply { return nil }
}

func mustEncode(t *testing.T, fields map[Field]any) []byte {
	t.Helper()
	data, err := EncodeFields(fields)
	require.NoError(t, err)
	return data
}
