package rabbitair

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Envelope layout, version 1:
//
//	0   2   magic "RA"
//	2   1   version
//	3   1   opcode
//	4   1   status (0 in requests and successful responses)
//	5   4   request id, big endian
//	9   24  nonce
//	33  n   ciphertext
//	33+n 16 tag
//
// Bytes 0-32 are the header and are authenticated as additional data.
const (
	Magic          = 0x5241
	Version1       = 0x01
	HeaderLen      = 9 + NonceSize
	MinEnvelopeLen = HeaderLen + TagSize

	// MaxDatagramLen is the largest datagram sent or accepted.
	MaxDatagramLen = 2048

	// MaxPayloadLen is the largest plaintext that fits in one datagram.
	MaxPayloadLen = MaxDatagramLen - MinEnvelopeLen

	// StatusOK marks a request or a successful response.
	StatusOK = 0x00
)

var (
	ErrInvalidHeader      = errors.New("invalid header")
	ErrInvalidLength      = errors.New("invalid envelope length")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// Envelope is one sealed message. A request envelope is single use: every
// attempt, retries included, gets a fresh nonce and request id.
type Envelope struct {
	Version    uint8
	Opcode     Opcode
	Status     uint8
	RequestID  uint32
	Nonce      Nonce
	Ciphertext []byte
	Tag        []byte
}

// Header returns the authenticated header bytes.
func (e *Envelope) Header() []byte {
	buf := make([]byte, HeaderLen)
	e.putHeader(buf)
	return buf
}

func (e *Envelope) putHeader(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	buf[2] = e.Version
	buf[3] = uint8(e.Opcode)
	buf[4] = e.Status
	binary.BigEndian.PutUint32(buf[5:9], e.RequestID)
	copy(buf[9:HeaderLen], e.Nonce[:])
}

// Encode serializes the envelope into a datagram.
func (e *Envelope) Encode() []byte {
	buf := make([]byte, HeaderLen+len(e.Ciphertext)+len(e.Tag))
	e.putHeader(buf)
	copy(buf[HeaderLen:], e.Ciphertext)
	copy(buf[HeaderLen+len(e.Ciphertext):], e.Tag)
	return buf
}

// DecodeEnvelope parses a datagram. It checks framing only; the payload is
// still sealed.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) < MinEnvelopeLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(data))
	}
	if len(data) > MaxDatagramLen {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidLength, len(data), MaxDatagramLen)
	}
	if binary.BigEndian.Uint16(data[0:2]) != Magic {
		return nil, ErrInvalidHeader
	}
	if data[2] != Version1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[2])
	}

	e := &Envelope{
		Version:   data[2],
		Opcode:    Opcode(data[3]),
		Status:    data[4],
		RequestID: binary.BigEndian.Uint32(data[5:9]),
	}
	copy(e.Nonce[:], data[9:HeaderLen])

	tagStart := len(data) - TagSize
	e.Ciphertext = append([]byte(nil), data[HeaderLen:tagStart]...)
	e.Tag = append([]byte(nil), data[tagStart:]...)
	return e, nil
}

// SealEnvelope builds an envelope around payload, sealed for dir.
func SealEnvelope(token Token, dir Direction, op Opcode, status uint8, requestID uint32, nonce Nonce, payload []byte) (*Envelope, error) {
	e := &Envelope{
		Version:   Version1,
		Opcode:    op,
		Status:    status,
		RequestID: requestID,
		Nonce:     nonce,
	}
	ct, tag, err := Seal(token, dir, nonce, e.Header(), payload)
	if err != nil {
		return nil, err
	}
	e.Ciphertext = ct
	e.Tag = tag
	return e, nil
}

// Open verifies and decrypts the envelope's payload.
func (e *Envelope) Open(token Token, dir Direction) ([]byte, error) {
	return Open(token, dir, e.Nonce, e.Header(), e.Ciphertext, e.Tag)
}
