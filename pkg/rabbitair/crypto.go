package rabbitair

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// NonceSize is the size of an envelope nonce.
	NonceSize = chacha20poly1305.NonceSizeX

	// TagSize is the size of the authentication tag.
	TagSize = chacha20poly1305.Overhead

	// noncePrefixSize bytes of each nonce are random per NonceSource; the
	// rest is a big endian counter.
	noncePrefixSize = NonceSize - 8
)

// Token is the pre-shared access token of one device.
// It formats as "[redacted]" in fmt and slog output.
type Token struct {
	key []byte
}

// ParseToken decodes a hex token of 16 or 32 bytes.
func ParseToken(s string) (Token, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Token{}, fmt.Errorf("%w: token is not hex", ErrValidation)
	}
	return NewToken(b)
}

// NewToken copies b into a Token. b must be 16 or 32 bytes long.
func NewToken(b []byte) (Token, error) {
	if len(b) != 16 && len(b) != 32 {
		return Token{}, fmt.Errorf("%w: token must be 16 or 32 bytes, got %d", ErrValidation, len(b))
	}
	return Token{key: append([]byte(nil), b...)}, nil
}

// IsZero reports whether the token is unset.
func (t Token) IsZero() bool { return len(t.key) == 0 }

func (t Token) String() string { return "[redacted]" }

func (t Token) GoString() string { return "rabbitair.Token{[redacted]}" }

func (t Token) LogValue() slog.Value { return slog.StringValue("[redacted]") }

// Direction distinguishes keys derived for requests from keys derived for
// responses, so the device and the client never share a (key, nonce) pair.
type Direction uint8

const (
	DirectionRequest Direction = iota
	DirectionResponse
)

func (d Direction) info() []byte {
	if d == DirectionResponse {
		return []byte("rabbitair/v1 response")
	}
	return []byte("rabbitair/v1 request")
}

// Nonce is used once per sealed payload.
type Nonce [NonceSize]byte

// Counter returns the sequence part of the nonce.
func (n Nonce) Counter() uint64 {
	return binary.BigEndian.Uint64(n[noncePrefixSize:])
}

// ErrNonceExhausted is returned when a NonceSource has issued every counter value.
var ErrNonceExhausted = errors.New("nonce counter exhausted")

// NonceSource issues nonces that never repeat: a random prefix chosen once
// followed by a strictly increasing counter. It is safe for concurrent use.
type NonceSource struct {
	prefix  [noncePrefixSize]byte
	counter atomic.Uint64
}

// NewNonceSource reads the prefix from r, or from crypto/rand if r is nil.
func NewNonceSource(r io.Reader) (*NonceSource, error) {
	if r == nil {
		r = rand.Reader
	}
	s := &NonceSource{}
	if _, err := io.ReadFull(r, s.prefix[:]); err != nil {
		return nil, fmt.Errorf("read nonce prefix: %w", err)
	}
	return s, nil
}

// Next returns a fresh nonce.
func (s *NonceSource) Next() (Nonce, error) {
	var n Nonce
	c := s.counter.Add(1)
	if c == 0 {
		s.counter.Store(^uint64(0))
		return n, ErrNonceExhausted
	}
	copy(n[:], s.prefix[:])
	binary.BigEndian.PutUint64(n[noncePrefixSize:], c)
	return n, nil
}

func deriveKey(token Token, dir Direction, nonce Nonce) ([]byte, error) {
	if token.IsZero() {
		return nil, fmt.Errorf("%w: empty token", ErrValidation)
	}
	r := hkdf.New(sha256.New, token.key, nonce[:], dir.info())
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under a key derived from token, dir and nonce.
// header is authenticated but not encrypted.
func Seal(token Token, dir Direction, nonce Nonce, header, plaintext []byte) (ciphertext, tag []byte, err error) {
	if len(plaintext) > MaxPayloadLen {
		return nil, nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrEncoding, len(plaintext), MaxPayloadLen)
	}
	key, err := deriveKey(token, dir, nonce)
	if err != nil {
		return nil, nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	sealed := aead.Seal(nil, nonce[:], plaintext, header)
	split := len(sealed) - TagSize
	return sealed[:split], sealed[split:], nil
}

// Open authenticates and decrypts a payload sealed by Seal. On any
// verification failure it returns ErrAuthentication and no plaintext.
func Open(token Token, dir Direction, nonce Nonce, header, ciphertext, tag []byte) ([]byte, error) {
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: tag is %d bytes, want %d", ErrDecryption, len(tag), TagSize)
	}
	if len(ciphertext) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: ciphertext of %d bytes exceeds %d", ErrDecryption, len(ciphertext), MaxPayloadLen)
	}
	key, err := deriveKey(token, dir, nonce)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, nonce[:], sealed, header)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
