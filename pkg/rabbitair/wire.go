package rabbitair

import (
	"fmt"
	"strconv"
)

// Protocol selects the message layout spoken with the device.
type Protocol uint8

const (
	// ProtocolFirmware is the layout of shipping firmware: a JSON message
	// encrypted with AES-CBC under the token, with the IV appended. It hides
	// the payload but does not detect tampering.
	ProtocolFirmware Protocol = iota

	// ProtocolSealed is the v1 envelope: a CBOR payload sealed with
	// XChaCha20-Poly1305 under a per-message key. Tampered replies fail with
	// ErrAuthentication. The device must support it.
	ProtocolSealed
)

func (p Protocol) String() string {
	switch p {
	case ProtocolFirmware:
		return "firmware"
	case ProtocolSealed:
		return "sealed"
	}
	return fmt.Sprintf("Protocol(%d)", uint8(p))
}

// ParseProtocol parses "firmware" or "sealed".
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "firmware":
		return ProtocolFirmware, nil
	case "sealed":
		return ProtocolSealed, nil
	}
	return 0, fmt.Errorf("%w: unknown protocol %q", ErrValidation, s)
}

// wireFormat is one protocol version: the payload codec plus the framing
// and encryption of whole messages.
type wireFormat interface {
	// encodeFields serializes validated fields as a command payload.
	encodeFields(fields map[Field]any) ([]byte, error)
	// encodeRaw serializes a payload keyed by wire name without checks.
	encodeRaw(data map[string]any) ([]byte, error)

	decodeState(payload []byte) (*State, error)
	decodeInfo(payload []byte) (*Info, error)
	decodeRaw(payload []byte) (map[string]any, error)

	// seal builds the message for one attempt. ts is nil unless the format
	// is timestamped.
	seal(op Opcode, id uint32, ts *int64, payload []byte) ([]byte, error)
	// open recognizes the reply to request id. ok=false means the message
	// belongs to someone else; an error ends the exchange.
	open(msg []byte, op Opcode, id uint32) (payload []byte, ok bool, err error)

	// timestamped reports whether requests need a device timestamp.
	timestamped() bool
}

// rawKey is the name a field is given in raw command payloads: its wire
// name when known, else its decimal tag.
func rawKey(f Field) string {
	if f.Known() {
		return f.String()
	}
	return strconv.Itoa(int(f))
}

// parseRawKey is the inverse of rawKey.
func parseRawKey(key string) (Field, error) {
	if f, ok := FieldByName(key); ok {
		return f, nil
	}
	tag, err := strconv.ParseUint(key, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown field %q", ErrEncoding, key)
	}
	return Field(tag), nil
}
