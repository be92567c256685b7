package rabbitair

import "errors"

// Error kinds surfaced by the client. Returned errors wrap one of these and
// can be matched with errors.Is.
var (
	// ErrEncoding means a command could not be serialized, usually because a
	// field value is outside its declared domain.
	ErrEncoding = errors.New("encoding error")

	// ErrDecoding means a response payload was malformed.
	ErrDecoding = errors.New("decoding error")

	// ErrAuthentication means a payload failed tag verification.
	// Its contents must not be trusted.
	ErrAuthentication = errors.New("authentication failed")

	// ErrDecryption means the sealed payload had an impossible shape.
	ErrDecryption = errors.New("decryption error")

	// ErrNetwork wraps socket level failures.
	ErrNetwork = errors.New("network error")

	// ErrTimeout means no valid reply arrived after all retries.
	ErrTimeout = errors.New("request timed out")

	// ErrValidation means a caller supplied value was rejected before any
	// datagram was sent.
	ErrValidation = errors.New("validation error")

	// ErrBusy is returned by fail-fast clients when another request is in flight.
	ErrBusy = errors.New("client busy")

	// ErrDevice means the device understood the request but rejected it.
	ErrDevice = errors.New("device returned an error")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client closed")
)
