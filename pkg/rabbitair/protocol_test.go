package rabbitair

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_Encode(t *testing.T) {
	var nonce Nonce
	for i := range nonce {
		nonce[i] = byte(i)
	}
	e := &Envelope{
		Version:    Version1,
		Opcode:     OpState,
		Status:     StatusOK,
		RequestID:  0x00ABCDEF,
		Nonce:      nonce,
		Ciphertext: []byte{0xAA, 0xBB},
		Tag:        make([]byte, TagSize),
	}

	encoded := e.Encode()
	require.Len(t, encoded, HeaderLen+2+TagSize)

	// magic, version, opcode, status, request id
	assert.Equal(t, "524101040000abcdef", hex.EncodeToString(encoded[:9]))
	assert.Equal(t, nonce[:], encoded[9:HeaderLen])
	assert.Equal(t, []byte{0xAA, 0xBB}, encoded[HeaderLen:HeaderLen+2])
	assert.Equal(t, encoded[:HeaderLen], e.Header())
}

func TestEnvelope_SealDecodeOpen(t *testing.T) {
	token := testToken(t)
	nonces, err := NewNonceSource(nil)
	require.NoError(t, err)
	nonce, err := nonces.Next()
	require.NoError(t, err)

	sealed, err := SealEnvelope(token, DirectionResponse, OpInfo, 0x02, 77, nonce, []byte{0xA0})
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(sealed.Encode())
	require.NoError(t, err)
	assert.Equal(t, OpInfo, decoded.Opcode)
	assert.Equal(t, uint8(0x02), decoded.Status)
	assert.Equal(t, uint32(77), decoded.RequestID)
	assert.Equal(t, nonce, decoded.Nonce)

	payload, err := decoded.Open(token, DirectionResponse)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA0}, payload)

	// The status byte is authenticated.
	decoded.Status = StatusOK
	_, err = decoded.Open(token, DirectionResponse)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestDecodeEnvelope_TooShort(t *testing.T) {
	_, err := DecodeEnvelope(make([]byte, MinEnvelopeLen-1))
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestDecodeEnvelope_TooLong(t *testing.T) {
	data := make([]byte, MaxDatagramLen+1)
	data[0], data[1], data[2] = 0x52, 0x41, Version1
	_, err := DecodeEnvelope(data)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestDecodeEnvelope_InvalidHeader(t *testing.T) {
	data := make([]byte, MinEnvelopeLen)
	data[0], data[1], data[2] = 0x55, 0x55, Version1
	_, err := DecodeEnvelope(data)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestDecodeEnvelope_UnsupportedVersion(t *testing.T) {
	data := make([]byte, MinEnvelopeLen)
	data[0], data[1], data[2] = 0x52, 0x41, 0x02
	_, err := DecodeEnvelope(data)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeEnvelope_EmptyCiphertext(t *testing.T) {
	data := make([]byte, MinEnvelopeLen)
	data[0], data[1], data[2] = 0x52, 0x41, Version1
	e, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Empty(t, e.Ciphertext)
	assert.Len(t, e.Tag, TagSize)
}
