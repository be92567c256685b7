package rabbitair

import "fmt"

// sealedFormat speaks the v1 envelope with CBOR payloads.
type sealedFormat struct {
	token  Token
	nonces *NonceSource
}

func (s *sealedFormat) timestamped() bool { return false }

func (s *sealedFormat) encodeFields(fields map[Field]any) ([]byte, error) {
	return EncodeFields(fields)
}

func (s *sealedFormat) encodeRaw(data map[string]any) ([]byte, error) {
	fields := make(map[Field]any, len(data))
	for k, v := range data {
		f, err := parseRawKey(k)
		if err != nil {
			return nil, err
		}
		fields[f] = v
	}
	return encodeRaw(fields)
}

func (s *sealedFormat) decodeState(payload []byte) (*State, error) { return DecodeState(payload) }

func (s *sealedFormat) decodeInfo(payload []byte) (*Info, error) { return DecodeInfo(payload) }

func (s *sealedFormat) decodeRaw(payload []byte) (map[string]any, error) {
	fields, err := DecodeFields(payload)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(fields))
	for f, v := range fields {
		out[rawKey(f)] = v
	}
	return out, nil
}

func (s *sealedFormat) seal(op Opcode, id uint32, _ *int64, payload []byte) ([]byte, error) {
	nonce, err := s.nonces.Next()
	if err != nil {
		return nil, err
	}
	req, err := SealEnvelope(s.token, DirectionRequest, op, StatusOK, id, nonce, payload)
	if err != nil {
		return nil, err
	}
	return req.Encode(), nil
}

func (s *sealedFormat) open(msg []byte, op Opcode, id uint32) ([]byte, bool, error) {
	resp, err := DecodeEnvelope(msg)
	if err != nil {
		return nil, false, nil
	}
	if resp.RequestID != id || resp.Opcode != op {
		return nil, false, nil
	}
	plaintext, err := resp.Open(s.token, DirectionResponse)
	if err != nil {
		return nil, false, fmt.Errorf("response to request %d: %w", id, err)
	}
	if resp.Status != StatusOK {
		return nil, false, fmt.Errorf("%w: status 0x%02x", ErrDevice, resp.Status)
	}
	return plaintext, true, nil
}
