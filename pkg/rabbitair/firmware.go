package rabbitair

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"fmt"
	"io"
)

// Firmware message layout:
//
//	AES-CBC(token, iv, PKCS#7(json)) || iv
//
// where json is {"id":N,"cmd":C,"ts":T,"data":{...}} for requests and
// {"id":N,"data":{...}} for replies. Replies with a truthy "error" member
// are rejections. Field keys are the names in the field table.
type firmwareRequest struct {
	ID   uint32          `json:"id"`
	Cmd  Opcode          `json:"cmd"`
	TS   *int64          `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type firmwareResponse struct {
	ID    *uint32         `json:"id"`
	Data  json.RawMessage `json:"data"`
	Error any             `json:"error"`
}

type firmwareFormat struct {
	block  cipher.Block
	random io.Reader
}

func newFirmwareFormat(token Token, random io.Reader) (*firmwareFormat, error) {
	if token.IsZero() {
		return nil, fmt.Errorf("%w: empty token", ErrValidation)
	}
	block, err := aes.NewCipher(token.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return &firmwareFormat{block: block, random: random}, nil
}

func (f *firmwareFormat) timestamped() bool { return true }

func (f *firmwareFormat) encrypt(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	if len(padded)+aes.BlockSize > MaxDatagramLen {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds %d", ErrEncoding, len(padded)+aes.BlockSize, MaxDatagramLen)
	}
	out := make([]byte, len(padded)+aes.BlockSize)
	iv := out[len(padded):]
	if _, err := io.ReadFull(f.random, iv); err != nil {
		return nil, fmt.Errorf("read iv: %w", err)
	}
	cipher.NewCBCEncrypter(f.block, iv).CryptBlocks(out[:len(padded)], padded)
	return out, nil
}

func (f *firmwareFormat) decrypt(msg []byte) ([]byte, error) {
	if len(msg) < 2*aes.BlockSize || len(msg)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of blocks", ErrDecryption, len(msg))
	}
	split := len(msg) - aes.BlockSize
	plaintext := make([]byte, split)
	cipher.NewCBCDecrypter(f.block, msg[split:]).CryptBlocks(plaintext, msg[:split])
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func (f *firmwareFormat) seal(op Opcode, id uint32, ts *int64, payload []byte) ([]byte, error) {
	data, err := json.Marshal(firmwareRequest{ID: id, Cmd: op, TS: ts, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return f.encrypt(data)
}

func (f *firmwareFormat) open(msg []byte, _ Opcode, id uint32) ([]byte, bool, error) {
	if len(msg) < 2*aes.BlockSize || len(msg)%aes.BlockSize != 0 {
		return nil, false, nil
	}
	plaintext, err := f.decrypt(msg)
	if err != nil {
		return nil, false, fmt.Errorf("response to request %d: %w", id, err)
	}
	var resp firmwareResponse
	if err := json.Unmarshal(plaintext, &resp); err != nil {
		return nil, false, nil
	}
	if resp.ID == nil || *resp.ID != id {
		return nil, false, nil
	}
	if truthy(resp.Error) {
		return nil, false, fmt.Errorf("%w: %v", ErrDevice, resp.Error)
	}
	if bytes.Equal(resp.Data, []byte("null")) {
		return nil, true, nil
	}
	return resp.Data, true, nil
}

func (f *firmwareFormat) encodeFields(fields map[Field]any) ([]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	data := make(map[string]any, len(fields))
	for field, v := range fields {
		spec, ok := fieldSpecs[field]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no firmware key", ErrEncoding, field)
		}
		nv, err := normalize(spec, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEncoding, spec.name, err)
		}
		data[field.wireKey()] = nv
	}
	return f.encodeRaw(data)
}

func (f *firmwareFormat) encodeRaw(data map[string]any) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return out, nil
}

func (f *firmwareFormat) decodeState(payload []byte) (*State, error) {
	values := make(map[Field]any)
	if len(payload) == 0 {
		return &State{values: values}, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	for key, msg := range raw {
		field, ok := fieldByWireKey(key)
		if !ok || bytes.Equal(msg, []byte("null")) {
			continue
		}
		spec := fieldSpecs[field]
		v, err := decodeJSONValue(spec.kind, msg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecoding, spec.name, err)
		}
		values[field] = v
	}
	return &State{values: values}, nil
}

// decodeJSONValue decodes one field into its canonical Go type. Flags
// reported as 0 or 1 are accepted as booleans.
func decodeJSONValue(kind fieldKind, msg json.RawMessage) (any, error) {
	switch kind {
	case kindBool:
		var b bool
		if err := json.Unmarshal(msg, &b); err == nil {
			return b, nil
		}
		var n uint64
		if err := json.Unmarshal(msg, &n); err != nil || n > 1 {
			return nil, fmt.Errorf("want bool, got %s", msg)
		}
		return n == 1, nil
	case kindUint:
		var v uint64
		err := json.Unmarshal(msg, &v)
		return v, err
	case kindInt:
		var v int64
		err := json.Unmarshal(msg, &v)
		return v, err
	case kindString:
		var v string
		err := json.Unmarshal(msg, &v)
		return v, err
	case kindUintList:
		var v []uint64
		err := json.Unmarshal(msg, &v)
		return v, err
	}
	return nil, fmt.Errorf("unsupported field kind %d", kind)
}

func (f *firmwareFormat) decodeInfo(payload []byte) (*Info, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty info payload", ErrDecoding)
	}
	var info Info
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return &info, nil
}

func (f *firmwareFormat) decodeRaw(payload []byte) (map[string]any, error) {
	out := make(map[string]any)
	if len(payload) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	for k, v := range raw {
		out[k] = jsonNumbers(v)
	}
	return out, nil
}

// jsonNumbers replaces json.Number with int64 where the value is integral
// and float64 otherwise.
func jsonNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case []any:
		for i := range v {
			v[i] = jsonNumbers(v[i])
		}
		return v
	case map[string]any:
		for k := range v {
			v[k] = jsonNumbers(v[k])
		}
		return v
	}
	return v
}

// decodeTimestamp reads the device clock from a timestamp reply.
func decodeTimestamp(payload []byte) (int64, error) {
	var reply struct {
		TS *int64 `json:"ts"`
	}
	if len(payload) == 0 {
		return 0, fmt.Errorf("%w: empty timestamp reply", ErrDecoding)
	}
	if err := json.Unmarshal(payload, &reply); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	if reply.TS == nil {
		return 0, fmt.Errorf("%w: timestamp reply has no ts", ErrDecoding)
	}
	return *reply.TS, nil
}

// truthy mirrors how the firmware flags errors: any non-empty, non-zero value.
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	return true
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
		}
	}
	return b[:len(b)-n], nil
}
