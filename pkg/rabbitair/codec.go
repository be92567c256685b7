package rabbitair

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// v1 payloads are CBOR maps keyed by Field tags. Encoding is canonical so the
// same command always produces the same plaintext; decoding is lenient so
// newer firmware can add keys.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		MaxArrayElements:  256,
		MaxMapPairs:       256,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// EncodeFields serializes a v1 (CBOR) command. Known fields are checked
// against their declared domain; unknown fields are written as given. A nil
// or empty map encodes to an empty payload.
func EncodeFields(fields map[Field]any) ([]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	wire := make(map[Field]any, len(fields))
	for f, v := range fields {
		spec, ok := fieldSpecs[f]
		if !ok {
			wire[f] = v
			continue
		}
		nv, err := normalize(spec, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEncoding, spec.name, err)
		}
		wire[f] = nv
	}
	return encodeRaw(wire)
}

// encodeRaw serializes fields without any domain checks.
func encodeRaw(fields map[Field]any) ([]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	data, err := encMode.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return data, nil
}

// DecodeFields parses a payload into a generic field map, keeping unknown
// tags. Tags outside the one-byte range are dropped.
func DecodeFields(payload []byte) (map[Field]any, error) {
	out := make(map[Field]any)
	if len(payload) == 0 {
		return out, nil
	}
	var raw map[uint64]any
	if err := decMode.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	for k, v := range raw {
		if k > 0xFF {
			continue
		}
		out[Field(k)] = v
	}
	return out, nil
}

// DecodeState parses a v1 (CBOR) state payload. Unknown tags are ignored
// so that firmware additions do not break older clients; a known tag
// carrying the wrong wire type is an error.
func DecodeState(payload []byte) (*State, error) {
	values, err := decodeKnown(payload)
	if err != nil {
		return nil, err
	}
	return &State{values: values}, nil
}

func decodeKnown(payload []byte) (map[Field]any, error) {
	values := make(map[Field]any)
	if len(payload) == 0 {
		return values, nil
	}
	var raw map[uint64]cbor.RawMessage
	if err := decMode.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	for k, msg := range raw {
		if k > 0xFF {
			continue
		}
		f := Field(k)
		spec, ok := fieldSpecs[f]
		if !ok {
			continue
		}
		v, err := decodeValue(spec.kind, msg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecoding, spec.name, err)
		}
		values[f] = v
	}
	return values, nil
}

func decodeValue(kind fieldKind, msg cbor.RawMessage) (any, error) {
	switch kind {
	case kindBool:
		var v bool
		err := decMode.Unmarshal(msg, &v)
		return v, err
	case kindUint:
		var v uint64
		err := decMode.Unmarshal(msg, &v)
		return v, err
	case kindInt:
		var v int64
		err := decMode.Unmarshal(msg, &v)
		return v, err
	case kindString:
		var v string
		err := decMode.Unmarshal(msg, &v)
		return v, err
	case kindUintList:
		var v []uint64
		err := decMode.Unmarshal(msg, &v)
		return v, err
	}
	return nil, fmt.Errorf("unsupported field kind %d", kind)
}

// normalize converts a caller supplied value to the canonical Go type for
// its field and checks its domain.
func normalize(spec fieldSpec, v any) (any, error) {
	var (
		out any
		err error
	)
	switch spec.kind {
	case kindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", v)
		}
		out = b
	case kindUint:
		var u uint64
		u, err = toUint(v)
		if err != nil {
			return nil, err
		}
		if u < spec.min || (spec.max != 0 && u > spec.max) {
			return nil, fmt.Errorf("value %d out of range %d-%d", u, spec.min, spec.max)
		}
		out = u
	case kindInt:
		rv := reflect.ValueOf(v)
		switch {
		case v != nil && rv.CanInt():
			out = rv.Int()
		case v != nil && rv.CanUint():
			out = int64(rv.Uint())
		default:
			return nil, fmt.Errorf("want integer, got %T", v)
		}
	case kindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		out = s
	case kindUintList:
		rv := reflect.ValueOf(v)
		if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return nil, fmt.Errorf("want list, got %T", v)
		}
		list := make([]uint64, rv.Len())
		for i := range list {
			list[i], err = toUint(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}
		out = list
	}
	if spec.check != nil {
		if err := spec.check(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func toUint(v any) (uint64, error) {
	if v == nil {
		return 0, fmt.Errorf("want unsigned integer, got nil")
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanUint():
		return rv.Uint(), nil
	case rv.CanInt():
		if rv.Int() < 0 {
			return 0, fmt.Errorf("negative value %d", rv.Int())
		}
		return uint64(rv.Int()), nil
	}
	return 0, fmt.Errorf("want unsigned integer, got %T", v)
}
