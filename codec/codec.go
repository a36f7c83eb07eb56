// Package codec maps application values to memcached (flags, payload) pairs and back.
//
// The flags field of a stored item is opaque to the server. Codecs use it as a
// type tag so that a value read back can be decoded the same way it was encoded.
package codec

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

// Type tags written in the flags field.
const (
	// FlagScalar marks a scalar stored verbatim as text.
	FlagScalar uint32 = 0
	// FlagBytes marks a binary payload stored verbatim (Raw codec).
	FlagBytes uint32 = 1
	// FlagStructured marks a structured value serialized as JSON.
	FlagStructured uint32 = 4
	// FlagCompressed is OR-ed into the tag when the payload is snappy-compressed.
	FlagCompressed uint32 = 1 << 8
)

// Codec converts values to and from their wire representation.
//
// Implementations must round-trip: Deserialize(Serialize(v)) must be equal to v
// for every value the application intends to store.
type Codec interface {
	Serialize(value any) (flags uint32, payload []byte, err error)
	Deserialize(flags uint32, payload []byte) (any, error)
}

// Default passes scalars through unmodified with tag 0 and serializes
// structured values (maps, slices, structs) as JSON with tag 4.
//
// Scalars are stored as their textual form and are read back as strings.
// Payloads under any tag other than 1 and 4, such as items written by other
// clients, are read back as strings too.
// Structured values are read back as the generic JSON shapes
// (map[string]any, []any, float64, ...).
type Default struct{}

var _ Codec = Default{}

func (Default) Serialize(value any) (uint32, []byte, error) {
	switch v := value.(type) {
	case nil:
		return FlagScalar, []byte{}, nil
	case string:
		return FlagScalar, []byte(v), nil
	case []byte:
		return FlagScalar, v, nil
	case bool:
		if v {
			return FlagScalar, []byte("1"), nil
		}
		return FlagScalar, []byte{}, nil
	case int:
		return FlagScalar, strconv.AppendInt(nil, int64(v), 10), nil
	case int8:
		return FlagScalar, strconv.AppendInt(nil, int64(v), 10), nil
	case int16:
		return FlagScalar, strconv.AppendInt(nil, int64(v), 10), nil
	case int32:
		return FlagScalar, strconv.AppendInt(nil, int64(v), 10), nil
	case int64:
		return FlagScalar, strconv.AppendInt(nil, v, 10), nil
	case uint:
		return FlagScalar, strconv.AppendUint(nil, uint64(v), 10), nil
	case uint8:
		return FlagScalar, strconv.AppendUint(nil, uint64(v), 10), nil
	case uint16:
		return FlagScalar, strconv.AppendUint(nil, uint64(v), 10), nil
	case uint32:
		return FlagScalar, strconv.AppendUint(nil, uint64(v), 10), nil
	case uint64:
		return FlagScalar, strconv.AppendUint(nil, v, 10), nil
	case float32:
		return FlagScalar, strconv.AppendFloat(nil, float64(v), 'g', -1, 32), nil
	case float64:
		return FlagScalar, strconv.AppendFloat(nil, v, 'g', -1, 64), nil
	}

	switch reflect.TypeOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
		payload, err := json.Marshal(value)
		if err != nil {
			return 0, nil, errors.Wrap(err, "codec: serialize structured value")
		}
		return FlagStructured, payload, nil
	}

	return 0, nil, fmt.Errorf("codec: unsupported value type %T", value)
}

func (Default) Deserialize(flags uint32, payload []byte) (any, error) {
	switch flags {
	case FlagBytes:
		return payload, nil
	case FlagStructured:
		var value any
		if err := json.Unmarshal(payload, &value); err != nil {
			return nil, errors.Wrap(err, "codec: deserialize structured value")
		}
		return value, nil
	default:
		return string(payload), nil
	}
}

// Raw is a binary-safe pass-through codec: it accepts strings and byte slices
// and always reads values back as []byte.
type Raw struct{}

var _ Codec = Raw{}

func (Raw) Serialize(value any) (uint32, []byte, error) {
	switch v := value.(type) {
	case nil:
		return FlagBytes, []byte{}, nil
	case []byte:
		return FlagBytes, v, nil
	case string:
		return FlagBytes, []byte(v), nil
	default:
		return 0, nil, fmt.Errorf("codec: raw codec cannot serialize %T", value)
	}
}

func (Raw) Deserialize(_ uint32, payload []byte) (any, error) {
	return payload, nil
}
