package codec

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Snappy wraps another codec and compresses large payloads.
//
// Payloads longer than MinSize are compressed when the compressed form is at
// most MinRatio of the original size. Compressed items carry FlagCompressed in
// addition to the inner codec's tag.
type Snappy struct {
	Codec    Codec
	MinSize  int
	MinRatio float64
}

var _ Codec = Snappy{}

// NewSnappy returns a Snappy codec around inner with the usual thresholds.
func NewSnappy(inner Codec) Snappy {
	return Snappy{
		Codec:    inner,
		MinSize:  32,
		MinRatio: 0.83,
	}
}

func (s Snappy) inner() Codec {
	if s.Codec == nil {
		return Default{}
	}
	return s.Codec
}

func (s Snappy) Serialize(value any) (uint32, []byte, error) {
	flags, payload, err := s.inner().Serialize(value)
	if err != nil {
		return 0, nil, err
	}

	// Only compress values that are large enough to be worthwhile.
	if len(payload) <= s.MinSize {
		return flags, payload, nil
	}

	compressed := snappy.Encode(nil, payload)
	if s.MinRatio > 0 && float64(len(compressed))/float64(len(payload)) > s.MinRatio {
		return flags, payload, nil
	}

	return flags | FlagCompressed, compressed, nil
}

func (s Snappy) Deserialize(flags uint32, payload []byte) (any, error) {
	if flags&FlagCompressed == 0 {
		return s.inner().Deserialize(flags, payload)
	}

	decoded, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, errors.Wrap(err, "codec: snappy decode")
	}

	return s.inner().Deserialize(flags&^FlagCompressed, decoded)
}
