package nbtree

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
)

// encodeLeafPayload packs (ts, val) pairs into the on-disk leaf payload: the
// delta-of-delta timestamp stream and the Gorilla-XOR value stream, length-
// prefixed and snappy-compressed as one unit, the same second compression
// pass tsdb/engine/tsm1/tsm1.go applies to its serialized block buffer.
func encodeLeafPayload(ts []Timestamp, vals []Value) ([]byte, error) {
	tsBytes, err := TimeArrayEncodeAll(ts)
	if err != nil {
		return nil, err
	}
	valBytes := FloatArrayEncodeAll(vals)

	raw := make([]byte, 4+len(tsBytes)+len(valBytes))
	binary.BigEndian.PutUint32(raw[:4], uint32(len(tsBytes)))
	copy(raw[4:], tsBytes)
	copy(raw[4+len(tsBytes):], valBytes)

	return snappy.Encode(nil, raw), nil
}

// decodeLeafPayload reverses encodeLeafPayload.
func decodeLeafPayload(payload []byte) ([]Timestamp, []Value, error) {
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("nbtree: decompress leaf payload: %w", ErrCorruption)
	}
	if len(raw) < 4 {
		return nil, nil, fmt.Errorf("nbtree: leaf payload too short: %w", ErrCorruption)
	}
	tsLen := int(binary.BigEndian.Uint32(raw[:4]))
	if 4+tsLen > len(raw) {
		return nil, nil, fmt.Errorf("nbtree: leaf payload truncated: %w", ErrCorruption)
	}
	ts, err := TimeArrayDecodeAll(raw[4 : 4+tsLen])
	if err != nil {
		return nil, nil, err
	}
	vals, err := FloatArrayDecodeAll(raw[4+tsLen:])
	if err != nil {
		return nil, nil, err
	}
	if len(ts) != len(vals) {
		return nil, nil, fmt.Errorf("nbtree: leaf payload length mismatch (%d ts, %d vals): %w", len(ts), len(vals), ErrCorruption)
	}
	return ts, vals, nil
}

// worstCaseBytesPerPoint conservatively bounds the encoded size of a single
// (timestamp, value) pair: 8 raw bytes of timestamp residual plus up to ~10
// bytes of Gorilla control bits and value payload. Leaf.Append uses this
// bound, rather than re-encoding on every write, to decide Overflow.
const worstCaseBytesPerPoint = 18
