package nbtree

import (
	"encoding/binary"
	"fmt"

	"github.com/nbtreedb/nbtree/pkg/encoding/simple8b"
)

// TimeArrayEncodeAll compresses a strictly increasing run of timestamps
// using delta-of-delta encoding: the first timestamp is stored literally,
// and the first delta and every later delta-of-delta are zigzag-encoded
// and packed with simple8b. This generalizes the single-value delta coding
// the teacher's timestamp codec is documented to use
// (tsdb/engine/tsm1/timestamp_test.go) to the batch form the leaf payload
// needs.
func TimeArrayEncodeAll(src []Timestamp) ([]byte, error) {
	hdr := make([]byte, 4+8)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(src)))
	if len(src) == 0 {
		return hdr, nil
	}
	binary.BigEndian.PutUint64(hdr[4:12], uint64(src[0]))
	if len(src) == 1 {
		return hdr, nil
	}

	enc := simple8b.NewEncoder()
	prevTS := src[0]
	var prevDelta int64
	for i := 1; i < len(src); i++ {
		if src[i] <= prevTS {
			return nil, fmt.Errorf("nbtree: timestamps not strictly increasing at %d: %w", i, ErrBadData)
		}
		delta := int64(src[i] - prevTS)
		var residual int64
		if i == 1 {
			residual = delta
		} else {
			residual = delta - prevDelta
		}
		if err := enc.Write(zigzagEncode(residual)); err != nil {
			return nil, fmt.Errorf("nbtree: pack timestamp residual: %w", err)
		}
		prevDelta = delta
		prevTS = src[i]
	}
	body, err := enc.Bytes()
	if err != nil {
		return nil, fmt.Errorf("nbtree: flush timestamp encoder: %w", err)
	}
	return append(hdr, body...), nil
}

// TimeArrayDecodeAll reverses TimeArrayEncodeAll.
func TimeArrayDecodeAll(b []byte) ([]Timestamp, error) {
	if len(b) < 12 {
		return nil, fmt.Errorf("nbtree: timestamp stream too short: %w", ErrCorruption)
	}
	n := int(binary.BigEndian.Uint32(b[0:4]))
	out := make([]Timestamp, 0, n)
	if n == 0 {
		return out, nil
	}
	first := Timestamp(binary.BigEndian.Uint64(b[4:12]))
	out = append(out, first)
	if n == 1 {
		return out, nil
	}

	dec := simple8b.NewDecoder(b[12:])
	prevTS := first
	var prevDelta int64
	for i := 1; i < n; i++ {
		if !dec.Next() {
			return nil, fmt.Errorf("nbtree: truncated timestamp stream: %w", ErrCorruption)
		}
		residual := zigzagDecode(dec.Read())
		var delta int64
		if i == 1 {
			delta = residual
		} else {
			delta = prevDelta + residual
		}
		ts := prevTS + Timestamp(delta)
		if ts <= prevTS {
			return nil, fmt.Errorf("nbtree: decoded non-monotonic timestamp: %w", ErrCorruption)
		}
		out = append(out, ts)
		prevDelta = delta
		prevTS = ts
	}
	return out, nil
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}
