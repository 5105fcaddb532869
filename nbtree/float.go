package nbtree

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FloatArrayEncodeAll implements the XOR-of-previous float compression
// scheme used by Facebook's Gorilla, adapted from the bit-packing layout in
// the teacher engine's batch_float.go but driven by an explicit bitWriter
// and a leading 4-byte count instead of a NaN sentinel, so it stays lossless
// for inputs that legitimately contain NaN.
func FloatArrayEncodeAll(src []Value) []byte {
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(src)))
	if len(src) == 0 {
		return hdr
	}

	w := newBitWriter()
	prev := math.Float64bits(src[0])
	w.writeBits(prev, 64)

	var prevLeading, prevTrailing uint = 65, 0 // 65 is "unset"
	for _, x := range src[1:] {
		cur := math.Float64bits(x)
		xor := cur ^ prev
		if xor == 0 {
			w.writeBit(false)
			prev = cur
			continue
		}
		w.writeBit(true)

		leading := leadingZeros64(xor)
		trailing := trailingZeros64(xor)
		if leading > 31 {
			leading = 31 // clamp, matches the 5-bit field below
		}

		if prevLeading != 65 && leading >= prevLeading && trailing >= prevTrailing {
			w.writeBit(false)
			sig := 64 - prevLeading - prevTrailing
			w.writeBits(xor>>prevTrailing, sig)
		} else {
			w.writeBit(true)
			w.writeBits(uint64(leading), 5)
			sig := 64 - leading - trailing
			if sig == 64 {
				w.writeBits(0, 6)
			} else {
				w.writeBits(uint64(sig), 6)
			}
			w.writeBits(xor>>trailing, sig)
			prevLeading, prevTrailing = leading, trailing
		}
		prev = cur
	}
	return append(hdr, w.bytes()...)
}

// FloatArrayDecodeAll reverses FloatArrayEncodeAll.
func FloatArrayDecodeAll(b []byte) ([]Value, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("nbtree: float stream too short: %w", ErrCorruption)
	}
	n := int(binary.BigEndian.Uint32(b[:4]))
	out := make([]Value, 0, n)
	if n == 0 {
		return out, nil
	}
	r := newBitReader(b[4:])
	first, err := r.readBits(64)
	if err != nil {
		return nil, fmt.Errorf("nbtree: decode float stream: %w", err)
	}
	prev := first
	out = append(out, math.Float64frombits(prev))

	var prevLeading, prevTrailing uint = 65, 0
	for i := 1; i < n; i++ {
		same, err := r.readBit()
		if err != nil {
			return nil, fmt.Errorf("nbtree: decode float stream: %w", err)
		}
		if !same {
			out = append(out, math.Float64frombits(prev))
			continue
		}
		newWindow, err := r.readBit()
		if err != nil {
			return nil, fmt.Errorf("nbtree: decode float stream: %w", err)
		}
		var leading, trailing, sig uint
		if !newWindow {
			if prevLeading == 65 {
				return nil, fmt.Errorf("nbtree: decode float stream: no prior window: %w", ErrCorruption)
			}
			leading, trailing = prevLeading, prevTrailing
			sig = 64 - leading - trailing
		} else {
			lv, err := r.readBits(5)
			if err != nil {
				return nil, fmt.Errorf("nbtree: decode float stream: %w", err)
			}
			sv, err := r.readBits(6)
			if err != nil {
				return nil, fmt.Errorf("nbtree: decode float stream: %w", err)
			}
			leading = uint(lv)
			sig = uint(sv)
			if sig == 0 {
				sig = 64
			}
			trailing = 64 - leading - sig
			prevLeading, prevTrailing = leading, trailing
		}
		bits, err := r.readBits(sig)
		if err != nil {
			return nil, fmt.Errorf("nbtree: decode float stream: %w", err)
		}
		cur := prev ^ (bits << trailing)
		prev = cur
		out = append(out, math.Float64frombits(cur))
	}
	return out, nil
}
