// Package simple8b implements the 64-bit integer packing scheme described by
// Ann and Moffat in "Index compression using 64-bit words", Softw. Pract.
// Exper. 2010; 40:131-147.
//
// It packs runs of small non-negative integers (0 <= v < 1<<60) into 64-bit
// words using a 4-bit selector plus up to 60 payload bits, trading a few
// wasted bits for a fixed-width, branch-light decode. nbtree uses it to pack
// the delta-of-delta residuals produced by its timestamp codec.
package simple8b

import (
	"encoding/binary"
	"fmt"
)

// MaxValue is the largest value that can be packed.
const MaxValue = (1 << 60) - 1

// Encoder packs a stream of uint64s into 8-byte words.
type Encoder struct {
	buf   []uint64
	h, t  int
	bytes []byte
	bp    int
	b     [8]byte
}

// NewEncoder returns an Encoder ready to accept values via Write.
func NewEncoder() *Encoder {
	return &Encoder{
		buf:   make([]uint64, 240),
		bytes: make([]byte, 0, 128),
	}
}

// Write appends v to the encoder, flushing internally as needed. v must be
// in [0, MaxValue].
func (e *Encoder) Write(v uint64) error {
	if v > MaxValue {
		return fmt.Errorf("simple8b: value %d exceeds MaxValue", v)
	}
	if e.t >= len(e.buf) {
		if err := e.flush(); err != nil {
			return err
		}
	}
	if e.t >= len(e.buf) {
		copy(e.buf, e.buf[e.h:e.t])
		e.t -= e.h
		e.h = 0
	}
	e.buf[e.t] = v
	e.t++
	return nil
}

func (e *Encoder) flush() error {
	if e.t == e.h {
		return nil
	}
	encoded, n, err := encode(e.buf[e.h:e.t])
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(e.b[:], encoded)
	e.bytes = append(e.bytes, e.b[:]...)
	e.bp += 8
	e.h += n
	if e.h == e.t {
		e.h, e.t = 0, 0
	}
	return nil
}

// Bytes flushes any buffered values and returns the packed byte stream.
// The Encoder must not be reused after calling Bytes.
func (e *Encoder) Bytes() ([]byte, error) {
	for e.t > e.h {
		if err := e.flush(); err != nil {
			return nil, err
		}
	}
	return e.bytes, nil
}

// Decoder unpacks a byte stream produced by Encoder back into uint64s.
type Decoder struct {
	bytes []byte
	buf   [240]uint64
	i, n  int
}

// NewDecoder returns a Decoder over b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{bytes: b, i: -1}
}

// Next advances to the next value, returning false once the stream is
// exhausted.
func (d *Decoder) Next() bool {
	d.i++
	if d.i >= d.n {
		if !d.readWord() {
			return false
		}
	}
	return d.i < d.n
}

// Read returns the value at the current position. Only valid after Next
// returned true.
func (d *Decoder) Read() uint64 {
	return d.buf[d.i]
}

func (d *Decoder) readWord() bool {
	if len(d.bytes) < 8 {
		return false
	}
	v := binary.BigEndian.Uint64(d.bytes[:8])
	d.bytes = d.bytes[8:]
	n, err := decode(&d.buf, v)
	if err != nil {
		return false
	}
	d.n = n
	d.i = 0
	return d.n > 0
}

type packing struct {
	n, bits int
	pack    func([]uint64) uint64
	unpack  func(uint64, *[240]uint64)
}

var selectors = [16]packing{
	{240, 0, pack240, unpack240},
	{120, 0, pack120, unpack120},
	{60, 1, pack60, unpack60},
	{30, 2, pack30, unpack30},
	{20, 3, pack20, unpack20},
	{15, 4, pack15, unpack15},
	{12, 5, pack12, unpack12},
	{10, 6, pack10, unpack10},
	{8, 7, pack8, unpack8},
	{7, 8, pack7, unpack7},
	{6, 10, pack6, unpack6},
	{5, 12, pack5, unpack5},
	{4, 15, pack4, unpack4},
	{3, 20, pack3, unpack3},
	{2, 30, pack2, unpack2},
	{1, 60, pack1, unpack1},
}

func canPack(src []uint64, n, bits int) bool {
	if len(src) < n {
		return false
	}
	if bits == 0 {
		for i := 0; i < n; i++ {
			if src[i] != 1 {
				return false
			}
		}
		return true
	}
	max := uint64(1)<<uint(bits) - 1
	for i := 0; i < n; i++ {
		if src[i] > max {
			return false
		}
	}
	return true
}

// encode packs as many leading values of src as possible into one word,
// returning the word and how many values it consumed.
func encode(src []uint64) (uint64, int, error) {
	for sel, p := range selectors {
		if canPack(src, p.n, p.bits) {
			return p.pack(src[:p.n]) | uint64(sel)<<60, p.n, nil
		}
	}
	if len(src) == 0 {
		return 0, 0, nil
	}
	return 0, 0, fmt.Errorf("simple8b: value out of range: %v", src[0])
}

func decode(dst *[240]uint64, v uint64) (int, error) {
	sel := v >> 60
	if sel >= 16 {
		return 0, fmt.Errorf("simple8b: invalid selector %d", sel)
	}
	selectors[sel].unpack(v, dst)
	return selectors[sel].n, nil
}
