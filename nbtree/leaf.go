package nbtree

import (
	"fmt"
)

// Leaf is the level-0 node: an append-only, in-memory buffer of (ts, val)
// pairs plus the running rollup over them, eventually sealed into an
// immutable Block. Mirrors NBTreeLeaf in nbtree.cpp, minus its zero-copy
// on-block buffer writer — here the buffer stays decoded in memory and is
// only encoded once, at Seal, since the spec leaves the exact codec an
// implementation choice (design doc §4.2).
type Leaf struct {
	paramId     ParamId
	prevAddr    LogicAddr
	fanoutIndex int

	ts   []Timestamp
	vals []Value

	rollup Rollup
	sealed bool

	// approxBytes tracks the worst-case encoded size of the buffer so
	// Append can reject an overflowing point without re-encoding on
	// every call.
	approxBytes int
}

// NewLeaf starts a fresh, empty leaf at the given fanout position, chained
// from prevAddr (EmptyAddr if this is the first leaf at level 0).
func NewLeaf(paramId ParamId, prevAddr LogicAddr, fanoutIndex int) *Leaf {
	return &Leaf{
		paramId:     paramId,
		prevAddr:    prevAddr,
		fanoutIndex: fanoutIndex,
		rollup:      emptyRollup(),
	}
}

// Append adds one point to the leaf's buffer. It rejects ts <= last
// timestamp with ErrBadData (I1) and reports overflow via the private
// errOverflow sentinel once the next point would not fit in one block;
// overflow never escapes ExtentsList (design doc §7).
func (l *Leaf) Append(ts Timestamp, val Value, blockSize int) error {
	if l.sealed {
		return fmt.Errorf("nbtree: append to sealed leaf: %w", ErrBadData)
	}
	if l.rollup.Count > 0 && ts <= l.ts[len(l.ts)-1] {
		return fmt.Errorf("nbtree: timestamp %d out of order: %w", ts, ErrBadData)
	}
	if HeaderSize+l.approxBytes+worstCaseBytesPerPoint > blockSize {
		return errOverflow
	}
	l.ts = append(l.ts, ts)
	l.vals = append(l.vals, val)
	l.rollup.foldPoint(ts, val)
	l.approxBytes += worstCaseBytesPerPoint
	return nil
}

// Nelements reports how many points are currently buffered.
func (l *Leaf) Nelements() int { return len(l.ts) }

// RollupSnapshot returns the leaf's current aggregate summary.
func (l *Leaf) RollupSnapshot() Rollup { return l.rollup }

// Range returns an iterator over this leaf's buffer honoring the half-open
// (forward) / half-open-inverted (backward) bound semantics of design doc
// §4.2. A snapshot of the buffer is taken here, not lazily on Read, so a
// concurrent Append started after this call never leaks in (design doc §5
// "Iterators see a snapshot taken at construction").
func (l *Leaf) Range(begin, end Timestamp) Iterator {
	if begin == end {
		return emptyIterator{}
	}
	lo, hi := normalizeRange(begin, end)
	ts := make([]Timestamp, 0, len(l.ts))
	vals := make([]Value, 0, len(l.vals))
	fwd := forward(begin, end)
	for i, t := range l.ts {
		var in bool
		if fwd {
			in = t >= lo && t < hi
		} else {
			in = t > lo && t <= hi
		}
		if in {
			ts = append(ts, t)
			vals = append(vals, l.vals[i])
		}
	}
	return newSliceIterator(ts, vals, fwd)
}

// Aggregate returns a single-row iterator over fn applied to the rollup of
// the filtered range.
func (l *Leaf) Aggregate(begin, end Timestamp, fn AggFunc) Iterator {
	if begin == end {
		return emptyIterator{}
	}
	return newAggregateIterator(l.RollupOverRange(begin, end), fn)
}

// RollupOverRange folds only the points within [lo,hi) (both directions
// normalized), using the whole-leaf rollup directly when it already lies
// entirely inside the range.
func (l *Leaf) RollupOverRange(begin, end Timestamp) Rollup {
	lo, hi := normalizeRange(begin, end)
	if l.rollup.within(lo, hi) {
		return l.rollup
	}
	r := emptyRollup()
	for i, t := range l.ts {
		if t >= lo && t < hi {
			r.foldPoint(t, l.vals[i])
		}
	}
	return r
}

// Seal encodes and writes the leaf's buffer as an immutable block, and
// marks the leaf un-appendable. It is single-use (design doc §4.2).
func (l *Leaf) Seal(store BlockStore) (LogicAddr, error) {
	if l.sealed {
		return EmptyAddr, fmt.Errorf("nbtree: leaf already sealed: %w", ErrBadData)
	}
	payload, err := encodeLeafPayload(l.ts, l.vals)
	if err != nil {
		return EmptyAddr, err
	}
	blk := &Block{
		Header: Header{
			Kind:        KindLeaf,
			Level:       0,
			FanoutIndex: uint16(l.fanoutIndex),
			ParamId:     l.paramId,
			PrevAddr:    l.prevAddr,
			TMin:        l.rollup.TMin,
			TMax:        l.rollup.TMax,
			Count:       l.rollup.Count,
			Min:         l.rollup.Min,
			Max:         l.rollup.Max,
			Sum:         l.rollup.Sum,
			First:       l.rollup.First,
			Last:        l.rollup.Last,
		},
		Payload: payload,
	}
	raw, err := blk.Marshal(store.BlockSize())
	if err != nil {
		return EmptyAddr, err
	}
	addr, err := store.Append(raw)
	if err != nil {
		return EmptyAddr, err
	}
	l.sealed = true
	return addr, nil
}

// decodeLeaf reconstructs a read-only Leaf from a previously sealed block,
// used both by superblock descent and by force_init when recovering the
// tip of a level-0 chain.
func decodeLeaf(hdr Header, payload []byte) (*Leaf, error) {
	ts, vals, err := decodeLeafPayload(payload)
	if err != nil {
		return nil, err
	}
	l := &Leaf{
		paramId:     hdr.ParamId,
		prevAddr:    hdr.PrevAddr,
		fanoutIndex: int(hdr.FanoutIndex),
		ts:          ts,
		vals:        vals,
		sealed:      true,
		rollup: Rollup{
			TMin: hdr.TMin, TMax: hdr.TMax, Count: hdr.Count,
			Min: hdr.Min, Max: hdr.Max, Sum: hdr.Sum,
			First: hdr.First, Last: hdr.Last,
		},
	}
	return l, nil
}
