package nbtree

import "math"

// Rollup is the associative aggregate summary carried by every sealed node:
// the roll-up a superblock stores for each child (I2, I7), and what a leaf
// computes over its own buffer.
type Rollup struct {
	TMin  Timestamp
	TMax  Timestamp
	Count uint64
	Min   Value
	Max   Value
	Sum   Value
	First Value
	Last  Value
}

// emptyRollup is the zero value used before the first point is folded in;
// it mirrors nbtree.cpp's INIT_SUBTREE_REF sentinel extrema.
func emptyRollup() Rollup {
	return Rollup{
		Min: math.MaxFloat64,
		Max: -math.MaxFloat64,
	}
}

// foldPoint folds a single (ts, val) pair into the rollup. Points must be
// folded in increasing-timestamp order so First/Last stay correct.
func (r *Rollup) foldPoint(ts Timestamp, val Value) {
	if r.Count == 0 {
		r.TMin = ts
		r.First = val
	}
	r.TMax = ts
	r.Last = val
	r.Count++
	r.Sum += val
	if val < r.Min {
		r.Min = val
	}
	if val > r.Max {
		r.Max = val
	}
}

// Combine folds a child rollup into r, in append (left-to-right) order, the
// way a superblock's rollup is derived from its children's
// (nbtree.cpp's init_subtree_from_subtree): O(1) per child, no descent into
// leaves required.
func (r *Rollup) Combine(child Rollup) {
	if child.Count == 0 {
		return
	}
	if r.Count == 0 {
		r.TMin = child.TMin
		r.First = child.First
	}
	r.TMax = child.TMax
	r.Last = child.Last
	r.Count += child.Count
	r.Sum += child.Sum
	if child.Min < r.Min {
		r.Min = child.Min
	}
	if child.Max > r.Max {
		r.Max = child.Max
	}
}

// AggFunc names the aggregation functions a single-row aggregate iterator
// can compute.
type AggFunc int

const (
	AggSum AggFunc = iota
	AggMin
	AggMax
	AggCount
	AggFirst
	AggLast
)

func (f AggFunc) String() string {
	switch f {
	case AggSum:
		return "SUM"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	case AggCount:
		return "CNT"
	case AggFirst:
		return "FIRST"
	case AggLast:
		return "LAST"
	default:
		return "UNKNOWN"
	}
}

// Apply extracts the scalar named by f from the rollup.
func (r Rollup) Apply(f AggFunc) Value {
	switch f {
	case AggSum:
		return r.Sum
	case AggMin:
		return r.Min
	case AggMax:
		return r.Max
	case AggCount:
		return float64(r.Count)
	case AggFirst:
		return r.First
	case AggLast:
		return r.Last
	default:
		return 0
	}
}

// overlaps reports whether [TMin,TMax] intersects the half-open, direction-
// normalized query range [lo, hi).
func (r Rollup) overlaps(lo, hi Timestamp) bool {
	if r.Count == 0 {
		return false
	}
	return r.TMin < hi && r.TMax >= lo
}

// within reports whether [TMin,TMax] lies entirely inside [lo, hi) — the
// condition under which aggregate() may use the stored rollup directly
// instead of descending.
func (r Rollup) within(lo, hi Timestamp) bool {
	return r.Count > 0 && r.TMin >= lo && r.TMax < hi
}
