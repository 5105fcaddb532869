package nbtree

import (
	"encoding/binary"
	"fmt"
	"math"
)

// childEntry is one row of a superblock's index: a child's address plus
// its rolled-up aggregate and its position among its siblings (I3).
type childEntry struct {
	Addr        LogicAddr
	Rollup      Rollup
	FanoutIndex int
}

const childEntrySize = 8 /*addr*/ + 8 /*tmin*/ + 8 /*tmax*/ + 8 /*count*/ + 8 + 8 + 8 + 8 + 8 /*min,max,sum,first,last*/ + 2 /*fanout_index*/

// Superblock is a level>=1 node: a fixed-fanout index over up to F children
// (leaves at level 1, lower superblocks above that), each carrying its own
// rollup so aggregate() can avoid descending into fully-covered children
// (design doc §4.3, the "decisive performance property" of §4.5).
type Superblock struct {
	paramId     ParamId
	level       int
	prevAddr    LogicAddr
	fanoutIndex int

	children []childEntry
	rollup   Rollup
	sealed   bool
}

// NewSuperblock starts an empty superblock at the given level (>=1).
func NewSuperblock(paramId ParamId, level int, prevAddr LogicAddr, fanoutIndex int) *Superblock {
	return &Superblock{
		paramId:     paramId,
		level:       level,
		prevAddr:    prevAddr,
		fanoutIndex: fanoutIndex,
		rollup:      emptyRollup(),
	}
}

// AppendChild indexes one more child. It rejects a child whose tmin does
// not strictly follow the current node's tmax (I3 ordering) and reports
// errOverflow once fanout children are already indexed.
func (s *Superblock) AppendChild(addr LogicAddr, child Rollup, fanout int) error {
	if s.sealed {
		return fmt.Errorf("nbtree: append to sealed superblock: %w", ErrBadData)
	}
	if len(s.children) >= fanout {
		return errOverflow
	}
	if s.rollup.Count > 0 && child.TMin <= s.rollup.TMax {
		return fmt.Errorf("nbtree: child tmin %d does not follow tmax %d: %w", child.TMin, s.rollup.TMax, ErrBadData)
	}
	s.children = append(s.children, childEntry{Addr: addr, Rollup: child, FanoutIndex: len(s.children)})
	s.rollup.Combine(child)
	return nil
}

// Nelements reports how many children are currently indexed.
func (s *Superblock) Nelements() int { return len(s.children) }

// RollupSnapshot returns the superblock's current aggregate summary.
func (s *Superblock) RollupSnapshot() Rollup { return s.rollup }

// Range returns a descend-and-filter iterator: children whose [tmin,tmax]
// does not overlap [begin,end) are skipped; overlapping children are
// loaded from store and concatenated in scan order (design doc §4.3).
func (s *Superblock) Range(begin, end Timestamp, store BlockStore) Iterator {
	if begin == end {
		return emptyIterator{}
	}
	lo, hi := normalizeRange(begin, end)
	order := s.scanOrder(begin, end)
	its := make([]Iterator, 0, len(order))
	for _, idx := range order {
		c := s.children[idx]
		if !c.Rollup.overlaps(lo, hi) {
			continue
		}
		it, err := s.descendRange(c, begin, end, store)
		if err != nil {
			its = append(its, errorIterator{err: err})
			break
		}
		its = append(its, it)
	}
	return newChainIterator(its...)
}

// Aggregate combines children's rollups directly for any child fully
// inside [begin,end); partially-overlapping children are descended into.
// This is the "decisive performance property" of design doc §4.5: a fully
// covered child, however deep its own subtree, contributes in O(1) via its
// stored rollup alone.
func (s *Superblock) Aggregate(begin, end Timestamp, fn AggFunc, store BlockStore) Iterator {
	if begin == end {
		return emptyIterator{}
	}
	r, err := s.RollupOverRange(begin, end, store)
	if err != nil {
		return errorIterator{err: err}
	}
	return newAggregateIterator(r, fn)
}

// RollupOverRange folds the subtree's rollup over [begin,end), taking the
// O(1) shortcut (design doc §4.5) for every child entirely inside the
// range and descending only into children that straddle a boundary.
func (s *Superblock) RollupOverRange(begin, end Timestamp, store BlockStore) (Rollup, error) {
	lo, hi := normalizeRange(begin, end)
	acc := emptyRollup()
	for _, c := range s.children {
		if !c.Rollup.overlaps(lo, hi) {
			continue
		}
		if c.Rollup.within(lo, hi) {
			acc.Combine(c.Rollup)
			continue
		}
		node, err := loadNode(store, s.paramId, c.Addr)
		if err != nil {
			return Rollup{}, err
		}
		var part Rollup
		switch n := node.(type) {
		case *Leaf:
			part = n.RollupOverRange(begin, end)
		case *Superblock:
			part, err = n.RollupOverRange(begin, end, store)
			if err != nil {
				return Rollup{}, err
			}
		default:
			return Rollup{}, fmt.Errorf("nbtree: unknown node kind at %d: %w", c.Addr, ErrCorruption)
		}
		acc.Combine(part)
	}
	return acc, nil
}

// scanOrder returns child indices in scan direction: ascending for
// forward, descending for backward (I3: children are already stored in
// insertion/time order).
func (s *Superblock) scanOrder(begin, end Timestamp) []int {
	order := make([]int, len(s.children))
	if forward(begin, end) {
		for i := range order {
			order[i] = i
		}
	} else {
		for i := range order {
			order[i] = len(s.children) - 1 - i
		}
	}
	return order
}

func (s *Superblock) descendRange(c childEntry, begin, end Timestamp, store BlockStore) (Iterator, error) {
	node, err := loadNode(store, s.paramId, c.Addr)
	if err != nil {
		return nil, err
	}
	switch n := node.(type) {
	case *Leaf:
		return n.Range(begin, end), nil
	case *Superblock:
		return n.Range(begin, end, store), nil
	default:
		return nil, fmt.Errorf("nbtree: unknown node kind at %d: %w", c.Addr, ErrCorruption)
	}
}

// Seal encodes the child index as a block and writes it to the store. It
// is single-use.
func (s *Superblock) Seal(store BlockStore) (LogicAddr, error) {
	if s.sealed {
		return EmptyAddr, fmt.Errorf("nbtree: superblock already sealed: %w", ErrBadData)
	}
	payload := make([]byte, 0, len(s.children)*childEntrySize)
	for _, c := range s.children {
		payload = appendChildEntry(payload, c)
	}
	blk := &Block{
		Header: Header{
			Kind:        KindSuperblock,
			Level:       uint8(s.level),
			FanoutIndex: uint16(s.fanoutIndex),
			ParamId:     s.paramId,
			PrevAddr:    s.prevAddr,
			TMin:        s.rollup.TMin,
			TMax:        s.rollup.TMax,
			Count:       s.rollup.Count,
			Min:         s.rollup.Min,
			Max:         s.rollup.Max,
			Sum:         s.rollup.Sum,
			First:       s.rollup.First,
			Last:        s.rollup.Last,
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
	s.sealed = true
	return addr, nil
}

func appendChildEntry(buf []byte, c childEntry) []byte {
	var tmp [childEntrySize]byte
	binary.BigEndian.PutUint64(tmp[0:8], uint64(c.Addr))
	binary.BigEndian.PutUint64(tmp[8:16], uint64(c.Rollup.TMin))
	binary.BigEndian.PutUint64(tmp[16:24], uint64(c.Rollup.TMax))
	binary.BigEndian.PutUint64(tmp[24:32], c.Rollup.Count)
	binary.BigEndian.PutUint64(tmp[32:40], math.Float64bits(c.Rollup.Min))
	binary.BigEndian.PutUint64(tmp[40:48], math.Float64bits(c.Rollup.Max))
	binary.BigEndian.PutUint64(tmp[48:56], math.Float64bits(c.Rollup.Sum))
	binary.BigEndian.PutUint64(tmp[56:64], math.Float64bits(c.Rollup.First))
	binary.BigEndian.PutUint64(tmp[64:72], math.Float64bits(c.Rollup.Last))
	binary.BigEndian.PutUint16(tmp[72:74], uint16(c.FanoutIndex))
	return append(buf, tmp[:]...)
}

func decodeChildEntry(buf []byte) childEntry {
	return childEntry{
		Addr: LogicAddr(binary.BigEndian.Uint64(buf[0:8])),
		Rollup: Rollup{
			TMin:  Timestamp(binary.BigEndian.Uint64(buf[8:16])),
			TMax:  Timestamp(binary.BigEndian.Uint64(buf[16:24])),
			Count: binary.BigEndian.Uint64(buf[24:32]),
			Min:   math.Float64frombits(binary.BigEndian.Uint64(buf[32:40])),
			Max:   math.Float64frombits(binary.BigEndian.Uint64(buf[40:48])),
			Sum:   math.Float64frombits(binary.BigEndian.Uint64(buf[48:56])),
			First: math.Float64frombits(binary.BigEndian.Uint64(buf[56:64])),
			Last:  math.Float64frombits(binary.BigEndian.Uint64(buf[64:72])),
		},
		FanoutIndex: int(binary.BigEndian.Uint16(buf[72:74])),
	}
}

// decodeSuperblock reconstructs a read-only Superblock from a previously
// sealed block.
func decodeSuperblock(hdr Header, payload []byte) (*Superblock, error) {
	if len(payload)%childEntrySize != 0 {
		return nil, fmt.Errorf("nbtree: superblock payload not a multiple of entry size: %w", ErrCorruption)
	}
	n := len(payload) / childEntrySize
	s := &Superblock{
		paramId:     hdr.ParamId,
		level:       int(hdr.Level),
		prevAddr:    hdr.PrevAddr,
		fanoutIndex: int(hdr.FanoutIndex),
		sealed:      true,
		children:    make([]childEntry, 0, n),
		rollup: Rollup{
			TMin: hdr.TMin, TMax: hdr.TMax, Count: hdr.Count,
			Min: hdr.Min, Max: hdr.Max, Sum: hdr.Sum,
			First: hdr.First, Last: hdr.Last,
		},
	}
	for i := 0; i < n; i++ {
		s.children = append(s.children, decodeChildEntry(payload[i*childEntrySize:(i+1)*childEntrySize]))
	}
	return s, nil
}

// errorIterator surfaces a single error (e.g. a missing/corrupt block hit
// during descent) through the next Read call, per design doc §4.5
// "Failure semantics".
type errorIterator struct{ err error }

func (e errorIterator) Read(tsOut []Timestamp, valOut []Value) (int, error) { return 0, e.err }
