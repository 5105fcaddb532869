package nbtree

import "fmt"

// Extent is a level-k subtree builder: it owns exactly one open node (a
// Leaf at level 0, a Superblock above that) plus the bookkeeping needed to
// chain and reseat it once it seals (design doc §3 "Extent", §4.4).
type Extent struct {
	level   int
	paramId ParamId
	cfg     Config

	leaf  *Leaf       // non-nil iff level == 0
	super *Superblock // non-nil iff level > 0

	// chainPrevAddr/fanoutIndex reproduce nbtree.cpp's sibling-chain
	// bookkeeping: fanoutIndex is this node's position among its
	// parent's children-to-be, and wraps back to 0 every F seals,
	// dropping chainPrevAddr back to EmptyAddr at that point — by then
	// every sibling in the group is already indexed by the parent, so
	// the chain pointer has no further recovery use (see DESIGN.md).
	chainPrevAddr LogicAddr
	fanoutIndex   int

	// lastSealedAddr is this level's "roots" entry (I5): the address of
	// the most recently sealed node here, independent of fanout wrap.
	lastSealedAddr LogicAddr
}

// newEmptyExtent creates an Extent with no open node yet (Empty state,
// design doc §4.4); the node is materialized lazily on first append.
func newEmptyExtent(paramId ParamId, level int, cfg Config) *Extent {
	return &Extent{
		level:          level,
		paramId:        paramId,
		cfg:            cfg,
		chainPrevAddr:  EmptyAddr,
		lastSealedAddr: EmptyAddr,
	}
}

func (e *Extent) ensureLeaf() {
	if e.leaf == nil {
		e.leaf = NewLeaf(e.paramId, e.chainPrevAddr, e.fanoutIndex)
	}
}

func (e *Extent) ensureSuper() {
	if e.super == nil {
		e.super = NewSuperblock(e.paramId, e.level, e.chainPrevAddr, e.fanoutIndex)
	}
}

// continueFromPersistedRoot opens this (necessarily top-level) extent as a
// copy-on-write continuation of a previously sealed node n: its decoded
// content becomes this extent's open node, unsealed so further points or
// children can be appended, chained exactly as n itself was (same
// prevAddr, same fanoutIndex) since this is not a new sibling — it is n,
// still growing. n only reseals (to a brand new block address; the
// original stays immutable) once it overflows or Close forces it, at which
// point it is indistinguishable from any other sealed node.
func (e *Extent) continueFromPersistedRoot(n node, level int) error {
	switch v := n.(type) {
	case *Leaf:
		if level != 0 {
			return fmt.Errorf("nbtree: root is a leaf but expected level %d: %w", level, ErrCorruption)
		}
		v.sealed = false
		v.approxBytes = len(v.ts) * worstCaseBytesPerPoint
		e.leaf = v
		e.chainPrevAddr = v.prevAddr
		e.fanoutIndex = v.fanoutIndex
	case *Superblock:
		if level == 0 {
			return fmt.Errorf("nbtree: root is a superblock but expected leaf level: %w", ErrCorruption)
		}
		v.sealed = false
		e.super = v
		e.chainPrevAddr = v.prevAddr
		e.fanoutIndex = v.fanoutIndex
	default:
		return fmt.Errorf("nbtree: root decoded to unknown node type: %w", ErrCorruption)
	}
	return nil
}

func (e *Extent) advanceFanout(sealedAddr LogicAddr) {
	e.lastSealedAddr = sealedAddr
	e.fanoutIndex++
	if e.fanoutIndex >= e.cfg.Fanout {
		e.fanoutIndex = 0
		e.chainPrevAddr = EmptyAddr
	} else {
		e.chainPrevAddr = sealedAddr
	}
}

// AppendPoint appends (ts, val) to this level-0 extent. If the leaf
// overflows, it is sealed and a fresh one opened before retrying, exactly
// once (overflow is absorbed here per design doc §7; it never escapes to
// ExtentsList). The returned bool reports whether a seal happened, in
// which case addr/rollup describe the newly sealed leaf for the caller to
// cascade upward.
func (e *Extent) AppendPoint(ts Timestamp, val Value, store BlockStore) (addr LogicAddr, rollup Rollup, sealed bool, err error) {
	if e.level != 0 {
		return EmptyAddr, Rollup{}, false, fmt.Errorf("nbtree: AppendPoint on level %d extent: %w", e.level, ErrBadData)
	}
	e.ensureLeaf()
	appendErr := e.leaf.Append(ts, val, e.cfg.BlockSize)
	if appendErr == nil {
		return EmptyAddr, Rollup{}, false, nil
	}
	if appendErr != errOverflow {
		return EmptyAddr, Rollup{}, false, appendErr
	}
	sealedAddr, sealErr := e.leaf.Seal(store)
	if sealErr != nil {
		return EmptyAddr, Rollup{}, false, sealErr
	}
	sealedRollup := e.leaf.RollupSnapshot()
	e.advanceFanout(sealedAddr)
	e.leaf = NewLeaf(e.paramId, e.chainPrevAddr, e.fanoutIndex)
	if err := e.leaf.Append(ts, val, e.cfg.BlockSize); err != nil {
		return EmptyAddr, Rollup{}, false, fmt.Errorf("nbtree: point does not fit an empty leaf: %w", err)
	}
	return sealedAddr, sealedRollup, true, nil
}

// AppendChild appends a sealed child's (addr, rollup) to this level>0
// extent's open superblock, sealing and reseating it on overflow just as
// AppendPoint does for leaves.
func (e *Extent) AppendChild(addr LogicAddr, rollup Rollup, store BlockStore) (sealedAddr LogicAddr, sealedRollup Rollup, sealed bool, err error) {
	if e.level == 0 {
		return EmptyAddr, Rollup{}, false, fmt.Errorf("nbtree: AppendChild on leaf extent: %w", ErrBadData)
	}
	e.ensureSuper()
	appendErr := e.super.AppendChild(addr, rollup, e.cfg.Fanout)
	if appendErr == nil {
		return EmptyAddr, Rollup{}, false, nil
	}
	if appendErr != errOverflow {
		return EmptyAddr, Rollup{}, false, appendErr
	}
	newAddr, sealErr := e.super.Seal(store)
	if sealErr != nil {
		return EmptyAddr, Rollup{}, false, sealErr
	}
	newRollup := e.super.RollupSnapshot()
	e.advanceFanout(newAddr)
	e.super = NewSuperblock(e.paramId, e.level, e.chainPrevAddr, e.fanoutIndex)
	if err := e.super.AppendChild(addr, rollup, e.cfg.Fanout); err != nil {
		return EmptyAddr, Rollup{}, false, fmt.Errorf("nbtree: child does not fit an empty superblock: %w", err)
	}
	return newAddr, newRollup, true, nil
}

// Range returns this extent's contribution to a search, covering only its
// currently open node — every previously sealed sibling at this level is
// already indexed by the parent extent one level up (see DESIGN.md for why
// this is not a double count).
func (e *Extent) Range(begin, end Timestamp, store BlockStore) Iterator {
	if e.level == 0 {
		if e.leaf == nil {
			return emptyIterator{}
		}
		return e.leaf.Range(begin, end)
	}
	if e.super == nil {
		return emptyIterator{}
	}
	return e.super.Range(begin, end, store)
}

// Aggregate mirrors Range for the single-row aggregate path.
func (e *Extent) Aggregate(begin, end Timestamp, fn AggFunc, store BlockStore) Iterator {
	if e.level == 0 {
		if e.leaf == nil {
			return emptyIterator{}
		}
		return e.leaf.Aggregate(begin, end, fn)
	}
	if e.super == nil {
		return emptyIterator{}
	}
	return e.super.Aggregate(begin, end, fn, store)
}

// rollupOverRange returns this extent's own contribution over [begin,end)
// and whether it has an open node at all; ExtentsList.Aggregate folds these
// across levels. Computing is delegated to the node types.
func (e *Extent) rollupOverRange(begin, end Timestamp, store BlockStore) (Rollup, bool, error) {
	if e.level == 0 {
		if e.leaf == nil {
			return Rollup{}, false, nil
		}
		return e.leaf.RollupOverRange(begin, end), true, nil
	}
	if e.super == nil {
		return Rollup{}, false, nil
	}
	r, err := e.super.RollupOverRange(begin, end, store)
	return r, true, err
}

// isDirty reports whether this extent holds any not-yet-sealed data.
func (e *Extent) isDirty() bool {
	if e.level == 0 {
		return e.leaf != nil && e.leaf.Nelements() > 0
	}
	return e.super != nil && e.super.Nelements() > 0
}

// forceSeal seals whatever is currently open, even if not full, for
// close() (design doc §4.5 "close"). Returns ok=false if there was nothing
// to seal.
func (e *Extent) forceSeal(store BlockStore) (addr LogicAddr, rollup Rollup, ok bool, err error) {
	if !e.isDirty() {
		return EmptyAddr, Rollup{}, false, nil
	}
	if e.level == 0 {
		addr, err = e.leaf.Seal(store)
		if err != nil {
			return EmptyAddr, Rollup{}, false, err
		}
		rollup = e.leaf.RollupSnapshot()
	} else {
		addr, err = e.super.Seal(store)
		if err != nil {
			return EmptyAddr, Rollup{}, false, err
		}
		rollup = e.super.RollupSnapshot()
	}
	e.advanceFanout(addr)
	if e.level == 0 {
		e.leaf = NewLeaf(e.paramId, e.chainPrevAddr, e.fanoutIndex)
	} else {
		e.super = NewSuperblock(e.paramId, e.level, e.chainPrevAddr, e.fanoutIndex)
	}
	return addr, rollup, true, nil
}
