package nbtree

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// AppendResult reports whether an ExtentsList.Append triggered at least
// one seal, the signal callers use to snapshot GetRoots() for recovery
// (design doc §4.5).
type AppendResult int

const (
	AppendOK AppendResult = iota
	AppendFlushNeeded
)

func (r AppendResult) String() string {
	if r == AppendFlushNeeded {
		return "OK_FLUSH_NEEDED"
	}
	return "OK"
}

// ExtentsList is the per-series object: an ordered stack of Extents,
// E0 (leaf) .. Eh (top superblock), backed by one BlockStore (design doc
// §2, §3, §4.5).
type ExtentsList struct {
	mu sync.Mutex

	paramId ParamId
	store   BlockStore
	cfg     Config
	logger  *zap.Logger

	roots       []LogicAddr
	extents     []*Extent
	initialized bool
	closed      bool

	// lastWrittenAddr is the address of the most recent block this
	// instance itself appended for paramId, across every level. Single-
	// writer-per-series (design doc §5) makes this equivalent to "the
	// last block ever appended to the store for this series", which is
	// what RepairStatus needs (design doc §4.5) — see DESIGN.md for why
	// the store itself cannot answer that question without a per-series
	// index, which is out of this spec's scope (§1 Non-goals).
	lastWrittenAddr LogicAddr
}

// Option configures an ExtentsList at construction.
type Option func(*ExtentsList)

// WithLogger attaches a zap logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(el *ExtentsList) { el.logger = l }
}

// New constructs an ExtentsList without touching the store (design doc
// §4.5 "new... constructs without touching the store (deferred)"). Call
// ForceInit before Append/Search if roots is non-empty; for a brand new
// series (empty roots) ForceInit is optional — it is called implicitly on
// first use.
func New(paramId ParamId, roots []LogicAddr, store BlockStore, cfg Config, opts ...Option) *ExtentsList {
	el := &ExtentsList{
		paramId:         paramId,
		store:           store,
		cfg:             cfg.withDefaults(),
		roots:           append([]LogicAddr(nil), roots...),
		logger:          zap.NewNop(),
		lastWrittenAddr: EmptyAddr,
	}
	for _, o := range opts {
		o(el)
	}
	el.logger = el.logger.Named("nbtree.extentslist")
	return el
}

// ForceInit idempotently (re)builds each level's open node from el.roots
// (design doc §4.5). Every level below the top reseats a fresh open node
// chained after its persisted predecessor — a genuinely new sibling will
// be created there on the next overflow, which the existing parent level
// already knows how to index. The *top* level is different: there is no
// parent above it to have already indexed its content, so it is opened as
// a copy-on-write continuation of the persisted root itself (its decoded
// children/points, rollup, prevAddr and fanoutIndex carried over verbatim,
// just unsealed) — otherwise the persisted tree below it would be
// unreachable (Extent.Range only ever looks at the currently-open node)
// and tree height would spuriously increase on every reopen. Grounded on
// nbtree.cpp's open()/NBTreeSuperblockExtent construction from the
// persisted root (design doc §4.5, DESIGN.md).
func (el *ExtentsList) ForceInit() error {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.forceInitLocked()
}

func (el *ExtentsList) forceInitLocked() error {
	if el.initialized {
		return nil
	}
	// The real top is the highest level with a durably sealed root, not
	// simply the last array index: a level whose own seal never made it
	// into a persisted roots snapshot (an in-progress parent superblock
	// that was still being built, in memory only, when the process died)
	// leaves nothing but a trailing EmptyAddr behind. Every level below a
	// non-empty entry is guaranteed non-empty too (a level can only ever
	// receive a child after the level below it has sealed at least once).
	top := len(el.roots) - 1
	for top >= 0 && el.roots[top] == EmptyAddr {
		top--
	}
	if top < 0 {
		el.extents = []*Extent{newEmptyExtent(el.paramId, 0, el.cfg)}
		el.initialized = true
		return nil
	}
	extents := make([]*Extent, top+1)
	for level := 0; level <= top; level++ {
		addr := el.roots[level]
		ext := newEmptyExtent(el.paramId, level, el.cfg)
		n, err := loadNode(el.store, el.paramId, addr)
		if err != nil {
			return fmt.Errorf("nbtree: force_init level %d at %d: %w", level, addr, err)
		}
		if level == top {
			ext.lastSealedAddr = addr
			if err := ext.continueFromPersistedRoot(n, level); err != nil {
				return err
			}
			extents[level] = ext
			continue
		}
		var fanoutIndex int
		switch v := n.(type) {
		case *Leaf:
			if level != 0 {
				return fmt.Errorf("nbtree: root %d is a leaf but expected level %d: %w", addr, level, ErrCorruption)
			}
			fanoutIndex = v.fanoutIndex + 1
		case *Superblock:
			if level == 0 {
				return fmt.Errorf("nbtree: root %d is a superblock but expected leaf level: %w", addr, ErrCorruption)
			}
			fanoutIndex = v.fanoutIndex + 1
		default:
			return fmt.Errorf("nbtree: root %d decoded to unknown node type: %w", addr, ErrCorruption)
		}
		ext.lastSealedAddr = addr
		if fanoutIndex >= el.cfg.Fanout {
			ext.fanoutIndex = 0
			ext.chainPrevAddr = EmptyAddr
		} else {
			ext.fanoutIndex = fanoutIndex
			ext.chainPrevAddr = addr
		}
		if level == 0 {
			ext.leaf = NewLeaf(el.paramId, ext.chainPrevAddr, ext.fanoutIndex)
		} else {
			ext.super = NewSuperblock(el.paramId, level, ext.chainPrevAddr, ext.fanoutIndex)
		}
		extents[level] = ext
	}
	el.extents = extents
	el.initialized = true
	return nil
}

// Append extends the leaf extent with (ts, val); a seal cascades upward
// through as many levels as overflow (design doc §4.4 "cascade").
func (el *ExtentsList) Append(ts Timestamp, val Value) (AppendResult, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if !el.initialized {
		if err := el.forceInitLocked(); err != nil {
			return AppendOK, err
		}
	}
	if el.closed {
		return AppendOK, fmt.Errorf("nbtree: append after close: %w", ErrBadData)
	}
	addr, rollup, sealed, err := el.extents[0].AppendPoint(ts, val, el.store)
	if err != nil {
		return AppendOK, err
	}
	if !sealed {
		return AppendOK, nil
	}
	el.lastWrittenAddr = addr
	el.logger.Debug("sealed leaf", zap.Uint64("addr", uint64(addr)), zap.Uint64("paramId", uint64(el.paramId)))
	if err := el.cascade(1, addr, rollup); err != nil {
		return AppendOK, err
	}
	return AppendFlushNeeded, nil
}

// cascade publishes a just-sealed (addr, rollup) into the parent level,
// growing the extents stack if this is the first time that level exists
// (design doc §4.4 "if level h+1 does not exist... a new level h+1 Extent
// is created").
func (el *ExtentsList) cascade(level int, addr LogicAddr, rollup Rollup) error {
	for level >= len(el.extents) {
		el.extents = append(el.extents, newEmptyExtent(el.paramId, len(el.extents), el.cfg))
	}
	sealedAddr, sealedRollup, sealed, err := el.extents[level].AppendChild(addr, rollup, el.store)
	if err != nil {
		return err
	}
	if !sealed {
		return nil
	}
	el.lastWrittenAddr = sealedAddr
	el.logger.Debug("sealed superblock", zap.Int("level", level), zap.Uint64("addr", uint64(sealedAddr)))
	return el.cascade(level+1, sealedAddr, sealedRollup)
}

// Search returns the merged iterator over all extents in the scan
// direction (design doc §4.5). Each extent's own Range call is already
// limited to its currently-open node, so the extents are simply
// concatenated in level order (highest level first for a forward scan,
// level 0 first for backward) — see DESIGN.md for why that concatenation,
// rather than a real k-way merge, is correct here.
func (el *ExtentsList) Search(begin, end Timestamp) (Iterator, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if !el.initialized {
		if err := el.forceInitLocked(); err != nil {
			return nil, err
		}
	}
	if begin == end {
		return emptyIterator{}, nil
	}
	n := len(el.extents)
	its := make([]Iterator, n)
	fwd := forward(begin, end)
	for i := 0; i < n; i++ {
		if fwd {
			its[n-1-i] = el.extents[i].Range(begin, end, el.store)
		} else {
			its[i] = el.extents[i].Range(begin, end, el.store)
		}
	}
	return newChainIterator(its...), nil
}

// Aggregate returns a single-row iterator combining every extent's
// aggregate over [begin, end) (design doc §4.5). Extents are folded from
// the highest (oldest) level down to level 0, so the fold runs in time
// order as Rollup.Combine expects.
func (el *ExtentsList) Aggregate(begin, end Timestamp, fn AggFunc) (Iterator, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if !el.initialized {
		if err := el.forceInitLocked(); err != nil {
			return nil, err
		}
	}
	if begin == end {
		return emptyIterator{}, nil
	}
	acc := emptyRollup()
	for i := len(el.extents) - 1; i >= 0; i-- {
		r, has, err := el.extents[i].rollupOverRange(begin, end, el.store)
		if err != nil {
			return nil, err
		}
		if has {
			acc.Combine(r)
		}
	}
	return newAggregateIterator(acc, fn), nil
}

// Close seals every open level bottom-up; each forced seal publishes into
// its parent *only if that parent level already exists* — a forced seal
// never grows a new top level, matching nbtree.cpp's
// NBTreeLeafExtent::commit/NBTreeSBlockExtent::commit on the final commit
// ("if (!final || roots_collection->_get_roots().size() > next_level)").
// Without that guard, sealing a one-level series on close would cascade
// into a freshly-grown (and therefore dirty, one-child) level above it,
// which would itself seal and grow another level, forever. A parent that
// overflows while receiving a forced seal is an ordinary overflow seal: it
// is published through the growing cascade, and the loop goes on to force
// seal any level created that way. The returned roots vector's last entry
// is, by construction, the very last address this method writes —
// satisfying P6 without needing a separate close marker.
func (el *ExtentsList) Close() ([]LogicAddr, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.closed {
		return el.rootsLocked(), nil
	}
	if !el.initialized {
		el.closed = true
		return el.rootsLocked(), nil
	}
	for level := 0; level < len(el.extents); level++ {
		addr, rollup, ok, err := el.extents[level].forceSeal(el.store)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		el.lastWrittenAddr = addr
		if err := el.cascadeNoGrow(level+1, addr, rollup); err != nil {
			return nil, err
		}
	}
	el.closed = true
	return el.rootsLocked(), nil
}

// cascadeNoGrow is cascade's close-time counterpart for a forced seal: it
// publishes into an already-existing parent level but never creates a new
// one, so a forced seal at the current top level is simply left as that
// level's new root instead of spawning a level above it. If the parent
// overflows and seals, that seal is handed to cascade, which grows a level
// when needed, since the parent keeps a fresh open node holding the new
// child and the overflowed node must stay reachable.
func (el *ExtentsList) cascadeNoGrow(level int, addr LogicAddr, rollup Rollup) error {
	if level >= len(el.extents) {
		return nil
	}
	sealedAddr, sealedRollup, sealed, err := el.extents[level].AppendChild(addr, rollup, el.store)
	if err != nil {
		return err
	}
	if !sealed {
		return nil
	}
	el.lastWrittenAddr = sealedAddr
	el.logger.Debug("sealed superblock on close", zap.Int("level", level), zap.Uint64("addr", uint64(sealedAddr)))
	return el.cascade(level+1, sealedAddr, sealedRollup)
}

// GetRoots returns the current sealed-tip address per level, bottom
// first (design doc §4.5).
func (el *ExtentsList) GetRoots() []LogicAddr {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.rootsLocked()
}

func (el *ExtentsList) rootsLocked() []LogicAddr {
	if !el.initialized {
		return append([]LogicAddr{}, el.roots...)
	}
	out := make([]LogicAddr, len(el.extents))
	for i, ext := range el.extents {
		out[i] = ext.lastSealedAddr
	}
	return out
}

// GetExtents exposes the live extents for consistency checking (design
// doc §4.5).
func (el *ExtentsList) GetExtents() []*Extent {
	el.mu.Lock()
	defer el.mu.Unlock()
	return append([]*Extent(nil), el.extents...)
}

// RepairStatus reports whether this instance's own state reflects a clean
// close: OK iff Close() was called and, structurally, every sealed tip
// still decodes and satisfies I2 (tmin<=tmax when non-empty).
func (el *ExtentsList) RepairStatus() (RepairStatus, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if !el.closed {
		el.logger.Warn("repair_status requested before close", zap.Uint64("paramId", uint64(el.paramId)))
		return StatusRepair, nil
	}
	return validateRootsLocked(el.paramId, el.rootsLocked(), el.store)
}

// ValidateRoots is the static form of repair_status (design doc §4.5,
// §6): OK iff the highest non-EmptyAddr entry of roots (EmptyAddr when
// roots is empty or all-empty, as for a never-written series) equals
// lastWrittenAddr (the last block actually appended for paramId — tracked
// by whoever owns the single writer for this series, design doc §5) and
// every root in the chain still decodes with matching paramId and valid
// I2 bounds.
func ValidateRoots(paramId ParamId, roots []LogicAddr, lastWrittenAddr LogicAddr, store BlockStore) (RepairStatus, error) {
	// Trailing empty entries are normal — a level that never needed to
	// seal (e.g. the current top level) always reports EmptyAddr. Only
	// the highest *sealed* entry is meaningful for this comparison.
	lastSealed := EmptyAddr
	for _, addr := range roots {
		if addr != EmptyAddr {
			lastSealed = addr
		}
	}
	if lastSealed != lastWrittenAddr {
		return StatusRepair, nil
	}
	return validateRootsLocked(paramId, roots, store)
}

func validateRootsLocked(paramId ParamId, roots []LogicAddr, store BlockStore) (RepairStatus, error) {
	for level, addr := range roots {
		if addr == EmptyAddr {
			continue
		}
		n, err := loadNode(store, paramId, addr)
		if err != nil {
			return StatusRepair, nil
		}
		var r Rollup
		switch v := n.(type) {
		case *Leaf:
			r = v.rollup
		case *Superblock:
			r = v.rollup
		}
		if r.Count > 0 && r.TMin > r.TMax {
			return StatusRepair, fmt.Errorf("nbtree: root %d at level %d violates tmin<=tmax: %w", addr, level, ErrCorruption)
		}
	}
	return StatusOK, nil
}
