package nbtree

import "errors"

// Sentinel errors matching the taxonomy in the design doc. Callers should
// use errors.Is against these, since concrete errors returned by the
// package are usually wrapped with additional context via fmt.Errorf.
var (
	// ErrBadData means append saw a timestamp that does not strictly
	// increase over the series, or otherwise malformed append input.
	ErrBadData = errors.New("nbtree: bad data")

	// ErrBadArg means a caller-supplied buffer was too small for a
	// required single-element result (e.g. Aggregate's output row).
	ErrBadArg = errors.New("nbtree: bad argument")

	// ErrNoData signals end-of-stream on an iterator. It is terminal:
	// iterators never resume after returning it.
	ErrNoData = errors.New("nbtree: no data")

	// errOverflow is raised internally by a leaf or superblock when it
	// cannot accept another entry. It never escapes ExtentsList; the
	// sealing machinery absorbs it.
	errOverflow = errors.New("nbtree: node overflow")

	// ErrIoError wraps a transport failure from the BlockStore.
	ErrIoError = errors.New("nbtree: io error")

	// ErrCorruption means a block failed its checksum, has a bad magic,
	// has an inconsistent paramid, or otherwise violates the on-disk
	// contract.
	ErrCorruption = errors.New("nbtree: corruption")

	// ErrNotFound means a LogicAddr does not resolve in the block store.
	ErrNotFound = errors.New("nbtree: not found")
)

// RepairStatus describes whether a series' roots reflect a clean close.
type RepairStatus int

const (
	// StatusOK means the roots reflect a clean close: the last root is
	// the last block ever written for the series and all rollup
	// invariants hold at the sealed tips.
	StatusOK RepairStatus = iota
	// StatusRepair means the series was not cleanly closed and
	// force_init may need to drop a partially-written tail.
	StatusRepair
)

func (s RepairStatus) String() string {
	if s == StatusOK {
		return "OK"
	}
	return "REPAIR"
}
