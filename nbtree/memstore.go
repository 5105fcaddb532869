package nbtree

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MemBlockStore is a volatile, in-memory BlockStore. Addresses are indices
// into an append-only slice of blocks, guarded by a single RWMutex the way
// tsdb/engine/tsm1.Engine guards its files slice with filesLock.
type MemBlockStore struct {
	mu        sync.RWMutex
	blocks    [][]byte
	blockSize int
	closed    bool
	onCommit  func(LogicAddr)
	metrics   *StoreMetrics
}

// NewMemBlockStore returns an empty in-memory store for blocks of the given
// size.
func NewMemBlockStore(blockSize int, reg prometheus.Registerer) *MemBlockStore {
	return &MemBlockStore{
		blockSize: blockSize,
		metrics:   NewStoreMetrics(reg, "memory"),
	}
}

func (s *MemBlockStore) BlockSize() int { return s.blockSize }

func (s *MemBlockStore) OnCommit(fn func(LogicAddr)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = fn
}

func (s *MemBlockStore) Append(block []byte) (LogicAddr, error) {
	if len(block) != s.blockSize {
		return EmptyAddr, fmt.Errorf("nbtree: block size %d != store block size %d: %w", len(block), s.blockSize, ErrBadData)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return EmptyAddr, ErrClosed
	}
	cp := make([]byte, len(block))
	copy(cp, block)
	s.blocks = append(s.blocks, cp)
	addr := LogicAddr(len(s.blocks) - 1)
	cb := s.onCommit
	s.mu.Unlock()

	s.metrics.Appends.Inc()
	s.metrics.BytesWritten.Add(float64(len(block)))
	if cb != nil {
		cb(addr)
	}
	return addr, nil
}

func (s *MemBlockStore) Read(addr LogicAddr) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if addr == EmptyAddr || int(addr) >= len(s.blocks) {
		s.metrics.ReadErrors.Inc()
		return nil, fmt.Errorf("nbtree: address %d: %w", addr, ErrNotFound)
	}
	s.metrics.Reads.Inc()
	out := make([]byte, len(s.blocks[addr]))
	copy(out, s.blocks[addr])
	return out, nil
}

func (s *MemBlockStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
