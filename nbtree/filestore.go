package nbtree

import (
	"fmt"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// FileBlockStore is a file-backed BlockStore using fixed-size slots: block
// i occupies bytes [i*blockSize, (i+1)*blockSize) of the backing file.
// Growth is append-only; slots are never reused or rewritten in place,
// following the same "rotate, never patch" discipline as the teacher's
// data file handling in tsdb/engine/tsm1/tsm1.go.
type FileBlockStore struct {
	mu        sync.Mutex
	f         *os.File
	blockSize int
	nextAddr  uint64
	onCommit  func(LogicAddr)
	closed    bool
	metrics   *StoreMetrics
}

// OpenFileBlockStore opens (creating if necessary) a file-backed block
// store at path. If the file's size is not an exact multiple of blockSize,
// the trailing partial block is treated as evidence of an unclean shutdown
// and reported as ErrCorruption; callers that want to tolerate this should
// truncate the file themselves before reopening.
func OpenFileBlockStore(path string, blockSize int, reg prometheus.Registerer) (*FileBlockStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("nbtree: open block file %s: %w", path, ErrIoError)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("nbtree: stat block file %s: %w", path, ErrIoError)
	}
	if info.Size()%int64(blockSize) != 0 {
		f.Close()
		return nil, fmt.Errorf("nbtree: %s has a partial trailing block: %w", path, ErrCorruption)
	}
	return &FileBlockStore{
		f:         f,
		blockSize: blockSize,
		nextAddr:  uint64(info.Size()) / uint64(blockSize),
		metrics:   NewStoreMetrics(reg, "file"),
	}, nil
}

func (s *FileBlockStore) BlockSize() int { return s.blockSize }

func (s *FileBlockStore) OnCommit(fn func(LogicAddr)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = fn
}

func (s *FileBlockStore) Append(block []byte) (LogicAddr, error) {
	if len(block) != s.blockSize {
		return EmptyAddr, fmt.Errorf("nbtree: block size %d != store block size %d: %w", len(block), s.blockSize, ErrBadData)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return EmptyAddr, ErrClosed
	}
	addr := LogicAddr(s.nextAddr)
	offset := int64(s.nextAddr) * int64(s.blockSize)

	n, err := s.f.WriteAt(block, offset)
	if err != nil || n != len(block) {
		s.mu.Unlock()
		s.metrics.AppendErrors.Inc()
		return EmptyAddr, fmt.Errorf("nbtree: write block at %d: %w", addr, ErrIoError)
	}
	if err := s.f.Sync(); err != nil {
		s.mu.Unlock()
		s.metrics.AppendErrors.Inc()
		return EmptyAddr, fmt.Errorf("nbtree: fsync after block %d: %w", addr, ErrIoError)
	}
	s.nextAddr++
	cb := s.onCommit
	s.mu.Unlock()

	s.metrics.Appends.Inc()
	s.metrics.BytesWritten.Add(float64(len(block)))
	if cb != nil {
		cb(addr)
	}
	return addr, nil
}

func (s *FileBlockStore) Read(addr LogicAddr) ([]byte, error) {
	s.mu.Lock()
	closed, next := s.closed, s.nextAddr
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if addr == EmptyAddr || uint64(addr) >= next {
		s.metrics.ReadErrors.Inc()
		return nil, fmt.Errorf("nbtree: address %d: %w", addr, ErrNotFound)
	}
	buf := make([]byte, s.blockSize)
	if _, err := s.f.ReadAt(buf, int64(addr)*int64(s.blockSize)); err != nil {
		s.metrics.ReadErrors.Inc()
		return nil, fmt.Errorf("nbtree: read block at %d: %w", addr, ErrIoError)
	}
	s.metrics.Reads.Inc()
	return buf, nil
}

func (s *FileBlockStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
