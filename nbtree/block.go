package nbtree

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ParamId is an opaque, stable series identifier.
type ParamId uint64

// Timestamp counts fixed ticks since an epoch. Strictly monotonic per
// series; enforced on append.
type Timestamp uint64

// Value is an IEEE-754 double.
type Value = float64

// LogicAddr is a monotonic logical block address assigned by a BlockStore.
// Addresses are never reused.
type LogicAddr uint64

// EmptyAddr is the sentinel meaning "no block".
const EmptyAddr LogicAddr = LogicAddr(^uint64(0))

// Kind distinguishes leaf blocks from superblock (index) blocks.
type Kind uint8

const (
	// KindLeaf marks a level-0 block holding compressed (ts, value) pairs.
	KindLeaf Kind = 1
	// KindSuperblock marks a level>=1 index block over up to F children.
	KindSuperblock Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindSuperblock:
		return "superblock"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

const (
	blockMagic   uint32 = 0x4e425452 // "NBTR"
	blockVersion uint16 = 1
)

// Header is the fixed-layout prefix of every Block, serialized field by
// field with encoding/binary in declaration order (no implicit padding).
type Header struct {
	Magic       uint32
	Version     uint16
	Kind        Kind
	Level       uint8
	FanoutIndex uint16
	ParamId     ParamId
	PayloadSize uint32
	PrevAddr    LogicAddr
	TMin        Timestamp
	TMax        Timestamp
	Count       uint64
	Min         Value
	Max         Value
	Sum         Value
	First       Value
	Last        Value
	Checksum    uint64
}

// HeaderSize is the fixed, on-disk size of Header.
var HeaderSize = binary.Size(Header{})

// Block is a fixed-size, immutable-once-written unit of I/O. Payload holds
// either a compressed (timestamp, value) stream (KindLeaf) or up to F
// encoded child entries (KindSuperblock).
type Block struct {
	Header  Header
	Payload []byte
}

// Marshal serializes the block into a zero-padded buffer of exactly
// blockSize bytes. The header's checksum is (re)computed over Payload.
func (b *Block) Marshal(blockSize int) ([]byte, error) {
	if HeaderSize+len(b.Payload) > blockSize {
		return nil, fmt.Errorf("nbtree: payload of %d bytes does not fit block size %d: %w", len(b.Payload), blockSize, ErrBadData)
	}
	b.Header.Magic = blockMagic
	b.Header.Version = blockVersion
	b.Header.PayloadSize = uint32(len(b.Payload))
	b.Header.Checksum = xxhash.Sum64(b.Payload)

	buf := bytes.NewBuffer(make([]byte, 0, blockSize))
	if err := binary.Write(buf, binary.BigEndian, b.Header); err != nil {
		return nil, fmt.Errorf("nbtree: encode header: %w", err)
	}
	buf.Write(b.Payload)
	out := buf.Bytes()
	out = out[:cap(out)]
	for i := HeaderSize + len(b.Payload); i < blockSize; i++ {
		out[i] = 0
	}
	return out[:blockSize], nil
}

// UnmarshalBlock parses and verifies a block previously produced by Marshal.
// It returns ErrCorruption for a bad magic, unsupported version, or failed
// checksum.
func UnmarshalBlock(raw []byte) (*Block, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("nbtree: block too small (%d bytes): %w", len(raw), ErrCorruption)
	}
	var h Header
	if err := binary.Read(bytes.NewReader(raw[:HeaderSize]), binary.BigEndian, &h); err != nil {
		return nil, fmt.Errorf("nbtree: decode header: %w", err)
	}
	if h.Magic != blockMagic {
		return nil, fmt.Errorf("nbtree: bad magic %x: %w", h.Magic, ErrCorruption)
	}
	if h.Version != blockVersion {
		return nil, fmt.Errorf("nbtree: unsupported version %d: %w", h.Version, ErrCorruption)
	}
	end := HeaderSize + int(h.PayloadSize)
	if end > len(raw) {
		return nil, fmt.Errorf("nbtree: payload size %d exceeds block: %w", h.PayloadSize, ErrCorruption)
	}
	payload := make([]byte, h.PayloadSize)
	copy(payload, raw[HeaderSize:end])
	if xxhash.Sum64(payload) != h.Checksum {
		return nil, fmt.Errorf("nbtree: checksum mismatch at level %d: %w", h.Level, ErrCorruption)
	}
	return &Block{Header: h, Payload: payload}, nil
}
