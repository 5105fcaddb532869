package nbtree

import "fmt"

// node is the sum type design doc §9 calls for ("Leaf, Super plus a shared
// iterator interface, no inheritance hierarchy"): any type a superblock
// child address can resolve to.
type node interface {
	isNode()
}

func (*Leaf) isNode()       {}
func (*Superblock) isNode() {}

// loadNode reads and decodes the block at addr, verifying it belongs to
// paramId. A mismatch is an unresolved behavior in the source this spec
// was distilled from; design doc §9 "Open questions" resolves it as
// Corruption.
func loadNode(store BlockStore, paramId ParamId, addr LogicAddr) (node, error) {
	raw, err := store.Read(addr)
	if err != nil {
		return nil, err
	}
	blk, err := UnmarshalBlock(raw)
	if err != nil {
		return nil, err
	}
	if blk.Header.ParamId != paramId {
		return nil, fmt.Errorf("nbtree: block %d belongs to paramid %d, expected %d: %w", addr, blk.Header.ParamId, paramId, ErrCorruption)
	}
	switch blk.Header.Kind {
	case KindLeaf:
		return decodeLeaf(blk.Header, blk.Payload)
	case KindSuperblock:
		return decodeSuperblock(blk.Header, blk.Payload)
	default:
		return nil, fmt.Errorf("nbtree: block %d has unknown kind %d: %w", addr, blk.Header.Kind, ErrCorruption)
	}
}
