package nbtree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sealLeafWithPoints(t *testing.T, store BlockStore, paramId ParamId, prev LogicAddr, fanoutIndex int, from, to Timestamp) (LogicAddr, Rollup) {
	t.Helper()
	l := NewLeaf(paramId, prev, fanoutIndex)
	for ts := from; ts < to; ts++ {
		require.NoError(t, l.Append(ts, float64(ts), store.BlockSize()))
	}
	addr, err := l.Seal(store)
	require.NoError(t, err)
	return addr, l.RollupSnapshot()
}

func TestSuperblockAppendChildRejectsOutOfOrder(t *testing.T) {
	store := NewMemBlockStore(DefaultBlockSize, nil)
	s := NewSuperblock(1, 1, EmptyAddr, 0)
	addr1, r1 := sealLeafWithPoints(t, store, 1, EmptyAddr, 0, 0, 10)
	require.NoError(t, s.AppendChild(addr1, r1, DefaultFanout))

	addr2, r2 := sealLeafWithPoints(t, store, 1, addr1, 1, 5, 8)
	err := s.AppendChild(addr2, r2, DefaultFanout)
	require.ErrorIs(t, err, ErrBadData)
}

func TestSuperblockAppendChildOverflow(t *testing.T) {
	store := NewMemBlockStore(DefaultBlockSize, nil)
	s := NewSuperblock(1, 1, EmptyAddr, 0)
	var prev LogicAddr = EmptyAddr
	var ts Timestamp
	for i := 0; i < DefaultFanout; i++ {
		addr, r := sealLeafWithPoints(t, store, 1, prev, i, ts, ts+10)
		require.NoError(t, s.AppendChild(addr, r, DefaultFanout))
		prev = addr
		ts += 10
	}
	addr, r := sealLeafWithPoints(t, store, 1, prev, DefaultFanout, ts, ts+10)
	err := s.AppendChild(addr, r, DefaultFanout)
	require.ErrorIs(t, err, errOverflow)
}

func TestSuperblockRangeDescendsAndPrunes(t *testing.T) {
	store := NewMemBlockStore(DefaultBlockSize, nil)
	s := NewSuperblock(7, 1, EmptyAddr, 0)
	addr1, r1 := sealLeafWithPoints(t, store, 7, EmptyAddr, 0, 0, 10)
	addr2, r2 := sealLeafWithPoints(t, store, 7, addr1, 1, 10, 20)
	addr3, r3 := sealLeafWithPoints(t, store, 7, addr2, 2, 20, 30)
	require.NoError(t, s.AppendChild(addr1, r1, DefaultFanout))
	require.NoError(t, s.AppendChild(addr2, r2, DefaultFanout))
	require.NoError(t, s.AppendChild(addr3, r3, DefaultFanout))

	it := s.Range(12, 25, store)
	ts, _ := drain(t, it, 4)
	require.Len(t, ts, 13)
	require.Equal(t, Timestamp(12), ts[0])
	require.Equal(t, Timestamp(24), ts[len(ts)-1])
}

func TestSuperblockAggregateUsesRollupShortcutForFullyCoveredChildren(t *testing.T) {
	store := NewMemBlockStore(DefaultBlockSize, nil)
	s := NewSuperblock(7, 1, EmptyAddr, 0)
	addr1, r1 := sealLeafWithPoints(t, store, 7, EmptyAddr, 0, 0, 10)
	addr2, r2 := sealLeafWithPoints(t, store, 7, addr1, 1, 10, 20)
	require.NoError(t, s.AppendChild(addr1, r1, DefaultFanout))
	require.NoError(t, s.AppendChild(addr2, r2, DefaultFanout))

	it := s.Aggregate(0, 20, AggSum, store)
	ts := make([]Timestamp, 1)
	vals := make([]Value, 1)
	n, err := it.Read(ts, vals)
	require.Equal(t, 1, n)
	require.ErrorIs(t, err, ErrNoData)

	var want Value
	for i := Timestamp(0); i < 20; i++ {
		want += float64(i)
	}
	require.Equal(t, want, vals[0])
}

func TestSuperblockSealAndDecodeRoundtrip(t *testing.T) {
	store := NewMemBlockStore(DefaultBlockSize, nil)
	s := NewSuperblock(9, 1, EmptyAddr, 0)
	addr1, r1 := sealLeafWithPoints(t, store, 9, EmptyAddr, 0, 0, 5)
	require.NoError(t, s.AppendChild(addr1, r1, DefaultFanout))

	addr, err := s.Seal(store)
	require.NoError(t, err)

	raw, err := store.Read(addr)
	require.NoError(t, err)
	blk, err := UnmarshalBlock(raw)
	require.NoError(t, err)
	require.Equal(t, KindSuperblock, blk.Header.Kind)

	decoded, err := decodeSuperblock(blk.Header, blk.Payload)
	require.NoError(t, err)
	require.Equal(t, s.children, decoded.children)
}
