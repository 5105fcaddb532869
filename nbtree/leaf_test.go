package nbtree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeafAppendRejectsNonIncreasingTimestamp(t *testing.T) {
	l := NewLeaf(1, EmptyAddr, 0)
	require.NoError(t, l.Append(10, 1.0, DefaultBlockSize))
	err := l.Append(10, 2.0, DefaultBlockSize)
	require.ErrorIs(t, err, ErrBadData)
	err = l.Append(5, 2.0, DefaultBlockSize)
	require.ErrorIs(t, err, ErrBadData)
}

func TestLeafAppendOverflow(t *testing.T) {
	l := NewLeaf(1, EmptyAddr, 0)
	blockSize := HeaderSize + 64
	count := 0
	for ts := Timestamp(0); ; ts++ {
		if err := l.Append(ts, float64(ts), blockSize); err != nil {
			require.ErrorIs(t, err, errOverflow)
			break
		}
		count++
	}
	require.Greater(t, count, 0)
	require.Less(t, count, 1000)
}

func TestLeafRangeForwardAndBackward(t *testing.T) {
	l := NewLeaf(1, EmptyAddr, 0)
	for i := Timestamp(0); i < 10; i++ {
		require.NoError(t, l.Append(i, float64(i), DefaultBlockSize))
	}

	it := l.Range(2, 7)
	ts, vals := drain(t, it, 32)
	require.Equal(t, []Timestamp{2, 3, 4, 5, 6}, ts)
	require.Equal(t, []Value{2, 3, 4, 5, 6}, vals)

	it = l.Range(7, 2)
	ts, vals = drain(t, it, 32)
	require.Equal(t, []Timestamp{7, 6, 5, 4, 3}, ts)
	require.Equal(t, []Value{7, 6, 5, 4, 3}, vals)
}

func TestLeafRangeEmptyOnEqualBounds(t *testing.T) {
	l := NewLeaf(1, EmptyAddr, 0)
	require.NoError(t, l.Append(1, 1, DefaultBlockSize))
	it := l.Range(5, 5)
	n, err := it.Read(make([]Timestamp, 4), make([]Value, 4))
	require.ErrorIs(t, err, ErrNoData)
	require.Zero(t, n)
}

func TestLeafAggregateWithinRangeUsesWholeRollup(t *testing.T) {
	l := NewLeaf(1, EmptyAddr, 0)
	for i := Timestamp(0); i < 5; i++ {
		require.NoError(t, l.Append(i, float64(i+1), DefaultBlockSize))
	}
	it := l.Aggregate(0, 5, AggSum)
	ts := make([]Timestamp, 1)
	vals := make([]Value, 1)
	n, err := it.Read(ts, vals)
	require.Equal(t, 1, n)
	require.ErrorIs(t, err, ErrNoData)
	require.Equal(t, Value(1+2+3+4+5), vals[0])
}

func TestLeafSealAndDecodeRoundtrip(t *testing.T) {
	store := NewMemBlockStore(DefaultBlockSize, nil)
	l := NewLeaf(42, EmptyAddr, 3)
	for i := Timestamp(100); i < 120; i++ {
		require.NoError(t, l.Append(i, float64(i)*1.5, DefaultBlockSize))
	}
	addr, err := l.Seal(store)
	require.NoError(t, err)

	raw, err := store.Read(addr)
	require.NoError(t, err)
	blk, err := UnmarshalBlock(raw)
	require.NoError(t, err)
	require.Equal(t, KindLeaf, blk.Header.Kind)
	require.Equal(t, ParamId(42), blk.Header.ParamId)
	require.Equal(t, uint16(3), blk.Header.FanoutIndex)

	decoded, err := decodeLeaf(blk.Header, blk.Payload)
	require.NoError(t, err)
	require.Equal(t, l.ts, decoded.ts)
	require.Equal(t, l.vals, decoded.vals)

	_, err = l.Seal(store)
	require.ErrorIs(t, err, ErrBadData)
}

// drain reads an iterator to completion in reads of at most chunk pairs,
// mirroring scenario S3's chunked-read requirement.
func drain(t *testing.T, it Iterator, chunk int) ([]Timestamp, []Value) {
	t.Helper()
	var ts []Timestamp
	var vals []Value
	for {
		tsBuf := make([]Timestamp, chunk)
		valBuf := make([]Value, chunk)
		n, err := it.Read(tsBuf, valBuf)
		ts = append(ts, tsBuf[:n]...)
		vals = append(vals, valBuf[:n]...)
		if err != nil {
			require.ErrorIs(t, err, ErrNoData)
			break
		}
	}
	return ts, vals
}
