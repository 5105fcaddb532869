package nbtree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestList(t *testing.T) (*ExtentsList, BlockStore) {
	t.Helper()
	store := NewMemBlockStore(DefaultBlockSize, nil)
	el := New(1, nil, store, DefaultConfig())
	return el, store
}

// S1/S2: append 2000 points, search both directions.
func TestScenarioForwardAndBackwardSearch(t *testing.T) {
	el, _ := newTestList(t)
	const n = 2000
	for i := Timestamp(0); i < n; i++ {
		_, err := el.Append(i, Value(i))
		require.NoError(t, err)
	}

	it, err := el.Search(0, n)
	require.NoError(t, err)
	ts, vals := drain(t, it, 97)
	require.Len(t, ts, n)
	for i := 0; i < n; i++ {
		require.Equal(t, Timestamp(i), ts[i])
		require.Equal(t, Value(i), vals[i])
	}

	// A backward scan excludes its lower bound, so Search(n-1, 0) yields
	// n-1 down to 1: timestamp 0 has no unsigned lower bound below it.
	it, err = el.Search(n-1, 0)
	require.NoError(t, err)
	ts, vals = drain(t, it, 97)
	require.Len(t, ts, n-1)
	for i := 0; i < n-1; i++ {
		require.Equal(t, Timestamp(n-1-i), ts[i])
		require.Equal(t, Value(n-1-i), vals[i])
	}
}

// S3: chunked reads of size 17 total to exactly 100 points.
func TestScenarioChunkedReadsSumToTotal(t *testing.T) {
	el, _ := newTestList(t)
	const n = 100
	for i := Timestamp(0); i < n; i++ {
		_, err := el.Append(i, Value(i))
		require.NoError(t, err)
	}
	it, err := el.Search(0, n)
	require.NoError(t, err)
	ts, _ := drain(t, it, 17)
	require.Len(t, ts, n)
	for i := 0; i < n; i++ {
		require.Equal(t, Timestamp(i), ts[i])
	}
}

// S4: three tree levels via F*F leaf seals; aggregate matches plain sums.
func TestScenarioAggregateAcrossMultipleLevels(t *testing.T) {
	store := NewMemBlockStore(512, nil)
	el := New(1, nil, store, Config{Fanout: 4, BlockSize: 512})

	var ts Timestamp
	var sum Value
	var vals []Value
	var allTs []Timestamp
	var seals int
	// Enough points to force F*F=16 leaf seals with a small block size.
	for seals < 4*4 || len(el.extents) < 3 {
		res, err := el.Append(ts, Value(ts))
		require.NoError(t, err)
		if res == AppendFlushNeeded {
			seals++
		}
		sum += Value(ts)
		vals = append(vals, Value(ts))
		allTs = append(allTs, ts)
		ts++
		if ts > 5000 {
			t.Fatal("did not reach three tree levels")
		}
	}

	it, err := el.Aggregate(0, Timestamp(len(allTs))+1000, AggSum)
	require.NoError(t, err)
	row := make([]Timestamp, 1)
	valRow := make([]Value, 1)
	n, err := it.Read(row, valRow)
	require.Equal(t, 1, n)
	require.ErrorIs(t, err, ErrNoData)
	require.InEpsilon(t, float64(sum), float64(valRow[0]), 1e-9)

	lo, hi := Timestamp(2), Timestamp(len(allTs)-2)
	var wantMax Value
	haveMax := false
	for i, t := range allTs {
		if t >= lo && t < hi {
			if !haveMax || vals[i] > wantMax {
				wantMax = vals[i]
				haveMax = true
			}
		}
	}
	it, err = el.Aggregate(lo, hi, AggMax)
	require.NoError(t, err)
	n, err = it.Read(row, valRow)
	require.Equal(t, 1, n)
	require.ErrorIs(t, err, ErrNoData)
	require.Equal(t, wantMax, valRow[0])
}

// S5: close, reopen with roots, force_init, search returns everything.
func TestScenarioCloseReopenForceInit(t *testing.T) {
	store := NewMemBlockStore(DefaultBlockSize, nil)
	el := New(2, nil, store, Config{Fanout: 4, BlockSize: DefaultBlockSize})

	// A default-size leaf holds 221 points, so n*8 = 1200 points fill F+1 = 5
	// leaves (F=4) and part of a sixth.
	const n = 150
	var lastWritten LogicAddr
	store.OnCommit(func(addr LogicAddr) { lastWritten = addr })
	for i := Timestamp(0); i < n*8; i++ {
		_, err := el.Append(i, Value(i))
		require.NoError(t, err)
	}
	roots, err := el.Close()
	require.NoError(t, err)

	status, err := ValidateRoots(2, roots, lastWritten, store)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)

	reopened := New(2, roots, store, Config{Fanout: 4, BlockSize: DefaultBlockSize})
	require.NoError(t, reopened.ForceInit())
	it, err := reopened.Search(0, n*8)
	require.NoError(t, err)
	ts, vals := drain(t, it, 31)
	require.Len(t, ts, int(n*8))
	for i := 0; i < int(n*8); i++ {
		require.Equal(t, Timestamp(i), ts[i])
		require.Equal(t, Value(i), vals[i])
	}
}

// S6: crash without close, reopen with a mid-flight roots snapshot.
func TestScenarioRepairAfterUncleanShutdown(t *testing.T) {
	store := NewMemBlockStore(DefaultBlockSize, nil)
	el := New(3, nil, store, Config{Fanout: 4, BlockSize: DefaultBlockSize})

	var lastWritten LogicAddr
	store.OnCommit(func(addr LogicAddr) { lastWritten = addr })

	var snapshot []LogicAddr
	var snapshotN int
	sealsSinceSnapshot := 0
	i := Timestamp(0)
	for {
		res, err := el.Append(i, Value(i))
		require.NoError(t, err)
		i++
		if res == AppendFlushNeeded {
			if snapshotN == 0 {
				snapshot = el.GetRoots()
				snapshotN = int(i)
			} else {
				sealsSinceSnapshot++
			}
		}
		// Keep going until a seal happens *after* the snapshot was taken,
		// so lastWrittenAddr has moved on without the persisted roots
		// knowing about it — the unclean-shutdown scenario S6 models.
		if sealsSinceSnapshot > 0 {
			break
		}
		if i > 100000 {
			t.Fatal("never observed a second seal")
		}
	}
	// Simulate the crash: drop el without calling Close.

	status, err := ValidateRoots(3, snapshot, lastWritten, store)
	require.NoError(t, err)
	require.Equal(t, StatusRepair, status)

	reopened := New(3, snapshot, store, Config{Fanout: 4, BlockSize: DefaultBlockSize})
	require.NoError(t, reopened.ForceInit())
	it, err := reopened.Search(0, Timestamp(snapshotN)+10)
	require.NoError(t, err)
	ts, _ := drain(t, it, 16)
	// The snapshot was taken right after the first leaf seal, so that
	// sealed leaf's points must come back: recovery is a no-op otherwise
	// and this assertion would pass vacuously on an empty result.
	require.NotEmpty(t, ts)
	require.LessOrEqual(t, len(ts), snapshotN)
	for idx, tv := range ts {
		require.Equal(t, Timestamp(idx), tv)
		if idx > 0 {
			require.Greater(t, ts[idx], ts[idx-1])
		}
	}
}

func TestAppendRejectsNonIncreasingTimestamp(t *testing.T) {
	el, _ := newTestList(t)
	_, err := el.Append(5, 1)
	require.NoError(t, err)
	_, err = el.Append(5, 2)
	require.ErrorIs(t, err, ErrBadData)
	_, err = el.Append(4, 2)
	require.ErrorIs(t, err, ErrBadData)
}

func TestBeginEqualsEndIsEmptyBothWays(t *testing.T) {
	el, _ := newTestList(t)
	for i := Timestamp(0); i < 10; i++ {
		_, err := el.Append(i, Value(i))
		require.NoError(t, err)
	}
	it, err := el.Search(5, 5)
	require.NoError(t, err)
	n, err := it.Read(make([]Timestamp, 4), make([]Value, 4))
	require.Zero(t, n)
	require.ErrorIs(t, err, ErrNoData)
}
