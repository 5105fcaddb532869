package simple8b_test

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"

	"github.com/nbtreedb/nbtree/pkg/encoding/simple8b"
)

func TestEncoderRoundtrip(t *testing.T) {
	values := []uint64{0, 1, 1, 1, 2, 3, 5, 8, 13, 21, 34, 1000, 1 << 20, simple8b.MaxValue}

	enc := simple8b.NewEncoder()
	for _, v := range values {
		require.NoError(t, enc.Write(v))
	}
	b, err := enc.Bytes()
	require.NoError(t, err)

	dec := simple8b.NewDecoder(b)
	for i, want := range values {
		require.True(t, dec.Next(), "value %d", i)
		require.Equal(t, want, dec.Read())
	}
	require.False(t, dec.Next())
}

func TestEncoderRoundtripQuick(t *testing.T) {
	f := func(raw []uint32) bool {
		values := make([]uint64, len(raw))
		for i, v := range raw {
			values[i] = uint64(v) & simple8b.MaxValue
		}

		enc := simple8b.NewEncoder()
		for _, v := range values {
			if err := enc.Write(v); err != nil {
				return false
			}
		}
		b, err := enc.Bytes()
		if err != nil {
			return false
		}

		dec := simple8b.NewDecoder(b)
		for _, want := range values {
			if !dec.Next() || dec.Read() != want {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestEncoderRejectsOutOfRange(t *testing.T) {
	enc := simple8b.NewEncoder()
	require.Error(t, enc.Write(simple8b.MaxValue+1))
}
