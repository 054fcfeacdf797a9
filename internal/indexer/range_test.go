package indexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitRange(t *testing.T) {
	cases := []struct {
		name      string
		from, to  uint64
		batch     uint64
		want      []BlockRange
		wantError bool
	}{
		{name: "single block", from: 7, to: 7, batch: 10, want: []BlockRange{{7, 7}}},
		{name: "exact batches", from: 1, to: 6, batch: 3, want: []BlockRange{{1, 3}, {4, 6}}},
		{name: "short tail", from: 10, to: 14, batch: 2, want: []BlockRange{{10, 11}, {12, 13}, {14, 14}}},
		{name: "zero batch", from: 1, to: 2, batch: 0, wantError: true},
		{name: "inverted", from: 5, to: 4, batch: 1, wantError: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SplitRange(tc.from, tc.to, tc.batch)
			if tc.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)

			var total uint64
			for _, r := range got {
				total += r.Len()
			}
			require.Equal(t, tc.to-tc.from+1, total)
		})
	}
}

func TestSplitRangeNearMaxUint(t *testing.T) {
	const top = ^uint64(0)
	got, err := SplitRange(top-2, top, 2)
	require.NoError(t, err)
	require.Equal(t, []BlockRange{{top - 2, top - 1}, {top, top}}, got)
}

func TestSafeHead(t *testing.T) {
	head, ok := SafeHead(100, 0)
	require.True(t, ok)
	require.Equal(t, uint64(100), head)

	head, ok = SafeHead(100, 12)
	require.True(t, ok)
	require.Equal(t, uint64(88), head)

	_, ok = SafeHead(5, 12)
	require.False(t, ok)
}
