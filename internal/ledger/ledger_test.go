package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadena-io/chainweb-indexer/internal/chainweb"
)

func TestGroupContiguousMergesAdjacentHeights(t *testing.T) {
	got := groupContiguous([]uint64{10, 11, 12, 15, 16, 20}, 0)
	require.Equal(t, []chainweb.HeightRange{
		{FromHeight: 10, ToHeight: 12},
		{FromHeight: 15, ToHeight: 16},
		{FromHeight: 20, ToHeight: 20},
	}, got)
}

func TestGroupContiguousEmptyInput(t *testing.T) {
	require.Nil(t, groupContiguous(nil, 0))
}

func TestGroupContiguousSingleHeight(t *testing.T) {
	got := groupContiguous([]uint64{42}, 0)
	require.Equal(t, []chainweb.HeightRange{{FromHeight: 42, ToHeight: 42}}, got)
}

func TestGroupContiguousRespectsLimit(t *testing.T) {
	got := groupContiguous([]uint64{1, 2, 5, 6, 9, 9 + 1}, 2)
	require.Len(t, got, 2)
	require.Equal(t, chainweb.HeightRange{FromHeight: 1, ToHeight: 2}, got[0])
	require.Equal(t, chainweb.HeightRange{FromHeight: 5, ToHeight: 6}, got[1])
}

func TestGroupContiguousAllContiguous(t *testing.T) {
	got := groupContiguous([]uint64{100, 101, 102, 103}, 0)
	require.Equal(t, []chainweb.HeightRange{{FromHeight: 100, ToHeight: 103}}, got)
}
