package materialise

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaviestTipPicksGreaterWeight(t *testing.T) {
	candidates := []blockIdentity{
		{Hash: "aaa", Weight: "100"},
		{Hash: "bbb", Weight: "250"},
		{Hash: "ccc", Weight: "180"},
	}
	require.Equal(t, "bbb", heaviestTip(candidates).Hash)
}

func TestHeaviestTipBreaksTiesByHash(t *testing.T) {
	candidates := []blockIdentity{
		{Hash: "aaa", Weight: "100"},
		{Hash: "zzz", Weight: "100"},
		{Hash: "mmm", Weight: "100"},
	}
	require.Equal(t, "zzz", heaviestTip(candidates).Hash)
}

func TestHeaviestTipSingleCandidate(t *testing.T) {
	candidates := []blockIdentity{{Hash: "only", Weight: "42"}}
	require.Equal(t, "only", heaviestTip(candidates).Hash)
}

func TestCompareWeightNumericNotLexicographic(t *testing.T) {
	// Lexicographically "9" > "10", but numerically 10 > 9 — this is exactly
	// why weight comparison can't be a plain string compare.
	require.Equal(t, 1, compareWeight("10", "9"))
	require.Equal(t, -1, compareWeight("9", "10"))
	require.Equal(t, 0, compareWeight("100", "100"))
}

func TestCompareWeightIgnoresLeadingZeroes(t *testing.T) {
	require.Equal(t, 0, compareWeight("007", "7"))
	require.Equal(t, 0, compareWeight("0", "00"))
}

func TestNormalizeWeightStripsLeadingZeroesButKeepsOneDigit(t *testing.T) {
	require.Equal(t, "7", normalizeWeight("007"))
	require.Equal(t, "0", normalizeWeight("0"))
	require.Equal(t, "123", normalizeWeight("123"))
}
