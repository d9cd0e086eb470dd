package chainweb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFeatureFlagsRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, math.MaxUint64, math.MaxInt64, uint64(math.MaxInt64) + 1}
	for _, u := range cases {
		signed := FeatureFlagsToSigned(u)
		require.Equal(t, u, FeatureFlagsToUnsigned(signed))
	}
}

func TestFeatureFlagsRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		u := rapid.Uint64().Draw(t, "u")
		require.Equal(t, u, FeatureFlagsToUnsigned(FeatureFlagsToSigned(u)))
	})
}
