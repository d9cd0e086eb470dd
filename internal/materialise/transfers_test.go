package materialise

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestIsTransferEventMatchesExactName(t *testing.T) {
	require.True(t, isTransferEvent(eventWire{Name: "TRANSFER"}))
	require.False(t, isTransferEvent(eventWire{Name: "transfer"}))
	require.False(t, isTransferEvent(eventWire{Name: "MINT"}))
}

func TestDecodeAmountPrefersDecimalWrapper(t *testing.T) {
	amt, err := decodeAmount(json.RawMessage(`{"decimal":"123.456789012345"}`))
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("123.456789012345").Equal(amt))
}

func TestDecodeAmountFallsBackToBareNumber(t *testing.T) {
	amt, err := decodeAmount(json.RawMessage(`42.5`))
	require.NoError(t, err)
	require.True(t, decimal.NewFromFloat(42.5).Equal(amt))
}

func TestDecodeAmountRejectsNonNumericNonWrapper(t *testing.T) {
	_, err := decodeAmount(json.RawMessage(`"not a number"`))
	require.Error(t, err)
}

func TestDecodeAmountRejectsInvalidWrappedDecimalString(t *testing.T) {
	_, err := decodeAmount(json.RawMessage(`{"decimal":"not-a-decimal"}`))
	require.Error(t, err)
}

func TestNftModulesClassification(t *testing.T) {
	require.True(t, nftModules["marmalade-v2.ledger"])
	require.True(t, nftModules["marmalade.ledger"])
	require.False(t, nftModules["coin"])
}
