package guards

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildDetailsQueryEmbedsModuleAndAccount(t *testing.T) {
	body, err := buildDetailsQuery("coin", "k:alice")
	require.NoError(t, err)

	var outer struct {
		Hash string `json:"hash"`
		Cmd  string `json:"cmd"`
	}
	require.NoError(t, json.Unmarshal(body, &outer))

	var cmd struct {
		Payload struct {
			Exec struct {
				Code string `json:"code"`
			} `json:"exec"`
		} `json:"payload"`
		Nonce string `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal([]byte(outer.Cmd), &cmd))
	require.Equal(t, `(coin.details "k:alice")`, cmd.Payload.Exec.Code)
	require.Equal(t, "guards-reconciler", cmd.Nonce)
}

func TestBuildDetailsQueryEscapesAccountQuotes(t *testing.T) {
	body, err := buildDetailsQuery("coin", `k:weird"account`)
	require.NoError(t, err)
	require.Contains(t, string(body), `\"`)
}

func TestParseGuardExtractsKeysAndPredicate(t *testing.T) {
	raw := json.RawMessage(`{
		"result": {
			"status": "success",
			"data": {"guard": {"keys": ["abc123", "def456"], "pred": "keys-all"}}
		}
	}`)
	keys, pred, err := parseGuard(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"abc123", "def456"}, keys)
	require.Equal(t, "keys-all", pred)
}

func TestParseGuardReturnsErrorOnFailureStatus(t *testing.T) {
	raw := json.RawMessage(`{
		"result": {"status": "failure", "error": {"message": "row not found"}}
	}`)
	_, _, err := parseGuard(raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "row not found")
}

func TestParseGuardRejectsInvalidJSON(t *testing.T) {
	_, _, err := parseGuard(json.RawMessage(`not json`))
	require.Error(t, err)
}

func TestParseGuardHandlesEmptyKeysList(t *testing.T) {
	raw := json.RawMessage(`{
		"result": {"status": "success", "data": {"guard": {"keys": [], "pred": "keys-any"}}}
	}`)
	keys, pred, err := parseGuard(raw)
	require.NoError(t, err)
	require.Empty(t, keys)
	require.Equal(t, "keys-any", pred)
}
