package materialise

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func innerCmdJSON(t *testing.T, sender string) string {
	t.Helper()
	inner := `{"signers":[{"pubKey":"pub1","addr":"addr1","clist":[]}],"meta":{"sender":"` + sender + `"}}`
	return inner
}

func TestDecodeCommandUsesOuterHashAsRequestKey(t *testing.T) {
	raw, err := json.Marshal(outerCommand{Hash: "req-key-123", Cmd: innerCmdJSON(t, "k:alice")})
	require.NoError(t, err)

	requestKey, sender, signers, err := decodeCommand(raw)
	require.NoError(t, err)
	require.Equal(t, "req-key-123", requestKey)
	require.Equal(t, "k:alice", sender)
	require.Len(t, signers, 1)
	require.Equal(t, "pub1", signers[0].PubKey)
	require.Equal(t, "addr1", signers[0].Address)
}

func TestDecodeCommandFallsBackToHashOfWhenOuterHashEmpty(t *testing.T) {
	raw, err := json.Marshal(outerCommand{Hash: "", Cmd: innerCmdJSON(t, "k:bob")})
	require.NoError(t, err)

	requestKey, sender, _, err := decodeCommand(raw)
	require.NoError(t, err)
	require.Equal(t, hashOf(raw), requestKey)
	require.Equal(t, "k:bob", sender)
}

func TestDecodeCommandRejectsInvalidOuterJSON(t *testing.T) {
	_, _, _, err := decodeCommand(json.RawMessage(`not json`))
	require.Error(t, err)
}

func TestDecodeCommandRejectsInvalidInnerJSON(t *testing.T) {
	raw, err := json.Marshal(outerCommand{Hash: "h", Cmd: "not json"})
	require.NoError(t, err)

	_, _, _, err = decodeCommand(raw)
	require.Error(t, err)
}

func TestDecodeCommandHandlesNoSigners(t *testing.T) {
	raw, err := json.Marshal(outerCommand{Hash: "h", Cmd: `{"signers":[],"meta":{"sender":"k:nobody"}}`})
	require.NoError(t, err)

	_, sender, signers, err := decodeCommand(raw)
	require.NoError(t, err)
	require.Equal(t, "k:nobody", sender)
	require.Empty(t, signers)
}

func TestHashOfIsDeterministicAndURLSafe(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	h1 := hashOf(raw)
	h2 := hashOf(raw)
	require.Equal(t, h1, h2)
	require.NotContains(t, h1, "+")
	require.NotContains(t, h1, "/")
	require.NotContains(t, h1, "=")
}

func TestHashOfDiffersForDifferentInput(t *testing.T) {
	require.NotEqual(t, hashOf(json.RawMessage(`{"a":1}`)), hashOf(json.RawMessage(`{"a":2}`)))
}
