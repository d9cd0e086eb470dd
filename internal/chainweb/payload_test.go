package chainweb

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodePayloadRoundTrip(t *testing.T) {
	minerData := []byte(`{"account":"miner-one"}`)
	coinbase := []byte(`{"result":{"status":"success"}}`)
	cmd := []byte(`{"cmd":"{}"}`)
	result := []byte(`{"result":{"status":"success"}}`)

	raw := RawPayload{
		MinerData: base64.StdEncoding.EncodeToString(minerData),
		Coinbase:  base64.StdEncoding.EncodeToString(coinbase),
		Transactions: [][2]string{
			{base64.StdEncoding.EncodeToString(cmd), base64.StdEncoding.EncodeToString(result)},
		},
	}

	decoded, err := DecodePayload(raw)
	require.NoError(t, err)
	require.JSONEq(t, string(minerData), string(decoded.MinerData))
	require.JSONEq(t, string(coinbase), string(decoded.Coinbase))
	require.Len(t, decoded.Transactions, 1)
	require.JSONEq(t, string(cmd), string(decoded.Transactions[0].Cmd))
	require.JSONEq(t, string(result), string(decoded.Transactions[0].Result))
}

func TestDecodePayloadEmptyFieldsAreNil(t *testing.T) {
	decoded, err := DecodePayload(RawPayload{})
	require.NoError(t, err)
	require.Nil(t, decoded.MinerData)
	require.Nil(t, decoded.Coinbase)
	require.Empty(t, decoded.Transactions)
}

func TestDecodePayloadInvalidBase64(t *testing.T) {
	_, err := DecodePayload(RawPayload{MinerData: "not-valid-base64!!!"})
	require.Error(t, err)
}

func TestDecodePayloadNonJSONBase64(t *testing.T) {
	_, err := DecodePayload(RawPayload{MinerData: base64.StdEncoding.EncodeToString([]byte("not json"))})
	require.Error(t, err)
}

func TestClassifyCommandExecution(t *testing.T) {
	inner := `{"payload":{"exec":{"code":"(coin.transfer)","data":{}}}}`
	outer, err := json.Marshal(map[string]string{"cmd": inner})
	require.NoError(t, err)

	variant, exec, cont, err := ClassifyCommand(outer)
	require.NoError(t, err)
	require.Equal(t, VariantExecution, variant)
	require.NotNil(t, exec)
	require.Nil(t, cont)
	require.Equal(t, "(coin.transfer)", exec.Code)
}

func TestClassifyCommandContinuation(t *testing.T) {
	inner := `{"payload":{"cont":{"pactId":"abc","step":1,"rollback":false,"data":{}}}}`
	outer, err := json.Marshal(map[string]string{"cmd": inner})
	require.NoError(t, err)

	variant, exec, cont, err := ClassifyCommand(outer)
	require.NoError(t, err)
	require.Equal(t, VariantContinuation, variant)
	require.Nil(t, exec)
	require.NotNil(t, cont)
	require.Equal(t, "abc", cont.PactID)
	require.Equal(t, 1, cont.Step)
}

func TestClassifyCommandNeitherVariant(t *testing.T) {
	inner := `{"payload":{}}`
	outer, err := json.Marshal(map[string]string{"cmd": inner})
	require.NoError(t, err)

	_, _, _, err = ClassifyCommand(outer)
	require.Error(t, err)
}
