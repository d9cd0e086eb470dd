package chainweb

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Envelope is the JSON shape delivered by both the archive object store and
// the SSE tip stream: a decoded header plus a payload whose binary-ish
// fields arrive base64-encoded (spec §6).
type Envelope struct {
	Header             RawHeader `json:"header"`
	PayloadWithOutputs  RawPayload `json:"payloadWithOutputs"`
}

// RawHeader is the wire shape of a block header before MinerData and
// Coinbase are base64-decoded.
type RawHeader struct {
	Hash              string            `json:"hash"`
	ChainID           int               `json:"chainId"`
	Height            uint64            `json:"height"`
	ParentHash        string            `json:"parent"`
	CreationTime      string            `json:"creationTime"` // decimal-string seconds
	EpochStart        string            `json:"epochStart"`   // decimal-string seconds
	FeatureFlags      uint64            `json:"flags"`
	Weight            string            `json:"weight"`
	Target            string            `json:"target"`
	Nonce             string            `json:"nonce"`
	PayloadHash       string            `json:"payloadHash"`
	Adjacents         map[string]string `json:"adjacents"`
	TransactionsHash  string            `json:"transactionsHash"`
	OutputsHash       string            `json:"outputsHash"`
}

// RawPayload is the wire shape of a block payload before its base64 fields
// are decoded: MinerData, Coinbase, and each transaction's two components.
type RawPayload struct {
	MinerData    string     `json:"minerData"`    // base64 JSON
	Coinbase     string     `json:"coinbase"`     // base64 JSON
	Transactions [][2]string `json:"transactions"` // each entry [cmd, result], base64 JSON
	TransactionsHash string `json:"transactionsHash"`
	OutputsHash      string `json:"outputsHash"`
	PayloadHash      string `json:"payloadHash"`
}

// DecodedPayload holds a payload after its base64 components have been
// turned into raw JSON.
type DecodedPayload struct {
	MinerData    json.RawMessage
	Coinbase     json.RawMessage
	Transactions []DecodedTransaction
}

// DecodedTransaction is one payload transaction after base64 decode: Cmd is
// the signed command (code/data or continuation), Result is its execution
// result.
type DecodedTransaction struct {
	Cmd    json.RawMessage
	Result json.RawMessage
}

// DecodePayload base64-decodes MinerData, Coinbase and each transaction
// component of p, returning an error on malformed base64 or on decoded
// bytes that are not valid JSON. Transaction rows are fixed [cmd, result]
// pairs, so a missing component arrives as "" and decodes to nil rather
// than being rejected here.
func DecodePayload(p RawPayload) (DecodedPayload, error) {
	minerData, err := decodeBase64JSON(p.MinerData)
	if err != nil {
		return DecodedPayload{}, fmt.Errorf("decoding minerData: %w", err)
	}
	coinbase, err := decodeBase64JSON(p.Coinbase)
	if err != nil {
		return DecodedPayload{}, fmt.Errorf("decoding coinbase: %w", err)
	}
	txs := make([]DecodedTransaction, 0, len(p.Transactions))
	for i, pair := range p.Transactions {
		cmd, err := decodeBase64JSON(pair[0])
		if err != nil {
			return DecodedPayload{}, fmt.Errorf("decoding transactions[%d][0]: %w", i, err)
		}
		result, err := decodeBase64JSON(pair[1])
		if err != nil {
			return DecodedPayload{}, fmt.Errorf("decoding transactions[%d][1]: %w", i, err)
		}
		txs = append(txs, DecodedTransaction{Cmd: cmd, Result: result})
	}
	return DecodedPayload{MinerData: minerData, Coinbase: coinbase, Transactions: txs}, nil
}

func decodeBase64JSON(s string) (json.RawMessage, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("decoded bytes are not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// PayloadVariant distinguishes the two shapes a decoded Cmd can take, per
// the tagged-variant design note in spec §9: an "exec" payload (which
// carries the code) selects Execution, a "cont" payload selects
// Continuation, and a payload with neither is an error.
type PayloadVariant int

const (
	VariantUnknown PayloadVariant = iota
	VariantExecution
	VariantContinuation
)

// cmdEnvelope is the outer {cmd, sigs} wrapper every signed command carries;
// cmd itself is a JSON-encoded string holding {payload, meta, ...}.
type cmdEnvelope struct {
	Cmd string `json:"cmd"`
}

type cmdPayload struct {
	Payload struct {
		Exec *struct {
			Code string          `json:"code"`
			Data json.RawMessage `json:"data"`
		} `json:"exec"`
		Cont *struct {
			PactID   string          `json:"pactId"`
			Step     int             `json:"step"`
			Rollback bool            `json:"rollback"`
			Proof    *string         `json:"proof"`
			Data     json.RawMessage `json:"data"`
		} `json:"cont"`
	} `json:"payload"`
}

// Execution is the decoded Execution variant of a command payload.
type Execution struct {
	Code string
	Data json.RawMessage
}

// Continuation is the decoded Continuation variant of a command payload.
type Continuation struct {
	PactID   string
	Step     int
	Rollback bool
	Proof    *string
	Data     json.RawMessage
}

// ClassifyCommand parses rawCmd (a DecodedTransaction.Cmd) and returns which
// variant it is along with the decoded payload. Unparsable commands are
// reported as a schema-validation error by the caller.
func ClassifyCommand(rawCmd json.RawMessage) (PayloadVariant, *Execution, *Continuation, error) {
	var env cmdEnvelope
	if err := json.Unmarshal(rawCmd, &env); err != nil {
		return VariantUnknown, nil, nil, fmt.Errorf("unmarshalling command envelope: %w", err)
	}
	var inner cmdPayload
	if err := json.Unmarshal([]byte(env.Cmd), &inner); err != nil {
		return VariantUnknown, nil, nil, fmt.Errorf("unmarshalling command payload: %w", err)
	}
	switch {
	case inner.Payload.Exec != nil:
		return VariantExecution, &Execution{Code: inner.Payload.Exec.Code, Data: inner.Payload.Exec.Data}, nil, nil
	case inner.Payload.Cont != nil:
		c := inner.Payload.Cont
		return VariantContinuation, nil, &Continuation{
			PactID: c.PactID, Step: c.Step, Rollback: c.Rollback, Proof: c.Proof, Data: c.Data,
		}, nil
	default:
		return VariantUnknown, nil, nil, fmt.Errorf("command payload has neither exec nor cont")
	}
}
