package materialise

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// signerWire is one entry of a signed command's "signers" array.
type signerWire struct {
	PubKey string          `json:"pubKey"`
	Addr   string          `json:"addr"`
	CList  json.RawMessage `json:"clist"`
}

type decodedSigner struct {
	PubKey  string
	Address string
	CList   json.RawMessage
}

// outerCommand is the signed-command envelope as it appears in a payload
// transaction's Cmd field: {hash, sigs, cmd}, with cmd itself a JSON-encoded
// string.
type outerCommand struct {
	Hash string `json:"hash"`
	Cmd  string `json:"cmd"`
}

type innerCommand struct {
	Signers []signerWire `json:"signers"`
	Meta    struct {
		Sender string `json:"sender"`
	} `json:"meta"`
}

// decodeCommand extracts the request key (the command hash, or the outer
// envelope's own Hash field when present), sender and signer list from a
// payload transaction's raw signed-command JSON.
func decodeCommand(raw json.RawMessage) (requestKey, sender string, signers []decodedSigner, err error) {
	var outer outerCommand
	if err := json.Unmarshal(raw, &outer); err != nil {
		return "", "", nil, fmt.Errorf("unmarshalling command envelope: %w", err)
	}
	requestKey = outer.Hash
	if requestKey == "" {
		requestKey = hashOf(raw)
	}

	var inner innerCommand
	if err := json.Unmarshal([]byte(outer.Cmd), &inner); err != nil {
		return "", "", nil, fmt.Errorf("unmarshalling command payload: %w", err)
	}

	signers = make([]decodedSigner, 0, len(inner.Signers))
	for _, s := range inner.Signers {
		signers = append(signers, decodedSigner{PubKey: s.PubKey, Address: s.Addr, CList: s.CList})
	}
	return requestKey, inner.Meta.Sender, signers, nil
}

// hashOf returns the base64url-unpadded SHA-256 digest of raw, matching the
// request-key derivation used when a command doesn't carry its own hash
// field (archive payloads always do; this is a defensive fallback).
func hashOf(raw json.RawMessage) string {
	sum := sha256.Sum256(raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// eventWire is one entry of a transaction result's "events" array.
type eventWire struct {
	Module string          `json:"module"`
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}
