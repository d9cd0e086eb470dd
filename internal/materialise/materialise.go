// Package materialise implements the Block Materialiser (spec §4.5): the
// single write path from a decoded block envelope to persisted rows, run
// inside a caller-provided transaction.
package materialise

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kadena-io/chainweb-indexer/internal/chainweb"
	"github.com/kadena-io/chainweb-indexer/internal/errs"
	"github.com/kadena-io/chainweb-indexer/internal/storage"
	"github.com/kadena-io/chainweb-indexer/internal/tracing"
)

// Materialiser writes decoded block envelopes to the relational store and
// produces the DispatchInfo the Publication Bus fans out on success.
type Materialiser struct {
	q       storage.Querier
	network string
}

// New builds a Materialiser bound to q — ordinarily a pgx.Tx, since every
// call site owns the surrounding transaction (spec §4.5's "within a
// caller-provided DB transaction").
func New(q storage.Querier, network string) *Materialiser {
	return &Materialiser{q: q, network: network}
}

// Materialise persists hdr/payload as a block and its transactions, derives
// transfers and balance updates from the event stream, and returns the
// DispatchInfo to publish. A duplicate Block.hash is treated as idempotent
// success and reported by returning (nil, nil).
func (m *Materialiser) Materialise(ctx context.Context, source chainweb.Source, hdr chainweb.RawHeader, payload chainweb.DecodedPayload) (_ *chainweb.DispatchInfo, err error) {
	ctx, span := tracing.Start(ctx, "materialise", "Materialise",
		tracing.ChainID(hdr.ChainID), tracing.Height(hdr.Height), tracing.Network(m.network))
	defer tracing.End(span, &err)

	block, err := buildBlockAttributes(hdr)
	if err != nil {
		return nil, errs.SchemaValidation("materialise.buildBlockAttributes", err)
	}
	block.MinerData = payload.MinerData
	block.Coinbase = payload.Coinbase
	block.TransactionsCount = len(payload.Transactions)

	blockID, err := m.insertBlock(ctx, block)
	if err != nil {
		if errs.IsUniqueViolation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("inserting block: %w", err)
	}

	// A second block at the same (chainId, height) is a reorg candidate;
	// recompute canonicality for the whole height before returning so the
	// DispatchInfo we publish reflects the post-reconciliation state (spec
	// §4.5 "Canonicalisation").
	if err := NewReconciler(m.q).ReconcileHeight(ctx, hdr.ChainID, hdr.Height); err != nil {
		return nil, fmt.Errorf("reconciling canonical branch: %w", err)
	}

	var requestKeys []string
	qualifiedEventNames := map[string]struct{}{}

	for i, tx := range payload.Transactions {
		info, err := m.materialiseTransaction(ctx, blockID, hdr, i, tx)
		if err != nil {
			return nil, fmt.Errorf("materialising transaction %d: %w", i, err)
		}
		requestKeys = append(requestKeys, info.requestKey)
		for _, n := range info.qualifiedEventNames {
			qualifiedEventNames[n] = struct{}{}
		}
	}

	if err := m.insertCoinbase(ctx, blockID, hdr, payload.Coinbase); err != nil {
		return nil, fmt.Errorf("inserting coinbase: %w", err)
	}

	names := make([]string, 0, len(qualifiedEventNames))
	for n := range qualifiedEventNames {
		names = append(names, n)
	}

	return &chainweb.DispatchInfo{
		Hash:                hdr.Hash,
		ChainID:             hdr.ChainID,
		Height:              hdr.Height,
		RequestKeys:         requestKeys,
		QualifiedEventNames: names,
	}, nil
}

func buildBlockAttributes(hdr chainweb.RawHeader) (chainweb.Block, error) {
	creationTime, err := strconv.ParseInt(hdr.CreationTime, 10, 64)
	if err != nil {
		return chainweb.Block{}, fmt.Errorf("parsing creationTime: %w", err)
	}
	epochStart, err := strconv.ParseInt(hdr.EpochStart, 10, 64)
	if err != nil {
		return chainweb.Block{}, fmt.Errorf("parsing epochStart: %w", err)
	}

	adjacents := make(map[int]string, len(hdr.Adjacents))
	for k, v := range hdr.Adjacents {
		id, err := strconv.Atoi(k)
		if err != nil {
			return chainweb.Block{}, fmt.Errorf("parsing adjacent chain id %q: %w", k, err)
		}
		adjacents[id] = v
	}

	return chainweb.Block{
		Hash:             hdr.Hash,
		ChainID:          hdr.ChainID,
		Height:           hdr.Height,
		ParentHash:       hdr.ParentHash,
		CreationTime:     creationTime,
		EpochStart:       epochStart,
		FeatureFlags:     chainweb.FeatureFlagsToSigned(hdr.FeatureFlags),
		Weight:           hdr.Weight,
		Target:           hdr.Target,
		Nonce:            hdr.Nonce,
		PayloadHash:      hdr.PayloadHash,
		Adjacents:        adjacents,
		TransactionsHash: hdr.TransactionsHash,
		OutputsHash:      hdr.OutputsHash,
	}, nil
}

func (m *Materialiser) insertBlock(ctx context.Context, b chainweb.Block) (int64, error) {
	adjacents, err := json.Marshal(b.Adjacents)
	if err != nil {
		return 0, fmt.Errorf("marshalling adjacents: %w", err)
	}

	var id int64
	row := m.q.QueryRow(ctx, `
		INSERT INTO blocks (
			hash, chain_id, height, parent_hash, creation_time, epoch_start,
			feature_flags, weight, target, nonce, payload_hash, adjacents,
			miner_data, transactions_hash, outputs_hash, coinbase, transactions_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id
	`, b.Hash, b.ChainID, b.Height, b.ParentHash, b.CreationTime, b.EpochStart,
		b.FeatureFlags, b.Weight, b.Target, b.Nonce, b.PayloadHash, adjacents,
		nullableRaw(b.MinerData), b.TransactionsHash, b.OutputsHash, nullableRaw(b.Coinbase), b.TransactionsCount)

	if err := row.Scan(&id); err != nil {
		return 0, storage.TranslateError(err)
	}
	return id, nil
}

func nullableRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

type txResult struct {
	requestKey          string
	qualifiedEventNames []string
}

func (m *Materialiser) materialiseTransaction(ctx context.Context, blockID int64, hdr chainweb.RawHeader, orderIndex int, tx chainweb.DecodedTransaction) (txResult, error) {
	requestKey, sender, signers, err := decodeCommand(tx.Cmd)
	if err != nil {
		return txResult{}, errs.SchemaValidation("materialise.decodeCommand", err)
	}

	var txOut struct {
		Result json.RawMessage `json:"result"`
		Logs   *string         `json:"logs"`
		Events []eventWire     `json:"events"`
		TxID   *uint64         `json:"txId"`
	}
	if err := json.Unmarshal(tx.Result, &txOut); err != nil {
		return txResult{}, errs.SchemaValidation("materialise.decodeResult", err)
	}

	var txID int64
	row := m.q.QueryRow(ctx, `
		INSERT INTO transactions (block_id, request_key, hash, sender, chain_id, creation_time, result, logs, num_events, txid, canonical)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,TRUE)
		RETURNING id
	`, blockID, requestKey, hashOf(tx.Cmd), sender, hdr.ChainID, parseCreationTime(hdr), txOut.Result, txOut.Logs, len(txOut.Events), txOut.TxID)
	if err := row.Scan(&txID); err != nil {
		return txResult{}, fmt.Errorf("inserting transaction: %w", storage.TranslateError(err))
	}

	for i, s := range signers {
		clist := s.CList
		if len(clist) == 0 {
			clist = json.RawMessage("[]")
		}
		if _, err := m.q.Exec(ctx, `
			INSERT INTO signers (transaction_id, pubkey, address, order_index, clist)
			VALUES ($1,$2,$3,$4,$5)
		`, txID, s.PubKey, s.Address, i, clist); err != nil {
			return txResult{}, fmt.Errorf("inserting signer: %w", err)
		}
	}

	var qualifiedNames []string
	for i, ev := range txOut.Events {
		qname := ev.Module + "." + ev.Name
		qualifiedNames = append(qualifiedNames, qname)

		params, err := json.Marshal(ev.Params)
		if err != nil {
			return txResult{}, fmt.Errorf("marshalling event params: %w", err)
		}
		if _, err := m.q.Exec(ctx, `
			INSERT INTO events (transaction_id, request_key, chain_id, order_index, module, name, params, block_hash, block_height)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, txID, requestKey, hdr.ChainID, i, ev.Module, ev.Name, params, hdr.Hash, hdr.Height); err != nil {
			return txResult{}, fmt.Errorf("inserting event: %w", err)
		}

		if isTransferEvent(ev) {
			if err := m.materialiseTransfer(ctx, txID, requestKey, hdr.ChainID, m.network, ev); err != nil {
				return txResult{}, fmt.Errorf("materialising transfer: %w", err)
			}
		}
	}

	return txResult{requestKey: requestKey, qualifiedEventNames: qualifiedNames}, nil
}

// insertCoinbase records the block's coinbase output as a synthetic
// transaction with sender "coinbase" (spec §4.5 step 4).
func (m *Materialiser) insertCoinbase(ctx context.Context, blockID int64, hdr chainweb.RawHeader, coinbase json.RawMessage) error {
	if len(coinbase) == 0 {
		return nil
	}
	var out struct {
		Result json.RawMessage `json:"result"`
	}
	// The coinbase output shape mirrors a transaction result envelope; treat
	// the whole blob as the result if it doesn't match.
	if err := json.Unmarshal(coinbase, &out); err != nil || len(out.Result) == 0 {
		out.Result = coinbase
	}
	requestKey := "coinbase:" + hdr.Hash
	_, err := m.q.Exec(ctx, `
		INSERT INTO transactions (block_id, request_key, sender, chain_id, creation_time, result, num_events, canonical)
		VALUES ($1,$2,'coinbase',$3,$4,$5,0,TRUE)
		ON CONFLICT (block_id, request_key) DO NOTHING
	`, blockID, requestKey, hdr.ChainID, parseCreationTime(hdr), out.Result)
	return err
}

func parseCreationTime(hdr chainweb.RawHeader) int64 {
	t, _ := strconv.ParseInt(hdr.CreationTime, 10, 64)
	return t
}
