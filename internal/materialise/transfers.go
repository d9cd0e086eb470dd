package materialise

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/kadena-io/chainweb-indexer/internal/chainweb"
)

// transferEventName is the event name every module's TRANSFER event carries
// (spec §4.5 step 3: "an event M.TRANSFER").
const transferEventName = "TRANSFER"

// nftModules lists module names whose TRANSFER events move a non-fungible
// asset rather than a fungible one (spec §4.5 step 3's "M classifies as
// fungible unless the module is a known NFT module").
var nftModules = map[string]bool{
	"marmalade-v2.ledger": true,
	"marmalade.ledger":    true,
	"n_official.kadena-poker-nft": true,
}

func isTransferEvent(ev eventWire) bool {
	return ev.Name == transferEventName
}

// materialiseTransfer derives and persists a Transfer row from a TRANSFER
// event, then applies its balance delta to both accounts involved.
func (m *Materialiser) materialiseTransfer(ctx context.Context, txID int64, requestKey string, chainID int, network string, ev eventWire) error {
	var args []json.RawMessage
	if err := json.Unmarshal(ev.Params, &args); err != nil {
		return fmt.Errorf("unmarshalling transfer params: %w", err)
	}
	if len(args) < 3 {
		return fmt.Errorf("transfer event has %d params, want at least 3", len(args))
	}

	var from, to string
	if err := json.Unmarshal(args[0], &from); err != nil {
		return fmt.Errorf("unmarshalling transfer from: %w", err)
	}
	if err := json.Unmarshal(args[1], &to); err != nil {
		return fmt.Errorf("unmarshalling transfer to: %w", err)
	}
	amount, err := decodeAmount(args[2])
	if err != nil {
		return fmt.Errorf("unmarshalling transfer amount: %w", err)
	}

	var tokenID string
	hasTokenID := len(args) >= 4
	if hasTokenID {
		if err := json.Unmarshal(args[3], &tokenID); err != nil {
			return fmt.Errorf("unmarshalling transfer tokenId: %w", err)
		}
	}

	transferType := chainweb.TransferFungible
	if nftModules[ev.Module] {
		transferType = chainweb.TransferNonFungible
	}

	contractID, err := m.upsertContract(ctx, network, ev.Module, chainID, transferType)
	if err != nil {
		return fmt.Errorf("upserting contract: %w", err)
	}

	if _, err := m.q.Exec(ctx, `
		INSERT INTO transfers (
			transaction_id, contract_id, amount, from_acct, to_acct, chain_id,
			module_name, request_key, type, has_token_id, token_id, network, canonical
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,TRUE)
	`, txID, contractID, amount, from, to, chainID, ev.Module, requestKey, string(transferType), hasTokenID, tokenID, network); err != nil {
		return fmt.Errorf("inserting transfer: %w", err)
	}

	if from != "" {
		if err := m.applyBalanceDelta(ctx, from, chainID, ev.Module, tokenID, amount.Neg()); err != nil {
			return fmt.Errorf("debiting sender balance: %w", err)
		}
	}
	if to != "" {
		if err := m.applyBalanceDelta(ctx, to, chainID, ev.Module, tokenID, amount); err != nil {
			return fmt.Errorf("crediting receiver balance: %w", err)
		}
	}
	return nil
}

func decodeAmount(raw json.RawMessage) (decimal.Decimal, error) {
	// Pact decimals can arrive either as a bare JSON number or as the
	// {"decimal": "..."} wire wrapper used for values exceeding float64
	// precision; try the wrapper first since it's lossless.
	var wrapped struct {
		Decimal string `json:"decimal"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Decimal != "" {
		return decimal.NewFromString(wrapped.Decimal)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return decimal.Decimal{}, fmt.Errorf("amount is neither a decimal wrapper nor a number: %w", err)
	}
	return decimal.NewFromFloat(f), nil
}

// upsertContract returns the id of the (network, moduleName, chainId)
// contract row, creating it with default symbol/decimals if absent.
func (m *Materialiser) upsertContract(ctx context.Context, network, moduleName string, chainID int, transferType chainweb.TransferType) (int64, error) {
	var id int64
	row := m.q.QueryRow(ctx, `
		INSERT INTO contracts (network, module_name, chain_id, type)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (network, module_name, chain_id) DO UPDATE SET type = EXCLUDED.type
		RETURNING id
	`, network, moduleName, chainID, string(transferType))
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// applyBalanceDelta adds delta to the balance row for (account, chainId,
// module, tokenId), creating the row at zero on first observation (spec
// §4.5 step 3).
func (m *Materialiser) applyBalanceDelta(ctx context.Context, account string, chainID int, module, tokenID string, delta decimal.Decimal) error {
	_, err := m.q.Exec(ctx, `
		INSERT INTO balances (account, chain_id, module, token_id, balance)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (account, chain_id, module, token_id)
		DO UPDATE SET balance = balances.balance + EXCLUDED.balance
	`, account, chainID, module, tokenID, delta)
	return err
}

// BalanceRow is a cursor-friendly projection used by the Guards Reconciler
// to walk all balances in id-ascending batches.
type BalanceRow struct {
	ID      int64
	Account string
	ChainID int
	Module  string
}

// ListBalancesBatch returns up to limit Balance rows with id > afterID,
// ordered by id ascending — the Guards Reconciler's batch-1000 cursor (spec
// §4.6).
func ListBalancesBatch(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, afterID int64, limit int) ([]BalanceRow, error) {
	rows, err := q.Query(ctx, `
		SELECT id, account, chain_id, module FROM balances WHERE id > $1 ORDER BY id ASC LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing balances batch: %w", err)
	}
	defer rows.Close()

	var out []BalanceRow
	for rows.Next() {
		var b BalanceRow
		if err := rows.Scan(&b.ID, &b.Account, &b.ChainID, &b.Module); err != nil {
			return nil, fmt.Errorf("scanning balance row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
