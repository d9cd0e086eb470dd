// Package chainweb models the wire and domain types of the multi-chain
// proof-of-work network this indexer ingests: blocks, transactions, events,
// transfers, signers, balances, guards, contracts and the sync-progress and
// dispatch records that glue the pipelines together. See spec §3.
package chainweb

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which pipeline produced a SyncStatus or SyncError row.
type Source string

const (
	SourceArchive   Source = "ARCHIVE"
	SourceAPI       Source = "API"
	SourceBackfill  Source = "BACKFILL"
	SourceStreaming Source = "STREAMING"
)

// TransferType classifies a Transfer as moving a fungible or non-fungible
// asset.
type TransferType string

const (
	TransferFungible    TransferType = "fungible"
	TransferNonFungible TransferType = "non-fungible"
)

// Block is a single block header plus its decoded payload metadata. Hash is
// globally unique; (ChainID, Height) is not, since forks are possible.
// Blocks are immutable after insert except for the Canonical flag carried
// on their child Transactions (see Canonicalisation in spec §4.5).
type Block struct {
	ID                int64
	Hash              string
	ChainID           int
	Height            uint64
	ParentHash        string
	CreationTime      int64 // seconds; decoded from a decimal-string on the wire
	EpochStart        int64 // seconds; decoded from a decimal-string on the wire
	FeatureFlags      int64 // two's-complement reinterpretation of an unsigned u64, see featureflags.go
	Weight            string // arbitrary-precision PoW weight, kept as the wire's decimal string
	Target            string
	Nonce             string
	PayloadHash       string
	Adjacents         map[int]string // chainId -> hash
	MinerData         json.RawMessage
	TransactionsHash  string
	OutputsHash       string
	Coinbase          json.RawMessage
	TransactionsCount int
}

// Transaction belongs to one Block. RequestKey is unique within a block.
// Canonical is a derived flag: true while the containing block lies on the
// heaviest chain at (ChainID, Height).
type Transaction struct {
	ID           int64
	BlockID      int64
	RequestKey   string
	Hash         string
	Sender       string
	ChainID      int
	CreationTime int64
	Result       json.RawMessage
	Logs         json.RawMessage
	NumEvents    int
	TxID         uint64
	Canonical    bool
}

// Event belongs to one Transaction; OrderIndex is unique within it.
type Event struct {
	ID            int64
	TransactionID int64
	RequestKey    string
	ChainID       int
	OrderIndex    int
	Module        string
	Name          string
	Params        json.RawMessage
	BlockHash     string // denormalised for read access
	BlockHeight   uint64 // denormalised for read access
}

// QualifiedName returns "module.name", the identifier used to filter the
// EVENTS subscription and to populate DispatchInfo.QualifiedEventNames.
func (e Event) QualifiedName() string { return e.Module + "." + e.Name }

// Transfer is derived from a TRANSFER event observed on a Transaction.
type Transfer struct {
	ID          int64
	TransactionID int64
	ContractID  *int64
	Amount      decimal.Decimal
	FromAccount string
	ToAccount   string
	ChainID     int
	ModuleHash  string
	ModuleName  string
	RequestKey  string
	PayloadHash string
	Type        TransferType
	HasTokenID  bool
	TokenID     string
	Network     string
	Canonical   bool
}

// Signer belongs to one Transaction.
type Signer struct {
	ID         int64
	TransactionID int64
	PubKey     string
	Address    string
	OrderIndex int
	CList      json.RawMessage
}

// Balance is keyed by (Account, ChainID, Module, TokenID). Mutated by
// credit/debit observation of transfer events as each new block is
// materialised.
type Balance struct {
	ID      int64
	Account string
	ChainID int
	Module  string
	TokenID string // empty for fungible balances
	Balance decimal.Decimal
}

// Key returns the identity tuple for this balance row, used as a map key
// when batching balance updates within one Materialiser transaction.
func (b Balance) Key() BalanceKey {
	return BalanceKey{Account: b.Account, ChainID: b.ChainID, Module: b.Module, TokenID: b.TokenID}
}

// BalanceKey is the (account, chainId, module, tokenId?) identity of a
// Balance row.
type BalanceKey struct {
	Account string
	ChainID int
	Module  string
	TokenID string
}

// Guard is rebuilt wholesale by the Guards Reconciler; it has no
// incremental-update path.
type Guard struct {
	ID      int64
	Account string
	ChainID int
	Module  string
	Keys    []string
	Predicate string
}

// Contract is keyed by (Network, ModuleName, ChainID).
type Contract struct {
	ID         int64
	Network    string
	ModuleName string
	ChainID    int
	Symbol     string
	Decimals   int
	Type       TransferType
}

// SyncStatus is keyed by (Network, ChainID, Prefix, Source). Exactly one of
// Key (object-store cursor) or {FromHeight, ToHeight} (height-range cursor)
// is meaningful, depending on Source.
type SyncStatus struct {
	ID         int64
	Network    string
	ChainID    int
	Prefix     string
	Source     Source
	Key        string // last processed object-store key, for ARCHIVE/BACKFILL
	FromHeight uint64
	ToHeight   uint64
	UpdatedAt  time.Time
}

// HeightRange is a contiguous, inclusive range of block heights.
type HeightRange struct {
	FromHeight uint64
	ToHeight   uint64
}

// SyncError records unrecoverable retry exhaustion for a height range on a
// given chain/source. Deleted once a later retry succeeds.
type SyncError struct {
	ID         int64
	Network    string
	ChainID    int
	FromHeight uint64
	ToHeight   uint64
	Source     Source
	CreatedAt  time.Time
}

// StreamingError records a block the Tip Streamer received but could not
// persist. Cleared, per chain, once the Gap Filler finds no missing height
// on that chain.
type StreamingError struct {
	ID      int64
	Hash    string
	ChainID int
}

// DispatchInfo is the in-memory record published to subscribers when a new
// block is successfully materialised. It is never persisted.
type DispatchInfo struct {
	Hash                string   `json:"hash"`
	ChainID             int      `json:"chainId"`
	Height              uint64   `json:"height"`
	RequestKeys         []string `json:"requestKeys"`
	QualifiedEventNames []string `json:"qualifiedEventNames"`
}
