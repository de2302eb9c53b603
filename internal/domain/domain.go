// Package domain holds the entities of the charm lifecycle pipeline: bookmarks,
// spells, charms, assets, address UTXOs, mempool spends, monitored addresses,
// DEX orders, holder stats and the per-network summary. None of these types
// know how to persist themselves — that is the job of internal/repository.
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Asset types a charm or asset row can carry.
const (
	AssetTypeToken = "token"
	AssetTypeNFT   = "nft"
	AssetTypeDapp  = "dapp"
	AssetTypeOther = "other"
	AssetTypeSpell = "spell"
)

// Bookmark status values.
const (
	BookmarkPending   = "pending"
	BookmarkConfirmed = "confirmed"
)

// Bookmark is the last processed block for a (blockchain, network) pair.
type Bookmark struct {
	Hash        string
	Height      int64
	Status      string
	Blockchain  string
	Network     string
	LastUpdated time.Time
}

// Spell is the container row for output 0 of a charm transaction.
type Spell struct {
	Txid        string
	BlockHeight int64
	Data        json.RawMessage
	AssetType   string
	Blockchain  string
	Network     string
	DateCreated time.Time
}

// Charm is a single programmable asset bound to a specific UTXO.
type Charm struct {
	Txid              string
	Vout              int32
	BlockHeight       *int64 // nil means mempool-resident
	Data              json.RawMessage
	AssetType         string
	Blockchain        string
	Network           string
	Address           *string
	Spent             bool
	AppID             string
	Amount            int64
	MempoolDetectedAt *time.Time
	Tags              string
	DateCreated       time.Time
}

// IsMempool reports whether the charm has not yet been confirmed in a block.
func (c *Charm) IsMempool() bool {
	return c.BlockHeight == nil
}

// Asset is the aggregate record for an app_id.
type Asset struct {
	ID          int64
	AppID       string
	Txid        string
	VoutIndex   int32
	CharmID     string
	BlockHeight int64
	Data        json.RawMessage
	AssetType   string
	Blockchain  string
	Network     string
	Name        *string
	Symbol      *string
	Description *string
	ImageURL    *string
	Decimals    *int16
	TotalSupply decimal.Decimal
	IsReference bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AddressUTXO is the per-address UTXO ledger row for monitored addresses.
// BlockHeight 0 means mempool-unconfirmed.
type AddressUTXO struct {
	Txid         string
	Vout         int32
	Network      string
	Address      string
	Value        int64
	ScriptPubkey string
	BlockHeight  int64
}

// MempoolSpend records that a mempool tx spends a given outpoint.
type MempoolSpend struct {
	SpentTxid    string
	SpentVout    int32
	Network      string
	SpendingTxid string
	DetectedAt   time.Time
}

// MonitoredAddress is an address whose BTC UTXO set the indexer maintains.
type MonitoredAddress struct {
	Address    string
	Network    string
	Source     string
	SeededAt   *time.Time
	SeedHeight *int64
	CreatedAt  time.Time
}

// DEX order sides, exec types and statuses.
const (
	DexSideAsk = "ask"
	DexSideBid = "bid"

	DexExecAllOrNone = "all_or_none"
	DexExecPartial   = "partial"

	DexStatusOpen      = "open"
	DexStatusPartial   = "partial"
	DexStatusFilled    = "filled"
	DexStatusCancelled = "cancelled"
)

// DexOrder is a detected on-chain Charms-Cast order.
type DexOrder struct {
	OrderID       string // "txid:vout"
	Platform      string
	Maker         string
	Side          string
	ExecType      string
	PartialFrom   *string
	PriceNum      int64
	PriceDen      int64
	Amount        int64
	Quantity      int64
	AssetAppID    string
	Status        string
	ParentOrderID *string
	BlockHeight   *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HolderStats is the running per (app_id, address) balance.
type HolderStats struct {
	ID               int64
	AppID            string
	Address          string
	TotalAmount      int64
	CharmCount       int64
	FirstSeenBlock   int64
	LastUpdatedBlock int64
	UpdatedAt        time.Time
}

// Summary is the per-network scoreboard.
type Summary struct {
	ID                   int64
	Network              string
	LastProcessedBlock   int64
	LatestConfirmedBlock int64
	TotalCharms          int64
	TotalTx              int64
	TotalConfirmedTx     int64
	TotalNFTs            int64
	TotalTokens          int64
	TotalDapps           int64
	TotalOther           int64
	NodeStatus           json.RawMessage
	LastUpdated          time.Time
}

// HolderDelta is an (app_id, address, block height) balance change produced
// while marking charms spent or persisting newly unspent charms. Token
// app_ids must already be rewritten to their "n/" counterpart by the caller
// before the delta is applied (see internal/processor and internal/reindex).
type HolderDelta struct {
	AppID   string
	Address string
	Delta   int64
	Height  int64
}

// SpentCharmInfo is the (app_id, address, amount) tuple fetched for a charm
// immediately before it is marked spent, so holder/supply deltas can be
// computed without a second round trip.
type SpentCharmInfo struct {
	Txid    string
	Vout    int32
	AppID   string
	Address *string
	Amount  int64
}
