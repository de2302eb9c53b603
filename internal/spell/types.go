// Package spell implements the Spell Parser (C2): a pure function that turns
// a raw transaction into an optional set of charms, an asset summary, DEX
// detection, and tags. Grounded on
// original_source/indexer/src/domain/services/tx_analyzer.rs.
package spell

import (
	"encoding/json"

	"github.com/csic-platform/charms-indexer/internal/spell/dex"
)

// AssetInfo is one (output_index, app_index, app_id) charm found while
// walking a spell's outputs (spec.md §4.2 step 2).
type AssetInfo struct {
	OutputIndex int
	AppIndex    int
	AppID       string
	AssetType   string
	Amount      int64
	Name        *string
	Symbol      *string
	Description *string
	Decimals    *int16
	ImageURL    *string
}

// AnalyzedTx is everything the Block Processor, Mempool Processor and
// Reindexer need to persist from one transaction.
type AnalyzedTx struct {
	Txid       string
	CharmJSON  json.RawMessage
	AppID      string
	AssetType  string
	Amount     int64
	Address    *string
	Tags       string
	DexResult  *dex.DetectionResult
	AssetInfos []AssetInfo
	IsBeaming  bool
	Version    uint32
}

// charmPayload is the shape of a single charm's data blob inside the parsed
// spell envelope. Fields beyond Amount/metadata only apply to DEX charms.
type charmPayload struct {
	Amount      int64   `json:"amount"`
	Name        *string `json:"name,omitempty"`
	Symbol      *string `json:"symbol,omitempty"`
	Description *string `json:"description,omitempty"`
	Decimals    *int16  `json:"decimals,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`

	DexOp         string   `json:"dex_op,omitempty"`
	Maker         string   `json:"maker,omitempty"`
	Side          string   `json:"side,omitempty"`
	ExecType      string   `json:"exec_type,omitempty"`
	PartialFrom   *string  `json:"partial_from,omitempty"`
	PriceNum      int64    `json:"price_num,omitempty"`
	PriceDen      int64    `json:"price_den,omitempty"`
	Quantity      int64    `json:"quantity,omitempty"`
	AssetAppID    string   `json:"asset_app_id,omitempty"`
	InputOrderIDs []string `json:"input_order_ids,omitempty"`
	OutputOrderID *string  `json:"output_order_id,omitempty"`
}

func dexOpFromString(s string) dex.Operation {
	switch s {
	case "create_ask":
		return dex.OpCreateAskOrder
	case "create_bid":
		return dex.OpCreateBidOrder
	case "fulfill_ask":
		return dex.OpFulfillAsk
	case "fulfill_bid":
		return dex.OpFulfillBid
	case "cancel":
		return dex.OpCancelOrder
	case "partial_fill":
		return dex.OpPartialFill
	default:
		return dex.OpNone
	}
}
