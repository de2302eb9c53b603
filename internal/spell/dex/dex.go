// Package dex detects Charms-Cast DEX operations (create/fulfill/cancel/
// partial-fill orders) inside a parsed spell, and flags the $BRO reserved
// token. Grounded on
// original_source/indexer/src/domain/services/dex/types.rs.
package dex

import "strings"

// Known Charms-Cast DEX verification keys (spec.md §4.2 step 5).
const (
	CastV01 = "ce0c45fe29f26ff197bf9288e62ad7513941294d513e724854d97bee53e03a45"
	CastV02 = "a471d3fcc436ae7cbc0e0c82a68cdc8e003ee21ef819e1acf834e11c43ce47d8"
)

// Reserved $BRO token identity hashes (spec.md §4.2 step 6).
const (
	BroIdentity1 = "3d7fe7e4cea6121947af73d70e5119bebd8aa5b7edfe74bfaf6e779a1847bd9b"
	BroIdentity2 = "6274399ab68d4a35e5193394aded0bed548453f6ebb7ea46dd2ca0c251f74580"
)

// zeroIdentity is the all-zero identity hash DEX contracts are declared under.
var zeroIdentity = strings.Repeat("0", 64)

// IsBroToken reports whether app_id names the reserved $BRO token.
func IsBroToken(appID string) bool {
	return strings.Contains(appID, BroIdentity1) || strings.Contains(appID, BroIdentity2)
}

// IsDexAppID reports whether app_id is a known Charms-Cast DEX contract:
// form "b/<64 zeros>/<known vk>".
func IsDexAppID(appID string) bool {
	if !strings.HasPrefix(appID, "b/") {
		return false
	}
	zeroed := "b/" + zeroIdentity + "/"
	if !strings.HasPrefix(appID, zeroed) {
		return false
	}
	return strings.HasSuffix(appID, CastV01) || strings.HasSuffix(appID, CastV02)
}

// Operation is the kind of DEX action detected in a transaction.
type Operation int

const (
	OpNone Operation = iota
	OpCreateAskOrder
	OpCreateBidOrder
	OpFulfillAsk
	OpFulfillBid
	OpCancelOrder
	OpPartialFill
)

// Tag returns the tag string for this operation, per spec.md §4.2 step 6.
func (o Operation) Tag() string {
	switch o {
	case OpCreateAskOrder:
		return "create-ask"
	case OpCreateBidOrder:
		return "create-bid"
	case OpFulfillAsk:
		return "fulfill-ask"
	case OpFulfillBid:
		return "fulfill-bid"
	case OpCancelOrder:
		return "cancel"
	case OpPartialFill:
		return "partial-fill"
	default:
		return ""
	}
}

// Side is an order's buy/sell direction.
type Side string

const (
	SideAsk Side = "ask"
	SideBid Side = "bid"
)

// ExecType is an order's execution policy.
type ExecType struct {
	AllOrNone bool
	// From is set when ExecType is a partial remainder, naming the parent
	// order_id it was split from.
	From *string
}

// Order is a DEX order extracted from a spell.
type Order struct {
	Maker        string
	Side         Side
	ExecType     ExecType
	PriceNum     int64
	PriceDen     int64
	Amount       int64
	Quantity     int64
	AssetAppID   string
}

// DetectionResult is the outcome of scanning a transaction's charms for DEX
// activity.
type DetectionResult struct {
	Operation      Operation
	DexAppID       string
	Order          *Order // set for creates, partial fills, and fulfills
	InputOrderIDs  []string
	OutputOrderID  *string
	Tags           []string
}

// TagsString joins Tags with commas for the charms.tags column.
func (d *DetectionResult) TagsString() string {
	return strings.Join(d.Tags, ",")
}
