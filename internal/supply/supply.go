// Package supply holds the asset supply-accounting policy the Block
// Processor applies after every spend/mint (the Reindexer instead recomputes
// total_supply from the charms table). Grounded on
// original_source/indexer/src/domain/services/supply_tracker.rs, whose
// burn-detection branch is itself an unimplemented TODO (spec.md §9 open
// question (b)).
package supply

import "github.com/shopspring/decimal"

// Delta is a signed change to one asset's total_supply.
type Delta struct {
	AppID  string
	Amount decimal.Decimal
}

// FromSpend returns the supply delta for a charm transitioning to spent:
// a straight subtraction of its amount. This is the "spent -> subtract"
// accounting spec.md §9 accepts as adequate in place of true burn detection.
func FromSpend(appID string, amount int64) Delta {
	return Delta{AppID: appID, Amount: decimal.NewFromInt(-amount)}
}

// FromMint returns the supply delta for a newly-unspent charm.
func FromMint(appID string, amount int64) Delta {
	return Delta{AppID: appID, Amount: decimal.NewFromInt(amount)}
}

// DetectBurn would compare a transaction's total input amount for an asset
// against its total output amount and report the shortfall as an explicit
// burn, rather than letting it fall out implicitly from the spend/mint
// deltas above. Not implemented: the provider surface (internal/provider)
// does not resolve input amounts without a second RPC round trip per input,
// and original_source leaves this exact gap unimplemented too.
func DetectBurn(appID string, inputTotal, outputTotal int64) (burned int64, detected bool) {
	return 0, false
}
