package spell

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/csic-platform/charms-indexer/internal/spell/dex"
	"github.com/csic-platform/charms-indexer/internal/spellverifier"
)

// assetTypeFromTag maps a spell app declaration's tag to the asset_type
// column (spec.md §4.2 step 2).
func assetTypeFromTag(tag string) string {
	switch tag {
	case "t":
		return "token"
	case "n":
		return "nft"
	case "b":
		return "dapp"
	default:
		return "other"
	}
}

func appIDFor(decl spellverifier.AppDecl) string {
	return fmt.Sprintf("%s/%s/%s", decl.Tag, decl.Identity, decl.VK)
}

// Analyze parses a single transaction's spell (if any) into an AnalyzedTx.
// It returns nil when rawHex carries no spell (spellverifier.ErrNoSpell) —
// not an error, just "nothing to persist for this tx" (spec.md §4.2).
//
// Analyze never touches the network: verifier does the envelope extraction,
// and Analyze only interprets the result. It is pure given its inputs, which
// is what makes it fixture-testable without a running bitcoind.
func Analyze(txid, rawHex, network string, verifier spellverifier.Verifier) (*AnalyzedTx, error) {
	env, err := verifier.ExtractSpell(rawHex)
	if err != nil {
		if errors.Is(err, spellverifier.ErrNoSpell) {
			return nil, nil
		}
		return nil, fmt.Errorf("spell: analyze %s: %w", txid, err)
	}

	var infos []AssetInfo
	for _, out := range env.Outputs {
		for _, charm := range out.Charms {
			if charm.AppIndex < 0 || charm.AppIndex >= len(env.Apps) {
				continue
			}
			decl := env.Apps[charm.AppIndex]

			var payload charmPayload
			if err := json.Unmarshal(charm.Data, &payload); err != nil {
				continue
			}

			amount := payload.Amount
			if amount < 0 {
				amount = 0
			}

			infos = append(infos, AssetInfo{
				OutputIndex: out.OutputIndex,
				AppIndex:    charm.AppIndex,
				AppID:       appIDFor(decl),
				AssetType:   assetTypeFromTag(decl.Tag),
				Amount:      amount,
				Name:        payload.Name,
				Symbol:      payload.Symbol,
				Description: payload.Description,
				Decimals:    payload.Decimals,
				ImageURL:    payload.ImageURL,
			})
		}
	}

	addr, err := extractCharmHolderAddress(rawHex, network)
	if err != nil {
		return nil, fmt.Errorf("spell: extract address %s: %w", txid, err)
	}

	result := &AnalyzedTx{
		Txid:       txid,
		Address:    addr,
		AssetInfos: infos,
		IsBeaming:  env.HasBeamedOuts(),
		Version:    env.Version,
	}

	if len(infos) > 0 {
		primary := infos[0]
		result.AppID = primary.AppID
		result.AssetType = primary.AssetType
		result.Amount = primary.Amount
		if raw, err := json.Marshal(primary); err == nil {
			result.CharmJSON = raw
		}
	}

	result.DexResult = detectDex(env, infos)
	result.Tags = buildTags(result, infos)

	return result, nil
}

// detectDex scans a spell's charms for a Charms-Cast DEX operation
// (spec.md §4.2 step 5): any asset whose app_id names a known DEX contract
// carries a charmPayload describing the order action.
func detectDex(env *spellverifier.Envelope, infos []AssetInfo) *dex.DetectionResult {
	for _, out := range env.Outputs {
		for _, charm := range out.Charms {
			if charm.AppIndex < 0 || charm.AppIndex >= len(env.Apps) {
				continue
			}
			decl := env.Apps[charm.AppIndex]
			appID := appIDFor(decl)
			if !dex.IsDexAppID(appID) {
				continue
			}

			var payload charmPayload
			if err := json.Unmarshal(charm.Data, &payload); err != nil {
				continue
			}

			op := dexOpFromString(payload.DexOp)
			if op == dex.OpNone {
				continue
			}

			result := &dex.DetectionResult{
				Operation:     op,
				DexAppID:      appID,
				InputOrderIDs: payload.InputOrderIDs,
				OutputOrderID: payload.OutputOrderID,
			}

			switch op {
			case dex.OpCreateAskOrder, dex.OpCreateBidOrder, dex.OpPartialFill, dex.OpFulfillAsk, dex.OpFulfillBid:
				side := dex.SideAsk
				if payload.Side == "bid" {
					side = dex.SideBid
				}
				result.Order = &dex.Order{
					Maker:      payload.Maker,
					Side:       side,
					PriceNum:   payload.PriceNum,
					PriceDen:   payload.PriceDen,
					Amount:     payload.Amount,
					Quantity:   payload.Quantity,
					AssetAppID: payload.AssetAppID,
					ExecType: dex.ExecType{
						AllOrNone: payload.ExecType == "all_or_none",
						From:      payload.PartialFrom,
					},
				}
			}

			result.Tags = []string{"charms-cast", op.Tag()}
			return result
		}
	}
	return nil
}

// buildTags assembles the comma-joined tags column (spec.md §4.2 step 6):
// "charms-cast"+operation when a DEX action was detected, "beaming" when the
// spell carries beamed outputs, and "bro" when the primary or any secondary
// asset names the reserved $BRO token.
func buildTags(tx *AnalyzedTx, infos []AssetInfo) string {
	var tags []string

	if tx.DexResult != nil {
		tags = append(tags, tx.DexResult.Tags...)
	}
	if tx.IsBeaming {
		tags = append(tags, "beaming")
	}

	bro := dex.IsBroToken(tx.AppID)
	if !bro {
		for _, info := range infos {
			if dex.IsBroToken(info.AppID) {
				bro = true
				break
			}
		}
	}
	if bro {
		tags = append(tags, "bro")
	}

	return strings.Join(tags, ",")
}
