// Package processor implements the Block Processor (C5): the per-block
// pipeline that fetches a confirmed block, parses every transaction
// concurrently, and persists spells/charms/assets/UTXOs/holder stats/DEX
// orders/summary/bookmark in the order spec.md §4.3 and §5 require.
// Grounded on the teacher's control-layer service-layer orchestration style
// (services/control-layer/internal/core/service), adapted from request/
// response handlers to a state-machine loop, and on
// original_source/indexer/src/domain/services/block_processor.rs for the
// per-block step ordering itself.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/csic-platform/charms-indexer/internal/blockfinder"
	"github.com/csic-platform/charms-indexer/internal/domain"
	"github.com/csic-platform/charms-indexer/internal/events"
	"github.com/csic-platform/charms-indexer/internal/metrics"
	"github.com/csic-platform/charms-indexer/internal/monitored"
	"github.com/csic-platform/charms-indexer/internal/provider"
	"github.com/csic-platform/charms-indexer/internal/refcache"
	"github.com/csic-platform/charms-indexer/internal/repository"
	"github.com/csic-platform/charms-indexer/internal/spell"
	"github.com/csic-platform/charms-indexer/internal/spell/dex"
	"github.com/csic-platform/charms-indexer/internal/spellverifier"
	"github.com/csic-platform/charms-indexer/internal/supply"
)

const (
	blockchain = "bitcoin"

	// fanOut is the number of transactions analyzed concurrently per block
	// (spec.md §5, "recommended 64").
	fanOut = 64
)

// Processor runs the per-block ingestion state machine for one network.
type Processor struct {
	network  string
	provider provider.Provider
	verifier spellverifier.Verifier
	repo     *repository.Repository
	refs     *refcache.Cache
	monitor  *monitored.Snapshot
	events   *events.Publisher
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New constructs a Processor for one (blockchain=bitcoin, network) pair.
func New(network string, p provider.Provider, v spellverifier.Verifier, repo *repository.Repository, refs *refcache.Cache, mon *monitored.Snapshot, pub *events.Publisher, m *metrics.Metrics, logger *zap.Logger) *Processor {
	return &Processor{
		network:  network,
		provider: p,
		verifier: v,
		repo:     repo,
		refs:     refs,
		monitor:  mon,
		events:   pub,
		metrics:  m,
		logger:   logger,
	}
}

// parsedTx is one analyzed transaction plus the outpoints it spends.
type parsedTx struct {
	txid     string
	analyzed *spell.AnalyzedTx
	spent    []spell.Outpoint
}

// ProcessNext advances the network by exactly one block, starting from
// nextHeight. It returns the height actually processed (which may be higher
// than nextHeight if the Block Finder had to skip a pruned gap) and whether
// a block was available to process at all.
func (p *Processor) ProcessNext(ctx context.Context, nextHeight int64) (processedHeight int64, ok bool, err error) {
	start := time.Now()

	tip, err := p.provider.GetBlockCount(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("processor: get block count: %w", err)
	}
	if nextHeight > tip {
		return 0, false, nil
	}

	height, block, err := p.fetchSkippingPruned(ctx, nextHeight)
	if err != nil {
		return 0, false, err
	}

	parsed := p.analyzeConcurrently(ctx, block.Txs)

	if err := p.persistBlock(ctx, block, parsed); err != nil {
		if p.metrics != nil {
			p.metrics.ProcessingErrors.WithLabelValues(p.network, "persist").Inc()
		}
		return 0, false, fmt.Errorf("processor: persist block %d: %w", height, err)
	}

	if p.metrics != nil {
		p.metrics.BlocksProcessed.WithLabelValues(p.network).Inc()
		p.metrics.BlockHeight.WithLabelValues(p.network).Set(float64(height))
		p.metrics.BlockProcessTime.WithLabelValues(p.network).Observe(time.Since(start).Seconds())
	}

	return height, true, nil
}

// ReprocessHeight fetches and persists exactly the given height, with no
// Block Finder fallback. Used by the reindexer (internal/reindex), which
// operates over a caller-chosen range of already-known heights and must not
// have them silently substituted by a pruned-gap skip.
func (p *Processor) ReprocessHeight(ctx context.Context, height int64) error {
	hash, err := p.provider.GetBlockHash(ctx, height)
	if err != nil {
		return fmt.Errorf("processor: get block hash %d: %w", height, err)
	}
	block, err := p.provider.GetBlock(ctx, hash)
	if err != nil {
		return fmt.Errorf("processor: get block %s: %w", hash, err)
	}
	parsed := p.analyzeConcurrently(ctx, block.Txs)
	if err := p.persistBlock(ctx, block, parsed); err != nil {
		return fmt.Errorf("processor: persist block %d: %w", height, err)
	}
	return nil
}

// fetchSkippingPruned resolves nextHeight to a retrievable hash and block,
// consulting the Block Finder when the node reports nextHeight as pruned.
func (p *Processor) fetchSkippingPruned(ctx context.Context, nextHeight int64) (int64, *provider.Block, error) {
	hash, err := p.provider.GetBlockHash(ctx, nextHeight)
	height := nextHeight
	if err != nil {
		if provider.IsPruned(err) {
			tip, tipErr := p.provider.GetBlockCount(ctx)
			if tipErr != nil {
				return 0, nil, fmt.Errorf("processor: get tip for block finder: %w", tipErr)
			}
			found, findErr := blockfinder.Find(ctx, p.provider, nextHeight, tip)
			if findErr != nil {
				return 0, nil, fmt.Errorf("processor: block finder: %w", findErr)
			}
			height = found
			hash, err = p.provider.GetBlockHash(ctx, height)
		}
	}
	if err != nil {
		return 0, nil, fmt.Errorf("processor: get block hash %d: %w", height, err)
	}

	block, err := p.provider.GetBlock(ctx, hash)
	if err != nil {
		return 0, nil, fmt.Errorf("processor: get block %s: %w", hash, err)
	}
	return height, block, nil
}

// analyzeConcurrently parses every tx in txs with a bounded fan-out
// (spec.md §5), tolerating individual decode failures by skipping that tx.
func (p *Processor) analyzeConcurrently(ctx context.Context, txs []provider.Tx) []parsedTx {
	sem := make(chan struct{}, fanOut)
	results := make([]parsedTx, len(txs))

	var wg sync.WaitGroup
	for i, tx := range txs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, tx provider.Tx) {
			defer wg.Done()
			defer func() { <-sem }()

			analyzed, err := spell.Analyze(tx.Txid, tx.RawHex, p.network, p.verifier)
			if err != nil {
				p.logger.Warn("skipping tx: analyze failed", zap.String("txid", tx.Txid), zap.Error(err))
				return
			}

			spent, err := spell.ExtractSpentOutpoints(tx.RawHex)
			if err != nil {
				p.logger.Warn("skipping tx: spent-outpoint decode failed", zap.String("txid", tx.Txid), zap.Error(err))
				return
			}

			results[i] = parsedTx{txid: tx.Txid, analyzed: analyzed, spent: spent}
		}(i, tx)
	}
	wg.Wait()

	return results
}

// persistBlock runs the full persistence sequence of spec.md §4.3 step 4.
func (p *Processor) persistBlock(ctx context.Context, block *provider.Block, parsed []parsedTx) error {
	// (a) spells, (b) charms, (c) assets + reference-NFT inheritance.
	for _, pt := range parsed {
		if pt.analyzed == nil {
			continue
		}
		if err := p.persistSpellAndCharms(ctx, block.Height, pt); err != nil {
			return err
		}
	}

	// (d) mark spent charms, collecting holder/supply deltas.
	var spentDeltas []domain.HolderDelta
	var supplyDeltas []supply.Delta
	for _, pt := range parsed {
		for _, out := range pt.spent {
			info, err := p.repo.MarkCharmSpent(ctx, out.Txid, out.Index)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("mark charm spent: %w", err)
			}

			if info.Address != nil {
				spentDeltas = append(spentDeltas, domain.HolderDelta{
					AppID: holderAppID(info.AppID), Address: *info.Address, Delta: -info.Amount, Height: block.Height,
				})
			}
			supplyDeltas = append(supplyDeltas, supply.FromSpend(info.AppID, info.Amount))

			if p.events != nil {
				p.events.CharmSpent(ctx, p.network, info.AppID, out.Txid, out.Index)
			}
		}
	}

	// (e)/(f) UTXO insert for monitored-address outputs, delete for spent
	// outpoints. Non-charm payments to monitored addresses are tracked too.
	if err := p.trackMonitoredUTXOs(ctx, block); err != nil {
		return err
	}
	for _, pt := range parsed {
		for _, out := range pt.spent {
			if err := p.repo.DeleteUTXO(ctx, p.network, out.Txid, out.Index); err != nil {
				return fmt.Errorf("delete spent utxo: %w", err)
			}
		}
	}

	// (g) remove mempool-spend markers for txs that just confirmed.
	for _, pt := range parsed {
		if err := p.repo.DeleteConfirmedMempoolSpend(ctx, p.network, pt.txid); err != nil {
			return fmt.Errorf("delete confirmed mempool spend: %w", err)
		}
	}

	// (h) holder deltas: spent (negative) then newly-unspent (positive).
	for _, d := range spentDeltas {
		if err := p.repo.ApplyHolderDelta(ctx, d); err != nil {
			return fmt.Errorf("apply spent holder delta: %w", err)
		}
	}
	var mintedCharms, confirmedTx int64
	var nfts, tokens, dapps, other int64
	for _, pt := range parsed {
		if pt.analyzed == nil {
			confirmedTx++
			continue
		}
		confirmedTx++
		for _, info := range pt.analyzed.AssetInfos {
			if info.Amount <= 0 {
				continue
			}
			mintedCharms++
			switch info.AssetType {
			case domain.AssetTypeNFT:
				nfts++
			case domain.AssetTypeToken:
				tokens++
			case domain.AssetTypeDapp:
				dapps++
			default:
				other++
			}
			if pt.analyzed.Address == nil {
				continue
			}
			delta := domain.HolderDelta{
				AppID: holderAppID(info.AppID), Address: *pt.analyzed.Address, Delta: info.Amount, Height: block.Height,
			}
			if err := p.repo.ApplyHolderDelta(ctx, delta); err != nil {
				return fmt.Errorf("apply minted holder delta: %w", err)
			}
			supplyDeltas = append(supplyDeltas, supply.FromMint(info.AppID, info.Amount))

			if p.events != nil {
				p.events.CharmMinted(ctx, p.network, info.AppID, pt.txid, int32(info.OutputIndex), info.Amount)
			}
		}
	}

	// (i) update asset total_supply from the accumulated deltas.
	for _, d := range supplyDeltas {
		if err := p.repo.AdjustTotalSupply(ctx, d.AppID, d.Amount); err != nil {
			return fmt.Errorf("adjust total supply: %w", err)
		}
	}

	// (j) DEX order lifecycle.
	for _, pt := range parsed {
		if pt.analyzed == nil || pt.analyzed.DexResult == nil {
			continue
		}
		if err := p.applyDexResult(ctx, pt, block.Height); err != nil {
			return fmt.Errorf("apply dex result: %w", err)
		}
	}

	// (k) summary, (l) bookmark.
	if err := p.repo.IncrementSummaryCounts(ctx, p.network, block.Height, block.Height,
		mintedCharms, int64(len(parsed)), confirmedTx, nfts, tokens, dapps, other); err != nil {
		return fmt.Errorf("increment summary counts: %w", err)
	}
	if err := p.repo.UpsertBookmark(ctx, &domain.Bookmark{
		Hash: block.Hash, Height: block.Height, Status: domain.BookmarkConfirmed, Blockchain: blockchain, Network: p.network,
	}); err != nil {
		return fmt.Errorf("upsert bookmark: %w", err)
	}

	if p.metrics != nil {
		for _, pt := range parsed {
			if pt.analyzed == nil {
				continue
			}
			p.metrics.CharmsIndexed.WithLabelValues(p.network, pt.analyzed.AssetType).Inc()
		}
	}

	return nil
}

// persistSpellAndCharms inserts the spell container row, every charm it
// carries, and the asset aggregate per charm, applying reference-NFT
// metadata inheritance for token assets (spec.md §4.3 step 4c, §4.7).
func (p *Processor) persistSpellAndCharms(ctx context.Context, height int64, pt parsedTx) error {
	a := pt.analyzed

	if err := p.repo.InsertSpell(ctx, &domain.Spell{
		Txid: pt.txid, BlockHeight: height, Data: a.CharmJSON, AssetType: domain.AssetTypeSpell, Blockchain: blockchain, Network: p.network,
	}); err != nil {
		return fmt.Errorf("insert spell: %w", err)
	}
	// The spell row may already exist from the mempool path with
	// block_height 0, in which case InsertSpell's ON CONFLICT DO NOTHING
	// left it untouched; promote it explicitly.
	if err := p.repo.PromoteMempoolSpell(ctx, pt.txid, height); err != nil {
		return fmt.Errorf("promote mempool spell: %w", err)
	}

	for _, info := range a.AssetInfos {
		h := int64(height)
		if err := p.repo.InsertCharm(ctx, &domain.Charm{
			Txid: pt.txid, Vout: int32(info.OutputIndex), BlockHeight: &h,
			Data: charmJSON(info), AssetType: info.AssetType, Blockchain: blockchain, Network: p.network,
			Address: a.Address, Spent: false, AppID: info.AppID, Amount: info.Amount, Tags: a.Tags,
		}); err != nil {
			return fmt.Errorf("insert charm: %w", err)
		}
		// The charm may already exist from the mempool path with
		// block_height NULL, in which case InsertCharm's ON CONFLICT DO
		// NOTHING left it untouched; promote it explicitly.
		if err := p.repo.PromoteMempoolCharm(ctx, pt.txid, int32(info.OutputIndex), height); err != nil {
			return fmt.Errorf("promote mempool charm: %w", err)
		}

		identity := identityOf(info.AppID)
		switch info.AssetType {
		case domain.AssetTypeNFT:
			p.refs.PutNFT(identity, refcache.Metadata{
				AppID: info.AppID, Name: info.Name, Symbol: info.Symbol, Description: info.Description, Decimals: info.Decimals,
			})
		case domain.AssetTypeToken:
			if meta, hit := p.refs.Lookup(identity); hit {
				if p.refs.MarkReferenceOnce(identity) {
					if err := p.markNFTReference(ctx, identity, meta); err != nil {
						return err
					}
				}
				if info.Name == nil {
					info.Name = meta.Name
				}
				if info.Symbol == nil {
					info.Symbol = meta.Symbol
				}
				if info.Description == nil {
					info.Description = meta.Description
				}
				if info.Decimals == nil {
					info.Decimals = meta.Decimals
				}
			}
		}

		if err := p.repo.UpsertAsset(ctx, &domain.Asset{
			AppID: info.AppID, Txid: pt.txid, VoutIndex: int32(info.OutputIndex), CharmID: fmt.Sprintf("%s:%d", pt.txid, info.OutputIndex),
			BlockHeight: height, Data: charmJSON(info), AssetType: info.AssetType, Blockchain: blockchain, Network: p.network,
			Name: info.Name, Symbol: info.Symbol, Description: info.Description, ImageURL: info.ImageURL, Decimals: info.Decimals,
		}); err != nil {
			return fmt.Errorf("upsert asset: %w", err)
		}
	}

	return nil
}

// markNFTReference sets is_reference=true on the NFT's own asset row, then
// backfills any token asset rows already indexed under the same identity
// hash that are still missing metadata (spec.md §4.3c/§4.7). Called at most
// once per identity hash, gated by refcache.Cache.MarkReferenceOnce.
func (p *Processor) markNFTReference(ctx context.Context, identity string, meta refcache.Metadata) error {
	if err := p.repo.MarkNFTReference(ctx, meta.AppID); err != nil {
		return err
	}
	return p.repo.InheritReferenceMetadata(ctx, identity, meta.Name, meta.Symbol, meta.Description, nil)
}

func (p *Processor) applyDexResult(ctx context.Context, pt parsedTx, height int64) error {
	res := pt.analyzed.DexResult
	orderID := fmt.Sprintf("%s:%d", pt.txid, 0)
	if res.OutputOrderID != nil {
		orderID = *res.OutputOrderID
	}

	switch {
	case res.Order != nil:
		// Fulfill ops insert their own row at status=filled rather than
		// open: the fulfilling tx never becomes a live order of its own,
		// but still needs a row for order-history lookups (spec.md §4.6,
		// "insert the fulfilling tx's row with status=filled").
		status := domain.DexStatusOpen
		eventKind := "CREATED"
		if res.Operation == dex.OpFulfillAsk || res.Operation == dex.OpFulfillBid {
			status = domain.DexStatusFilled
			eventKind = "FILLED"
		}

		h := height
		if err := p.repo.InsertDexOrder(ctx, &domain.DexOrder{
			OrderID: orderID, Platform: "charms-cast", Maker: res.Order.Maker, Side: string(res.Order.Side),
			ExecType: execTypeString(res.Order.ExecType), PartialFrom: res.Order.ExecType.From,
			PriceNum: res.Order.PriceNum, PriceDen: res.Order.PriceDen, Amount: res.Order.Amount,
			Quantity: res.Order.Quantity, AssetAppID: res.Order.AssetAppID, Status: status,
			ParentOrderID: res.Order.ExecType.From, BlockHeight: &h,
		}); err != nil {
			return err
		}
		if p.events != nil {
			p.events.DexOrderEvent(ctx, p.network, orderID, eventKind)
		}
	}

	for _, consumedOrderID := range res.InputOrderIDs {
		status := domain.DexStatusFilled
		if res.Operation.Tag() == "cancel" {
			status = domain.DexStatusCancelled
		}
		if err := p.repo.UpdateDexOrderStatus(ctx, consumedOrderID, status); err != nil {
			return err
		}
		if p.events != nil {
			p.events.DexOrderEvent(ctx, p.network, consumedOrderID, strings.ToUpper(status))
		}
	}

	return nil
}

// trackMonitoredUTXOs inserts an address_utxos row for every output paying a
// monitored address in this block (spec.md §4.3 step e). It decodes the tx
// once more rather than threading script data through parsedTx, since only
// a minority of blocks carry monitored-address traffic.
func (p *Processor) trackMonitoredUTXOs(ctx context.Context, block *provider.Block) error {
	set := p.monitor.Load()
	if set.Len() == 0 {
		return nil
	}

	for _, tx := range block.Txs {
		outputs, err := spell.DecodeOutputs(tx.RawHex, p.network)
		if err != nil {
			continue
		}
		for i, out := range outputs {
			if out.Address == "" || !set.Contains(out.Address) {
				continue
			}
			if err := p.repo.InsertUTXO(ctx, &domain.AddressUTXO{
				Txid: tx.Txid, Vout: int32(i), Network: p.network, Address: out.Address,
				Value: out.Value, ScriptPubkey: out.ScriptPubkey, BlockHeight: block.Height,
			}); err != nil {
				return fmt.Errorf("insert monitored utxo: %w", err)
			}
			if err := p.repo.PromoteUTXOHeight(ctx, p.network, tx.Txid, int32(i), block.Height); err != nil {
				return fmt.Errorf("promote monitored utxo: %w", err)
			}
		}
	}
	return nil
}

func charmJSON(info spell.AssetInfo) []byte {
	b, err := json.Marshal(info)
	if err != nil {
		return nil
	}
	return b
}

func holderAppID(appID string) string {
	if strings.HasPrefix(appID, "t/") {
		return "n/" + strings.TrimPrefix(appID, "t/")
	}
	return appID
}

func identityOf(appID string) string {
	parts := strings.SplitN(appID, "/", 3)
	if len(parts) < 2 {
		return appID
	}
	return parts[1]
}

func execTypeString(e dex.ExecType) string {
	if e.From != nil {
		return domain.DexExecPartial
	}
	if e.AllOrNone {
		return domain.DexExecAllOrNone
	}
	return domain.DexExecPartial
}
