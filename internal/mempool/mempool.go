// Package mempool implements the Mempool Processor (C6): polling the node's
// mempool, detecting spells in unconfirmed transactions, tracking UTXOs for
// monitored addresses, and purging stale entries. Grounded on
// original_source/indexer/src/domain/services/mempool_processor.rs for the
// poll/detect/track/purge cycle, and on the teacher's cron-driven services
// (services/health-monitor uses a polling loop of its own) for the
// ticker-plus-cooperative-cancellation shape.
package mempool

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/csic-platform/charms-indexer/internal/domain"
	"github.com/csic-platform/charms-indexer/internal/monitored"
	"github.com/csic-platform/charms-indexer/internal/provider"
	"github.com/csic-platform/charms-indexer/internal/repository"
	"github.com/csic-platform/charms-indexer/internal/spell"
	"github.com/csic-platform/charms-indexer/internal/spellverifier"
)

// seenTrimThreshold is the size at which the seen_txids cache is cleared
// (spec.md §4.5: "trimmed when its size exceeds 10,000; full clear is
// acceptable, the protocol tolerates reparsing").
const seenTrimThreshold = 10000

// monitoredReloadEvery reloads the monitored-address snapshot once every N
// poll ticks (spec.md §4.5 step 4).
const monitoredReloadEvery = 10

// staleAfter is the age at which mempool_spends rows and mempool-resident
// charms are purged (spec.md §4.8).
const staleAfter = 24 * time.Hour

// Processor polls one network's mempool.
type Processor struct {
	network  string
	provider provider.Provider
	verifier spellverifier.Verifier
	repo     *repository.Repository
	monitor  *monitored.Snapshot
	logger   *zap.Logger

	seen     map[string]struct{}
	tickNum  int
	cron     *cron.Cron
}

// New constructs a mempool Processor for one network.
func New(network string, p provider.Provider, v spellverifier.Verifier, repo *repository.Repository, mon *monitored.Snapshot, logger *zap.Logger) *Processor {
	return &Processor{
		network:  network,
		provider: p,
		verifier: v,
		repo:     repo,
		monitor:  mon,
		logger:   logger,
		seen:     make(map[string]struct{}),
	}
}

// Run polls the mempool every interval until ctx is cancelled. A purge
// schedule runs alongside it via robfig/cron (spec.md §4.8).
func (p *Processor) Run(ctx context.Context, interval time.Duration) {
	p.cron = cron.New()
	_, err := p.cron.AddFunc("@every 1h", func() { p.purgeStale(ctx) })
	if err != nil {
		p.logger.Error("mempool: schedule purge job failed", zap.Error(err))
	}
	p.cron.Start()
	defer p.cron.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.logger.Warn("mempool: poll failed", zap.String("network", p.network), zap.Error(err))
			}
		}
	}
}

// poll implements spec.md §4.5 steps 1-4.
func (p *Processor) poll(ctx context.Context) error {
	txids, err := p.provider.GetRawMempool(ctx)
	if err != nil {
		return err
	}

	p.tickNum++
	if p.tickNum%monitoredReloadEvery == 0 {
		if err := p.reloadMonitored(ctx); err != nil {
			p.logger.Warn("mempool: reload monitored addresses failed", zap.Error(err))
		}
	}

	if len(p.seen) > seenTrimThreshold {
		p.seen = make(map[string]struct{})
	}

	for _, txid := range txids {
		if _, ok := p.seen[txid]; ok {
			continue
		}
		p.seen[txid] = struct{}{}
		p.processNewTx(ctx, txid)
	}

	return nil
}

func (p *Processor) processNewTx(ctx context.Context, txid string) {
	rawHex, err := p.provider.GetRawTransactionHex(ctx, txid, "")
	if err != nil {
		p.logger.Debug("mempool: fetch raw tx failed", zap.String("txid", txid), zap.Error(err))
		return
	}

	analyzed, err := spell.Analyze(txid, rawHex, p.network, p.verifier)
	if err != nil {
		p.logger.Debug("mempool: analyze failed", zap.String("txid", txid), zap.Error(err))
	} else if analyzed != nil {
		p.insertMempoolCharms(ctx, txid, analyzed)
	}

	p.trackUTXOs(ctx, txid, rawHex)
}

func (p *Processor) insertMempoolCharms(ctx context.Context, txid string, a *spell.AnalyzedTx) {
	if err := p.repo.InsertSpell(ctx, &domain.Spell{
		Txid: txid, BlockHeight: 0, Data: a.CharmJSON, AssetType: domain.AssetTypeSpell, Blockchain: "bitcoin", Network: p.network,
	}); err != nil {
		p.logger.Warn("mempool: insert spell failed", zap.String("txid", txid), zap.Error(err))
	}

	now := time.Now().UTC()
	for _, info := range a.AssetInfos {
		charm := &domain.Charm{
			Txid: txid, Vout: int32(info.OutputIndex), BlockHeight: nil,
			AssetType: info.AssetType, Blockchain: "bitcoin", Network: p.network,
			Address: a.Address, Spent: false, AppID: info.AppID, Amount: info.Amount, Tags: a.Tags,
			MempoolDetectedAt: &now,
		}
		if err := p.repo.InsertCharm(ctx, charm); err != nil {
			p.logger.Warn("mempool: insert charm failed", zap.String("txid", txid), zap.Error(err))
		}
	}
}

// trackUTXOs implements spec.md §4.5 step 3: mempool-spend rows for inputs,
// address_utxos rows (block_height=0) for outputs to monitored addresses.
func (p *Processor) trackUTXOs(ctx context.Context, txid, rawHex string) {
	spent, err := spell.ExtractSpentOutpoints(rawHex)
	if err != nil {
		return
	}
	for _, out := range spent {
		if err := p.repo.InsertMempoolSpend(ctx, &domain.MempoolSpend{
			SpentTxid: out.Txid, SpentVout: int32(out.Index), Network: p.network, SpendingTxid: txid,
		}); err != nil {
			p.logger.Warn("mempool: insert mempool spend failed", zap.String("txid", txid), zap.Error(err))
		}
	}

	set := p.monitor.Load()
	if set.Len() == 0 {
		return
	}
	outputs, err := spell.DecodeOutputs(rawHex, p.network)
	if err != nil {
		return
	}
	for i, o := range outputs {
		if o.Address == "" || !set.Contains(o.Address) {
			continue
		}
		if err := p.repo.InsertUTXO(ctx, &domain.AddressUTXO{
			Txid: txid, Vout: int32(i), Network: p.network, Address: o.Address,
			Value: o.Value, ScriptPubkey: o.ScriptPubkey, BlockHeight: 0,
		}); err != nil {
			p.logger.Warn("mempool: insert utxo failed", zap.String("txid", txid), zap.Error(err))
		}
	}
}

func (p *Processor) reloadMonitored(ctx context.Context) error {
	addrs, err := p.repo.ListMonitoredAddresses(ctx, p.network)
	if err != nil {
		return err
	}
	list := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.SeededAt != nil {
			list = append(list, a.Address)
		}
	}
	p.monitor.Store(monitored.NewSet(list))
	return nil
}

// purgeStale implements spec.md §4.8: mempool_spends older than 24h, and
// mempool-resident charms older than 24h.
func (p *Processor) purgeStale(ctx context.Context) {
	if _, err := p.repo.PurgeStaleMempoolSpends(ctx, staleAfter); err != nil {
		p.logger.Warn("mempool: purge stale spends failed", zap.Error(err))
	}
	if err := p.repo.PurgeStaleMempoolCharms(ctx, p.network, staleAfter); err != nil {
		p.logger.Warn("mempool: purge stale charms failed", zap.Error(err))
	}
	if err := p.repo.PurgeStaleMempoolDexOrders(ctx, p.network, staleAfter); err != nil {
		p.logger.Warn("mempool: purge stale dex orders failed", zap.Error(err))
	}
}
