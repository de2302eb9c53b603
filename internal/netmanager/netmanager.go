// Package netmanager is the Network Manager (C8): it spawns one Block
// Processor and one Mempool Processor per enabled network, wires each
// network's provider against a shared reference-NFT cache and event
// publisher, and coordinates cooperative shutdown across all of them.
// Grounded on the teacher's multi-tenant service bootstrapping in
// services/control-layer/cmd/main.go, adapted from one-process-per-request
// to one-goroutine-pair-per-network.
package netmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/csic-platform/charms-indexer/internal/config"
	"github.com/csic-platform/charms-indexer/internal/domain"
	"github.com/csic-platform/charms-indexer/internal/events"
	"github.com/csic-platform/charms-indexer/internal/mempool"
	"github.com/csic-platform/charms-indexer/internal/metrics"
	"github.com/csic-platform/charms-indexer/internal/monitored"
	"github.com/csic-platform/charms-indexer/internal/processor"
	"github.com/csic-platform/charms-indexer/internal/provider"
	"github.com/csic-platform/charms-indexer/internal/refcache"
	"github.com/csic-platform/charms-indexer/internal/repository"
	"github.com/csic-platform/charms-indexer/internal/spellverifier"
)

// network bundles one enabled network's running components.
type network struct {
	cfg       config.NetworkConfig
	processor *processor.Processor
	mempool   *mempool.Processor
	monitor   *monitored.Snapshot
	repo      *repository.Repository
}

// Manager owns every enabled network's Block and Mempool Processors.
type Manager struct {
	cfg      *config.Config
	repo     *repository.Repository
	refs     *refcache.Cache
	pub      *events.Publisher
	metrics  *metrics.Metrics
	logger   *zap.Logger
	networks []*network
}

// New builds providers and processors for every enabled network in cfg. A
// single refcache.Cache and events.Publisher are shared across networks.
func New(cfg *config.Config, repo *repository.Repository, pub *events.Publisher, m *metrics.Metrics, logger *zap.Logger) (*Manager, error) {
	mgr := &Manager{
		cfg:     cfg,
		repo:    repo,
		refs:    refcache.New(),
		pub:     pub,
		metrics: m,
		logger:  logger,
	}

	for _, nc := range cfg.EnabledNetworks() {
		p, err := provider.New(provider.Config{
			Host:      fmt.Sprintf("%s:%d", nc.RPCHost, nc.RPCPort),
			User:      nc.RPCUser,
			Pass:      nc.RPCPassword,
			RemoteURL: cfg.CharmsAPIURL,
		})
		if err != nil {
			return nil, fmt.Errorf("netmanager: build provider for %s: %w", nc.Network, err)
		}

		verifier := spellverifier.NewLocal()
		mon := monitored.NewSnapshot()

		proc := processor.New(nc.Network, p, verifier, repo, mgr.refs, mon, pub, m, logger)
		memp := mempool.New(nc.Network, p, verifier, repo, mon, logger)

		mgr.networks = append(mgr.networks, &network{cfg: nc, processor: proc, mempool: memp, monitor: mon, repo: repo})
	}

	return mgr, nil
}

// Run starts every network's Block Processor polling loop and Mempool
// Processor, blocking until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, n := range m.networks {
		n := n
		if err := m.seedMonitoredAddresses(ctx, n); err != nil {
			m.logger.Warn("netmanager: seed monitored addresses failed", zap.String("network", n.cfg.Network), zap.Error(err))
		}

		wg.Add(2)
		go func() {
			defer wg.Done()
			m.runBlockLoop(ctx, n)
		}()
		go func() {
			defer wg.Done()
			n.mempool.Run(ctx, m.cfg.App.MempoolPollInterval)
		}()
	}
	wg.Wait()
}

// runBlockLoop advances one network's bookmark one block at a time until ctx
// is cancelled, sleeping ProcessBlockInterval whenever the provider has
// nothing new (spec.md §4.3 step 1, "idle" state).
func (m *Manager) runBlockLoop(ctx context.Context, n *network) {
	ticker := time.NewTicker(m.cfg.App.ProcessBlockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.advance(ctx, n)
		}
	}
}

func (m *Manager) advance(ctx context.Context, n *network) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		next, err := m.nextHeight(ctx, n)
		if err != nil {
			m.logger.Warn("netmanager: resolve next height failed", zap.String("network", n.cfg.Network), zap.Error(err))
			return
		}

		height, ok, err := n.processor.ProcessNext(ctx, next)
		if err != nil {
			m.logger.Warn("netmanager: process block failed", zap.String("network", n.cfg.Network), zap.Int64("height", next), zap.Error(err))
			return
		}
		if !ok {
			return
		}
		m.logger.Info("netmanager: processed block", zap.String("network", n.cfg.Network), zap.Int64("height", height))
	}
}

func (m *Manager) nextHeight(ctx context.Context, n *network) (int64, error) {
	bm, err := n.repo.GetBookmark(ctx, "bitcoin", n.cfg.Network)
	if errors.Is(err, repository.ErrNotFound) {
		return n.cfg.GenesisBlockHeight, nil
	}
	if err != nil {
		return 0, err
	}
	return bm.Height + 1, nil
}

func (m *Manager) seedMonitoredAddresses(ctx context.Context, n *network) error {
	addrs, err := n.repo.ListMonitoredAddresses(ctx, n.cfg.Network)
	if err != nil {
		return err
	}
	list := make([]string, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, a.Address)
	}
	n.monitor.Store(monitored.NewSet(list))
	return nil
}

// RegisterMonitoredAddress adds an address to watch on network, persisting it
// and re-seeding the live snapshot from storage immediately rather than
// waiting for the Mempool Processor's periodic reload.
func (m *Manager) RegisterMonitoredAddress(ctx context.Context, networkName, address, source string) error {
	for _, n := range m.networks {
		if n.cfg.Network != networkName {
			continue
		}
		now := time.Now().UTC()
		if err := n.repo.InsertMonitoredAddress(ctx, &domain.MonitoredAddress{
			Address: address, Network: networkName, Source: source, SeededAt: &now,
		}); err != nil {
			return err
		}
		return m.seedMonitoredAddresses(ctx, n)
	}
	return fmt.Errorf("netmanager: unknown network %q", networkName)
}
