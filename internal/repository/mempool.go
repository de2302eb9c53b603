package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/csic-platform/charms-indexer/internal/domain"
	"github.com/csic-platform/charms-indexer/internal/repository/dbx"
)

// InsertMempoolSpend records that spendingTxid spends (spentTxid, spentVout)
// while still unconfirmed, so a later confirmed spend of the same outpoint
// can be recognized without re-scanning the mempool (spec.md §4.5 step 3).
func (r *Repository) InsertMempoolSpend(ctx context.Context, s *domain.MempoolSpend) error {
	const query = `
		INSERT INTO mempool_spends (spent_txid, spent_vout, network, spending_txid, detected_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (spent_txid, spent_vout, network) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, s.SpentTxid, s.SpentVout, s.Network, s.SpendingTxid)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("repository: insert mempool spend: %w", err)
	}
	return nil
}

// DeleteConfirmedMempoolSpend removes the mempool-spend marker once
// spendingTxid has confirmed in a block.
func (r *Repository) DeleteConfirmedMempoolSpend(ctx context.Context, network, spendingTxid string) error {
	const query = `DELETE FROM mempool_spends WHERE network = $1 AND spending_txid = $2`
	if _, err := r.pool.Exec(ctx, query, network, spendingTxid); err != nil {
		return fmt.Errorf("repository: delete confirmed mempool spend: %w", err)
	}
	return nil
}

// PurgeStaleMempoolSpends deletes mempool-spend rows older than olderThan,
// run on the cron.v3 schedule described in spec.md §4.5 step 6 ("stale-entry
// purge").
func (r *Repository) PurgeStaleMempoolSpends(ctx context.Context, olderThan time.Duration) (int64, error) {
	const query = `DELETE FROM mempool_spends WHERE detected_at < $1`
	tag, err := r.pool.Exec(ctx, query, timeNowUTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("repository: purge stale mempool spends: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertMonitoredAddress registers an address whose UTXO set the indexer
// should track going forward (spec.md §4.5, "UTXO tracker for monitored
// addresses").
func (r *Repository) InsertMonitoredAddress(ctx context.Context, m *domain.MonitoredAddress) error {
	const query = `
		INSERT INTO monitored_addresses (address, network, source, seeded_at, seed_height, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (address, network) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, m.Address, m.Network, m.Source, m.SeededAt, m.SeedHeight)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("repository: insert monitored address: %w", err)
	}
	return nil
}

// ListMonitoredAddresses returns every address the indexer tracks UTXOs for
// on network.
func (r *Repository) ListMonitoredAddresses(ctx context.Context, network string) ([]domain.MonitoredAddress, error) {
	const query = `
		SELECT address, network, source, seeded_at, seed_height, created_at
		FROM monitored_addresses WHERE network = $1
	`
	rows, err := r.pool.Query(ctx, query, network)
	if err != nil {
		return nil, fmt.Errorf("repository: list monitored addresses: %w", err)
	}
	defer rows.Close()

	var out []domain.MonitoredAddress
	for rows.Next() {
		var m domain.MonitoredAddress
		if err := rows.Scan(&m.Address, &m.Network, &m.Source, &m.SeededAt, &m.SeedHeight, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: scan monitored address: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func timeNowUTC() time.Time { return time.Now().UTC() }
