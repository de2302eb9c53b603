package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/csic-platform/charms-indexer/internal/domain"
	"github.com/csic-platform/charms-indexer/internal/repository/dbx"
)

// InsertSpell writes the container row for output 0 of a charm transaction.
// Re-ingesting the same block is idempotent: a conflict on the primary key
// is silently ignored.
func (r *Repository) InsertSpell(ctx context.Context, s *domain.Spell) error {
	const query = `
		INSERT INTO spells (txid, block_height, data, asset_type, blockchain, network, date_created)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (txid) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, s.Txid, s.BlockHeight, s.Data, s.AssetType, s.Blockchain, s.Network); err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("repository: insert spell: %w", err)
	}
	return nil
}

// InsertCharm writes a single programmable-asset UTXO. Idempotent per
// (txid, vout): a conflict means the charm was already indexed, usually via
// the mempool path (spec.md §4.5, "confirmation promotion").
func (r *Repository) InsertCharm(ctx context.Context, c *domain.Charm) error {
	const query = `
		INSERT INTO charms (
			txid, vout, block_height, data, asset_type, blockchain, network,
			address, spent, app_id, amount, mempool_detected_at, tags, date_created
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (txid, vout) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		c.Txid, c.Vout, c.BlockHeight, c.Data, c.AssetType, c.Blockchain, c.Network,
		c.Address, c.Spent, c.AppID, c.Amount, c.MempoolDetectedAt, c.Tags,
	)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("repository: insert charm: %w", err)
	}
	return nil
}

// PromoteMempoolCharm fills in block_height for a charm that was first seen
// in the mempool and has now confirmed, clearing mempool_detected_at's role
// as "still unconfirmed" marker (spec.md §4.5 step 4).
func (r *Repository) PromoteMempoolCharm(ctx context.Context, txid string, vout int32, blockHeight int64) error {
	const query = `
		UPDATE charms SET block_height = $3
		WHERE txid = $1 AND vout = $2 AND block_height IS NULL
	`
	if _, err := r.pool.Exec(ctx, query, txid, vout, blockHeight); err != nil {
		return fmt.Errorf("repository: promote mempool charm: %w", err)
	}
	return nil
}

// PromoteMempoolSpell fills in block_height for a spell container row that
// was first inserted from the mempool (block_height = 0) and has now
// confirmed. InsertSpell's ON CONFLICT DO NOTHING would otherwise leave a
// mempool-origin row stuck at height 0 forever (spec.md §9, "confirmation
// promotion" applies to the spell row too, not just its charms).
func (r *Repository) PromoteMempoolSpell(ctx context.Context, txid string, blockHeight int64) error {
	const query = `
		UPDATE spells SET block_height = $2
		WHERE txid = $1 AND block_height = 0
	`
	if _, err := r.pool.Exec(ctx, query, txid, blockHeight); err != nil {
		return fmt.Errorf("repository: promote mempool spell: %w", err)
	}
	return nil
}

// MarkCharmSpent flips a charm's spent flag and returns the (app_id,
// address, amount) it carried immediately beforehand, so the caller can
// compute holder/supply deltas without a second round trip. Returns
// ErrNotFound if no unspent charm exists at that outpoint.
func (r *Repository) MarkCharmSpent(ctx context.Context, txid string, vout int32) (*domain.SpentCharmInfo, error) {
	const query = `
		UPDATE charms SET spent = true
		WHERE txid = $1 AND vout = $2 AND spent = false
		RETURNING txid, vout, app_id, address, amount
	`
	info := &domain.SpentCharmInfo{}
	err := r.pool.QueryRow(ctx, query, txid, vout).Scan(
		&info.Txid, &info.Vout, &info.AppID, &info.Address, &info.Amount,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: mark charm spent: %w", err)
	}
	return info, nil
}

// UnspendCharmsAbove reverses MarkCharmSpent for every charm spent by a
// transaction confirmed at or above fromHeight, used by the reorg/reindex
// path (spec.md §4.6) to undo spends before replaying a range.
func (r *Repository) UnspendCharmsAbove(ctx context.Context, network string, fromHeight int64) error {
	const query = `
		UPDATE charms SET spent = false
		WHERE network = $1 AND block_height >= $2 AND spent = true
	`
	if _, err := r.pool.Exec(ctx, query, network, fromHeight); err != nil {
		return fmt.Errorf("repository: unspend charms above: %w", err)
	}
	return nil
}

// DeleteRangeCharms removes every charm confirmed within [fromHeight,
// toHeight] on network, a step of a reindex replay.
func (r *Repository) DeleteRangeCharms(ctx context.Context, network string, fromHeight, toHeight int64) error {
	const query = `
		DELETE FROM charms WHERE network = $1 AND block_height BETWEEN $2 AND $3
	`
	if _, err := r.pool.Exec(ctx, query, network, fromHeight, toHeight); err != nil {
		return fmt.Errorf("repository: delete range charms: %w", err)
	}
	return nil
}

// DeleteRangeSpells removes every spell container row confirmed within
// [fromHeight, toHeight] on network.
func (r *Repository) DeleteRangeSpells(ctx context.Context, network string, fromHeight, toHeight int64) error {
	const query = `
		DELETE FROM spells WHERE network = $1 AND block_height BETWEEN $2 AND $3
	`
	if _, err := r.pool.Exec(ctx, query, network, fromHeight, toHeight); err != nil {
		return fmt.Errorf("repository: delete range spells: %w", err)
	}
	return nil
}

// PurgeStaleMempoolCharms deletes charms still resident in the mempool
// (block_height IS NULL) whose mempool_detected_at predates olderThan,
// spec.md §4.8's purge applied to unconfirmed charms rather than spends.
func (r *Repository) PurgeStaleMempoolCharms(ctx context.Context, network string, olderThan time.Duration) error {
	const query = `
		DELETE FROM charms
		WHERE network = $1 AND block_height IS NULL AND mempool_detected_at < $2
	`
	if _, err := r.pool.Exec(ctx, query, network, time.Now().UTC().Add(-olderThan)); err != nil {
		return fmt.Errorf("repository: purge stale mempool charms: %w", err)
	}
	return nil
}
