package repository

import (
	"context"
	"fmt"

	"github.com/csic-platform/charms-indexer/internal/domain"
)

// ApplyHolderDelta adjusts one (app_id, address) balance row by d.Delta,
// creating the row on first sight, then deletes it if the balance reaches
// zero (spec.md §8 property 4, "holder positivity": no row survives with
// total_amount <= 0).
func (r *Repository) ApplyHolderDelta(ctx context.Context, d domain.HolderDelta) error {
	const upsertQuery = `
		INSERT INTO holder_stats (app_id, address, total_amount, charm_count, first_seen_block, last_updated_block, updated_at)
		VALUES ($1, $2, GREATEST($3, 0), 1, $4, $4, now())
		ON CONFLICT (app_id, address) DO UPDATE SET
			total_amount = GREATEST(holder_stats.total_amount + $3, 0),
			charm_count = holder_stats.charm_count + 1,
			last_updated_block = $4,
			updated_at = now()
	`
	const pruneQuery = `
		DELETE FROM holder_stats WHERE app_id = $1 AND address = $2 AND total_amount <= 0
	`
	if _, err := r.pool.Exec(ctx, upsertQuery, d.AppID, d.Address, d.Delta, d.Height); err != nil {
		return fmt.Errorf("repository: apply holder delta: %w", err)
	}
	if _, err := r.pool.Exec(ctx, pruneQuery, d.AppID, d.Address); err != nil {
		return fmt.Errorf("repository: prune zeroed holder: %w", err)
	}
	return nil
}

// ListHolders returns every holder-stats row for appID, descending by
// balance.
func (r *Repository) ListHolders(ctx context.Context, appID string) ([]domain.HolderStats, error) {
	const query = `
		SELECT id, app_id, address, total_amount, charm_count, first_seen_block, last_updated_block, updated_at
		FROM holder_stats WHERE app_id = $1 ORDER BY total_amount DESC
	`
	rows, err := r.pool.Query(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("repository: list holders: %w", err)
	}
	defer rows.Close()

	var out []domain.HolderStats
	for rows.Next() {
		var h domain.HolderStats
		if err := rows.Scan(&h.ID, &h.AppID, &h.Address, &h.TotalAmount, &h.CharmCount, &h.FirstSeenBlock, &h.LastUpdatedBlock, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: scan holder stats: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteRangeHolderStats removes holder rows whose last_updated_block falls
// in [fromHeight, toHeight], the reindexer's rebalancing path recomputes
// them fresh after a range replay (spec.md §4.6).
func (r *Repository) DeleteRangeHolderStats(ctx context.Context, appID string, fromHeight, toHeight int64) error {
	const query = `
		DELETE FROM holder_stats
		WHERE app_id = $1 AND last_updated_block BETWEEN $2 AND $3
	`
	if _, err := r.pool.Exec(ctx, query, appID, fromHeight, toHeight); err != nil {
		return fmt.Errorf("repository: delete range holder stats: %w", err)
	}
	return nil
}

// RebuildHolderStats recomputes every (app_id, address) balance from the
// current charms table, used after a reindex replay to repair holder_stats
// without trusting incremental deltas across the replayed range.
func (r *Repository) RebuildHolderStats(ctx context.Context, appID string) error {
	const deleteQuery = `DELETE FROM holder_stats WHERE app_id = $1`
	const insertQuery = `
		INSERT INTO holder_stats (app_id, address, total_amount, charm_count, first_seen_block, last_updated_block, updated_at)
		SELECT
			app_id,
			address,
			SUM(amount),
			COUNT(*),
			MIN(block_height),
			MAX(block_height),
			now()
		FROM charms
		WHERE app_id = $1 AND spent = false AND address IS NOT NULL AND block_height IS NOT NULL
		GROUP BY app_id, address
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: rebuild holder stats begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteQuery, appID); err != nil {
		return fmt.Errorf("repository: rebuild holder stats delete: %w", err)
	}
	if _, err := tx.Exec(ctx, insertQuery, appID); err != nil {
		return fmt.Errorf("repository: rebuild holder stats insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: rebuild holder stats commit: %w", err)
	}
	return nil
}
