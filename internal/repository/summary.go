package repository

import (
	"context"
	"fmt"

	"github.com/csic-platform/charms-indexer/internal/domain"
)

// GetSummary returns the scoreboard row for network, or ErrNotFound before
// the first block is ever processed.
func (r *Repository) GetSummary(ctx context.Context, network string) (*domain.Summary, error) {
	const query = `
		SELECT id, network, last_processed_block, latest_confirmed_block, total_charms,
			   total_tx, total_confirmed_tx, total_nfts, total_tokens, total_dapps,
			   total_other, node_status, last_updated
		FROM summaries WHERE network = $1
	`
	s := &domain.Summary{}
	err := r.pool.QueryRow(ctx, query, network).Scan(
		&s.ID, &s.Network, &s.LastProcessedBlock, &s.LatestConfirmedBlock, &s.TotalCharms,
		&s.TotalTx, &s.TotalConfirmedTx, &s.TotalNFTs, &s.TotalTokens, &s.TotalDapps,
		&s.TotalOther, &s.NodeStatus, &s.LastUpdated,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: get summary: %w", err)
	}
	return s, nil
}

// IncrementSummaryCounts applies per-block deltas to a network's scoreboard,
// creating the row on first sight (spec.md §4.3 final step, "post-update").
func (r *Repository) IncrementSummaryCounts(ctx context.Context, network string, processedBlock, confirmedBlock int64, deltaCharms, deltaTx, deltaConfirmedTx, deltaNFTs, deltaTokens, deltaDapps, deltaOther int64) error {
	const query = `
		INSERT INTO summaries (
			network, last_processed_block, latest_confirmed_block, total_charms,
			total_tx, total_confirmed_tx, total_nfts, total_tokens, total_dapps,
			total_other, node_status, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '{}', now())
		ON CONFLICT (network) DO UPDATE SET
			last_processed_block = $2,
			latest_confirmed_block = GREATEST(summaries.latest_confirmed_block, $3),
			total_charms = summaries.total_charms + $4,
			total_tx = summaries.total_tx + $5,
			total_confirmed_tx = summaries.total_confirmed_tx + $6,
			total_nfts = summaries.total_nfts + $7,
			total_tokens = summaries.total_tokens + $8,
			total_dapps = summaries.total_dapps + $9,
			total_other = summaries.total_other + $10,
			last_updated = now()
	`
	_, err := r.pool.Exec(ctx, query, network, processedBlock, confirmedBlock,
		deltaCharms, deltaTx, deltaConfirmedTx, deltaNFTs, deltaTokens, deltaDapps, deltaOther)
	if err != nil {
		return fmt.Errorf("repository: increment summary counts: %w", err)
	}
	return nil
}

// SetNodeStatus records the provider's latest node-health payload (e.g. sync
// progress, peer count) for the health endpoint to surface.
func (r *Repository) SetNodeStatus(ctx context.Context, network string, status []byte) error {
	const query = `UPDATE summaries SET node_status = $2, last_updated = now() WHERE network = $1`
	if _, err := r.pool.Exec(ctx, query, network, status); err != nil {
		return fmt.Errorf("repository: set node status: %w", err)
	}
	return nil
}
