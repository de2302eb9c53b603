package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/csic-platform/charms-indexer/internal/domain"
)

// GetBookmark returns the last processed block for (blockchain, network), or
// ErrNotFound if the pair has never been bookmarked.
func (r *Repository) GetBookmark(ctx context.Context, blockchain, network string) (*domain.Bookmark, error) {
	const query = `
		SELECT hash, height, status, blockchain, network, last_updated
		FROM bookmarks
		WHERE blockchain = $1 AND network = $2
	`

	b := &domain.Bookmark{}
	err := r.pool.QueryRow(ctx, query, blockchain, network).Scan(
		&b.Hash, &b.Height, &b.Status, &b.Blockchain, &b.Network, &b.LastUpdated,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: get bookmark: %w", err)
	}
	return b, nil
}

// UpsertBookmark advances (or creates) the bookmark for (blockchain, network).
func (r *Repository) UpsertBookmark(ctx context.Context, b *domain.Bookmark) error {
	const query = `
		INSERT INTO bookmarks (hash, height, status, blockchain, network, last_updated)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (blockchain, network) DO UPDATE SET
			hash = EXCLUDED.hash,
			height = EXCLUDED.height,
			status = EXCLUDED.status,
			last_updated = now()
	`
	if _, err := r.pool.Exec(ctx, query, b.Hash, b.Height, b.Status, b.Blockchain, b.Network); err != nil {
		r.logger.Error("upsert bookmark failed", zap.Error(err), zap.String("network", b.Network))
		return fmt.Errorf("repository: upsert bookmark: %w", err)
	}
	return nil
}
