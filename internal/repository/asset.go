package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/csic-platform/charms-indexer/internal/domain"
)

// UpsertAsset inserts the aggregate row for an app_id the first time it is
// seen, and updates its mutable metadata fields on subsequent sightings
// (spec.md §4.3 step 6: "delta-safe UPSERT for updates").
func (r *Repository) UpsertAsset(ctx context.Context, a *domain.Asset) error {
	const query = `
		INSERT INTO assets (
			app_id, txid, vout_index, charm_id, block_height, data, asset_type,
			blockchain, network, name, symbol, description, image_url, decimals,
			total_supply, is_reference, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, false, now(), now())
		ON CONFLICT (app_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, assets.name),
			symbol = COALESCE(EXCLUDED.symbol, assets.symbol),
			description = COALESCE(EXCLUDED.description, assets.description),
			image_url = COALESCE(EXCLUDED.image_url, assets.image_url),
			decimals = COALESCE(EXCLUDED.decimals, assets.decimals),
			updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query,
		a.AppID, a.Txid, a.VoutIndex, a.CharmID, a.BlockHeight, a.Data, a.AssetType,
		a.Blockchain, a.Network, a.Name, a.Symbol, a.Description, a.ImageURL, a.Decimals,
		a.TotalSupply,
	)
	if err != nil {
		return fmt.Errorf("repository: upsert asset: %w", err)
	}
	return nil
}

// AdjustTotalSupply adds a signed delta to an asset's total_supply. It is the
// incremental path the Block Processor uses per spend/mint; the exact
// SUM(amount) WHERE spent = false recomputation is RecomputeTotalSupply.
func (r *Repository) AdjustTotalSupply(ctx context.Context, appID string, delta decimal.Decimal) error {
	const query = `
		UPDATE assets SET total_supply = total_supply + $2, updated_at = now()
		WHERE app_id = $1
	`
	if _, err := r.pool.Exec(ctx, query, appID, delta); err != nil {
		return fmt.Errorf("repository: adjust total supply: %w", err)
	}
	return nil
}

// RecomputeTotalSupply sets total_supply to the exact sum of unspent charm
// amounts for appID, used by the reindexer after a replay where incremental
// deltas would be unreliable to reconstruct.
func (r *Repository) RecomputeTotalSupply(ctx context.Context, appID string) error {
	const query = `
		UPDATE assets SET total_supply = COALESCE((
			SELECT SUM(amount) FROM charms WHERE app_id = $1 AND spent = false
		), 0), updated_at = now()
		WHERE app_id = $1
	`
	if _, err := r.pool.Exec(ctx, query, appID); err != nil {
		return fmt.Errorf("repository: recompute total supply: %w", err)
	}
	return nil
}

// GetAsset looks up one asset by app_id.
func (r *Repository) GetAsset(ctx context.Context, appID string) (*domain.Asset, error) {
	const query = `
		SELECT app_id, txid, vout_index, charm_id, block_height, data, asset_type,
			   blockchain, network, name, symbol, description, image_url, decimals,
			   total_supply, is_reference, created_at, updated_at
		FROM assets WHERE app_id = $1
	`
	a := &domain.Asset{}
	err := r.pool.QueryRow(ctx, query, appID).Scan(
		&a.AppID, &a.Txid, &a.VoutIndex, &a.CharmID, &a.BlockHeight, &a.Data, &a.AssetType,
		&a.Blockchain, &a.Network, &a.Name, &a.Symbol, &a.Description, &a.ImageURL, &a.Decimals,
		&a.TotalSupply, &a.IsReference, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: get asset: %w", err)
	}
	return a, nil
}

// ListAppIDsInRange returns every distinct app_id that had a charm activity
// within [fromHeight, toHeight] on network, used by the reindexer to know
// which assets need their holder stats and total_supply recomputed after a
// range replay.
func (r *Repository) ListAppIDsInRange(ctx context.Context, network string, fromHeight, toHeight int64) ([]string, error) {
	const query = `
		SELECT DISTINCT app_id FROM charms
		WHERE network = $1 AND block_height BETWEEN $2 AND $3
	`
	rows, err := r.pool.Query(ctx, query, network, fromHeight, toHeight)
	if err != nil {
		return nil, fmt.Errorf("repository: list app ids in range: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var appID string
		if err := rows.Scan(&appID); err != nil {
			return nil, fmt.Errorf("repository: scan app id: %w", err)
		}
		out = append(out, appID)
	}
	return out, rows.Err()
}

// MarkNFTReference sets is_reference=true on the reference NFT's own asset
// row (spec.md §4.3c/§4.7, §8 property 8: at most one such UPDATE per NFT).
// Callers gate this on refcache.Cache.MarkReferenceOnce so it runs exactly
// once per process lifetime per identity hash.
func (r *Repository) MarkNFTReference(ctx context.Context, nftAppID string) error {
	const query = `UPDATE assets SET is_reference = true, updated_at = now() WHERE app_id = $1`
	if _, err := r.pool.Exec(ctx, query, nftAppID); err != nil {
		return fmt.Errorf("repository: mark nft reference: %w", err)
	}
	return nil
}

// InheritReferenceMetadata writes the given name/symbol/description/image_url
// into every token asset row ("t/<identity>/...") whose own value for that
// field is NULL; fields already set are kept. The values come from the
// caller (the reference NFT's cached metadata), not from the NFT's asset row.
func (r *Repository) InheritReferenceMetadata(ctx context.Context, identity string, name, symbol, description, imageURL *string) error {
	const query = `
		UPDATE assets SET
			name = COALESCE(assets.name, $2),
			symbol = COALESCE(assets.symbol, $3),
			description = COALESCE(assets.description, $4),
			image_url = COALESCE(assets.image_url, $5),
			updated_at = now()
		WHERE app_id LIKE 't/' || $1 || '/%'
	`
	if _, err := r.pool.Exec(ctx, query, identity, name, symbol, description, imageURL); err != nil {
		return fmt.Errorf("repository: inherit reference metadata: %w", err)
	}
	return nil
}
