package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/csic-platform/charms-indexer/internal/domain"
)

// InsertDexOrder persists a newly created Charms-Cast ask/bid order
// (spec.md §4.2 step 5, dex.OpCreateAskOrder/OpCreateBidOrder).
func (r *Repository) InsertDexOrder(ctx context.Context, o *domain.DexOrder) error {
	const query = `
		INSERT INTO dex_orders (
			order_id, platform, maker, side, exec_type, partial_from, price_num,
			price_den, amount, quantity, asset_app_id, status, parent_order_id,
			block_height, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		ON CONFLICT (order_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		o.OrderID, o.Platform, o.Maker, o.Side, o.ExecType, o.PartialFrom, o.PriceNum,
		o.PriceDen, o.Amount, o.Quantity, o.AssetAppID, o.Status, o.ParentOrderID, o.BlockHeight,
	)
	if err != nil {
		return fmt.Errorf("repository: insert dex order: %w", err)
	}
	return nil
}

// UpdateDexOrderStatus transitions an order's status, e.g. open -> filled on
// OpFulfillAsk/OpFulfillBid, or open -> cancelled on OpCancelOrder.
func (r *Repository) UpdateDexOrderStatus(ctx context.Context, orderID, status string) error {
	const query = `UPDATE dex_orders SET status = $2, updated_at = now() WHERE order_id = $1`
	if _, err := r.pool.Exec(ctx, query, orderID, status); err != nil {
		return fmt.Errorf("repository: update dex order status: %w", err)
	}
	return nil
}

// GetDexOrder looks up one order by id.
func (r *Repository) GetDexOrder(ctx context.Context, orderID string) (*domain.DexOrder, error) {
	const query = `
		SELECT order_id, platform, maker, side, exec_type, partial_from, price_num,
			   price_den, amount, quantity, asset_app_id, status, parent_order_id,
			   block_height, created_at, updated_at
		FROM dex_orders WHERE order_id = $1
	`
	o := &domain.DexOrder{}
	err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&o.OrderID, &o.Platform, &o.Maker, &o.Side, &o.ExecType, &o.PartialFrom, &o.PriceNum,
		&o.PriceDen, &o.Amount, &o.Quantity, &o.AssetAppID, &o.Status, &o.ParentOrderID,
		&o.BlockHeight, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: get dex order: %w", err)
	}
	return o, nil
}

// ListOpenDexOrdersByAsset returns every open or partially-filled order for
// assetAppID, used to match a fulfill/partial-fill against its targets.
func (r *Repository) ListOpenDexOrdersByAsset(ctx context.Context, assetAppID string) ([]domain.DexOrder, error) {
	const query = `
		SELECT order_id, platform, maker, side, exec_type, partial_from, price_num,
			   price_den, amount, quantity, asset_app_id, status, parent_order_id,
			   block_height, created_at, updated_at
		FROM dex_orders
		WHERE asset_app_id = $1 AND status IN ('open', 'partial')
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, assetAppID)
	if err != nil {
		return nil, fmt.Errorf("repository: list open dex orders: %w", err)
	}
	defer rows.Close()

	var out []domain.DexOrder
	for rows.Next() {
		var o domain.DexOrder
		if err := rows.Scan(
			&o.OrderID, &o.Platform, &o.Maker, &o.Side, &o.ExecType, &o.PartialFrom, &o.PriceNum,
			&o.PriceDen, &o.Amount, &o.Quantity, &o.AssetAppID, &o.Status, &o.ParentOrderID,
			&o.BlockHeight, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("repository: scan dex order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// PurgeStaleMempoolDexOrders deletes orders created from a mempool-resident
// tx (block_height IS NULL) that never confirmed within olderThan
// (spec.md §4.8).
func (r *Repository) PurgeStaleMempoolDexOrders(ctx context.Context, network string, olderThan time.Duration) error {
	const query = `
		DELETE FROM dex_orders
		WHERE block_height IS NULL AND created_at < $1
		AND asset_app_id IN (SELECT app_id FROM assets WHERE network = $2)
	`
	if _, err := r.pool.Exec(ctx, query, time.Now().UTC().Add(-olderThan), network); err != nil {
		return fmt.Errorf("repository: purge stale mempool dex orders: %w", err)
	}
	return nil
}
