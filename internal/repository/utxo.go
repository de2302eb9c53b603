package repository

import (
	"context"
	"fmt"

	"github.com/csic-platform/charms-indexer/internal/domain"
	"github.com/csic-platform/charms-indexer/internal/repository/dbx"
)

// InsertUTXO records a new output paying a monitored address.
func (r *Repository) InsertUTXO(ctx context.Context, u *domain.AddressUTXO) error {
	const query = `
		INSERT INTO address_utxos (txid, vout, network, address, value, script_pubkey, block_height)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (txid, vout, network) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, u.Txid, u.Vout, u.Network, u.Address, u.Value, u.ScriptPubkey, u.BlockHeight)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("repository: insert utxo: %w", err)
	}
	return nil
}

// DeleteUTXO removes a UTXO once it is spent.
func (r *Repository) DeleteUTXO(ctx context.Context, network, txid string, vout int32) error {
	const query = `DELETE FROM address_utxos WHERE network = $1 AND txid = $2 AND vout = $3`
	if _, err := r.pool.Exec(ctx, query, network, txid, vout); err != nil {
		return fmt.Errorf("repository: delete utxo: %w", err)
	}
	return nil
}

// PromoteUTXOHeight confirms a mempool-seen UTXO (block_height 0) into a
// real block height.
func (r *Repository) PromoteUTXOHeight(ctx context.Context, network, txid string, vout int32, height int64) error {
	const query = `
		UPDATE address_utxos SET block_height = $4
		WHERE network = $1 AND txid = $2 AND vout = $3 AND block_height = 0
	`
	if _, err := r.pool.Exec(ctx, query, network, txid, vout, height); err != nil {
		return fmt.Errorf("repository: promote utxo height: %w", err)
	}
	return nil
}

// ListUTXOs returns every tracked UTXO for address on network.
func (r *Repository) ListUTXOs(ctx context.Context, network, address string) ([]domain.AddressUTXO, error) {
	const query = `
		SELECT txid, vout, network, address, value, script_pubkey, block_height
		FROM address_utxos WHERE network = $1 AND address = $2
	`
	rows, err := r.pool.Query(ctx, query, network, address)
	if err != nil {
		return nil, fmt.Errorf("repository: list utxos: %w", err)
	}
	defer rows.Close()

	var out []domain.AddressUTXO
	for rows.Next() {
		var u domain.AddressUTXO
		if err := rows.Scan(&u.Txid, &u.Vout, &u.Network, &u.Address, &u.Value, &u.ScriptPubkey, &u.BlockHeight); err != nil {
			return nil, fmt.Errorf("repository: scan utxo: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
