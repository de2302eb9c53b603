package spell

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// Outpoint identifies a previous transaction output by txid and index.
type Outpoint struct {
	Txid  string
	Index uint32
}

// ExtractSpentOutpoints decodes rawHex and returns the previous_output of
// every non-coinbase input, per spec.md §4.3 step 3: "derive the set of
// spent outpoints by decoding the raw transactions and collecting every
// non-coinbase input's previous_output."
func ExtractSpentOutpoints(rawHex string) ([]Outpoint, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("spell: decode hex: %w", err)
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("spell: deserialize tx: %w", err)
	}

	var out []Outpoint
	for _, in := range tx.TxIn {
		if isCoinbaseInput(in) {
			continue
		}
		out = append(out, Outpoint{
			Txid:  in.PreviousOutPoint.Hash.String(),
			Index: in.PreviousOutPoint.Index,
		})
	}
	return out, nil
}

func isCoinbaseInput(in *wire.TxIn) bool {
	var zero [32]byte
	return in.PreviousOutPoint.Hash == zero && in.PreviousOutPoint.Index == wire.MaxPrevOutIndex
}
