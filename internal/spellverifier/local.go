package spellverifier

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// spellMagic is the marker original_source's charm_detector.rs scans raw tx
// bytes for before attempting a full parse ("could_be_charm"). The Local
// verifier uses the same marker to locate its JSON envelope, immediately
// following the marker bytes, inside an OP_RETURN output or a witness item.
var spellMagic = []byte("spell")

// Local is a deterministic stand-in for the external charm-client spell
// verifier. It looks for a JSON-encoded Envelope tagged by spellMagic in
// either an OP_RETURN output (spec.md §4.2 step 1, "OP_RETURN output") or a
// taproot witness item ("Taproot witness"), and decodes it directly — no
// cryptographic verification is performed, matching this package's role as a
// boundary stub rather than the real verifier.
type Local struct{}

// NewLocal constructs the local stand-in verifier.
func NewLocal() *Local { return &Local{} }

// ExtractSpell implements Verifier.
func (Local) ExtractSpell(rawHex string) (*Envelope, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("spellverifier: decode hex: %w", err)
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("spellverifier: deserialize tx: %w", err)
	}

	if env, ok := envelopeFromOutputs(&tx); ok {
		return env, nil
	}
	if env, ok := envelopeFromWitness(&tx); ok {
		return env, nil
	}
	return nil, ErrNoSpell
}

func envelopeFromOutputs(tx *wire.MsgTx) (*Envelope, bool) {
	for _, out := range tx.TxOut {
		class := txscript.GetScriptClass(out.PkScript)
		if class != txscript.NullDataTy {
			continue
		}
		pushes, err := txscript.PushedData(out.PkScript)
		if err != nil {
			continue
		}
		for _, data := range pushes {
			if env, ok := decodeEnvelope(data); ok {
				return env, true
			}
		}
	}
	return nil, false
}

func envelopeFromWitness(tx *wire.MsgTx) (*Envelope, bool) {
	for _, in := range tx.TxIn {
		for _, item := range in.Witness {
			if env, ok := decodeEnvelope(item); ok {
				return env, true
			}
		}
	}
	return nil, false
}

// decodeEnvelope looks for spellMagic in data and JSON-decodes everything
// after it into an Envelope.
func decodeEnvelope(data []byte) (*Envelope, bool) {
	idx := bytes.Index(data, spellMagic)
	if idx < 0 {
		return nil, false
	}
	payload := data[idx+len(spellMagic):]
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, false
	}
	return &env, true
}
