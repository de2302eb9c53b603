package spell

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// networkParams maps the indexer's network names to chaincfg.Params, as
// original_source/indexer/src/domain/services/address_extractor.rs does.
func networkParams(network string) *chaincfg.Params {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams
	case "testnet4", "testnet":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.TestNet3Params
	}
}

// extractAllAddresses decodes rawHex and returns the encoded address of
// every output whose script resolves to one (skipping provably unspendable
// outputs), in output order.
func extractAllAddresses(rawHex, network string) ([]string, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, err
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	params := networkParams(network)
	var addrs []string
	for _, out := range tx.TxOut {
		if txscript.GetScriptClass(out.PkScript) == txscript.NullDataTy {
			continue
		}
		_, decoded, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, params)
		if err != nil || len(decoded) == 0 {
			continue
		}
		addrs = append(addrs, decoded[0].EncodeAddress())
	}
	return addrs, nil
}

// OutputInfo is one transaction output's decoded address (empty for
// provably-unspendable outputs), script and value.
type OutputInfo struct {
	Address      string
	ScriptPubkey string
	Value        int64
}

// DecodeOutputs decodes rawHex and returns every output's address (if any),
// hex-encoded script and value, in output order. Used by the Block and
// Mempool Processors' monitored-address UTXO tracker.
func DecodeOutputs(rawHex, network string) ([]OutputInfo, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, err
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	params := networkParams(network)
	out := make([]OutputInfo, len(tx.TxOut))
	for i, txOut := range tx.TxOut {
		out[i] = OutputInfo{
			ScriptPubkey: hex.EncodeToString(txOut.PkScript),
			Value:        txOut.Value,
		}
		if txscript.GetScriptClass(txOut.PkScript) == txscript.NullDataTy {
			continue
		}
		_, decoded, _, err := txscript.ExtractPkScriptAddrs(txOut.PkScript, params)
		if err != nil || len(decoded) == 0 {
			continue
		}
		out[i].Address = decoded[0].EncodeAddress()
	}
	return out, nil
}

// extractCharmHolderAddress resolves the charm's holder address per
// spec.md §4.2 step 4: "the first decodable address with priority
// P2PKH > P2SH > Bech32 > first."
func extractCharmHolderAddress(rawHex, network string) (*string, error) {
	addrs, err := extractAllAddresses(rawHex, network)
	if err != nil {
		return nil, err
	}

	for _, a := range addrs {
		if strings.HasPrefix(a, "1") || strings.HasPrefix(a, "m") || strings.HasPrefix(a, "n") {
			return &a, nil
		}
	}
	for _, a := range addrs {
		if strings.HasPrefix(a, "3") || strings.HasPrefix(a, "2") {
			return &a, nil
		}
	}
	for _, a := range addrs {
		if strings.HasPrefix(a, "bc1") || strings.HasPrefix(a, "tb1") {
			return &a, nil
		}
	}
	if len(addrs) > 0 {
		return &addrs[0], nil
	}
	return nil, nil
}
