package spell

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/csic-platform/charms-indexer/internal/spellverifier"
)

// fakeVerifier returns a canned envelope regardless of rawHex, or ErrNoSpell
// when no envelope was configured. It models the external charm verifier for
// tests that don't need real spell bytes.
type fakeVerifier struct {
	env *spellverifier.Envelope
	err error
}

func (f fakeVerifier) ExtractSpell(string) (*spellverifier.Envelope, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.env, nil
}

// rawTxHex builds a minimal one-input, one-output P2PKH transaction's raw
// hex, good enough to exercise address extraction without a live node. The
// placeholder input keeps the input count non-zero, since a zero count would
// be read back as the segwit marker byte.
func rawTxHex(t *testing.T, addr string) string {
	t.Helper()
	decoded, err := btcutil.DecodeAddress(addr, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(decoded)
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, script))

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return hex.EncodeToString(buf.Bytes())
}

// emptyTxHex serializes a minimal valid transaction with one placeholder
// input and no outputs, for tests that only care about charm parsing and not
// address extraction.
func emptyTxHex(t *testing.T) string {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return hex.EncodeToString(buf.Bytes())
}

func TestAnalyze_NoSpell(t *testing.T) {
	verifier := fakeVerifier{err: spellverifier.ErrNoSpell}

	got, err := Analyze("txid1", emptyTxHex(t), "mainnet", verifier)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestAnalyze_TokenCharm(t *testing.T) {
	env := &spellverifier.Envelope{
		Version: 1,
		Apps: []spellverifier.AppDecl{
			{Tag: "t", Identity: "abc123", VK: "vk1"},
		},
		Outputs: []spellverifier.OutputCharms{
			{
				OutputIndex: 0,
				Charms: []spellverifier.CharmEntry{
					{AppIndex: 0, Data: []byte(`{"amount": 500, "symbol": "GOLD"}`)},
				},
			},
		},
	}
	verifier := fakeVerifier{env: env}
	addr := "mnzA4qVMJAaaXZbJv3NNSSsSVBz8NiQvLX"

	got, err := Analyze("txid2", rawTxHex(t, addr), "testnet", verifier)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.Equal(t, "t/abc123/vk1", got.AppID)
	require.Equal(t, "token", got.AssetType)
	require.Equal(t, int64(500), got.Amount)
	require.NotNil(t, got.Address)
	require.Equal(t, addr, *got.Address)
	require.False(t, got.IsBeaming)
	require.Empty(t, got.Tags)
	require.Len(t, got.AssetInfos, 1)
	require.Equal(t, "GOLD", *got.AssetInfos[0].Symbol)
}

func TestAnalyze_NegativeAmountClampedToZero(t *testing.T) {
	env := &spellverifier.Envelope{
		Apps: []spellverifier.AppDecl{{Tag: "n", Identity: "id1", VK: "vk1"}},
		Outputs: []spellverifier.OutputCharms{
			{OutputIndex: 0, Charms: []spellverifier.CharmEntry{
				{AppIndex: 0, Data: []byte(`{"amount": -5}`)},
			}},
		},
	}
	got, err := Analyze("txid3", emptyTxHex(t), "mainnet", fakeVerifier{env: env})
	require.NoError(t, err)
	require.Equal(t, int64(0), got.Amount)
	require.Equal(t, "nft", got.AssetType)
}

func TestAnalyze_DexCreateAskTagged(t *testing.T) {
	env := &spellverifier.Envelope{
		Apps: []spellverifier.AppDecl{
			{Tag: "b", Identity: zeroID, VK: "ce0c45fe29f26ff197bf9288e62ad7513941294d513e724854d97bee53e03a45"},
		},
		Outputs: []spellverifier.OutputCharms{
			{OutputIndex: 0, Charms: []spellverifier.CharmEntry{
				{AppIndex: 0, Data: []byte(`{"amount": 0, "dex_op": "create_ask", "maker": "bc1q...", "side": "ask", "price_num": 3, "price_den": 1, "quantity": 10, "asset_app_id": "t/xyz/vk2"}`)},
			}},
		},
	}
	got, err := Analyze("txid4", emptyTxHex(t), "mainnet", fakeVerifier{env: env})
	require.NoError(t, err)
	require.NotNil(t, got.DexResult)
	require.Contains(t, got.Tags, "charms-cast")
	require.Contains(t, got.Tags, "create-ask")
	require.NotNil(t, got.DexResult.Order)
	require.Equal(t, int64(3), got.DexResult.Order.PriceNum)
}

func TestAnalyze_BeamedOutsTagged(t *testing.T) {
	env := &spellverifier.Envelope{
		Apps:       []spellverifier.AppDecl{{Tag: "t", Identity: "id1", VK: "vk1"}},
		BeamedOuts: []byte(`{"0": "ctx"}`),
		Outputs: []spellverifier.OutputCharms{
			{OutputIndex: 0, Charms: []spellverifier.CharmEntry{
				{AppIndex: 0, Data: []byte(`{"amount": 1}`)},
			}},
		},
	}
	got, err := Analyze("txid5", emptyTxHex(t), "mainnet", fakeVerifier{env: env})
	require.NoError(t, err)
	require.True(t, got.IsBeaming)
	require.Contains(t, got.Tags, "beaming")
}

var zeroID = strings.Repeat("0", 64)
