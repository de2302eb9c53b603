package blockfinder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/csic-platform/charms-indexer/internal/provider"
)

// fakeProvider serves GetBlockHash/GetBlock from a pruneFloor: every height
// below it fails, as a pruned node would.
type fakeProvider struct {
	provider.Provider
	pruneFloor int64
}

func (f fakeProvider) GetBlockHash(ctx context.Context, height int64) (string, error) {
	if height < f.pruneFloor {
		return "", errors.New("Block not available (pruned data)")
	}
	return "hash", nil
}

func (f fakeProvider) GetBlock(ctx context.Context, hash string) (*provider.Block, error) {
	return &provider.Block{Hash: hash}, nil
}

func TestFind_AlreadyRetrievable(t *testing.T) {
	p := fakeProvider{pruneFloor: 0}
	h, err := Find(context.Background(), p, 700000, 800000)
	require.NoError(t, err)
	require.Equal(t, int64(700000), h)
}

func TestFind_PrunedTail(t *testing.T) {
	p := fakeProvider{pruneFloor: 700000}
	h, err := Find(context.Background(), p, 0, 800000)
	require.NoError(t, err)
	require.Equal(t, int64(700000), h)
}

func TestFind_NoRetrievableHeightReturnsTip(t *testing.T) {
	p := fakeProvider{pruneFloor: 900000}
	h, err := Find(context.Background(), p, 0, 800000)
	require.NoError(t, err)
	require.Equal(t, int64(800000), h)
}
