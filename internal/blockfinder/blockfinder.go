// Package blockfinder implements the Block Finder (C4): locating the first
// retrievable block height on a pruned node, by exponential probe followed
// by binary search. Grounded on original_source/indexer/src/domain/services/
// block_finder.rs.
package blockfinder

import (
	"context"

	"github.com/csic-platform/charms-indexer/internal/provider"
)

// probeSteps are the widening jumps the exponential phase tries, in order,
// before falling back to the capped 10,000-height stride (spec.md §4.4).
var probeSteps = []int64{1000, 3000, 7000}

const maxStride = 10000

// Find returns the smallest retrievable height >= startHeight and <= tip. If
// no such height exists, it returns tip.
func Find(ctx context.Context, p provider.Provider, startHeight, tip int64) (int64, error) {
	if retrievable(ctx, p, startHeight) {
		return startHeight, nil
	}

	probe, err := exponentialProbe(ctx, p, startHeight, tip)
	if err != nil {
		return 0, err
	}
	if probe > tip {
		return tip, nil
	}

	return binarySearch(ctx, p, startHeight, probe), nil
}

// exponentialProbe walks startHeight+1000, +3000, +7000, then continues in
// 10000-height strides (+17000, +27000, ...) until it lands on a retrievable
// height or passes tip.
func exponentialProbe(ctx context.Context, p provider.Provider, startHeight, tip int64) (int64, error) {
	offset := int64(0)
	for _, step := range probeSteps {
		offset = step
		h := startHeight + offset
		if h > tip {
			return tip, nil
		}
		if retrievable(ctx, p, h) {
			return h, nil
		}
	}

	for {
		offset += maxStride
		h := startHeight + offset
		if h > tip {
			return tip, nil
		}
		if retrievable(ctx, p, h) {
			return h, nil
		}
	}
}

// binarySearch finds the smallest retrievable height in [lo, hi], assuming
// hi is retrievable and every height >= the true boundary is retrievable
// (pruned nodes drop a contiguous prefix of history).
func binarySearch(ctx context.Context, p provider.Provider, lo, hi int64) int64 {
	for lo < hi {
		mid := lo + (hi-lo)/2
		if retrievable(ctx, p, mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// retrievable reports whether both get_block_hash and get_block succeed at
// height — any other outcome, including a pruned-error substring match,
// counts as not retrievable.
func retrievable(ctx context.Context, p provider.Provider, height int64) bool {
	hash, err := p.GetBlockHash(ctx, height)
	if err != nil {
		return false
	}
	_, err = p.GetBlock(ctx, hash)
	return err == nil
}
