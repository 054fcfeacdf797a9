package chain

import (
	"testing"

	"gaslessSwap/internal/dex"
	"gaslessSwap/internal/indexer"
	"gaslessSwap/internal/relay"
)

var (
	_ indexer.Chain      = (*Client)(nil)
	_ relay.Backend      = (*Client)(nil)
	_ dex.ContractCaller = (*Client)(nil)
)

func TestTimestampCacheEvictsOldest(t *testing.T) {
	cache := newTimestampCache(3)
	for block := uint64(1); block <= 3; block++ {
		cache.put(block, 1000+block)
	}
	cache.put(2, 2002)
	if cache.len() != 3 {
		t.Fatalf("overwrite should not grow the cache, len=%d", cache.len())
	}

	cache.put(4, 1004)
	cache.put(5, 1005)
	if cache.len() != 3 {
		t.Fatalf("cache exceeded its size, len=%d", cache.len())
	}
	for _, evicted := range []uint64{1, 2} {
		if _, ok := cache.get(evicted); ok {
			t.Fatalf("block %d should have been evicted", evicted)
		}
	}
	for block, want := range map[uint64]uint64{3: 1003, 4: 1004, 5: 1005} {
		got, ok := cache.get(block)
		if !ok || got != want {
			t.Fatalf("block %d: got %d %v, want %d", block, got, ok, want)
		}
	}
}
