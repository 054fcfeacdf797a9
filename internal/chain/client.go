package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

const defaultTimestampCacheSize = 4096

// Client is the single RPC connection a swapper session holds. It is the read
// provider for ledger views, the receipt source for the relayer, the submission
// backend for relays reached over raw JSON-RPC, and the log source for the indexer.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	timestamps *timestampCache
}

// NewClient dials rpcURL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	return &Client{
		rpcClient:  rpcClient,
		ethClient:  ethclient.NewClient(rpcClient),
		timestamps: newTimestampCache(defaultTimestampCacheSize),
	}, nil
}

func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID stamps indexed ledger events with their chain.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber is the head the indexer syncs up to.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// BlockTimestamp returns the time of block number. Recent lookups are cached, since
// a batch of ledger events usually shares a handful of blocks.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.timestamps.get(number); ok {
		return ts, nil
	}
	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}
	c.timestamps.put(number, header.Time)
	return header.Time, nil
}

// FilterLogs returns logs emitted by the ledgers in [fromBlock, toBlock] whose first
// topic is one of topic0. An empty topic0 matches every event.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, ledgers []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: ledgers,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.ethClient.FilterLogs(ctx, query)
}

// CallContract runs an eth_call; ledger views and ERC20 reads go through it.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// TransactionReceipt returns ethereum.NotFound until the sponsored call is mined.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.ethClient.TransactionReceipt(ctx, hash)
}

// Call issues a raw JSON-RPC request, used for relay submission methods.
func (c *Client) Call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return c.rpcClient.CallContext(ctx, result, method, args...)
}

// timestampCache keeps the most recently inserted block times, evicting the oldest
// insertion once full. Follow mode would otherwise grow it forever.
type timestampCache struct {
	mu    sync.RWMutex
	size  int
	data  map[uint64]uint64
	order []uint64
	next  int
}

func newTimestampCache(size int) *timestampCache {
	if size <= 0 {
		size = 1
	}
	return &timestampCache{size: size, data: make(map[uint64]uint64, size), order: make([]uint64, 0, size)}
}

func (t *timestampCache) get(number uint64) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.data[number]
	return ts, ok
}

func (t *timestampCache) put(number, ts uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.data[number]; ok {
		t.data[number] = ts
		return
	}
	if len(t.order) < t.size {
		t.order = append(t.order, number)
	} else {
		delete(t.data, t.order[t.next])
		t.order[t.next] = number
		t.next = (t.next + 1) % t.size
	}
	t.data[number] = ts
}

func (t *timestampCache) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}
