// Package evm implements the ledger interfaces against an EVM JSON-RPC node.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"vaultctl/internal/ledger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Options locates the deployment and bounds remote calls.
type Options struct {
	RPCNode        string
	ChainID        int64 // 0 asks the node
	Factory        string
	Router         string
	PythPriceFeed  string
	CollateralPool string
	BatchManager   string

	CallTimeout    time.Duration
	ReceiptTimeout time.Duration
	MaxBatchSize   int
}

// Client is a ledger.Ledger bound to one node and one signing key.
type Client struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	auth    *bind.TransactOpts
	account common.Address
	opts    Options
	logger  *zap.Logger

	gate ledger.Gate

	nonceMu sync.Mutex
	nonce   *uint64

	mu     sync.Mutex
	vaults map[common.Address]*vaultContract
	tokens map[common.Address]*tokenContract

	factory   *factoryContract
	router    *routerContract
	priceFeed *priceFeedContract
	pool      *collateralPoolContract
	batcher   *batchManagerContract
}

var _ ledger.Ledger = (*Client)(nil)

// Dial connects to opts.RPCNode and binds the configured contracts.
func Dial(ctx context.Context, opts Options, key *ecdsa.PrivateKey, logger *zap.Logger) (*Client, error) {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 3 * time.Minute
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 500
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(dialCtx, opts.RPCNode)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.RPCNode, err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID := big.NewInt(opts.ChainID)
	if opts.ChainID == 0 {
		chainID, err = eth.ChainID(dialCtx)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("chain id: %w", err)
		}
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("transactor: %w", err)
	}

	c := &Client{
		rpc:     rpcClient,
		eth:     eth,
		auth:    auth,
		account: crypto.PubkeyToAddress(key.PublicKey),
		opts:    opts,
		logger:  logger,
		vaults:  make(map[common.Address]*vaultContract),
		tokens:  make(map[common.Address]*tokenContract),
	}

	c.factory = &factoryContract{c.bind(common.HexToAddress(opts.Factory), factoryABI)}
	c.router = &routerContract{c.bind(common.HexToAddress(opts.Router), routerABI)}
	c.priceFeed = &priceFeedContract{c.bind(common.HexToAddress(opts.PythPriceFeed), pythABI)}
	if opts.CollateralPool != "" {
		c.pool = &collateralPoolContract{c.bind(common.HexToAddress(opts.CollateralPool), collateralPoolABI)}
	}
	if opts.BatchManager != "" {
		c.batcher = &batchManagerContract{c.bind(common.HexToAddress(opts.BatchManager), batchManagerABI)}
	}

	logger.Debug("ledger connected",
		zap.String("rpc", opts.RPCNode),
		zap.String("chain_id", chainID.String()),
		zap.String("account", c.account.Hex()))

	return c, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) Account() common.Address     { return c.account }
func (c *Client) Factory() ledger.Factory     { return c.factory }
func (c *Client) Router() ledger.Router       { return c.router }
func (c *Client) PriceFeed() ledger.PriceFeed { return c.priceFeed }

func (c *Client) CollateralPool() (ledger.CollateralPool, error) {
	if c.pool == nil {
		return nil, errors.New("collateralPool is not set")
	}
	return c.pool, nil
}

func (c *Client) BatchManager() (ledger.BatchManager, error) {
	if c.batcher == nil {
		return nil, errors.New("batchManager is not set")
	}
	return c.batcher, nil
}

func (c *Client) Vault(addr common.Address) ledger.Vault {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vaults[addr]
	if !ok {
		v = &vaultContract{c.bind(addr, vaultABI)}
		c.vaults[addr] = v
	}
	return v
}

func (c *Client) Token(addr common.Address) ledger.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[addr]
	if !ok {
		t = &tokenContract{c.bind(addr, erc20ABI)}
		c.tokens[addr] = t
	}
	return t
}

// NewBatch opens the client's batched-read window.
func (c *Client) NewBatch() (ledger.Batch, error) {
	if err := c.gate.Enter(); err != nil {
		return nil, err
	}
	return c.newBatch(true), nil
}

func (c *Client) bind(addr common.Address, a abi.ABI) contract {
	return contract{
		client:  c,
		address: addr,
		abi:     a,
		bound:   bind.NewBoundContract(addr, a, c.eth, c.eth, c.eth),
	}
}

func (c *Client) nextNonce(ctx context.Context) (uint64, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	if c.nonce == nil {
		n, err := c.eth.PendingNonceAt(ctx, c.account)
		if err != nil {
			return 0, fmt.Errorf("pending nonce: %w", err)
		}
		c.nonce = &n
	}
	n := *c.nonce
	*c.nonce = n + 1
	return n, nil
}

// resetNonce makes the next write re-read the pending nonce from the node.
func (c *Client) resetNonce() {
	c.nonceMu.Lock()
	c.nonce = nil
	c.nonceMu.Unlock()
}

// blockTime returns the timestamp of block number n.
func (c *Client) blockTime(ctx context.Context, n uint64) (uint64, error) {
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
	if err != nil {
		return 0, err
	}
	return header.Time, nil
}

// contract is the shared call/transact plumbing of every role adapter.
type contract struct {
	client  *Client
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
}

func (k contract) Address() common.Address { return k.address }

func (k contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, k.client.opts.CallTimeout)
	defer cancel()

	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: k.client.account}
	if err := k.bound.Call(opts, &out, method, args...); err != nil {
		return nil, callError(method, err)
	}
	return out, nil
}

func (k contract) transact(ctx context.Context, method string, txOpts ledger.TxOptions, args ...interface{}) (*ledger.Receipt, error) {
	c := k.client
	if err := c.gate.CheckWrite(); err != nil {
		return nil, err
	}

	nonce, err := c.nextNonce(ctx)
	if err != nil {
		return nil, err
	}

	opts := *c.auth
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(nonce)
	opts.Value = txOpts.Value
	opts.GasLimit = txOpts.GasLimit

	tx, err := k.bound.Transact(&opts, method, args...)
	if err != nil {
		c.resetNonce()
		return nil, callError(method, err)
	}
	c.logger.Debug("transaction sent",
		zap.String("method", method),
		zap.String("to", k.address.Hex()),
		zap.String("tx", tx.Hash().Hex()))

	waitCtx, cancel := context.WithTimeout(ctx, c.opts.ReceiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		return nil, callError(method, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err))
	}
	return toReceipt(receipt, k.abi, erc20ABI), nil
}

func (c *Client) filterLogs(ctx context.Context, addr common.Address) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	return c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{addr},
	})
}

// callError keeps the node's revert reason as the short message.
func callError(method string, err error) error {
	short := err.Error()
	if i := strings.Index(short, "execution reverted"); i >= 0 {
		short = short[i:]
	}
	if i := strings.IndexByte(short, '\n'); i >= 0 {
		short = short[:i]
	}
	return &ledger.CallError{Method: method, Short: short, Cause: err}
}

func toReceipt(r *types.Receipt, abis ...abi.ABI) *ledger.Receipt {
	out := &ledger.Receipt{
		Status: r.Status,
		TxHash: r.TxHash,
	}
	if r.BlockNumber != nil {
		out.Block = r.BlockNumber.Uint64()
	}
	for _, lg := range r.Logs {
		out.Events = append(out.Events, decodeLog(lg, abis...))
	}
	return out
}

// decodeLog matches a log against the given ABIs by event id. Unknown logs
// come back with an empty name.
func decodeLog(lg *types.Log, abis ...abi.ABI) ledger.Event {
	ev := ledger.Event{Address: lg.Address}
	if len(lg.Topics) == 0 {
		return ev
	}

	for _, a := range abis {
		event, err := a.EventByID(lg.Topics[0])
		if err != nil {
			continue
		}

		args := make(map[string]interface{})
		if len(lg.Data) > 0 {
			if err := a.UnpackIntoMap(args, event.Name, lg.Data); err != nil {
				continue
			}
		}
		var indexed abi.Arguments
		for _, in := range event.Inputs {
			if in.Indexed {
				indexed = append(indexed, in)
			}
		}
		if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
			continue
		}

		ev.Name = event.Name
		ev.Args = args
		return ev
	}
	return ev
}
