package evm

import (
	"context"
	"fmt"
	"math/big"

	"vaultctl/internal/ledger"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"
)

// pendingCall is one queued eth_call.
type pendingCall struct {
	abi    abi.ABI
	method string
	elem   rpc.BatchElem
	result hexutil.Bytes
	err    error
}

func (p *pendingCall) outputs() ([]interface{}, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.elem.Error != nil {
		return nil, callError(p.method, p.elem.Error)
	}
	out, err := p.abi.Unpack(p.method, p.result)
	if err != nil {
		return nil, callError(p.method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", p.method)
	}
	return out, nil
}

// batch sends queued reads as JSON-RPC batch requests.
type batch struct {
	client    *Client
	gated     bool
	calls     []*pendingCall
	finishers []func()
	closed    bool
}

var _ ledger.Batch = (*batch)(nil)

// newBatch returns a batch. Gated batches hold the client's window until
// Flush or Close; ungated ones back single multi-getter reads.
func (c *Client) newBatch(gated bool) *batch {
	return &batch{client: c, gated: gated}
}

func (b *batch) queue(to common.Address, a abi.ABI, method string, args ...interface{}) *pendingCall {
	p := &pendingCall{abi: a, method: method}
	data, err := a.Pack(method, args...)
	if err != nil {
		p.err = fmt.Errorf("pack %s: %w", method, err)
		return p
	}
	p.elem = rpc.BatchElem{
		Method: "eth_call",
		Args: []interface{}{
			map[string]interface{}{
				"from": b.client.account,
				"to":   to,
				"data": hexutil.Bytes(data),
			},
			"latest",
		},
		Result: &p.result,
	}
	b.calls = append(b.calls, p)
	return p
}

func (b *batch) VaultInfo(vault common.Address) *ledger.VaultInfoResult {
	res := &ledger.VaultInfoResult{}
	q := func(method string) *pendingCall { return b.queue(vault, vaultABI, method) }

	owner := q("owner")
	isBuyLow := q("isBuyLow")
	investmentToken := q("investmentToken")
	linkedToken := q("linkedToken")
	quantity := q("quantity")
	depositTotal := q("depositTotal")
	state := q("state")
	expiry := q("expiry")
	yieldValue := q("yieldValue")
	linkedOraclePrice := q("linkedOraclePrice")
	oraclePriceAtCreation := q("oraclePriceAtCreation")
	tradingFeeRate := q("tradingFeeRate")
	cancellationFeeRate := q("cancellationFeeRate")
	useCollateralPool := q("useCollateralPool")
	depositDeadline := q("depositDeadline")
	lpCancelled := q("lpCancelled")
	ownerDeposit := q("ownerDeposit")

	b.finishers = append(b.finishers, func() {
		d := decoder{}
		res.Info = ledger.VaultInfo{
			Address:               vault,
			Owner:                 d.address(owner),
			IsBuyLow:              d.bool(isBuyLow),
			InvestmentToken:       d.address(investmentToken),
			LinkedToken:           d.address(linkedToken),
			Quantity:              d.uint256(quantity),
			DepositTotal:          d.uint256(depositTotal),
			State:                 ledger.VaultState(d.uint8(state)),
			Expiry:                d.uint256(expiry).Uint64(),
			YieldValue:            d.uint256(yieldValue),
			LinkedOraclePrice:     d.uint256(linkedOraclePrice),
			OraclePriceAtCreation: d.uint256(oraclePriceAtCreation),
			TradingFeeRate:        d.uint256(tradingFeeRate),
			CancellationFeeRate:   d.uint256(cancellationFeeRate),
			UseCollateralPool:     d.bool(useCollateralPool),
			DepositDeadline:       d.uint256(depositDeadline).Uint64(),
			LpCancelled:           d.bool(lpCancelled),
			OwnerDeposit:          d.uint256(ownerDeposit),
		}
		if d.err != nil {
			res.Err = fmt.Errorf("vault %s: %w", vault.Hex(), d.err)
		}
	})
	return res
}

func (b *batch) TokenMeta(token common.Address) *ledger.TokenMetaResult {
	res := &ledger.TokenMetaResult{}
	name := b.queue(token, erc20ABI, "name")
	symbol := b.queue(token, erc20ABI, "symbol")
	decimals := b.queue(token, erc20ABI, "decimals")

	b.finishers = append(b.finishers, func() {
		d := decoder{}
		res.Meta = ledger.TokenMeta{
			Address:  token,
			Name:     d.string(name),
			Symbol:   d.string(symbol),
			Decimals: d.uint8(decimals),
		}
		if d.err != nil {
			res.Err = fmt.Errorf("token %s: %w", token.Hex(), d.err)
		}
	})
	return res
}

func (b *batch) BalanceOf(token, holder common.Address) *ledger.AmountResult {
	return b.amount(b.queue(token, erc20ABI, "balanceOf", holder))
}

func (b *batch) VaultBalance(vault, account common.Address) *ledger.AmountResult {
	return b.amount(b.queue(vault, vaultABI, "balances", account))
}

func (b *batch) Owner(vault common.Address) *ledger.AddressResult {
	res := &ledger.AddressResult{}
	p := b.queue(vault, vaultABI, "owner")
	b.finishers = append(b.finishers, func() {
		d := decoder{}
		res.Address = d.address(p)
		res.Err = d.err
	})
	return res
}

func (b *batch) amount(p *pendingCall) *ledger.AmountResult {
	res := &ledger.AmountResult{}
	b.finishers = append(b.finishers, func() {
		d := decoder{}
		res.Amount = d.uint256(p)
		res.Err = d.err
	})
	return res
}

// Flush sends every queued call, chunked to the configured batch size, and
// fills the results. Per-call failures land in the result's Err; transport
// failures are returned.
func (b *batch) Flush(ctx context.Context) error {
	defer b.Close()

	c := b.client
	elems := make([]rpc.BatchElem, 0, len(b.calls))
	for _, p := range b.calls {
		if p.err == nil {
			elems = append(elems, p.elem)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(callCtx)
	for start := 0; start < len(elems); start += c.opts.MaxBatchSize {
		end := start + c.opts.MaxBatchSize
		if end > len(elems) {
			end = len(elems)
		}
		chunk := elems[start:end]
		g.Go(func() error {
			return c.rpc.BatchCallContext(gctx, chunk)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("batch call: %w", err)
	}

	// BatchCallContext reports per-element errors on the copies.
	i := 0
	for _, p := range b.calls {
		if p.err == nil {
			p.elem.Error = elems[i].Error
			i++
		}
	}

	for _, finish := range b.finishers {
		finish()
	}
	return nil
}

func (b *batch) Close() {
	if b.closed {
		return
	}
	b.closed = true
	if b.gated {
		b.client.gate.Leave()
	}
}

// decoder keeps the first decoding error so a struct can be filled in one pass.
type decoder struct {
	err error
}

func (d *decoder) value(p *pendingCall) interface{} {
	out, err := p.outputs()
	if err != nil {
		if d.err == nil {
			d.err = err
		}
		return nil
	}
	return out[0]
}

func (d *decoder) address(p *pendingCall) common.Address {
	v, _ := d.value(p).(common.Address)
	return v
}

func (d *decoder) bool(p *pendingCall) bool {
	v, _ := d.value(p).(bool)
	return v
}

func (d *decoder) uint8(p *pendingCall) uint8 {
	v, _ := d.value(p).(uint8)
	return v
}

func (d *decoder) string(p *pendingCall) string {
	v, _ := d.value(p).(string)
	return v
}

func (d *decoder) uint256(p *pendingCall) *big.Int {
	v, ok := d.value(p).(*big.Int)
	if !ok {
		return new(big.Int)
	}
	return v
}
