package vault

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"vaultctl/config"
	"vaultctl/internal/hedge"
	"vaultctl/internal/ledger"
	"vaultctl/internal/ledger/ledgertest"
	"vaultctl/pkg/hermes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	account = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	other   = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
	weth    = common.HexToAddress("0xe700000000000000000000000000000000000001")
	wbtc    = common.HexToAddress("0xb7c0000000000000000000000000000000000001")
	usdc    = common.HexToAddress("0xc5dc000000000000000000000000000000000001")
)

func testNetwork() *config.NetworkConfig {
	feed := func(id string) config.PriceFeed {
		return config.PriceFeed{Type: "PYTH", ID: id, Decimals: "8"}
	}
	return &config.NetworkConfig{
		Name: "testnet",
		TradingPairs: []config.TradingPair{
			{Symbol: "WETH-USDC", BaseToken: weth.Hex(), QuoteToken: usdc.Hex(), PriceFeed: feed("0xeth")},
			{Symbol: "WBTC-USDC", BaseToken: wbtc.Hex(), QuoteToken: usdc.Hex(), PriceFeed: feed("0xbtc")},
		},
	}
}

type oracleCall struct {
	target time.Time
	pair   string
	latest bool
}

type fakeOracle struct {
	mu    sync.Mutex
	calls []oracleCall
	err   error
	ema   string // raw EMA price, 8 decimals; defaults to 2500
}

func (o *fakeOracle) update() *hermes.PriceUpdate {
	ema := o.ema
	if ema == "" {
		ema = "250000000000"
	}
	return &hermes.PriceUpdate{
		Binary: hermes.BinaryUpdate{Encoding: "hex", Data: []string{"0x504e4155"}},
		Parsed: []hermes.ParsedPriceFeed{{
			ID:       "eth",
			Price:    hermes.Price{Price: "250000000000", Expo: -8},
			EMAPrice: hermes.Price{Price: ema, Expo: -8},
		}},
	}
}

func (o *fakeOracle) PriceUpdate(_ context.Context, target time.Time, pair config.TradingPair) (*hermes.PriceUpdate, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, oracleCall{target: target, pair: pair.Symbol})
	if o.err != nil {
		return nil, o.err
	}
	return o.update(), nil
}

func (o *fakeOracle) Latest(_ context.Context, pair config.TradingPair) (*hermes.PriceUpdate, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, oracleCall{pair: pair.Symbol, latest: true})
	if o.err != nil {
		return nil, o.err
	}
	return o.update(), nil
}

type fakeJournal struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (j *fakeJournal) Record(_ context.Context, o Outcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes = append(j.outcomes, o)
	return nil
}

type fakeHedger struct {
	requests []hedge.Request
	err      error
}

func (h *fakeHedger) Hedge(_ context.Context, req hedge.Request) error {
	h.requests = append(h.requests, req)
	return h.err
}

type fixture struct {
	ledger  *ledgertest.Ledger
	oracle  *fakeOracle
	journal *fakeJournal
	logs    *observer.ObservedLogs
	manager *Manager
}

func newFixture(t *testing.T, now int64, opts ...Option) *fixture {
	t.Helper()

	l := ledgertest.New(account)
	l.NextVault = common.HexToAddress("0x7a17000000000000000000000000000000000099")
	for _, meta := range []ledger.TokenMeta{
		{Address: weth, Name: "Wrapped Ether", Symbol: "WETH", Decimals: 18},
		{Address: wbtc, Name: "Wrapped Bitcoin", Symbol: "WBTC", Decimals: 18},
		{Address: usdc, Name: "USD Coin", Symbol: "USDC", Decimals: 18},
	} {
		l.AddToken(meta)
		l.SetBalance(meta.Address, account, mustBig("1000000000000000000000000"))
	}

	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{ledger: l, oracle: &fakeOracle{}, journal: &fakeJournal{}, logs: logs}
	base := []Option{
		WithClock(func() time.Time { return time.Unix(now, 0) }),
		WithJournal(f.journal),
		WithApprovalRetry(time.Millisecond, 3),
	}
	f.manager = NewManager(l, testNetwork(), f.oracle, zap.New(core), append(base, opts...)...)
	return f
}

// skipReasons returns the reasons of every "skipping vault" entry.
func (f *fixture) skipReasons() []string {
	var out []string
	for _, e := range f.logs.FilterMessage("skipping vault").All() {
		out = append(out, e.ContextMap()["reason"].(string))
	}
	return out
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func vaultAddr(n int64) common.Address {
	return common.BigToAddress(big.NewInt(0x7a170000 + n))
}

// buyLowVault is an open WETH-USDC buy-low vault expiring at 1000.
func buyLowVault(addr, owner common.Address) ledger.VaultInfo {
	return ledger.VaultInfo{
		Address:               addr,
		Owner:                 owner,
		IsBuyLow:              true,
		InvestmentToken:       usdc,
		LinkedToken:           weth,
		Quantity:              mustBig("10000000000000000000"),
		DepositTotal:          mustBig("4000000000000000000"),
		State:                 ledger.StateOpen,
		Expiry:                1000,
		YieldValue:            mustBig("30000000000000000"),
		LinkedOraclePrice:     mustBig("250000000000"),
		OraclePriceAtCreation: mustBig("2500000000000000000000"),
		TradingFeeRate:        new(big.Int),
		CancellationFeeRate:   new(big.Int),
		OwnerDeposit:          mustBig("300000000000000000"),
	}
}

func createOptions() CreateOptions {
	return CreateOptions{
		TradingPair:     "WETH-USDC",
		IsBuyLow:        true,
		LinkedPrice:     "2500",
		Quantity:        "10",
		YieldPercentage: "3",
		Expiry:          5000,
	}
}

// go test -v --run TestCreateVault
func TestCreateVault(t *testing.T) {
	f := newFixture(t, 100)

	addr, err := f.manager.CreateVault(context.Background(), createOptions())
	require.NoError(t, err)
	assert.Equal(t, f.ledger.NextVault, addr)

	approvals := f.ledger.WritesOf("approve")
	require.Len(t, approvals, 2)
	assert.Equal(t, "4120000000000000", f.ledger.Allowance(weth, f.ledger.FactoryAddr).String())
	assert.Equal(t, "300000000000000000", f.ledger.Allowance(usdc, f.ledger.FactoryAddr).String())

	creates := f.ledger.WritesOf("createVault")
	require.Len(t, creates, 1)
	params := creates[0].Args[0].(ledger.CreateVaultParams)
	assert.Equal(t, "250000000000", params.LinkedOraclePrice.String())
	assert.Equal(t, "30000000000000000", params.YieldValue.String())
	assert.Equal(t, "10000000000000000000", params.Quantity.String())
	assert.Equal(t, account, params.Owner)
	assert.Equal(t, weth, params.BaseToken)
	assert.Equal(t, usdc, params.QuoteToken)
	assert.Equal(t, int64(1), creates[0].Opts.Value.Int64())
	assert.Equal(t, uint64(createVaultGasLimit), creates[0].Opts.GasLimit)

	// approvals are confirmed before the creation write
	writes := f.ledger.Writes()
	assert.Equal(t, "createVault", writes[len(writes)-1].Method)

	assert.Empty(t, f.ledger.WritesOf("approveVault"))
	require.Len(t, f.journal.outcomes, 3)
	assert.Equal(t, "createVault", f.journal.outcomes[2].Op)
}

// useSixDecimalQuote gives USDC its real 6 decimals.
func (f *fixture) useSixDecimalQuote() {
	f.ledger.AddToken(ledger.TokenMeta{Address: usdc, Name: "USD Coin", Symbol: "USDC", Decimals: 6})
}

// go test -v --run TestCreateVaultSellHigh
func TestCreateVaultSellHigh(t *testing.T) {
	f := newFixture(t, 100)
	f.useSixDecimalQuote()
	f.ledger.FeeParams.TradingFeeRate = mustBig("10000000000000000") // 1%
	// 2500.12345678 ceils to 2501
	f.oracle.ema = "250012345678"

	opts := createOptions()
	opts.IsBuyLow = false
	_, err := f.manager.CreateVault(context.Background(), opts)
	require.NoError(t, err)

	// investment is the base token at 18 decimals: 10 WETH * 3%
	assert.Equal(t, "300000000000000000", f.ledger.Allowance(weth, f.ledger.FactoryAddr).String())
	// linked is the quote token at 6 decimals: 10 * 1.03 * 2500 USDC plus the
	// fee 10 * 3% * 1% * 2501 * 1.01 USDC
	assert.Equal(t, "25757578030", f.ledger.Allowance(usdc, f.ledger.FactoryAddr).String())

	creates := f.ledger.WritesOf("createVault")
	require.Len(t, creates, 1)
	params := creates[0].Args[0].(ledger.CreateVaultParams)
	assert.False(t, params.IsBuyLow)
	assert.Equal(t, "10000000000000000000", params.Quantity.String())
	assert.Equal(t, "250000000000", params.LinkedOraclePrice.String())
}

// go test -v --run TestCreateVaultBuyLowFee
func TestCreateVaultBuyLowFee(t *testing.T) {
	f := newFixture(t, 100)
	f.useSixDecimalQuote()
	f.ledger.FeeParams.TradingFeeRate = mustBig("10000000000000000") // 1%

	opts := createOptions()
	opts.Quantity = "10000"
	_, err := f.manager.CreateVault(context.Background(), opts)
	require.NoError(t, err)

	// investment is the quote token: 300 USDC yield plus a 3 USDC fee
	assert.Equal(t, "303000000", f.ledger.Allowance(usdc, f.ledger.FactoryAddr).String())
	// linked is the base token: 10000 * 1.03 / 2500 WETH
	assert.Equal(t, "4120000000000000000", f.ledger.Allowance(weth, f.ledger.FactoryAddr).String())

	params := f.ledger.WritesOf("createVault")[0].Args[0].(ledger.CreateVaultParams)
	assert.Equal(t, "10000000000", params.Quantity.String())
}

// go test -v --run TestCreateVaultInsufficientBalance
func TestCreateVaultInsufficientBalance(t *testing.T) {
	f := newFixture(t, 100)
	f.ledger.SetBalance(usdc, account, big.NewInt(1))

	_, err := f.manager.CreateVault(context.Background(), createOptions())
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "USD Coin")
	assert.Empty(t, f.ledger.WritesOf("createVault"))
}

// go test -v --run TestCreateVaultEventNotFound
func TestCreateVaultEventNotFound(t *testing.T) {
	f := newFixture(t, 100)
	f.ledger.OmitCreatedEvent = true

	_, err := f.manager.CreateVault(context.Background(), createOptions())
	assert.ErrorIs(t, err, ErrEventNotFound)
}

// go test -v --run TestCreateVaultCheckPair
func TestCreateVaultCheckPair(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	opts := createOptions()
	opts.TradingPair = ""
	_, err := f.manager.CreateVault(ctx, opts)
	assert.ErrorIs(t, err, ErrConfig)

	opts.TradingPair = "DOGE-USDC"
	_, err = f.manager.CreateVault(ctx, opts)
	assert.ErrorIs(t, err, ErrValidation)

	f.manager.network.TradingPairs = append(f.manager.network.TradingPairs,
		config.TradingPair{Symbol: "NOBASE-USDC", QuoteToken: usdc.Hex()})
	opts.TradingPair = "NOBASE-USDC"
	_, err = f.manager.CreateVault(ctx, opts)
	require.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "baseToken")

	opts = createOptions()
	opts.Quantity = "abc"
	_, err = f.manager.CreateVault(ctx, opts)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, f.ledger.Writes())
}

// go test -v --run TestCreateVaultCollateralPool
func TestCreateVaultCollateralPool(t *testing.T) {
	f := newFixture(t, 100)
	f.ledger.FailNext("approveVault", errors.New("vault not registered"))

	opts := createOptions()
	opts.UseCollateralPool = true
	addr, err := f.manager.CreateVault(context.Background(), opts)
	require.NoError(t, err)

	assert.Empty(t, f.ledger.WritesOf("approve"))
	approvals := f.ledger.WritesOf("approveVault")
	require.Len(t, approvals, 1)
	assert.Equal(t, addr, approvals[0].Args[0])
	assert.Equal(t, true, approvals[0].Args[1])
	assert.Equal(t, 1, f.logs.FilterMessage("collateral pool approval failed").Len())
}

// go test -v --run TestCreateVaultRetryExhausted
func TestCreateVaultRetryExhausted(t *testing.T) {
	f := newFixture(t, 100)
	boom := errors.New("vault not registered")
	f.ledger.FailNext("approveVault", boom, boom, boom)

	opts := createOptions()
	opts.UseCollateralPool = true
	addr, err := f.manager.CreateVault(context.Background(), opts)
	require.ErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, f.ledger.NextVault, addr)
	assert.Equal(t, 3, f.logs.FilterMessage("collateral pool approval failed").Len())
}

// go test -v --run TestCreateVaultRetryAtLeastOnce
func TestCreateVaultRetryAtLeastOnce(t *testing.T) {
	f := newFixture(t, 100, WithApprovalRetry(time.Millisecond, 0))
	boom := errors.New("vault not registered")
	f.ledger.FailNext("approveVault", boom, boom)

	opts := createOptions()
	opts.UseCollateralPool = true
	_, err := f.manager.CreateVault(context.Background(), opts)
	require.ErrorIs(t, err, ErrRetryExhausted)
	assert.Contains(t, err.Error(), "after 1 attempts")
	assert.Equal(t, 1, f.logs.FilterMessage("collateral pool approval failed").Len())
}

// go test -v --run TestCreateVaultHedge
func TestCreateVaultHedge(t *testing.T) {
	h := &fakeHedger{err: errors.New("exchange down")}
	f := newFixture(t, 100, WithHedger(h))

	opts := createOptions()
	opts.Hedge = true
	_, err := f.manager.CreateVault(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, h.requests, 1)
	req := h.requests[0]
	assert.Equal(t, "WETH", req.Token)
	assert.Equal(t, hedge.OptionTypeCall, req.OptionType)
	assert.Equal(t, "2500", req.Strike.String())
	assert.Equal(t, "10", req.Amount.String())
	assert.Equal(t, int64(5000), req.Expiry.Unix())
	assert.Equal(t, 1, f.logs.FilterMessage("hedge failed").Len())
}

// go test -v --run TestCancelVault
func TestCancelVault(t *testing.T) {
	f := newFixture(t, 500)
	v := vaultAddr(1)
	info := buyLowVault(v, account)
	info.CancellationFeeRate = mustBig("10000000000000000") // 1%
	f.ledger.AddVault(info)

	require.NoError(t, f.manager.CancelVault(context.Background(), v))

	assert.Equal(t, "60000000000000000", f.ledger.Allowance(usdc, v).String())
	writes := f.ledger.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "approve", writes[0].Method)
	assert.Equal(t, "lpCancel", writes[1].Method)
}

// go test -v --run TestCancelVaultSellHigh
func TestCancelVaultSellHigh(t *testing.T) {
	f := newFixture(t, 500)
	f.useSixDecimalQuote()
	v := vaultAddr(1)
	info := buyLowVault(v, account)
	info.IsBuyLow = false
	info.InvestmentToken, info.LinkedToken = weth, usdc
	info.OraclePriceAtCreation = mustBig("2501000000")     // 2501 USDC
	info.CancellationFeeRate = mustBig("5000000000000000") // 0.5%
	f.ledger.AddVault(info)

	require.NoError(t, f.manager.CancelVault(context.Background(), v))

	// 6 WETH unfilled * 0.5% * 2501, paid in USDC
	assert.Equal(t, "75030000", f.ledger.Allowance(usdc, v).String())
	assert.Nil(t, f.ledger.Allowance(weth, v))
}

// go test -v --run TestCancelVaultRejected
func TestCancelVaultRejected(t *testing.T) {
	f := newFixture(t, 500)
	v := vaultAddr(1)
	f.ledger.AddVault(buyLowVault(v, account))
	f.ledger.Revert("lpCancel")

	err := f.manager.CancelVault(context.Background(), v)
	require.ErrorIs(t, err, ErrWriteRejected)
	assert.Equal(t, 1, f.logs.FilterMessage("write reverted").Len())
	// zero fee is still approved
	assert.Equal(t, "0", f.ledger.Allowance(usdc, v).String())
}

// go test -v --run TestSubscribeVault
func TestSubscribeVault(t *testing.T) {
	f := newFixture(t, 500)
	v := vaultAddr(1)
	f.ledger.AddVault(buyLowVault(v, other))

	require.NoError(t, f.manager.SubscribeVault(context.Background(), v, "1.5"))

	assert.Equal(t, "1500000000000000000", f.ledger.Allowance(usdc, f.ledger.RouterAddr).String())
	deposits := f.ledger.WritesOf("deposit")
	require.Len(t, deposits, 1)
	assert.Equal(t, v, deposits[0].Args[0])
	assert.Equal(t, "1500000000000000000", deposits[0].Args[1].(*big.Int).String())
	assert.Equal(t, int64(1), deposits[0].Opts.Value.Int64())

	require.Len(t, f.oracle.calls, 1)
	assert.True(t, f.oracle.calls[0].latest)
}

// go test -v --run TestWithdrawVault
func TestWithdrawVault(t *testing.T) {
	f := newFixture(t, 2000)
	v := vaultAddr(1)
	f.ledger.AddVault(buyLowVault(v, other))
	f.ledger.SetVaultBalance(v, account, big.NewInt(5))

	require.NoError(t, f.manager.WithdrawVault(context.Background(), v, false))

	withdraws := f.ledger.WritesOf("withdraw")
	require.Len(t, withdraws, 1)
	priceOpts := withdraws[0].Args[1].(ledger.GetPriceOptions)
	assert.Equal(t, int64(1000), priceOpts.PythPublishTime.Int64())
	assert.Equal(t, int64(1), withdraws[0].Opts.Value.Int64())

	require.Len(t, f.oracle.calls, 1)
	assert.Equal(t, int64(1000), f.oracle.calls[0].target.Unix())
	assert.Equal(t, "WETH-USDC", f.oracle.calls[0].pair)
}

// go test -v --run TestWithdrawVaultSkips
func TestWithdrawVaultSkips(t *testing.T) {
	tests := []struct {
		name       string
		now        int64
		owner      common.Address
		state      ledger.VaultState
		checkOwner bool
		balance    int64
		reason     string
	}{
		{"before expiry", 500, other, ledger.StateOpen, false, 5, "is not yet available for withdrawal"},
		{"owner as subscriber", 2000, account, ledger.StateOpen, false, 5, "is the owner of the vault"},
		{"subscriber as owner", 2000, other, ledger.StateOpen, true, 5, "is not the owner of the vault"},
		{"no subscription", 2000, other, ledger.StateOpen, false, 0, "has no balance in the vault"},
		{"lp withdrawn", 2000, account, ledger.StateSettledLinked, true, 0, "LP has been withdrawn from the vault"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.now)
			v := vaultAddr(1)
			info := buyLowVault(v, tt.owner)
			info.State = tt.state
			f.ledger.AddVault(info)
			f.ledger.SetVaultBalance(v, account, big.NewInt(tt.balance))

			require.NoError(t, f.manager.WithdrawVault(context.Background(), v, tt.checkOwner))

			assert.Empty(t, f.ledger.Writes())
			assert.Empty(t, f.oracle.calls)
			reasons := f.skipReasons()
			require.Len(t, reasons, 1)
			assert.Contains(t, reasons[0], tt.reason)
		})
	}
}

// go test -v --run TestLpWithdrawVault
func TestLpWithdrawVault(t *testing.T) {
	f := newFixture(t, 2000)
	v := vaultAddr(1)
	info := buyLowVault(v, account)
	info.State = ledger.StateSettledInvestment
	f.ledger.AddVault(info)
	f.ledger.SetBalance(weth, v, big.NewInt(7))

	require.NoError(t, f.manager.WithdrawVault(context.Background(), v, true))
	assert.Len(t, f.ledger.WritesOf("lpWithdraw"), 1)
}

// go test -v --run TestAdjustVaultYield
func TestAdjustVaultYield(t *testing.T) {
	f := newFixture(t, 500)
	v := vaultAddr(1)
	f.ledger.AddVault(buyLowVault(v, account))

	// 4 filled at 3% plus 6 unfilled at 5% needs 0.42, 0.3 is deposited
	require.NoError(t, f.manager.AdjustVaultYield(context.Background(), v, "5"))
	assert.Equal(t, "120000000000000000", f.ledger.Allowance(usdc, v).String())
	adjusts := f.ledger.WritesOf("adjustYieldValue")
	require.Len(t, adjusts, 1)
	assert.Equal(t, "50000000000000000", adjusts[0].Args[0].(*big.Int).String())

	// lowering the yield needs no extra deposit
	g := newFixture(t, 500)
	g.ledger.AddVault(buyLowVault(v, account))
	require.NoError(t, g.manager.AdjustVaultYield(context.Background(), v, "1"))
	assert.Empty(t, g.ledger.WritesOf("approve"))
	assert.Len(t, g.ledger.WritesOf("adjustYieldValue"), 1)
}

// go test -v --run TestApproveVault
func TestApproveVault(t *testing.T) {
	f := newFixture(t, 500)
	pooled, plain := vaultAddr(1), vaultAddr(2)
	info := buyLowVault(pooled, account)
	info.UseCollateralPool = true
	f.ledger.AddVault(info)
	f.ledger.AddVault(buyLowVault(plain, account))
	ctx := context.Background()

	require.NoError(t, f.manager.ApproveVault(ctx, pooled, true))
	require.NoError(t, f.manager.ApproveVault(ctx, pooled, true))
	assert.Len(t, f.ledger.WritesOf("approveVault"), 2)

	err := f.manager.ApproveVault(ctx, plain, true)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, f.ledger.Writes(), 2)
}

// go test -v --run TestGroupVaults
func TestGroupVaults(t *testing.T) {
	data := []VaultData{
		{Vault: vaultAddr(1), TradingPair: "ETH-USDC", Expiry: 1000, IsLp: true},
		{Vault: vaultAddr(2), TradingPair: "ETH-USDC", Expiry: 1000, IsLp: true},
		{Vault: vaultAddr(3), TradingPair: "BTC-USDC", Expiry: 1000, IsLp: false},
		{Vault: vaultAddr(4), TradingPair: "ETH-USDC", Expiry: 2000, IsLp: true},
	}

	groups := GroupVaults(data)
	require.Len(t, groups, 3)
	assert.Equal(t, "ETH-USDC-1000-lp", groups[0].Key)
	assert.Equal(t, []common.Address{vaultAddr(1), vaultAddr(2)}, groups[0].Vaults)
	assert.Equal(t, "BTC-USDC-1000-subscriber", groups[1].Key)
	assert.Len(t, groups[1].Vaults, 1)
	assert.Len(t, groups[2].Vaults, 1)
}

func wbtcVault(addr, owner common.Address) ledger.VaultInfo {
	info := buyLowVault(addr, owner)
	info.LinkedToken = wbtc
	return info
}

// go test -v --run TestWithdrawMultipleVaults
func TestWithdrawMultipleVaults(t *testing.T) {
	f := newFixture(t, 2000)
	vaults := []common.Address{vaultAddr(1), vaultAddr(2), vaultAddr(3), vaultAddr(4)}
	f.ledger.AddVault(buyLowVault(vaults[0], other))
	f.ledger.AddVault(wbtcVault(vaults[1], other))
	f.ledger.AddVault(buyLowVault(vaults[2], other))
	f.ledger.AddVault(buyLowVault(vaults[3], account)) // owned, skipped for a subscriber
	for _, v := range vaults {
		f.ledger.SetVaultBalance(v, account, big.NewInt(1))
	}

	require.NoError(t, f.manager.WithdrawMultipleVaults(context.Background(), vaults, false, false))

	writes := f.ledger.WritesOf("withdrawVaults")
	require.Len(t, writes, 2)
	assert.Equal(t, []common.Address{vaults[0], vaults[2]}, writes[0].Args[0])
	assert.Equal(t, int64(2), writes[0].Opts.Value.Int64())
	assert.Equal(t, []common.Address{vaults[1]}, writes[1].Args[0])
	assert.Equal(t, int64(1), writes[1].Opts.Value.Int64())

	assert.Equal(t, 2, f.ledger.Batches())
	reasons := f.skipReasons()
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "is the owner of the vault")
}

// go test -v --run TestWithdrawMultipleVaultsNothingEligible
func TestWithdrawMultipleVaultsNothingEligible(t *testing.T) {
	f := newFixture(t, 500)
	vaults := []common.Address{vaultAddr(1), vaultAddr(2)}
	for _, v := range vaults {
		f.ledger.AddVault(buyLowVault(v, other))
	}

	require.NoError(t, f.manager.WithdrawMultipleVaults(context.Background(), vaults, false, false))
	assert.Empty(t, f.ledger.Writes())
	assert.Equal(t, 1, f.logs.FilterMessage("no vaults to process").Len())
	assert.Len(t, f.skipReasons(), 2)
}

// go test -v --run TestWithdrawMultipleVaultsGroupFailure
func TestWithdrawMultipleVaultsGroupFailure(t *testing.T) {
	f := newFixture(t, 2000)
	vaults := []common.Address{vaultAddr(1), vaultAddr(2)}
	f.ledger.AddVault(buyLowVault(vaults[0], account))
	f.ledger.AddVault(wbtcVault(vaults[1], account))
	f.ledger.FailNext("lpWithdrawVaults", errors.New("execution reverted: not settled"))

	err := f.manager.WithdrawMultipleVaults(context.Background(), vaults, true, false)
	require.ErrorIs(t, err, ErrWriteRejected)
	assert.Contains(t, err.Error(), "WETH-USDC-1000-lp")

	writes := f.ledger.WritesOf("lpWithdrawVaults")
	require.Len(t, writes, 1)
	assert.Equal(t, []common.Address{vaults[1]}, writes[0].Args[0])
}

// go test -v --run TestWithdrawMultipleVaultsBypass
func TestWithdrawMultipleVaultsBypass(t *testing.T) {
	f := newFixture(t, 500)
	vaults := []common.Address{vaultAddr(1), vaultAddr(2), vaultAddr(3)}
	f.ledger.AddVault(buyLowVault(vaults[0], other))

	require.NoError(t, f.manager.WithdrawMultipleVaults(context.Background(), vaults, true, true))

	writes := f.ledger.WritesOf("lpWithdrawVaults")
	require.Len(t, writes, 1)
	assert.Equal(t, vaults, writes[0].Args[0])
	assert.Equal(t, int64(3), writes[0].Opts.Value.Int64())
	assert.Empty(t, f.skipReasons())
}

// go test -v --run TestWithdrawMultipleVaultsNoBatchManager
func TestWithdrawMultipleVaultsNoBatchManager(t *testing.T) {
	f := newFixture(t, 2000)
	f.ledger.BatchManagerAddr = common.Address{}

	err := f.manager.WithdrawMultipleVaults(context.Background(), []common.Address{vaultAddr(1)}, true, false)
	assert.ErrorIs(t, err, ErrConfig)
}

// go test -v --run TestCancelMultipleVaults
func TestCancelMultipleVaults(t *testing.T) {
	f := newFixture(t, 500)
	vaults := []common.Address{vaultAddr(1), vaultAddr(2), vaultAddr(3)}
	f.ledger.AddVault(buyLowVault(vaults[0], account))
	f.ledger.AddVault(buyLowVault(vaults[1], account))
	f.ledger.AddVault(buyLowVault(vaults[2], other))
	f.ledger.FailNext("approve", errors.New("execution reverted: paused"))

	require.NoError(t, f.manager.CancelMultipleVaults(context.Background(), vaults, false))

	// the first approval fails and drops its vault
	approvals := f.ledger.WritesOf("approve")
	require.Len(t, approvals, 1)
	assert.Equal(t, vaults[1], approvals[0].Args[0])
	assert.Equal(t, "0", approvals[0].Args[1].(*big.Int).String())

	cancels := f.ledger.WritesOf("lpCancelVaults")
	require.Len(t, cancels, 1)
	assert.Equal(t, []common.Address{vaults[1]}, cancels[0].Args[0])

	reasons := f.skipReasons()
	require.Len(t, reasons, 2)
	assert.Contains(t, reasons[0], "is not the owner of the vault")
	assert.Contains(t, reasons[1], "cancellation fee approval failed")
}

// go test -v --run TestCancelMultipleVaultsBypass
func TestCancelMultipleVaultsBypass(t *testing.T) {
	f := newFixture(t, 2000)
	vaults := []common.Address{vaultAddr(1), vaultAddr(2), vaultAddr(3)}
	f.ledger.AddVault(buyLowVault(vaults[0], account))
	f.ledger.AddVault(buyLowVault(vaults[1], other))
	f.ledger.FailNext("approve", errors.New("execution reverted: paused"))

	require.NoError(t, f.manager.CancelMultipleVaults(context.Background(), vaults, true))

	// the failed approval and the unreadable vault are still submitted
	cancels := f.ledger.WritesOf("lpCancelVaults")
	require.Len(t, cancels, 1)
	assert.Equal(t, vaults, cancels[0].Args[0])
	assert.Empty(t, f.skipReasons())
	assert.Equal(t, 1, f.logs.FilterMessage("cancellation fee approval failed, submitting anyway").Len())
}

// go test -v --run TestCancelMultipleVaultsNothingEligible
func TestCancelMultipleVaultsNothingEligible(t *testing.T) {
	f := newFixture(t, 2000)
	vaults := []common.Address{vaultAddr(1)}
	f.ledger.AddVault(buyLowVault(vaults[0], account))

	require.NoError(t, f.manager.CancelMultipleVaults(context.Background(), vaults, false))
	assert.Empty(t, f.ledger.Writes())
	assert.Contains(t, f.skipReasons()[0], "has expired")
}

// go test -v --run TestWithdrawAllVaults
func TestWithdrawAllVaults(t *testing.T) {
	f := newFixture(t, 2000)
	f.ledger.AddVault(buyLowVault(vaultAddr(1), other))
	f.ledger.AddVault(buyLowVault(vaultAddr(2), other))
	f.ledger.SetVaultBalance(vaultAddr(2), account, big.NewInt(3))

	require.NoError(t, f.manager.WithdrawAllVaults(context.Background(), false))

	withdraws := f.ledger.Writes()
	require.Len(t, withdraws, 1)
	assert.Equal(t, vaultAddr(2), withdraws[0].Contract)
}

// go test -v --run TestListVaults
func TestListVaults(t *testing.T) {
	f := newFixture(t, 0)
	f.ledger.AddVault(buyLowVault(vaultAddr(1), account))
	f.ledger.AddVault(buyLowVault(vaultAddr(2), other))
	f.ledger.AddVault(buyLowVault(vaultAddr(3), account))

	owned, err := f.manager.ListVaults(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{vaultAddr(1), vaultAddr(3)}, owned)
	assert.Equal(t, 1, f.ledger.Batches())

	// zero owner means the signing account
	owned, err = f.manager.ListVaults(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Equal(t, []common.Address{vaultAddr(1), vaultAddr(3)}, owned)
}

// go test -v --run TestShowVault
func TestShowVault(t *testing.T) {
	f := newFixture(t, 0)
	v := vaultAddr(1)
	f.ledger.AddVault(buyLowVault(v, account))
	f.ledger.SetCreatedAt(v, 10)

	out, err := f.manager.ShowVault(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "WETH-USDC", out.TradingPair)
	assert.Equal(t, weth, out.BaseToken)
	assert.Equal(t, usdc, out.QuoteToken)
	assert.Equal(t, "2500", out.LinkedPrice)
	assert.Equal(t, "3", out.Yield)
	assert.Equal(t, "10", out.Quantity)
	assert.Equal(t, "6", out.Remaining)
	assert.Equal(t, "Buy Low", out.Direction)
	assert.Equal(t, "Open", out.State)
	assert.Equal(t, int64(10), out.CreatedAt.Unix())
	assert.Equal(t, int64(1000), out.Expiry.Unix())
}

// go test -v --run TestShowConfigRedacted
func TestShowConfigRedacted(t *testing.T) {
	f := newFixture(t, 0)
	f.manager.network.Passphrase = "hunter2"

	shown := f.manager.ShowConfig()
	assert.Equal(t, "********", shown.Passphrase)
	assert.Equal(t, "hunter2", f.manager.network.Passphrase)
}
