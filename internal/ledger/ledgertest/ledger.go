// Package ledgertest provides an in-memory ledger.Ledger that records every
// write, for orchestrator tests.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"vaultctl/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

// Write is one recorded state-changing call.
type Write struct {
	Contract common.Address
	Method   string
	Args     []interface{}
	Opts     ledger.TxOptions
}

// Ledger is a scriptable in-memory ledger.
type Ledger struct {
	mu sync.Mutex

	account common.Address
	gate    ledger.Gate

	FactoryAddr        common.Address
	RouterAddr         common.Address
	PriceFeedAddr      common.Address
	CollateralPoolAddr common.Address
	BatchManagerAddr   common.Address

	FeeParams ledger.FeeParams
	UpdateFee *big.Int

	// NextVault is the address reported in the next VaultCreated event.
	NextVault common.Address
	// OmitCreatedEvent drops the VaultCreated event from createVault receipts.
	OmitCreatedEvent bool

	vaults    map[common.Address]*ledger.VaultInfo
	order     []common.Address
	created   map[common.Address]uint64
	vaultBal  map[common.Address]map[common.Address]*big.Int
	tokens    map[common.Address]ledger.TokenMeta
	balances  map[common.Address]map[common.Address]*big.Int
	failures  map[string][]error
	reverts   map[string]bool
	writes    []Write
	batches   int
	lastValue map[string]*big.Int
}

var _ ledger.Ledger = (*Ledger)(nil)

// New returns an empty ledger for account.
func New(account common.Address) *Ledger {
	return &Ledger{
		account:            account,
		FactoryAddr:        common.HexToAddress("0xfac0000000000000000000000000000000000001"),
		RouterAddr:         common.HexToAddress("0xfac0000000000000000000000000000000000002"),
		PriceFeedAddr:      common.HexToAddress("0xfac0000000000000000000000000000000000003"),
		CollateralPoolAddr: common.HexToAddress("0xfac0000000000000000000000000000000000004"),
		BatchManagerAddr:   common.HexToAddress("0xfac0000000000000000000000000000000000005"),
		FeeParams: ledger.FeeParams{
			TradingFeeRate:      big.NewInt(0),
			CancellationFeeRate: big.NewInt(0),
		},
		UpdateFee: big.NewInt(1),
		vaults:    make(map[common.Address]*ledger.VaultInfo),
		created:   make(map[common.Address]uint64),
		vaultBal:  make(map[common.Address]map[common.Address]*big.Int),
		tokens:    make(map[common.Address]ledger.TokenMeta),
		balances:  make(map[common.Address]map[common.Address]*big.Int),
		failures:  make(map[string][]error),
		reverts:   make(map[string]bool),
		lastValue: make(map[string]*big.Int),
	}
}

// AddToken registers ERC20 metadata.
func (l *Ledger) AddToken(meta ledger.TokenMeta) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[meta.Address] = meta
}

// SetBalance sets holder's balance of token.
func (l *Ledger) SetBalance(token, holder common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[token] == nil {
		l.balances[token] = make(map[common.Address]*big.Int)
	}
	l.balances[token][holder] = new(big.Int).Set(amount)
}

// AddVault registers a deployed vault. Nil amounts default to zero.
func (l *Ledger) AddVault(info ledger.VaultInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range []**big.Int{
		&info.Quantity, &info.DepositTotal, &info.YieldValue, &info.LinkedOraclePrice,
		&info.OraclePriceAtCreation, &info.TradingFeeRate, &info.CancellationFeeRate, &info.OwnerDeposit,
	} {
		if *p == nil {
			*p = new(big.Int)
		}
	}
	if _, ok := l.vaults[info.Address]; !ok {
		l.order = append(l.order, info.Address)
	}
	l.vaults[info.Address] = &info
}

// SetCreatedAt sets the creation time reported for vault.
func (l *Ledger) SetCreatedAt(vault common.Address, ts uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created[vault] = ts
}

// SetVaultBalance sets account's subscription balance in vault.
func (l *Ledger) SetVaultBalance(vault, account common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.vaultBal[vault] == nil {
		l.vaultBal[vault] = make(map[common.Address]*big.Int)
	}
	l.vaultBal[vault][account] = new(big.Int).Set(amount)
}

// FailNext makes the next calls of method return errs in order.
func (l *Ledger) FailNext(method string, errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[method] = append(l.failures[method], errs...)
}

// Revert makes every call of method mine with status 0.
func (l *Ledger) Revert(method string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reverts[method] = true
}

// Writes returns a copy of the recorded writes.
func (l *Ledger) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

// WritesOf returns the recorded writes of method.
func (l *Ledger) WritesOf(method string) []Write {
	var out []Write
	for _, w := range l.Writes() {
		if w.Method == method {
			out = append(out, w)
		}
	}
	return out
}

// Batches returns how many batch windows were flushed.
func (l *Ledger) Batches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.batches
}

func (l *Ledger) Account() common.Address { return l.account }

func (l *Ledger) Factory() ledger.Factory     { return &factory{l} }
func (l *Ledger) Router() ledger.Router       { return &router{l} }
func (l *Ledger) PriceFeed() ledger.PriceFeed { return &priceFeed{l} }

func (l *Ledger) CollateralPool() (ledger.CollateralPool, error) {
	if l.CollateralPoolAddr == (common.Address{}) {
		return nil, errors.New("collateralPool is not set")
	}
	return &collateralPool{l}, nil
}

func (l *Ledger) BatchManager() (ledger.BatchManager, error) {
	if l.BatchManagerAddr == (common.Address{}) {
		return nil, errors.New("batchManager is not set")
	}
	return &batchManager{l}, nil
}

func (l *Ledger) Vault(addr common.Address) ledger.Vault { return &vault{l, addr} }
func (l *Ledger) Token(addr common.Address) ledger.Token { return &token{l, addr} }

func (l *Ledger) NewBatch() (ledger.Batch, error) {
	if err := l.gate.Enter(); err != nil {
		return nil, err
	}
	return &batch{l: l}, nil
}

// failure pops the next scripted failure of method.
func (l *Ledger) failure(method string) error {
	errs := l.failures[method]
	if len(errs) == 0 {
		return nil
	}
	l.failures[method] = errs[1:]
	return errs[0]
}

func (l *Ledger) read(method string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failure(method); err != nil {
		return &ledger.CallError{Method: method, Short: err.Error(), Cause: err}
	}
	return nil
}

// write records a call and returns its receipt. apply runs under the lock on success.
func (l *Ledger) write(to common.Address, method string, opts ledger.TxOptions, apply func() []ledger.Event, args ...interface{}) (*ledger.Receipt, error) {
	if err := l.gate.CheckWrite(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.failure(method); err != nil {
		return nil, &ledger.CallError{Method: method, Short: err.Error(), Cause: err}
	}
	l.writes = append(l.writes, Write{Contract: to, Method: method, Args: args, Opts: opts})

	receipt := &ledger.Receipt{
		Status: ledger.ReceiptStatusSuccessful,
		TxHash: common.BytesToHash([]byte(fmt.Sprintf("%s-%d", method, len(l.writes)))),
		Block:  uint64(len(l.writes)),
	}
	if l.reverts[method] {
		receipt.Status = 0
		return receipt, nil
	}
	if apply != nil {
		receipt.Events = apply()
	}
	return receipt, nil
}

func (l *Ledger) balance(token, holder common.Address) *big.Int {
	if b := l.balances[token][holder]; b != nil {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *Ledger) vaultInfo(addr common.Address) (ledger.VaultInfo, error) {
	v, ok := l.vaults[addr]
	if !ok {
		return ledger.VaultInfo{}, &ledger.CallError{Method: "owner", Short: "execution reverted", Cause: fmt.Errorf("no vault at %s", addr.Hex())}
	}
	return *v, nil
}

func (l *Ledger) tokenMeta(addr common.Address) (ledger.TokenMeta, error) {
	meta, ok := l.tokens[addr]
	if !ok {
		return ledger.TokenMeta{}, &ledger.CallError{Method: "decimals", Short: "execution reverted", Cause: fmt.Errorf("no token at %s", addr.Hex())}
	}
	return meta, nil
}

type factory struct{ l *Ledger }

func (f *factory) Address() common.Address { return f.l.FactoryAddr }

func (f *factory) PresetFeeParams(ctx context.Context) (ledger.FeeParams, error) {
	if err := f.l.read("getPresetFeeParams"); err != nil {
		return ledger.FeeParams{}, err
	}
	return f.l.FeeParams, nil
}

func (f *factory) DeployedVaults(ctx context.Context) ([]common.Address, error) {
	if err := f.l.read("getDeployedVaults"); err != nil {
		return nil, err
	}
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	return append([]common.Address(nil), f.l.order...), nil
}

func (f *factory) CreateVault(ctx context.Context, params ledger.CreateVaultParams, updateData [][]byte, opts ledger.TxOptions) (*ledger.Receipt, error) {
	l := f.l
	return l.write(l.FactoryAddr, "createVault", opts, func() []ledger.Event {
		if l.OmitCreatedEvent {
			return []ledger.Event{{Address: l.FactoryAddr, Name: "Transfer"}}
		}
		return []ledger.Event{{
			Address: l.FactoryAddr,
			Name:    "VaultCreated",
			Args: map[string]interface{}{
				"owner":        params.Owner,
				"vaultAddress": l.NextVault,
				"expiry":       params.Expiry,
				"isBuyLow":     params.IsBuyLow,
				"quantity":     params.Quantity,
			},
		}}
	}, params, updateData)
}

type router struct{ l *Ledger }

func (r *router) Address() common.Address { return r.l.RouterAddr }

func (r *router) Deposit(ctx context.Context, vault common.Address, amount *big.Int, updateData [][]byte, opts ledger.TxOptions) (*ledger.Receipt, error) {
	return r.l.write(r.l.RouterAddr, "deposit", opts, nil, vault, amount, updateData)
}

type vault struct {
	l    *Ledger
	addr common.Address
}

func (v *vault) Address() common.Address { return v.addr }

func (v *vault) Info(ctx context.Context) (ledger.VaultInfo, error) {
	if err := v.l.read("vaultInfo"); err != nil {
		return ledger.VaultInfo{}, err
	}
	v.l.mu.Lock()
	defer v.l.mu.Unlock()
	return v.l.vaultInfo(v.addr)
}

func (v *vault) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := v.l.read("balances"); err != nil {
		return nil, err
	}
	v.l.mu.Lock()
	defer v.l.mu.Unlock()
	if b := v.l.vaultBal[v.addr][account]; b != nil {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (v *vault) CreatedAt(ctx context.Context) (uint64, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()
	ts, ok := v.l.created[v.addr]
	if !ok {
		return 0, errors.New("contract deployment transaction not found")
	}
	return ts, nil
}

func (v *vault) LpCancel(ctx context.Context) (*ledger.Receipt, error) {
	return v.l.write(v.addr, "lpCancel", ledger.TxOptions{}, func() []ledger.Event {
		if info := v.l.vaults[v.addr]; info != nil {
			info.LpCancelled = true
			info.State = ledger.StateCancelled
		}
		return nil
	})
}

func (v *vault) LpWithdraw(ctx context.Context, updateData [][]byte, priceOpts ledger.GetPriceOptions, opts ledger.TxOptions) (*ledger.Receipt, error) {
	return v.l.write(v.addr, "lpWithdraw", opts, nil, updateData, priceOpts)
}

func (v *vault) Withdraw(ctx context.Context, updateData [][]byte, priceOpts ledger.GetPriceOptions, opts ledger.TxOptions) (*ledger.Receipt, error) {
	return v.l.write(v.addr, "withdraw", opts, nil, updateData, priceOpts)
}

func (v *vault) AdjustYieldValue(ctx context.Context, yieldValue *big.Int) (*ledger.Receipt, error) {
	return v.l.write(v.addr, "adjustYieldValue", ledger.TxOptions{}, func() []ledger.Event {
		if info := v.l.vaults[v.addr]; info != nil {
			info.YieldValue = new(big.Int).Set(yieldValue)
		}
		return nil
	}, yieldValue)
}

type token struct {
	l    *Ledger
	addr common.Address
}

func (t *token) Address() common.Address { return t.addr }

func (t *token) Meta(ctx context.Context) (ledger.TokenMeta, error) {
	if err := t.l.read("decimals"); err != nil {
		return ledger.TokenMeta{}, err
	}
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	return t.l.tokenMeta(t.addr)
}

func (t *token) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	if err := t.l.read("balanceOf"); err != nil {
		return nil, err
	}
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	return t.l.balance(t.addr, holder), nil
}

func (t *token) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*ledger.Receipt, error) {
	return t.l.write(t.addr, "approve", ledger.TxOptions{}, func() []ledger.Event {
		t.l.lastValue[approvalKey(t.addr, spender)] = new(big.Int).Set(amount)
		return []ledger.Event{{Address: t.addr, Name: "Approval", Args: map[string]interface{}{
			"owner": t.l.account, "spender": spender, "value": amount,
		}}}
	}, spender, amount)
}

// Allowance returns the last approved amount of token for spender.
func (l *Ledger) Allowance(token, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastValue[approvalKey(token, spender)]
}

func approvalKey(token, spender common.Address) string {
	return strings.ToLower(token.Hex() + "/" + spender.Hex())
}

type collateralPool struct{ l *Ledger }

func (p *collateralPool) Address() common.Address { return p.l.CollateralPoolAddr }

func (p *collateralPool) ApproveVault(ctx context.Context, vault common.Address, approve bool) (*ledger.Receipt, error) {
	return p.l.write(p.l.CollateralPoolAddr, "approveVault", ledger.TxOptions{}, nil, vault, approve)
}

type batchManager struct{ l *Ledger }

func (m *batchManager) Address() common.Address { return m.l.BatchManagerAddr }

func (m *batchManager) LpWithdrawVaults(ctx context.Context, vaults []common.Address, updateData [][]byte, priceOpts ledger.GetPriceOptions, opts ledger.TxOptions) (*ledger.Receipt, error) {
	return m.l.write(m.l.BatchManagerAddr, "lpWithdrawVaults", opts, nil, vaults, updateData, priceOpts)
}

func (m *batchManager) WithdrawVaults(ctx context.Context, vaults []common.Address, updateData [][]byte, priceOpts ledger.GetPriceOptions, opts ledger.TxOptions) (*ledger.Receipt, error) {
	return m.l.write(m.l.BatchManagerAddr, "withdrawVaults", opts, nil, vaults, updateData, priceOpts)
}

func (m *batchManager) LpCancelVaults(ctx context.Context, vaults []common.Address) (*ledger.Receipt, error) {
	return m.l.write(m.l.BatchManagerAddr, "lpCancelVaults", ledger.TxOptions{}, nil, vaults)
}

type priceFeed struct{ l *Ledger }

func (p *priceFeed) Address() common.Address { return p.l.PriceFeedAddr }

func (p *priceFeed) UpdateFee(ctx context.Context, updateData [][]byte) (*big.Int, error) {
	if err := p.l.read("getUpdateFee"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(p.l.UpdateFee), nil
}

// batch resolves queued reads against the ledger's state on Flush.
type batch struct {
	l       *Ledger
	pending []func()
	closed  bool
}

func (b *batch) VaultInfo(addr common.Address) *ledger.VaultInfoResult {
	res := &ledger.VaultInfoResult{}
	b.pending = append(b.pending, func() { res.Info, res.Err = b.l.vaultInfo(addr) })
	return res
}

func (b *batch) TokenMeta(addr common.Address) *ledger.TokenMetaResult {
	res := &ledger.TokenMetaResult{}
	b.pending = append(b.pending, func() { res.Meta, res.Err = b.l.tokenMeta(addr) })
	return res
}

func (b *batch) BalanceOf(tokenAddr, holder common.Address) *ledger.AmountResult {
	res := &ledger.AmountResult{}
	b.pending = append(b.pending, func() { res.Amount = b.l.balance(tokenAddr, holder) })
	return res
}

func (b *batch) VaultBalance(vaultAddr, account common.Address) *ledger.AmountResult {
	res := &ledger.AmountResult{}
	b.pending = append(b.pending, func() {
		res.Amount = new(big.Int)
		if v := b.l.vaultBal[vaultAddr][account]; v != nil {
			res.Amount.Set(v)
		}
	})
	return res
}

func (b *batch) Owner(addr common.Address) *ledger.AddressResult {
	res := &ledger.AddressResult{}
	b.pending = append(b.pending, func() {
		info, err := b.l.vaultInfo(addr)
		res.Address, res.Err = info.Owner, err
	})
	return res
}

func (b *batch) Flush(ctx context.Context) error {
	defer b.Close()

	b.l.mu.Lock()
	defer b.l.mu.Unlock()
	if err := b.l.failure("batch"); err != nil {
		return err
	}
	b.l.batches++
	for _, resolve := range b.pending {
		resolve()
	}
	return nil
}

func (b *batch) Close() {
	if b.closed {
		return
	}
	b.closed = true
	b.l.gate.Leave()
}
