package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"vaultctl/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

type factoryContract struct{ contract }

func (f *factoryContract) PresetFeeParams(ctx context.Context) (ledger.FeeParams, error) {
	out, err := f.call(ctx, "getPresetFeeParams")
	if err != nil {
		return ledger.FeeParams{}, err
	}
	if len(out) != 2 {
		return ledger.FeeParams{}, fmt.Errorf("getPresetFeeParams: unexpected %d outputs", len(out))
	}
	return ledger.FeeParams{
		TradingFeeRate:      out[0].(*big.Int),
		CancellationFeeRate: out[1].(*big.Int),
	}, nil
}

func (f *factoryContract) DeployedVaults(ctx context.Context) ([]common.Address, error) {
	out, err := f.call(ctx, "getDeployedVaults")
	if err != nil {
		return nil, err
	}
	return out[0].([]common.Address), nil
}

func (f *factoryContract) CreateVault(ctx context.Context, params ledger.CreateVaultParams, updateData [][]byte, opts ledger.TxOptions) (*ledger.Receipt, error) {
	return f.transact(ctx, "createVault", opts, params, updateData)
}

type routerContract struct{ contract }

func (r *routerContract) Deposit(ctx context.Context, vault common.Address, amount *big.Int, updateData [][]byte, opts ledger.TxOptions) (*ledger.Receipt, error) {
	return r.transact(ctx, "deposit", opts, vault, amount, updateData)
}

type vaultContract struct{ contract }

// Info reads every getter in one batched round trip.
func (v *vaultContract) Info(ctx context.Context) (ledger.VaultInfo, error) {
	b := v.client.newBatch(false)
	res := b.VaultInfo(v.address)
	if err := b.Flush(ctx); err != nil {
		return ledger.VaultInfo{}, err
	}
	return res.Info, res.Err
}

func (v *vaultContract) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := v.call(ctx, "balances", account)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// CreatedAt returns the block time of the vault's first log.
func (v *vaultContract) CreatedAt(ctx context.Context) (uint64, error) {
	logs, err := v.client.filterLogs(ctx, v.address)
	if err != nil {
		return 0, fmt.Errorf("get logs: %w", err)
	}
	if len(logs) == 0 {
		return 0, errors.New("contract deployment transaction not found")
	}
	return v.client.blockTime(ctx, logs[0].BlockNumber)
}

func (v *vaultContract) LpCancel(ctx context.Context) (*ledger.Receipt, error) {
	return v.transact(ctx, "lpCancel", ledger.TxOptions{})
}

func (v *vaultContract) LpWithdraw(ctx context.Context, updateData [][]byte, priceOpts ledger.GetPriceOptions, opts ledger.TxOptions) (*ledger.Receipt, error) {
	return v.transact(ctx, "lpWithdraw", opts, updateData, priceOpts)
}

func (v *vaultContract) Withdraw(ctx context.Context, updateData [][]byte, priceOpts ledger.GetPriceOptions, opts ledger.TxOptions) (*ledger.Receipt, error) {
	return v.transact(ctx, "withdraw", opts, updateData, priceOpts)
}

func (v *vaultContract) AdjustYieldValue(ctx context.Context, yieldValue *big.Int) (*ledger.Receipt, error) {
	return v.transact(ctx, "adjustYieldValue", ledger.TxOptions{}, yieldValue)
}

type tokenContract struct{ contract }

func (t *tokenContract) Meta(ctx context.Context) (ledger.TokenMeta, error) {
	b := t.client.newBatch(false)
	res := b.TokenMeta(t.address)
	if err := b.Flush(ctx); err != nil {
		return ledger.TokenMeta{}, err
	}
	return res.Meta, res.Err
}

func (t *tokenContract) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (t *tokenContract) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*ledger.Receipt, error) {
	return t.transact(ctx, "approve", ledger.TxOptions{}, spender, amount)
}

type collateralPoolContract struct{ contract }

func (p *collateralPoolContract) ApproveVault(ctx context.Context, vault common.Address, approve bool) (*ledger.Receipt, error) {
	return p.transact(ctx, "approveVault", ledger.TxOptions{}, vault, approve)
}

type batchManagerContract struct{ contract }

func (m *batchManagerContract) LpWithdrawVaults(ctx context.Context, vaults []common.Address, updateData [][]byte, priceOpts ledger.GetPriceOptions, opts ledger.TxOptions) (*ledger.Receipt, error) {
	return m.transact(ctx, "lpWithdrawVaults", opts, vaults, updateData, priceOpts)
}

func (m *batchManagerContract) WithdrawVaults(ctx context.Context, vaults []common.Address, updateData [][]byte, priceOpts ledger.GetPriceOptions, opts ledger.TxOptions) (*ledger.Receipt, error) {
	return m.transact(ctx, "withdrawVaults", opts, vaults, updateData, priceOpts)
}

func (m *batchManagerContract) LpCancelVaults(ctx context.Context, vaults []common.Address) (*ledger.Receipt, error) {
	return m.transact(ctx, "lpCancelVaults", ledger.TxOptions{}, vaults)
}

type priceFeedContract struct{ contract }

func (p *priceFeedContract) UpdateFee(ctx context.Context, updateData [][]byte) (*big.Int, error) {
	out, err := p.call(ctx, "getUpdateFee", updateData)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}
