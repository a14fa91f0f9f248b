package vault

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"vaultctl/internal/ledger"
	"vaultctl/internal/oracle"
	"vaultctl/pkg/finance"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// CancelVault approves the cancellation fee on the unfilled remainder and
// cancels the vault. A zero fee is still approved.
func (m *Manager) CancelVault(ctx context.Context, vault common.Address) error {
	info, err := m.ledger.Vault(vault).Info(ctx)
	if err != nil {
		return fmt.Errorf("read vault %s: %w", vault.Hex(), err)
	}

	fee, feeToken := cancellationFee(info)
	m.logger.Info("cancellation fee",
		zap.String("vault", vault.Hex()),
		zap.String("token", feeToken.Hex()),
		zap.String("fee", fee.String()))

	if err := m.approve(ctx, feeToken, vault, fee, []common.Address{vault}); err != nil {
		return fmt.Errorf("approve cancellation fee for %s: %w", vault.Hex(), err)
	}

	_, err = m.submit(ctx, "lpCancel", []common.Address{vault}, func() (*ledger.Receipt, error) {
		return m.ledger.Vault(vault).LpCancel(ctx)
	})
	if err != nil {
		return err
	}
	m.logger.Info("vault cancelled", zap.String("vault", vault.Hex()))
	return nil
}

// cancellationFee returns the fee and the token it is paid in.
func cancellationFee(info ledger.VaultInfo) (*big.Int, common.Address) {
	fee := finance.CancellationFee(info.Quantity, info.DepositTotal, info.CancellationFeeRate, info.IsBuyLow, info.OraclePriceAtCreation)
	if info.IsBuyLow {
		return fee, info.InvestmentToken
	}
	return fee, info.LinkedToken
}

// SubscribeVault deposits amount of the vault's investment token through the router.
func (m *Manager) SubscribeVault(ctx context.Context, vault common.Address, amount string) error {
	info, err := m.ledger.Vault(vault).Info(ctx)
	if err != nil {
		return fmt.Errorf("read vault %s: %w", vault.Hex(), err)
	}
	pair, err := m.pairOf(info)
	if err != nil {
		return err
	}

	meta, err := m.ledger.Token(info.InvestmentToken).Meta(ctx)
	if err != nil {
		return fmt.Errorf("read investment token %s: %w", info.InvestmentToken.Hex(), err)
	}
	subscribeAmount, err := parseInput("amount", amount, int(meta.Decimals))
	if err != nil {
		return err
	}

	router := m.ledger.Router()
	if err := m.approve(ctx, info.InvestmentToken, router.Address(), subscribeAmount, []common.Address{vault}); err != nil {
		return err
	}

	// Subscriptions always use the current price
	update, err := m.oracle.Latest(ctx, pair)
	if err != nil {
		return err
	}
	payload, err := oracle.Payload(update)
	if err != nil {
		return err
	}
	updateFee, err := m.ledger.PriceFeed().UpdateFee(ctx, payload)
	if err != nil {
		return fmt.Errorf("read update fee: %w", err)
	}

	_, err = m.submit(ctx, "deposit", []common.Address{vault}, func() (*ledger.Receipt, error) {
		return router.Deposit(ctx, vault, subscribeAmount, payload, ledger.TxOptions{Value: updateFee})
	})
	if err != nil {
		return err
	}
	m.logger.Info("vault subscribed", zap.String("vault", vault.Hex()), zap.String("amount", subscribeAmount.String()))
	return nil
}

// WithdrawVault withdraws as the LP (checkOwner) or as a subscriber.
// Ineligible vaults are reported and skipped without error.
func (m *Manager) WithdrawVault(ctx context.Context, vault common.Address, checkOwner bool) error {
	v := m.ledger.Vault(vault)
	info, err := v.Info(ctx)
	if err != nil {
		return fmt.Errorf("read vault %s: %w", vault.Hex(), err)
	}

	m.logger.Info("withdrawing vault", zap.String("vault", vault.Hex()))

	if reason := m.withdrawReason(info, checkOwner); reason != "" {
		m.skip(vault, reason)
		return nil
	}

	// Check there is still something to claim
	claim, err := m.readClaim(ctx, info)
	if err != nil {
		return err
	}
	if reason := m.claimReason(info, claim); reason != "" {
		m.skip(vault, reason)
		return nil
	}

	pair, err := m.pairOf(info)
	if err != nil {
		return err
	}

	// Settle at the price published at expiry
	update, err := m.oracle.PriceUpdate(ctx, time.Unix(int64(info.Expiry), 0), pair)
	if err != nil {
		return err
	}
	payload, err := oracle.Payload(update)
	if err != nil {
		return err
	}
	updateFee, err := m.ledger.PriceFeed().UpdateFee(ctx, payload)
	if err != nil {
		return fmt.Errorf("read update fee: %w", err)
	}
	priceOpts := ledger.PriceOptionsAt(info.Expiry)
	txOpts := ledger.TxOptions{Value: updateFee}

	isLp := m.isOwner(info)
	role := roleName(isLp)
	op := "withdraw"
	if isLp {
		op = "lpWithdraw"
	}
	_, err = m.submit(ctx, op, []common.Address{vault}, func() (*ledger.Receipt, error) {
		if isLp {
			return v.LpWithdraw(ctx, payload, priceOpts, txOpts)
		}
		return v.Withdraw(ctx, payload, priceOpts, txOpts)
	})
	if err != nil {
		m.logger.Error("vault withdrawal failed", zap.String("vault", vault.Hex()), zap.String("by", role))
		return err
	}
	m.logger.Info("vault withdrawn", zap.String("vault", vault.Hex()), zap.String("by", role))
	return nil
}

// AdjustVaultYield changes the vault's yield. Unless the vault uses the
// collateral pool, any extra owner deposit the new yield requires is approved
// first.
func (m *Manager) AdjustVaultYield(ctx context.Context, vault common.Address, newYieldPercentage string) error {
	v := m.ledger.Vault(vault)
	info, err := v.Info(ctx)
	if err != nil {
		return fmt.Errorf("read vault %s: %w", vault.Hex(), err)
	}
	newYield, err := parseInput("yieldPercentage", newYieldPercentage, finance.YieldDecimals)
	if err != nil {
		return err
	}

	if !info.UseCollateralPool {
		required := requiredOwnerDeposit(info, newYield)
		delta := new(big.Int).Sub(required, info.OwnerDeposit)
		m.logger.Info("owner deposit",
			zap.String("vault", vault.Hex()),
			zap.String("required", required.String()),
			zap.String("deposited", info.OwnerDeposit.String()))

		if delta.Sign() > 0 {
			if err := m.approve(ctx, info.InvestmentToken, vault, delta, []common.Address{vault}); err != nil {
				return fmt.Errorf("approve additional deposit for %s: %w", vault.Hex(), err)
			}
		}
	}

	_, err = m.submit(ctx, "adjustYieldValue", []common.Address{vault}, func() (*ledger.Receipt, error) {
		return v.AdjustYieldValue(ctx, newYield)
	})
	if err != nil {
		return err
	}
	m.logger.Info("vault yield adjusted", zap.String("vault", vault.Hex()), zap.String("yield", newYieldPercentage))
	return nil
}

// requiredOwnerDeposit prices the filled part at the current yield and the
// unfilled remainder at newYield.
func requiredOwnerDeposit(info ledger.VaultInfo, newYield *big.Int) *big.Int {
	filled := finance.YieldDeposit(info.DepositTotal, info.YieldValue)
	remaining := info.Remaining()
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	return filled.Add(filled, finance.YieldDeposit(remaining, newYield))
}

// ApproveVault toggles collateral pool approval for a vault that opted into it.
// Repeated calls each issue a write.
func (m *Manager) ApproveVault(ctx context.Context, vault common.Address, approve bool) error {
	info, err := m.ledger.Vault(vault).Info(ctx)
	if err != nil {
		return fmt.Errorf("read vault %s: %w", vault.Hex(), err)
	}
	if !info.UseCollateralPool {
		m.logger.Error("vault does not use the collateral pool", zap.String("vault", vault.Hex()))
		return fmt.Errorf("%w: vault %s does not use the collateral pool", ErrValidation, vault.Hex())
	}

	pool, err := m.ledger.CollateralPool()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	_, err = m.submit(ctx, "approveVault", []common.Address{vault}, func() (*ledger.Receipt, error) {
		return pool.ApproveVault(ctx, vault, approve)
	})
	if err != nil {
		return err
	}
	m.logger.Info("collateral pool approval updated", zap.String("vault", vault.Hex()), zap.Bool("approved", approve))
	return nil
}
