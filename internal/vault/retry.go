package vault

import (
	"context"
	"fmt"

	"vaultctl/internal/ledger"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// approveCollateral approves a freshly created vault on the collateral pool.
// The pool may not see the vault right away, so the approval is retried with
// a fixed delay. No other write is retried.
func (m *Manager) approveCollateral(ctx context.Context, vault common.Address) error {
	pool, err := m.ledger.CollateralPool()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	attempt := 0
	operation := func() (*ledger.Receipt, error) {
		attempt++
		receipt, err := m.submit(ctx, "approveVault", []common.Address{vault}, func() (*ledger.Receipt, error) {
			return pool.ApproveVault(ctx, vault, true)
		})
		if err != nil {
			m.logger.Warn("collateral pool approval failed",
				zap.String("vault", vault.Hex()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, err
		}
		return receipt, nil
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(m.retryDelay)),
		backoff.WithMaxTries(uint(m.retryAttempts)))
	if err != nil {
		return fmt.Errorf("%w: approveVault %s after %d attempts: %w", ErrRetryExhausted, vault.Hex(), attempt, err)
	}

	m.logger.Info("collateral pool approval succeeded", zap.String("vault", vault.Hex()), zap.Int("attempt", attempt))
	return nil
}
