package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vaultctl/config"
	"vaultctl/internal/ledger"
	"vaultctl/internal/oracle"
	"vaultctl/internal/report"
	"vaultctl/pkg/finance"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// WithdrawAllVaults runs WithdrawVault over every deployed vault. Failures
// are logged and do not stop the sweep.
func (m *Manager) WithdrawAllVaults(ctx context.Context, checkOwner bool) error {
	vaults, err := m.ledger.Factory().DeployedVaults(ctx)
	if err != nil {
		return fmt.Errorf("read deployed vaults: %w", err)
	}
	if len(vaults) == 0 {
		m.logger.Info("no vaults to process")
		return nil
	}

	var errs []error
	for _, vault := range vaults {
		if err := m.WithdrawVault(ctx, vault, checkOwner); err != nil {
			m.logger.Error("error withdrawing vault", zap.String("vault", vault.Hex()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListVaults returns the deployed vaults owned by owner. A zero owner means
// the signing account.
func (m *Manager) ListVaults(ctx context.Context, owner common.Address) ([]common.Address, error) {
	if owner == (common.Address{}) {
		owner = m.ledger.Account()
	}
	vaults, err := m.ledger.Factory().DeployedVaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("read deployed vaults: %w", err)
	}
	if len(vaults) == 0 {
		return nil, nil
	}

	b, err := m.ledger.NewBatch()
	if err != nil {
		return nil, err
	}
	owners := make([]*ledger.AddressResult, len(vaults))
	for i, v := range vaults {
		owners[i] = b.Owner(v)
	}
	if err := b.Flush(ctx); err != nil {
		return nil, fmt.Errorf("read vault owners: %w", err)
	}

	var out []common.Address
	for i, res := range owners {
		if res.Err != nil {
			m.logger.Warn("failed to read vault owner", zap.String("vault", vaults[i].Hex()), zap.Error(res.Err))
			continue
		}
		if res.Address == owner {
			out = append(out, vaults[i])
		}
	}
	return out, nil
}

// ShowVault collects the display form of a vault.
func (m *Manager) ShowVault(ctx context.Context, vault common.Address) (*report.Vault, error) {
	v := m.ledger.Vault(vault)
	info, err := v.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("read vault %s: %w", vault.Hex(), err)
	}
	pair, err := m.pairOf(info)
	if err != nil {
		return nil, err
	}
	feedDecimals, err := oracle.FeedDecimals(pair)
	if err != nil {
		return nil, err
	}

	meta, err := m.ledger.Token(info.InvestmentToken).Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("read investment token %s: %w", info.InvestmentToken.Hex(), err)
	}

	var createdAt time.Time
	if ts, err := v.CreatedAt(ctx); err != nil {
		m.logger.Warn("creation date unavailable", zap.String("vault", vault.Hex()), zap.Error(err))
	} else {
		createdAt = time.Unix(int64(ts), 0)
	}

	return &report.Vault{
		Address:     vault,
		TradingPair: pair.Symbol,
		BaseToken:   info.BaseToken(),
		QuoteToken:  info.QuoteToken(),
		LinkedPrice: finance.FormatUnits(info.LinkedOraclePrice, feedDecimals),
		Yield:       finance.FormatUnits(info.YieldValue, finance.YieldDecimals),
		CreatedAt:   createdAt,
		Expiry:      time.Unix(int64(info.Expiry), 0),
		Direction:   report.Direction(info.IsBuyLow),
		Quantity:    finance.FormatUnits(info.Quantity, int(meta.Decimals)),
		Remaining:   finance.FormatUnits(info.Remaining(), int(meta.Decimals)),
		State:       info.State.String(),
	}, nil
}

// ShowConfig returns the network configuration with secrets masked.
func (m *Manager) ShowConfig() config.NetworkConfig {
	return m.network.Redacted()
}
