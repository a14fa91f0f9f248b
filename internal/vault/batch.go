package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"vaultctl/config"
	"vaultctl/internal/ledger"
	"vaultctl/internal/oracle"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// VaultData is the batch bookkeeping of one eligible vault.
type VaultData struct {
	Vault       common.Address
	TradingPair string
	Expiry      uint64
	IsLp        bool
}

// GroupKey identifies the vaults that can share one price attestation.
func (d VaultData) GroupKey() string {
	role := "subscriber"
	if d.IsLp {
		role = "lp"
	}
	return fmt.Sprintf("%s-%d-%s", d.TradingPair, d.Expiry, role)
}

// Group is a set of vaults submitted in one batch write.
type Group struct {
	Key         string
	TradingPair string
	Expiry      uint64
	IsLp        bool
	Vaults      []common.Address
}

// GroupVaults groups by (pair, expiry, role), keeping first-seen order.
func GroupVaults(data []VaultData) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, d := range data {
		key := d.GroupKey()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key, TradingPair: d.TradingPair, Expiry: d.Expiry, IsLp: d.IsLp})
		}
		groups[i].Vaults = append(groups[i].Vaults, d.Vault)
	}
	return groups
}

// WithdrawMultipleVaults withdraws many vaults with one batch write per
// (pair, expiry, role) group. With bypassCheck the whole list is submitted as
// one group priced from the first vault.
func (m *Manager) WithdrawMultipleVaults(ctx context.Context, vaults []common.Address, checkOwner, bypassCheck bool) error {
	if len(vaults) == 0 {
		m.logger.Info("no vaults to process")
		return nil
	}

	bm, err := m.ledger.BatchManager()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	pairs := make(map[string]config.TradingPair)
	var groups []Group

	if bypassCheck {
		first, err := m.ledger.Vault(vaults[0]).Info(ctx)
		if err != nil {
			return fmt.Errorf("read vault %s: %w", vaults[0].Hex(), err)
		}
		pair, err := m.pairOf(first)
		if err != nil {
			return err
		}
		pairs[pair.Symbol] = pair
		groups = []Group{{
			Key:         VaultData{TradingPair: pair.Symbol, Expiry: first.Expiry, IsLp: checkOwner}.GroupKey(),
			TradingPair: pair.Symbol,
			Expiry:      first.Expiry,
			IsLp:        checkOwner,
			Vaults:      vaults,
		}}
	} else {
		data, err := m.eligibleWithdrawals(ctx, vaults, checkOwner, pairs)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			m.logger.Info("no vaults to process")
			return nil
		}
		groups = GroupVaults(data)
	}

	var errs []error
	for _, g := range groups {
		if err := m.withdrawGroup(ctx, bm, pairs[g.TradingPair], g); err != nil {
			m.logger.Error("group withdrawal failed", zap.String("group", g.Key), zap.Error(err))
			errs = append(errs, fmt.Errorf("group %s: %w", g.Key, err))
		}
	}
	return errors.Join(errs...)
}

// eligibleWithdrawals applies the single-vault withdrawal checks to every
// vault using two batch windows, logging each exclusion.
func (m *Manager) eligibleWithdrawals(ctx context.Context, vaults []common.Address, checkOwner bool, pairs map[string]config.TradingPair) ([]VaultData, error) {
	infos, err := m.readVaults(ctx, vaults)
	if err != nil {
		return nil, err
	}

	var candidates []ledger.VaultInfo
	for i, res := range infos {
		if res.Err != nil {
			m.skip(vaults[i], "failed to read vault: "+ledger.ShortMessage(res.Err))
			continue
		}
		if reason := m.withdrawReason(res.Info, checkOwner); reason != "" {
			m.skip(vaults[i], reason)
			continue
		}
		candidates = append(candidates, res.Info)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Read the remaining claims
	b, err := m.ledger.NewBatch()
	if err != nil {
		return nil, err
	}
	claims := make([]*ledger.AmountResult, len(candidates))
	for i, info := range candidates {
		claims[i] = m.queueClaim(b, info)
	}
	if err := b.Flush(ctx); err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	var data []VaultData
	for i, info := range candidates {
		if c := claims[i]; c != nil {
			if c.Err != nil {
				m.skip(info.Address, "failed to read claim: "+ledger.ShortMessage(c.Err))
				continue
			}
			if reason := m.claimReason(info, c.Amount); reason != "" {
				m.skip(info.Address, reason)
				continue
			}
		}
		pair, err := m.pairOf(info)
		if err != nil {
			m.skip(info.Address, err.Error())
			continue
		}
		pairs[pair.Symbol] = pair
		data = append(data, VaultData{Vault: info.Address, TradingPair: pair.Symbol, Expiry: info.Expiry, IsLp: checkOwner})
	}
	return data, nil
}

func (m *Manager) withdrawGroup(ctx context.Context, bm ledger.BatchManager, pair config.TradingPair, g Group) error {
	update, err := m.oracle.PriceUpdate(ctx, time.Unix(int64(g.Expiry), 0), pair)
	if err != nil {
		return err
	}
	payload, err := oracle.Payload(update)
	if err != nil {
		return err
	}
	perVaultFee, err := m.ledger.PriceFeed().UpdateFee(ctx, payload)
	if err != nil {
		return fmt.Errorf("read update fee: %w", err)
	}

	// One attestation is shared but charged per vault
	value := new(big.Int).Mul(perVaultFee, big.NewInt(int64(len(g.Vaults))))
	priceOpts := ledger.PriceOptionsAt(g.Expiry)
	txOpts := ledger.TxOptions{Value: value}

	op := "withdrawVaults"
	if g.IsLp {
		op = "lpWithdrawVaults"
	}
	_, err = m.submit(ctx, op, g.Vaults, func() (*ledger.Receipt, error) {
		if g.IsLp {
			return bm.LpWithdrawVaults(ctx, g.Vaults, payload, priceOpts, txOpts)
		}
		return bm.WithdrawVaults(ctx, g.Vaults, payload, priceOpts, txOpts)
	})
	if err != nil {
		return err
	}
	m.logger.Info("group withdrawn", zap.String("group", g.Key), zap.Int("vaults", len(g.Vaults)))
	return nil
}

// CancelMultipleVaults cancels many vaults with one batch write per group.
// Each vault's cancellation fee is approved first; a vault whose approval
// fails is dropped from its group. With bypassCheck eligibility is not
// checked, the whole list is one group and every vault is submitted even if
// its fee could not be read or approved.
func (m *Manager) CancelMultipleVaults(ctx context.Context, vaults []common.Address, bypassCheck bool) error {
	if len(vaults) == 0 {
		m.logger.Info("no vaults to process")
		return nil
	}

	bm, err := m.ledger.BatchManager()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	infos, err := m.readVaults(ctx, vaults)
	if err != nil {
		return err
	}

	byVault := make(map[common.Address]ledger.VaultInfo, len(vaults))
	var groups []Group

	if bypassCheck {
		for i, res := range infos {
			if res.Err == nil {
				byVault[vaults[i]] = res.Info
			}
		}
		if infos[0].Err != nil {
			return fmt.Errorf("read vault %s: %w", vaults[0].Hex(), infos[0].Err)
		}
		pair, err := m.pairOf(infos[0].Info)
		if err != nil {
			return err
		}
		d := VaultData{TradingPair: pair.Symbol, Expiry: infos[0].Info.Expiry, IsLp: true}
		groups = []Group{{Key: d.GroupKey(), TradingPair: d.TradingPair, Expiry: d.Expiry, IsLp: true, Vaults: vaults}}
	} else {
		var data []VaultData
		for i, res := range infos {
			if res.Err != nil {
				m.skip(vaults[i], "failed to read vault: "+ledger.ShortMessage(res.Err))
				continue
			}
			if reason := m.cancelReason(res.Info); reason != "" {
				m.skip(vaults[i], reason)
				continue
			}
			pair, err := m.pairOf(res.Info)
			if err != nil {
				m.skip(vaults[i], err.Error())
				continue
			}
			byVault[vaults[i]] = res.Info
			data = append(data, VaultData{Vault: vaults[i], TradingPair: pair.Symbol, Expiry: res.Info.Expiry, IsLp: true})
		}
		if len(data) == 0 {
			m.logger.Info("no vaults to process")
			return nil
		}
		groups = GroupVaults(data)
	}

	var errs []error
	for _, g := range groups {
		if err := m.cancelGroup(ctx, bm, byVault, g, bypassCheck); err != nil {
			m.logger.Error("group cancellation failed", zap.String("group", g.Key), zap.Error(err))
			errs = append(errs, fmt.Errorf("group %s: %w", g.Key, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) cancelGroup(ctx context.Context, bm ledger.BatchManager, infos map[common.Address]ledger.VaultInfo, g Group, bypass bool) error {
	var approved []common.Address
	for _, vault := range g.Vaults {
		info, ok := infos[vault]
		if !ok {
			// unread vaults in bypass mode are submitted as-is
			approved = append(approved, vault)
			continue
		}
		fee, feeToken := cancellationFee(info)
		if err := m.approve(ctx, feeToken, vault, fee, []common.Address{vault}); err != nil {
			if !bypass {
				m.skip(vault, "cancellation fee approval failed: "+ledger.ShortMessage(err))
				continue
			}
			m.logger.Warn("cancellation fee approval failed, submitting anyway",
				zap.String("vault", vault.Hex()),
				zap.String("reason", ledger.ShortMessage(err)))
		}
		approved = append(approved, vault)
	}
	if len(approved) == 0 {
		m.logger.Info("no vaults to process", zap.String("group", g.Key))
		return nil
	}

	_, err := m.submit(ctx, "lpCancelVaults", approved, func() (*ledger.Receipt, error) {
		return bm.LpCancelVaults(ctx, approved)
	})
	if err != nil {
		return err
	}
	m.logger.Info("group cancelled", zap.String("group", g.Key), zap.Int("vaults", len(approved)))
	return nil
}
