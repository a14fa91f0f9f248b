package vault

import (
	"context"
	"fmt"
	"math/big"

	"vaultctl/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

func (m *Manager) isOwner(info ledger.VaultInfo) bool {
	return info.Owner == m.ledger.Account()
}

func roleName(isLp bool) string {
	if isLp {
		return "LP"
	}
	return "subscriber"
}

func (m *Manager) skip(vault common.Address, reason string) {
	m.logger.Warn("skipping vault", zap.String("vault", vault.Hex()), zap.String("reason", reason))
}

// withdrawReason explains why a withdrawal may not start yet, or returns "".
func (m *Manager) withdrawReason(info ledger.VaultInfo, checkOwner bool) string {
	account := m.ledger.Account().Hex()
	vault := info.Address.Hex()

	if !m.expired(info) {
		return fmt.Sprintf("vault %s is not yet available for withdrawal", vault)
	}
	owner := m.isOwner(info)
	if checkOwner && !owner {
		return fmt.Sprintf("account %s is not the owner of the vault %s", account, vault)
	}
	if !checkOwner && owner {
		return fmt.Sprintf("account %s is the owner of the vault %s", account, vault)
	}
	return ""
}

// claimSource names what has to be non-zero for a withdrawal to pay out.
// ok is false when nothing needs checking.
func (m *Manager) claimSource(info ledger.VaultInfo) (token, holder common.Address, subscriber, ok bool) {
	if !m.isOwner(info) {
		return info.Address, m.ledger.Account(), true, true
	}
	switch info.State {
	case ledger.StateSettledLinked:
		return info.InvestmentToken, info.Address, false, true
	case ledger.StateSettledInvestment:
		return info.LinkedToken, info.Address, false, true
	}
	return common.Address{}, common.Address{}, false, false
}

// readClaim reads the balance claimSource points at, or nil.
func (m *Manager) readClaim(ctx context.Context, info ledger.VaultInfo) (*big.Int, error) {
	token, holder, subscriber, ok := m.claimSource(info)
	if !ok {
		return nil, nil
	}
	var (
		amount *big.Int
		err    error
	)
	if subscriber {
		amount, err = m.ledger.Vault(info.Address).Balance(ctx, holder)
	} else {
		amount, err = m.ledger.Token(token).BalanceOf(ctx, holder)
	}
	if err != nil {
		return nil, fmt.Errorf("read claim of %s: %w", info.Address.Hex(), err)
	}
	return amount, nil
}

// queueClaim is readClaim inside a batch window.
func (m *Manager) queueClaim(b ledger.Batch, info ledger.VaultInfo) *ledger.AmountResult {
	token, holder, subscriber, ok := m.claimSource(info)
	if !ok {
		return nil
	}
	if subscriber {
		return b.VaultBalance(info.Address, holder)
	}
	return b.BalanceOf(token, holder)
}

// claimReason reports an empty claim, or returns "".
func (m *Manager) claimReason(info ledger.VaultInfo, claim *big.Int) string {
	if claim == nil || claim.Sign() > 0 {
		return ""
	}
	if m.isOwner(info) {
		return fmt.Sprintf("LP has been withdrawn from the vault %s", info.Address.Hex())
	}
	return fmt.Sprintf("account %s has no balance in the vault %s", m.ledger.Account().Hex(), info.Address.Hex())
}

// cancelReason explains why the LP may not cancel a vault, or returns "".
func (m *Manager) cancelReason(info ledger.VaultInfo) string {
	vault := info.Address.Hex()
	switch {
	case !m.isOwner(info):
		return fmt.Sprintf("account %s is not the owner of the vault %s", m.ledger.Account().Hex(), vault)
	case info.State != ledger.StateOpen:
		return fmt.Sprintf("vault %s is not open (state %s)", vault, info.State)
	case info.LpCancelled:
		return fmt.Sprintf("vault %s is already cancelled", vault)
	case m.expired(info):
		return fmt.Sprintf("vault %s has expired", vault)
	case info.UseCollateralPool && info.DepositTotal.Sign() == 0:
		return fmt.Sprintf("vault %s uses the collateral pool and has no deposits", vault)
	}
	return ""
}
