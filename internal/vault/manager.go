// Package vault orchestrates the vault lifecycle: it derives amounts, sequences
// approvals and price updates, and drives single and batched contract writes.
package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"vaultctl/config"
	"vaultctl/internal/hedge"
	"vaultctl/internal/ledger"
	"vaultctl/pkg/hermes"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// PriceOracle resolves price updates for a trading pair.
type PriceOracle interface {
	PriceUpdate(ctx context.Context, target time.Time, pair config.TradingPair) (*hermes.PriceUpdate, error)
	Latest(ctx context.Context, pair config.TradingPair) (*hermes.PriceUpdate, error)
}

// Outcome is the result of one write, offered to the journal.
type Outcome struct {
	Op     string
	Vaults []common.Address
	TxHash common.Hash
	Status uint64
	Err    error
}

// Journal keeps a history of write outcomes.
type Journal interface {
	Record(ctx context.Context, o Outcome) error
}

// Hedger places an offsetting position after a vault is created.
type Hedger interface {
	Hedge(ctx context.Context, req hedge.Request) error
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

func WithHedger(h Hedger) Option {
	return func(m *Manager) { m.hedger = h }
}

// WithApprovalRetry sets the collateral pool approval policy. attempts below
// one mean a single attempt.
func WithApprovalRetry(delay time.Duration, attempts int) Option {
	if attempts < 1 {
		attempts = 1
	}
	return func(m *Manager) {
		m.retryDelay = delay
		m.retryAttempts = attempts
	}
}

// Manager runs vault operations for one network and one signing account.
type Manager struct {
	ledger  ledger.Ledger
	network *config.NetworkConfig
	oracle  PriceOracle
	logger  *zap.Logger

	now           func() time.Time
	journal       Journal
	hedger        Hedger
	retryDelay    time.Duration
	retryAttempts int
}

func NewManager(l ledger.Ledger, network *config.NetworkConfig, o PriceOracle, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		ledger:        l,
		network:       network,
		oracle:        o,
		logger:        logger,
		now:           time.Now,
		retryDelay:    2 * time.Second,
		retryAttempts: 3,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// submit sends one write, journals it and classifies the result. A mined
// receipt with status other than 1 is ErrWriteRejected.
func (m *Manager) submit(ctx context.Context, op string, vaults []common.Address, send func() (*ledger.Receipt, error)) (*ledger.Receipt, error) {
	receipt, err := send()

	out := Outcome{Op: op, Vaults: vaults, Err: err}
	if receipt != nil {
		out.TxHash = receipt.TxHash
		out.Status = receipt.Status
	}
	m.record(ctx, out)

	if err != nil {
		if errors.Is(err, ledger.ErrBatchOpen) {
			return nil, err
		}
		m.logger.Error("write failed",
			zap.String("op", op),
			zap.Strings("vaults", hexes(vaults)),
			zap.String("reason", ledger.ShortMessage(err)))
		return nil, fmt.Errorf("%w: %s: %w", ErrWriteRejected, op, err)
	}
	if !receipt.Succeeded() {
		m.logger.Error("write reverted",
			zap.String("op", op),
			zap.Strings("vaults", hexes(vaults)),
			zap.String("tx", receipt.TxHash.Hex()),
			zap.Uint64("status", receipt.Status))
		return receipt, fmt.Errorf("%w: %s: receipt status %d", ErrWriteRejected, op, receipt.Status)
	}

	m.logger.Debug("write confirmed",
		zap.String("op", op),
		zap.Strings("vaults", hexes(vaults)),
		zap.String("tx", receipt.TxHash.Hex()))
	return receipt, nil
}

func (m *Manager) record(ctx context.Context, out Outcome) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Record(ctx, out); err != nil {
		m.logger.Warn("failed to journal write", zap.String("op", out.Op), zap.Error(err))
	}
}

// approve checks the signer holds amount of token, then approves spender.
func (m *Manager) approve(ctx context.Context, token, spender common.Address, amount *big.Int, vaults []common.Address) error {
	t := m.ledger.Token(token)

	balance, err := t.BalanceOf(ctx, m.ledger.Account())
	if err != nil {
		return fmt.Errorf("balance of %s: %w", token.Hex(), err)
	}
	if balance.Cmp(amount) < 0 {
		name := token.Hex()
		if meta, err := t.Meta(ctx); err == nil && meta.Name != "" {
			name = meta.Name
		}
		return fmt.Errorf("%w: insufficient %s balance (have %s, need %s)", ErrInsufficientBalance, name, balance, amount)
	}

	_, err = m.submit(ctx, "approve", vaults, func() (*ledger.Receipt, error) {
		return t.Approve(ctx, spender, amount)
	})
	return err
}

// pairOf resolves the configured trading pair of a vault from its tokens.
func (m *Manager) pairOf(info ledger.VaultInfo) (config.TradingPair, error) {
	base, quote := info.BaseToken().Hex(), info.QuoteToken().Hex()
	if pair, ok := m.network.PairByTokens(base, quote); ok {
		return pair, nil
	}
	return config.TradingPair{}, fmt.Errorf("%w: no trading pair for %s/%s", ErrConfig, base, quote)
}

// readVaults batch-reads the info of every vault.
func (m *Manager) readVaults(ctx context.Context, vaults []common.Address) ([]*ledger.VaultInfoResult, error) {
	b, err := m.ledger.NewBatch()
	if err != nil {
		return nil, err
	}
	results := make([]*ledger.VaultInfoResult, len(vaults))
	for i, v := range vaults {
		results[i] = b.VaultInfo(v)
	}
	if err := b.Flush(ctx); err != nil {
		return nil, fmt.Errorf("read vaults: %w", err)
	}
	return results, nil
}

func (m *Manager) expired(info ledger.VaultInfo) bool {
	return !m.now().Before(time.Unix(int64(info.Expiry), 0))
}

func hexes(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}
