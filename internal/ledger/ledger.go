// Package ledger describes the on-chain contracts vaultctl drives. Each
// contract role has its own interface; Ledger bundles them for one network
// and one signing account.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrBatchOpen is returned when a write, or a second batch, is attempted
// while a batched-read window is open.
var ErrBatchOpen = errors.New("ledger: batched read window is open")

// CallError is a failed remote call with a short human-readable reason.
type CallError struct {
	Method string
	Short  string
	Cause  error
}

func (e *CallError) Error() string {
	if e.Short == "" {
		return fmt.Sprintf("%s failed: %v", e.Method, e.Cause)
	}
	return fmt.Sprintf("%s failed: %s", e.Method, e.Short)
}

func (e *CallError) Unwrap() error { return e.Cause }

// ShortMessage returns the short reason of a CallError anywhere in err's chain,
// or err's own text.
func ShortMessage(err error) string {
	var ce *CallError
	if errors.As(err, &ce) && ce.Short != "" {
		return ce.Short
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

type Factory interface {
	Address() common.Address
	PresetFeeParams(ctx context.Context) (FeeParams, error)
	DeployedVaults(ctx context.Context) ([]common.Address, error)
	CreateVault(ctx context.Context, params CreateVaultParams, updateData [][]byte, opts TxOptions) (*Receipt, error)
}

type Router interface {
	Address() common.Address
	Deposit(ctx context.Context, vault common.Address, amount *big.Int, updateData [][]byte, opts TxOptions) (*Receipt, error)
}

type Vault interface {
	Address() common.Address
	Info(ctx context.Context) (VaultInfo, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	CreatedAt(ctx context.Context) (uint64, error)
	LpCancel(ctx context.Context) (*Receipt, error)
	LpWithdraw(ctx context.Context, updateData [][]byte, priceOpts GetPriceOptions, opts TxOptions) (*Receipt, error)
	Withdraw(ctx context.Context, updateData [][]byte, priceOpts GetPriceOptions, opts TxOptions) (*Receipt, error)
	AdjustYieldValue(ctx context.Context, yieldValue *big.Int) (*Receipt, error)
}

type Token interface {
	Address() common.Address
	Meta(ctx context.Context) (TokenMeta, error)
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) (*Receipt, error)
}

type CollateralPool interface {
	Address() common.Address
	ApproveVault(ctx context.Context, vault common.Address, approve bool) (*Receipt, error)
}

type BatchManager interface {
	Address() common.Address
	LpWithdrawVaults(ctx context.Context, vaults []common.Address, updateData [][]byte, priceOpts GetPriceOptions, opts TxOptions) (*Receipt, error)
	WithdrawVaults(ctx context.Context, vaults []common.Address, updateData [][]byte, priceOpts GetPriceOptions, opts TxOptions) (*Receipt, error)
	LpCancelVaults(ctx context.Context, vaults []common.Address) (*Receipt, error)
}

type PriceFeed interface {
	Address() common.Address
	UpdateFee(ctx context.Context, updateData [][]byte) (*big.Int, error)
}

// Ledger is one network as seen by one signing account.
type Ledger interface {
	Account() common.Address

	Factory() Factory
	Router() Router
	CollateralPool() (CollateralPool, error)
	BatchManager() (BatchManager, error)
	PriceFeed() PriceFeed

	// Vault and Token return the adapter for addr, reusing one instance per address.
	Vault(addr common.Address) Vault
	Token(addr common.Address) Token

	// NewBatch opens a read-only window; see Batch.
	NewBatch() (Batch, error)
}

// Batch queues independent reads and sends them in a single round trip on
// Flush. While a Batch is open its Ledger rejects writes and further batches
// with ErrBatchOpen. Flush and Close both end the window; results are only
// valid after Flush returns.
type Batch interface {
	VaultInfo(vault common.Address) *VaultInfoResult
	TokenMeta(token common.Address) *TokenMetaResult
	BalanceOf(token, holder common.Address) *AmountResult
	VaultBalance(vault, account common.Address) *AmountResult
	Owner(vault common.Address) *AddressResult
	Flush(ctx context.Context) error
	Close()
}

type VaultInfoResult struct {
	Info VaultInfo
	Err  error
}

type TokenMetaResult struct {
	Meta TokenMeta
	Err  error
}

type AmountResult struct {
	Amount *big.Int
	Err    error
}

type AddressResult struct {
	Address common.Address
	Err     error
}
