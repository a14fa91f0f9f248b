package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VaultState mirrors the vault contract's state enum.
type VaultState uint8

const (
	StateOpen VaultState = iota
	StateSettledLinked
	StateSettledInvestment
	StateCancelled
)

func (s VaultState) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateSettledLinked:
		return "Settled(1)"
	case StateSettledInvestment:
		return "Settled(2)"
	case StateCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// VaultInfo is a snapshot of every getter the orchestrator reads from a vault.
// All amounts are raw on-chain integers.
type VaultInfo struct {
	Address               common.Address
	Owner                 common.Address
	IsBuyLow              bool
	InvestmentToken       common.Address
	LinkedToken           common.Address
	Quantity              *big.Int
	DepositTotal          *big.Int
	State                 VaultState
	Expiry                uint64
	YieldValue            *big.Int
	LinkedOraclePrice     *big.Int
	OraclePriceAtCreation *big.Int
	TradingFeeRate        *big.Int
	CancellationFeeRate   *big.Int
	UseCollateralPool     bool
	DepositDeadline       uint64
	LpCancelled           bool
	OwnerDeposit          *big.Int
}

// BaseToken is the priced token of the vault's pair.
func (v VaultInfo) BaseToken() common.Address {
	if v.IsBuyLow {
		return v.LinkedToken
	}
	return v.InvestmentToken
}

// QuoteToken is the pricing token of the vault's pair.
func (v VaultInfo) QuoteToken() common.Address {
	if v.IsBuyLow {
		return v.InvestmentToken
	}
	return v.LinkedToken
}

// Remaining is the unfilled part of the vault.
func (v VaultInfo) Remaining() *big.Int {
	return new(big.Int).Sub(v.Quantity, v.DepositTotal)
}

// TokenMeta is the static ERC20 metadata of a token.
type TokenMeta struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8
}

// FeeParams are the factory's preset fee rates, scaled by 10^18.
type FeeParams struct {
	TradingFeeRate      *big.Int
	CancellationFeeRate *big.Int
}

// CreateVaultParams is the factory's vault creation struct.
type CreateVaultParams struct {
	Owner              common.Address
	BaseToken          common.Address
	QuoteToken         common.Address
	Expiry             *big.Int
	LinkedOraclePrice  *big.Int
	YieldValue         *big.Int
	IsBuyLow           bool
	Quantity           *big.Int
	UseCollateralPool  bool
	UseNativeToken     bool
	VaultSeriesVersion *big.Int
	Signer             common.Address
}

// GetPriceOptions selects which oracle observation settles a withdrawal.
type GetPriceOptions struct {
	PythPublishTime          *big.Int
	PythMinConfidenceRatio   *big.Int
	ChainlinkUseLatestAnswer bool
	ChainlinkRoundId         *big.Int
}

// PriceOptionsAt returns options pinned to the Pyth publish time ts.
func PriceOptionsAt(ts uint64) GetPriceOptions {
	return GetPriceOptions{
		PythPublishTime:        new(big.Int).SetUint64(ts),
		PythMinConfidenceRatio: big.NewInt(0),
		ChainlinkRoundId:       big.NewInt(0),
	}
}

// TxOptions carries the per-call value and gas overrides of a write.
type TxOptions struct {
	Value    *big.Int
	GasLimit uint64
}

// ReceiptStatusSuccessful mirrors types.ReceiptStatusSuccessful.
const ReceiptStatusSuccessful = 1

// Receipt is the mined result of a write.
type Receipt struct {
	Status uint64
	TxHash common.Hash
	Block  uint64
	Events []Event
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccessful
}

// Event is a decoded log entry. Logs that do not belong to a known ABI have an empty Name.
type Event struct {
	Address common.Address
	Name    string
	Args    map[string]interface{}
}

// FindEvent returns the first event named name.
func (r *Receipt) FindEvent(name string) (Event, bool) {
	if r == nil {
		return Event{}, false
	}
	for _, ev := range r.Events {
		if ev.Name == name {
			return ev, true
		}
	}
	return Event{}, false
}
