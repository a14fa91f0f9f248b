// Package finance holds the fixed-point arithmetic used to size vault
// approvals. Every amount is an integer scaled by Unit; nothing here uses
// floating point.
package finance

import "math/big"

// FixDecimals is the number of decimals of the shared fixed-point base.
const FixDecimals = 18

// YieldDecimals is the scale of yield values (percentages carry two implicit decimals).
const YieldDecimals = FixDecimals - 2

var (
	// Unit is 10^18.
	Unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(FixDecimals), nil)

	bufferNumerator   = big.NewInt(101)
	bufferDenominator = big.NewInt(100)
)

// TokenAmounts is the pair of approvals an LP needs before creating a vault.
type TokenAmounts struct {
	LinkedTokenAmount     *big.Int
	InvestmentTokenAmount *big.Int
}

// TradingFee returns the platform trading fee owed on vault creation.
//
// Sell-high vaults are charged in the linked token, priced at the oracle price
// at creation, and get a 1% buffer so that a small price move between this
// computation and execution never leaves the approval short.
func TradingFee(quantity, yieldValue *big.Int, isBuyLow bool, feeRate, oraclePriceAtCreation *big.Int) *big.Int {
	fee := mul(quantity, yieldValue, feeRate)
	if isBuyLow {
		fee.Quo(fee, Unit)
		return fee.Quo(fee, Unit)
	}

	fee.Mul(fee, oraclePriceAtCreation)
	fee.Mul(fee, bufferNumerator)
	fee.Quo(fee, bufferDenominator)
	fee.Quo(fee, Unit)
	fee.Quo(fee, Unit)
	return fee.Quo(fee, Unit)
}

// CalculateTokenAmounts returns how much of each token the LP must approve
// for a vault of the given terms. The trading fee is folded into the token it
// is charged in.
func CalculateTokenAmounts(quantity, yieldValue *big.Int, isBuyLow bool, feeRate, oraclePriceAtCreation, linkedPrice *big.Int) TokenAmounts {
	fee := TradingFee(quantity, yieldValue, isBuyLow, feeRate, oraclePriceAtCreation)

	investment := YieldDeposit(quantity, yieldValue)
	principal := mul(quantity, new(big.Int).Add(Unit, yieldValue))

	var linked *big.Int
	if isBuyLow {
		linked = principal.Quo(principal, linkedPrice)
		investment.Add(investment, fee)
	} else {
		linked = principal.Mul(principal, linkedPrice)
		linked.Quo(linked, Unit)
		linked.Quo(linked, Unit)
		linked.Add(linked, fee)
	}

	return TokenAmounts{LinkedTokenAmount: linked, InvestmentTokenAmount: investment}
}

// YieldDeposit is the yield an LP deposits for quantity at yieldValue.
func YieldDeposit(quantity, yieldValue *big.Int) *big.Int {
	v := mul(quantity, yieldValue)
	return v.Quo(v, Unit)
}

// CancellationFee is the fee charged on the unfilled part of a vault when
// the LP cancels it. Sell-high fees are converted at the creation price.
func CancellationFee(quantity, depositTotal, feeRate *big.Int, isBuyLow bool, oraclePriceAtCreation *big.Int) *big.Int {
	remaining := new(big.Int).Sub(quantity, depositTotal)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}

	fee := remaining.Mul(remaining, feeRate)
	if isBuyLow {
		return fee.Quo(fee, Unit)
	}
	fee.Mul(fee, oraclePriceAtCreation)
	fee.Quo(fee, Unit)
	return fee.Quo(fee, Unit)
}

// mul returns a fresh product of all factors.
func mul(factors ...*big.Int) *big.Int {
	out := big.NewInt(1)
	for _, f := range factors {
		out.Mul(out, f)
	}
	return out
}
