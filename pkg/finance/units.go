package finance

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseUnits converts a human decimal string such as "2500.5" into an integer
// scaled by 10^decimals. Inputs with more fractional digits than decimals are
// rejected rather than rounded.
func ParseUnits(value string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("negative decimals %d", decimals)
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", value, err)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("too many decimals in %q for %d-decimal format", value, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders an integer scaled by 10^decimals as a decimal string.
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// LinkedPriceDecimals is the scale vault contracts use for linked prices of a
// pair whose tokens carry baseDecimals and quoteDecimals.
func LinkedPriceDecimals(baseDecimals, quoteDecimals int) int {
	return FixDecimals + quoteDecimals - baseDecimals
}
