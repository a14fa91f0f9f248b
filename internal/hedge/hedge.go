// Package hedge buys an exchange option that offsets a newly created vault.
package hedge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"vaultctl/pkg/deribit"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	OptionTypeCall = "call"
	OptionTypePut  = "put"

	ProviderDeribit = "deribit"
)

const instrumentKindOption = "option"

var (
	ErrInvalidToken = errors.New("not a valid token")
	ErrNoInstrument = errors.New("no valid instrument found")
	ErrUnknownHedge = errors.New("invalid hedge option")
)

var (
	validTokens = []string{"BTC", "ETH", "USDC", "USDT", "EURR"}
	tokenMap    = map[string]string{"WETH": "ETH", "WBTC": "BTC"}
)

// Request describes the option to buy.
type Request struct {
	Token      string // base token symbol of the vault's pair
	Strike     decimal.Decimal
	Expiry     time.Time
	Amount     decimal.Decimal
	OptionType string
}

// OptionTypeFor returns call for buy-low vaults and put otherwise.
func OptionTypeFor(isBuyLow bool) string {
	if isBuyLow {
		return OptionTypeCall
	}
	return OptionTypePut
}

// Providers lists the supported hedge venues.
func Providers() []string {
	return []string{ProviderDeribit}
}

// ValidProvider reports whether name is a supported venue (case-insensitive).
func ValidProvider(name string) bool {
	return slices.Contains(Providers(), strings.ToLower(name))
}

// Exchange is the subset of the Deribit API the hedger uses.
type Exchange interface {
	GetInstruments(ctx context.Context, currency, kind string) ([]deribit.Instrument, error)
	Buy(ctx context.Context, instrumentName, amount string) (*deribit.BuyResponse, error)
}

type Deribit struct {
	exchange Exchange
	logger   *zap.Logger
}

func NewDeribit(exchange Exchange, logger *zap.Logger) *Deribit {
	return &Deribit{exchange: exchange, logger: logger.Named("deribit")}
}

// Hedge buys the listed option closest to the request's strike, with ties
// broken by the closest expiry.
func (d *Deribit) Hedge(ctx context.Context, req Request) error {
	currency := ExchangeCurrency(req.Token)
	if !slices.Contains(validTokens, currency) {
		return fmt.Errorf("%w: %s", ErrInvalidToken, currency)
	}

	instruments, err := d.exchange.GetInstruments(ctx, currency, instrumentKindOption)
	if err != nil {
		return fmt.Errorf("fetch instruments: %w", err)
	}

	target, ok := SelectInstrument(instruments, req.OptionType, req.Strike, req.Expiry)
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrNoInstrument, currency, req.OptionType)
	}

	d.logger.Info("buying option",
		zap.String("instrument", target.InstrumentName),
		zap.String("strike", target.Strike.String()),
		zap.String("amount", req.Amount.String()))

	resp, err := d.exchange.Buy(ctx, target.InstrumentName, req.Amount.String())
	if err != nil {
		return fmt.Errorf("buy %s: %w", target.InstrumentName, err)
	}
	d.logger.Info("option bought",
		zap.String("order_id", resp.Order.OrderID),
		zap.String("state", resp.Order.OrderState))
	return nil
}

// ExchangeCurrency maps wrapped token symbols to the exchange currency.
func ExchangeCurrency(token string) string {
	if mapped, ok := tokenMap[token]; ok {
		return mapped
	}
	return token
}

// SelectInstrument picks among instruments of optionType the one whose strike
// is nearest to strike, then whose expiration is nearest to expiry. The first
// candidate wins a full tie.
func SelectInstrument(instruments []deribit.Instrument, optionType string, strike decimal.Decimal, expiry time.Time) (deribit.Instrument, bool) {
	expiryMs := expiry.UnixMilli()

	var (
		best  deribit.Instrument
		found bool
	)
	for _, ins := range instruments {
		if ins.OptionType != optionType {
			continue
		}
		if !found {
			best, found = ins, true
			continue
		}

		curDist := ins.Strike.Sub(strike).Abs()
		bestDist := best.Strike.Sub(strike).Abs()
		switch curDist.Cmp(bestDist) {
		case -1:
			best = ins
		case 0:
			if absInt64(ins.ExpirationTimestamp-expiryMs) < absInt64(best.ExpirationTimestamp-expiryMs) {
				best = ins
			}
		}
	}
	return best, found
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
