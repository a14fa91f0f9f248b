// Package oracle turns Hermes price updates into the attestation payloads and
// reference prices the vault contracts consume.
package oracle

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"vaultctl/config"
	"vaultctl/pkg/finance"
	"vaultctl/pkg/hermes"

	"github.com/shopspring/decimal"
)

var (
	// ErrConfig marks a trading pair whose price feed cannot be fetched.
	ErrConfig = errors.New("configuration error")
	// ErrOracleUnavailable marks a failed or unusable price update.
	ErrOracleUnavailable = errors.New("oracle unavailable")
)

// latestOffset pushes a "latest" request past any publish time.
const latestOffset = 24 * time.Hour

// Source fetches raw price updates.
type Source interface {
	GetLatestPriceUpdates(ctx context.Context, ids []string) (*hermes.PriceUpdate, error)
	GetPriceUpdatesAtTimestamp(ctx context.Context, publishTime int64, ids []string) (*hermes.PriceUpdate, error)
}

type Adapter struct {
	src Source
	now func() time.Time
}

func New(src Source) *Adapter {
	return &Adapter{src: src, now: time.Now}
}

// WithClock replaces the adapter's notion of now.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

// PriceUpdate returns the update for pair at target. Targets in the future
// resolve to the latest update; anything else is fetched at target exactly.
func (a *Adapter) PriceUpdate(ctx context.Context, target time.Time, pair config.TradingPair) (*hermes.PriceUpdate, error) {
	id, err := feedID(pair)
	if err != nil {
		return nil, err
	}

	var update *hermes.PriceUpdate
	if target.After(a.now()) {
		update, err = a.src.GetLatestPriceUpdates(ctx, []string{id})
	} else {
		update, err = a.src.GetPriceUpdatesAtTimestamp(ctx, target.Unix(), []string{id})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s at %d: %v", ErrOracleUnavailable, pair.Symbol, target.Unix(), err)
	}
	return update, nil
}

// Latest returns the most recent update for pair.
func (a *Adapter) Latest(ctx context.Context, pair config.TradingPair) (*hermes.PriceUpdate, error) {
	return a.PriceUpdate(ctx, a.now().Add(latestOffset), pair)
}

// Payload returns the attestation bytes to attach to a contract call.
func Payload(update *hermes.PriceUpdate) ([][]byte, error) {
	if update == nil || len(update.Binary.Data) == 0 || update.Binary.Data[0] == "" {
		return nil, fmt.Errorf("%w: price update carries no attestation", ErrOracleUnavailable)
	}

	raw := update.Binary.Data[0]
	var (
		data []byte
		err  error
	)
	if update.Binary.Encoding == "base64" {
		data, err = base64.StdEncoding.DecodeString(raw)
	} else {
		data, err = hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode attestation: %v", ErrOracleUnavailable, err)
	}
	return [][]byte{data}, nil
}

// ReferencePrice is ceil(ema_price / 10^feedDecimals) scaled to
// linkedPriceDecimals. Rounding up over-approves and is relied upon.
func ReferencePrice(update *hermes.PriceUpdate, feedDecimals, linkedPriceDecimals int) (*big.Int, error) {
	if update == nil || len(update.Parsed) == 0 {
		return nil, fmt.Errorf("%w: price update carries no parsed feed", ErrOracleUnavailable)
	}

	ema, err := decimal.NewFromString(update.Parsed[0].EMAPrice.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: ema price %q: %v", ErrOracleUnavailable, update.Parsed[0].EMAPrice.Price, err)
	}

	rate := ema.Shift(int32(-feedDecimals)).Ceil()
	return finance.ParseUnits(rate.String(), linkedPriceDecimals)
}

// FeedDecimals parses the pair's configured feed decimals.
func FeedDecimals(pair config.TradingPair) (int, error) {
	if pair.PriceFeed.Decimals == "" {
		return 0, fmt.Errorf("%w: priceFeed.decimals is not set for %s", ErrConfig, pair.Symbol)
	}
	d, err := strconv.Atoi(pair.PriceFeed.Decimals)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: priceFeed.decimals %q is invalid for %s", ErrConfig, pair.PriceFeed.Decimals, pair.Symbol)
	}
	return d, nil
}

func feedID(pair config.TradingPair) (string, error) {
	if !strings.EqualFold(pair.PriceFeed.Type, config.PriceFeedTypePyth) {
		return "", fmt.Errorf("%w: price feed type %q is not supported for %s", ErrConfig, pair.PriceFeed.Type, pair.Symbol)
	}
	if pair.PriceFeed.ID == "" {
		return "", fmt.Errorf("%w: price feed id is not set for %s", ErrConfig, pair.Symbol)
	}
	return pair.PriceFeed.ID, nil
}
