package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"vaultctl/config"
	"vaultctl/pkg/hermes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	latest  int
	atTime  []int64
	update  *hermes.PriceUpdate
	err     error
	lastIDs []string
}

func (f *fakeSource) GetLatestPriceUpdates(ctx context.Context, ids []string) (*hermes.PriceUpdate, error) {
	f.latest++
	f.lastIDs = ids
	return f.update, f.err
}

func (f *fakeSource) GetPriceUpdatesAtTimestamp(ctx context.Context, publishTime int64, ids []string) (*hermes.PriceUpdate, error) {
	f.atTime = append(f.atTime, publishTime)
	f.lastIDs = ids
	return f.update, f.err
}

var wethUSDC = config.TradingPair{
	Symbol:     "WETH-USDC",
	BaseToken:  "0x01",
	QuoteToken: "0x02",
	PriceFeed:  config.PriceFeed{Type: "PYTH", ID: "0xfeed", Decimals: "8"},
}

func sampleUpdate(ema string) *hermes.PriceUpdate {
	return &hermes.PriceUpdate{
		Binary: hermes.BinaryUpdate{Encoding: "hex", Data: []string{"504e4155"}},
		Parsed: []hermes.ParsedPriceFeed{{ID: "feed", EMAPrice: hermes.Price{Price: ema, Expo: -8}}},
	}
}

// go test -v --run TestPriceUpdateBranches
func TestPriceUpdateBranches(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	src := &fakeSource{update: sampleUpdate("250000000000")}
	a := New(src).WithClock(func() time.Time { return now })

	_, err := a.Latest(context.Background(), wethUSDC)
	require.NoError(t, err)
	assert.Equal(t, 1, src.latest)
	assert.Equal(t, []string{"0xfeed"}, src.lastIDs)

	expiry := now.Add(-time.Hour)
	_, err = a.PriceUpdate(context.Background(), expiry, wethUSDC)
	require.NoError(t, err)
	assert.Equal(t, []int64{expiry.Unix()}, src.atTime)

	// now itself is not in the future
	_, err = a.PriceUpdate(context.Background(), now, wethUSDC)
	require.NoError(t, err)
	assert.Equal(t, 1, src.latest)
}

// go test -v --run TestPriceUpdateErrors
func TestPriceUpdateErrors(t *testing.T) {
	a := New(&fakeSource{err: errors.New("404")})

	_, err := a.Latest(context.Background(), wethUSDC)
	assert.ErrorIs(t, err, ErrOracleUnavailable)

	chainlink := wethUSDC
	chainlink.PriceFeed.Type = "CHAINLINK"
	_, err = a.Latest(context.Background(), chainlink)
	assert.ErrorIs(t, err, ErrConfig)

	noID := wethUSDC
	noID.PriceFeed.ID = ""
	_, err = a.Latest(context.Background(), noID)
	assert.ErrorIs(t, err, ErrConfig)
}

// go test -v --run TestPayload
func TestPayload(t *testing.T) {
	payload, err := Payload(sampleUpdate("1"))
	require.NoError(t, err)
	require.Len(t, payload, 1)
	assert.Equal(t, []byte("PNAU"), payload[0])

	b64 := &hermes.PriceUpdate{Binary: hermes.BinaryUpdate{Encoding: "base64", Data: []string{"UE5BVQ=="}}}
	payload, err = Payload(b64)
	require.NoError(t, err)
	assert.Equal(t, []byte("PNAU"), payload[0])

	_, err = Payload(&hermes.PriceUpdate{})
	assert.ErrorIs(t, err, ErrOracleUnavailable)

	bad := sampleUpdate("1")
	bad.Binary.Data = []string{"zz"}
	_, err = Payload(bad)
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}

// go test -v --run TestReferencePrice
func TestReferencePrice(t *testing.T) {
	tests := []struct {
		name string
		ema  string
		want string
	}{
		{"whole price", "250000000000", "2500000000"},
		{"fraction rounds up", "250000000001", "2501000000"},
		{"below one rounds to one", "12345", "1000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReferencePrice(sampleUpdate(tt.ema), 8, 6)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := ReferencePrice(&hermes.PriceUpdate{}, 8, 6)
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}

// go test -v --run TestFeedDecimals
func TestFeedDecimals(t *testing.T) {
	d, err := FeedDecimals(wethUSDC)
	require.NoError(t, err)
	assert.Equal(t, 8, d)

	missing := wethUSDC
	missing.PriceFeed.Decimals = ""
	_, err = FeedDecimals(missing)
	assert.ErrorIs(t, err, ErrConfig)
}
