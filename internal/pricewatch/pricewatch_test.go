package pricewatch

import (
	"sync"
	"testing"
	"time"

	"vaultctl/config"
	"vaultctl/pkg/hermes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// go test -v --run TestStoreKeepsLatest
func TestStoreKeepsLatest(t *testing.T) {
	s := NewStore(2)
	s.Add(Quote{FeedID: "0xABC", Price: "1", PublishTime: 10})
	s.Add(Quote{FeedID: "abc", Price: "2", PublishTime: 11})
	s.Add(Quote{FeedID: "abc", Price: "0", PublishTime: 5}) // stale
	s.Add(Quote{FeedID: "abc", Price: "3", PublishTime: 12})

	latest, ok := s.Latest("0xabc")
	require.True(t, ok)
	assert.Equal(t, "3", latest.Price)

	history := s.History("abc")
	require.Len(t, history, 2)
	assert.Equal(t, "2", history[0].Price)

	_, ok = s.Latest("missing")
	assert.False(t, ok)
	assert.Len(t, s.LatestAll(), 1)
}

// go test -v --run TestStoreConcurrentAdd
func TestStoreConcurrentAdd(t *testing.T) {
	s := NewStore(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(Quote{FeedID: "feed", PublishTime: int64(i)})
		}(i)
	}
	wg.Wait()

	_, ok := s.Latest("feed")
	assert.True(t, ok)
}

// go test -v --run TestStartWorker
func TestStartWorker(t *testing.T) {
	s := NewStore(1)
	ch := make(chan Quote)
	done := s.StartWorker(ch)
	ch <- Quote{FeedID: "feed", Price: "7", PublishTime: 1}
	close(ch)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	q, ok := s.Latest("feed")
	require.True(t, ok)
	assert.Equal(t, "7", q.Price)
}

// go test -v --run TestQuoteValue
func TestQuoteValue(t *testing.T) {
	v, err := Quote{Price: "250012345678", Expo: -8}.Value()
	require.NoError(t, err)
	assert.Equal(t, "2500.12345678", v.String())
}

// go test -v --run TestMessageHandler
func TestMessageHandler(t *testing.T) {
	idx := IndexPairs([]config.TradingPair{
		{Symbol: "WETH-USDC", PriceFeed: config.PriceFeed{Type: "PYTH", ID: "0xFF61"}},
		{Symbol: "NOFEED"},
	})
	assert.Equal(t, []string{"ff61"}, idx.FeedIDs())

	s := NewStore(1)
	quotes := make(chan Quote, 4)
	done := s.StartWorker(quotes)
	var seen []Quote
	handle := MakeMessageHandler(zap.NewNop(), quotes, idx, func(q Quote) { seen = append(seen, q) })

	handle(hermes.StreamMessage{Type: "response", Status: "success"})
	handle(hermes.StreamMessage{Type: "price_update", PriceFeed: &hermes.StreamPriceFeed{ID: "0000"}})
	handle(hermes.StreamMessage{Type: "price_update", PriceFeed: &hermes.StreamPriceFeed{
		ID:       "ff61",
		Price:    hermes.Price{Price: "250000000000", Expo: -8, PublishTime: 1700000000},
		EMAPrice: hermes.Price{Price: "249900000000", Expo: -8},
	}})

	close(quotes)
	<-done

	require.Len(t, seen, 1)
	assert.Equal(t, "WETH-USDC", seen[0].Symbol)
	q, ok := s.Latest("ff61")
	require.True(t, ok)
	assert.Equal(t, "249900000000", q.EMAPrice)
}
