// Package pricewatch keeps the latest streamed prices of the configured
// trading pairs in memory.
package pricewatch

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Quote is one streamed price observation of a feed.
type Quote struct {
	FeedID      string `json:"feedId"`      // normalised feed id (lowercase, no 0x)
	Symbol      string `json:"symbol"`      // trading pair symbol, e.g. "WETH-USDC"
	Price       string `json:"price"`       // raw integer price
	EMAPrice    string `json:"emaPrice"`    // raw integer EMA price
	Expo        int    `json:"expo"`        // price = Price * 10^Expo
	PublishTime int64  `json:"publishTime"` // seconds since epoch
}

// Value is the human price.
func (q Quote) Value() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(q.Price)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Shift(int32(q.Expo)), nil
}

// NormalizeFeedID lowercases id and strips any 0x prefix.
func NormalizeFeedID(id string) string {
	return strings.TrimPrefix(strings.ToLower(id), "0x")
}

type Store struct {
	globalMu sync.RWMutex
	data     map[string]*feedStore
	depth    int
}

type feedStore struct {
	mu     sync.Mutex
	quotes []Quote
}

// NewStore keeps up to depth quotes per feed. depth < 1 keeps one.
func NewStore(depth int) *Store {
	if depth < 1 {
		depth = 1
	}
	return &Store{
		data:  make(map[string]*feedStore),
		depth: depth,
	}
}

// Add records q. Quotes older than the feed's latest are dropped.
func (s *Store) Add(q Quote) {
	q.FeedID = NormalizeFeedID(q.FeedID)

	// Fast path: lock per-feed store only
	s.globalMu.RLock()
	store, ok := s.data[q.FeedID]
	s.globalMu.RUnlock()

	if !ok {
		s.globalMu.Lock()
		if store, ok = s.data[q.FeedID]; !ok {
			store = &feedStore{}
			s.data[q.FeedID] = store
		}
		s.globalMu.Unlock()
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if n := len(store.quotes); n > 0 && store.quotes[n-1].PublishTime > q.PublishTime {
		return
	}
	store.quotes = append(store.quotes, q)
	if len(store.quotes) > s.depth {
		store.quotes = append(store.quotes[:0], store.quotes[len(store.quotes)-s.depth:]...)
	}
}

// StartWorker drains ch into the store. The returned channel is closed once
// ch is closed and drained.
func (s *Store) StartWorker(ch <-chan Quote) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for q := range ch {
			s.Add(q)
		}
	}()
	return done
}

// Latest returns the newest quote of a feed.
func (s *Store) Latest(feedID string) (Quote, bool) {
	s.globalMu.RLock()
	store, ok := s.data[NormalizeFeedID(feedID)]
	s.globalMu.RUnlock()
	if !ok {
		return Quote{}, false
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.quotes) == 0 {
		return Quote{}, false
	}
	return store.quotes[len(store.quotes)-1], true
}

// History returns a copy of the retained quotes of a feed, oldest first.
func (s *Store) History(feedID string) []Quote {
	s.globalMu.RLock()
	store, ok := s.data[NormalizeFeedID(feedID)]
	s.globalMu.RUnlock()
	if !ok {
		return nil
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	cp := make([]Quote, len(store.quotes))
	copy(cp, store.quotes)
	return cp
}

// LatestAll returns the newest quote of every feed.
func (s *Store) LatestAll() map[string]Quote {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	result := make(map[string]Quote, len(s.data))
	for id, store := range s.data {
		store.mu.Lock()
		if n := len(store.quotes); n > 0 {
			result[id] = store.quotes[n-1]
		}
		store.mu.Unlock()
	}
	return result
}
