package pricewatch

import (
	"vaultctl/config"
	"vaultctl/pkg/hermes"

	"go.uber.org/zap"
)

// SymbolIndex maps normalised feed ids to pair symbols.
type SymbolIndex map[string]string

// IndexPairs builds a SymbolIndex from the Pyth pairs of a network.
func IndexPairs(pairs []config.TradingPair) SymbolIndex {
	idx := make(SymbolIndex, len(pairs))
	for _, p := range pairs {
		if p.PriceFeed.ID == "" {
			continue
		}
		idx[NormalizeFeedID(p.PriceFeed.ID)] = p.Symbol
	}
	return idx
}

// FeedIDs returns the ids to subscribe to.
func (idx SymbolIndex) FeedIDs() []string {
	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	return ids
}

// MakeMessageHandler returns a stream handler that sends each price update of
// a known feed to out and passes it to onQuote, if set.
func MakeMessageHandler(logger *zap.Logger, out chan<- Quote, idx SymbolIndex, onQuote func(Quote)) func(hermes.StreamMessage) {
	return func(msg hermes.StreamMessage) {
		if msg.Type != "price_update" || msg.PriceFeed == nil {
			return // Ignore subscription responses
		}

		id := NormalizeFeedID(msg.PriceFeed.ID)
		symbol, ok := idx[id]
		if !ok {
			logger.Debug("ignoring unknown feed", zap.String("feed", id))
			return
		}

		q := Quote{
			FeedID:      id,
			Symbol:      symbol,
			Price:       msg.PriceFeed.Price.Price,
			EMAPrice:    msg.PriceFeed.EMAPrice.Price,
			Expo:        msg.PriceFeed.Price.Expo,
			PublishTime: msg.PriceFeed.Price.PublishTime,
		}
		out <- q
		if onQuote != nil {
			onQuote(q)
		}
	}
}
