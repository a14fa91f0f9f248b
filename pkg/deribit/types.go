package deribit

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Response is the JSON-RPC envelope of Deribit's v2 HTTP API.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"` // Delay decoding
	Error   *APIError       `json:"error,omitempty"`
	UsIn    int64           `json:"usIn"`  // Request receive time (microseconds)
	UsOut   int64           `json:"usOut"` // Response send time (microseconds)
}

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deribit error %d: %s", e.Code, e.Message)
}

// Instrument is one tradable contract.
type Instrument struct {
	InstrumentName      string          `json:"instrument_name"` // e.g. "ETH-27JUN25-2500-C"
	IsActive            bool            `json:"is_active"`
	Kind                string          `json:"kind"` // "option", "future", ...
	BaseCurrency        string          `json:"base_currency"`
	QuoteCurrency       string          `json:"quote_currency"`
	SettlementCurrency  string          `json:"settlement_currency"`
	Strike              decimal.Decimal `json:"strike"`
	ExpirationTimestamp int64           `json:"expiration_timestamp"` // milliseconds since epoch
	OptionType          string          `json:"option_type"`          // "call" or "put"
}

type Order struct {
	OrderID        string          `json:"order_id"`
	OrderState     string          `json:"order_state"`
	InstrumentName string          `json:"instrument_name"`
	Amount         decimal.Decimal `json:"amount"`
	Price          decimal.Decimal `json:"price"`
	Direction      string          `json:"direction"`
}

type BuyResponse struct {
	Order Order `json:"order"`
}
