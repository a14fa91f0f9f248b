package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingSetting marks a required configuration value that is absent.
var ErrMissingSetting = errors.New("missing setting")

// NetworkConfig is everything vaultctl needs to drive one chain deployment.
type NetworkConfig struct {
	Name                string        `mapstructure:"name" json:"name"`
	RPCNode             string        `mapstructure:"rpc_node" json:"rpcNode"`
	ChainID             int64         `mapstructure:"chain_id" json:"chainId"`
	Account             string        `mapstructure:"account" json:"account"`
	JSONWallet          string        `mapstructure:"json_wallet" json:"jsonWallet"`
	Passphrase          string        `mapstructure:"passphrase" json:"passphrase,omitempty"`
	PassphraseParameter string        `mapstructure:"passphrase_parameter" json:"passphraseParameter,omitempty"` // SSM parameter name holding the passphrase
	Factory             string        `mapstructure:"factory" json:"factory"`
	Router              string        `mapstructure:"router" json:"router"`
	PythPriceFeed       string        `mapstructure:"pyth_price_feed" json:"pythPriceFeed"`
	CollateralPool      string        `mapstructure:"collateral_pool" json:"collateralPool,omitempty"`
	BatchManager        string        `mapstructure:"batch_manager" json:"batchManager,omitempty"`
	TradingPairs        []TradingPair `mapstructure:"trading_pairs" json:"tradingPairs"`
}

// TradingPair is the static description of a base/quote market.
type TradingPair struct {
	Symbol     string    `mapstructure:"symbol" json:"symbol"`
	BaseToken  string    `mapstructure:"base_token" json:"baseToken"`
	QuoteToken string    `mapstructure:"quote_token" json:"quoteToken"`
	PriceFeed  PriceFeed `mapstructure:"price_feed" json:"priceFeed"`
}

type PriceFeed struct {
	Type     string `mapstructure:"type" json:"type"` // "PYTH"
	ID       string `mapstructure:"id" json:"id,omitempty"`
	Address  string `mapstructure:"address" json:"address,omitempty"`
	Decimals string `mapstructure:"decimals" json:"decimals"`
}

// PriceFeedTypePyth is the only feed type the oracle adapter can fetch.
const PriceFeedTypePyth = "PYTH"

// Validate checks the settings every command needs before touching the chain.
func (n *NetworkConfig) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"rpcNode", n.RPCNode},
		{"jsonWallet", n.JSONWallet},
		{"factory", n.Factory},
		{"router", n.Router},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s is not set", ErrMissingSetting, r.name)
		}
	}
	if n.Passphrase == "" && n.PassphraseParameter == "" {
		return fmt.Errorf("%w: passphrase is not set", ErrMissingSetting)
	}
	return nil
}

// Pair returns the trading pair with the given symbol.
func (n *NetworkConfig) Pair(symbol string) (TradingPair, bool) {
	for _, p := range n.TradingPairs {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return TradingPair{}, false
}

// PairByTokens returns the trading pair whose base and quote token match.
func (n *NetworkConfig) PairByTokens(base, quote string) (TradingPair, bool) {
	for _, p := range n.TradingPairs {
		if strings.EqualFold(p.BaseToken, base) && strings.EqualFold(p.QuoteToken, quote) {
			return p, true
		}
	}
	return TradingPair{}, false
}

// Redacted returns a copy safe to print.
func (n NetworkConfig) Redacted() NetworkConfig {
	if n.Passphrase != "" {
		n.Passphrase = "********"
	}
	return n
}
