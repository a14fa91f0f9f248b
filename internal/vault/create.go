package vault

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"vaultctl/config"
	"vaultctl/internal/hedge"
	"vaultctl/internal/ledger"
	"vaultctl/internal/oracle"
	"vaultctl/pkg/finance"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const createVaultGasLimit = 3_000_000

// CreateOptions are the operator inputs of a new vault. Amounts are decimal
// strings in human units.
type CreateOptions struct {
	TradingPair        string
	IsBuyLow           bool
	LinkedPrice        string
	Quantity           string
	YieldPercentage    string
	Expiry             uint64
	UseCollateralPool  bool
	UseNativeToken     bool
	VaultSeriesVersion uint64
	Signer             common.Address
	Hedge              bool
}

// checkPair validates the pair's static settings; the first failure wins.
func (m *Manager) checkPair(symbol string) (config.TradingPair, error) {
	if symbol == "" {
		return config.TradingPair{}, fmt.Errorf("%w: tradingPair is not set", ErrConfig)
	}
	pair, ok := m.network.Pair(symbol)
	if !ok {
		return config.TradingPair{}, fmt.Errorf("%w: tradingPair %s is not valid", ErrValidation, symbol)
	}
	if pair.BaseToken == "" {
		return pair, fmt.Errorf("%w: baseToken is not set for %s", ErrConfig, symbol)
	}
	if pair.QuoteToken == "" {
		return pair, fmt.Errorf("%w: quoteToken is not set for %s", ErrConfig, symbol)
	}
	if pair.PriceFeed.Decimals == "" {
		return pair, fmt.Errorf("%w: decimals is not set for %s", ErrConfig, symbol)
	}
	return pair, nil
}

// buildCreateParams validates the pair and converts the operator inputs into
// on-chain units. It reads token decimals in one batch.
func (m *Manager) buildCreateParams(ctx context.Context, opts CreateOptions) (ledger.CreateVaultParams, *createContext, error) {
	pair, err := m.checkPair(opts.TradingPair)
	if err != nil {
		return ledger.CreateVaultParams{}, nil, err
	}
	feedDecimals, err := oracle.FeedDecimals(pair)
	if err != nil {
		return ledger.CreateVaultParams{}, nil, err
	}

	base := common.HexToAddress(pair.BaseToken)
	quote := common.HexToAddress(pair.QuoteToken)

	// Read token decimals
	b, err := m.ledger.NewBatch()
	if err != nil {
		return ledger.CreateVaultParams{}, nil, err
	}
	baseMeta := b.TokenMeta(base)
	quoteMeta := b.TokenMeta(quote)
	if err := b.Flush(ctx); err != nil {
		return ledger.CreateVaultParams{}, nil, fmt.Errorf("read token decimals: %w", err)
	}
	if baseMeta.Err != nil {
		return ledger.CreateVaultParams{}, nil, fmt.Errorf("%w: baseToken %s: %v", ErrConfig, pair.BaseToken, baseMeta.Err)
	}
	if quoteMeta.Err != nil {
		return ledger.CreateVaultParams{}, nil, fmt.Errorf("%w: quoteToken %s: %v", ErrConfig, pair.QuoteToken, quoteMeta.Err)
	}

	baseDecimals := int(baseMeta.Meta.Decimals)
	quoteDecimals := int(quoteMeta.Meta.Decimals)
	investmentDecimals := baseDecimals
	if opts.IsBuyLow {
		investmentDecimals = quoteDecimals
	}
	linkedPriceDecimals := finance.LinkedPriceDecimals(baseDecimals, quoteDecimals)
	if linkedPriceDecimals < 0 {
		return ledger.CreateVaultParams{}, nil, fmt.Errorf("%w: unsupported decimals %d/%d for %s", ErrConfig, baseDecimals, quoteDecimals, pair.Symbol)
	}

	linkedOraclePrice, err := parseInput("linkedPrice", opts.LinkedPrice, feedDecimals)
	if err != nil {
		return ledger.CreateVaultParams{}, nil, err
	}
	yieldValue, err := parseInput("yieldPercentage", opts.YieldPercentage, finance.YieldDecimals)
	if err != nil {
		return ledger.CreateVaultParams{}, nil, err
	}
	quantity, err := parseInput("quantity", opts.Quantity, investmentDecimals)
	if err != nil {
		return ledger.CreateVaultParams{}, nil, err
	}
	linkedPrice, err := parseInput("linkedPrice", opts.LinkedPrice, linkedPriceDecimals)
	if err != nil {
		return ledger.CreateVaultParams{}, nil, err
	}
	if linkedPrice.Sign() == 0 {
		return ledger.CreateVaultParams{}, nil, fmt.Errorf("%w: linkedPrice must be positive", ErrValidation)
	}

	params := ledger.CreateVaultParams{
		Owner:              m.ledger.Account(),
		BaseToken:          base,
		QuoteToken:         quote,
		Expiry:             new(big.Int).SetUint64(opts.Expiry),
		LinkedOraclePrice:  linkedOraclePrice,
		YieldValue:         yieldValue,
		IsBuyLow:           opts.IsBuyLow,
		Quantity:           quantity,
		UseCollateralPool:  opts.UseCollateralPool,
		UseNativeToken:     opts.UseNativeToken,
		VaultSeriesVersion: new(big.Int).SetUint64(opts.VaultSeriesVersion),
		Signer:             opts.Signer,
	}
	cc := &createContext{
		pair:                pair,
		feedDecimals:        feedDecimals,
		linkedPriceDecimals: linkedPriceDecimals,
		linkedPrice:         linkedPrice,
	}
	return params, cc, nil
}

// createContext carries derived values from buildCreateParams to the write.
type createContext struct {
	pair                config.TradingPair
	feedDecimals        int
	linkedPriceDecimals int
	linkedPrice         *big.Int
}

// CreateVault deploys a new vault and returns its address.
func (m *Manager) CreateVault(ctx context.Context, opts CreateOptions) (common.Address, error) {
	params, cc, err := m.buildCreateParams(ctx, opts)
	if err != nil {
		return common.Address{}, err
	}

	factory := m.ledger.Factory()
	feeParams, err := factory.PresetFeeParams(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("read preset fee params: %w", err)
	}

	// Fetch the current price and derive the approval reference price
	update, err := m.oracle.Latest(ctx, cc.pair)
	if err != nil {
		return common.Address{}, err
	}
	payload, err := oracle.Payload(update)
	if err != nil {
		return common.Address{}, err
	}
	referencePrice, err := oracle.ReferencePrice(update, cc.feedDecimals, cc.linkedPriceDecimals)
	if err != nil {
		return common.Address{}, err
	}

	if !opts.UseCollateralPool {
		amounts := finance.CalculateTokenAmounts(params.Quantity, params.YieldValue, params.IsBuyLow,
			feeParams.TradingFeeRate, referencePrice, cc.linkedPrice)

		investmentToken, linkedToken := params.BaseToken, params.QuoteToken
		if params.IsBuyLow {
			investmentToken, linkedToken = params.QuoteToken, params.BaseToken
		}

		m.logger.Info("approving vault funding",
			zap.String("pair", cc.pair.Symbol),
			zap.String("linked_amount", amounts.LinkedTokenAmount.String()),
			zap.String("investment_amount", amounts.InvestmentTokenAmount.String()))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return m.approve(gctx, linkedToken, factory.Address(), amounts.LinkedTokenAmount, nil)
		})
		g.Go(func() error {
			return m.approve(gctx, investmentToken, factory.Address(), amounts.InvestmentTokenAmount, nil)
		})
		if err := g.Wait(); err != nil {
			return common.Address{}, err
		}
	}

	updateFee, err := m.ledger.PriceFeed().UpdateFee(ctx, payload)
	if err != nil {
		return common.Address{}, fmt.Errorf("read update fee: %w", err)
	}

	receipt, err := m.submit(ctx, "createVault", nil, func() (*ledger.Receipt, error) {
		return factory.CreateVault(ctx, params, payload, ledger.TxOptions{Value: updateFee, GasLimit: createVaultGasLimit})
	})
	if err != nil {
		return common.Address{}, err
	}

	// Recover the vault address from the creation event
	event, ok := receipt.FindEvent("VaultCreated")
	if !ok {
		return common.Address{}, fmt.Errorf("%w: VaultCreated in tx %s", ErrEventNotFound, receipt.TxHash.Hex())
	}
	vaultAddr, ok := event.Args["vaultAddress"].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: VaultCreated without vaultAddress in tx %s", ErrEventNotFound, receipt.TxHash.Hex())
	}
	m.logger.Info("vault created", zap.String("vault", vaultAddr.Hex()), zap.String("tx", receipt.TxHash.Hex()))

	if opts.UseCollateralPool {
		if err := m.approveCollateral(ctx, vaultAddr); err != nil {
			return vaultAddr, err
		}
	}

	if opts.Hedge {
		m.hedge(ctx, opts, cc)
	}
	return vaultAddr, nil
}

// hedge never fails the creation; errors are logged.
func (m *Manager) hedge(ctx context.Context, opts CreateOptions, cc *createContext) {
	if m.hedger == nil {
		m.logger.Warn("hedge requested but no hedger is configured")
		return
	}

	strike, err := decimal.NewFromString(opts.LinkedPrice)
	if err != nil {
		m.logger.Warn("hedge skipped", zap.Error(err))
		return
	}
	amount, err := decimal.NewFromString(opts.Quantity)
	if err != nil {
		m.logger.Warn("hedge skipped", zap.Error(err))
		return
	}

	req := hedge.Request{
		Token:      strings.SplitN(cc.pair.Symbol, "-", 2)[0],
		Strike:     strike,
		Expiry:     time.Unix(int64(opts.Expiry), 0),
		Amount:     amount,
		OptionType: hedge.OptionTypeFor(opts.IsBuyLow),
	}
	if err := m.hedger.Hedge(ctx, req); err != nil {
		m.logger.Error("hedge failed", zap.String("pair", cc.pair.Symbol), zap.Error(err))
	}
}

func parseInput(field, value string, decimals int) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrValidation, field)
	}
	v, err := finance.ParseUnits(value, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrValidation, field, err)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative", ErrValidation, field)
	}
	return v, nil
}
