// Package oracle implements the Price & Gas Oracle (Component A):
// token prices, gas prices, and fee-in-receiving-asset conversion for
// the actions the router submits on chain.
package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/errs"
)

// Action identifies an on-chain action kind for gas estimation.
type Action string

const (
	ActionPrepare Action = "prepare"
	ActionFulfill Action = "fulfill"
	ActionCancel  Action = "cancel"
)

// Side identifies which leg of a transfer an action applies to.
type Side string

const (
	SideSending   Side = "sending"
	SideReceiving Side = "receiving"
)

// gasEstimate is the static per-action gas-unit table, grounded on
// the teacher's hardcoded per-call gas limits (chains/evm/adapter.go
// uses 500000/300000 literals at each call site instead of a table).
var gasEstimate = map[Action]uint64{
	ActionPrepare: 150_000,
	ActionFulfill: 120_000,
	ActionCancel:  100_000,
}

// PriceReader reads a token's price from an on-chain price oracle
// view call. Implementations are supplied by the RPC/chain-adapter
// layer; this package never dials an RPC itself.
type PriceReader interface {
	// TokenPrice returns the USD price of assetId on chainId scaled
	// to 18 decimals. ok is false when the chain has no configured
	// price oracle.
	TokenPrice(ctx context.Context, chainID chainid.ID, assetID string) (price *uint256.Int, ok bool, err error)
}

// GasStation reads a gas price recommendation for a chain, e.g. from
// a configured gas station service or the RPC node's own suggestion.
type GasStation interface {
	SuggestGasPrice(ctx context.Context, chainID chainid.ID) (*uint256.Int, error)
}

// chainCache is the per-chain cached gas price. There is no timer:
// GasPrice refreshes it on read once it is older than updateEvery
// (12s, the interval node/gas_pricer.go uses for its ticker).
type chainCache struct {
	gasPrice   *uint256.Int
	lastUpdate time.Time
}

// Oracle aggregates price and gas information across all configured
// chains.
type Oracle struct {
	mu          sync.RWMutex
	prices      PriceReader
	stations    map[chainid.ID][]GasStation
	decimals    map[chainid.ID]map[string]uint8
	updateEvery time.Duration
	cache       map[chainid.ID]*chainCache
}

// New builds an Oracle. stations maps a chain to its configured gas
// stations in priority order (§6.5 chainConfig.gasStations); a chain
// absent from the map has no gas price source, and GasPrice fails for
// it.
func New(prices PriceReader, stations map[chainid.ID][]GasStation) *Oracle {
	return &Oracle{
		prices:      prices,
		stations:    stations,
		decimals:    map[chainid.ID]map[string]uint8{},
		updateEvery: 12 * time.Second,
		cache:       map[chainid.ID]*chainCache{},
	}
}

// RegisterDecimals records the on-chain decimals for an asset. GasFee
// does not read these; it takes the output decimals as an argument.
func (o *Oracle) RegisterDecimals(chainID chainid.ID, assetID string, decimals uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.decimals[chainID]
	if !ok {
		m = map[string]uint8{}
		o.decimals[chainID] = m
	}
	m[assetID] = decimals
}

// TokenPrice reads the configured price oracle for chainId/assetId.
// Fails with ChainNotSupported when the chain has no configured
// oracle at all.
func (o *Oracle) TokenPrice(ctx context.Context, chainID chainid.ID, assetID string) (*uint256.Int, error) {
	price, ok, err := o.prices.TokenPrice(ctx, chainID, assetID)
	if err != nil {
		return nil, errs.Wrap(errs.RpcError, "TokenPrice", err, "price oracle view call failed")
	}
	if !ok {
		return nil, errs.New(errs.ChainNotSupported, "TokenPrice", "no price oracle configured for chain").
			With("chainId", chainID.String())
	}
	return price, nil
}

// GasPrice returns the current gas price for chainId, trying each
// configured gas station in order and falling back to the RPC's own
// suggestion (whichever GasStation was registered last). Fails with
// RpcError if every source fails.
func (o *Oracle) GasPrice(ctx context.Context, chainID chainid.ID) (*uint256.Int, error) {
	o.mu.RLock()
	cached, ok := o.cache[chainID]
	o.mu.RUnlock()
	if ok && time.Since(cached.lastUpdate) < o.updateEvery {
		return cached.gasPrice, nil
	}

	stations := o.stations[chainID]
	var lastErr error
	for _, s := range stations {
		price, err := s.SuggestGasPrice(ctx, chainID)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("chain", chainID.String()).Msg("gas station failed, trying next source")
			continue
		}
		o.mu.Lock()
		o.cache[chainID] = &chainCache{gasPrice: price, lastUpdate: time.Now()}
		o.mu.Unlock()
		return price, nil
	}

	if lastErr == nil {
		lastErr = errs.New(errs.ProviderNotConfigured, "GasPrice", "no gas station configured for chain").
			With("chainId", chainID.String())
	}
	return nil, errs.Wrap(errs.RpcError, "GasPrice", lastErr, "all gas price sources failed")
}

// GasFee returns gasPrice * gasEstimate(action) * ethPrice / tokenPrice,
// scaled to decimals. Returns 0 (no error) if the chain lacks a price
// oracle, per §4.A ("free quote" when unpriced). Division is floor,
// as uint256.Int.Div always is.
func (o *Oracle) GasFee(ctx context.Context, chainID chainid.ID, assetID string, decimals uint8, action Action, side Side) (*uint256.Int, error) {
	gasPrice, err := o.GasPrice(ctx, chainID)
	if err != nil {
		return nil, err
	}

	nativePrice, err := o.TokenPrice(ctx, chainID, "native")
	if err != nil {
		if errs.As(err, errs.ChainNotSupported) {
			return uint256.NewInt(0), nil
		}
		return nil, err
	}

	tokenPrice, err := o.TokenPrice(ctx, chainID, assetID)
	if err != nil {
		if errs.As(err, errs.ChainNotSupported) {
			return uint256.NewInt(0), nil
		}
		return nil, err
	}
	if tokenPrice.IsZero() {
		return nil, errs.New(errs.ChainNotSupported, "GasFee", "token price is zero").
			With("chainId", chainID.String()).With("assetId", assetID)
	}

	units, ok := gasEstimate[action]
	if !ok {
		return nil, errs.New(errs.ParamsInvalid, "GasFee", "unknown action kind").With("action", string(action))
	}

	// costWei = gasPrice * gasUnits, scaled to USD via nativePrice,
	// then converted into the token's own units via tokenPrice, and
	// finally rescaled from the 18-decimal working precision to the
	// asset's native decimals.
	cost := new(uint256.Int).Mul(gasPrice, uint256.NewInt(units))
	costUSD := new(uint256.Int).Mul(cost, nativePrice)

	tokenAmount := new(uint256.Int).Div(costUSD, tokenPrice)

	return scaleDecimals(tokenAmount, 18, decimals), nil
}

// GasFeeInReceiving sums the sender-side fulfill fee and the
// receiver-side prepare fee, both expressed in the receiving asset's
// decimals, per §4.A.
func (o *Oracle) GasFeeInReceiving(ctx context.Context, sendChain chainid.ID, sendAsset string, recvChain chainid.ID, recvAsset string, outputDecimals uint8) (*uint256.Int, error) {
	senderFulfill, err := o.GasFee(ctx, sendChain, sendAsset, outputDecimals, ActionFulfill, SideSending)
	if err != nil {
		return nil, err
	}
	receiverPrepare, err := o.GasFee(ctx, recvChain, recvAsset, outputDecimals, ActionPrepare, SideReceiving)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Add(senderFulfill, receiverPrepare), nil
}

// scaleDecimals rescales an 18-decimal-normalized amount to `to`
// decimals, flooring on the way down.
func scaleDecimals(amount *uint256.Int, from, to uint8) *uint256.Int {
	if from == to {
		return amount
	}
	if to > from {
		factor := pow10(to - from)
		return new(uint256.Int).Mul(amount, factor)
	}
	factor := pow10(from - to)
	return new(uint256.Int).Div(amount, factor)
}

func pow10(n uint8) *uint256.Int {
	result := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		result = new(uint256.Int).Mul(result, ten)
	}
	return result
}
