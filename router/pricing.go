package router

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/config"
)

// pushPriceUpdate is the wire shape a price feed client pushes over
// the websocket connection, grounded on the teacher's
// oracle/push/websocket_server.go PriceUpdate message (retargeted
// from dashboard feed broadcast to inbound price ingestion: here the
// router is the subscriber, not the publisher).
type pushPriceUpdate struct {
	ChainID chainid.ID `json:"chainId"`
	AssetID string     `json:"assetId"`
	Value   string     `json:"value"`
}

// configuredPriceReader implements oracle.PriceReader by caching
// prices pushed over a websocket feed, the same transport the
// teacher's push.WebSocketServer uses to fan prices out to
// dashboard clients, here used in the opposite direction to fan a
// price feed into the Oracle.
type configuredPriceReader struct {
	mu     sync.RWMutex
	prices map[chainid.ID]map[string]*uint256.Int

	upgrader websocket.Upgrader
	rest     *restPriceReader
}

func newConfiguredPriceReader(cfg *config.Config) *configuredPriceReader {
	return &configuredPriceReader{
		prices:   map[chainid.ID]map[string]*uint256.Int{},
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		rest:     newRESTPriceReader(cfg.PriceFeedIDs),
	}
}

// TokenPrice prefers a price pushed over the websocket feed; when none
// has arrived yet for (chainID, assetID) it falls back to the REST
// price reader, which holds one entry per assetID regardless of
// chain (an asset's USD price doesn't depend on which chain it lives
// on).
func (p *configuredPriceReader) TokenPrice(ctx context.Context, chainID chainid.ID, assetID string) (*uint256.Int, bool, error) {
	p.mu.RLock()
	byAsset, ok := p.prices[chainID]
	var price *uint256.Int
	if ok {
		price, ok = byAsset[assetID]
	}
	p.mu.RUnlock()
	if ok {
		return price, true, nil
	}
	return p.rest.TokenPrice(ctx, assetID)
}

func (p *configuredPriceReader) set(chainID chainid.ID, assetID string, value *uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prices[chainID] == nil {
		p.prices[chainID] = map[string]*uint256.Int{}
	}
	p.prices[chainID][assetID] = value
}

// ServeHTTP upgrades to a websocket connection and applies every
// pushPriceUpdate frame it receives to the cache until the client
// disconnects.
func (p *configuredPriceReader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("price feed websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var update pushPriceUpdate
		if err := conn.ReadJSON(&update); err != nil {
			return
		}
		value, ok := new(big.Int).SetString(update.Value, 10)
		if !ok {
			log.Warn().Str("value", update.Value).Msg("dropping price update with unparseable value")
			continue
		}
		u256, overflow := uint256.FromBig(value)
		if overflow {
			log.Warn().Str("value", update.Value).Msg("dropping price update that overflows uint256")
			continue
		}
		p.set(update.ChainID, update.AssetID, u256)
	}
}

// adapterGasStation adapts a chains.Adapter's GetGasPrice RPC call
// into the oracle.GasStation interface.
type adapterGasStation struct {
	adapter interface {
		GetGasPrice(ctx context.Context) (*big.Int, error)
	}
}

func (a *adapterGasStation) SuggestGasPrice(ctx context.Context, chainID chainid.ID) (*uint256.Int, error) {
	price, err := a.adapter.GetGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	u256, overflow := uint256.FromBig(price)
	if overflow {
		return nil, err
	}
	return u256, nil
}

// restPriceReader is a fallback oracle.PriceReader backing the
// websocket push cache, adapted from the teacher's
// adapters/coingecko.go CoingeckoAdapter: same endpoint and response
// shape, retargeted from a float64 dashboard value into an 18-decimal
// fixed-point uint256.Int so it can feed Component A directly.
type restPriceReader struct {
	client  *http.Client
	feedIDs map[string]string // assetId -> coingecko coin id
}

func newRESTPriceReader(feedIDs map[string]string) *restPriceReader {
	return &restPriceReader{
		client:  &http.Client{Timeout: 15 * time.Second},
		feedIDs: feedIDs,
	}
}

func (r *restPriceReader) TokenPrice(ctx context.Context, assetID string) (*uint256.Int, bool, error) {
	coinID, ok := r.feedIDs[assetID]
	if !ok {
		return nil, false, nil
	}

	url := fmt.Sprintf("https://api.coingecko.com/api/v3/simple/price?ids=%s&vs_currencies=usd", coinID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var result map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, err
	}
	price, ok := result[coinID]["usd"]
	if !ok {
		return nil, false, nil
	}

	log.Debug().Str("assetId", assetID).Float64("price", price).Msg("fetched price from coingecko")
	e18 := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	scaledFloat := new(big.Float).Mul(big.NewFloat(price), e18)
	scaled, _ := scaledFloat.Int(nil)
	u256, overflow := uint256.FromBig(scaled)
	if overflow {
		return nil, false, fmt.Errorf("price for %s overflows uint256", assetID)
	}
	return u256, true, nil
}
