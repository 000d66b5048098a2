// Package evaluator implements the Auction Evaluator (Component D):
// the ordered validation pipeline from a raw AuctionRequest to a
// signed Bid, per §4.D.
package evaluator

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/meshbridge/router-node/amm"
	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/errs"
	"github.com/meshbridge/router-node/oracle"
	"github.com/meshbridge/router-node/ratelimit"
	"github.com/meshbridge/router-node/txtypes"
)

const (
	auctionExpiryBuffer = 30 * time.Second
	bidTTL              = 60 * time.Second
)

// SyncChecker reports whether a chain's indexer is caught up, backed
// by the tracker.
type SyncChecker interface {
	IsSynced(ctx context.Context, chain chainid.ID) (bool, error)
}

// LiquidityReader reads router liquidity and native balance, backed
// by the tracker and a chain adapter respectively.
type LiquidityReader interface {
	GetAssetBalance(ctx context.Context, chain chainid.ID, assetID string) (*big.Int, error)
	GetNativeBalance(ctx context.Context, chain chainid.ID) (*big.Int, error)
}

// ChainConfigSource resolves a chain's configured providers/minGas.
type ChainConfigSource interface {
	ChainConfig(chain chainid.ID) (txtypes.ChainConfig, bool)
}

// PoolSource resolves the swap pool and per-asset balances backing a
// (sendingChain, sendingAsset, receivingChain, receivingAsset) route.
type PoolSource interface {
	// ResolvePool returns the pool and the sending/receiving asset
	// indices within it, or ok=false if no pool covers the pair.
	ResolvePool(sendChain chainid.ID, sendAsset string, recvChain chainid.ID, recvAsset string) (pool txtypes.SwapPool, sendIdx, recvIdx int, ok bool)
	// NormalizedBalances returns the pool's current balances,
	// normalized to 18 decimals with each asset's weight applied, in
	// the same order as pool.Assets.
	NormalizedBalances(ctx context.Context, pool txtypes.SwapPool) ([]*big.Int, error)
}

// Config holds the evaluator's tunables, taken from §6.5's
// configuration surface.
type Config struct {
	RequestLimit   time.Duration
	MaxPriceImpact *big.Int // scaled to ImpactScale
	ImpactScale    *big.Int
	Amplification  *big.Int
	AllowedVAMM    bool
	MinGasWarning  *big.Int // log a warning below this native-balance threshold
}

// Evaluator runs §4.D's 14 ordered checks and produces a signed Bid.
type Evaluator struct {
	cfg        Config
	signingKey *ecdsa.PrivateKey
	router     string

	sync       SyncChecker
	liquidity  LiquidityReader
	chains     ChainConfigSource
	pools      PoolSource
	oracle     *oracle.Oracle
	limiter    *ratelimit.Limiter
}

// New builds an Evaluator. signingKey may be nil only if every call
// site sets request.DryRun = true.
func New(cfg Config, signingKey *ecdsa.PrivateKey, router string, sync SyncChecker, liquidity LiquidityReader, chains ChainConfigSource, pools PoolSource, o *oracle.Oracle, limiter *ratelimit.Limiter) *Evaluator {
	return &Evaluator{
		cfg: cfg, signingKey: signingKey, router: router,
		sync: sync, liquidity: liquidity, chains: chains, pools: pools, oracle: o, limiter: limiter,
	}
}

// Evaluate runs the full ordered pipeline from §4.D and returns a
// signed Bid, or the first check's failure.
func (e *Evaluator) Evaluate(ctx context.Context, req txtypes.AuctionRequest) (*txtypes.Bid, error) {
	const method = "Evaluate"

	// 1. schema validation
	if req.TransactionID == "" || req.User == "" {
		return nil, errs.New(errs.ParamsInvalid, method, "missing transactionId or user")
	}
	if req.SendingChainID == req.ReceivingChainID {
		return nil, errs.New(errs.ParamsInvalid, method, "sendingChainId equals receivingChainId")
	}

	// 2. amount parsable, non-negative, non-zero
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, errs.New(errs.ZeroValueBid, method, "amount must be positive")
	}

	// 3. rate limit
	key := txtypes.RateLimiterKey{
		User:             req.User,
		SendingAssetID:   req.SendingAssetID,
		SendingChainID:   req.SendingChainID,
		ReceivingAssetID: req.ReceivingAssetID,
		ReceivingChainID: req.ReceivingChainID,
	}
	now := time.Now()
	if !e.limiter.Check(key, now) {
		return nil, errs.New(errs.AuctionRateExceeded, method, "rate limit exceeded for this route").
			With("user", req.User)
	}

	// 4. expiry
	if !req.Expiry.After(now.Add(auctionExpiryBuffer)) {
		return nil, errs.New(errs.AuctionExpired, method, "requested expiry is too soon")
	}

	// 5. providers configured
	sendCfg, sendOK := e.chains.ChainConfig(req.SendingChainID)
	recvCfg, recvOK := e.chains.ChainConfig(req.ReceivingChainID)
	if !sendOK || !recvOK || len(sendCfg.Providers) == 0 || len(recvCfg.Providers) == 0 {
		return nil, errs.New(errs.ProvidersNotAvailable, method, "one or both chains have no configured provider")
	}

	// 6, 8, 12, 13: independent reads in parallel (sync state, pool
	// balances, receiver liquidity, native balances).
	type parallelResult struct {
		sendSynced, recvSynced             bool
		balances                           []*big.Int
		recvLiquidity                      *big.Int
		sendNative, recvNative             *big.Int
		gasFee                             *big.Int
		pool                               txtypes.SwapPool
		sendIdx, recvIdx                   int
		err                                error
	}
	var res parallelResult
	var mu sync.Mutex
	recordErr := func(err error) {
		mu.Lock()
		if res.err == nil {
			res.err = err
		}
		mu.Unlock()
	}

	pool, sendIdx, recvIdx, ok := e.pools.ResolvePool(req.SendingChainID, req.SendingAssetID, req.ReceivingChainID, req.ReceivingAssetID)
	if !ok {
		return nil, errs.New(errs.ParamsInvalid, method, "no swap pool covers this asset pair")
	}
	res.pool, res.sendIdx, res.recvIdx = pool, sendIdx, recvIdx

	var wg sync.WaitGroup
	wg.Add(6)

	go func() {
		defer wg.Done()
		synced, err := e.sync.IsSynced(ctx, req.SendingChainID)
		if err != nil {
			recordErr(err)
			return
		}
		mu.Lock()
		res.sendSynced = synced
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		synced, err := e.sync.IsSynced(ctx, req.ReceivingChainID)
		if err != nil {
			recordErr(err)
			return
		}
		mu.Lock()
		res.recvSynced = synced
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		balances, err := e.pools.NormalizedBalances(ctx, pool)
		if err != nil {
			recordErr(err)
			return
		}
		mu.Lock()
		res.balances = balances
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		liq, err := e.liquidity.GetAssetBalance(ctx, req.ReceivingChainID, req.ReceivingAssetID)
		if err != nil {
			recordErr(err)
			return
		}
		mu.Lock()
		res.recvLiquidity = liq
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		bal, err := e.liquidity.GetNativeBalance(ctx, req.SendingChainID)
		if err != nil {
			recordErr(err)
			return
		}
		mu.Lock()
		res.sendNative = bal
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		bal, err := e.liquidity.GetNativeBalance(ctx, req.ReceivingChainID)
		if err != nil {
			recordErr(err)
			return
		}
		mu.Lock()
		res.recvNative = bal
		mu.Unlock()
	}()
	wg.Wait()

	if res.err != nil {
		return nil, res.err
	}

	// 6. both chains synced
	if !res.sendSynced || !res.recvSynced {
		return nil, errs.New(errs.SubgraphNotSynced, method, "indexer is not synced for one or both chains")
	}

	// 7 already resolved above (pool/sendIdx/recvIdx).

	// 9. compute amountReceived via 4.B
	sendAsset := pool.Assets[sendIdx]
	recvAsset := pool.Assets[recvIdx]
	normalizedIn := amm.ScaleDecimals(req.Amount, sendAsset.Decimals, 18)
	ammPool := amm.Pool{Balances: res.balances, Amplification: e.cfg.Amplification, AllowedVAMM: e.cfg.AllowedVAMM}
	rawOut, err := amm.Quote(ammPool, sendIdx, recvIdx, normalizedIn, e.cfg.MaxPriceImpact, e.cfg.ImpactScale)
	if err != nil {
		return nil, err
	}
	amountReceived := amm.ScaleDecimals(rawOut, 18, recvAsset.Decimals)

	// 10. gas fee in receiving token
	gasFeeU256, err := e.oracle.GasFeeInReceiving(ctx, req.SendingChainID, req.SendingAssetID, req.ReceivingChainID, req.ReceivingAssetID, recvAsset.Decimals)
	if err != nil {
		return nil, err
	}
	gasFee := gasFeeU256.ToBig()

	// 11. amountReceived >= gasFee, subtract
	if amountReceived.Cmp(gasFee) < 0 {
		return nil, errs.New(errs.NotEnoughAmount, method, "amount received does not cover gas fee").
			With("amountReceived", amountReceived.String()).With("gasFee", gasFee.String())
	}
	amountReceived = new(big.Int).Sub(amountReceived, gasFee)

	// 12. receiver liquidity
	if res.recvLiquidity.Cmp(amountReceived) < 0 {
		return nil, errs.New(errs.NotEnoughLiquidity, method, "receiver-side liquidity is insufficient").
			With("liquidity", res.recvLiquidity.String()).With("amountReceived", amountReceived.String())
	}

	// 13. native balance >= minGas on both chains
	if res.sendNative.Cmp(sendCfg.MinGas) < 0 || res.recvNative.Cmp(recvCfg.MinGas) < 0 {
		return nil, errs.New(errs.NotEnoughGas, method, "router native balance is below minGas on one or both chains").
			With("sendNative", res.sendNative.String()).With("recvNative", res.recvNative.String())
	}
	if w := e.cfg.MinGasWarning; w != nil && (res.sendNative.Cmp(w) < 0 || res.recvNative.Cmp(w) < 0) {
		log.Warn().Str("sendNative", res.sendNative.String()).Str("recvNative", res.recvNative.String()).
			Str("threshold", w.String()).Msg("router native balance is below the gas warning threshold")
	}

	// 14. update rate-limiter, build and sign bid
	e.limiter.Record(key, now)
	bid := &txtypes.Bid{
		AuctionRequest:    req,
		Router:            e.router,
		AmountReceived:    amountReceived,
		GasFeeInReceiving: gasFee,
		BidExpiry:         now.Add(bidTTL),
	}
	if !req.DryRun {
		sig, err := e.sign(bid)
		if err != nil {
			return nil, errs.Wrap(errs.ConfigurationError, method, err, "failed to sign bid")
		}
		bid.Signature = sig
	}

	return bid, nil
}

// sign produces an ECDSA signature over the bid's keccak256 digest,
// grounded on node/tx_manager.go and node/jobs.go's
// crypto.HexToECDSA/crypto.Sign key handling, retargeted from signing
// a transaction to signing a bid digest.
func (e *Evaluator) sign(bid *txtypes.Bid) ([]byte, error) {
	if e.signingKey == nil {
		return nil, errs.New(errs.ConfigurationError, "sign", "no signing key configured for a non-dry-run bid")
	}
	digest := bidDigest(bid)
	return crypto.Sign(digest[:], e.signingKey)
}

func bidDigest(bid *txtypes.Bid) [32]byte {
	data := bid.TransactionID + bid.User + bid.Router + bid.SendingChainID.String() +
		bid.ReceivingChainID.String() + bid.SendingAssetID + bid.ReceivingAssetID +
		bid.AmountReceived.String() + bid.BidExpiry.String()
	return crypto.Keccak256Hash([]byte(data))
}
