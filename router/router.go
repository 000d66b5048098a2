// Package router wires every Routing Core component into a runnable
// daemon: oracle, amm-backed liquidity model, subgraph tracker,
// auction evaluator, lifecycle state machine, chain dispatcher,
// storage, messaging, and the admin HTTP surface. Grounded on the
// teacher's node/node.go ObscuraNode, which plays the same role for
// obscura's price-feed node.
package router

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/meshbridge/router-node/api"
	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/chains"
	"github.com/meshbridge/router-node/chains/evm"
	"github.com/meshbridge/router-node/config"
	"github.com/meshbridge/router-node/dispatcher"
	"github.com/meshbridge/router-node/errs"
	"github.com/meshbridge/router-node/evaluator"
	"github.com/meshbridge/router-node/lifecycle"
	"github.com/meshbridge/router-node/messaging"
	"github.com/meshbridge/router-node/oracle"
	"github.com/meshbridge/router-node/ratelimit"
	"github.com/meshbridge/router-node/storage"
	"github.com/meshbridge/router-node/tracker"
)

// Router is the assembled daemon: every component plus the servers
// that expose it.
type Router struct {
	cfg *config.Config

	registry   *chains.Registry
	oracle     *oracle.Oracle
	tracker    *tracker.Tracker
	evaluator  *evaluator.Evaluator
	lifecycle  *lifecycle.Registry
	dispatcher *dispatcher.Dispatcher
	store      storage.Store

	transport messaging.Transport
	auction   *messaging.AuctionServer
	preimage  *messaging.PreimageListener

	admin *api.Server
	metrics *api.Metrics

	signer *ecdsa.PrivateKey
}

// New assembles every component from cfg. It dials every configured
// chain's RPC provider, returning the adapter's error if one cannot
// be reached, and will fail fast (§6.6 exit code 2-style condition)
// if the signer material cannot be derived.
func New(cfg *config.Config) (*Router, error) {
	signer, err := resolveSigner(cfg)
	if err != nil {
		return nil, err
	}
	fromAddress := crypto.PubkeyToAddress(signer.PublicKey).Hex()

	registry := chains.NewRegistry()
	gasStations := map[chainid.ID][]oracle.GasStation{}
	for key, cc := range cfg.ChainConfig {
		chain := chainid.ID(cc.ChainID)
		if len(cc.Providers) == 0 {
			return nil, errs.New(errs.ConfigurationError, "router.New", "chain has no providers").With("chainId", key)
		}
		adapter, err := evm.New(chain, cc.Providers[0], cc.TransactionManagerAddress, signerHex(cfg))
		if err != nil {
			return nil, errs.Wrap(errs.ConfigurationError, "router.New", err, "failed to construct chain adapter").With("chainId", key)
		}
		dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = adapter.Connect(dialCtx)
		cancel()
		if err != nil {
			return nil, err
		}
		registry.Register(chain, adapter)
		gasStations[chain] = []oracle.GasStation{&adapterGasStation{adapter: adapter}}
	}

	priceReader := newConfiguredPriceReader(cfg)
	orc := oracle.New(priceReader, gasStations)

	trk := tracker.New()

	store, err := openStore(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ConfigurationError, "router.New", err, "failed to open state store")
	}

	limiter := ratelimit.New(cfg.RequestLimit())

	routers := &chainConfigAdapter{cfg: cfg}
	disp := dispatcher.New(dispatcher.Config{
		MaxRetries:     8,
		BaseBackoff:    2 * time.Second,
		MaxBackoff:     5 * time.Minute,
		RelayerEnabled: true,
	}, registry, routers, orc, store)

	lc := lifecycle.New(disp)

	evalCfg := evaluator.Config{
		RequestLimit:   cfg.RequestLimit(),
		MaxPriceImpact: parseOrDefault(cfg.MaxPriceImpact, scaled18(1)),
		ImpactScale:    scaled18(1),
		Amplification:  parseOrDefault(cfg.Amplification, big.NewInt(100)),
		AllowedVAMM:    cfg.AllowedVAMM,
		MinGasWarning:  big.NewInt(0),
	}
	liquidity := &liquidityAdapter{tracker: trk, registry: registry, routerAddress: fromAddress}
	pools := &poolAdapter{cfg: cfg, tracker: trk, registry: registry}
	eval := evaluator.New(evalCfg, signer, fromAddress, trk, liquidity, routers, pools, orc, limiter)

	transport := messaging.NewInMemoryTransport()
	auctionSrv := messaging.NewAuctionServer(transport, eval)
	preimageListener := messaging.NewPreimageListener(transport, lc)

	metrics := api.NewMetrics()
	admin := api.NewServer(&configProvider{cfg: cfg}, &liquidityController{dispatcher: disp, router: fromAddress}, store, metrics)
	admin.Mount("/prices/ws", priceReader)

	return &Router{
		cfg:        cfg,
		registry:   registry,
		oracle:     orc,
		tracker:    trk,
		evaluator:  eval,
		lifecycle:  lc,
		dispatcher: disp,
		store:      store,
		transport:  transport,
		auction:    auctionSrv,
		preimage:   preimageListener,
		admin:      admin,
		metrics:    metrics,
		signer:     signer,
	}, nil
}

// Run boots every subsystem and blocks until ctx is cancelled, then
// shuts each down with a bounded grace period, mirroring
// node/node.go's ObscuraNode.Run goroutine-per-subsystem shape.
func (r *Router) Run(ctx context.Context) error {
	unsubAuction, err := r.auction.Start()
	if err != nil {
		return errs.Wrap(errs.ConfigurationError, "Router.Run", err, "failed to start auction server")
	}
	defer unsubAuction()

	unsubPreimage, err := r.preimage.Start()
	if err != nil {
		return errs.Wrap(errs.ConfigurationError, "Router.Run", err, "failed to start preimage listener")
	}
	defer unsubPreimage()

	chainIDs := r.cfg.ChainIDs()
	go r.dispatcher.Run(ctx, chainIDs, 30*time.Second)
	go r.tracker.Run(ctx)
	go r.lifecycle.RunExpirySweep(ctx, 15*time.Second)
	go r.monitorChainHealth(ctx)

	adminAddr := fmt.Sprintf(":%d", r.cfg.AdminPort)
	srv := &http.Server{Addr: adminAddr, Handler: r.admin.Handler()}
	go func() {
		log.Info().Str("addr", adminAddr).Msg("admin http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("router shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("admin http server did not shut down cleanly")
	}
	return r.store.Close()
}

// monitorChainHealth polls every registered chain's HealthCheck and
// latest block number on a ticker, publishing both into the metrics
// collector (SPEC_FULL.md supplemented feature #5) and logging
// degraded chains. Grounded on node/node.go's monitorNetworkHealth
// ticker, retargeted from peer liveness to per-chain RPC reachability.
func (r *Router) monitorChainHealth(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, chain := range r.cfg.ChainIDs() {
				adapter, ok := r.registry.Get(chain)
				if !ok {
					continue
				}
				label := chain.String()
				if err := adapter.HealthCheck(ctx); err != nil {
					log.Warn().Err(err).Str("chain", label).Msg("chain health check failed")
					r.metrics.ChainHealthy.WithLabelValues(label).Set(0)
					continue
				}
				r.metrics.ChainHealthy.WithLabelValues(label).Set(1)
				if block, err := adapter.GetBlockNumber(ctx); err == nil {
					r.metrics.ChainLatestBlock.WithLabelValues(label).Set(float64(block))
				}
			}
		}
	}
}

// openStore selects the dead-letter store backend per
// cfg.StatePersistence, defaulting to the JSON FileStore the way the
// teacher's node defaults its own job store.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StatePersistence {
	case "badger":
		path := cfg.StatePath
		if path == "" {
			path = "router-state-badger"
		}
		return storage.NewBadgerStore(path)
	default:
		path := cfg.StatePath
		if path == "" {
			path = "router-state.json"
		}
		return storage.NewFileStore(path)
	}
}

// scaled18 returns n scaled by 1e18, the normalized decimal precision
// every AMM/evaluator amount is expressed in.
func scaled18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// parseOrDefault parses a decimal config string, falling back to def
// when empty or unparseable. The router's own copy of
// config.bigIntOrDefault's logic, since that helper is unexported.
func parseOrDefault(s string, def *big.Int) *big.Int {
	if s == "" {
		return def
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return def
	}
	return v
}
