// Package dispatcher implements the Chain Dispatcher (Component F):
// per-chain, nonce-ordered, retrying submission of lifecycle-issued
// actions to the chain adapters, grounded on the teacher's
// node/tx_manager.go (TxManager) and node/jobs.go (JobManager)
// channel-backed queue.
package dispatcher

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/chains"
	"github.com/meshbridge/router-node/errs"
	"github.com/meshbridge/router-node/oracle"
	"github.com/meshbridge/router-node/storage"
	"github.com/meshbridge/router-node/txtypes"
)

// queueDepth bounds the per-chain job channel, mirroring
// node/jobs.go's buffered jobQueue.
const queueDepth = 256

// Config tunes the dispatcher's retry and confirmation behavior.
type Config struct {
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	RelayerEnabled bool
}

// DefaultConfig matches §4.F's described defaults: exponential
// back-off from 2s up to a 5-minute cap.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  8,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  5 * time.Minute,
	}
}

// RouterAddresses resolves the per-chain router/transaction-manager
// contract address an Action's payload gets sent to.
type RouterAddresses interface {
	RouterAddress(chain chainid.ID) (string, bool)
}

// Dispatcher turns lifecycle-issued Actions into confirmed on-chain
// receipts, one serialized queue per chain so nonce order is
// preserved (§5 "per chain, dispatched transactions are totally
// ordered by nonce").
type Dispatcher struct {
	cfg       Config
	registry  *chains.Registry
	routers   RouterAddresses
	oracle    *oracle.Oracle
	store     storage.Store

	mu     sync.Mutex
	queues map[chainid.ID]chan job
	wg     sync.WaitGroup
}

type job struct {
	action  txtypes.Action
	attempt int
}

// New builds a Dispatcher. oracle may be nil when RelayerEnabled is
// false, since the relayer-fee path is the only consumer of it.
func New(cfg Config, registry *chains.Registry, routers RouterAddresses, orc *oracle.Oracle, store storage.Store) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		registry: registry,
		routers:  routers,
		oracle:   orc,
		store:    store,
		queues:   map[chainid.ID]chan job{},
	}
}

// Run starts the per-chain worker goroutines and blocks until ctx is
// cancelled, then waits up to grace for the workers to return. A
// worker returns once ctx is cancelled, after finishing the job it is
// processing; jobs still queued at that point are not processed.
func (d *Dispatcher) Run(ctx context.Context, chainIDs []chainid.ID, grace time.Duration) {
	for _, c := range chainIDs {
		d.wg.Add(1)
		go d.runChainWorker(ctx, c)
	}

	<-ctx.Done()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(grace):
		log.Warn().Msg("dispatcher shutdown grace period elapsed with queues still draining")
	}
}

func (d *Dispatcher) queueFor(chain chainid.ID) chan job {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[chain]
	if !ok {
		q = make(chan job, queueDepth)
		d.queues[chain] = q
	}
	return q
}

// Submit enqueues an action for its chain's serialized queue. This
// implements lifecycle.Dispatcher: fire-and-forget, since all dispatch
// is asynchronous (§4.E concurrency note).
func (d *Dispatcher) Submit(ctx context.Context, action txtypes.Action) {
	q := d.queueFor(action.ChainID)
	select {
	case q <- job{action: action}:
	case <-ctx.Done():
	default:
		log.Error().Str("chainId", action.ChainID.String()).Str("kind", string(action.Kind)).
			Msg("dispatcher queue full, dropping action to dead letter")
		d.deadLetter(action, "queue full")
	}
}

func (d *Dispatcher) runChainWorker(ctx context.Context, chain chainid.ID) {
	defer d.wg.Done()
	q := d.queueFor(chain)

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q:
			d.process(ctx, q, j)
		}
	}
}

// process runs one submission attempt and, on a Transport-kind error,
// re-enqueues the job after an exponential back-off (base 2s, capped
// at 5 minutes), matching §4.F's "back-off-retry up to a configured
// cap; on unrecoverable error surface to caller".
func (d *Dispatcher) process(ctx context.Context, q chan job, j job) {
	adapter, ok := d.registry.Get(j.action.ChainID)
	if !ok {
		log.Error().Str("chainId", j.action.ChainID.String()).Msg("no adapter registered for chain, dropping action")
		d.deadLetter(j.action, "no adapter registered")
		return
	}

	to, ok := d.routers.RouterAddress(j.action.ChainID)
	if !ok {
		log.Error().Str("chainId", j.action.ChainID.String()).Msg("no router address configured for chain")
		d.deadLetter(j.action, "no router address configured")
		return
	}

	req := chains.TransactionRequest{
		To:      to,
		Payload: d.buildPayload(ctx, j.action),
	}

	txHash, err := adapter.SendTransaction(ctx, req)
	if err == nil {
		log.Info().Str("chainId", j.action.ChainID.String()).Str("kind", string(j.action.Kind)).
			Str("txHash", txHash).Int("attempt", j.attempt).Msg("action confirmed on chain")
		return
	}

	routerErr, isRouterErr := err.(*errs.RouterError)
	transport := isRouterErr && routerErr.Kind.IsTransport()

	if !transport || j.attempt >= d.cfg.MaxRetries {
		log.Error().Err(err).Str("chainId", j.action.ChainID.String()).Str("kind", string(j.action.Kind)).
			Int("attempt", j.attempt).Msg("action exhausted retries or hit an unrecoverable error")
		d.deadLetter(j.action, err.Error())
		return
	}

	backoff := d.backoffFor(j.attempt)
	log.Warn().Err(err).Str("chainId", j.action.ChainID.String()).Dur("backoff", backoff).
		Int("attempt", j.attempt).Msg("transport error, retrying after back-off")

	next := job{action: j.action, attempt: j.attempt + 1}
	go func() {
		select {
		case <-time.After(backoff):
			select {
			case q <- next:
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
}

// backoffFor doubles the base delay per attempt, capped at MaxBackoff.
func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	backoff := d.cfg.BaseBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	return backoff
}

// buildPayload packs the action's own payload plus, when the router
// operates through a meta-tx relayer, the computed relayer fee for
// cancel/fulfill actions (§4.F's "optional relayer-fee path").
func (d *Dispatcher) buildPayload(ctx context.Context, action txtypes.Action) map[string]any {
	payload := map[string]any{"kind": string(action.Kind)}
	for k, v := range action.Payload {
		payload[k] = v
	}

	if !d.cfg.RelayerEnabled || d.oracle == nil {
		return payload
	}
	if action.Kind != txtypes.ActionCancel && action.Kind != txtypes.ActionFulfill {
		return payload
	}
	tix, ok := action.Payload["tix"].(txtypes.TIX)
	if !ok {
		return payload
	}

	fee, err := d.relayerFee(ctx, action.Kind, tix)
	if err != nil {
		log.Warn().Err(err).Str("txId", tix.TransactionID).Msg("failed to compute relayer fee, submitting without it")
		return payload
	}
	payload["routerRelayerFee"] = fee
	return payload
}

func (d *Dispatcher) relayerFee(ctx context.Context, kind txtypes.ActionKind, tix txtypes.TIX) (*big.Int, error) {
	var action oracle.Action
	switch kind {
	case txtypes.ActionCancel:
		action = oracle.ActionCancel
	case txtypes.ActionFulfill:
		action = oracle.ActionFulfill
	}
	fee, err := d.oracle.GasFee(ctx, tix.SendingChainID, tix.SendingAssetID, 18, action, oracle.SideSending)
	if err != nil {
		return nil, err
	}
	return fee.ToBig(), nil
}

func (d *Dispatcher) deadLetter(action txtypes.Action, reason string) {
	if d.store == nil {
		return
	}
	key := "dispatcher_dead_letter_" + action.ChainID.String() + "_" + string(action.Kind) +
		"_" + time.Now().UTC().Format(time.RFC3339Nano)
	if err := d.store.SaveDeadLetter(key, storage.DeadLetter{
		ChainID: action.ChainID.String(),
		Kind:    string(action.Kind),
		Payload: action.Payload,
		Reason:  reason,
	}); err != nil {
		log.Error().Err(err).Msg("failed to persist dead-lettered action")
	}
}
