// Package tracker implements the Subgraph Event Tracker (Component C):
// one independent polling loop per chain that diffs an indexer's
// reported transactions against what it last saw and delivers one
// TransactionEvent per new record to subscribers.
package tracker

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/subgraph"
	"github.com/meshbridge/router-node/txtypes"
)

// Subscriber receives tracker events. Implementations must not block;
// long work should be handed off to a queue.
type Subscriber interface {
	OnEvent(ctx context.Context, event txtypes.TransactionEvent)
}

// SubscriberFunc adapts a plain function to Subscriber.
type SubscriberFunc func(ctx context.Context, event txtypes.TransactionEvent)

func (f SubscriberFunc) OnEvent(ctx context.Context, event txtypes.TransactionEvent) { f(ctx, event) }

// chainTracker is the per-chain polling state, including a bounded
// dedup set so a reorg that re-reports an already-delivered record
// doesn't fire a duplicate event. Grounded on ReorgProtector's
// processedEvents set and half-clear cleanup.
type chainTracker struct {
	chain     chainid.ID
	client    subgraph.Client
	isSender  bool // whether this chain is treated as the sending leg for the events it reports

	mu       sync.Mutex
	seen     map[string]txtypes.Status
	interval time.Duration
}

const maxSeenEntries = 10_000

// Tracker polls every configured chain on its own timer and fans new
// transaction events out to subscribers.
type Tracker struct {
	mu          sync.RWMutex
	chains      map[chainid.ID]*chainTracker
	subscribers []Subscriber
	watchlist   map[string][2]string // txId:user -> (txId, user), transactions to poll for
	watchMu     sync.Mutex
}

// New builds an empty Tracker. Use AddChain to register each chain's
// indexer client before calling Run.
func New() *Tracker {
	return &Tracker{
		chains:    map[chainid.ID]*chainTracker{},
		watchlist: map[string][2]string{},
	}
}

// AddChain registers a chain's indexer client with a poll interval
// (default 5-15s per §4.C; callers should pick a value in that band).
// isSender determines which TransactionEvent kinds this chain's
// records map to (SenderPrepared vs ReceiverPrepared, etc.) — a
// router-relevant chain plays the sending role for some TIXs and the
// receiving role for others, so callers register one chainTracker per
// (chain, role) pair if a chain serves both roles concurrently.
func (t *Tracker) AddChain(chain chainid.ID, client subgraph.Client, interval time.Duration, isSender bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chains[chain] = &chainTracker{
		chain:    chain,
		client:   client,
		isSender: isSender,
		seen:     map[string]txtypes.Status{},
		interval: interval,
	}
}

// Subscribe registers a subscriber for all chains' events.
func (t *Tracker) Subscribe(s Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, s)
}

// Watch adds (txId, user) to the set of transactions the tracker
// polls for on every chain. The lifecycle SM calls this as soon as a
// TIX becomes relevant (auction won, or sender-side event observed).
func (t *Tracker) Watch(txID, user string) {
	t.watchMu.Lock()
	defer t.watchMu.Unlock()
	t.watchlist[txID+":"+user] = [2]string{txID, user}
}

// Unwatch removes (txId, user) once the lifecycle object reaches a
// terminal state on both sides.
func (t *Tracker) Unwatch(txID, user string) {
	t.watchMu.Lock()
	defer t.watchMu.Unlock()
	delete(t.watchlist, txID+":"+user)
}

// GetSyncRecords exposes §4.C's get_sync_records for a chain.
func (t *Tracker) GetSyncRecords(ctx context.Context, chain chainid.ID) ([]txtypes.SyncRecord, error) {
	t.mu.RLock()
	ct, ok := t.chains[chain]
	t.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return ct.client.GetSyncRecords(ctx)
}

// IsSynced reports whether any configured indexer for chain is synced.
func (t *Tracker) IsSynced(ctx context.Context, chain chainid.ID) (bool, error) {
	records, err := t.GetSyncRecords(ctx, chain)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.Synced {
			return true, nil
		}
	}
	return false, nil
}

// GetTransactionForChain exposes §4.C's get_transaction_for_chain.
func (t *Tracker) GetTransactionForChain(ctx context.Context, txID, user string, chain chainid.ID) (txtypes.Record, bool, error) {
	t.mu.RLock()
	ct, ok := t.chains[chain]
	t.mu.RUnlock()
	if !ok {
		return txtypes.Record{}, false, nil
	}
	return ct.client.GetTransactionForChain(ctx, txID, user)
}

// GetAssetBalance exposes §4.C's get_asset_balance.
func (t *Tracker) GetAssetBalance(ctx context.Context, chain chainid.ID, assetID string) (*big.Int, error) {
	t.mu.RLock()
	ct, ok := t.chains[chain]
	t.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return ct.client.GetAssetBalance(ctx, assetID)
}

// Run starts one polling goroutine per registered chain and blocks
// until ctx is cancelled. Each chain's loop is fully independent: a
// transient failure on one chain never back-pressures another,
// matching node/listener.go's per-source reconnect loop.
func (t *Tracker) Run(ctx context.Context) {
	t.mu.RLock()
	chains := make([]*chainTracker, 0, len(t.chains))
	for _, ct := range t.chains {
		chains = append(chains, ct)
	}
	t.mu.RUnlock()

	var wg sync.WaitGroup
	for _, ct := range chains {
		wg.Add(1)
		go func(ct *chainTracker) {
			defer wg.Done()
			t.pollLoop(ctx, ct)
		}(ct)
	}
	wg.Wait()
}

func (t *Tracker) pollLoop(ctx context.Context, ct *chainTracker) {
	ticker := time.NewTicker(ct.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pollOnce(ctx, ct)
		}
	}
}

func (t *Tracker) pollOnce(ctx context.Context, ct *chainTracker) {
	t.watchMu.Lock()
	watched := make([][2]string, 0, len(t.watchlist))
	for _, w := range t.watchlist {
		watched = append(watched, w)
	}
	t.watchMu.Unlock()

	for _, w := range watched {
		txID, user := w[0], w[1]
		rec, ok, err := ct.client.GetTransactionForChain(ctx, txID, user)
		if err != nil {
			log.Warn().Err(err).Str("chain", ct.chain.String()).Str("txId", txID).
				Msg("subgraph query failed, retrying next tick")
			continue
		}
		if !ok {
			continue
		}
		t.deliverIfNew(ctx, ct, rec)
	}
}

// deliverIfNew fires a TransactionEvent only the first time a given
// (txId, user, chain, status) transition is observed, and clears half
// the dedup set once it grows past maxSeenEntries.
func (t *Tracker) deliverIfNew(ctx context.Context, ct *chainTracker, rec txtypes.Record) {
	key := rec.TIX.TransactionID + ":" + rec.TIX.User

	ct.mu.Lock()
	prior, seen := ct.seen[key]
	if seen && prior == rec.Status {
		ct.mu.Unlock()
		return
	}
	ct.seen[key] = rec.Status
	if len(ct.seen) > maxSeenEntries {
		cleared := 0
		target := len(ct.seen) / 2
		for k := range ct.seen {
			delete(ct.seen, k)
			cleared++
			if cleared >= target {
				break
			}
		}
	}
	ct.mu.Unlock()

	kind := eventKindFor(ct.isSender, rec.Status)
	event := txtypes.TransactionEvent{Kind: kind, Record: rec}

	t.mu.RLock()
	subs := append([]Subscriber(nil), t.subscribers...)
	t.mu.RUnlock()
	for _, s := range subs {
		s.OnEvent(ctx, event)
	}
}

func eventKindFor(isSender bool, status txtypes.Status) txtypes.EventKind {
	switch {
	case isSender && status == txtypes.StatusPrepared:
		return txtypes.EventSenderPrepared
	case !isSender && status == txtypes.StatusPrepared:
		return txtypes.EventReceiverPrepared
	case isSender && status == txtypes.StatusFulfilled:
		return txtypes.EventSenderFulfilled
	case !isSender && status == txtypes.StatusFulfilled:
		return txtypes.EventReceiverFulfilled
	case isSender && status == txtypes.StatusCancelled:
		return txtypes.EventSenderCancelled
	default:
		return txtypes.EventReceiverCancelled
	}
}
