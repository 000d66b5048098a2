// Package lifecycle implements the Transaction Lifecycle State Machine
// (Component E): one state machine per (transactionId, user), driven
// by tracker events and an expiry ticker, deciding the next on-chain
// action and handing it to the dispatcher.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meshbridge/router-node/errs"
	"github.com/meshbridge/router-node/txtypes"
)

// State is one of the lifecycle object's defined states (§4.E, P4).
type State string

const (
	StateIdle             State = "Idle"
	StateSenderPrepared   State = "SenderPrepared"
	StateBothPrepared     State = "BothPrepared"
	StateReceiverFulfilled State = "ReceiverFulfilled"
	StateCancelling       State = "Cancelling"
	StateTerminal         State = "Terminal"
)

// senderPrepareBuffer is the 780s safety window a sender-side cancel
// must respect (§3.2, P5).
const senderPrepareBuffer = 780 * time.Second

// Dispatcher is the narrow surface the lifecycle SM needs from the
// Chain Dispatcher: fire-and-forget submission, since all dispatch is
// asynchronous (§4.E concurrency note).
type Dispatcher interface {
	Submit(ctx context.Context, action txtypes.Action)
}

// Object is one (transactionId, user) lifecycle state machine.
type Object struct {
	mu    sync.Mutex
	tix   txtypes.TIX
	state State

	senderRecord   *txtypes.Record
	receiverRecord *txtypes.Record

	inFlight bool
}

// Registry holds every active lifecycle object, keyed by
// (transactionId, user), and drives the expiry sweep.
type Registry struct {
	mu         sync.RWMutex
	objects    map[string]*Object
	dispatcher Dispatcher
}

// New builds an empty Registry.
func New(dispatcher Dispatcher) *Registry {
	return &Registry{
		objects:    map[string]*Object{},
		dispatcher: dispatcher,
	}
}

func (r *Registry) getOrCreate(tix txtypes.TIX) *Object {
	key := tix.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[key]
	if !ok {
		obj = &Object{tix: tix, state: StateIdle}
		r.objects[key] = obj
	}
	return obj
}

// Remove drops a lifecycle object from the registry. The expiry sweep
// calls it for objects in StateTerminal, which OnEvent sets on the
// first Fulfilled or Cancelled event from either side, so the object
// can go before the other side is terminal. Objects with no record on
// either side are never removed, whatever their expiry.
func (r *Registry) Remove(tix txtypes.TIX) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects, tix.Key())
}

// Snapshot returns every active object, for the expiry sweep. Taking
// a snapshot under the registry lock and then releasing it before
// inspecting each object matches §5's "traversal for expiry sweep
// takes a snapshot" resource model.
func (r *Registry) Snapshot() []*Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Object, 0, len(r.objects))
	for _, o := range r.objects {
		out = append(out, o)
	}
	return out
}

// OnEvent handles one TransactionEvent from the tracker, running the
// per-txId single-flight guard: an event arriving while an action is
// already in flight for this object is dropped as a no-op, matching
// §4.E's concurrency note ("re-entry on the same txId while an action
// is in flight is a no-op").
func (r *Registry) OnEvent(ctx context.Context, event txtypes.TransactionEvent) {
	obj := r.getOrCreate(event.Record.TIX)

	obj.mu.Lock()
	if obj.inFlight {
		obj.mu.Unlock()
		log.Debug().Str("txId", event.Record.TIX.TransactionID).Msg("action in flight, dropping re-entrant event")
		return
	}
	obj.inFlight = true

	switch event.Kind {
	case txtypes.EventSenderPrepared:
		obj.senderRecord = &event.Record
		obj.state = StateSenderPrepared
	case txtypes.EventReceiverPrepared:
		obj.receiverRecord = &event.Record
		if obj.state == StateSenderPrepared {
			obj.state = StateBothPrepared
		}
	case txtypes.EventSenderFulfilled, txtypes.EventReceiverFulfilled:
		obj.state = StateTerminal
	case txtypes.EventSenderCancelled, txtypes.EventReceiverCancelled:
		obj.state = StateTerminal
	}
	state := obj.state
	senderRecord, receiverRecord := obj.senderRecord, obj.receiverRecord
	obj.mu.Unlock()

	r.decide(ctx, obj, state, senderRecord, receiverRecord)

	obj.mu.Lock()
	obj.inFlight = false
	obj.mu.Unlock()
}

// decide runs "read current state → decide → dispatch" outside the
// object's lock — dispatch is asynchronous, so no lock is held across
// the suspension point of handing work to the dispatcher (§5).
func (r *Registry) decide(ctx context.Context, obj *Object, state State, sender, receiver *txtypes.Record) {
	switch state {
	case StateSenderPrepared:
		if receiver != nil {
			// ReceiverTxExists: advance state locally, no dispatch.
			return
		}
		r.dispatcher.Submit(ctx, txtypes.Action{
			ChainID: obj.tix.ReceivingChainID,
			Kind:    txtypes.ActionPrepare,
			Payload: map[string]any{"tix": obj.tix},
		})
	case StateBothPrepared:
		// Awaiting preimage relay via messaging; handled by OnPreimage.
	}

	if sender != nil && canCancelSender(sender, receiver) {
		r.dispatcher.Submit(ctx, txtypes.Action{
			ChainID: obj.tix.SendingChainID,
			Kind:    txtypes.ActionCancel,
			Payload: map[string]any{"tix": obj.tix},
		})
	}
}

// OnPreimage handles a user-revealed preimage relayed over messaging
// (§4.E BothPrepared → ReceiverFulfilled → Terminal): dispatches
// fulfill to the receiver first, then the sender.
func (r *Registry) OnPreimage(ctx context.Context, tix txtypes.TIX, preimage []byte) {
	obj := r.getOrCreate(tix)

	obj.mu.Lock()
	if obj.inFlight || obj.state != StateBothPrepared {
		obj.mu.Unlock()
		return
	}
	obj.inFlight = true
	obj.state = StateReceiverFulfilled
	obj.mu.Unlock()

	r.dispatcher.Submit(ctx, txtypes.Action{
		ChainID: tix.ReceivingChainID,
		Kind:    txtypes.ActionFulfill,
		Payload: map[string]any{"tix": tix, "preimage": preimage},
	})
	r.dispatcher.Submit(ctx, txtypes.Action{
		ChainID: tix.SendingChainID,
		Kind:    txtypes.ActionFulfill,
		Payload: map[string]any{"tix": tix, "preimage": preimage},
	})

	obj.mu.Lock()
	obj.inFlight = false
	obj.mu.Unlock()
}

// canCancelSender implements §3.2/§4.E's sender-cancel safety rule:
// the receiver side must be absent, Cancelled, or Prepared past its
// expiry, and the sender's prepare must be older than
// senderPrepareBuffer.
func canCancelSender(sender, receiver *txtypes.Record) bool {
	if sender == nil || sender.Status != txtypes.StatusPrepared {
		return false
	}
	if time.Since(sender.Variant.PreparedAt) < senderPrepareBuffer {
		return false
	}
	if receiver == nil {
		return true
	}
	if receiver.Status == txtypes.StatusCancelled {
		return true
	}
	if receiver.Status == txtypes.StatusPrepared && time.Now().After(receiver.Variant.Expiry) {
		return true
	}
	return false
}

// CheckSenderCancel reports the would-be error for an explicit
// sender-cancel attempt outside the automatic sweep, surfacing
// SenderTxTooNew the way §4.E describes for direct callers. Nothing
// in the daemon calls it; the admin HTTP surface has no cancel route.
func CheckSenderCancel(sender, receiver *txtypes.Record) error {
	if sender == nil {
		return errs.New(errs.ParamsInvalid, "CheckSenderCancel", "no sender record")
	}
	if time.Since(sender.Variant.PreparedAt) < senderPrepareBuffer {
		return errs.New(errs.SenderTxTooNew, "CheckSenderCancel", "sender prepared block is too recent to cancel").
			With("chainId", sender.ChainID.String())
	}
	if !canCancelSender(sender, receiver) {
		return errs.New(errs.ReceiverTxExists, "CheckSenderCancel", "receiver record is active; cannot cancel sender")
	}
	return nil
}

// RunExpirySweep scans every active object every interval and issues
// cancels for orphaned or expired sender records, per §4.E's
// expiry_check_interval (default 60s).
func (r *Registry) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Registry) sweepOnce(ctx context.Context) {
	for _, obj := range r.Snapshot() {
		obj.mu.Lock()
		if obj.inFlight {
			obj.mu.Unlock()
			continue
		}
		state := obj.state
		sender, receiver := obj.senderRecord, obj.receiverRecord
		obj.mu.Unlock()

		if state == StateTerminal {
			r.Remove(obj.tix)
			continue
		}
		if sender != nil && canCancelSender(sender, receiver) {
			r.dispatcher.Submit(ctx, txtypes.Action{
				ChainID: obj.tix.SendingChainID,
				Kind:    txtypes.ActionCancel,
				Payload: map[string]any{"tix": obj.tix},
			})
		}
	}
}

// State reports an object's current state, for diagnostics and tests.
func (o *Object) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// TIX reports the object's identity.
func (o *Object) TIX() txtypes.TIX { return o.tix }
