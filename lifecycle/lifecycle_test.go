package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/errs"
	"github.com/meshbridge/router-node/txtypes"
)

type recordingDispatcher struct {
	mu      sync.Mutex
	actions []txtypes.Action
}

func (d *recordingDispatcher) Submit(ctx context.Context, action txtypes.Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, action)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.actions)
}

func testTIX() txtypes.TIX {
	return txtypes.TIX{
		TransactionID:    "0xabc",
		User:             "0xuser",
		SendingChainID:   chainid.ID(1),
		ReceivingChainID: chainid.ID(2),
	}
}

func TestOnEventSenderPreparedDispatchesReceiverPrepare(t *testing.T) {
	d := &recordingDispatcher{}
	r := New(d)

	r.OnEvent(context.Background(), txtypes.TransactionEvent{
		Kind: txtypes.EventSenderPrepared,
		Record: txtypes.Record{
			TIX:    testTIX(),
			Status: txtypes.StatusPrepared,
			Variant: txtypes.Variant{
				PreparedAt: time.Now(),
			},
		},
	})

	if d.count() != 1 {
		t.Fatalf("expected one dispatched action, got %d", d.count())
	}
	if d.actions[0].Kind != txtypes.ActionPrepare {
		t.Errorf("expected a prepare action, got %s", d.actions[0].Kind)
	}
}

func TestOnEventReceiverPreparedAdvancesToBothPrepared(t *testing.T) {
	d := &recordingDispatcher{}
	r := New(d)
	tix := testTIX()

	r.OnEvent(context.Background(), txtypes.TransactionEvent{
		Kind:   txtypes.EventSenderPrepared,
		Record: txtypes.Record{TIX: tix, Status: txtypes.StatusPrepared, Variant: txtypes.Variant{PreparedAt: time.Now()}},
	})
	r.OnEvent(context.Background(), txtypes.TransactionEvent{
		Kind:   txtypes.EventReceiverPrepared,
		Record: txtypes.Record{TIX: tix, Status: txtypes.StatusPrepared, ChainID: tix.ReceivingChainID},
	})

	objects := r.Snapshot()
	if len(objects) != 1 {
		t.Fatalf("expected one tracked object, got %d", len(objects))
	}
	if objects[0].State() != StateBothPrepared {
		t.Errorf("expected BothPrepared, got %s", objects[0].State())
	}
}

func TestOnPreimageDispatchesFulfillToBothSides(t *testing.T) {
	d := &recordingDispatcher{}
	r := New(d)
	tix := testTIX()

	r.OnEvent(context.Background(), txtypes.TransactionEvent{
		Kind:   txtypes.EventSenderPrepared,
		Record: txtypes.Record{TIX: tix, Status: txtypes.StatusPrepared, Variant: txtypes.Variant{PreparedAt: time.Now()}},
	})
	r.OnEvent(context.Background(), txtypes.TransactionEvent{
		Kind:   txtypes.EventReceiverPrepared,
		Record: txtypes.Record{TIX: tix, Status: txtypes.StatusPrepared, ChainID: tix.ReceivingChainID},
	})
	d.mu.Lock()
	d.actions = nil
	d.mu.Unlock()

	r.OnPreimage(context.Background(), tix, []byte("secret"))

	if d.count() != 2 {
		t.Fatalf("expected two fulfill actions (receiver then sender), got %d", d.count())
	}
	if d.actions[0].ChainID != tix.ReceivingChainID {
		t.Error("expected the receiver-side fulfill to be dispatched first")
	}
	if d.actions[1].ChainID != tix.SendingChainID {
		t.Error("expected the sender-side fulfill to be dispatched second")
	}
}

func TestCanCancelSenderRequiresBuffer(t *testing.T) {
	sender := &txtypes.Record{
		Status:  txtypes.StatusPrepared,
		Variant: txtypes.Variant{PreparedAt: time.Now()},
	}
	if canCancelSender(sender, nil) {
		t.Error("expected sender cancel to be blocked within the 780s buffer")
	}

	sender.Variant.PreparedAt = time.Now().Add(-800 * time.Second)
	if !canCancelSender(sender, nil) {
		t.Error("expected sender cancel to be allowed past the buffer with no receiver record")
	}
}

func TestCanCancelSenderBlockedByActiveReceiver(t *testing.T) {
	sender := &txtypes.Record{
		Status:  txtypes.StatusPrepared,
		Variant: txtypes.Variant{PreparedAt: time.Now().Add(-800 * time.Second)},
	}
	receiver := &txtypes.Record{
		Status:  txtypes.StatusPrepared,
		Variant: txtypes.Variant{Expiry: time.Now().Add(time.Hour)},
	}
	if canCancelSender(sender, receiver) {
		t.Error("expected sender cancel to be blocked by an active, unexpired receiver record")
	}
}

func TestCheckSenderCancelReturnsSenderTxTooNew(t *testing.T) {
	sender := &txtypes.Record{
		Status:  txtypes.StatusPrepared,
		Variant: txtypes.Variant{PreparedAt: time.Now()},
	}
	err := CheckSenderCancel(sender, nil)
	if !errs.As(err, errs.SenderTxTooNew) {
		t.Fatalf("expected SenderTxTooNew for a too-new sender prepare, got %v", err)
	}
}
