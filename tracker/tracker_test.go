package tracker

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/txtypes"
)

type fakeClient struct {
	mu      sync.Mutex
	records map[string]txtypes.Record
	synced  bool
}

func (f *fakeClient) GetSyncRecords(ctx context.Context) ([]txtypes.SyncRecord, error) {
	return []txtypes.SyncRecord{{Synced: f.synced}}, nil
}

func (f *fakeClient) GetTransactionForChain(ctx context.Context, txID, user string) (txtypes.Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[txID+":"+user]
	return rec, ok, nil
}

func (f *fakeClient) GetAssetBalance(ctx context.Context, assetID string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeClient) setStatus(txID, user string, status txtypes.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records == nil {
		f.records = map[string]txtypes.Record{}
	}
	f.records[txID+":"+user] = txtypes.Record{
		TIX:    txtypes.TIX{TransactionID: txID, User: user},
		Status: status,
	}
}

type recordingSubscriber struct {
	mu     sync.Mutex
	events []txtypes.TransactionEvent
}

func (r *recordingSubscriber) OnEvent(ctx context.Context, event txtypes.TransactionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestTrackerDeliversEventOnceForRepeatedStatus(t *testing.T) {
	tr := New()
	client := &fakeClient{}
	tr.AddChain(chainid.ID(1), client, time.Millisecond, false)
	sub := &recordingSubscriber{}
	tr.Subscribe(sub)
	tr.Watch("0xabc", "0xuser")

	client.setStatus("0xabc", "0xuser", txtypes.StatusPrepared)

	ctx, cancel := context.WithCancel(context.Background())
	go tr.Run(ctx)

	deadline := time.After(500 * time.Millisecond)
	for sub.count() == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("expected at least one event to be delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	time.Sleep(30 * time.Millisecond)
	cancel()

	if sub.count() != 1 {
		t.Errorf("expected exactly one delivered event for a stable status, got %d", sub.count())
	}
}

func TestTrackerIsSyncedReflectsClient(t *testing.T) {
	tr := New()
	client := &fakeClient{synced: true}
	tr.AddChain(chainid.ID(1), client, time.Second, false)

	synced, err := tr.IsSynced(context.Background(), chainid.ID(1))
	if err != nil {
		t.Fatalf("IsSynced returned error: %v", err)
	}
	if !synced {
		t.Error("expected synced=true")
	}
}

func TestTrackerIsSyncedUnknownChain(t *testing.T) {
	tr := New()
	synced, err := tr.IsSynced(context.Background(), chainid.ID(999))
	if err != nil {
		t.Fatalf("IsSynced returned error: %v", err)
	}
	if synced {
		t.Error("expected synced=false for an unregistered chain")
	}
}
