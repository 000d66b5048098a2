package subgraph_test

import (
	"context"
	"testing"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/subgraph"
	"github.com/meshbridge/router-node/subgraph/subgraphtest"
	"github.com/meshbridge/router-node/txtypes"
)

func TestHTTPClientGetSyncRecordsReportsLag(t *testing.T) {
	srv := subgraphtest.NewServer()
	defer srv.Close()
	srv.SetSyncState(100, 92)

	client := subgraph.NewHTTPClient(chainid.ID(1337), srv.URL())
	records, err := client.GetSyncRecords(context.Background())
	if err != nil {
		t.Fatalf("GetSyncRecords returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one sync record, got %d", len(records))
	}
	if records[0].Synced {
		t.Error("expected synced=false with an 8-block lag")
	}
	if records[0].Lag != 8 {
		t.Errorf("expected lag 8, got %d", records[0].Lag)
	}
}

func TestHTTPClientGetSyncRecordsSyncedWhenCaughtUp(t *testing.T) {
	srv := subgraphtest.NewServer()
	defer srv.Close()
	srv.SetSyncState(50, 50)

	client := subgraph.NewHTTPClient(chainid.ID(1337), srv.URL())
	records, err := client.GetSyncRecords(context.Background())
	if err != nil {
		t.Fatalf("GetSyncRecords returned error: %v", err)
	}
	if !records[0].Synced {
		t.Error("expected synced=true when latest == synced block")
	}
}

func TestHTTPClientGetTransactionForChainMissing(t *testing.T) {
	srv := subgraphtest.NewServer()
	defer srv.Close()

	client := subgraph.NewHTTPClient(chainid.ID(1337), srv.URL())
	_, ok, err := client.GetTransactionForChain(context.Background(), "0xabc", "0xuser")
	if err != nil {
		t.Fatalf("GetTransactionForChain returned error: %v", err)
	}
	if ok {
		t.Error("expected ok=false for an unseeded transaction")
	}
}

func TestHTTPClientGetTransactionForChainFound(t *testing.T) {
	srv := subgraphtest.NewServer()
	defer srv.Close()
	srv.PutTransaction(subgraphtest.Transaction{
		TxID:                "0xabc",
		User:                "0xuser",
		Status:              string(txtypes.StatusPrepared),
		Amount:              "1000000000000000000",
		Expiry:              1893456000,
		PreparedBlockNumber: 42,
	})

	client := subgraph.NewHTTPClient(chainid.ID(1337), srv.URL())
	rec, ok, err := client.GetTransactionForChain(context.Background(), "0xabc", "0xuser")
	if err != nil {
		t.Fatalf("GetTransactionForChain returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for a seeded transaction")
	}
	if rec.Status != txtypes.StatusPrepared {
		t.Errorf("expected status Prepared, got %s", rec.Status)
	}
	if rec.Variant.PreparedBlockNumber != 42 {
		t.Errorf("expected prepared block 42, got %d", rec.Variant.PreparedBlockNumber)
	}
}

func TestHTTPClientGetAssetBalanceDefaultsToZero(t *testing.T) {
	srv := subgraphtest.NewServer()
	defer srv.Close()

	client := subgraph.NewHTTPClient(chainid.ID(1337), srv.URL())
	bal, err := client.GetAssetBalance(context.Background(), "0xtoken")
	if err != nil {
		t.Fatalf("GetAssetBalance returned error: %v", err)
	}
	if bal.Sign() != 0 {
		t.Errorf("expected zero balance for unseeded asset, got %s", bal.String())
	}
}
