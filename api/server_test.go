package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/errs"
	"github.com/meshbridge/router-node/storage"
)

type fakeConfigProvider struct{}

func (f *fakeConfigProvider) RedactedConfig() any {
	return map[string]string{"mnemonic": "[redacted]"}
}

type fakeLiquidityController struct {
	removeCalled bool
	addCalled    bool
	err          error
}

func (f *fakeLiquidityController) RemoveLiquidity(ctx context.Context, chain chainid.ID, assetID, amount, recipient string) error {
	f.removeCalled = true
	return f.err
}

func (f *fakeLiquidityController) AddLiquidityFor(ctx context.Context, chain chainid.ID, assetID, amount, router string) error {
	f.addCalled = true
	return f.err
}

type fakeDeadLetterLister struct {
	letters map[string]storage.DeadLetter
}

func (f *fakeDeadLetterLister) ListDeadLetters() map[string]storage.DeadLetter {
	if f.letters == nil {
		return map[string]storage.DeadLetter{}
	}
	return f.letters
}

func TestServerPing(t *testing.T) {
	s := NewServer(&fakeConfigProvider{}, &fakeLiquidityController{}, &fakeDeadLetterLister{}, NewMetrics())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec.Body.String() != "pong" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestServerConfig(t *testing.T) {
	s := NewServer(&fakeConfigProvider{}, &fakeLiquidityController{}, &fakeDeadLetterLister{}, NewMetrics())

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["mnemonic"] != "[redacted]" {
		t.Fatalf("unexpected config body: %+v", body)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	s := NewServer(&fakeConfigProvider{}, &fakeLiquidityController{}, &fakeDeadLetterLister{}, NewMetrics())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestServerRemoveLiquidity(t *testing.T) {
	liquidity := &fakeLiquidityController{}
	s := NewServer(&fakeConfigProvider{}, liquidity, &fakeDeadLetterLister{}, NewMetrics())

	body, _ := json.Marshal(map[string]any{
		"chainId":   1,
		"assetId":   "USDC",
		"amount":    "1000",
		"recipient": "0xRecipient",
	})
	req := httptest.NewRequest(http.MethodPost, "/remove-liquidity", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d, body: %s", rec.Code, rec.Body.String())
	}
	if !liquidity.removeCalled {
		t.Fatal("expected RemoveLiquidity to be called")
	}
}

func TestServerAddLiquidityFor(t *testing.T) {
	liquidity := &fakeLiquidityController{}
	s := NewServer(&fakeConfigProvider{}, liquidity, &fakeDeadLetterLister{}, NewMetrics())

	body, _ := json.Marshal(map[string]any{
		"chainId": 2,
		"assetId": "USDC",
		"amount":  "2000",
		"router":  "0xNewRouter",
	})
	req := httptest.NewRequest(http.MethodPost, "/add-liquidity-for", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d, body: %s", rec.Code, rec.Body.String())
	}
	if !liquidity.addCalled {
		t.Fatal("expected AddLiquidityFor to be called")
	}
}

func TestServerRemoveLiquidityMalformedBody(t *testing.T) {
	s := NewServer(&fakeConfigProvider{}, &fakeLiquidityController{}, &fakeDeadLetterLister{}, NewMetrics())

	req := httptest.NewRequest(http.MethodPost, "/remove-liquidity", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestServerRemoveLiquidityPropagatesRouterError(t *testing.T) {
	liquidity := &fakeLiquidityController{err: errs.New(errs.NotEnoughLiquidity, "test", "insufficient reserves")}
	s := NewServer(&fakeConfigProvider{}, liquidity, &fakeDeadLetterLister{}, NewMetrics())

	body, _ := json.Marshal(map[string]any{"chainId": 1, "assetId": "USDC", "amount": "1000", "recipient": "0xR"})
	req := httptest.NewRequest(http.MethodPost, "/remove-liquidity", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestServerDeadLetters(t *testing.T) {
	letters := &fakeDeadLetterLister{letters: map[string]storage.DeadLetter{
		"dispatcher_dead_letter_1_fulfill": {ChainID: "1", Kind: "fulfill", Reason: "max retries exceeded"},
	}}
	s := NewServer(&fakeConfigProvider{}, &fakeLiquidityController{}, letters, NewMetrics())

	req := httptest.NewRequest(http.MethodGet, "/dead-letters", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body map[string]storage.DeadLetter
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	letter, ok := body["dispatcher_dead_letter_1_fulfill"]
	if !ok || letter.Reason != "max retries exceeded" {
		t.Fatalf("unexpected dead letters body: %+v", body)
	}
}

func TestServerMount(t *testing.T) {
	s := NewServer(&fakeConfigProvider{}, &fakeLiquidityController{}, &fakeDeadLetterLister{}, NewMetrics())
	s.Mount("/prices/ws", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/prices/ws", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
