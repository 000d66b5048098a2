package evm

import (
	"testing"

	"github.com/meshbridge/router-node/chainid"
)

// The bulk of Adapter's methods are thin ethclient.Client wrappers
// that need a live RPC endpoint to exercise meaningfully; the teacher
// doesn't unit-test its own EVMAdapter's on-chain calls either, for
// the same reason. What's tested here is the logic that doesn't
// require a connection.

func TestNewRejectsInvalidPrivateKey(t *testing.T) {
	_, err := New(chainid.ID(1), "http://localhost:8545", "0xrouter", "not-a-key")
	if err == nil {
		t.Fatal("expected an error for a malformed private key")
	}
}

func TestNewDerivesFromAddress(t *testing.T) {
	a, err := New(chainid.ID(1), "http://localhost:8545", "0xrouter",
		"4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if a.fromAddress.Hex() == "" {
		t.Error("expected a derived from-address")
	}
	if a.ChainID() != chainid.ID(1) {
		t.Errorf("expected ChainID 1, got %s", a.ChainID())
	}
}

func TestHealthCheckFailsBeforeConnect(t *testing.T) {
	a, err := New(chainid.ID(1), "http://localhost:8545", "0xrouter",
		"4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := a.HealthCheck(nil); err == nil { //nolint:staticcheck // nil ctx is fine, HealthCheck bails before using it
		t.Error("expected HealthCheck to fail on an unconnected adapter")
	}
}

func TestIsNonceTooLowMatchesGethErrorText(t *testing.T) {
	if !isNonceTooLow(errFixture{"nonce too low"}) {
		t.Error("expected nonce too low error to be detected")
	}
	if isNonceTooLow(errFixture{"replacement transaction underpriced"}) {
		t.Error("expected an unrelated error not to match")
	}
	if isNonceTooLow(nil) {
		t.Error("expected nil error not to match")
	}
}

func TestEncodePayloadHandlesNilPayload(t *testing.T) {
	data, err := encodePayload(nil)
	if err != nil {
		t.Fatalf("encodePayload returned error: %v", err)
	}
	if data != nil {
		t.Error("expected nil payload to encode to nil data")
	}
}

func TestEncodePayloadEncodesFields(t *testing.T) {
	data, err := encodePayload(map[string]any{"txId": "0xabc"})
	if err != nil {
		t.Fatalf("encodePayload returned error: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty encoded data for a non-nil payload")
	}
}

type errFixture struct{ msg string }

func (e errFixture) Error() string { return e.msg }
