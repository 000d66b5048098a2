package storage

import (
	"os"
	"testing"
)

func TestFileStoreSaveAndListDeadLetters(t *testing.T) {
	tmpFile := "./test_db.json"
	defer os.Remove(tmpFile)

	store, err := NewFileStore(tmpFile)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	letter := DeadLetter{
		ChainID: "1",
		Kind:    "fulfill",
		Payload: map[string]any{"swapId": "0xabc"},
		Reason:  "max retries exceeded",
	}
	if err := store.SaveDeadLetter("dispatcher_dead_letter_1_fulfill", letter); err != nil {
		t.Fatalf("failed to save dead letter: %v", err)
	}

	all := store.ListDeadLetters()
	got, ok := all["dispatcher_dead_letter_1_fulfill"]
	if !ok {
		t.Fatal("expected dead letter to be present")
	}
	if got.Reason != "max retries exceeded" || got.ChainID != "1" {
		t.Errorf("unexpected dead letter contents: %+v", got)
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	tmpFile := "./test_db_reopen.json"
	defer os.Remove(tmpFile)

	store, err := NewFileStore(tmpFile)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.SaveDeadLetter("k1", DeadLetter{ChainID: "2", Kind: "refund", Reason: "insufficient gas"}); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	reopened, err := NewFileStore(tmpFile)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	all := reopened.ListDeadLetters()
	if len(all) != 1 {
		t.Fatalf("expected 1 dead letter after reopen, got %d", len(all))
	}
	if all["k1"].Kind != "refund" {
		t.Errorf("unexpected reopened dead letter: %+v", all["k1"])
	}
}

func TestFileStoreListDeadLettersReturnsACopy(t *testing.T) {
	tmpFile := "./test_db_copy.json"
	defer os.Remove(tmpFile)

	store, err := NewFileStore(tmpFile)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.SaveDeadLetter("k1", DeadLetter{ChainID: "1", Kind: "fulfill"}); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	snapshot := store.ListDeadLetters()
	delete(snapshot, "k1")

	if len(store.ListDeadLetters()) != 1 {
		t.Fatal("mutating a returned snapshot must not affect the store")
	}
}
