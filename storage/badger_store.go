package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

// BadgerStore implements Store using BadgerDB, for operators who want
// durable dead-letter storage without relying on a single JSON file's
// rename semantics (e.g. across container restarts on a mounted volume).
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a BadgerDB-backed store at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	log.Info().Str("path", path).Msg("badger dead-letter store initialized")

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			_ = db.RunValueLogGC(0.5)
		}
	}()

	return &BadgerStore{db: db}, nil
}

func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}

func (bs *BadgerStore) SaveDeadLetter(key string, letter DeadLetter) error {
	data, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("deadletter:"+key), data)
	})
}

func (bs *BadgerStore) ListDeadLetters() map[string]DeadLetter {
	letters := make(map[string]DeadLetter)

	bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("deadletter:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())[len("deadletter:"):]

			item.Value(func(val []byte) error {
				var letter DeadLetter
				if err := json.Unmarshal(val, &letter); err == nil {
					letters[key] = letter
				}
				return nil
			})
		}
		return nil
	})

	return letters
}
