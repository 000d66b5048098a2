// Package storage persists dispatcher dead-letters: actions the
// dispatcher exhausted its retry budget on (§4.F.3), so an operator can
// inspect and manually resubmit them after a restart. Grounded on the
// teacher's storage/store.go FileStore, retargeted from job-blob
// persistence to this one durable record type.
package storage

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// DeadLetter is one action the dispatcher gave up retrying.
type DeadLetter struct {
	ChainID string `json:"chainId"`
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
	Reason  string `json:"reason"`
}

// Store is the persistence surface the dispatcher's dead-letter path
// needs: record a giveup, and let an operator list what's outstanding.
type Store interface {
	SaveDeadLetter(key string, letter DeadLetter) error
	ListDeadLetters() map[string]DeadLetter
	Close() error
}

// FileStore implements Store using a local JSON file.
type FileStore struct {
	filename string
	mu       sync.RWMutex
	Data     struct {
		DeadLetters map[string]DeadLetter `json:"deadLetters"`
	}
}

// NewFileStore creates or loads a file-based store.
func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		filename: filename,
	}
	fs.Data.DeadLetters = make(map[string]DeadLetter)

	if _, err := os.Stat(filename); err == nil {
		file, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(file, &fs.Data); err != nil {
			log.Warn().Err(err).Msg("failed to decode state store, starting empty")
		}
	}

	return fs, nil
}

func (fs *FileStore) SaveDeadLetter(key string, letter DeadLetter) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.Data.DeadLetters[key] = letter
	return fs.flush()
}

func (fs *FileStore) ListDeadLetters() map[string]DeadLetter {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := make(map[string]DeadLetter, len(fs.Data.DeadLetters))
	for k, v := range fs.Data.DeadLetters {
		out[k] = v
	}
	return out
}

func (fs *FileStore) flush() error {
	data, err := json.MarshalIndent(fs.Data, "", "  ")
	if err != nil {
		return err
	}

	tempFile := fs.filename + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return err
	}

	if err := os.Rename(tempFile, fs.filename); err != nil {
		os.Remove(tempFile)
		return err
	}
	return nil
}

func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.flush()
}
