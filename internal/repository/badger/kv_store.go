// Package badger persists ledger state in an embedded BadgerDB through
// BadgerHold.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"investsim/internal/repository"
)

var (
	_ repository.KeyValueStore = (*KVStore)(nil)
	_ repository.BatchStore    = (*KVStore)(nil)
)

// KVEntry is one persisted key.
type KVEntry struct {
	Key   string `badgerhold:"key"`
	Value []byte
}

type KVStore struct {
	db     *badgerhold.Store
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*KVStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data path %s: %w", path, err)
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}

	logger.Info("Key-value store opened", slog.String("path", path))
	return &KVStore{db: db, logger: logger}, nil
}

func (s *KVStore) Get(_ context.Context, key string) ([]byte, error) {
	var entry KVEntry
	if err := s.db.Get(key, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: key %s", repository.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return entry.Value, nil
}

func (s *KVStore) Set(_ context.Context, key string, value []byte) error {
	entry := KVEntry{Key: key, Value: value}
	if err := s.db.Upsert(key, &entry); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// SetMany upserts all values inside one Badger transaction.
func (s *KVStore) SetMany(_ context.Context, values map[string][]byte) error {
	err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		for key, value := range values {
			entry := KVEntry{Key: key, Value: value}
			if err := s.db.TxUpsert(txn, key, &entry); err != nil {
				return fmt.Errorf("key %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	return nil
}

func (s *KVStore) Clear(_ context.Context) error {
	if err := s.db.DeleteMatching(&KVEntry{}, nil); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

func (s *KVStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	s.logger.Info("Key-value store closed")
	return nil
}
