// Package signed wraps a key-value store so that every value carries an
// HMAC. Values that fail verification surface as repository.ErrCorrupt and
// are treated like malformed data by the loader.
package signed

import (
	"context"
	"encoding/json"
	"fmt"

	"investsim/internal/repository"
	"investsim/pkg/crypto"
)

var (
	_ repository.KeyValueStore = (*Store)(nil)
	_ repository.BatchStore    = (*Store)(nil)
)

type envelope struct {
	Payload   []byte `json:"payload"`
	Signature string `json:"sig"`
}

type Store struct {
	inner  repository.KeyValueStore
	signer *crypto.Signer
}

func NewStore(inner repository.KeyValueStore, signer *crypto.Signer) *Store {
	return &Store{inner: inner, signer: signer}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: key %s: %v", repository.ErrCorrupt, key, err)
	}
	if err := s.signer.VerifyRecord(key, env.Payload, env.Signature); err != nil {
		return nil, fmt.Errorf("%w: key %s: %v", repository.ErrCorrupt, key, err)
	}
	return env.Payload, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	raw, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, raw)
}

// SetMany signs every value and hands them to the inner store in one batch
// when it supports batches.
func (s *Store) SetMany(ctx context.Context, values map[string][]byte) error {
	sealed := make(map[string][]byte, len(values))
	for key, value := range values {
		raw, err := s.seal(key, value)
		if err != nil {
			return err
		}
		sealed[key] = raw
	}

	if batch, ok := s.inner.(repository.BatchStore); ok {
		return batch.SetMany(ctx, sealed)
	}
	for key, raw := range sealed {
		if err := s.inner.Set(ctx, key, raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seal(key string, value []byte) ([]byte, error) {
	raw, err := json.Marshal(envelope{
		Payload:   value,
		Signature: s.signer.SignRecord(key, value),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope for %s: %w", key, err)
	}
	return raw, nil
}

func (s *Store) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}
