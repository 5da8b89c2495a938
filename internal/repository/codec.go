package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// LoadJSON decodes the value stored under key. A missing key, an unreadable
// value or malformed JSON yields fallback; only the last two are logged.
func LoadJSON[T any](ctx context.Context, store KeyValueStore, key string, fallback T, logger *slog.Logger) (T, bool) {
	if logger == nil {
		logger = slog.Default()
	}

	raw, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.WarnContext(ctx, "Failed to read persisted value, using fallback",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return fallback, false
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		logger.WarnContext(ctx, "Malformed persisted value, using fallback",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return fallback, false
	}
	return value, true
}

// SaveAll encodes every value and writes them together, atomically when the
// store is a BatchStore.
func SaveAll(ctx context.Context, store KeyValueStore, values map[string]any) error {
	encoded := make(map[string][]byte, len(values))
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		encoded[key] = raw
	}

	if batch, ok := store.(BatchStore); ok {
		if err := batch.SetMany(ctx, encoded); err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		return nil
	}

	var errs []error
	for key, raw := range encoded {
		if err := store.Set(ctx, key, raw); err != nil {
			errs = append(errs, fmt.Errorf("failed to store %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func SaveJSON(ctx context.Context, store KeyValueStore, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}
