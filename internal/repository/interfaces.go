package repository

import (
	"context"
	"errors"

	"investsim/internal/domain"
)

// KeyValueStore is the durability layer behind the ledger. A missing key is
// reported as ErrNotFound.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context) error
}

// BatchStore is implemented by stores that can write several keys in one
// atomic step. A crash mid-write then never mixes keys from two snapshots.
type BatchStore interface {
	SetMany(ctx context.Context, values map[string][]byte) error
}

// PlanCatalog is the read-only list of investment plans.
type PlanCatalog interface {
	Get(id string) (domain.Plan, error)
	List() []domain.Plan
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
	ErrCorrupt   = errors.New("corrupt value")
)
