package memory

import (
	"investsim/internal/repository"
)

var (
	_ repository.KeyValueStore = (*KVStore)(nil)
	_ repository.PlanCatalog   = (*PlanCatalog)(nil)
)
