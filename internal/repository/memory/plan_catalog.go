package memory

import (
	"fmt"

	"investsim/internal/domain"
	"investsim/internal/repository"
)

// PlanCatalog is an immutable, validated set of plans. List keeps the order
// the plans were configured in.
type PlanCatalog struct {
	plans map[string]domain.Plan
	order []string
}

func NewPlanCatalog(plans []domain.Plan) (*PlanCatalog, error) {
	c := &PlanCatalog{
		plans: make(map[string]domain.Plan, len(plans)),
	}

	for _, plan := range plans {
		if err := plan.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.plans[plan.ID]; exists {
			return nil, fmt.Errorf("%w: plan %s", repository.ErrDuplicate, plan.ID)
		}
		c.plans[plan.ID] = plan
		c.order = append(c.order, plan.ID)
	}

	return c, nil
}

func (c *PlanCatalog) Get(id string) (domain.Plan, error) {
	plan, exists := c.plans[id]
	if !exists {
		return domain.Plan{}, fmt.Errorf("%w: plan %s", repository.ErrNotFound, id)
	}
	return plan, nil
}

func (c *PlanCatalog) List() []domain.Plan {
	result := make([]domain.Plan, 0, len(c.order))
	for _, id := range c.order {
		result = append(result, c.plans[id])
	}
	return result
}
