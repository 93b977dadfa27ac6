package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Catalog is an immutable, validated set of plans.
type Catalog struct {
	plans map[string]Plan
	order []string
}

// NewCatalog loads and validates plans from source.
func NewCatalog(ctx context.Context, source PlansSource) (*Catalog, error) {
	plans, err := source.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate plan id %q", ErrInvalidPlan, p.ID)
		}
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	if len(c.plans) == 0 {
		return nil, fmt.Errorf("%w: catalog is empty", ErrFailedToLoadPlans)
	}

	slices.SortStableFunc(c.order, func(a, b string) int {
		pa, pb := c.plans[a], c.plans[b]
		if pa.Price.Amount != pb.Price.Amount {
			if pa.Price.Amount < pb.Price.Amount {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})

	return c, nil
}

// Plan returns the plan with the given id or ErrPlanNotFound.
func (c *Catalog) Plan(id string) (Plan, error) {
	p, ok := c.plans[strings.TrimSpace(id)]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// List returns all plans ordered by price.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}
