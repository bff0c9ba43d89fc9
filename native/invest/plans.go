package invest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Plan is a purchasable fixed-term product.
type Plan struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DailyIncome  decimal.Decimal `json:"dailyIncome"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	DurationDays int             `json:"durationDays"`
	// MaxActive caps concurrent active instances per account. Zero means
	// unlimited.
	MaxActive int `json:"maxActive,omitempty"`
}

// Restricted reports whether the plan carries a per-account purchase limit.
func (p Plan) Restricted() bool { return p.MaxActive > 0 }

// Validate checks the plan definition for internal consistency.
func (p Plan) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidPlan)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: plan %s: name required", ErrInvalidPlan, p.ID)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("%w: plan %s: price must be positive", ErrInvalidPlan, p.ID)
	}
	if !p.DailyIncome.IsPositive() {
		return fmt.Errorf("%w: plan %s: daily income must be positive", ErrInvalidPlan, p.ID)
	}
	if p.DurationDays <= 0 {
		return fmt.Errorf("%w: plan %s: duration must be positive", ErrInvalidPlan, p.ID)
	}
	if p.MaxActive < 0 {
		return fmt.Errorf("%w: plan %s: max active must not be negative", ErrInvalidPlan, p.ID)
	}
	return nil
}

// Catalog is the immutable set of plans offered to users.
type Catalog struct {
	plans []Plan
	byID  map[string]Plan
}

// NewCatalog validates the supplied plans and indexes them by id. When a
// plan omits its total revenue it is derived from daily income and duration.
func NewCatalog(plans []Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: catalog is empty", ErrInvalidPlan)
	}
	c := &Catalog{byID: make(map[string]Plan, len(plans))}
	for _, plan := range plans {
		plan.ID = strings.TrimSpace(plan.ID)
		if err := plan.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.byID[plan.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate plan id %s", ErrInvalidPlan, plan.ID)
		}
		if plan.TotalRevenue.IsZero() {
			plan.TotalRevenue = plan.DailyIncome.Mul(decimal.NewFromInt(int64(plan.DurationDays)))
		}
		c.byID[plan.ID] = plan
		c.plans = append(c.plans, plan)
	}
	sort.SliceStable(c.plans, func(i, j int) bool {
		return c.plans[i].Price.LessThan(c.plans[j].Price)
	})
	return c, nil
}

// Get returns the plan with the supplied id.
func (c *Catalog) Get(id string) (Plan, error) {
	if c == nil {
		return Plan{}, ErrPlanNotFound
	}
	plan, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return plan, nil
}

// Plans returns the catalog ordered by ascending price.
func (c *Catalog) Plans() []Plan {
	if c == nil {
		return nil
	}
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}
