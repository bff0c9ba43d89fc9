package config

import "fmt"

func (e PlanEntry) validate() error {
	if e.Price <= 0 {
		return fmt.Errorf("plan %s: price must be positive", e.ID)
	}
	if e.DailyIncome <= 0 {
		return fmt.Errorf("plan %s: daily_income must be positive", e.ID)
	}
	if e.TotalRevenue < 0 {
		return fmt.Errorf("plan %s: total_revenue must not be negative", e.ID)
	}
	if e.DurationDays <= 0 {
		return fmt.Errorf("plan %s: duration_days must be positive", e.ID)
	}
	if e.MaxActive < 0 {
		return fmt.Errorf("plan %s: max_active must not be negative", e.ID)
	}
	return nil
}
