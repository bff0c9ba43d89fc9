package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"walletledger/native/invest"
)

//go:embed plans.toml
var defaultPlans string

// PlanFile is the on-disk shape of the plan catalog.
type PlanFile struct {
	Plans []PlanEntry `toml:"plan"`
}

// PlanEntry describes one plan in whole currency units.
type PlanEntry struct {
	ID           string `toml:"id"`
	Name         string `toml:"name"`
	Price        int64  `toml:"price"`
	DailyIncome  int64  `toml:"daily_income"`
	TotalRevenue int64  `toml:"total_revenue"`
	DurationDays int    `toml:"duration_days"`
	MaxActive    int    `toml:"max_active"`
}

// LoadPlans reads the plan catalog at path. An empty path loads the built-in
// catalog.
func LoadPlans(path string) (*invest.Catalog, error) {
	var file PlanFile
	path = strings.TrimSpace(path)
	if path == "" {
		meta, err := toml.Decode(defaultPlans, &file)
		if err != nil {
			return nil, fmt.Errorf("decode built-in plans: %w", err)
		}
		if err := rejectUndecoded(meta); err != nil {
			return nil, err
		}
		return file.Catalog()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("plans file %s: %w", path, err)
	}
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("decode plans %s: %w", path, err)
	}
	if err := rejectUndecoded(meta); err != nil {
		return nil, fmt.Errorf("plans file %s: %w", path, err)
	}
	return file.Catalog()
}

// DefaultPlans returns the built-in catalog.
func DefaultPlans() *invest.Catalog {
	catalog, err := LoadPlans("")
	if err != nil {
		panic(err)
	}
	return catalog
}

// Catalog converts the file entries into a validated plan catalog.
func (f PlanFile) Catalog() (*invest.Catalog, error) {
	plans := make([]invest.Plan, 0, len(f.Plans))
	for _, entry := range f.Plans {
		if err := entry.validate(); err != nil {
			return nil, err
		}
		plans = append(plans, invest.Plan{
			ID:           strings.TrimSpace(entry.ID),
			Name:         strings.TrimSpace(entry.Name),
			Price:        decimal.NewFromInt(entry.Price),
			DailyIncome:  decimal.NewFromInt(entry.DailyIncome),
			TotalRevenue: decimal.NewFromInt(entry.TotalRevenue),
			DurationDays: entry.DurationDays,
			MaxActive:    entry.MaxActive,
		})
	}
	return invest.NewCatalog(plans)
}

func rejectUndecoded(meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown plan keys: %v", undecoded)
	}
	return nil
}
