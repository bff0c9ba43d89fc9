package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBuiltInPlans(t *testing.T) {
	catalog, err := LoadPlans("")
	require.NoError(t, err)

	plans := catalog.Plans()
	require.Len(t, plans, 8)
	require.Equal(t, "1", plans[0].ID)
	require.Equal(t, "8", plans[len(plans)-1].ID)

	oil, err := catalog.Get("2")
	require.NoError(t, err)
	require.True(t, oil.Price.Equal(decimal.NewFromInt(499)))
	require.True(t, oil.DailyIncome.Equal(decimal.NewFromInt(90)))
	require.Equal(t, 15, oil.DurationDays)
	require.Equal(t, 1, oil.MaxActive)

	heater, err := catalog.Get("5")
	require.NoError(t, err)
	require.False(t, heater.Restricted())
}

func TestLoadPlansFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.toml")
	contents := `
[[plan]]
id = "gold"
name = "Gold"
price = 1000
daily_income = 50
duration_days = 10
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	catalog, err := LoadPlans(path)
	require.NoError(t, err)
	gold, err := catalog.Get("gold")
	require.NoError(t, err)
	require.True(t, gold.TotalRevenue.Equal(decimal.NewFromInt(500)))
}

func TestLoadPlansRejectsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown key":   "[[plan]]\nid = \"a\"\nname = \"A\"\nprice = 1\ndaily_income = 1\nduration_days = 1\ncolour = \"red\"\n",
		"zero price":    "[[plan]]\nid = \"a\"\nname = \"A\"\nprice = 0\ndaily_income = 1\nduration_days = 1\n",
		"no duration":   "[[plan]]\nid = \"a\"\nname = \"A\"\nprice = 5\ndaily_income = 1\n",
		"empty catalog": "",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
			_, err := LoadPlans(path)
			require.Error(t, err)
		})
	}

	_, err := LoadPlans(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
}
