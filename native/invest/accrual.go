package invest

import (
	"time"

	"github.com/shopspring/decimal"

	"walletledger/core/types"
)

// StartOfDay returns local midnight of now in loc.
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Accrue credits one day of income for every active investment unless the
// account was already accrued for the current day in loc. Investments past
// their end date are completed without income. The returned flag reports
// whether the account was modified and must be persisted.
func Accrue(acc *types.Account, now time.Time, loc *time.Location) (decimal.Decimal, bool) {
	if acc == nil {
		return decimal.Zero, false
	}
	today := StartOfDay(now, loc)
	if acc.LastAccrualDate != nil && !acc.LastAccrualDate.Before(today) {
		return decimal.Zero, false
	}
	credited := decimal.Zero
	for _, inv := range acc.Investments {
		if inv == nil || inv.Status != types.InvestmentActive {
			continue
		}
		if now.After(inv.EndDate) {
			inv.Status = types.InvestmentCompleted
			continue
		}
		credited = credited.Add(inv.DailyIncome)
	}
	acc.Balance = acc.Balance.Add(credited)
	acc.TotalEarning = acc.TotalEarning.Add(credited)
	acc.TodayEarning = credited
	acc.LastAccrualDate = types.TimePtr(today)
	return credited, true
}
