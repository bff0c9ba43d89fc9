package invest

import (
	"fmt"
	"time"

	"walletledger/core/types"
)

const day = 24 * time.Hour

// Purchase debits the plan price and opens a new active investment.
func Purchase(acc *types.Account, plan Plan, id string, now time.Time) (*types.Investment, error) {
	if acc == nil {
		return nil, ErrNilAccount
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if plan.Restricted() && acc.ActiveInvestments(plan.ID) >= plan.MaxActive {
		return nil, fmt.Errorf("%w: plan %s allows %d active", ErrPlanLimitReached, plan.ID, plan.MaxActive)
	}
	if acc.Balance.LessThan(plan.Price) {
		return nil, ErrInsufficientBalance
	}
	inv := &types.Investment{
		ID:             id,
		ProductID:      plan.ID,
		PlanName:       plan.Name,
		InvestedAmount: plan.Price,
		DailyIncome:    plan.DailyIncome,
		TotalIncome:    plan.TotalRevenue,
		StartDate:      now,
		EndDate:        now.Add(time.Duration(plan.DurationDays) * day),
		Status:         types.InvestmentActive,
	}
	if acc.Investments == nil {
		acc.Investments = make(map[string]*types.Investment)
	}
	acc.Balance = acc.Balance.Sub(plan.Price)
	acc.Investments[id] = inv
	return inv, nil
}

// Cancel moves an active investment to the cancelled state. No refund is
// issued.
func Cancel(acc *types.Account, id string) error {
	if acc == nil {
		return ErrNilAccount
	}
	inv, ok := acc.Investments[id]
	if !ok || inv == nil {
		return ErrInvestmentNotFound
	}
	if inv.Status != types.InvestmentActive {
		return ErrInvestmentNotActive
	}
	inv.Status = types.InvestmentCancelled
	return nil
}
