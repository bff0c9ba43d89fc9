package rewards

import (
	"time"

	"github.com/shopspring/decimal"

	"walletledger/core/types"
)

const bonusReference = "Daily Check-in"

// ClaimDailyBonus credits the check-in bonus at most once per calendar day
// in loc.
func ClaimDailyBonus(acc *types.Account, txID string, now time.Time, loc *time.Location, amount decimal.Decimal) (*types.Transaction, error) {
	if acc == nil {
		return nil, ErrNilAccount
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidBonus
	}
	if loc == nil {
		loc = time.UTC
	}
	if acc.LastDailyBonus != nil && sameDay(*acc.LastDailyBonus, now, loc) {
		return nil, ErrBonusAlreadyClaimed
	}
	tx := &types.Transaction{
		ID:        txID,
		Kind:      types.KindBonus,
		Amount:    amount,
		CreatedAt: now,
		Status:    types.StatusApproved,
		Reference: bonusReference,
	}
	if acc.Transactions == nil {
		acc.Transactions = make(map[string]*types.Transaction)
	}
	acc.Balance = acc.Balance.Add(amount)
	acc.LastDailyBonus = types.TimePtr(now)
	acc.Transactions[txID] = tx
	return tx, nil
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
