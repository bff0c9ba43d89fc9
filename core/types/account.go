package types

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// InvestmentStatus enumerates the lifecycle states of a purchased plan.
type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentCompleted InvestmentStatus = "completed"
	InvestmentCancelled InvestmentStatus = "cancelled"
)

// Valid reports whether the status is a known lifecycle state.
func (s InvestmentStatus) Valid() bool {
	switch s {
	case InvestmentActive, InvestmentCompleted, InvestmentCancelled:
		return true
	default:
		return false
	}
}

// Investment is a single purchased plan instance. Investments are never deleted.
type Investment struct {
	ID             string           `json:"id" validate:"required"`
	ProductID      string           `json:"productId" validate:"required"`
	PlanName       string           `json:"planName,omitempty"`
	InvestedAmount decimal.Decimal  `json:"investedAmount"`
	DailyIncome    decimal.Decimal  `json:"dailyIncome"`
	TotalIncome    decimal.Decimal  `json:"totalIncome"`
	StartDate      time.Time        `json:"startDate"`
	EndDate        time.Time        `json:"endDate"`
	Status         InvestmentStatus `json:"status" validate:"required,oneof=active completed cancelled"`
}

// Account is the per-user ledger document.
type Account struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name" validate:"max=120"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phoneNumber,omitempty" validate:"max=32"`
	Address    string `json:"address,omitempty" validate:"max=512"`
	InviteCode string `json:"inviteCode" validate:"required,alphanum"`

	Balance         decimal.Decimal `json:"balance"`
	SpinCredits     int64           `json:"spinCredits" validate:"gte=0"`
	RewardDailyRate decimal.Decimal `json:"rewardDailyRate"`
	RewardEndDate   *time.Time      `json:"rewardEndDate,omitempty"`
	LastRewardClaim *time.Time      `json:"lastRewardClaim,omitempty"`
	LastAccrualDate *time.Time      `json:"lastAccrualDate,omitempty"`
	LastDailyBonus  *time.Time      `json:"lastDailyBonus,omitempty"`
	TodayEarning    decimal.Decimal `json:"todayEarning"`
	TotalEarning    decimal.Decimal `json:"totalEarning"`

	ReferrerID   string `json:"referrerId,omitempty"`
	HasDeposited bool   `json:"hasDeposited"`

	Investments  map[string]*Investment  `json:"investments" validate:"dive"`
	Transactions map[string]*Transaction `json:"transactions" validate:"dive"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewAccount returns an empty account with zeroed counters.
func NewAccount(id string, now time.Time) *Account {
	return &Account{
		ID:           id,
		Investments:  make(map[string]*Investment),
		Transactions: make(map[string]*Transaction),
		CreatedAt:    now,
	}
}

// Clone returns a deep copy of the account so callers can mutate it without
// affecting the original snapshot.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.RewardEndDate = cloneTime(a.RewardEndDate)
	out.LastRewardClaim = cloneTime(a.LastRewardClaim)
	out.LastAccrualDate = cloneTime(a.LastAccrualDate)
	out.LastDailyBonus = cloneTime(a.LastDailyBonus)
	out.Investments = make(map[string]*Investment, len(a.Investments))
	for id, inv := range a.Investments {
		if inv == nil {
			continue
		}
		copied := *inv
		out.Investments[id] = &copied
	}
	out.Transactions = make(map[string]*Transaction, len(a.Transactions))
	for id, tx := range a.Transactions {
		if tx == nil {
			continue
		}
		out.Transactions[id] = tx.Clone()
	}
	return &out
}

// ActiveInvestments counts the active instances of the supplied product.
func (a *Account) ActiveInvestments(productID string) int {
	count := 0
	for _, inv := range a.Investments {
		if inv != nil && inv.ProductID == productID && inv.Status == InvestmentActive {
			count++
		}
	}
	return count
}

// SortedTransactions returns the account transactions newest first.
func (a *Account) SortedTransactions() []*Transaction {
	out := make([]*Transaction, 0, len(a.Transactions))
	for _, tx := range a.Transactions {
		if tx != nil {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// TimePtrOrNil returns a copy of t, or nil when t is nil.
func TimePtrOrNil(t *time.Time) *time.Time {
	return cloneTime(t)
}
