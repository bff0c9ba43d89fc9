package rewards

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"walletledger/core/types"
)

// ClaimCooldown is the minimum spacing between two reward claims.
const ClaimCooldown = 24 * time.Hour

// ClaimReference labels the transaction recorded for a successful claim.
const ClaimReference = "Spin Reward Claim"

// Outcome reports the result of a claim attempt. Exactly one of the error
// sentinels accompanies every non-claimed outcome.
type Outcome struct {
	Claimed   bool            `json:"claimed"`
	Amount    decimal.Decimal `json:"amount"`
	Remaining time.Duration   `json:"remaining,omitempty"`
	TxID      string          `json:"txId,omitempty"`
}

// Claim pays out one day of the stacked reward rate. A rate without an end
// date has no open window and counts as expired. Expiry leaves the rate in
// place; a later winning spin stacks on top of it and reopens the window.
func Claim(acc *types.Account, txID string, now time.Time) (Outcome, error) {
	if acc == nil {
		return Outcome{}, ErrNilAccount
	}
	rate := acc.RewardDailyRate
	if !rate.IsPositive() {
		return Outcome{}, ErrNoActiveReward
	}
	if acc.RewardEndDate == nil || now.After(*acc.RewardEndDate) {
		return Outcome{}, ErrRewardExpired
	}
	if acc.LastRewardClaim != nil {
		elapsed := now.Sub(*acc.LastRewardClaim)
		if elapsed < ClaimCooldown {
			remaining := ClaimCooldown - elapsed
			return Outcome{Remaining: remaining}, fmt.Errorf("%w: %s remaining", ErrCooldown, remaining.Round(time.Second))
		}
	}
	acc.Balance = acc.Balance.Add(rate)
	acc.LastRewardClaim = types.TimePtr(now)
	if acc.Transactions == nil {
		acc.Transactions = make(map[string]*types.Transaction)
	}
	acc.Transactions[txID] = &types.Transaction{
		ID:        txID,
		Kind:      types.KindDailyReward,
		Amount:    rate,
		CreatedAt: now,
		Status:    types.StatusApproved,
		Reference: ClaimReference,
	}
	return Outcome{Claimed: true, Amount: rate, TxID: txID}, nil
}
