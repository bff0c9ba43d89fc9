package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"walletledger/core/types"
)

// DefaultMinimumWithdrawal is the smallest withdrawal accepted when no
// override is configured.
var DefaultMinimumWithdrawal = decimal.NewFromInt(500)

// Decision is the moderation verdict applied to a pending transaction.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Effect summarises what a moderation decision did to the account.
type Effect struct {
	Transaction *types.Transaction
	Credited    decimal.Decimal
	Refunded    decimal.Decimal
	// FirstDeposit is set when an approved recharge must run the referral
	// hook.
	FirstDeposit bool
}

// RequestRecharge records a pending deposit. The balance is untouched until
// an admin approves it.
func RequestRecharge(acc *types.Account, id string, amount decimal.Decimal, reference string, now time.Time) (*types.Transaction, error) {
	if acc == nil {
		return nil, ErrNilAccount
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrReferenceRequired
	}
	tx := &types.Transaction{
		ID:        id,
		Kind:      types.KindRecharge,
		Amount:    amount,
		CreatedAt: now,
		Status:    types.StatusPending,
		Reference: reference,
	}
	record(acc, tx)
	return tx, nil
}

// RequestWithdraw debits the amount immediately and records a pending
// withdrawal. Rejection refunds the amount.
func RequestWithdraw(acc *types.Account, id string, amount decimal.Decimal, details types.WithdrawalDetails, now time.Time, minimum decimal.Decimal) (*types.Transaction, error) {
	if acc == nil {
		return nil, ErrNilAccount
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amount.LessThan(minimum) {
		return nil, fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, minimum)
	}
	if amount.GreaterThan(acc.Balance) {
		return nil, ErrInsufficientBalance
	}
	details.FullName = strings.TrimSpace(details.FullName)
	details.Phone = strings.TrimSpace(details.Phone)
	details.PaymentAddress = strings.TrimSpace(details.PaymentAddress)
	if err := types.Validator().Struct(&details); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDetails, err)
	}
	tx := &types.Transaction{
		ID:                id,
		Kind:              types.KindWithdraw,
		Amount:            amount,
		CreatedAt:         now,
		Status:            types.StatusPending,
		WithdrawalDetails: &details,
	}
	acc.Balance = acc.Balance.Sub(amount)
	record(acc, tx)
	return tx, nil
}

// Approve finalises a pending recharge or withdrawal as approved.
func Approve(acc *types.Account, txID, actor string, now time.Time) (Effect, error) {
	return Decide(acc, txID, DecisionApprove, actor, now)
}

// Reject finalises a pending recharge or withdrawal as rejected.
func Reject(acc *types.Account, txID, actor string, now time.Time) (Effect, error) {
	return Decide(acc, txID, DecisionReject, actor, now)
}

// Decide applies a moderation decision. Terminal transactions, including the
// pre-approved reward and bonus records, are never touched again.
func Decide(acc *types.Account, txID string, decision Decision, actor string, now time.Time) (Effect, error) {
	if acc == nil {
		return Effect{}, ErrNilAccount
	}
	tx, ok := acc.Transactions[txID]
	if !ok || tx == nil {
		return Effect{}, ErrTransactionNotFound
	}
	if tx.Status.Terminal() {
		return Effect{}, fmt.Errorf("%w: %s is %s", ErrAlreadyFinalized, txID, tx.Status)
	}
	if !tx.Kind.Moderated() {
		return Effect{}, ErrNotModeratable
	}
	effect := Effect{Transaction: tx, Credited: decimal.Zero, Refunded: decimal.Zero}
	switch decision {
	case DecisionApprove:
		tx.Status = types.StatusApproved
		if tx.Kind == types.KindRecharge {
			acc.Balance = acc.Balance.Add(tx.Amount)
			effect.Credited = tx.Amount
			effect.FirstDeposit = !acc.HasDeposited
		}
	case DecisionReject:
		tx.Status = types.StatusRejected
		if tx.Kind == types.KindWithdraw {
			acc.Balance = acc.Balance.Add(tx.Amount)
			effect.Refunded = tx.Amount
		}
	default:
		return Effect{}, fmt.Errorf("%w: %q", ErrUnknownDecision, decision)
	}
	tx.DecidedAt = types.TimePtr(now)
	tx.DecidedBy = actor
	return effect, nil
}

func record(acc *types.Account, tx *types.Transaction) {
	if acc.Transactions == nil {
		acc.Transactions = make(map[string]*types.Transaction)
	}
	acc.Transactions[tx.ID] = tx
}
