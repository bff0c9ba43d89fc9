package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind distinguishes the money movements recorded on an account.
type TransactionKind string

const (
	KindRecharge    TransactionKind = "recharge"
	KindWithdraw    TransactionKind = "withdraw"
	KindDailyReward TransactionKind = "daily_reward"
	KindBonus       TransactionKind = "bonus"
)

// Valid reports whether the kind is known.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindRecharge, KindWithdraw, KindDailyReward, KindBonus:
		return true
	default:
		return false
	}
}

// Moderated reports whether transactions of this kind go through admin review.
func (k TransactionKind) Moderated() bool {
	return k == KindRecharge || k == KindWithdraw
}

// TransactionStatus tracks moderation progress.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusRejected TransactionStatus = "rejected"
)

// Valid reports whether the status is known.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are allowed.
func (s TransactionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// PaymentMethod is the payout rail selected for a withdrawal.
type PaymentMethod string

const (
	MethodUPI  PaymentMethod = "upi"
	MethodBank PaymentMethod = "bank"
)

// WithdrawalDetails describes where a withdrawal should be paid.
type WithdrawalDetails struct {
	FullName       string        `json:"fullName" validate:"required,max=120"`
	Phone          string        `json:"phoneNumber" validate:"required,max=32"`
	Method         PaymentMethod `json:"method" validate:"required,oneof=upi bank"`
	PaymentAddress string        `json:"paymentAddress" validate:"required,max=256"`
}

// Transaction is a single money movement on an account.
type Transaction struct {
	ID                string             `json:"id" validate:"required"`
	Kind              TransactionKind    `json:"type" validate:"required,oneof=recharge withdraw daily_reward bonus"`
	Amount            decimal.Decimal    `json:"amount"`
	CreatedAt         time.Time          `json:"date"`
	Status            TransactionStatus  `json:"status" validate:"required,oneof=pending approved rejected"`
	Reference         string             `json:"utr,omitempty" validate:"max=128"`
	WithdrawalDetails *WithdrawalDetails `json:"withdrawalDetails,omitempty" validate:"omitempty"`
	DecidedAt         *time.Time         `json:"decidedAt,omitempty"`
	DecidedBy         string             `json:"decidedBy,omitempty"`
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	out := *t
	if t.WithdrawalDetails != nil {
		details := *t.WithdrawalDetails
		out.WithdrawalDetails = &details
	}
	out.DecidedAt = cloneTime(t.DecidedAt)
	return &out
}
