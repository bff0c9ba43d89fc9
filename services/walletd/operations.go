package walletd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"walletledger/core/types"
	"walletledger/native/invest"
	"walletledger/native/payments"
	"walletledger/native/rewards"
	"walletledger/observability/logging"
	"walletledger/storage"
)

// BuyProduct purchases one instance of the plan for the account.
func (l *Ledger) BuyProduct(ctx context.Context, accountID, productID string) (*types.Investment, error) {
	plan, err := l.catalog.Get(productID)
	if err != nil {
		return nil, err
	}
	var bought types.Investment
	err = l.mutate(ctx, "buy_product", func(t *txn) error {
		acc, err := t.account(accountID)
		if err != nil {
			return err
		}
		inv, err := invest.Purchase(acc, plan, t.store.PushID(), t.now)
		if err != nil {
			return err
		}
		t.touch(acc)
		bought = *inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("plan purchased",
		slog.String("account", accountID),
		slog.String("plan", plan.ID),
		slog.String("investment", bought.ID))
	return &bought, nil
}

// RequestRecharge records a pending deposit awaiting admin review.
func (l *Ledger) RequestRecharge(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*types.Transaction, error) {
	var recorded *types.Transaction
	err := l.mutate(ctx, "request_recharge", func(t *txn) error {
		acc, err := t.account(accountID)
		if err != nil {
			return err
		}
		tx, err := payments.RequestRecharge(acc, t.store.PushID(), amount, reference, t.now)
		if err != nil {
			return err
		}
		if err := t.index(tx.ID, acc.ID); err != nil {
			return err
		}
		t.touch(acc)
		recorded = tx.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("recharge requested",
		slog.String("account", accountID),
		slog.String("tx", recorded.ID),
		logging.MaskField("utr", recorded.Reference))
	return recorded, nil
}

// RequestWithdraw debits the balance and records a pending withdrawal.
func (l *Ledger) RequestWithdraw(ctx context.Context, accountID string, amount decimal.Decimal, details types.WithdrawalDetails) (*types.Transaction, error) {
	var recorded *types.Transaction
	err := l.mutate(ctx, "request_withdraw", func(t *txn) error {
		acc, err := t.account(accountID)
		if err != nil {
			return err
		}
		tx, err := payments.RequestWithdraw(acc, t.store.PushID(), amount, details, t.now, l.minWithdrawal)
		if err != nil {
			return err
		}
		if err := t.index(tx.ID, acc.ID); err != nil {
			return err
		}
		t.touch(acc)
		recorded = tx.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("withdrawal requested",
		slog.String("account", accountID),
		slog.String("tx", recorded.ID),
		logging.MaskField("payment_address", recorded.WithdrawalDetails.PaymentAddress))
	return recorded, nil
}

// SpinResult reports a spin and the resulting reward schedule.
type SpinResult struct {
	Prize           decimal.Decimal `json:"prize"`
	SpinCredits     int64           `json:"spinCredits"`
	RewardDailyRate decimal.Decimal `json:"rewardDailyRate"`
	RewardEndDate   *time.Time      `json:"rewardEndDate,omitempty"`
}

// Spin consumes one spin credit.
func (l *Ledger) Spin(ctx context.Context, accountID string) (SpinResult, error) {
	var result SpinResult
	err := l.mutate(ctx, "spin", func(t *txn) error {
		acc, err := t.account(accountID)
		if err != nil {
			return err
		}
		prize, err := rewards.Spin(acc, l.draw, t.now)
		if err != nil {
			return err
		}
		t.touch(acc)
		result = SpinResult{
			Prize:           prize,
			SpinCredits:     acc.SpinCredits,
			RewardDailyRate: acc.RewardDailyRate,
			RewardEndDate:   types.TimePtrOrNil(acc.RewardEndDate),
		}
		return nil
	})
	if err != nil {
		return SpinResult{}, err
	}
	l.metrics.RecordSpin(result.Prize)
	return result, nil
}

// ClaimReward pays one day of the stacked spin reward. A cooldown outcome is
// returned together with rewards.ErrCooldown so callers can show the wait.
func (l *Ledger) ClaimReward(ctx context.Context, accountID string) (rewards.Outcome, error) {
	var outcome rewards.Outcome
	err := l.mutate(ctx, "claim_reward", func(t *txn) error {
		acc, err := t.account(accountID)
		if err != nil {
			return err
		}
		out, err := rewards.Claim(acc, t.store.PushID(), t.now)
		outcome = out
		if err != nil {
			return err
		}
		if err := t.index(out.TxID, acc.ID); err != nil {
			return err
		}
		t.touch(acc)
		return nil
	})
	if err != nil && !errors.Is(err, rewards.ErrCooldown) {
		return rewards.Outcome{}, err
	}
	return outcome, err
}

// ClaimDailyBonus credits the check-in bonus once per calendar day.
func (l *Ledger) ClaimDailyBonus(ctx context.Context, accountID string) (*types.Transaction, error) {
	var recorded *types.Transaction
	err := l.mutate(ctx, "claim_bonus", func(t *txn) error {
		acc, err := t.account(accountID)
		if err != nil {
			return err
		}
		tx, err := rewards.ClaimDailyBonus(acc, t.store.PushID(), t.now, l.loc, l.dailyBonus)
		if err != nil {
			return err
		}
		if err := t.index(tx.ID, acc.ID); err != nil {
			return err
		}
		t.touch(acc)
		recorded = tx.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// Settings returns the stored settings, or the configured defaults when none
// were saved yet.
func (l *Ledger) Settings(ctx context.Context) (types.AppSettings, error) {
	doc, err := l.store.Get(ctx, settingsPath)
	if errors.Is(err, storage.ErrNotFound) {
		return l.settings, nil
	}
	if err != nil {
		return types.AppSettings{}, err
	}
	settings, err := types.DecodeSettings(doc.Value)
	if err != nil {
		return types.AppSettings{}, err
	}
	return *settings, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ErrInvalidRequest, raw)
	}
	return amount, nil
}
