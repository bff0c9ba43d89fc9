package walletd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"walletledger/core/types"
	"walletledger/gateway/middleware"
	"walletledger/native/payments"
	"walletledger/native/referral"
)

// AccountView is an account annotated with the moderation summary shown to
// admins.
type AccountView struct {
	*types.Account
	ActivePlans    int             `json:"activeInvestments"`
	CompletedPlans int             `json:"completedInvestments"`
	CancelledPlans int             `json:"cancelledInvestments"`
	TotalInvested  decimal.Decimal `json:"totalInvested"`
	TotalWithdrawn decimal.Decimal `json:"totalWithdrawn"`
}

func viewOf(acc *types.Account) AccountView {
	view := AccountView{Account: acc, TotalInvested: decimal.Zero, TotalWithdrawn: decimal.Zero}
	for _, inv := range acc.Investments {
		switch inv.Status {
		case types.InvestmentActive:
			view.ActivePlans++
		case types.InvestmentCompleted:
			view.CompletedPlans++
		case types.InvestmentCancelled:
			view.CancelledPlans++
		}
		view.TotalInvested = view.TotalInvested.Add(inv.InvestedAmount)
	}
	for _, tx := range acc.Transactions {
		if tx.Kind == types.KindWithdraw && tx.Status == types.StatusApproved {
			view.TotalWithdrawn = view.TotalWithdrawn.Add(tx.Amount)
		}
	}
	return view
}

// ListAccounts returns every account with today's accrual applied and
// persisted, oldest first.
func (l *Ledger) ListAccounts(ctx context.Context, actor middleware.Identity) ([]AccountView, error) {
	if err := l.policy.authorize(actor); err != nil {
		return nil, err
	}
	ids, err := l.accountIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AccountView, 0, len(ids))
	for _, id := range ids {
		acc, err := l.Account(ctx, id)
		if err != nil {
			l.logger.Warn("skipping account in aggregation", slog.String("account", id), slog.String("error", err.Error()))
			continue
		}
		out = append(out, viewOf(acc))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (l *Ledger) accountIDs(ctx context.Context) ([]string, error) {
	docs, err := l.store.List(ctx, accountsPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.Path[len(accountsPrefix):])
	}
	return ids, nil
}

func (l *Ledger) snapshotAccounts(ctx context.Context) ([]*types.Account, error) {
	docs, err := l.store.List(ctx, accountsPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Account, 0, len(docs))
	for _, doc := range docs {
		acc, err := types.DecodeAccount(doc.Value)
		if err != nil {
			l.logger.Warn("skipping corrupt account", slog.String("account", doc.Path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, acc)
	}
	return out, nil
}

// TransactionView annotates a transaction with its owner.
type TransactionView struct {
	*types.Transaction
	AccountID   string `json:"userId"`
	AccountName string `json:"userName"`
}

// TransactionFilter narrows ListTransactions. Empty fields match anything.
type TransactionFilter struct {
	Kind   types.TransactionKind
	Status types.TransactionStatus
}

// ListTransactions returns transactions across all accounts, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, actor middleware.Identity, filter TransactionFilter) ([]TransactionView, error) {
	if err := l.policy.authorize(actor); err != nil {
		return nil, err
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, filter.Kind)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, filter.Status)
	}
	accounts, err := l.snapshotAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionView, 0)
	for _, acc := range accounts {
		for _, tx := range acc.Transactions {
			if filter.Kind != "" && tx.Kind != filter.Kind {
				continue
			}
			if filter.Status != "" && tx.Status != filter.Status {
				continue
			}
			out = append(out, TransactionView{Transaction: tx, AccountID: acc.ID, AccountName: acc.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Decision reports the effect of a moderation action.
type Decision struct {
	Transaction   *types.Transaction `json:"transaction"`
	AccountID     string             `json:"userId"`
	Balance       decimal.Decimal    `json:"balance"`
	ReferralGrant bool               `json:"referralGrant"`
	ReferrerID    string             `json:"referrerId,omitempty"`
}

// Approve finalises a pending recharge or withdrawal. Approving the first
// recharge of a referred account grants its referrer one spin credit in the
// same atomic commit.
func (l *Ledger) Approve(ctx context.Context, actor middleware.Identity, txID string) (Decision, error) {
	return l.decide(ctx, actor, txID, payments.DecisionApprove)
}

// Reject finalises a pending recharge or withdrawal. Rejected withdrawals are
// refunded.
func (l *Ledger) Reject(ctx context.Context, actor middleware.Identity, txID string) (Decision, error) {
	return l.decide(ctx, actor, txID, payments.DecisionReject)
}

func (l *Ledger) decide(ctx context.Context, actor middleware.Identity, txID string, decision payments.Decision) (Decision, error) {
	if err := l.policy.authorize(actor); err != nil {
		return Decision{}, err
	}
	var result Decision
	err := l.mutate(ctx, string(decision), func(t *txn) error {
		ownerID, err := t.txOwner(txID)
		if err != nil {
			return err
		}
		acc, err := t.account(ownerID)
		if err != nil {
			return err
		}
		effect, err := payments.Decide(acc, txID, decision, actor.Subject, t.now)
		if err != nil {
			return err
		}
		t.touch(acc)
		result = Decision{Transaction: effect.Transaction.Clone(), AccountID: acc.ID}
		if effect.FirstDeposit {
			granted, err := t.grantReferral(acc, txID)
			if err != nil {
				return err
			}
			result.ReferralGrant = granted
			if granted {
				result.ReferrerID = acc.ReferrerID
			}
		}
		result.Balance = acc.Balance
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	l.metrics.RecordDecision(string(result.Transaction.Kind), string(decision))
	l.logger.Info("transaction moderated",
		slog.String("tx", txID),
		slog.String("account", result.AccountID),
		slog.String("kind", string(result.Transaction.Kind)),
		slog.String("decision", string(decision)),
		slog.String("actor", actor.Subject),
		slog.Bool("referral_grant", result.ReferralGrant))
	return result, nil
}

func (t *txn) txOwner(txID string) (string, error) {
	doc, ok, err := t.get(txIndexPrefix + txID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", payments.ErrTransactionNotFound
	}
	var entry txIndexEntry
	if err := json.Unmarshal(doc.Value, &entry); err != nil || entry.AccountID == "" {
		return "", fmt.Errorf("%w: txindex %s", types.ErrCorruptRecord, txID)
	}
	return entry.AccountID, nil
}

// grantReferral runs the first-deposit hook. The grant marker is written in
// the same commit as both accounts, so a replayed approval can never credit
// the referrer twice.
func (t *txn) grantReferral(acc *types.Account, txID string) (bool, error) {
	if _, exists, err := t.get(grantsPrefix + txID); err != nil {
		return false, err
	} else if exists {
		acc.HasDeposited = true
		return false, nil
	}
	var referrer *types.Account
	if acc.ReferrerID != "" {
		ref, err := t.account(acc.ReferrerID)
		switch {
		case errors.Is(err, ErrAccountNotFound):
		case err != nil:
			return false, err
		default:
			referrer = ref
		}
	}
	granted := referral.OnRechargeApproved(acc, referrer)
	if granted {
		t.touch(referrer)
	}
	err := t.put(grantsPrefix+txID, grantEntry{
		AccountID:  acc.ID,
		ReferrerID: acc.ReferrerID,
		Granted:    granted,
		At:         t.now,
	})
	return granted, err
}

// UpdateSettings replaces the settings singleton.
func (l *Ledger) UpdateSettings(ctx context.Context, actor middleware.Identity, settings types.AppSettings) (types.AppSettings, error) {
	if err := l.policy.authorize(actor); err != nil {
		return types.AppSettings{}, err
	}
	settings.Normalize()
	if err := types.Validator().Struct(&settings); err != nil {
		return types.AppSettings{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	err := l.mutate(ctx, "update_settings", func(t *txn) error {
		if _, _, err := t.get(settingsPath); err != nil {
			return err
		}
		settings.UpdatedAt = types.TimePtr(t.now)
		settings.UpdatedBy = actor.Subject
		return t.put(settingsPath, settings)
	})
	if err != nil {
		return types.AppSettings{}, err
	}
	l.logger.Info("settings updated", slog.String("actor", actor.Subject))
	return settings, nil
}
