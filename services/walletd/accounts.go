package walletd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	ledgererrors "walletledger/core/errors"
	"walletledger/core/types"
	"walletledger/gateway/middleware"
	"walletledger/native/invest"
	"walletledger/native/referral"
	"walletledger/observability/logging"
	"walletledger/storage"
)

const inviteCodeAttempts = 8

// RegisterRequest carries the profile captured at sign-up.
type RegisterRequest struct {
	Name       string `json:"name" validate:"max=120"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phoneNumber" validate:"max=32"`
	InviteCode string `json:"inviteCode"`
}

// Register creates the ledger account for an authenticated identity. The
// account id is the token subject. An invite code that matches no account is
// ignored.
func (l *Ledger) Register(ctx context.Context, id middleware.Identity, req RegisterRequest) (*types.Account, error) {
	subject := strings.TrimSpace(id.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject required", ErrInvalidRequest)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" {
		req.Name = id.Name
	}
	if req.Email == "" {
		req.Email = id.Email
	}
	if err := types.Validator().Struct(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	code, err := referral.NormalizeInviteCode(req.InviteCode)
	if err != nil {
		return nil, err
	}

	var created *types.Account
	err = l.mutate(ctx, "register", func(t *txn) error {
		if _, exists, err := t.get(accountPath(subject)); err != nil {
			return err
		} else if exists {
			return ErrAccountExists
		}
		acc := types.NewAccount(subject, t.now)
		acc.Name = req.Name
		acc.Email = req.Email
		acc.Phone = req.Phone

		if code != "" {
			referrer, err := t.inviteOwner(code)
			if err != nil {
				return err
			}
			referral.Bind(acc, referrer)
		}

		own, err := t.freshInviteCode()
		if err != nil {
			return err
		}
		acc.InviteCode = own
		if err := t.put(invitesPrefix+own, inviteEntry{AccountID: subject}); err != nil {
			return err
		}
		t.create(acc)
		created = acc.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("account registered",
		slog.String("account", created.ID),
		slog.Bool("referred", created.ReferrerID != ""))
	return created, nil
}

// inviteOwner resolves an invite code to its account. Unknown codes yield a
// nil account.
func (t *txn) inviteOwner(code string) (*types.Account, error) {
	doc, ok, err := t.get(invitesPrefix + code)
	if err != nil || !ok {
		return nil, err
	}
	var entry inviteEntry
	if err := json.Unmarshal(doc.Value, &entry); err != nil {
		return nil, fmt.Errorf("%w: invite %s: %v", types.ErrCorruptRecord, code, err)
	}
	acc, err := t.account(entry.AccountID)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	return acc, err
}

func (t *txn) freshInviteCode() (string, error) {
	for i := 0; i < inviteCodeAttempts; i++ {
		code, err := referral.NewInviteCode()
		if err != nil {
			return "", err
		}
		if _, taken, err := t.get(invitesPrefix + code); err != nil {
			return "", err
		} else if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("walletd: could not allocate invite code: %w", ledgererrors.ErrConcurrency)
}

// Account returns the account after running the daily accrual. When the
// accrual cannot be persisted the last stored snapshot is returned instead.
func (l *Ledger) Account(ctx context.Context, accountID string) (*types.Account, error) {
	acc, credited, err := l.accrue(ctx, accountID)
	if err == nil {
		l.metrics.RecordAccrual(credited)
		return acc, nil
	}
	if errors.Is(err, ledgererrors.ErrNotFound) || errors.Is(err, types.ErrCorruptRecord) {
		return nil, err
	}
	l.logger.Warn("accrual not persisted, serving stored snapshot",
		slog.String("account", accountID),
		slog.String("error", err.Error()))
	return l.loadAccount(ctx, accountID)
}

func (l *Ledger) accrue(ctx context.Context, accountID string) (*types.Account, decimal.Decimal, error) {
	var snapshot *types.Account
	credited := decimal.Zero
	err := l.mutate(ctx, "accrue", func(t *txn) error {
		acc, err := t.account(accountID)
		if err != nil {
			return err
		}
		amount, changed := invest.Accrue(acc, t.now, l.loc)
		if changed {
			t.touch(acc)
		}
		credited = amount
		snapshot = acc.Clone()
		return nil
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	return snapshot, credited, nil
}

func (l *Ledger) loadAccount(ctx context.Context, accountID string) (*types.Account, error) {
	doc, err := l.store.Get(ctx, accountPath(accountID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, err
	}
	return types.DecodeAccount(doc.Value)
}

// UpdateAddress replaces the postal address on the profile.
func (l *Ledger) UpdateAddress(ctx context.Context, accountID, address string) (*types.Account, error) {
	address = strings.TrimSpace(address)
	if len(address) > 512 {
		return nil, fmt.Errorf("%w: address too long", ErrInvalidRequest)
	}
	var updated *types.Account
	err := l.mutate(ctx, "update_address", func(t *txn) error {
		acc, err := t.account(accountID)
		if err != nil {
			return err
		}
		acc.Address = address
		t.touch(acc)
		updated = acc.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("address updated", slog.String("account", accountID), logging.MaskField("address", address))
	return updated, nil
}
