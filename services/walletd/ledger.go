package walletd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ledgererrors "walletledger/core/errors"
	"walletledger/core/types"
	"walletledger/native/invest"
	"walletledger/native/payments"
	"walletledger/native/rewards"
	telemetry "walletledger/observability/otel"
	"walletledger/storage"
)

const (
	accountsPrefix = "accounts/"
	invitesPrefix  = "invites/"
	txIndexPrefix  = "txindex/"
	grantsPrefix   = "grants/"
	settingsPath   = "settings"
)

func accountPath(id string) string { return accountsPrefix + id }

// Ledger orchestrates the pure engines over the versioned document store.
// Every mutation reads the documents it needs, computes the new state and
// commits it with expected versions, retrying on conflict.
type Ledger struct {
	store         *storage.Store
	catalog       *invest.Catalog
	policy        Policy
	loc           *time.Location
	now           func() time.Time
	draw          rewards.Draw
	metrics       *Metrics
	tracer        trace.Tracer
	logger        *slog.Logger
	maxRetries    int
	backoff       time.Duration
	minWithdrawal decimal.Decimal
	dailyBonus    decimal.Decimal
	settings      types.AppSettings
	reportDir     string
}

// Option customises the ledger instance.
type Option func(*Ledger)

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.now = clock }
}

// WithDraw replaces the spin random source.
func WithDraw(draw rewards.Draw) Option {
	return func(l *Ledger) { l.draw = draw }
}

// WithLocation sets the reference timezone for day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.loc = loc }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithRetries bounds conflict retries and sets the base backoff.
func WithRetries(maxRetries int, backoff time.Duration) Option {
	return func(l *Ledger) {
		l.maxRetries = maxRetries
		l.backoff = backoff
	}
}

// WithWalletRules sets the minimum withdrawal and the daily check-in bonus.
func WithWalletRules(minWithdrawal, dailyBonus decimal.Decimal) Option {
	return func(l *Ledger) {
		l.minWithdrawal = minWithdrawal
		l.dailyBonus = dailyBonus
	}
}

// WithDefaultSettings sets the settings returned before an admin saves any.
func WithDefaultSettings(settings types.AppSettings) Option {
	return func(l *Ledger) { l.settings = settings }
}

// WithReportDir sets where exported reports are written.
func WithReportDir(dir string) Option {
	return func(l *Ledger) { l.reportDir = dir }
}

// NewLedger constructs a ledger over store offering the plans in catalog.
func NewLedger(store *storage.Store, catalog *invest.Catalog, policy Policy, opts ...Option) *Ledger {
	l := &Ledger{
		store:         store,
		catalog:       catalog,
		policy:        policy,
		loc:           time.UTC,
		now:           time.Now,
		draw:          rewards.DefaultDraw,
		metrics:       NewMetrics(),
		tracer:        telemetry.Tracer("walletledger/walletd"),
		logger:        slog.Default(),
		maxRetries:    8,
		backoff:       10 * time.Millisecond,
		minWithdrawal: payments.DefaultMinimumWithdrawal,
		dailyBonus:    decimal.NewFromInt(1),
		settings:      DefaultSettings(),
		reportDir:     "reports",
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.loc == nil {
		l.loc = time.UTC
	}
	if l.maxRetries < 0 {
		l.maxRetries = 0
	}
	return l
}

// Catalog exposes the plan catalog.
func (l *Ledger) Catalog() *invest.Catalog { return l.catalog }

// Policy exposes the admin policy.
func (l *Ledger) Policy() Policy { return l.policy }

// Store exposes the underlying document store.
func (l *Ledger) Store() *storage.Store { return l.store }

// txn is one optimistic attempt. It caches every document it reads together
// with the version observed so the commit can assert nothing changed.
type txn struct {
	ctx      context.Context
	store    *storage.Store
	now      time.Time
	versions map[string]uint64
	accounts map[string]*types.Account
	dirty    []string
	writes   map[string][]byte
	order    []string
}

func (l *Ledger) newTxn(ctx context.Context) *txn {
	return &txn{
		ctx:      ctx,
		store:    l.store,
		now:      l.now(),
		versions: make(map[string]uint64),
		accounts: make(map[string]*types.Account),
		writes:   make(map[string][]byte),
	}
}

// get reads a raw document and records its version. Absent documents are
// recorded with version 0.
func (t *txn) get(path string) (storage.Document, bool, error) {
	doc, err := t.store.Get(t.ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		t.versions[path] = 0
		return storage.Document{}, false, nil
	}
	if err != nil {
		return storage.Document{}, false, err
	}
	t.versions[path] = doc.Version
	return doc, true, nil
}

// account loads and decodes the account once per attempt.
func (t *txn) account(id string) (*types.Account, error) {
	if acc, ok := t.accounts[id]; ok {
		return acc, nil
	}
	doc, ok, err := t.get(accountPath(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	acc, err := types.DecodeAccount(doc.Value)
	if err != nil {
		return nil, err
	}
	t.accounts[id] = acc
	return acc, nil
}

// create stages a brand new account.
func (t *txn) create(acc *types.Account) {
	path := accountPath(acc.ID)
	t.versions[path] = 0
	t.accounts[acc.ID] = acc
	t.touch(acc)
}

// touch marks a loaded account for write-back.
func (t *txn) touch(acc *types.Account) {
	for _, id := range t.dirty {
		if id == acc.ID {
			return
		}
	}
	t.dirty = append(t.dirty, acc.ID)
}

// put stages a raw document write guarded by the version observed by get.
// Paths never read are written with create-only semantics.
func (t *txn) put(path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("walletd: encode %s: %w", path, err)
	}
	if _, ok := t.writes[path]; !ok {
		t.order = append(t.order, path)
	}
	t.writes[path] = raw
	return nil
}

// index stages the txindex entry resolving a transaction id to its owner.
// Every recorded transaction is indexed, moderated or not.
func (t *txn) index(txID, accountID string) error {
	return t.put(txIndexPrefix+txID, txIndexEntry{AccountID: accountID})
}

func (t *txn) mutations() ([]storage.Mutation, error) {
	muts := make([]storage.Mutation, 0, len(t.dirty)+len(t.order))
	for _, id := range t.dirty {
		acc := t.accounts[id]
		if err := acc.Validate(); err != nil {
			return nil, fmt.Errorf("walletd: account %s would violate invariants: %w", id, err)
		}
		raw, err := types.EncodeAccount(acc)
		if err != nil {
			return nil, err
		}
		path := accountPath(id)
		muts = append(muts, storage.Mutation{Path: path, Value: raw, ExpectedVersion: t.versions[path]})
	}
	for _, path := range t.order {
		muts = append(muts, storage.Mutation{Path: path, Value: t.writes[path], ExpectedVersion: t.versions[path]})
	}
	return muts, nil
}

type txIndexEntry struct {
	AccountID string `json:"accountId"`
}

type inviteEntry struct {
	AccountID string `json:"accountId"`
}

type grantEntry struct {
	AccountID  string    `json:"accountId"`
	ReferrerID string    `json:"referrerId,omitempty"`
	Granted    bool      `json:"granted"`
	At         time.Time `json:"at"`
}

// mutate runs fn inside an optimistic transaction. fn must be free of side
// effects outside the txn because it may run several times.
func (l *Ledger) mutate(ctx context.Context, op string, fn func(*txn) error) error {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "walletd."+op)
	defer span.End()

	err := l.runAttempts(ctx, op, span, fn)
	outcome := string(ledgererrors.ClassOf(err))
	if err == nil {
		outcome = "ok"
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	l.metrics.ObserveOperation(op, outcome, time.Since(start))
	return err
}

func (l *Ledger) runAttempts(ctx context.Context, op string, span trace.Span, fn func(*txn) error) error {
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		span.SetAttributes(attribute.Int("ledger.attempt", attempt+1))
		t := l.newTxn(ctx)
		if err := fn(t); err != nil {
			return err
		}
		muts, err := t.mutations()
		if err != nil {
			return err
		}
		if len(muts) == 0 {
			return nil
		}
		_, err = l.store.Update(ctx, muts)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return err
		}
		l.metrics.RecordConflict(op)
		l.logger.Debug("ledger conflict, retrying", slog.String("op", op), slog.Int("attempt", attempt+1))
		if attempt == l.maxRetries {
			break
		}
		if err := l.sleep(ctx, attempt); err != nil {
			return err
		}
	}
	l.logger.Warn("ledger retries exhausted", slog.String("op", op), slog.Int("attempt", l.maxRetries+1))
	return ErrConflictExhausted
}

func (l *Ledger) sleep(ctx context.Context, attempt int) error {
	if l.backoff <= 0 {
		return nil
	}
	base := l.backoff << min(attempt, 6)
	wait := base/2 + time.Duration(rand.Int64N(int64(base/2)+1))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
