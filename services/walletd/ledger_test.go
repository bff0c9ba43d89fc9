package walletd

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletledger/config"
	ledgererrors "walletledger/core/errors"
	"walletledger/core/types"
	"walletledger/gateway/middleware"
	"walletledger/native/invest"
	"walletledger/native/payments"
	"walletledger/native/rewards"
	"walletledger/storage"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock { return &testClock{now: start} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var (
	adminID = middleware.Identity{Subject: "ops", Roles: []string{"admin"}}
	aliceID = middleware.Identity{Subject: "alice", Name: "Alice", Email: "alice@example.com"}
	bobID   = middleware.Identity{Subject: "bob", Name: "Bob"}
)

func newTestLedger(t *testing.T, store *storage.Store, opts ...Option) (*Ledger, *testClock) {
	t.Helper()
	if store == nil {
		store = storage.NewMemory()
	}
	t.Cleanup(func() { _ = store.Close() })
	clock := newTestClock(time.Date(2024, 5, 1, 10, 0, 0, 0, ist))
	base := []Option{
		WithClock(clock.Now),
		WithLocation(ist),
		WithRetries(50, time.Millisecond),
		WithReportDir(t.TempDir()),
	}
	return NewLedger(store, config.DefaultPlans(), Policy{AdminRole: "admin"}, append(base, opts...)...), clock
}

func withdrawalDetails() types.WithdrawalDetails {
	return types.WithdrawalDetails{
		FullName:       "Alice Example",
		Phone:          "+919000000000",
		Method:         types.MethodUPI,
		PaymentAddress: "alice@upi",
	}
}

func register(t *testing.T, l *Ledger, id middleware.Identity, invite string) *types.Account {
	t.Helper()
	acc, err := l.Register(context.Background(), id, RegisterRequest{InviteCode: invite})
	require.NoError(t, err)
	return acc
}

// fund credits amount through an approved recharge.
func fund(t *testing.T, l *Ledger, accountID string, amount int64) {
	t.Helper()
	ctx := context.Background()
	tx, err := l.RequestRecharge(ctx, accountID, decimal.NewFromInt(amount), "UTR"+accountID)
	require.NoError(t, err)
	_, err = l.Approve(ctx, adminID, tx.ID)
	require.NoError(t, err)
}

func balanceOf(t *testing.T, l *Ledger, accountID string) decimal.Decimal {
	t.Helper()
	acc, err := l.loadAccount(context.Background(), accountID)
	require.NoError(t, err)
	return acc.Balance
}

func TestRegisterBindsReferrer(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()

	alice := register(t, l, aliceID, "")
	require.Equal(t, "alice", alice.ID)
	require.Equal(t, "Alice", alice.Name)
	require.Len(t, alice.InviteCode, 6)
	require.Empty(t, alice.ReferrerID)

	bob := register(t, l, bobID, " "+alice.InviteCode+" ")
	require.Equal(t, "alice", bob.ReferrerID)
	require.NotEqual(t, alice.InviteCode, bob.InviteCode)

	_, err := l.Register(ctx, aliceID, RegisterRequest{})
	require.ErrorIs(t, err, ErrAccountExists)

	carol := register(t, l, middleware.Identity{Subject: "carol"}, "ZZZZZZ")
	require.Empty(t, carol.ReferrerID)

	_, err = l.Register(ctx, middleware.Identity{}, RegisterRequest{})
	require.ErrorIs(t, err, ledgererrors.ErrValidation)
}

func TestAccountNotFound(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	_, err := l.Account(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.Equal(t, ledgererrors.ClassNotFound, ledgererrors.ClassOf(err))
}

func TestInvestmentAccruesOnReadForFullTerm(t *testing.T) {
	l, clock := newTestLedger(t, nil)
	ctx := context.Background()
	register(t, l, aliceID, "")
	fund(t, l, "alice", 1000)

	inv, err := l.BuyProduct(ctx, "alice", "2")
	require.NoError(t, err)
	require.Equal(t, types.InvestmentActive, inv.Status)
	require.Equal(t, "Hair Growth Oil", inv.PlanName)
	require.True(t, inv.EndDate.Equal(clock.Now().Add(15*24*time.Hour)))
	require.True(t, balanceOf(t, l, "alice").Equal(decimal.NewFromInt(501)))

	_, err = l.BuyProduct(ctx, "alice", "2")
	require.ErrorIs(t, err, invest.ErrPlanLimitReached)

	clock.Advance(time.Hour)
	for day := 0; day < 15; day++ {
		acc, err := l.Account(ctx, "alice")
		require.NoError(t, err)
		require.True(t, acc.TodayEarning.Equal(decimal.NewFromInt(90)), "day %d", day)
		again, err := l.Account(ctx, "alice")
		require.NoError(t, err)
		require.True(t, again.Balance.Equal(acc.Balance), "second read on day %d credited again", day)
		clock.Advance(24 * time.Hour)
	}

	acc, err := l.Account(ctx, "alice")
	require.NoError(t, err)
	require.True(t, acc.TotalEarning.Equal(decimal.NewFromInt(1350)))
	require.True(t, acc.Balance.Equal(decimal.NewFromInt(501+1350)))
	require.Equal(t, types.InvestmentCompleted, acc.Investments[inv.ID].Status)
	require.True(t, acc.TodayEarning.IsZero())

	_, err = l.BuyProduct(ctx, "alice", "999")
	require.ErrorIs(t, err, invest.ErrPlanNotFound)
}

func TestWithdrawRejectRestoresBalance(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()
	register(t, l, aliceID, "")
	fund(t, l, "alice", 800)

	require.True(t, l.minWithdrawal.Equal(payments.DefaultMinimumWithdrawal))
	_, err := l.RequestWithdraw(ctx, "alice", payments.DefaultMinimumWithdrawal.Sub(decimal.NewFromInt(1)), withdrawalDetails())
	require.ErrorIs(t, err, payments.ErrBelowMinimum)
	_, err = l.RequestWithdraw(ctx, "alice", decimal.NewFromInt(900), withdrawalDetails())
	require.ErrorIs(t, err, payments.ErrInsufficientBalance)

	tx, err := l.RequestWithdraw(ctx, "alice", decimal.NewFromInt(500), withdrawalDetails())
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, tx.Status)
	require.True(t, balanceOf(t, l, "alice").Equal(decimal.NewFromInt(300)))

	decision, err := l.Reject(ctx, adminID, tx.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusRejected, decision.Transaction.Status)
	require.Equal(t, "ops", decision.Transaction.DecidedBy)
	require.True(t, decision.Balance.Equal(decimal.NewFromInt(800)))
	require.True(t, balanceOf(t, l, "alice").Equal(decimal.NewFromInt(800)))

	_, err = l.Approve(ctx, adminID, tx.ID)
	require.ErrorIs(t, err, ledgererrors.ErrAlreadyFinalized)
	_, err = l.Reject(ctx, adminID, tx.ID)
	require.ErrorIs(t, err, ledgererrors.ErrAlreadyFinalized)
	require.True(t, balanceOf(t, l, "alice").Equal(decimal.NewFromInt(800)))

	_, err = l.Approve(ctx, adminID, "missing")
	require.ErrorIs(t, err, payments.ErrTransactionNotFound)
}

func TestRechargeRequiresReference(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	register(t, l, aliceID, "")
	_, err := l.RequestRecharge(context.Background(), "alice", decimal.NewFromInt(100), "  ")
	require.ErrorIs(t, err, payments.ErrReferenceRequired)
	require.True(t, balanceOf(t, l, "alice").IsZero())
}

func TestModerationRequiresAdmin(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()
	register(t, l, aliceID, "")
	tx, err := l.RequestRecharge(ctx, "alice", decimal.NewFromInt(100), "UTR1")
	require.NoError(t, err)

	_, err = l.Approve(ctx, aliceID, tx.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = l.Reject(ctx, aliceID, tx.ID)
	require.ErrorIs(t, err, ledgererrors.ErrAuthorization)
	_, err = l.ListAccounts(ctx, aliceID)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = l.ListTransactions(ctx, aliceID, TransactionFilter{})
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = l.UpdateSettings(ctx, aliceID, DefaultSettings())
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = l.DailyReport(ctx, aliceID)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.True(t, balanceOf(t, l, "alice").IsZero())
}

func TestReferralGrantIsOneTime(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()
	alice := register(t, l, aliceID, "")
	register(t, l, bobID, alice.InviteCode)

	first, err := l.RequestRecharge(ctx, "bob", decimal.NewFromInt(500), "UTR1")
	require.NoError(t, err)
	second, err := l.RequestRecharge(ctx, "bob", decimal.NewFromInt(700), "UTR2")
	require.NoError(t, err)

	decision, err := l.Approve(ctx, adminID, first.ID)
	require.NoError(t, err)
	require.True(t, decision.ReferralGrant)
	require.Equal(t, "alice", decision.ReferrerID)

	decision, err = l.Approve(ctx, adminID, second.ID)
	require.NoError(t, err)
	require.False(t, decision.ReferralGrant)

	aliceAcc, err := l.loadAccount(ctx, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 1, aliceAcc.SpinCredits)

	bobAcc, err := l.loadAccount(ctx, "bob")
	require.NoError(t, err)
	require.True(t, bobAcc.HasDeposited)
	require.True(t, bobAcc.Balance.Equal(decimal.NewFromInt(1200)))
}

func TestRejectedRechargeDoesNotGrant(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()
	alice := register(t, l, aliceID, "")
	register(t, l, bobID, alice.InviteCode)

	tx, err := l.RequestRecharge(ctx, "bob", decimal.NewFromInt(500), "UTR1")
	require.NoError(t, err)
	_, err = l.Reject(ctx, adminID, tx.ID)
	require.NoError(t, err)

	aliceAcc, err := l.loadAccount(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, aliceAcc.SpinCredits)
	bobAcc, err := l.loadAccount(ctx, "bob")
	require.NoError(t, err)
	require.False(t, bobAcc.HasDeposited)
	require.True(t, bobAcc.Balance.IsZero())
}

func TestSpinAndClaimCooldown(t *testing.T) {
	l, clock := newTestLedger(t, nil, WithDraw(func() float64 { return 99.5 }))
	ctx := context.Background()
	alice := register(t, l, aliceID, "")
	register(t, l, bobID, alice.InviteCode)

	_, err := l.Spin(ctx, "alice")
	require.ErrorIs(t, err, rewards.ErrInsufficientSpinCredits)

	fund(t, l, "bob", 500)
	result, err := l.Spin(ctx, "alice")
	require.NoError(t, err)
	require.True(t, result.Prize.Equal(decimal.NewFromInt(100)))
	require.Zero(t, result.SpinCredits)
	require.True(t, result.RewardDailyRate.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, result.RewardEndDate)
	require.True(t, result.RewardEndDate.Equal(clock.Now().Add(rewards.RewardWindow)))

	outcome, err := l.ClaimReward(ctx, "alice")
	require.NoError(t, err)
	require.True(t, outcome.Claimed)
	require.True(t, outcome.Amount.Equal(decimal.NewFromInt(100)))
	require.True(t, balanceOf(t, l, "alice").Equal(decimal.NewFromInt(100)))

	clock.Advance(time.Hour)
	outcome, err = l.ClaimReward(ctx, "alice")
	require.ErrorIs(t, err, rewards.ErrCooldown)
	require.False(t, outcome.Claimed)
	require.Equal(t, 23*time.Hour, outcome.Remaining)
	require.True(t, balanceOf(t, l, "alice").Equal(decimal.NewFromInt(100)))

	clock.Advance(23 * time.Hour)
	outcome, err = l.ClaimReward(ctx, "alice")
	require.NoError(t, err)
	require.True(t, outcome.Claimed)
	require.True(t, balanceOf(t, l, "alice").Equal(decimal.NewFromInt(200)))
}

func TestDailyBonusOncePerDay(t *testing.T) {
	l, clock := newTestLedger(t, nil)
	ctx := context.Background()
	register(t, l, aliceID, "")

	tx, err := l.ClaimDailyBonus(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, types.KindBonus, tx.Kind)
	require.True(t, tx.Amount.Equal(decimal.NewFromInt(1)))

	clock.Advance(time.Hour)
	_, err = l.ClaimDailyBonus(ctx, "alice")
	require.ErrorIs(t, err, rewards.ErrBonusAlreadyClaimed)

	clock.Advance(24 * time.Hour)
	_, err = l.ClaimDailyBonus(ctx, "alice")
	require.NoError(t, err)
	require.True(t, balanceOf(t, l, "alice").Equal(decimal.NewFromInt(2)))
}

func TestPreApprovedTransactionsCannotBeModerated(t *testing.T) {
	l, _ := newTestLedger(t, nil, WithDraw(func() float64 { return 98 }))
	ctx := context.Background()
	alice := register(t, l, aliceID, "")
	register(t, l, bobID, alice.InviteCode)
	fund(t, l, "bob", 500)

	_, err := l.Spin(ctx, "alice")
	require.NoError(t, err)
	outcome, err := l.ClaimReward(ctx, "alice")
	require.NoError(t, err)
	bonus, err := l.ClaimDailyBonus(ctx, "alice")
	require.NoError(t, err)
	require.True(t, balanceOf(t, l, "alice").Equal(decimal.NewFromInt(51)))

	for _, txID := range []string{outcome.TxID, bonus.ID} {
		_, err = l.Approve(ctx, adminID, txID)
		require.ErrorIs(t, err, payments.ErrAlreadyFinalized, txID)
		require.Equal(t, ledgererrors.ClassAlreadyFinalized, ledgererrors.ClassOf(err))

		_, err = l.Reject(ctx, adminID, txID)
		require.ErrorIs(t, err, payments.ErrAlreadyFinalized, txID)
	}
	require.True(t, balanceOf(t, l, "alice").Equal(decimal.NewFromInt(51)))

	_, err = l.Approve(ctx, adminID, "no-such-tx")
	require.ErrorIs(t, err, payments.ErrTransactionNotFound)
}

func TestUpdateAddress(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	register(t, l, aliceID, "")
	acc, err := l.UpdateAddress(context.Background(), "alice", "  12 MG Road, Pune  ")
	require.NoError(t, err)
	require.Equal(t, "12 MG Road, Pune", acc.Address)

	long := make([]byte, 513)
	for i := range long {
		long[i] = 'a'
	}
	_, err = l.UpdateAddress(context.Background(), "alice", string(long))
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	register(t, l, aliceID, "")
	fund(t, l, "alice", 1000)

	const workers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RequestWithdraw(context.Background(), "alice", decimal.NewFromInt(500), withdrawalDetails())
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, payments.ErrInsufficientBalance), errors.Is(err, ErrConflictExhausted):
			default:
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n := int64(succeeded.Load())
	require.LessOrEqual(t, n, int64(2))
	require.GreaterOrEqual(t, n, int64(1))
	balance := balanceOf(t, l, "alice")
	require.False(t, balance.IsNegative())
	require.True(t, balance.Equal(decimal.NewFromInt(1000-500*n)))

	acc, err := l.loadAccount(context.Background(), "alice")
	require.NoError(t, err)
	pending := 0
	for _, tx := range acc.Transactions {
		if tx.Kind == types.KindWithdraw {
			pending++
		}
	}
	require.EqualValues(t, n, pending)
}

func TestConcurrentApprovalsGrantOnce(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()
	alice := register(t, l, aliceID, "")
	register(t, l, bobID, alice.InviteCode)

	var ids []string
	for i := 0; i < 4; i++ {
		tx, err := l.RequestRecharge(ctx, "bob", decimal.NewFromInt(100), "UTR")
		require.NoError(t, err)
		ids = append(ids, tx.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := l.Approve(ctx, adminID, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	aliceAcc, err := l.loadAccount(ctx, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 1, aliceAcc.SpinCredits)
	require.True(t, balanceOf(t, l, "bob").Equal(decimal.NewFromInt(400)))
}

type conflictingBackend struct {
	*storage.MemDB
	commits atomic.Int32
}

func (b *conflictingBackend) Commit([]storage.Mutation) ([]storage.Document, error) {
	b.commits.Add(1)
	return nil, storage.ErrVersionConflict
}

func TestConflictRetriesAreBounded(t *testing.T) {
	backend := &conflictingBackend{MemDB: storage.NewMemDB()}
	l, _ := newTestLedger(t, storage.New(backend), WithRetries(2, 0))

	_, err := l.Register(context.Background(), aliceID, RegisterRequest{})
	require.ErrorIs(t, err, ErrConflictExhausted)
	require.True(t, ledgererrors.Retryable(err))
	require.EqualValues(t, 3, backend.commits.Load())
}

func TestAccountServesSnapshotWhenAccrualCannotCommit(t *testing.T) {
	backend := &conflictingBackend{MemDB: storage.NewMemDB()}
	acc := types.NewAccount("alice", time.Date(2024, 5, 1, 0, 0, 0, 0, ist))
	acc.InviteCode = "ABCDEF"
	raw, err := types.EncodeAccount(acc)
	require.NoError(t, err)
	_, err = backend.MemDB.Commit([]storage.Mutation{{Path: accountPath("alice"), Value: raw}})
	require.NoError(t, err)

	l, _ := newTestLedger(t, storage.New(backend), WithRetries(0, 0))
	got, err := l.Account(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", got.ID)
	require.Nil(t, got.LastAccrualDate)
}
