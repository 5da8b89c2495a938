package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investsim/internal/clock"
	"investsim/internal/domain"
	"investsim/internal/lifecycle"
	"investsim/internal/repository"
	"investsim/internal/repository/memory"
)

var epoch = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	ledger *Ledger
	store  *memory.KVStore
	clock  *clock.Manual
}

func testPlans() []domain.Plan {
	return []domain.Plan{
		{ID: "p1", Name: "Starter", DurationDays: 7, AnnualROIPercent: 8, MinDeposit: 100},
		{ID: "p2", Name: "Growth", DurationDays: 30, AnnualROIPercent: 12, MinDeposit: 500},
		{ID: "p3", Name: "Premium", DurationDays: 365, AnnualROIPercent: 15, MinDeposit: 5000},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T, balance float64) *testEnv {
	t.Helper()
	catalog, err := memory.NewPlanCatalog(testPlans())
	require.NoError(t, err)

	store := memory.NewKVStore()
	clk := clock.NewManual(epoch)
	l := New(Config{InitialBalance: balance}, catalog, store, clk, quietLogger())
	t.Cleanup(func() { _ = l.Close(context.Background()) })

	return &testEnv{ledger: l, store: store, clock: clk}
}

func TestProcessInvestment_Success(t *testing.T) {
	env := setup(t, 1000)

	res, err := env.ledger.ProcessInvestment(context.Background(), "p2", 500)

	require.NoError(t, err)
	assert.Equal(t, 500.0, env.ledger.Balance())

	inv := res.Investment
	assert.Equal(t, "p2", inv.PlanID)
	assert.Equal(t, "Growth", inv.PlanName)
	assert.Equal(t, domain.CurrencyUSD, inv.Currency)
	assert.Equal(t, domain.InvestmentActive, inv.Status)
	assert.Equal(t, epoch, inv.StartDate)
	assert.Equal(t, epoch.Add(30*24*time.Hour), inv.LockedUntil)
	assert.Equal(t, epoch.Add(30*24*time.Hour), inv.ExpectedEndDate)
	assert.True(t, inv.IsLocked)

	txs := env.ledger.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TypeInvestment, txs[0].Type)
	assert.Equal(t, -500.0, txs[0].Amount)
	assert.Equal(t, domain.StatusCompleted, txs[0].Status)
	assert.Equal(t, inv.ID, txs[0].InvestmentID)
	assert.Equal(t, res.Transaction.ID, txs[0].ID)

	assert.Len(t, env.ledger.Investments(), 1)
	assert.NoError(t, env.ledger.CheckInvariant())
}

func TestProcessInvestment_LockIndependentOfDuration(t *testing.T) {
	env := setup(t, 1000)

	res, err := env.ledger.ProcessInvestment(context.Background(), "p1", 100)

	require.NoError(t, err)
	assert.Equal(t, epoch.Add(7*24*time.Hour), res.Investment.ExpectedEndDate)
	assert.Equal(t, epoch.Add(30*24*time.Hour), res.Investment.LockedUntil)
}

func TestProcessInvestment_Failures(t *testing.T) {
	tests := []struct {
		name   string
		planID string
		amount float64
		kind   Kind
		target error
	}{
		{"unknown plan", "p9", 500, KindPlanNotFound, ErrPlanNotFound},
		{"zero amount", "p2", 0, KindInvalidAmount, ErrInvalidAmount},
		{"negative amount", "p2", -10, KindInvalidAmount, ErrInvalidAmount},
		{"nan amount", "p2", math.NaN(), KindInvalidAmount, ErrInvalidAmount},
		{"infinite amount", "p2", math.Inf(1), KindInvalidAmount, ErrInvalidAmount},
		{"below minimum", "p2", 50, KindBelowMinimumDeposit, ErrBelowMinimumDeposit},
		{"over balance", "p2", 1500, KindInsufficientBalance, ErrInsufficientBalance},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := setup(t, 1000)

			_, err := env.ledger.ProcessInvestment(context.Background(), tc.planID, tc.amount)

			require.Error(t, err)
			assert.ErrorIs(t, err, tc.target)
			var lerr *Error
			require.True(t, errors.As(err, &lerr))
			assert.Equal(t, tc.kind, lerr.Kind)

			assert.Equal(t, 1000.0, env.ledger.Balance())
			assert.Empty(t, env.ledger.Transactions())
			assert.Empty(t, env.ledger.Investments())
			assert.Empty(t, env.ledger.Notifications())
		})
	}
}

func TestProcessInvestment_BelowMinimumMessage(t *testing.T) {
	env := setup(t, 1000)

	_, err := env.ledger.ProcessInvestment(context.Background(), "p2", 50)

	require.ErrorIs(t, err, ErrBelowMinimumDeposit)
	assert.Contains(t, err.Error(), "$500.00")
}

func TestProcessInvestment_ErrorKindsDoNotCrossMatch(t *testing.T) {
	env := setup(t, 1000)

	_, err := env.ledger.ProcessInvestment(context.Background(), "p2", 50)

	assert.False(t, errors.Is(err, ErrInsufficientBalance))
	assert.False(t, errors.Is(err, ErrPlanNotFound))
}

func TestAddTransaction_AppliesSignedAmount(t *testing.T) {
	env := setup(t, 100)
	ctx := context.Background()

	dep := env.ledger.AddTransaction(ctx, domain.TypeDeposit, 50, "Top up")
	wd := env.ledger.AddTransaction(ctx, domain.TypeWithdrawal, -30, "Cash out")

	assert.Equal(t, 120.0, env.ledger.Balance())
	assert.Equal(t, domain.StartOfDay(epoch), dep.Date)
	assert.Equal(t, domain.StatusCompleted, wd.Status)
	assert.NoError(t, env.ledger.CheckInvariant())
}

func TestWithdraw_BlockedByAnyLockedInvestment(t *testing.T) {
	env := setup(t, 2000)
	ctx := context.Background()

	_, err := env.ledger.ProcessInvestment(ctx, "p2", 500)
	require.NoError(t, err)

	env.clock.Advance(35 * 24 * time.Hour)
	second, err := env.ledger.ProcessInvestment(ctx, "p2", 500)
	require.NoError(t, err)

	env.clock.Advance(24 * time.Hour)
	_, err = env.ledger.Withdraw(ctx, 10)

	require.ErrorIs(t, err, ErrWithdrawalLocked)
	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, second.Investment.LockedUntil, lerr.UnlockAt)
	assert.Equal(t, 1000.0, env.ledger.Balance())

	status := env.ledger.WithdrawalStatus()
	assert.True(t, status.Locked)
	assert.Equal(t, second.Investment.LockedUntil, status.UnlockAt)
	assert.Equal(t, 0.0, status.Available)
}

func TestWithdraw_EarliestUnlockSurfaced(t *testing.T) {
	env := setup(t, 2000)
	ctx := context.Background()

	first, err := env.ledger.ProcessInvestment(ctx, "p2", 500)
	require.NoError(t, err)
	env.clock.Advance(3 * 24 * time.Hour)
	_, err = env.ledger.ProcessInvestment(ctx, "p2", 500)
	require.NoError(t, err)

	_, err = env.ledger.Withdraw(ctx, 1)

	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, KindWithdrawalLocked, lerr.Kind)
	assert.Equal(t, first.Investment.LockedUntil, lerr.UnlockAt)
}

func TestWithdraw_AfterLockExpires(t *testing.T) {
	env := setup(t, 1000)
	ctx := context.Background()

	_, err := env.ledger.ProcessInvestment(ctx, "p3", 5000)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	_, err = env.ledger.ProcessInvestment(ctx, "p2", 600)
	require.NoError(t, err)

	env.clock.Advance(lifecycle.LockPeriod)
	tx, err := env.ledger.Withdraw(ctx, 300)

	require.NoError(t, err)
	assert.Equal(t, -300.0, tx.Amount)
	assert.Equal(t, domain.TypeWithdrawal, tx.Type)
	assert.Equal(t, 100.0, env.ledger.Balance())

	_, err = env.ledger.Withdraw(ctx, 101)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NoError(t, env.ledger.CheckInvariant())
}

func TestDeposit(t *testing.T) {
	env := setup(t, 0)
	ctx := context.Background()

	tx, err := env.ledger.Deposit(ctx, 250)
	require.NoError(t, err)
	assert.Equal(t, 250.0, tx.Amount)
	assert.Equal(t, 250.0, env.ledger.Balance())

	_, err = env.ledger.Deposit(ctx, -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, 250.0, env.ledger.Balance())
}

func TestInvestments_RecomputeLockCache(t *testing.T) {
	env := setup(t, 1000)
	_, err := env.ledger.ProcessInvestment(context.Background(), "p2", 500)
	require.NoError(t, err)

	env.clock.Advance(31 * 24 * time.Hour)

	invs := env.ledger.Investments()
	require.Len(t, invs, 1)
	assert.False(t, invs[0].IsLocked)

	got, err := env.ledger.Investment(invs[0].ID)
	require.NoError(t, err)
	assert.False(t, got.IsLocked)

	_, err = env.ledger.Investment("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryTransactions(t *testing.T) {
	env := setup(t, 1000)
	ctx := context.Background()

	env.ledger.AddTransaction(ctx, domain.TypeDeposit, 10, "a")
	env.clock.Advance(time.Hour)
	env.ledger.AddTransaction(ctx, domain.TypeDeposit, 20, "b")
	env.clock.Advance(time.Hour)
	_, err := env.ledger.ProcessInvestment(ctx, "p1", 100)
	require.NoError(t, err)

	deposits := env.ledger.QueryTransactions(TransactionFilter{Type: domain.TypeDeposit})
	require.Len(t, deposits, 2)
	assert.Equal(t, "b", deposits[0].Description)

	page := env.ledger.QueryTransactions(TransactionFilter{Limit: 1, Offset: 1})
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].Description)

	recent := env.ledger.QueryTransactions(TransactionFilter{From: epoch.Add(30 * time.Minute)})
	assert.Len(t, recent, 2)

	assert.Empty(t, env.ledger.QueryTransactions(TransactionFilter{Offset: 10}))
}

func TestPersistence_RoundTrip(t *testing.T) {
	env := setup(t, 1000)
	ctx := context.Background()

	_, err := env.ledger.ProcessInvestment(ctx, "p2", 500)
	require.NoError(t, err)
	_, err = env.ledger.AddPaymentMethod(ctx, domain.PaymentMethod{Label: "Visa", Last4: "4242"})
	require.NoError(t, err)
	require.NoError(t, env.ledger.Flush(ctx))

	catalog, _ := memory.NewPlanCatalog(testPlans())
	restored := New(Config{InitialBalance: 1000}, catalog, env.store, env.clock, quietLogger())
	defer restored.Close(ctx)
	restored.Load(ctx)

	assert.Equal(t, 500.0, restored.Balance())
	assert.Len(t, restored.Transactions(), 1)
	require.Len(t, restored.Investments(), 1)
	assert.Equal(t, "Growth", restored.Investments()[0].PlanName)
	assert.Len(t, restored.PaymentMethods(), 1)
	assert.NoError(t, restored.CheckInvariant())
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	env := setup(t, 1000)
	ctx := context.Background()

	require.NoError(t, env.store.Set(ctx, KeyBalance, []byte("750")))
	require.NoError(t, env.store.Set(ctx, KeyTransactions, []byte(`[{"id":`)))
	require.NoError(t, env.store.Set(ctx, KeyInvestments, []byte(`[null]`)))

	env.ledger.Load(ctx)

	assert.Equal(t, 750.0, env.ledger.Balance())
	assert.Empty(t, env.ledger.Transactions())
	assert.Empty(t, env.ledger.Investments())
}

// reload opens a second ledger over env's store, the way a restart does.
func reload(t *testing.T, env *testEnv) *Ledger {
	t.Helper()
	catalog, err := memory.NewPlanCatalog(testPlans())
	require.NoError(t, err)
	l := New(Config{InitialBalance: 1000}, catalog, env.store, env.clock, quietLogger())
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	l.Load(context.Background())
	return l
}

func TestLoad_RebuildsBalanceFromTransactions(t *testing.T) {
	tests := []struct {
		name    string
		balance []byte
	}{
		{name: "malformed", balance: []byte("{garbage")},
		{name: "not finite", balance: []byte(`"NaN"`)},
		{name: "disagrees with history", balance: []byte("1000")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t, 1000)
			ctx := context.Background()

			_, err := env.ledger.ProcessInvestment(ctx, "p2", 500)
			require.NoError(t, err)
			require.NoError(t, env.ledger.Flush(ctx))
			require.NoError(t, env.store.Set(ctx, KeyBalance, tt.balance))

			restored := reload(t, env)

			assert.Equal(t, 500.0, restored.Balance())
			assert.NoError(t, restored.CheckInvariant())

			require.NoError(t, restored.Flush(ctx))
			raw, err := env.store.Get(ctx, KeyBalance)
			require.NoError(t, err)
			assert.Equal(t, "500", string(raw))
		})
	}
}

func TestLoad_MissingBalanceOnFreshStoreUsesSeed(t *testing.T) {
	env := setup(t, 1000)

	env.ledger.Load(context.Background())

	assert.Equal(t, 1000.0, env.ledger.Balance())
	assert.NoError(t, env.ledger.CheckInvariant())
}

func TestLoad_RestoresLostInvestmentRecord(t *testing.T) {
	env := setup(t, 1000)
	ctx := context.Background()

	result, err := env.ledger.ProcessInvestment(ctx, "p2", 500)
	require.NoError(t, err)
	id := result.Investment.ID

	env.clock.Advance(10 * domain.Day)
	require.NoError(t, env.ledger.Sweep(ctx, func(s *Session) error {
		s.PostPayout(1.55, "Investment earnings", map[string]float64{id: 1.55})
		return nil
	}))
	require.NoError(t, env.ledger.Flush(ctx))
	require.NoError(t, env.store.Set(ctx, KeyInvestments, []byte("[]")))

	restored := reload(t, env)

	require.Len(t, restored.Investments(), 1)
	inv := restored.Investments()[0]
	assert.Equal(t, id, inv.ID)
	assert.Equal(t, "p2", inv.PlanID)
	assert.Equal(t, "Growth", inv.PlanName)
	assert.Equal(t, 500.0, inv.Amount)
	assert.Equal(t, epoch, inv.StartDate)
	assert.Equal(t, epoch.Add(lifecycle.LockPeriod), inv.LockedUntil)
	assert.Equal(t, domain.InvestmentActive, inv.Status)
	assert.InDelta(t, 1.55, inv.CreditedEarnings, 1e-9)
	assert.InDelta(t, 501.55, restored.Balance(), 1e-9)
	assert.NoError(t, restored.CheckInvariant())

	status := restored.WithdrawalStatus()
	assert.True(t, status.Locked)
}

func TestLoad_RestoresCompletedInvestment(t *testing.T) {
	env := setup(t, 1000)
	ctx := context.Background()

	result, err := env.ledger.ProcessInvestment(ctx, "p1", 200)
	require.NoError(t, err)

	env.clock.Advance(8 * domain.Day)
	require.NoError(t, env.ledger.Sweep(ctx, func(s *Session) error {
		_, err := s.Complete(s.ActiveInvestments()[0], 0.31)
		return err
	}))
	require.NoError(t, env.ledger.Flush(ctx))
	require.NoError(t, env.store.Set(ctx, KeyInvestments, []byte("{broken")))

	restored := reload(t, env)

	require.Len(t, restored.Investments(), 1)
	inv := restored.Investments()[0]
	assert.Equal(t, result.Investment.ID, inv.ID)
	assert.Equal(t, domain.InvestmentCompleted, inv.Status)
	require.NotNil(t, inv.CompletedAt)
	assert.Equal(t, epoch.Add(8*domain.Day), *inv.CompletedAt)
	assert.InDelta(t, 0.31, inv.CreditedEarnings, 1e-9)
	assert.InDelta(t, 800.31, restored.Balance(), 1e-9)
}

func TestLogout_ClearsStore(t *testing.T) {
	env := setup(t, 1000)
	ctx := context.Background()

	_, err := env.ledger.ProcessInvestment(ctx, "p2", 500)
	require.NoError(t, err)

	require.NoError(t, env.ledger.Logout(ctx))

	assert.Equal(t, 1000.0, env.ledger.Balance())
	assert.Empty(t, env.ledger.Investments())
	_, err = env.store.Get(ctx, KeyInvestments)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConcurrentInvestments_NeverOverdraw(t *testing.T) {
	env := setup(t, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.ledger.ProcessInvestment(ctx, "p1", 150)
		}()
	}
	wg.Wait()

	assert.Len(t, env.ledger.Investments(), 6)
	assert.InDelta(t, 100, env.ledger.Balance(), 1e-9)
	assert.NoError(t, env.ledger.CheckInvariant())
}

func TestNotificationsAndPaymentMethods(t *testing.T) {
	env := setup(t, 1000)
	ctx := context.Background()

	_, err := env.ledger.ProcessInvestment(ctx, "p2", 500)
	require.NoError(t, err)
	_, err = env.ledger.Deposit(ctx, 100)
	require.NoError(t, err)

	notes := env.ledger.Notifications()
	require.Len(t, notes, 2)
	assert.False(t, notes[0].Read)

	assert.Equal(t, 2, env.ledger.MarkNotificationsAsRead(ctx))
	assert.Equal(t, 0, env.ledger.MarkNotificationsAsRead(ctx))

	pm, err := env.ledger.AddPaymentMethod(ctx, domain.PaymentMethod{Label: " Bank ", Kind: domain.PaymentBank, Last4: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "Bank", pm.Label)
	assert.Equal(t, "3456", pm.Last4)

	_, err = env.ledger.AddPaymentMethod(ctx, domain.PaymentMethod{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, env.ledger.DeletePaymentMethod(ctx, pm.ID))
	assert.Empty(t, env.ledger.PaymentMethods())
	assert.ErrorIs(t, env.ledger.DeletePaymentMethod(ctx, pm.ID), ErrNotFound)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev domain.LedgerEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func TestNotifier_ReceivesCommittedEventsOnly(t *testing.T) {
	catalog, _ := memory.NewPlanCatalog(testPlans())
	notifier := &recordingNotifier{}
	l := New(Config{InitialBalance: 1000}, catalog, memory.NewKVStore(), clock.NewFixed(epoch), quietLogger(),
		WithNotifier(notifier))
	defer l.Close(context.Background())

	_, err := l.ProcessInvestment(context.Background(), "p2", 50)
	require.Error(t, err)
	_, err = l.ProcessInvestment(context.Background(), "p2", 500)
	require.NoError(t, err)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, domain.NotificationInvestment, notifier.events[0].Kind)
	assert.Equal(t, 500.0, notifier.events[0].Amount)
}
