// Package ledger owns the user's balance, transactions and investments and
// exposes the only operations that change them.
//
// Every mutation runs under one mutex from validation to commit, so a
// failed operation leaves nothing behind and a balance change is always
// recorded together with the entry that caused it. Committed state is
// persisted write-after-mutate by a background writer; Flush or Close
// must be awaited before the process exits.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"investsim/internal/clock"
	"investsim/internal/domain"
	"investsim/internal/lifecycle"
	"investsim/internal/repository"
	"investsim/pkg/money"
	"investsim/pkg/validator"
)

type Config struct {
	// InitialBalance seeds a fresh or logged-out ledger.
	InitialBalance float64
	// MaxDeposit caps a single deposit; zero disables the cap.
	MaxDeposit float64
	// WriteBuffer is the persistence queue size.
	WriteBuffer int
}

// Recorder receives ledger metrics. *metrics.MetricsCollector satisfies it.
type Recorder interface {
	InvestmentCreated()
	InvestmentRejected(kind string)
	WithdrawalBlocked()
	TransactionPosted(txType string)
	BalanceChanged(balance float64)
}

// Notifier receives events for committed mutations. Notify must not block.
type Notifier interface {
	Notify(ctx context.Context, event domain.LedgerEvent)
}

type Option func(*Ledger)

func WithRecorder(r Recorder) Option {
	return func(l *Ledger) { l.recorder = r }
}

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

type Ledger struct {
	mu        sync.Mutex
	state     state
	cfg       Config
	catalog   repository.PlanCatalog
	store     repository.KeyValueStore
	clock     clock.Clock
	validator *validator.AmountValidator
	writer    *snapshotWriter
	recorder  Recorder
	notifier  Notifier
	closed    bool
	logger    *slog.Logger
}

func New(
	cfg Config,
	catalog repository.PlanCatalog,
	store repository.KeyValueStore,
	clk clock.Clock,
	logger *slog.Logger,
	opts ...Option,
) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteBuffer <= 0 {
		cfg.WriteBuffer = 64
	}

	l := &Ledger{
		state:     seedState(cfg.InitialBalance),
		cfg:       cfg,
		catalog:   catalog,
		store:     store,
		clock:     clk,
		validator: validator.NewAmountValidator(cfg.MaxDeposit),
		writer:    newSnapshotWriter(store, cfg.WriteBuffer, logger),
		recorder:  nopRecorder{},
		notifier:  nopNotifier{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InvestmentResult is the successful outcome of ProcessInvestment.
type InvestmentResult struct {
	Investment  domain.Investment  `json:"investment"`
	Transaction domain.Transaction `json:"transaction"`
}

// ProcessInvestment moves amountUSD from the balance into a new investment
// in planID. Checks run in order: plan exists, amount is a finite positive
// number, amount meets the plan minimum, amount is covered by the balance.
func (l *Ledger) ProcessInvestment(ctx context.Context, planID string, amountUSD float64) (InvestmentResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.InfoContext(ctx, "Processing investment",
		slog.String("plan_id", planID),
		slog.Float64("amount", amountUSD))

	plan, err := l.catalog.Get(planID)
	if err != nil {
		return InvestmentResult{}, l.rejectInvestment(ctx, newError(KindPlanNotFound,
			fmt.Sprintf("Investment plan %s not found", planID), err))
	}
	if err := l.validator.ValidateAmount(amountUSD); err != nil {
		return InvestmentResult{}, l.rejectInvestment(ctx, newError(KindInvalidAmount,
			"Please enter a valid amount", err))
	}
	if err := l.validator.ValidateMinimum(amountUSD, plan.MinDeposit); err != nil {
		return InvestmentResult{}, l.rejectInvestment(ctx, newError(KindBelowMinimumDeposit,
			fmt.Sprintf("Minimum deposit for %s is $%.2f", plan.Name, plan.MinDeposit), err))
	}
	if amountUSD > l.state.Balance {
		return InvestmentResult{}, l.rejectInvestment(ctx, newError(KindInsufficientBalance,
			fmt.Sprintf("Insufficient balance: available $%.2f, requested $%.2f", l.state.Balance, amountUSD), nil))
	}

	now := l.clock.Now()
	inv := domain.NewInvestment(plan, amountUSD, now, lifecycle.LockPeriod)
	tx := domain.NewTransaction(domain.TypeInvestment, -amountUSD, now).
		WithDescription(fmt.Sprintf("Investment in %s", plan.Name)).
		WithInvestment(inv.ID).
		WithPlan(plan.ID)

	l.state.Investments = append(l.state.Investments, inv)
	l.apply(&l.state, *tx)
	note := domain.NewNotification(domain.NotificationInvestment, "Investment started",
		fmt.Sprintf("You invested $%.2f in %s. Funds are locked until %s.",
			amountUSD, plan.Name, inv.LockedUntil.Format("Jan 2, 2006")), now)
	l.state.Notifications = append(l.state.Notifications, note)

	l.commit(ctx, []domain.Transaction{*tx}, []domain.LedgerEvent{{
		Kind:         domain.NotificationInvestment,
		Title:        note.Title,
		Message:      note.Message,
		Amount:       amountUSD,
		InvestmentID: inv.ID,
		Timestamp:    now,
	}})
	l.recorder.InvestmentCreated()

	l.logger.InfoContext(ctx, "Investment created successfully",
		slog.String("investment_id", inv.ID),
		slog.String("plan_id", plan.ID),
		slog.Time("locked_until", inv.LockedUntil),
		slog.Float64("balance", l.state.Balance))

	return InvestmentResult{Investment: *inv, Transaction: *tx}, nil
}

// AddTransaction appends a completed transaction dated today and moves the
// balance by amount. The caller supplies the sign and has already checked
// business rules; this is only the atomic apply step.
func (l *Ledger) AddTransaction(ctx context.Context, txType domain.TransactionType, amount float64, description string) domain.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.post(ctx, txType, amount, description)
}

// Deposit credits the balance with a positive amount.
func (l *Ledger) Deposit(ctx context.Context, amountUSD float64) (domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validator.ValidateDeposit(amountUSD); err != nil {
		return domain.Transaction{}, newError(KindInvalidAmount, err.Error(), err)
	}

	return l.post(ctx, domain.TypeDeposit, amountUSD, fmt.Sprintf("Deposit of $%.2f", amountUSD)), nil
}

// Withdraw debits the balance. While any active investment is inside its
// lock period the whole balance is locked, whatever the amount.
func (l *Ledger) Withdraw(ctx context.Context, amountUSD float64) (domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validator.ValidateAmount(amountUSD); err != nil {
		return domain.Transaction{}, newError(KindInvalidAmount, "Please enter a valid amount", err)
	}

	if blocked, unlockAt := lifecycle.WithdrawalGate(l.state.Investments, l.clock.Now()); blocked {
		l.recorder.WithdrawalBlocked()
		l.logger.WarnContext(ctx, "Withdrawal blocked by locked investment",
			slog.Float64("amount", amountUSD),
			slog.Time("unlock_at", unlockAt))
		return domain.Transaction{}, &Error{
			Kind:     KindWithdrawalLocked,
			Message:  fmt.Sprintf("Withdrawals are locked until %s", unlockAt.Format("Jan 2, 2006")),
			UnlockAt: unlockAt,
		}
	}

	if amountUSD > l.state.Balance {
		return domain.Transaction{}, newError(KindInsufficientBalance,
			fmt.Sprintf("Insufficient balance: available $%.2f, requested $%.2f", l.state.Balance, amountUSD), nil)
	}

	return l.post(ctx, domain.TypeWithdrawal, -amountUSD, fmt.Sprintf("Withdrawal of $%.2f", amountUSD)), nil
}

type WithdrawalStatus struct {
	Locked    bool      `json:"locked"`
	UnlockAt  time.Time `json:"unlock_at,omitempty"`
	Available float64   `json:"available"`
}

func (l *Ledger) WithdrawalStatus() WithdrawalStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	blocked, unlockAt := lifecycle.WithdrawalGate(l.state.Investments, l.clock.Now())
	status := WithdrawalStatus{Locked: blocked, UnlockAt: unlockAt, Available: l.state.Balance}
	if blocked {
		status.Available = 0
	}
	return status
}

// post must run with l.mu held.
func (l *Ledger) post(ctx context.Context, txType domain.TransactionType, amount float64, description string) domain.Transaction {
	now := l.clock.Now()
	tx := domain.NewTransaction(txType, amount, now).WithDescription(description)
	l.apply(&l.state, *tx)

	var events []domain.LedgerEvent
	if kind, title, ok := eventFor(txType); ok {
		note := domain.NewNotification(kind, title, description, now)
		l.state.Notifications = append(l.state.Notifications, note)
		events = append(events, domain.LedgerEvent{
			Kind:      kind,
			Title:     title,
			Message:   description,
			Amount:    amount,
			Timestamp: now,
		})
	}

	l.commit(ctx, []domain.Transaction{*tx}, events)

	l.logger.InfoContext(ctx, "Transaction posted",
		slog.String("transaction_id", tx.ID),
		slog.String("type", string(txType)),
		slog.Float64("amount", amount),
		slog.Float64("balance", l.state.Balance))
	return *tx
}

func eventFor(txType domain.TransactionType) (domain.NotificationKind, string, bool) {
	switch txType {
	case domain.TypeDeposit:
		return domain.NotificationDeposit, "Deposit received", true
	case domain.TypeWithdrawal:
		return domain.NotificationWithdrawal, "Withdrawal processed", true
	case domain.TypePayout:
		return domain.NotificationPayout, "Earnings credited", true
	}
	return "", "", false
}

// apply is the single place where the balance moves.
func (l *Ledger) apply(s *state, tx domain.Transaction) {
	s.Transactions = append(s.Transactions, tx)
	s.Balance = money.Sum(s.Balance, tx.Amount)
}

// commit must run with l.mu held, after l.state holds the new state.
func (l *Ledger) commit(ctx context.Context, posted []domain.Transaction, events []domain.LedgerEvent) {
	if l.closed {
		l.logger.WarnContext(ctx, "Ledger closed, mutation will not be persisted")
	} else {
		l.writer.enqueue(l.state.clone())
	}

	for _, tx := range posted {
		l.recorder.TransactionPosted(string(tx.Type))
	}
	l.recorder.BalanceChanged(l.state.Balance)
	for _, ev := range events {
		l.notifier.Notify(ctx, ev)
	}
}

func (l *Ledger) rejectInvestment(ctx context.Context, err *Error) error {
	l.recorder.InvestmentRejected(string(err.Kind))
	l.logger.WarnContext(ctx, "Investment rejected",
		slog.String("kind", string(err.Kind)),
		slog.String("reason", err.Message))
	return err
}

func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Balance
}

// Investments returns copies with the lock cache recomputed for now.
func (l *Ledger) Investments() []domain.Investment {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	result := make([]domain.Investment, 0, len(l.state.Investments))
	for _, inv := range l.state.Investments {
		cp := *inv
		lifecycle.Refresh(&cp, now)
		result = append(result, cp)
	}
	return result
}

func (l *Ledger) Investment(id string) (domain.Investment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inv := l.state.findInvestment(id)
	if inv == nil {
		return domain.Investment{}, newError(KindNotFound, fmt.Sprintf("Investment %s not found", id), repository.ErrNotFound)
	}
	cp := *inv
	lifecycle.Refresh(&cp, l.clock.Now())
	return cp, nil
}

func (l *Ledger) Transactions() []domain.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Transaction(nil), l.state.Transactions...)
}

type TransactionFilter struct {
	Type   domain.TransactionType
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// QueryTransactions returns matching transactions newest first. Zero
// fields do not filter.
func (l *Ledger) QueryTransactions(filter TransactionFilter) []domain.Transaction {
	l.mu.Lock()
	var result []domain.Transaction
	for _, tx := range l.state.Transactions {
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && tx.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && tx.CreatedAt.After(filter.To) {
			continue
		}
		result = append(result, tx)
	}
	l.mu.Unlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	start := min(max(filter.Offset, 0), len(result))
	end := len(result)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return result[start:end]
}

// CheckInvariant verifies that the transactions explain the balance.
func (l *Ledger) CheckInvariant() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	amounts := make([]float64, 0, len(l.state.Transactions))
	for _, tx := range l.state.Transactions {
		amounts = append(amounts, tx.Amount)
	}
	sum := money.Sum(amounts...)
	expected := money.Sum(l.state.Balance, -l.cfg.InitialBalance)
	if math.Abs(sum-expected) > 1e-6 {
		return fmt.Errorf("ledger invariant violated: transactions sum to %.6f, balance implies %.6f", sum, expected)
	}
	return nil
}

// Load replaces the in-memory state with what the store holds. Missing or
// malformed keys fall back to their seed values, then the result is checked
// against the transaction history: lost investment records are rebuilt and
// the balance is recomputed when it does not match. A repaired state is
// written back.
func (l *Ledger) Load(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := loadState(ctx, l.store, l.cfg.InitialBalance, l.logger)
	l.state = s
	if repairState(ctx, &l.state, ok, l.cfg.InitialBalance, l.catalog, l.logger) {
		l.commit(ctx, nil, nil)
	} else {
		l.recorder.BalanceChanged(l.state.Balance)
	}

	l.logger.InfoContext(ctx, "Ledger state loaded",
		slog.Float64("balance", l.state.Balance),
		slog.Int("transactions", len(l.state.Transactions)),
		slog.Int("investments", len(l.state.Investments)))
}

// Logout wipes persisted state and reseeds the balance.
func (l *Ledger) Logout(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		if err := l.writer.flush(ctx); err != nil {
			l.logger.WarnContext(ctx, "Flush before logout failed", slog.String("error", err.Error()))
		}
	}
	if err := l.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}

	l.state = seedState(l.cfg.InitialBalance)
	l.recorder.BalanceChanged(l.state.Balance)
	l.logger.InfoContext(ctx, "Ledger reset on logout")
	return nil
}

// Flush waits until every committed mutation is persisted.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errWriterClosed
	}
	return l.writer.flush(ctx)
}

// Close drains pending writes and stops the writer.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	return l.writer.close(ctx)
}

type nopRecorder struct{}

func (nopRecorder) InvestmentCreated()        {}
func (nopRecorder) InvestmentRejected(string) {}
func (nopRecorder) WithdrawalBlocked()        {}
func (nopRecorder) TransactionPosted(string)  {}
func (nopRecorder) BalanceChanged(float64)    {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.LedgerEvent) {}
