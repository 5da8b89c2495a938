package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"investsim/internal/clock"
	"investsim/internal/domain"
	"investsim/internal/ledger"
	"investsim/internal/lifecycle"
	"investsim/internal/projection"
	"investsim/internal/reconcile"
	"investsim/internal/repository"
	"investsim/pkg/currency"
	"investsim/pkg/metrics"
	"investsim/pkg/money"
	"investsim/pkg/validator"
)

type APIHandler struct {
	ledger         *ledger.Ledger
	catalog        repository.PlanCatalog
	converter      *currency.Converter
	fixedRates     projection.FixedRateTable
	reconciler     *reconcile.Job
	metrics        *metrics.MetricsCollector
	validator      *validator.AmountValidator
	clock          clock.Clock
	limiter        *clientLimiter
	logger         *slog.Logger
	requestTimeout time.Duration
}

type Option func(*APIHandler)

func WithFixedRates(table projection.FixedRateTable) Option {
	return func(h *APIHandler) { h.fixedRates = table }
}

// WithReconciler exposes the growth sweep as POST /api/v1/reconcile.
func WithReconciler(job *reconcile.Job) Option {
	return func(h *APIHandler) { h.reconciler = job }
}

// WithRateLimit limits each client address to perSecond requests with the
// given burst. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *APIHandler) {
		if perSecond > 0 {
			h.limiter = newClientLimiter(perSecond, burst)
		}
	}
}

func NewAPIHandler(
	l *ledger.Ledger,
	catalog repository.PlanCatalog,
	converter *currency.Converter,
	metrics *metrics.MetricsCollector,
	clk clock.Clock,
	logger *slog.Logger,
	opts ...Option,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &APIHandler{
		ledger:         l,
		catalog:        catalog,
		converter:      converter,
		fixedRates:     projection.DefaultFixedRateTable(),
		metrics:        metrics,
		validator:      validator.NewAmountValidator(0),
		clock:          clk,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type AmountRequest struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

type CreateInvestmentRequest struct {
	PlanID   string  `json:"plan_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

type PaymentMethodRequest struct {
	Kind  domain.PaymentMethodKind `json:"kind"`
	Label string                   `json:"label"`
	Last4 string                   `json:"last4,omitempty"`
}

type ErrorResponse struct {
	Error    string     `json:"error"`
	Code     string     `json:"code,omitempty"`
	Details  string     `json:"details,omitempty"`
	UnlockAt *time.Time `json:"unlock_at,omitempty"`
}

type PlanResponse struct {
	domain.Plan
	DailyRate float64                 `json:"daily_rate"`
	ROI       projection.ROIBreakdown `json:"roi_breakdown"`
}

type PreviewResponse struct {
	Plan         domain.Plan              `json:"plan"`
	AmountUSD    float64                  `json:"amount_usd"`
	Currency     string                   `json:"currency"`
	MeetsMinimum bool                     `json:"meets_minimum"`
	Expected     projection.Return        `json:"expected"`
	Display      DisplayAmounts           `json:"display"`
	Fixed        *projection.FixedReturns `json:"fixed_rate,omitempty"`
	ROI          projection.ROIBreakdown  `json:"roi_breakdown"`
	LockedUntil  time.Time                `json:"locked_until"`
	MaturesAt    time.Time                `json:"matures_at"`
}

// DisplayAmounts are converted to the requested currency for presentation
// only.
type DisplayAmounts struct {
	Principal float64 `json:"principal"`
	Profit    float64 `json:"profit"`
	Total     float64 `json:"total"`
}

type AccountResponse struct {
	BalanceUSD        float64                 `json:"balance_usd"`
	Balance           float64                 `json:"balance"`
	Currency          string                  `json:"currency"`
	Invested          float64                 `json:"invested"`
	PortfolioValue    float64                 `json:"portfolio_value"`
	UnrealizedProfit  float64                 `json:"unrealized_profit"`
	CreditedEarnings  float64                 `json:"credited_earnings"`
	ActiveInvestments int                     `json:"active_investments"`
	Withdrawal        ledger.WithdrawalStatus `json:"withdrawal"`
}

type InvestmentResponse struct {
	lifecycle.View
	Orphaned bool `json:"orphaned,omitempty"`
}

type NotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.clock.Now().UTC(),
		"version":   "1.0.0",
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	plans := h.catalog.List()
	response := make([]PlanResponse, 0, len(plans))
	for _, p := range plans {
		response = append(response, PlanResponse{
			Plan:      p,
			DailyRate: projection.DailyRate(p.AnnualROIPercent),
			ROI:       projection.ROIBreakdownFor(p.AnnualROIPercent),
		})
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) PreviewPlanHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := h.catalog.Get(r.PathValue("id"))
	if err != nil {
		h.sendError(w, "Investment plan not found", http.StatusNotFound, "PLAN_NOT_FOUND")
		return
	}

	code, ok := h.currencyCode(w, r.URL.Query().Get("currency"))
	if !ok {
		return
	}

	amountUSD := plan.MinDeposit
	if raw := r.URL.Query().Get("amount"); raw != "" {
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.sendError(w, "amount must be a number", http.StatusBadRequest, "VALIDATION_ERROR")
			return
		}
		if amountUSD, ok = h.toUSD(w, amount, code); !ok {
			return
		}
	}

	expected := projection.ExpectedReturn(amountUSD, plan.AnnualROIPercent, plan.DurationDays)
	now := h.clock.Now()
	response := PreviewResponse{
		Plan:         plan,
		AmountUSD:    amountUSD,
		Currency:     code,
		MeetsMinimum: h.validator.ValidateMinimum(amountUSD, plan.MinDeposit) == nil,
		Expected:     expected,
		Display: DisplayAmounts{
			Principal: h.fromUSD(expected.Principal, code),
			Profit:    h.fromUSD(expected.Profit, code),
			Total:     h.fromUSD(expected.Total, code),
		},
		ROI:         projection.ROIBreakdownFor(plan.AnnualROIPercent),
		LockedUntil: lifecycle.LockedUntil(now),
		MaturesAt:   now.Add(time.Duration(plan.DurationDays) * domain.Day),
	}
	if fixed, ok := h.fixedRates.FixedDailyReturns(plan.ID, amountUSD); ok {
		response.Fixed = &fixed
	}

	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) AccountHandler(w http.ResponseWriter, r *http.Request) {
	code, ok := h.currencyCode(w, r.URL.Query().Get("currency"))
	if !ok {
		return
	}

	now := h.clock.Now()
	balance := h.ledger.Balance()
	response := AccountResponse{
		BalanceUSD: balance,
		Balance:    h.fromUSD(balance, code),
		Currency:   code,
		Withdrawal: h.ledger.WithdrawalStatus(),
	}

	// Credited growth already sits in the balance, so the portfolio only
	// carries principal plus growth not yet paid out.
	var invested, value, credited []float64
	for _, inv := range h.ledger.Investments() {
		if !inv.IsActive() {
			continue
		}
		response.ActiveInvestments++
		invested = append(invested, inv.Amount)
		credited = append(credited, inv.CreditedEarnings)
		current := inv.Amount
		if plan, err := h.catalog.Get(inv.PlanID); err == nil {
			current += lifecycle.Describe(inv, plan, now).Profit
		}
		value = append(value, current)
	}
	response.Invested = money.Sum(invested...)
	response.CreditedEarnings = money.Sum(credited...)
	response.PortfolioValue = money.RoundCents(money.Sum(value...))
	response.UnrealizedProfit = money.RoundCents(response.PortfolioValue - response.Invested)

	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) CreateInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req CreateInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.PlanID == "" {
		h.sendError(w, "plan_id is required", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	code, ok := h.currencyCode(w, req.Currency)
	if !ok {
		return
	}
	amountUSD, ok := h.toUSD(w, req.Amount, code)
	if !ok {
		return
	}

	result, err := h.ledger.ProcessInvestment(ctx, req.PlanID, amountUSD)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, result, http.StatusCreated)
}

func (h *APIHandler) ListInvestmentsHandler(w http.ResponseWriter, r *http.Request) {
	status := domain.InvestmentStatus(r.URL.Query().Get("status"))
	now := h.clock.Now()

	response := []InvestmentResponse{}
	for _, inv := range h.ledger.Investments() {
		if status != "" && inv.Status != status {
			continue
		}
		plan, err := h.catalog.Get(inv.PlanID)
		if err != nil {
			response = append(response, InvestmentResponse{
				View:     lifecycle.View{Investment: inv, CurrentValue: inv.Amount},
				Orphaned: true,
			})
			continue
		}
		response = append(response, InvestmentResponse{View: lifecycle.Describe(inv, plan, now)})
	}

	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.handleAmount(w, r, h.ledger.Deposit)
}

func (h *APIHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.handleAmount(w, r, h.ledger.Withdraw)
}

func (h *APIHandler) handleAmount(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, float64) (domain.Transaction, error),
) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	code, ok := h.currencyCode(w, req.Currency)
	if !ok {
		return
	}
	amountUSD, ok := h.toUSD(w, req.Amount, code)
	if !ok {
		return
	}

	tx, err := op(ctx, amountUSD)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, tx, http.StatusCreated)
}

func (h *APIHandler) WithdrawalStatusHandler(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.ledger.WithdrawalStatus(), http.StatusOK)
}

func (h *APIHandler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ledger.TransactionFilter

	if t := domain.TransactionType(q.Get("type")); t != "" {
		if !t.Valid() {
			h.sendError(w, "unknown transaction type", http.StatusBadRequest, "VALIDATION_ERROR")
			return
		}
		filter.Type = t
	}

	var err error
	if filter.From, err = parseTime(q.Get("from")); err != nil {
		h.sendError(w, "from must be RFC3339 or YYYY-MM-DD", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}
	if filter.To, err = parseTime(q.Get("to")); err != nil {
		h.sendError(w, "to must be RFC3339 or YYYY-MM-DD", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}
	if filter.Limit, err = parseInt(q.Get("limit")); err != nil {
		h.sendError(w, "limit must be a non-negative integer", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}
	if filter.Offset, err = parseInt(q.Get("offset")); err != nil {
		h.sendError(w, "offset must be a non-negative integer", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	txs := h.ledger.QueryTransactions(filter)
	if txs == nil {
		txs = []domain.Transaction{}
	}
	h.sendJSON(w, txs, http.StatusOK)
}

func (h *APIHandler) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	notes := h.ledger.Notifications()
	response := NotificationsResponse{Notifications: notes}
	if response.Notifications == nil {
		response.Notifications = []domain.Notification{}
	}
	for _, n := range notes {
		if !n.Read {
			response.Unread++
		}
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) MarkNotificationsReadHandler(w http.ResponseWriter, r *http.Request) {
	marked := h.ledger.MarkNotificationsAsRead(r.Context())
	h.sendJSON(w, map[string]int{"marked": marked}, http.StatusOK)
}

func (h *APIHandler) ListPaymentMethodsHandler(w http.ResponseWriter, r *http.Request) {
	methods := h.ledger.PaymentMethods()
	if methods == nil {
		methods = []domain.PaymentMethod{}
	}
	h.sendJSON(w, methods, http.StatusOK)
}

func (h *APIHandler) AddPaymentMethodHandler(w http.ResponseWriter, r *http.Request) {
	var req PaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	switch req.Kind {
	case "", domain.PaymentCard, domain.PaymentBank:
	default:
		h.sendError(w, "kind must be card or bank", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	pm, err := h.ledger.AddPaymentMethod(r.Context(), domain.PaymentMethod{
		Kind:  req.Kind,
		Label: req.Label,
		Last4: req.Last4,
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, pm, http.StatusCreated)
}

func (h *APIHandler) DeletePaymentMethodHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeletePaymentMethod(r.Context(), r.PathValue("id")); err != nil {
		h.sendLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Run(r.Context())
	if err != nil {
		h.sendError(w, "Reconciliation failed, ledger left unchanged", http.StatusInternalServerError, "RECONCILE_FAILED")
		return
	}
	h.sendJSON(w, report, http.StatusOK)
}

func (h *APIHandler) currencyCode(w http.ResponseWriter, raw string) (string, bool) {
	if raw == "" {
		return currency.USD, true
	}
	code, err := h.validator.NormalizeCurrency(raw)
	if err != nil || !h.converter.Supports(code) {
		h.sendError(w, "Unsupported currency", http.StatusBadRequest, "UNSUPPORTED_CURRENCY")
		return "", false
	}
	return code, true
}

// toUSD converts a display amount to USD. The ledger validates the value.
func (h *APIHandler) toUSD(w http.ResponseWriter, amount float64, code string) (float64, bool) {
	usd, err := h.converter.ToUSD(amount, code)
	if err != nil {
		h.sendError(w, "Unsupported currency", http.StatusBadRequest, "UNSUPPORTED_CURRENCY")
		return 0, false
	}
	return money.RoundCents(usd), true
}

func (h *APIHandler) fromUSD(amountUSD float64, code string) float64 {
	v, err := h.converter.FromUSD(amountUSD, code)
	if err != nil {
		return amountUSD
	}
	return v
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative")
	}
	return n, nil
}

func (h *APIHandler) sendLedgerError(w http.ResponseWriter, err error) {
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		h.logger.Error("Ledger operation failed", slog.String("error", err.Error()))
		h.sendError(w, "Internal server error", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	status := http.StatusInternalServerError
	switch lerr.Kind {
	case ledger.KindPlanNotFound, ledger.KindNotFound:
		status = http.StatusNotFound
	case ledger.KindInvalidAmount, ledger.KindBelowMinimumDeposit, ledger.KindInvalidInput:
		status = http.StatusBadRequest
	case ledger.KindInsufficientBalance:
		status = http.StatusConflict
	case ledger.KindWithdrawalLocked:
		unlockAt := lerr.UnlockAt
		h.writeError(w, ErrorResponse{
			Error:    lerr.Message,
			Code:     "WITHDRAWAL_LOCKED",
			UnlockAt: &unlockAt,
		}, http.StatusLocked)
		return
	}
	h.writeError(w, ErrorResponse{Error: lerr.Error(), Code: errorCode(lerr.Kind)}, status)
}

func errorCode(kind ledger.Kind) string {
	switch kind {
	case ledger.KindPlanNotFound:
		return "PLAN_NOT_FOUND"
	case ledger.KindInvalidAmount:
		return "INVALID_AMOUNT"
	case ledger.KindBelowMinimumDeposit:
		return "BELOW_MINIMUM_DEPOSIT"
	case ledger.KindInsufficientBalance:
		return "INSUFFICIENT_BALANCE"
	case ledger.KindWithdrawalLocked:
		return "WITHDRAWAL_LOCKED"
	case ledger.KindNotFound:
		return "NOT_FOUND"
	case ledger.KindInvalidInput:
		return "VALIDATION_ERROR"
	}
	return "SERVER_ERROR"
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	h.writeError(w, ErrorResponse{Error: message, Code: code}, statusCode)
}

func (h *APIHandler) writeError(w http.ResponseWriter, resp ErrorResponse, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)

	h.logger.Warn("API error response",
		slog.String("message", resp.Error),
		slog.String("code", resp.Code),
		slog.Int("status", statusCode))
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
	mux.HandleFunc("GET /api/v1/plans", h.ListPlansHandler)
	mux.HandleFunc("GET /api/v1/plans/{id}/preview", h.PreviewPlanHandler)
	mux.HandleFunc("GET /api/v1/account", h.AccountHandler)
	mux.HandleFunc("POST /api/v1/investments", h.CreateInvestmentHandler)
	mux.HandleFunc("GET /api/v1/investments", h.ListInvestmentsHandler)
	mux.HandleFunc("POST /api/v1/deposits", h.DepositHandler)
	mux.HandleFunc("POST /api/v1/withdrawals", h.WithdrawHandler)
	mux.HandleFunc("GET /api/v1/withdrawals/status", h.WithdrawalStatusHandler)
	mux.HandleFunc("GET /api/v1/transactions", h.ListTransactionsHandler)
	mux.HandleFunc("GET /api/v1/notifications", h.ListNotificationsHandler)
	mux.HandleFunc("POST /api/v1/notifications/read", h.MarkNotificationsReadHandler)
	mux.HandleFunc("GET /api/v1/payment-methods", h.ListPaymentMethodsHandler)
	mux.HandleFunc("POST /api/v1/payment-methods", h.AddPaymentMethodHandler)
	mux.HandleFunc("DELETE /api/v1/payment-methods/{id}", h.DeletePaymentMethodHandler)
	if h.reconciler != nil {
		mux.HandleFunc("POST /api/v1/reconcile", h.ReconcileHandler)
	}
}

// Handler returns the routed API with its middleware stack.
func (h *APIHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.applyMiddleware(mux)
}
