package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry            *prometheus.Registry
	investmentsCreated  prometheus.Counter
	investmentsRejected *prometheus.CounterVec
	withdrawalsBlocked  prometheus.Counter
	transactionsPosted  *prometheus.CounterVec
	payoutsPosted       *prometheus.CounterVec
	payoutAmount        *prometheus.CounterVec
	balance             prometheus.Gauge
	reconcileDuration   prometheus.Histogram
	reconcileRuns       *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	logger              *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &MetricsCollector{
		registry: registry,
		investmentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "investments_created_total",
			Help: "Total number of investments created",
		}),
		investmentsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "investments_rejected_total",
			Help: "Investment requests rejected, by error kind",
		}, []string{"kind"}),
		withdrawalsBlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "withdrawals_blocked_total",
			Help: "Withdrawals refused because an investment is still locked",
		}),
		transactionsPosted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_posted_total",
			Help: "Ledger transactions posted, by type",
		}, []string{"type"}),
		payoutsPosted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_posted_total",
			Help: "Payout transactions posted, by source",
		}, []string{"source"}),
		payoutAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_usd_total",
			Help: "USD paid out, by source",
		}, []string{"source"}),
		balance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_balance_usd",
			Help: "Current ledger balance in USD",
		}),
		reconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciliation_duration_seconds",
			Help:    "Time taken by a reconciliation sweep",
			Buckets: prometheus.DefBuckets,
		}),
		reconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_runs_total",
			Help: "Reconciliation sweeps, by outcome",
		}, []string{"outcome"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests, by route and status class",
		}, []string{"route", "status"}),
		logger: logger,
	}
}

func (m *MetricsCollector) InvestmentCreated() {
	m.investmentsCreated.Inc()
}

func (m *MetricsCollector) InvestmentRejected(kind string) {
	m.investmentsRejected.WithLabelValues(kind).Inc()
}

func (m *MetricsCollector) WithdrawalBlocked() {
	m.withdrawalsBlocked.Inc()
}

func (m *MetricsCollector) TransactionPosted(txType string) {
	m.transactionsPosted.WithLabelValues(txType).Inc()
}

func (m *MetricsCollector) PayoutPosted(source string, amount float64) {
	m.payoutsPosted.WithLabelValues(source).Inc()
	m.payoutAmount.WithLabelValues(source).Add(amount)
}

func (m *MetricsCollector) BalanceChanged(balance float64) {
	m.balance.Set(balance)
}

func (m *MetricsCollector) ReconciliationFinished(duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "aborted"
	}
	m.reconcileRuns.WithLabelValues(outcome).Inc()
	m.reconcileDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) HTTPRequest(route string, status int) {
	class := "5xx"
	switch {
	case status < 300:
		class = "2xx"
	case status < 400:
		class = "3xx"
	case status < 500:
		class = "4xx"
	}
	m.httpRequests.WithLabelValues(route, class).Inc()
}

func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context, server *http.Server) error {
	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	m.logger.Info("Metrics server shutdown complete")
	return nil
}
