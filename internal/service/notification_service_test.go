package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investsim/internal/domain"
)

func newTestService(t *testing.T, email *MockEmailService, push *MockPushService) *NotificationService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewNotificationService(email, push, Recipients{DeviceID: "device-1", Email: "user@example.com"}, 2, logger)
}

func event(kind domain.NotificationKind) domain.LedgerEvent {
	return domain.LedgerEvent{
		Kind:         kind,
		Title:        "Title",
		Message:      "Message",
		Amount:       12.5,
		InvestmentID: "inv-1",
		Timestamp:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNotify_RoutesByKind(t *testing.T) {
	email := &MockEmailService{}
	push := &MockPushService{}
	svc := newTestService(t, email, push)

	svc.Notify(context.Background(), event(domain.NotificationInvestment))
	svc.Notify(context.Background(), event(domain.NotificationMaturity))
	svc.Notify(context.Background(), event(domain.NotificationPayout))

	require.NoError(t, svc.Shutdown(context.Background()))

	assert.Len(t, push.Sent(), 3)
	sent := email.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "user@example.com", sent[0].To)
	assert.Zero(t, svc.Dropped())
}

func TestNotify_EmptyRecipientDisablesChannel(t *testing.T) {
	email := &MockEmailService{}
	push := &MockPushService{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewNotificationService(email, push, Recipients{DeviceID: "device-1"}, 1, logger)

	svc.Notify(context.Background(), event(domain.NotificationMaturity))
	require.NoError(t, svc.Shutdown(context.Background()))

	assert.Len(t, push.Sent(), 1)
	assert.Empty(t, email.Sent())
}

func TestNotify_AfterShutdownIsDropped(t *testing.T) {
	push := &MockPushService{}
	svc := newTestService(t, &MockEmailService{}, push)

	require.NoError(t, svc.Shutdown(context.Background()))
	require.NoError(t, svc.Shutdown(context.Background()))

	svc.Notify(context.Background(), event(domain.NotificationDeposit))

	assert.Empty(t, push.Sent())
	assert.Equal(t, int64(1), svc.Dropped())
}

func TestProcessNotification_DeliveryErrorIsLogged(t *testing.T) {
	push := &MockPushService{Err: errors.New("gateway down")}
	svc := newTestService(t, &MockEmailService{}, push)

	svc.Notify(context.Background(), event(domain.NotificationWithdrawal))
	require.NoError(t, svc.Shutdown(context.Background()))

	assert.Empty(t, push.Sent())
}

func TestLogPushService(t *testing.T) {
	p := &LogPushService{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	assert.NoError(t, p.SendPush("d", "t", "m"))
}
