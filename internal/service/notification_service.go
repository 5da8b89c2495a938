package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"investsim/internal/domain"
)

type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

// NotificationService fans ledger events out to delivery channels on a pool
// of workers. It satisfies ledger.Notifier: Notify never blocks the ledger.
type NotificationService struct {
	emailService EmailService
	pushService  PushService
	recipients   Recipients
	messageQueue chan NotificationMessage
	workers      int
	shutdownChan chan struct{}
	closed       atomic.Bool
	dropped      atomic.Int64
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// Recipients addresses the simulator's single user on each channel. An
// empty address disables that channel.
type Recipients struct {
	DeviceID string
	Email    string
}

type NotificationMessage struct {
	Channel   Channel
	Recipient string
	Subject   string
	Message   string
	Metadata  map[string]string
	CreatedAt time.Time
}

type EmailService interface {
	SendEmail(to, subject, body string) error
}

type PushService interface {
	SendPush(deviceID, title, message string) error
}

func NewNotificationService(
	emailService EmailService,
	pushService PushService,
	recipients Recipients,
	workers int,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	service := &NotificationService{
		emailService: emailService,
		pushService:  pushService,
		recipients:   recipients,
		messageQueue: make(chan NotificationMessage, 1000),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	service.startWorkers()

	return service
}

// Notify queues event for every channel it is routed to. When the queue is
// full or the service is shut down the message is dropped and counted.
func (s *NotificationService) Notify(ctx context.Context, event domain.LedgerEvent) {
	for _, msg := range s.route(event) {
		if s.closed.Load() {
			s.dropped.Add(1)
			continue
		}
		select {
		case s.messageQueue <- msg:
			s.logger.DebugContext(ctx, "Notification queued",
				slog.String("channel", string(msg.Channel)),
				slog.String("kind", string(event.Kind)))
		default:
			s.dropped.Add(1)
			s.logger.WarnContext(ctx, "Notification queue full, message dropped",
				slog.String("channel", string(msg.Channel)),
				slog.String("kind", string(event.Kind)))
		}
	}
}

// Dropped reports how many messages were discarded.
func (s *NotificationService) Dropped() int64 {
	return s.dropped.Load()
}

// route decides the channels for an event. Every event is pushed; money
// arriving from an investment is also confirmed by email.
func (s *NotificationService) route(event domain.LedgerEvent) []NotificationMessage {
	metadata := map[string]string{
		"kind":   string(event.Kind),
		"amount": fmt.Sprintf("%.2f", event.Amount),
	}
	if event.InvestmentID != "" {
		metadata["investment_id"] = event.InvestmentID
	}

	var msgs []NotificationMessage
	if s.pushService != nil && s.recipients.DeviceID != "" {
		msgs = append(msgs, NotificationMessage{
			Channel:   ChannelPush,
			Recipient: s.recipients.DeviceID,
			Subject:   event.Title,
			Message:   event.Message,
			Metadata:  metadata,
			CreatedAt: event.Timestamp,
		})
	}

	switch event.Kind {
	case domain.NotificationMaturity, domain.NotificationPayout:
		if s.emailService != nil && s.recipients.Email != "" {
			msgs = append(msgs, NotificationMessage{
				Channel:   ChannelEmail,
				Recipient: s.recipients.Email,
				Subject:   event.Title,
				Message:   event.Message,
				Metadata:  metadata,
				CreatedAt: event.Timestamp,
			})
		}
	}
	return msgs
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("Notification worker started", slog.Int("worker_id", id))

	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, id)
		case <-s.shutdownChan:
			s.drain(id)
			s.logger.Debug("Notification worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

func (s *NotificationService) drain(workerID int) {
	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, workerID)
		default:
			return
		}
	}
}

func (s *NotificationService) processNotification(msg NotificationMessage, workerID int) {
	startTime := time.Now()
	var err error

	switch msg.Channel {
	case ChannelEmail:
		err = s.emailService.SendEmail(msg.Recipient, msg.Subject, msg.Message)
	case ChannelPush:
		err = s.pushService.SendPush(msg.Recipient, msg.Subject, msg.Message)
	default:
		err = fmt.Errorf("unknown notification channel: %s", msg.Channel)
	}

	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Failed to send notification",
			slog.String("channel", string(msg.Channel)),
			slog.String("recipient", msg.Recipient),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	} else {
		s.logger.Info("Notification sent successfully",
			slog.String("channel", string(msg.Channel)),
			slog.String("recipient", msg.Recipient),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	}
}

// Shutdown stops accepting messages and waits for queued ones to be sent.
func (s *NotificationService) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.shutdownChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogPushService delivers push notifications to the log. It stands in for a
// device push gateway.
type LogPushService struct {
	Logger *slog.Logger
}

func (p *LogPushService) SendPush(deviceID, title, message string) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Push notification",
		slog.String("device_id", deviceID),
		slog.String("title", title),
		slog.String("message", message))
	return nil
}

type SentEmail struct {
	To      string
	Subject string
	Body    string
}

type MockEmailService struct {
	mu         sync.Mutex
	SentEmails []SentEmail
}

func (m *MockEmailService) SendEmail(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, SentEmail{to, subject, body})
	return nil
}

func (m *MockEmailService) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.SentEmails...)
}

type SentPush struct {
	DeviceID string
	Title    string
	Message  string
}

type MockPushService struct {
	mu       sync.Mutex
	SentPush []SentPush
	Err      error
}

func (m *MockPushService) SendPush(deviceID, title, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentPush = append(m.SentPush, SentPush{deviceID, title, message})
	return nil
}

func (m *MockPushService) Sent() []SentPush {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentPush(nil), m.SentPush...)
}
