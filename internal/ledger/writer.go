package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"investsim/internal/repository"
)

var errWriterClosed = errors.New("ledger: persistence writer closed")

type writeRequest struct {
	snapshot *state
	ack      chan error
}

// snapshotWriter persists ledger snapshots off the caller's path. Queued
// snapshots coalesce: only the newest one in a burst is written. The
// in-memory ledger stays the source of truth; this is durability only.
type snapshotWriter struct {
	store   repository.KeyValueStore
	queue   chan writeRequest
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func newSnapshotWriter(store repository.KeyValueStore, buffer int, logger *slog.Logger) *snapshotWriter {
	w := &snapshotWriter{
		store:   store,
		queue:   make(chan writeRequest, buffer),
		timeout: 10 * time.Second,
		logger:  logger,
	}

	w.wg.Add(1)
	go w.run()

	return w
}

func (w *snapshotWriter) enqueue(s state) {
	w.queue <- writeRequest{snapshot: &s}
}

// flush returns once every snapshot enqueued before the call is written.
func (w *snapshotWriter) flush(ctx context.Context) error {
	ack := make(chan error, 1)
	select {
	case w.queue <- writeRequest{ack: ack}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *snapshotWriter) close(ctx context.Context) error {
	close(w.queue)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Persistence writer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *snapshotWriter) run() {
	defer w.wg.Done()

	for req := range w.queue {
		latest := req.snapshot
		acks := collectAck(nil, req)

	drain:
		for {
			select {
			case next, ok := <-w.queue:
				if !ok {
					break drain
				}
				if next.snapshot != nil {
					latest = next.snapshot
				}
				acks = collectAck(acks, next)
			default:
				break drain
			}
		}

		var err error
		if latest != nil {
			err = w.write(latest)
		}
		for _, ack := range acks {
			ack <- err
		}
	}
}

func collectAck(acks []chan error, req writeRequest) []chan error {
	if req.ack != nil {
		acks = append(acks, req.ack)
	}
	return acks
}

func (w *snapshotWriter) write(s *state) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	startTime := time.Now()
	if err := saveState(ctx, w.store, *s); err != nil {
		w.logger.Error("Failed to persist ledger snapshot",
			slog.String("error", err.Error()))
		return err
	}

	w.logger.Debug("Ledger snapshot persisted",
		slog.Int("transactions", len(s.Transactions)),
		slog.Int("investments", len(s.Investments)),
		slog.Duration("duration", time.Since(startTime)))
	return nil
}
