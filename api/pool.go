package api

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

var errEventSenderClosed = errors.New("event sender is closed")

// EventSenderConfig tunes the asynchronous event pipeline.
type EventSenderConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// EventSender fans events out to its publishers from a pool of workers.
// When the buffer stays full for longer than HandoffTimeout the event is
// delivered inline on the caller's goroutine instead of being dropped.
type EventSender struct {
	cfg        EventSenderConfig
	publishers []EventPublisher
	logger     *log.Logger
	jobs       chan domain.Event
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewEventSender starts the worker pool.
func NewEventSender(cfg EventSenderConfig, logger *log.Logger, publishers ...EventPublisher) *EventSender {
	if logger == nil {
		panic("api.NewEventSender: logger is nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	s := &EventSender{
		cfg:        cfg,
		publishers: publishers,
		logger:     logger,
		jobs:       make(chan domain.Event, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Infof("event sender started, workers: %d, buffer: %d, publishers: %d, timeout: %v, handoff: %v",
		cfg.Workers, cfg.Buffer, len(publishers), cfg.Timeout, cfg.HandoffTimeout)
	return s
}

// Publish queues ev for delivery. It only fails once the sender is closed.
func (s *EventSender) Publish(ctx context.Context, ev domain.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errEventSenderClosed
	}

	select {
	case s.jobs <- ev:
		return nil
	default:
	}

	if s.cfg.HandoffTimeout > 0 {
		timer := time.NewTimer(s.cfg.HandoffTimeout)
		defer timer.Stop()
		select {
		case s.jobs <- ev:
			return nil
		case <-timer.C:
		}
	}

	s.logger.Warn("event buffer saturated; publishing inline")
	s.deliverInline(ctx, ev)
	return nil
}

// deliverInline runs on the request goroutine, so all publishers share a
// single Timeout instead of one each.
func (s *EventSender) deliverInline(ctx context.Context, ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()
	s.deliver(ctx, ev, -1)
}

// Close stops accepting events and waits for queued ones to be delivered.
func (s *EventSender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *EventSender) worker(id int) {
	defer s.wg.Done()
	for ev := range s.jobs {
		s.deliver(context.Background(), ev, id)
	}
}

func (s *EventSender) deliver(parent context.Context, ev domain.Event, worker int) {
	for _, p := range s.publishers {
		ctx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
		err := p.Publish(ctx, ev)
		cancel()
		if err != nil {
			s.logger.WithFields(log.Fields{
				"event.id":   ev.ID,
				"event.type": ev.Type,
				"board_id":   ev.BoardID,
				"worker":     worker,
			}).WithError(err).Error("event publish failed")
		}
	}
}
