package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenpath/greenpath/internal/backend"
)

// Backend is the part of the backend client the monitor uses.
type Backend interface {
	GetCityData(ctx context.Context, city string) (*backend.CityData, error)
	StartLoad(ctx context.Context, city string) (string, error)
	StreamProgress(ctx context.Context, operationID string) (*backend.Stream, error)
}

// Config holds configuration for a Monitor.
type Config struct {
	Backend Backend
	Logger  zerolog.Logger
	Metrics *Metrics // optional
}

// Monitor starts operations and subscribes to their progress.
// It enforces no exclusion between operations.
type Monitor struct {
	backend Backend
	logger  zerolog.Logger
	metrics *Metrics
}

// New creates a Monitor.
func New(cfg Config) *Monitor {
	return &Monitor{
		backend: cfg.Backend,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Start asks the backend to load a city and returns the operation ID.
// A rejected start is returned as is and not retried.
func (m *Monitor) Start(ctx context.Context, city string) (string, error) {
	id, err := m.backend.StartLoad(ctx, city)
	if err != nil {
		return "", fmt.Errorf("start loading %s: %w", city, err)
	}

	m.metrics.operation("started")
	m.logger.Info().Str("city", city).Str("operation_id", id).Msg("operation started")
	return id, nil
}

// Handlers receive the events of a subscription. Callbacks run serially on
// the subscription goroutine. OnProgress fires zero or more times, then
// exactly one of OnComplete and OnError, unless the subscription is
// cancelled first. Nil handlers are skipped.
type Handlers struct {
	OnProgress func(frame backend.ProgressFrame)
	OnComplete func(data json.RawMessage)
	OnError    func(message string)
}

// Subscription follows the progress stream of one operation.
type Subscription struct {
	operationID string
	handlers    Handlers
	logger      zerolog.Logger
	metrics     *Metrics
	started     time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32

	// mu is held while a callback runs; cancelled is only set under it
	// unless Cancel is called from inside a callback.
	mu         sync.Mutex
	cancelled  atomic.Bool
	inCallback atomic.Bool
	cancelOnce sync.Once
}

// Subscribe opens the progress stream of operationID and delivers its
// frames to h on a new goroutine. Cancelling ctx behaves like Cancel.
func (m *Monitor) Subscribe(ctx context.Context, operationID string, h Handlers) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		operationID: operationID,
		handlers:    h,
		logger:      m.logger.With().Str("operation_id", operationID).Logger(),
		metrics:     m.metrics,
		started:     time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	s.state.Store(int32(Pending))

	go s.run(m.backend)
	return s
}

// OperationID returns the followed operation.
func (s *Subscription) OperationID() string {
	return s.operationID
}

// State returns the current state.
func (s *Subscription) State() State {
	return State(s.state.Load())
}

// Done is closed once the stream is released and no callback is running.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel closes the stream. No callback starts after Cancel returns. It
// is idempotent and may be called from inside a callback.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		s.cancel()
		if s.inCallback.Load() {
			// The dispatch lock is held further up this goroutine's stack,
			// or by a callback that started before this call.
			s.cancelled.Store(true)
		} else {
			s.mu.Lock()
			s.cancelled.Store(true)
			s.mu.Unlock()
		}

		if !s.State().Terminal() {
			s.metrics.operation("cancelled")
			s.logger.Debug().Msg("subscription cancelled")
		}
	})
}

func (s *Subscription) run(b Backend) {
	defer close(s.done)
	defer s.cancel()

	stream, err := b.StreamProgress(s.ctx, s.operationID)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("failed to open progress stream")
		}
		s.fail(ConnectionErrorMessage)
		return
	}
	defer stream.Close()

	// Closing the body unblocks a pending Next when the subscription ends.
	stop := context.AfterFunc(s.ctx, func() { _ = stream.Close() })
	defer stop()

	for {
		frame, err := stream.Next()
		if err != nil {
			if errors.Is(err, backend.ErrMalformedFrame) {
				s.metrics.frame("malformed")
				s.logger.Warn().Err(err).Msg("skipping malformed progress frame")
				continue
			}
			if s.ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("progress stream ended without a terminal frame")
			}
			s.fail(ConnectionErrorMessage)
			return
		}

		switch {
		case frame.Error:
			s.metrics.frame("error")
			message := frame.Message
			if message == "" {
				message = "Operation failed"
			}
			s.fail(message)
			return

		case frame.Complete:
			s.metrics.frame("complete")
			s.finish(Complete, func() {
				if s.handlers.OnComplete != nil {
					s.handlers.OnComplete(frame.Data)
				}
			})
			return

		case frame.Keepalive:
			s.metrics.frame("keepalive")

		default:
			s.metrics.frame("progress")
			s.state.CompareAndSwap(int32(Pending), int32(InProgress))
			s.dispatch(func() {
				if s.handlers.OnProgress != nil {
					s.handlers.OnProgress(frame)
				}
			})
		}
	}
}

func (s *Subscription) fail(message string) {
	s.finish(Failed, func() {
		if s.handlers.OnError != nil {
			s.handlers.OnError(message)
		}
	})
}

// finish moves to a terminal state and reports it. A cancelled
// subscription never reaches a terminal state.
func (s *Subscription) finish(state State, report func()) {
	if s.cancelled.Load() || s.ctx.Err() != nil {
		return
	}
	s.state.Store(int32(state))
	s.metrics.operation(state.String())
	s.metrics.finished(state, s.started)
	s.logger.Info().Str("state", state.String()).Msg("operation finished")
	s.dispatch(report)
}

// dispatch runs fn under the dispatch lock unless the subscription is cancelled.
func (s *Subscription) dispatch(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled.Load() || s.ctx.Err() != nil {
		return
	}

	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	fn()
}
