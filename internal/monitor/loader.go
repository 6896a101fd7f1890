package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenpath/greenpath/internal/backend"
)

// DefaultGracePeriod is the pause between completion and the refetch of
// the loaded dataset.
const DefaultGracePeriod = time.Second

// EventKind distinguishes entries of a snapshot's event log.
type EventKind string

// Event kinds.
const (
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// Event is one entry of the operation's event log.
type Event struct {
	Message   string    `json:"message"`
	Progress  *float64  `json:"progress,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
}

// Snapshot is the observable state of a load operation.
type Snapshot struct {
	OperationID string  `json:"operation_id"`
	State       State   `json:"state"`
	Progress    float64 `json:"progress"`
	Events      []Event `json:"events"`
}

// LoaderConfig holds configuration for a Loader.
type LoaderConfig struct {
	Monitor     *Monitor
	Backend     Backend
	GracePeriod time.Duration // zero uses DefaultGracePeriod, negative disables the pause
	Logger      zerolog.Logger
}

// Loader loads a city dataset, starting and following a backend operation
// when the dataset is not loaded yet.
type Loader struct {
	monitor *Monitor
	backend Backend
	grace   time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewLoader creates a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	grace := cfg.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}
	if grace < 0 {
		grace = 0
	}

	return &Loader{
		monitor: cfg.Monitor,
		backend: cfg.Backend,
		grace:   grace,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

type outcome struct {
	data    json.RawMessage
	message string
	failed  bool
}

// Load returns the dataset of city. When the backend reports that the
// dataset is not loaded, Load starts an operation, reports a Snapshot to
// onUpdate on every change and fetches the dataset once the operation
// completes. onUpdate may be nil. A failed operation returns an
// *OperationError. Cancelling ctx returns ctx.Err() and reports nothing
// further.
func (l *Loader) Load(ctx context.Context, city string, onUpdate func(Snapshot)) (*backend.CityData, error) {
	data, err := l.backend.GetCityData(ctx, city)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, backend.ErrDataNotLoaded) {
		return nil, err
	}

	l.logger.Info().Str("city", city).Msg("city data not loaded, starting load")

	id, err := l.monitor.Start(ctx, city)
	if err != nil {
		return nil, err
	}

	t := &tracker{snapshot: Snapshot{OperationID: id, State: Pending, Events: []Event{}}, notify: onUpdate}
	t.emit()

	result := make(chan outcome, 1)
	sub := l.monitor.Subscribe(ctx, id, Handlers{
		OnProgress: func(frame backend.ProgressFrame) {
			t.progress(frame, l.now())
		},
		OnComplete: func(data json.RawMessage) {
			t.complete(l.now())
			result <- outcome{data: data}
		},
		OnError: func(message string) {
			t.fail(message, l.now())
			result <- outcome{message: message, failed: true}
		},
	})
	defer sub.Cancel()

	var res outcome
	select {
	case <-ctx.Done():
		sub.Cancel()
		t.close()
		return nil, ctx.Err()
	case res = <-result:
	}

	if res.failed {
		return nil, &OperationError{OperationID: id, Message: res.message}
	}

	if l.grace > 0 {
		timer := time.NewTimer(l.grace)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	data, err = l.backend.GetCityData(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("fetch loaded data for %s: %w", city, err)
	}
	return data, nil
}

// tracker accumulates the snapshot of one operation and reports copies of it.
type tracker struct {
	mu       sync.Mutex
	snapshot Snapshot
	notify   func(Snapshot)
	closed   bool
}

func (t *tracker) progress(frame backend.ProgressFrame, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snapshot.State = InProgress
	if frame.Progress != nil {
		t.snapshot.Progress = clamp(*frame.Progress)
	}
	t.append(Event{Message: frame.Message, Progress: frame.Progress, Timestamp: now, Kind: EventProgress})
	t.emitLocked()
}

func (t *tracker) complete(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snapshot.State = Complete
	t.snapshot.Progress = 100
	full := 100.0
	t.append(Event{Message: "Complete!", Progress: &full, Timestamp: now, Kind: EventComplete})
	t.emitLocked()
}

func (t *tracker) fail(message string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snapshot.State = Failed
	t.append(Event{Message: "Error: " + message, Timestamp: now, Kind: EventError})
	t.emitLocked()
}

func (t *tracker) append(ev Event) {
	if ev.Progress != nil {
		p := clamp(*ev.Progress)
		ev.Progress = &p
	}
	t.snapshot.Events = append(t.snapshot.Events, ev)
}

func (t *tracker) emit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emitLocked()
}

func (t *tracker) emitLocked() {
	if t.closed || t.notify == nil {
		return
	}
	snap := t.snapshot
	snap.Events = append(make([]Event, 0, len(t.snapshot.Events)), t.snapshot.Events...)
	t.notify(snap)
}

// close stops further reports.
func (t *tracker) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
