package monitor_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/greenpath/greenpath/internal/backend"
	"github.com/greenpath/greenpath/internal/backend/backendtest"
)

// pipeBackend serves progress streams from in-memory pipes so tests
// control frame timing without any network goroutines.
type pipeBackend struct {
	mu        sync.Mutex
	loaded    bool
	startErr  error
	streamErr error
	writers   []*io.PipeWriter
	dataCalls int
}

func (b *pipeBackend) GetCityData(_ context.Context, city string) (*backend.CityData, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dataCalls++
	if !b.loaded {
		return nil, fmt.Errorf("get city data: %w", backend.ErrDataNotLoaded)
	}
	data := backendtest.CityData(city)
	return &data, nil
}

func (b *pipeBackend) StartLoad(_ context.Context, _ string) (string, error) {
	if b.startErr != nil {
		return "", b.startErr
	}
	return "op_test", nil
}

func (b *pipeBackend) StreamProgress(_ context.Context, _ string) (*backend.Stream, error) {
	if b.streamErr != nil {
		return nil, b.streamErr
	}
	pr, pw := io.Pipe()

	b.mu.Lock()
	b.writers = append(b.writers, pw)
	b.mu.Unlock()
	return backend.NewStream(pr), nil
}

// opened reports how many streams were opened.
func (b *pipeBackend) opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.writers)
}

// send writes a frame to the most recent stream. It returns once the
// subscription goroutine has read it.
func (b *pipeBackend) send(t *testing.T, frame backend.ProgressFrame) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	b.sendRaw(t, "data: "+string(raw)+"\n\n")
}

func (b *pipeBackend) sendRaw(t *testing.T, chunk string) {
	t.Helper()
	b.mu.Lock()
	require.NotEmpty(t, b.writers, "no stream opened")
	pw := b.writers[len(b.writers)-1]
	b.mu.Unlock()

	_, _ = pw.Write([]byte(chunk))
}

// end closes the most recent stream from the server side.
func (b *pipeBackend) end() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.writers); n > 0 {
		_ = b.writers[n-1].Close()
	}
}

// recorder collects subscription callbacks.
type recorder struct {
	mu        sync.Mutex
	progress  []backend.ProgressFrame
	completed []json.RawMessage
	errors    []string
}

func (r *recorder) onProgress(frame backend.ProgressFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, frame)
}

func (r *recorder) onComplete(data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, data)
}

func (r *recorder) onError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, message)
}

func (r *recorder) counts() (progress, completed, errs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.progress), len(r.completed), len(r.errors)
}
