package tui

import (
	"context"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/greenpath/greenpath/internal/backend"
	"github.com/greenpath/greenpath/internal/monitor"
)

// LoadFunc loads a city dataset, reporting snapshots while an operation runs.
// (*monitor.Loader).Load satisfies it.
type LoadFunc func(ctx context.Context, city string, onUpdate func(monitor.Snapshot)) (*backend.CityData, error)

// Run shows the load dialog while load runs and returns its outcome.
// Quitting the dialog cancels the load.
func Run(ctx context.Context, city string, load LoadFunc, opts ...tea.ProgramOption) (*backend.CityData, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(city, cancel), opts...)

	done := make(chan ResultMsg, 1)
	go func() {
		data, err := load(ctx, city, func(s monitor.Snapshot) {
			p.Send(SnapshotMsg(s))
		})
		res := ResultMsg{Data: data, Err: err}
		done <- res
		p.Send(res)
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-done
		return nil, fmt.Errorf("run load dialog: %w", err)
	}

	cancel()
	res := <-done
	return res.Data, res.Err
}

// Plain returns a snapshot handler that prints each new event as a line,
// for terminals without the dialog.
func Plain(w io.Writer) func(monitor.Snapshot) {
	var (
		mu      sync.Mutex
		printed int
		started bool
	)
	return func(s monitor.Snapshot) {
		mu.Lock()
		defer mu.Unlock()

		if !started {
			started = true
			fmt.Fprintf(w, "loading (operation %s)\n", s.OperationID)
		}
		if printed > len(s.Events) {
			printed = 0
		}
		for _, ev := range s.Events[printed:] {
			switch ev.Kind {
			case monitor.EventProgress:
				fmt.Fprintf(w, "[%3.0f%%] %s\n", s.Progress, ev.Message)
			default:
				fmt.Fprintln(w, ev.Message)
			}
		}
		printed = len(s.Events)
	}
}
