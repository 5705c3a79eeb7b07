package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"strand/internal/ui"
	"strand/internal/workload"
)

// eventsPerRun is the number of progress events a run emits at most.
const eventsPerRun = 3

// runSweepWithUI runs the sweep in the background and renders its progress
// until the sweep finishes. Leaving the UI early cancels the sweep.
func runSweepWithUI(ctx context.Context, title string, seeds []uint64, opts workload.SweepOptions) (workload.SweepReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Sized so the sweep never blocks on a UI that already quit.
	events := make(chan workload.Event, eventsPerRun*len(seeds))
	opts.Progress = workload.ChannelSink{Ch: events}

	var (
		rep      workload.SweepReport
		sweepErr error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer close(events)
		rep, sweepErr = workload.Sweep(ctx, opts)
	}()

	_, uiErr := tea.NewProgram(ui.NewProgressModel(title, seeds, events), tea.WithOutput(os.Stdout)).Run()
	cancel()
	<-finished
	if uiErr != nil {
		return rep, uiErr
	}
	return rep, sweepErr
}
