package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

const progressSteps = 40

// sleepWithProgress sleeps for d in progressSteps slices, advancing a
// progress bar on out after each slice.
func sleepWithProgress(ctx context.Context, out io.Writer, d time.Duration, label string, sleep SleepFunc) error {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(true)
	pw.SetTrackerLength(progressSteps)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true
	pw.Style().Visibility.Value = false

	tracker := &progress.Tracker{
		Message: fmt.Sprintf("%s (%s)", label, d.Round(time.Second)),
		Total:   progressSteps,
	}
	pw.AppendTracker(tracker)

	// Render stops itself once the tracker is done or errored, including
	// when it starts after the tracker finished. Waiting on rendered keeps
	// every write to out inside this call.
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		pw.Render()
	}()
	defer func() { <-rendered }()

	step := d / progressSteps
	for i := 0; i < progressSteps; i++ {
		if err := sleep(ctx, step); err != nil {
			tracker.MarkAsErrored()
			return err
		}
		tracker.Increment(1)
	}
	tracker.MarkAsDone()
	return nil
}

func waitLabel(reason WaitReason) string {
	switch reason {
	case WaitAntiSpam:
		return "anti-spam cooldown"
	case WaitCooldown:
		return "endpoint cooldown"
	case WaitReset:
		return "rate limit reset"
	default:
		return "pacing"
	}
}
