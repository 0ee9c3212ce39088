package report

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/psantana5/ecolaunch/internal/logging"
)

// LifecycleState represents the process lifecycle state
type LifecycleState string

const (
	StateStarting  LifecycleState = "starting"
	StateRunning   LifecycleState = "running"
	StateStopping  LifecycleState = "stopping"
	StateCompleted LifecycleState = "completed"
	StateFailed    LifecycleState = "failed"
	StateKilled    LifecycleState = "killed"
)

// ExitReason describes why a process terminated
type ExitReason string

const (
	ExitReasonSuccess   ExitReason = "success"   // Exit code 0
	ExitReasonError     ExitReason = "error"     // Exit code != 0
	ExitReasonSignal    ExitReason = "signal"    // Killed by a signal we did not send
	ExitReasonOOM       ExitReason = "oom"       // Exit code 137 or SIGKILL under memory pressure
	ExitReasonCancelled ExitReason = "cancelled" // Stopped by ecolaunch
	ExitReasonUnknown   ExitReason = "unknown"
)

// LifecycleEvent represents a lifecycle state change
type LifecycleEvent struct {
	PID       int            `json:"pid"`
	State     LifecycleState `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message,omitempty"`
}

// Result is the outcome of one launch. Built once when the process exits.
type Result struct {
	RunID string   `json:"run_id"`
	App   string   `json:"app"`
	PID   int      `json:"pid"`
	Argv  []string `json:"argv"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration_ns"`

	ExitCode   int        `json:"exit_code"`
	ExitReason ExitReason `json:"exit_reason"`
	Signal     string     `json:"signal,omitempty"`

	PeakRSSBytes uint64 `json:"peak_rss_bytes,omitempty"`

	Events []LifecycleEvent `json:"events"`
}

// NewResult creates a result for a process that ran from start to end
func NewResult(app string, pid int, argv []string, start, end time.Time) *Result {
	return &Result{
		RunID:     uuid.NewString(),
		App:       app,
		PID:       pid,
		Argv:      argv,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
	}
}

// Success reports whether the process exited cleanly
func (r *Result) Success() bool {
	return r.ExitReason == ExitReasonSuccess
}

// LogSummary emits a one-line summary of the run
func (r *Result) LogSummary(logger *logging.Logger) {
	fields := map[string]interface{}{
		"run_id":   r.RunID,
		"app":      r.App,
		"pid":      r.PID,
		"exit":     r.ExitCode,
		"reason":   string(r.ExitReason),
		"runtime":  fmt.Sprintf("%.1fs", r.Duration.Seconds()),
		"peak_rss": r.PeakRSSBytes,
	}
	if r.Signal != "" {
		fields["signal"] = r.Signal
	}

	if r.Success() || r.ExitReason == ExitReasonCancelled {
		logger.Info("Process exited", fields)
	} else {
		logger.Warn("Process exited", fields)
	}
}

// WriteReport writes a human-readable report
func (r *Result) WriteReport(out io.Writer) error {
	fmt.Fprintf(out, "=== Launch Report ===\n")
	fmt.Fprintf(out, "Run ID: %s\n", r.RunID)
	fmt.Fprintf(out, "App: %s\n", r.App)
	fmt.Fprintf(out, "PID: %d\n", r.PID)
	fmt.Fprintf(out, "Duration: %.2fs\n", r.Duration.Seconds())
	fmt.Fprintf(out, "Exit Code: %d\n", r.ExitCode)
	fmt.Fprintf(out, "Exit Reason: %s\n", r.ExitReason)
	if r.Signal != "" {
		fmt.Fprintf(out, "Signal: %s\n", r.Signal)
	}
	if r.PeakRSSBytes > 0 {
		fmt.Fprintf(out, "Peak RSS: %.1f MiB\n", float64(r.PeakRSSBytes)/(1<<20))
	}
	fmt.Fprintf(out, "\nLifecycle Events:\n")
	for _, event := range r.Events {
		if _, err := fmt.Fprintf(out, "  [%s] %s: %s\n",
			event.Timestamp.Format("15:04:05"), event.State, event.Message); err != nil {
			return err
		}
	}
	return nil
}
