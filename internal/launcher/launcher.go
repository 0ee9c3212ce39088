// Package launcher spawns the process described by a launch descriptor,
// redirects its output to the descriptor's log files and waits for it.
//
// The child runs in its own process group. Cancelling the context sends
// SIGTERM to the group and SIGKILL once the kill timeout expires.
// Nothing is restarted here.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/psantana5/ecolaunch/internal/logging"
	"github.com/psantana5/ecolaunch/internal/report"
	"github.com/psantana5/ecolaunch/pkg/descriptor"
)

// DefaultKillTimeout matches PM2's kill_timeout
const DefaultKillTimeout = 1600 * time.Millisecond

// Status is a point-in-time view of the launched process
type Status struct {
	App        string                `json:"app"`
	PID        int                   `json:"pid"`
	State      report.LifecycleState `json:"state"`
	StartedAt  time.Time             `json:"started_at"`
	RSSBytes   uint64                `json:"rss_bytes"`
	CPUPercent float64               `json:"cpu_percent"`
	NumThreads int32                 `json:"num_threads"`
}

// Launcher runs one descriptor at a time
type Launcher struct {
	logger         *logging.Logger
	metrics        *report.Metrics
	killTimeout    time.Duration
	sampleInterval time.Duration

	mu     sync.RWMutex
	status Status
	events []report.LifecycleEvent
	peak   uint64
}

// Option configures a Launcher
type Option func(*Launcher)

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(l *Launcher) { l.logger = logger }
}

// WithMetrics records launches and samples into m
func WithMetrics(m *report.Metrics) Option {
	return func(l *Launcher) { l.metrics = m }
}

// WithKillTimeout sets how long to wait after SIGTERM before SIGKILL
func WithKillTimeout(d time.Duration) Option {
	return func(l *Launcher) { l.killTimeout = d }
}

// WithSampleInterval sets how often RSS and CPU are sampled
func WithSampleInterval(d time.Duration) Option {
	return func(l *Launcher) { l.sampleInterval = d }
}

// New creates a launcher
func New(opts ...Option) *Launcher {
	l := &Launcher{
		logger:         logging.Nop(),
		killTimeout:    DefaultKillTimeout,
		sampleInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = report.NewMetrics()
	}
	l.logger = l.logger.WithComponent("launcher")
	return l
}

// Status returns the current process status
func (l *Launcher) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Run validates d, spawns it and blocks until it exits. A process that
// starts and then fails is reported through the Result, not the error.
func (l *Launcher) Run(ctx context.Context, d descriptor.LaunchDescriptor) (*report.Result, error) {
	// Descriptors loaded with deferred checks are validated here
	if err := d.Validate(); err != nil {
		return nil, err
	}

	spec := d.ToSpawnSpec()
	logger := l.logger.WithField("app", d.Name)

	logs, err := openLogs(spec)
	if err != nil {
		return nil, err
	}
	defer logs.Close()

	l.reset(d.Name)
	logger.Info("Starting process", map[string]interface{}{"argv": spec.Argv()})
	l.emitEvent(0, report.StateStarting, "Spawning process")

	cmd := exec.Command(spec.Executable, spec.Arguments...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = logs.stdout
	cmd.Stderr = logs.stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // Own process group so signals reach every child
	}
	// Bounds Wait when a leftover child keeps the output pipes open
	cmd.WaitDelay = l.killTimeout

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		l.emitEvent(0, report.StateFailed, fmt.Sprintf("Failed to start: %v", err))
		return nil, fmt.Errorf("failed to start %s: %w", d.Name, err)
	}

	pid := cmd.Process.Pid
	l.setRunning(pid, startTime)
	l.metrics.RecordStart(d.Name)
	l.emitEvent(pid, report.StateRunning, fmt.Sprintf("PID %d started", pid))
	logger.Info("Process started", map[string]interface{}{"pid": pid})

	done := make(chan struct{})
	var cancelled atomic.Bool
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		l.stopOnCancel(ctx, pid, done, &cancelled, logger)
	}()
	go func() {
		defer wg.Done()
		sampleLoop(pid, l.sampleInterval, done, func(s Sample) {
			l.recordSample(d.Name, s)
		})
	}()

	waitErr := cmd.Wait()
	endTime := time.Now()
	close(done)
	wg.Wait()

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		waitErr = l.reapGroup(pid, cmd.ProcessState, logger)
	}

	st := classifyExit(waitErr, cancelled.Load())

	msg := fmt.Sprintf("Exited with code %d", st.code)
	switch {
	case st.signal != "":
		msg = fmt.Sprintf("Killed by %s", st.signal)
	case st.reason == report.ExitReasonSuccess:
		msg = "Completed successfully"
	}
	l.emitEvent(pid, st.state, msg)

	result := report.NewResult(d.Name, pid, spec.Argv(), startTime, endTime)
	result.ExitCode = st.code
	result.ExitReason = st.reason
	result.Signal = st.signal

	l.mu.Lock()
	l.status.State = st.state
	result.PeakRSSBytes = l.peak
	result.Events = append([]report.LifecycleEvent(nil), l.events...)
	l.mu.Unlock()

	l.metrics.RecordResult(result)
	result.LogSummary(logger)

	return result, nil
}

// stopOnCancel sends SIGTERM to the process group when ctx is done and
// escalates to SIGKILL after the kill timeout
func (l *Launcher) stopOnCancel(ctx context.Context, pid int, done <-chan struct{}, cancelled *atomic.Bool, logger *logging.Logger) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	cancelled.Store(true)
	l.setState(report.StateStopping)
	l.emitEvent(pid, report.StateStopping, "Sending SIGTERM to process group")
	logger.Info("Stopping process", map[string]interface{}{"pid": pid, "signal": "SIGTERM"})

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		logger.Warn("Failed to signal process group", map[string]interface{}{"error": err.Error()})
	}

	timer := time.NewTimer(l.killTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		logger.Warn("Process did not stop in time, sending SIGKILL", map[string]interface{}{
			"pid":          pid,
			"kill_timeout": l.killTimeout.String(),
		})
		l.emitEvent(pid, report.StateStopping, "Kill timeout expired, sending SIGKILL")
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
			logger.Warn("Failed to kill process group", map[string]interface{}{"error": err.Error()})
		}
	}
}

// reapGroup handles an app that exited while other members of its process
// group still held the output pipes. The leftovers are killed and the
// app's own exit status is returned as a Wait error.
func (l *Launcher) reapGroup(pid int, state *os.ProcessState, logger *logging.Logger) error {
	logger.Warn("Process group members outlived the app, sending SIGKILL", map[string]interface{}{"pid": pid})
	l.emitEvent(pid, report.StateStopping, "Leftover process group members killed")
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		logger.Warn("Failed to kill process group", map[string]interface{}{"error": err.Error()})
	}

	if state == nil {
		return exec.ErrWaitDelay
	}
	if state.Success() {
		return nil
	}
	return &exec.ExitError{ProcessState: state}
}

func (l *Launcher) reset(app string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = Status{App: app, State: report.StateStarting}
	l.events = nil
	l.peak = 0
}

func (l *Launcher) setRunning(pid int, start time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.PID = pid
	l.status.StartedAt = start
	l.status.State = report.StateRunning
}

func (l *Launcher) setState(state report.LifecycleState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.State = state
}

func (l *Launcher) recordSample(app string, s Sample) {
	l.mu.Lock()
	l.status.RSSBytes = s.RSSBytes
	l.status.CPUPercent = s.CPUPercent
	l.status.NumThreads = s.NumThreads
	if s.RSSBytes > l.peak {
		l.peak = s.RSSBytes
	}
	l.mu.Unlock()

	l.metrics.RecordSample(app, s.RSSBytes, s.CPUPercent)
}

// emitEvent records a lifecycle event
func (l *Launcher) emitEvent(pid int, state report.LifecycleState, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, report.LifecycleEvent{
		PID:       pid,
		State:     state,
		Timestamp: time.Now(),
		Message:   message,
	})
}
