package launcher

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"github.com/psantana5/ecolaunch/internal/report"
)

// exitStatus is what Wait told us about the process
type exitStatus struct {
	code   int
	reason report.ExitReason
	signal string
	state  report.LifecycleState
}

// classifyExit turns the error returned by cmd.Wait into an exit status.
// cancelled is true when ecolaunch itself asked the process to stop.
func classifyExit(waitErr error, cancelled bool) exitStatus {
	if waitErr == nil {
		if cancelled {
			return exitStatus{code: 0, reason: report.ExitReasonCancelled, state: report.StateCompleted}
		}
		return exitStatus{code: 0, reason: report.ExitReasonSuccess, state: report.StateCompleted}
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return exitStatus{code: -1, reason: report.ExitReasonUnknown, state: report.StateFailed}
	}

	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return exitStatus{code: exitErr.ExitCode(), reason: report.ExitReasonError, state: report.StateFailed}
	}

	st := exitStatus{
		code:   exitErr.ExitCode(),
		reason: DetermineExitReason(status, cancelled),
		state:  report.StateFailed,
	}
	if status.Signaled() {
		st.signal = SignalName(status.Signal())
		st.state = report.StateKilled
	}
	return st
}

// DetermineExitReason analyzes a wait status to determine why the process ended
func DetermineExitReason(status syscall.WaitStatus, cancelled bool) report.ExitReason {
	if cancelled {
		return report.ExitReasonCancelled
	}

	if status.Exited() {
		switch status.ExitStatus() {
		case 0:
			return report.ExitReasonSuccess
		case 137:
			// Shells report a SIGKILLed child as 128+9, usually the OOM killer
			return report.ExitReasonOOM
		default:
			return report.ExitReasonError
		}
	}

	if status.Signaled() {
		return report.ExitReasonSignal
	}

	return report.ExitReasonUnknown
}

// SignalName returns the signal name for a signal number
func SignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	case syscall.SIGABRT:
		return "SIGABRT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGPIPE:
		return "SIGPIPE"
	case syscall.SIGXCPU:
		return "SIGXCPU"
	case syscall.SIGXFSZ:
		return "SIGXFSZ"
	default:
		return fmt.Sprintf("SIG%d", sig)
	}
}
