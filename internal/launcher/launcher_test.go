package launcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/psantana5/ecolaunch/internal/report"
	"github.com/psantana5/ecolaunch/pkg/descriptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptDescriptor writes body to a shell script in a temp dir and returns
// a descriptor running it under /bin/sh
func scriptDescriptor(t *testing.T, body string) descriptor.LaunchDescriptor {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))

	logs := filepath.Join(dir, "logs")
	return descriptor.LaunchDescriptor{
		Name:        "svc",
		Script:      script,
		Interpreter: "/bin/sh",
		LogFile:     filepath.Join(logs, "combined.log"),
		OutFile:     filepath.Join(logs, "out.log"),
		ErrorFile:   filepath.Join(logs, "error.log"),
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRun_Success(t *testing.T) {
	d := scriptDescriptor(t, "echo to-stdout\necho to-stderr >&2\n")

	result, err := New(WithSampleInterval(50*time.Millisecond)).Run(context.Background(), d)
	require.NoError(t, err)

	assert.True(t, result.Success())
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, report.ExitReasonSuccess, result.ExitReason)
	assert.Equal(t, []string{"/bin/sh", d.Script}, result.Argv)
	assert.Positive(t, result.PID)

	assert.Equal(t, "to-stdout\n", readFile(t, d.OutFile))
	assert.Equal(t, "to-stderr\n", readFile(t, d.ErrorFile))
	combined := readFile(t, d.LogFile)
	assert.Contains(t, combined, "to-stdout\n")
	assert.Contains(t, combined, "to-stderr\n")

	require.NotEmpty(t, result.Events)
	assert.Equal(t, report.StateStarting, result.Events[0].State)
	assert.Equal(t, report.StateCompleted, result.Events[len(result.Events)-1].State)
}

func TestRun_AppendsToExistingLogs(t *testing.T) {
	d := scriptDescriptor(t, "echo second\n")
	require.NoError(t, os.MkdirAll(filepath.Dir(d.OutFile), 0755))
	require.NoError(t, os.WriteFile(d.OutFile, []byte("first\n"), 0644))

	_, err := New().Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", readFile(t, d.OutFile))
}

func TestRun_SharedLogPath(t *testing.T) {
	d := scriptDescriptor(t, "echo out\necho err >&2\n")
	d.OutFile = d.LogFile
	d.ErrorFile = d.LogFile

	_, err := New().Run(context.Background(), d)
	require.NoError(t, err)

	combined := readFile(t, d.LogFile)
	assert.Equal(t, 1, strings.Count(combined, "out\n"))
	assert.Equal(t, 1, strings.Count(combined, "err\n"))
}

func TestRun_NonZeroExit(t *testing.T) {
	d := scriptDescriptor(t, "exit 3\n")

	result, err := New().Run(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, result.Success())
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, report.ExitReasonError, result.ExitReason)
	assert.Equal(t, report.StateFailed, result.Events[len(result.Events)-1].State)
}

func TestRun_ArgsAndEnvironment(t *testing.T) {
	d := scriptDescriptor(t, `printf '%s|%s|%s\n' "$1" "$2" "$GREETING"; pwd`)
	d.Args = `--host 0.0.0.0 'two words'`
	d.Env = map[string]string{"GREETING": "hello"}
	d.Cwd = t.TempDir()

	_, err := New().Run(context.Background(), d)
	require.NoError(t, err)

	out := readFile(t, d.OutFile)
	cwd, err := filepath.EvalSymlinks(d.Cwd)
	require.NoError(t, err)
	assert.Contains(t, out, "--host|0.0.0.0|hello\n")
	assert.Contains(t, out, cwd)
}

func TestRun_InterpreterNone(t *testing.T) {
	d := scriptDescriptor(t, "#!/bin/sh\necho direct \"$1\"\n")
	d.Interpreter = descriptor.InterpreterNone
	d.Args = "ok"

	result, err := New().Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, []string{d.Script, "ok"}, result.Argv)
	assert.Equal(t, "direct ok\n", readFile(t, d.OutFile))
}

func TestRun_Cancelled(t *testing.T) {
	d := scriptDescriptor(t, "echo ready\nexec sleep 30\n")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	result, err := New(WithKillTimeout(5*time.Second)).Run(ctx, d)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second, "SIGTERM alone should stop sleep")
	assert.Equal(t, report.ExitReasonCancelled, result.ExitReason)
	assert.Equal(t, "SIGTERM", result.Signal)
}

func TestRun_KillEscalation(t *testing.T) {
	d := scriptDescriptor(t, "trap '' TERM\nwhile true; do sleep 0.05; done\n")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	result, err := New(WithKillTimeout(300*time.Millisecond)).Run(ctx, d)
	require.NoError(t, err)

	assert.Equal(t, report.ExitReasonCancelled, result.ExitReason)
	assert.Equal(t, "SIGKILL", result.Signal)

	var messages []string
	for _, e := range result.Events {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Kill timeout expired, sending SIGKILL")
}

func TestRun_BackgroundChildHoldsPipes(t *testing.T) {
	d := scriptDescriptor(t, "sleep 5 &\necho main-done\nexit 0\n")

	start := time.Now()
	result, err := New(WithKillTimeout(300*time.Millisecond)).Run(context.Background(), d)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, report.ExitReasonSuccess, result.ExitReason)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "main-done\n", readFile(t, d.OutFile))

	var messages []string
	for _, e := range result.Events {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Leftover process group members killed")
	assert.Equal(t, report.StateCompleted, result.Events[len(result.Events)-1].State)
}

func TestRun_BackgroundChildFailingApp(t *testing.T) {
	d := scriptDescriptor(t, "sleep 5 &\nexit 4\n")

	result, err := New(WithKillTimeout(300*time.Millisecond)).Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, report.ExitReasonError, result.ExitReason)
	assert.Equal(t, 4, result.ExitCode)
}

func TestRun_ValidationErrors(t *testing.T) {
	t.Run("ScriptNotFound", func(t *testing.T) {
		d := scriptDescriptor(t, "true\n")
		d.Script = "/nonexistent/uvicorn"

		result, err := New().Run(context.Background(), d)
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, descriptor.ErrPathNotFound))
	})

	t.Run("Malformed", func(t *testing.T) {
		d := scriptDescriptor(t, "true\n")
		d.Name = " "

		_, err := New().Run(context.Background(), d)
		assert.True(t, errors.Is(err, descriptor.ErrMalformed))
	})

	t.Run("Unwritable", func(t *testing.T) {
		d := scriptDescriptor(t, "true\n")
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))
		d.ErrorFile = filepath.Join(blocker, "error.log")

		_, err := New().Run(context.Background(), d)
		assert.True(t, errors.Is(err, descriptor.ErrUnwritable))
	})
}

func TestRun_Metrics(t *testing.T) {
	m := report.NewMetrics()
	l := New(WithMetrics(m))

	_, err := l.Run(context.Background(), scriptDescriptor(t, "exit 0\n"))
	require.NoError(t, err)
	_, err = l.Run(context.Background(), scriptDescriptor(t, "exit 1\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	text := buf.String()
	assert.Contains(t, text, `ecolaunch_launches_total{app="svc"} 2`)
	assert.Contains(t, text, `ecolaunch_exits_total{app="svc",reason="success"} 1`)
	assert.Contains(t, text, `ecolaunch_exits_total{app="svc",reason="error"} 1`)
	assert.Contains(t, text, `ecolaunch_process_up{app="svc"} 0`)

	assert.Equal(t, report.StateFailed, l.Status().State)
}

func TestStatus_WhileRunning(t *testing.T) {
	d := scriptDescriptor(t, "exec sleep 30\n")
	l := New(WithSampleInterval(20 * time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx, d)
	}()

	require.Eventually(t, func() bool {
		s := l.Status()
		return s.State == report.StateRunning && s.RSSBytes > 0
	}, 5*time.Second, 20*time.Millisecond)

	s := l.Status()
	assert.Equal(t, "svc", s.App)
	assert.Positive(t, s.PID)

	cancel()
	<-done
}

func TestClassifyExit(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		st := classifyExit(nil, false)
		assert.Equal(t, report.ExitReasonSuccess, st.reason)
		assert.Equal(t, report.StateCompleted, st.state)

		st = classifyExit(nil, true)
		assert.Equal(t, report.ExitReasonCancelled, st.reason)
	})

	t.Run("NotExitError", func(t *testing.T) {
		st := classifyExit(errors.New("boom"), false)
		assert.Equal(t, -1, st.code)
		assert.Equal(t, report.ExitReasonUnknown, st.reason)
	})

	t.Run("Signaled", func(t *testing.T) {
		err := exec.Command("/bin/sh", "-c", "kill -KILL $$").Run()
		st := classifyExit(err, false)
		assert.Equal(t, report.ExitReasonSignal, st.reason)
		assert.Equal(t, "SIGKILL", st.signal)
		assert.Equal(t, report.StateKilled, st.state)
	})

	t.Run("OOMExitCode", func(t *testing.T) {
		err := exec.Command("/bin/sh", "-c", "exit 137").Run()
		st := classifyExit(err, false)
		assert.Equal(t, 137, st.code)
		assert.Equal(t, report.ExitReasonOOM, st.reason)
	})
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGTERM", SignalName(syscall.SIGTERM))
	assert.Equal(t, "SIGKILL", SignalName(syscall.SIGKILL))
	assert.Equal(t, "SIG64", SignalName(syscall.Signal(64)))
}
