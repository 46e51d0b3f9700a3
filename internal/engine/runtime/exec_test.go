package runtime

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the exec copy goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStart_Success(t *testing.T) {
	rt := NewExecRuntime()

	ctx := context.Background()
	handle, err := rt.Start(ctx, StartOptions{
		Command: []string{"echo", "hello"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if handle == nil {
		t.Fatal("expected handle to be non-nil")
	}
	if handle.PID() <= 0 {
		t.Errorf("expected positive pid, got %d", handle.PID())
	}
	if !strings.HasPrefix(handle.ID(), "pid-") {
		t.Errorf("unexpected handle id %q", handle.ID())
	}

	result, _ := handle.Wait(ctx)
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestStart_EmptyCommand(t *testing.T) {
	rt := NewExecRuntime()

	_, err := rt.Start(context.Background(), StartOptions{Command: []string{}})
	if err == nil {
		t.Fatal("expected error for empty command")
	}
	if !strings.Contains(err.Error(), "command is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStart_CommandNotFound(t *testing.T) {
	rt := NewExecRuntime()

	_, err := rt.Start(context.Background(), StartOptions{
		Command: []string{"/nonexistent/venv/bin/python", "server.py"},
	})
	if err == nil {
		t.Fatal("expected error for non-existent interpreter")
	}
}

func TestStart_UsesWorkDir(t *testing.T) {
	dir := t.TempDir()
	var out syncBuffer

	handle, err := NewExecRuntime().Start(context.Background(), StartOptions{
		Command: []string{"pwd"},
		Dir:     dir,
		Stdout:  &out,
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	handle.Wait(context.Background())

	if !strings.Contains(out.String(), dir) {
		t.Errorf("expected working dir %s, got: %s", dir, out.String())
	}
}

func TestWait_ExitCodeZero(t *testing.T) {
	handle, err := NewExecRuntime().Start(context.Background(), StartOptions{
		Command: []string{"true"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	result, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if result.Error != nil {
		t.Errorf("expected no error, got %v", result.Error)
	}
}

func TestWait_ExitCodeNonZero(t *testing.T) {
	handle, err := NewExecRuntime().Start(context.Background(), StartOptions{
		Command: []string{"sh", "-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	result, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.ExitCode)
	}
}

func TestWait_KilledBySignal(t *testing.T) {
	handle, err := NewExecRuntime().Start(context.Background(), StartOptions{
		Command: []string{"sh", "-c", "kill -9 $$"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	result, _ := handle.Wait(context.Background())
	if result.ExitCode != 137 {
		t.Errorf("expected exit code 137, got %d", result.ExitCode)
	}
	if result.Signal == "" {
		t.Error("expected signal name to be recorded")
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	handle, err := NewExecRuntime().Start(context.Background(), StartOptions{
		Command: []string{"sleep", "10"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer handle.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result, err := handle.Wait(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if result.ExitCode != -1 {
		t.Errorf("expected exit code -1 on timeout, got %d", result.ExitCode)
	}
}

func TestStop_GracefulTermination(t *testing.T) {
	handle, err := NewExecRuntime().Start(context.Background(), StartOptions{
		Command: []string{"sleep", "30"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := handle.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	result, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait after Stop failed: %v", err)
	}
	// SIGTERM
	if result.ExitCode != 143 {
		t.Errorf("expected exit code 143 after SIGTERM, got %d", result.ExitCode)
	}
}

func TestStop_KillsAfterDeadline(t *testing.T) {
	handle, err := NewExecRuntime().Start(context.Background(), StartOptions{
		Command: []string{"sh", "-c", "trap '' TERM; sleep 30"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Give the shell a moment to install the trap
	time.Sleep(100 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := handle.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	result, _ := handle.Wait(context.Background())
	if result.ExitCode != 137 {
		t.Errorf("expected exit code 137 after kill, got %d", result.ExitCode)
	}
}

func TestStop_Idempotent(t *testing.T) {
	handle, err := NewExecRuntime().Start(context.Background(), StartOptions{
		Command: []string{"sleep", "30"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := handle.Stop(ctx); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := handle.Stop(ctx); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestStart_CapturesStdoutAndStderr(t *testing.T) {
	var stdout, stderr syncBuffer

	handle, err := NewExecRuntime().Start(context.Background(), StartOptions{
		Command: []string{"sh", "-c", "echo out; echo err 1>&2"},
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	handle.Wait(context.Background())

	if strings.TrimSpace(stdout.String()) != "out" {
		t.Errorf("expected stdout 'out', got: %q", stdout.String())
	}
	if strings.TrimSpace(stderr.String()) != "err" {
		t.Errorf("expected stderr 'err', got: %q", stderr.String())
	}
}

func TestStart_PassesEnvironment(t *testing.T) {
	t.Setenv("PYTHONPATH", "/from/parent")
	var out syncBuffer

	handle, err := NewExecRuntime().Start(context.Background(), StartOptions{
		Command: []string{"sh", "-c", "echo $PYTHONUNBUFFERED:$PYTHONPATH:$HOME"},
		Env: map[string]string{
			"PYTHONUNBUFFERED": "1",
			"PYTHONPATH":       "/engine/backend",
		},
		Stdout: &out,
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	handle.Wait(context.Background())

	parts := strings.Split(strings.TrimSpace(out.String()), ":")
	if len(parts) != 3 {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if parts[0] != "1" || parts[1] != "/engine/backend" {
		t.Errorf("overlay not applied: %q", out.String())
	}
}

func TestMergeEnv(t *testing.T) {
	env := mergeEnv([]string{"A=1", "PYTHONPATH=/old", "B=2"}, map[string]string{"PYTHONPATH": "/new", "C": "3"})

	want := []string{"A=1", "B=2", "C=3", "PYTHONPATH=/new"}
	if strings.Join(env, ",") != strings.Join(want, ",") {
		t.Errorf("mergeEnv() = %v, want %v", env, want)
	}
}
