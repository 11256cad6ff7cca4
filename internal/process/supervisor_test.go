package process

import (
	"sync"
	"testing"
	"time"
)

func TestSpawnCapturesOutputAndExitCode(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var lines []string
	exitCh := make(chan int, 1)

	err := s.Spawn("job1", []string{"/bin/sh", "-c", "echo hello; echo world"}, nil, t.TempDir(),
		func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
		func(code int) {
			exitCh <- code
		})
	if err != nil {
		t.Fatalf("unexpected spawn error: %v", err)
	}

	select {
	case code := <-exitCh:
		if code != 0 {
			t.Fatalf("expected exit code 0, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 2 || lines[0] != "hello" || lines[1] != "world" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestSpawnNonZeroExit(t *testing.T) {
	s := New()
	exitCh := make(chan int, 1)
	err := s.Spawn("job2", []string{"/bin/sh", "-c", "exit 7"}, nil, t.TempDir(),
		func(string) {},
		func(code int) { exitCh <- code })
	if err != nil {
		t.Fatalf("unexpected spawn error: %v", err)
	}

	select {
	case code := <-exitCh:
		if code != 7 {
			t.Fatalf("expected exit code 7, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit")
	}
}

func TestSpawnMissingBinaryReturnsError(t *testing.T) {
	s := New()
	err := s.Spawn("job3", []string{"/no/such/binary"}, nil, t.TempDir(),
		func(string) {},
		func(int) {})
	if err == nil {
		t.Fatal("expected spawn error for missing binary")
	}
	if s.IsRunning("job3") {
		t.Fatal("job3 should not be tracked as running after a failed spawn")
	}
}

func TestSpawnEmptyArgv(t *testing.T) {
	s := New()
	if err := s.Spawn("job4", nil, nil, t.TempDir(), func(string) {}, func(int) {}); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestTerminateSendsSignalAndWaits(t *testing.T) {
	s := New()
	exitCh := make(chan int, 1)
	// The shell only runs its TERM trap between foreground commands, so
	// short sleeps in a loop let it exit promptly on the signal.
	err := s.Spawn("job5", []string{"/bin/sh", "-c", "trap 'exit 0' TERM; while :; do sleep 0.1; done"}, nil, t.TempDir(),
		func(string) {},
		func(code int) { exitCh <- code })
	if err != nil {
		t.Fatalf("unexpected spawn error: %v", err)
	}

	if !s.IsRunning("job5") {
		t.Fatal("expected job5 to be running immediately after spawn")
	}

	done := make(chan struct{})
	go func() {
		s.Terminate("job5")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Terminate did not return in time")
	}

	select {
	case <-exitCh:
	case <-time.After(time.Second):
		t.Fatal("process did not report exit after Terminate returned")
	}
}

func TestClassifyExitCode(t *testing.T) {
	if c := ClassifyExitCode(127); !c.Retryable {
		t.Fatal("expected 127 to be retryable")
	}
	if c := ClassifyExitCode(126); !c.Retryable {
		t.Fatal("expected 126 to be retryable")
	}
	if c := ClassifyExitCode(137); c.Retryable {
		t.Fatal("expected OOM-kill (137) to be non-retryable")
	}
	if c := ClassifyExitCode(1); c.Retryable {
		t.Fatal("expected generic application error to be non-retryable")
	}
}

func TestClassifySpawnFailureIsRetryable(t *testing.T) {
	c := ClassifySpawnFailure(errEmptyArgv)
	if !c.Retryable {
		t.Fatal("expected spawn failures to always be retryable")
	}
}
