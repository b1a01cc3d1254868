package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func startWatcher(t *testing.T, target string, reload func() error, opts Options) (*Watcher, <-chan error, context.CancelFunc) {
	t.Helper()

	w, err := New(target, reload, opts, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case err := <-errc:
		cancel()
		t.Fatalf("Run: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("watcher not ready")
	}

	t.Cleanup(cancel)
	return w, errc, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dataset.txt")
	if err := os.WriteFile(target, []byte("REG\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	startWatcher(t, target, func() error {
		calls.Add(1)
		return nil
	}, Options{})

	if err := os.WriteFile(target, []byte("REG\n0042 01 02\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return calls.Load() >= 1 })
}

func TestWatcherCoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "spoof.txt")
	if err := os.WriteFile(target, []byte("REG\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	w, _, _ := startWatcher(t, target, func() error {
		calls.Add(1)
		return nil
	}, Options{Debounce: 300 * time.Millisecond})

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(target, []byte("REG\n0005 -- AB\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, func() bool { return calls.Load() >= 1 })
	time.Sleep(500 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Fatalf("reload called %d times for one burst, want 1", got)
	}
	if w.Reloads() != 1 {
		t.Fatalf("Reloads = %d, want 1", w.Reloads())
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dataset.txt")
	if err := os.WriteFile(target, []byte("REG\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	startWatcher(t, target, func() error {
		calls.Add(1)
		return nil
	}, Options{Debounce: 20 * time.Millisecond})

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Fatalf("reload called %d times for an unrelated file", got)
	}
}

func TestWatcherSeesRenameOverTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dataset.txt")
	if err := os.WriteFile(target, []byte("REG\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	startWatcher(t, target, func() error {
		calls.Add(1)
		return nil
	}, Options{Debounce: 20 * time.Millisecond})

	tmp := filepath.Join(dir, ".dataset.txt.swp")
	if err := os.WriteFile(tmp, []byte("REG\n0042 01\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return calls.Load() >= 1 })
}

func TestWatcherFailFast(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dataset.txt")
	if err := os.WriteFile(target, []byte("REG\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	errBad := errors.New("bad table")
	_, errc, _ := startWatcher(t, target, func() error { return errBad }, Options{
		Debounce: 20 * time.Millisecond,
		FailFast: true,
	})

	if err := os.WriteFile(target, []byte("REG\nxx\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, errBad) {
			t.Fatalf("Run err = %v, want %v", err, errBad)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after failed reload")
	}
}

func TestWatcherKeepsRunningOnReloadError(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dataset.txt")
	if err := os.WriteFile(target, []byte("REG\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	_, errc, cancel := startWatcher(t, target, func() error {
		calls.Add(1)
		return errors.New("bad table")
	}, Options{Debounce: 20 * time.Millisecond})

	if err := os.WriteFile(target, []byte("REG\nxx\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return calls.Load() == 1 })

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(target, []byte("REG\nyy\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return calls.Load() == 2 })

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run err = %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
