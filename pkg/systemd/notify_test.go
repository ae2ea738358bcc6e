package systemd

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func TestNotifierStates(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := &Notifier{notify: rec.notify}

	_, _ = n.Ready()
	_, _ = n.Reloading()
	_, _ = n.Status("polling")
	_, _ = n.Stopping()

	got := rec.snapshot()
	want := []string{"READY=1", "RELOADING=1", "STATUS=polling", "STOPPING=1"}
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNilNotifierIsNoop(t *testing.T) {
	t.Parallel()
	var n *Notifier
	if ok, err := n.Ready(); ok || err != nil {
		t.Fatalf("Ready on nil = %v, %v", ok, err)
	}
	if d := n.WatchdogInterval(); d != 0 {
		t.Fatalf("WatchdogInterval on nil = %v", d)
	}
}

func TestRunWatchdogPings(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := &Notifier{
		notify:   rec.notify,
		watchdog: func(bool) (time.Duration, error) { return 20 * time.Millisecond, nil },
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.RunWatchdog(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.snapshot()) >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	states := rec.snapshot()
	if len(states) < 2 {
		t.Fatalf("expected at least two pings, got %v", states)
	}
	for _, s := range states {
		if s != "WATCHDOG=1" {
			t.Fatalf("unexpected state %q", s)
		}
	}
}

func TestRunWatchdogDisabledReturns(t *testing.T) {
	t.Parallel()
	n := &Notifier{
		notify:   (&recorder{}).notify,
		watchdog: func(bool) (time.Duration, error) { return 0, nil },
	}
	done := make(chan struct{})
	go func() {
		n.RunWatchdog(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunWatchdog did not return without a watchdog")
	}
}
