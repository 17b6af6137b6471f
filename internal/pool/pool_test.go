package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool(t *testing.T) {
	p := New(t.Context(), 2)
	defer p.Stop()

	var ran atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		err := p.Add(name, func(context.Context) time.Time {
			ran.Add(1)
			var zero time.Time
			return zero
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	if exp, act := int32(3), ran.Load(); exp != act {
		t.Fatalf("expected %d runs, got %d", exp, act)
	}
}

type run struct {
	left     atomic.Int32
	ran      atomic.Int32
	sleep    time.Duration
	deadline time.Duration
}

func (r *run) Execute(context.Context) time.Time {
	if r.left.Add(-1) >= 0 {
		time.Sleep(r.sleep)
		r.ran.Add(1)
		return time.Now().Add(r.deadline)
	}

	var zero time.Time
	return zero // removes the task
}

func newRun(left int32, sleep, deadline time.Duration) *run {
	r := &run{sleep: sleep, deadline: deadline}
	r.left.Store(left)
	return r
}

func TestTrigger(t *testing.T) {
	t.Run("trigger pulls queued task to the front", func(t *testing.T) {
		p := New(t.Context(), 2)
		defer p.Stop()

		rx := newRun(3, 0, 200*time.Millisecond)

		if err := p.Add("refresh", rx.Execute); err != nil { // run #1, then queued for 200ms
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)

		_ = p.Trigger("refresh") // run #2
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("refresh")           // run #3
		time.Sleep(300 * time.Millisecond) // the fourth run removes the task

		if exp, act := int32(3), rx.ran.Load(); exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})

	t.Run("trigger reruns executing task right away", func(t *testing.T) {
		p := New(t.Context(), 2)
		defer p.Stop()

		// Without the trigger there would be no second run: the next deadline is 1s away.
		rx := newRun(3, 100*time.Millisecond, time.Second)

		if err := p.Add("refresh", rx.Execute); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("refresh") // rerun once run #1 is done

		time.Sleep(300 * time.Millisecond)

		if exp, act := int32(2), rx.ran.Load(); exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		p := New(t.Context(), 1)
		defer p.Stop()

		if err := p.Trigger("nope"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestAddDuplicate(t *testing.T) {
	p := New(t.Context(), 1)
	defer p.Stop()

	rx := newRun(1, 0, time.Hour)
	if err := p.Add("refresh", rx.Execute); err != nil {
		t.Fatal(err)
	}
	if err := p.Add("refresh", rx.Execute); err == nil {
		t.Fatal("expected duplicate task to be rejected")
	}
}

func TestStop(t *testing.T) {
	p := New(context.Background(), 2)

	cancelled := make(chan struct{})
	if err := p.Add("block", func(ctx context.Context) time.Time {
		<-ctx.Done()
		close(cancelled)
		return time.Now()
	}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not stop")
	}

	select {
	case <-cancelled:
	default:
		t.Fatal("expected running task to see its context cancelled")
	}

	if err := p.Add("late", func(context.Context) time.Time { return time.Time{} }); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(ctx, 1)

	cancel()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not stop after parent context was cancelled")
	}
}
