// Package pool runs named background tasks, such as the periodic refresh of a
// working copy, on a fixed number of goroutines.
package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var ErrStopped = errors.New("pool stopped")

// Task runs once and returns when it wants to run next. A zero time removes
// the task from the pool.
type Task func(ctx context.Context) time.Time

// Pool executes tasks in order of their deadlines. A task added or triggered
// while every worker is idle wakes one of them right away.
type Pool struct {
	mu     sync.Mutex
	queue  []*task
	reg    map[string]*task
	wait   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	name     string
	fn       Task
	deadline time.Time
	rerun    bool
}

// New starts workers goroutines. They stop when ctx is done or Stop is called;
// the context handed to tasks is cancelled at the same time.
func New(ctx context.Context, workers int) *Pool {
	p := &Pool{reg: make(map[string]*task)}
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(workers)
	for range workers {
		go p.work()
	}

	go func() {
		<-p.ctx.Done()
		p.mu.Lock()
		p.wake()
		p.mu.Unlock()
	}()

	return p
}

// Add schedules fn to run as soon as a worker is free. Adding a name that is
// already registered fails.
func (p *Pool) Add(name string, fn Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return ErrStopped
	}

	if _, ok := p.reg[name]; ok {
		return fmt.Errorf("task %s already scheduled", name)
	}

	t := &task{name: name, fn: fn, deadline: time.Now()}
	p.reg[name] = t
	p.queue = append(p.queue, t)
	p.sortAndWake()

	return nil
}

// Trigger runs the named task now. A queued task moves to the front of the
// queue; a running one runs again as soon as it returns, after which the
// deadlines it returns apply again.
func (p *Pool) Trigger(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i := slices.IndexFunc(p.queue, func(t *task) bool { return t.name == name }); i != -1 {
		p.queue[i].deadline = time.Now()
		p.sortAndWake()
		return nil
	}

	// Registered but not queued means running.
	if t, ok := p.reg[name]; ok {
		t.rerun = true
		return nil
	}

	return fmt.Errorf("no task with name %s", name)
}

// Stop cancels running tasks and waits for every worker to return.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) work() {
	defer p.wg.Done()

	for {
		t := p.dequeue()
		if t == nil {
			return
		}
		t.deadline = t.fn(p.ctx)
		p.enqueue(t)
	}
}

// sortAndWake must be called with p.mu held.
func (p *Pool) sortAndWake() {
	slices.SortFunc(p.queue, func(a, b *task) int {
		return a.deadline.Compare(b.deadline)
	})
	p.wake()
}

// wake must be called with p.mu held.
func (p *Pool) wake() {
	if p.wait != nil {
		close(p.wait)
		p.wait = nil
	}
}

func (p *Pool) enqueue(t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t.deadline.IsZero() || p.ctx.Err() != nil {
		delete(p.reg, t.name)
		return
	}

	if t.rerun {
		t.rerun = false
		t.deadline = time.Now()
	}

	p.queue = append(p.queue, t)
	p.sortAndWake()
}

// dequeue blocks until the earliest task is due and removes it from the queue.
// It returns nil once the pool is stopped.
func (p *Pool) dequeue() *task {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.ctx.Err() != nil {
			return nil
		}

		var delay time.Duration
		if len(p.queue) == 0 {
			delay = 24 * time.Hour
		} else if delay = time.Until(p.queue[0].deadline); delay <= 0 {
			break
		}

		if p.wait == nil {
			p.wait = make(chan struct{})
		}
		wait := p.wait

		p.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-wait:
		}
		timer.Stop()

		p.mu.Lock()
	}

	var t *task
	t, p.queue = p.queue[0], p.queue[1:]
	return t
}
