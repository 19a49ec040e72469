// Package task provides the cooperative event loop that serializes all core
// state mutation, and the bridges that carry callbacks arriving on foreign
// goroutines (the WebRTC stack, the host executor) onto that loop.
//
// The model mirrors a libuv-style plugin thread: one goroutine owns the
// loop; Submit, Spawn and Shutdown are the thread-safe entries; Schedule drives repeating
// timers whose ticks run on the loop; Spawn runs blocking work on a small
// worker pool and hops the completion back onto the loop.
package task

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pomelo-net/webrtc-plugin/pool"
)

// Task is one pooled unit of work for the loop.
type Task struct {
	fn func()
}

// Options configure a dispatcher.
type Options struct {
	// MaxPending bounds the number of task records that can be outstanding
	// at once. Zero means unbounded. Submit returns nil at the bound.
	MaxPending int

	// Workers is the size of the pool servicing Spawn. Defaults to 1.
	Workers int
}

// Dispatcher owns the loop goroutine and the worker pool.
type Dispatcher struct {
	running atomic.Bool

	mu    sync.Mutex
	queue []*Task

	wake     chan struct{}
	stop     chan struct{}
	loopDone sync.WaitGroup

	taskPool *pool.Pool[Task]

	workerSlots chan struct{}
	workerWG    sync.WaitGroup
}

// NewDispatcher creates and starts a dispatcher. The loop goroutine runs
// until Shutdown.
func NewDispatcher(opts Options) *Dispatcher {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		taskPool: pool.New(pool.Options[Task]{
			Synchronized: true,
			MaxAllocated: opts.MaxPending,
		}),
		workerSlots: make(chan struct{}, workers),
	}
	d.running.Store(true)

	d.loopDone.Add(1)
	go d.run()
	return d
}

// Running reports whether the loop is accepting tasks.
func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// Submit enqueues fn to run once on the loop. Safe from any goroutine.
// Tasks submitted from one goroutine run in submission order. Returns nil if
// the task pool is exhausted or the dispatcher has shut down; the caller
// must compensate for any references it took for the task's arguments.
func (d *Dispatcher) Submit(fn func()) *Task {
	if !d.running.Load() {
		return nil
	}

	t := d.taskPool.Acquire()
	if t == nil {
		return nil
	}
	t.fn = fn

	d.mu.Lock()
	d.queue = append(d.queue, t)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return t
}

// run drains the queue until shutdown, then performs one final drain so
// tasks submitted before the shutdown flag flipped still execute.
func (d *Dispatcher) run() {
	defer d.loopDone.Done()
	for {
		select {
		case <-d.wake:
			d.drain()
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		t := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn := t.fn
		t.fn = nil
		d.taskPool.Release(t)
		fn()
	}
}

// Shutdown stops the loop after draining pending tasks and waits for it and
// all in-flight workers to exit. Safe from any goroutine; idempotent.
func (d *Dispatcher) Shutdown() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	close(d.stop)
	d.loopDone.Wait()
	d.workerWG.Wait()
}

// ScheduledTask is a repeating timer whose ticks run on the loop. A tick
// never begins before the previous one returns.
type ScheduledTask struct {
	dispatcher *Dispatcher
	fn         func()
	ticker     *time.Ticker
	cancel     chan struct{}
	cancelled  atomic.Bool
}

// Schedule runs fn on the loop every interval. Must be called from the loop.
// Returns nil if the dispatcher has shut down or interval is not positive.
func (d *Dispatcher) Schedule(fn func(), interval time.Duration) *ScheduledTask {
	if !d.running.Load() || interval <= 0 {
		return nil
	}

	st := &ScheduledTask{
		dispatcher: d,
		fn:         fn,
		ticker:     time.NewTicker(interval),
		cancel:     make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-st.cancel:
				return
			case <-d.stop:
				return
			case <-st.ticker.C:
				d.Submit(st.tick)
			}
		}
	}()
	return st
}

// tick runs on the loop; a tick racing Unschedule may still fire once and is
// suppressed here.
func (st *ScheduledTask) tick() {
	if st.cancelled.Load() {
		return
	}
	st.fn()
}

// Unschedule cancels a scheduled task. A tick already on the loop is allowed
// to complete its suppression check; no tick runs after this returns on the
// loop. Idempotent.
func (d *Dispatcher) Unschedule(st *ScheduledTask) {
	if st == nil {
		return
	}
	if !st.cancelled.CompareAndSwap(false, true) {
		return
	}
	st.ticker.Stop()
	close(st.cancel)
}

// Spawn runs work on a pool worker, then runs done on the loop. The work
// cannot be cancelled once started; done is suppressed if the loop has shut
// down by the time work completes. done may be nil. Safe from any goroutine.
// Returns false if the dispatcher has already shut down.
func (d *Dispatcher) Spawn(work func(), done func()) bool {
	if !d.running.Load() {
		return false
	}

	d.workerWG.Add(1)
	go func() {
		defer d.workerWG.Done()
		d.workerSlots <- struct{}{}
		defer func() { <-d.workerSlots }()

		work()
		if done != nil {
			d.Submit(done)
		}
	}()
	return true
}
