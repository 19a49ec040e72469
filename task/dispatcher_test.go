package task

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsOnLoop(t *testing.T) {
	d := NewDispatcher(Options{})
	defer d.Shutdown()

	done := make(chan struct{})
	require.NotNil(t, d.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestFIFOPerGoroutine(t *testing.T) {
	d := NewDispatcher(Options{})
	defer d.Shutdown()

	const n = 1000
	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		i := i
		require.NotNil(t, d.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, i, got[i])
	}
}

func TestTasksSerialized(t *testing.T) {
	d := NewDispatcher(Options{})
	defer d.Shutdown()

	var inTask atomic.Int32
	var overlapped atomic.Bool
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				var submitted sync.WaitGroup
				submitted.Add(1)
				for d.Submit(func() {
					if inTask.Add(1) != 1 {
						overlapped.Store(true)
					}
					inTask.Add(-1)
					submitted.Done()
				}) == nil {
				}
				submitted.Wait()
			}
		}()
	}
	wg.Wait()
	assert.False(t, overlapped.Load(), "two tasks observed running concurrently")
}

func TestSubmitAfterShutdownReturnsNil(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Shutdown()
	assert.Nil(t, d.Submit(func() {}))
}

func TestSubmitPoolExhaustion(t *testing.T) {
	d := NewDispatcher(Options{MaxPending: 2})
	defer d.Shutdown()

	// Park the loop so queued records stay outstanding.
	release := make(chan struct{})
	require.NotNil(t, d.Submit(func() { <-release }))

	// One record is executing (released back), so up to MaxPending further
	// submissions may be accepted before the pool runs dry.
	var accepted int
	for i := 0; i < 10; i++ {
		if d.Submit(func() {}) != nil {
			accepted++
		}
	}
	assert.Less(t, accepted, 10)
	close(release)
}

func TestShutdownDrainsPending(t *testing.T) {
	d := NewDispatcher(Options{})

	var ran atomic.Int32
	for i := 0; i < 100; i++ {
		d.Submit(func() { ran.Add(1) })
	}
	d.Shutdown()
	assert.Equal(t, int32(100), ran.Load())
}

func TestScheduleRepeats(t *testing.T) {
	d := NewDispatcher(Options{})
	defer d.Shutdown()

	var ticks atomic.Int32
	var st *ScheduledTask
	armed := make(chan struct{})
	d.Submit(func() {
		st = d.Schedule(func() { ticks.Add(1) }, 10*time.Millisecond)
		close(armed)
	})
	<-armed
	require.NotNil(t, st)

	time.Sleep(120 * time.Millisecond)
	d.Unschedule(st)
	n := ticks.Load()
	assert.GreaterOrEqual(t, n, int32(5))

	// No further ticks after unschedule settles.
	time.Sleep(50 * time.Millisecond)
	final := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, final, ticks.Load())
}

func TestUnscheduleIdempotent(t *testing.T) {
	d := NewDispatcher(Options{})
	defer d.Shutdown()

	var st *ScheduledTask
	armed := make(chan struct{})
	d.Submit(func() {
		st = d.Schedule(func() {}, time.Hour)
		close(armed)
	})
	<-armed

	d.Unschedule(st)
	d.Unschedule(st)
	d.Unschedule(nil)
}

func TestSpawnRunsWorkThenCallback(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2})
	defer d.Shutdown()

	var order []string
	var mu sync.Mutex
	done := make(chan struct{})

	ok := d.Spawn(
		func() {
			mu.Lock()
			order = append(order, "work")
			mu.Unlock()
		},
		func() {
			mu.Lock()
			order = append(order, "done")
			mu.Unlock()
			close(done)
		},
	)
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion callback never ran")
	}
	assert.Equal(t, []string{"work", "done"}, order)
}

func TestSpawnCompletionSuppressedAfterShutdown(t *testing.T) {
	d := NewDispatcher(Options{})

	var completed atomic.Bool
	workStarted := make(chan struct{})
	release := make(chan struct{})

	ok := d.Spawn(
		func() {
			close(workStarted)
			<-release
		},
		func() { completed.Store(true) },
	)
	require.True(t, ok)
	<-workStarted

	// Shut down while the work is still running, then let it finish.
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	d.Shutdown()

	assert.False(t, completed.Load())
}

func TestSpawnAfterShutdown(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Shutdown()
	assert.False(t, d.Spawn(func() {}, nil))
}

func TestShutdownIdempotent(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Shutdown()
	d.Shutdown()
}
