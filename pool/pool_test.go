package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomelo-net/webrtc-plugin/errors"
)

type element struct {
	id       int
	acquires int
	releases int
}

func TestAcquireRelease(t *testing.T) {
	p := New(Options[element]{})

	e := p.Acquire()
	require.NotNil(t, e)
	assert.Equal(t, 1, p.Allocated())
	assert.Equal(t, 1, p.InUse())
	assert.Equal(t, 0, p.Available())

	p.Release(e)
	assert.Equal(t, 1, p.Allocated())
	assert.Equal(t, 0, p.InUse())
	assert.Equal(t, 1, p.Available())

	// Recycled, not reallocated.
	e2 := p.Acquire()
	assert.Same(t, e, e2)
	assert.Equal(t, 1, p.Allocated())
}

func TestInUseInvariant(t *testing.T) {
	p := New(Options[element]{Synchronized: true})

	var held []*element
	for i := 0; i < 10; i++ {
		held = append(held, p.Acquire())
		assert.Equal(t, p.Allocated()-p.Available(), p.InUse())
	}
	for _, e := range held {
		p.Release(e)
		assert.Equal(t, p.Allocated()-p.Available(), p.InUse())
	}
	assert.Equal(t, 0, p.InUse())
}

func TestHookOrdering(t *testing.T) {
	var events []string
	p := New(Options[element]{
		Hooks: Hooks[element]{
			OnAlloc:   func(e *element) error { events = append(events, "alloc"); return nil },
			OnFree:    func(e *element) { events = append(events, "free") },
			OnAcquire: func(e *element) error { events = append(events, "acquire"); e.acquires++; return nil },
			OnRelease: func(e *element) { events = append(events, "release"); e.releases++ },
		},
	})

	e := p.Acquire()
	p.Release(e)
	e = p.Acquire()
	p.Release(e)
	p.Destroy()

	assert.Equal(t, []string{"alloc", "acquire", "release", "acquire", "release", "free"}, events)
	assert.Equal(t, 2, e.acquires)
	assert.Equal(t, 2, e.releases)
}

func TestAcquireFailureRollsBack(t *testing.T) {
	fail := true
	p := New(Options[element]{
		Hooks: Hooks[element]{
			OnAcquire: func(e *element) error {
				if fail {
					return errors.New("acquire rejected")
				}
				return nil
			},
		},
	})

	assert.Nil(t, p.Acquire())
	assert.Equal(t, 0, p.InUse())
	assert.Equal(t, 1, p.Available(), "failed element returns to the pool")

	fail = false
	assert.NotNil(t, p.Acquire())
}

func TestExhaustion(t *testing.T) {
	p := New(Options[element]{MaxAllocated: 2})

	a := p.Acquire()
	b := p.Acquire()
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Nil(t, p.Acquire())

	p.Release(a)
	assert.NotNil(t, p.Acquire())
}

func TestDoubleReleaseNoOp(t *testing.T) {
	released := 0
	p := New(Options[element]{
		Hooks: Hooks[element]{
			OnRelease: func(e *element) { released++ },
		},
	})

	e := p.Acquire()
	p.Release(e)
	p.Release(e)

	assert.Equal(t, 1, released)
	assert.Equal(t, 1, p.Available())
}

func TestReleaseForeignPointerNoOp(t *testing.T) {
	p := New(Options[element]{})
	p.Release(&element{})
	assert.Equal(t, 0, p.Available())
}

func TestZeroInitialized(t *testing.T) {
	p := New(Options[element]{ZeroInitialized: true})

	e := p.Acquire()
	e.id = 42
	p.Release(e)

	e = p.Acquire()
	assert.Equal(t, 0, e.id)
}

func TestZeroInitializedRejectsAllocHooks(t *testing.T) {
	assert.Panics(t, func() {
		New(Options[element]{
			ZeroInitialized: true,
			Hooks:           Hooks[element]{OnAlloc: func(e *element) error { return nil }},
		})
	})
}

func TestSynchronizedConcurrentUse(t *testing.T) {
	p := New(Options[element]{Synchronized: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				e := p.Acquire()
				if e != nil {
					p.Release(e)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, p.InUse())
	assert.Equal(t, p.Allocated(), p.Available())
}

func TestSharedBulkAcquireRelease(t *testing.T) {
	master := New(Options[element]{Synchronized: true})
	view := NewShared(master, 4)

	e := view.Acquire()
	require.NotNil(t, e)
	// The batch was pulled from the master in one go.
	assert.Equal(t, 4, master.InUse())

	var held []*element
	held = append(held, e)
	for i := 0; i < 7; i++ {
		held = append(held, view.Acquire())
	}

	for _, h := range held {
		view.Release(h)
	}
	view.Flush()
	assert.Equal(t, 0, master.InUse())
}

func TestSharedPreservesHooks(t *testing.T) {
	acquires, releases := 0, 0
	master := New(Options[element]{
		Synchronized: true,
		Hooks: Hooks[element]{
			OnAcquire: func(e *element) error { acquires++; return nil },
			OnRelease: func(e *element) { releases++ },
		},
	})
	view := NewShared(master, 2)

	a := view.Acquire()
	b := view.Acquire()
	view.Release(a)
	view.Release(b)

	// Hooks ran once per user-visible transition, not per bulk move.
	assert.Equal(t, 2, acquires)
	assert.Equal(t, 2, releases)
}

func TestReferenceLifecycle(t *testing.T) {
	finalized := 0
	var r Reference
	r.Init(func() { finalized++ })
	assert.Equal(t, int64(1), r.Count())

	require.True(t, r.Ref())
	assert.Equal(t, int64(2), r.Count())

	r.Unref()
	assert.Equal(t, 0, finalized)
	r.Unref()
	assert.Equal(t, 1, finalized)

	// Raising from zero is refused; the finalizer never reruns.
	assert.False(t, r.Ref())
	assert.Equal(t, 1, finalized)
}

func TestReferenceConcurrent(t *testing.T) {
	finalized := 0
	var r Reference
	r.Init(func() { finalized++ })

	const holders = 64
	var wg sync.WaitGroup
	for i := 0; i < holders; i++ {
		require.True(t, r.Ref())
	}
	for i := 0; i < holders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Unref()
		}()
	}
	wg.Wait()

	r.Unref() // creator's reference
	assert.Equal(t, 1, finalized)
}
