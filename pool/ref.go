package pool

import (
	"sync/atomic"

	"github.com/pomelo-net/webrtc-plugin/logger"
)

// Reference is the shared-ownership counter carried by every pooled entity.
// The creator initializes it to 1; each additional holder takes one Ref and
// drops it with Unref. When the count reaches zero the finalizer runs exactly
// once. Finalizers must enqueue the entity's release back to its pool rather
// than perform it inline, so teardown never reenters the holder that dropped
// the last reference.
type Reference struct {
	counter  atomic.Int64
	finalize func()
}

// Init resets the counter to 1 and installs the finalizer.
func (r *Reference) Init(finalize func()) {
	r.counter.Store(1)
	r.finalize = finalize
}

// Ref adds a reference. Raising a counter that already hit zero is a bug in
// the holder graph; the attempt is refused and logged.
func (r *Reference) Ref() bool {
	for {
		current := r.counter.Load()
		if current <= 0 {
			logger.Logger.Errorw("attempt to ref a finalized reference")
			return false
		}
		if r.counter.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Unref drops a reference, running the finalizer when the count hits zero.
func (r *Reference) Unref() {
	remaining := r.counter.Add(-1)
	if remaining < 0 {
		logger.Logger.Errorw("reference count went negative")
		return
	}
	if remaining == 0 && r.finalize != nil {
		r.finalize()
	}
}

// Count returns the current reference count.
func (r *Reference) Count() int64 {
	return r.counter.Load()
}
