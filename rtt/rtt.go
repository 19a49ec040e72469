// Package rtt tracks round-trip time over the system channel: a ring of
// outstanding ping entries keyed by a wrapping 16-bit sequence, feeding a
// fixed sample window that yields a running mean and population variance.
package rtt

import "sync/atomic"

const (
	// SampleWindow is the number of samples in the averaging window.
	SampleWindow = 10

	// EntryBufferSize is the number of outstanding ping entries.
	EntryBufferSize = 20

	// MaxSequence is the largest ping sequence value; the next sequence
	// after it wraps to zero.
	MaxSequence = 0xFFFF
)

// Entry is one outstanding ping. Entries are one-shot: submitting an entry
// invalidates it.
type Entry struct {
	// Sequence is the ping sequence this entry was issued for.
	Sequence uint64

	// SendTime is the send timestamp in nanoseconds.
	SendTime uint64

	valid bool
}

// Calculator produces ping entries and folds pong receipts into a mean and
// variance readable from any goroutine. All other methods are loop-only.
type Calculator struct {
	mean     atomic.Uint64
	variance atomic.Uint64

	entrySequence uint64
	entries       [EntryBufferSize]Entry
	sample        sampleSet
}

// NewCalculator returns a ready calculator.
func NewCalculator() *Calculator {
	c := &Calculator{}
	c.sample = newSampleSet(SampleWindow)
	return c
}

// Reset returns the calculator to its initial state.
func (c *Calculator) Reset() {
	c.mean.Store(0)
	c.variance.Store(0)
	c.entrySequence = 0
	c.entries = [EntryBufferSize]Entry{}
	c.sample.reset()
}

// Get returns the current mean and variance. Each field is individually
// atomic: readers never see a torn value but may observe a mean and variance
// from adjacent windows, which is acceptable for monitoring.
func (c *Calculator) Get() (mean, variance uint64) {
	return c.mean.Load(), c.variance.Load()
}

// NextEntry issues the next ping entry, stamping it with sendTime. The entry
// slot is entries[sequence % EntryBufferSize]; an unanswered ping older than
// EntryBufferSize sequences is silently overwritten.
func (c *Calculator) NextEntry(sendTime uint64) *Entry {
	sequence := c.entrySequence
	c.entrySequence++
	if c.entrySequence > MaxSequence {
		c.entrySequence = 0
	}

	entry := &c.entries[sequence%EntryBufferSize]
	entry.valid = true
	entry.Sequence = sequence
	entry.SendTime = sendTime
	return entry
}

// Entry returns the outstanding entry for sequence, or nil if the slot has
// been reused or already submitted.
func (c *Calculator) Entry(sequence uint64) *Entry {
	entry := &c.entries[sequence%EntryBufferSize]
	if !entry.valid || entry.Sequence != sequence {
		return nil
	}
	return entry
}

// Submit folds a pong receipt into the window. The sample is
// recvTime − SendTime − replyDelta; the entry is invalidated.
func (c *Calculator) Submit(entry *Entry, recvTime, replyDelta uint64) {
	entry.valid = false

	c.sample.submit(recvTime - entry.SendTime - replyDelta)

	mean, variance := c.sample.calc()
	c.mean.Store(mean)
	c.variance.Store(variance)
}
