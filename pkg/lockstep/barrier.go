package lockstep

import (
	"context"
	"sync"
)

// Barrier is a cyclic N-way rendezvous: count down from N to 0 wakes every
// waiter and immediately re-arms for the next cycle, so the same barrier
// instance is reused across the whole session instead of being
// reallocated every tick. A cycle that completes while nobody is waiting
// is remembered, and the next Await returns at once.
//
// Grounded on original_source/LockstepLibrary's CyclicCountDownLatch,
// which re-wraps a fresh java.util.concurrent.CountDownLatch on every
// await(). That approach has a lost-wakeup hazard: a countDown racing
// with the field swap can land on the old, already-released latch.
// Barrier instead tracks a generation counter under a single mutex so the
// "count hits zero, reset, wake everyone" transition is one atomic step,
// satisfying the invariant in spec §4.2 that a waiter can never miss a
// countDown that happens concurrently with its own release.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	count      int
	remaining  int
	generation uint64

	// released is set when a cycle completes and cleared by the first
	// Await to return after it.
	released bool
}

// NewBarrier constructs a cyclic barrier for count participants.
func NewBarrier(count int) *Barrier {
	if count <= 0 {
		panic("lockstep: barrier count must be positive")
	}
	b := &Barrier{count: count, remaining: count}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// CountDown decrements the current cycle's counter. When the counter
// reaches zero, every Await waiter wakes and the counter is reset to count
// before any of them returns; the counter never rests at zero, so each
// further call counts toward the next cycle.
func (b *Barrier) CountDown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining == 0 {
		return
	}
	b.remaining--
	if b.remaining == 0 {
		b.remaining = b.count
		b.generation++
		b.released = true
		b.cond.Broadcast()
	}
}

// Await blocks until the current cycle completes (or the barrier is
// Reset), or until ctx is done, in which case it returns ErrInterrupted.
// If a cycle has completed since the last Await returned, Await returns
// immediately instead of waiting for the next one.
func (b *Barrier) Await(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ctx != nil && ctx.Err() != nil {
		return ErrInterrupted
	}

	if b.released {
		b.released = false
		return nil
	}

	startGen := b.generation
	if b.remaining == 0 {
		// Shouldn't happen: remaining is reset before any waiter
		// returns. Guard anyway rather than trust the invariant blindly.
		return &InvariantError{Reason: "barrier remaining observed at zero mid-cycle"}
	}

	if ctx == nil || ctx.Done() == nil {
		for b.generation == startGen {
			b.cond.Wait()
		}
		b.released = false
		return nil
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		case <-stop:
		}
	}()

	for b.generation == startGen {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		b.cond.Wait()
	}
	b.released = false
	return nil
}

// Reset force-sets the countdown back to count and releases any current
// waiters immediately, without running out the normal countDown sequence.
// Used on session teardown (the simulation thread's Await returns and it
// then observes the session's own stop flag) or desync recovery.
func (b *Barrier) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining = b.count
	b.generation++
	b.cond.Broadcast()
}

// GetCount returns the current countdown value. Advisory only: by the
// time the caller observes it, a concurrent CountDown may have changed it.
func (b *Barrier) GetCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}
