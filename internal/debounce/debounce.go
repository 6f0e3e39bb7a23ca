// Package debounce runs the last of a burst of triggers after a quiet window.
package debounce

import (
	"context"
	"sync"
	"time"
)

// Commit applies a result only if the run that produced it is still the
// latest one. apply runs under the debouncer's lock and must not call back
// into the debouncer.
type Commit func(apply func()) bool

// Func is the debounced work. ctx is cancelled as soon as a newer trigger
// arrives.
type Func func(ctx context.Context, commit Commit)

type Debouncer struct {
	wait time.Duration

	mu      sync.Mutex
	idle    *sync.Cond
	gen     uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	pending int
}

func New(wait time.Duration) *Debouncer {
	d := &Debouncer{wait: wait}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Trigger schedules fn after the quiet window, superseding any earlier
// trigger that is still waiting or running.
func (d *Debouncer) Trigger(parent context.Context, fn Func) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.supersedeLocked()
	gen := d.gen

	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.pending++

	d.timer = time.AfterFunc(d.wait, func() {
		defer d.finish(cancel)
		if ctx.Err() != nil {
			return
		}
		fn(ctx, func(apply func()) bool {
			d.mu.Lock()
			defer d.mu.Unlock()
			if d.gen != gen || ctx.Err() != nil {
				return false
			}
			apply()
			return true
		})
	})
}

// Cancel drops any waiting or running trigger.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.supersedeLocked()
}

// Wait blocks until no trigger is waiting or running.
func (d *Debouncer) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pending > 0 {
		d.idle.Wait()
	}
}

func (d *Debouncer) supersedeLocked() {
	d.gen++
	if d.timer != nil && d.timer.Stop() {
		// the timer never fired, so finish will not run for it
		d.pending--
		d.idle.Broadcast()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.timer = nil
}

func (d *Debouncer) finish(cancel context.CancelFunc) {
	cancel()
	d.mu.Lock()
	d.pending--
	d.idle.Broadcast()
	d.mu.Unlock()
}
