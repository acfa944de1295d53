package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FlushFunc persists a debounced value
type FlushFunc[T any] func(ctx context.Context, v T) error

// Debouncer holds a single pending value and writes it once no new value has
// been scheduled for the configured delay. Scheduling replaces the pending
// value; only the latest one is ever written.
type Debouncer[T any] struct {
	delay time.Duration
	flush FlushFunc[T]

	mu      sync.Mutex
	timer   *time.Timer
	pending T
	has     bool
	gen     uint64
	stopped bool

	// flushMu serializes writes so a timer flush and an explicit flush never overlap
	flushMu sync.Mutex
}

// NewDebouncer creates a debouncer that calls flush after delay
func NewDebouncer[T any](delay time.Duration, flush func(ctx context.Context, v T) error) *Debouncer[T] {
	return &Debouncer[T]{
		delay: delay,
		flush: flush,
	}
}

// Schedule replaces the pending value and restarts the timer
func (d *Debouncer[T]) Schedule(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending = v
	d.has = true
	d.gen++

	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(gen)
	})
}

// Pending returns the unflushed value, if any
func (d *Debouncer[T]) Pending() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending, d.has
}

// Flush cancels the timer and writes the pending value now. It reports
// whether there was a value to write.
func (d *Debouncer[T]) Flush(ctx context.Context) (bool, error) {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	v, ok := d.take(0)
	if !ok {
		return false, nil
	}
	return true, d.flush(ctx, v)
}

// Stop cancels the timer and discards the pending value. Later calls to
// Schedule are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	var zero T
	d.pending = zero
	d.has = false
	d.gen++
	d.stopped = true
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	v, ok := d.take(gen)
	if !ok {
		return
	}
	if err := d.flush(context.Background(), v); err != nil {
		log.Error().Err(err).Msg("Debounced flush failed")
	}
}

// take removes the pending value. A non-zero gen only matches the timer
// that was armed for it; a stale timer gets nothing.
func (d *Debouncer[T]) take(gen uint64) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	if !d.has || (gen != 0 && gen != d.gen) {
		return zero, false
	}

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	v := d.pending
	d.pending = zero
	d.has = false
	d.gen++
	return v, true
}
