// Package timer implements one-shot and repeating timers bound to the
// logic thread (spec component F), grounded on the teacher's interval-timer
// usage in original_source's Room.cpp (_timer->SetInterval(1, 50, this)).
package timer

import (
	"sync/atomic"
	"time"

	"github.com/kybird/vsurv/internal/dispatch"
)

// Handle identifies a scheduled timer. Cancel is idempotent on a Handle.
type Handle struct {
	cancelled *int32
	stop      func()
}

// Cancel marks the timer cancelled. If the timer has already fired (or
// already been cancelled) this is a no-op. A timer whose callback has
// already been posted to the dispatcher before Cancel is observed may still
// run once more; the cancellation flag is checked inside that callback, so
// no further fire ever happens once Cancel is observed on the logic thread.
func (h Handle) Cancel() {
	atomic.StoreInt32(h.cancelled, 1)
	if h.stop != nil {
		h.stop()
	}
}

// Wheel schedules timers and posts their callbacks onto a Dispatcher so
// they always run on the logic thread.
type Wheel struct {
	d *dispatch.Dispatcher
}

// New creates a Wheel posting onto d.
func New(d *dispatch.Dispatcher) *Wheel {
	return &Wheel{d: d}
}

// SetTimer schedules fn to run once after delay, on the logic thread.
func (w *Wheel) SetTimer(delay time.Duration, fn func()) Handle {
	cancelled := new(int32)
	t := time.AfterFunc(delay, func() {
		if atomic.LoadInt32(cancelled) == 1 {
			return
		}
		w.d.Post(func() {
			if atomic.LoadInt32(cancelled) == 1 {
				return
			}
			fn()
		})
	})
	return Handle{cancelled: cancelled, stop: func() { t.Stop() }}
}

// SetInterval schedules fn to run repeatedly every interval, on the logic
// thread, until cancelled.
func (w *Wheel) SetInterval(interval time.Duration, fn func()) Handle {
	cancelled := new(int32)
	ticker := time.NewTicker(interval)
	stopCh := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if atomic.LoadInt32(cancelled) == 1 {
					return
				}
				w.d.Post(func() {
					if atomic.LoadInt32(cancelled) == 1 {
						return
					}
					fn()
				})
			case <-stopCh:
				return
			}
		}
	}()

	return Handle{
		cancelled: cancelled,
		stop: func() {
			ticker.Stop()
			select {
			case <-stopCh:
			default:
				close(stopCh)
			}
		},
	}
}
