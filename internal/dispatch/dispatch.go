// Package dispatch implements the single-threaded logic executor (spec
// component E): a bounded MPSC work queue drained by one goroutine, plus a
// Strand abstraction giving ordered, non-interleaved per-entity execution.
//
// Grounded on the teacher's worker_pool.go (Task/Submit/panic-recovered
// worker loop), adapted from an N-worker pool to a single consumer because
// the room/session model requires exactly one goroutine owning all game
// state.
package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Task is a unit of work run on the logic goroutine.
type Task func()

// Dispatcher drains a single bounded channel of Tasks on one goroutine.
type Dispatcher struct {
	queue      chan Task
	softCap    int
	dropped    int64
	overloaded int32
	logger     zerolog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a Dispatcher with the given channel capacity and soft
// overload threshold (softCap <= capacity).
func New(capacity, softCap int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:   make(chan Task, capacity),
		softCap: softCap,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Run starts the single consumer goroutine; it returns once Stop is called
// and the queue has drained.
func (d *Dispatcher) Run() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case task, ok := <-d.queue:
				if !ok {
					return
				}
				d.runTask(task)
			case <-d.stopCh:
				// Drain remaining queued tasks before exiting so posted
				// cleanup work still runs.
				for {
					select {
					case task := <-d.queue:
						d.runTask(task)
					default:
						return
					}
				}
			}
		}
	}()
}

func (d *Dispatcher) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("dispatcher task panicked, recovered")
		}
	}()
	task()
}

// Post enqueues a task to run on the logic goroutine. Non-blocking: if the
// queue is full the task is dropped and counted (Overload policy, §7).
func (d *Dispatcher) Post(task Task) bool {
	select {
	case d.queue <- task:
		d.updateOverloaded()
		return true
	default:
		atomic.AddInt64(&d.dropped, 1)
		return false
	}
}

func (d *Dispatcher) updateOverloaded() {
	depth := len(d.queue)
	if depth >= d.softCap {
		atomic.StoreInt32(&d.overloaded, 1)
	} else {
		atomic.StoreInt32(&d.overloaded, 0)
	}
}

// Overloaded reports whether the queue is currently past its soft cap.
func (d *Dispatcher) Overloaded() bool { return atomic.LoadInt32(&d.overloaded) == 1 }

// QueueDepth reports the current number of queued tasks.
func (d *Dispatcher) QueueDepth() int { return len(d.queue) }

// Dropped reports the total number of tasks dropped due to a full queue.
func (d *Dispatcher) Dropped() int64 { return atomic.LoadInt64(&d.dropped) }

// Stop signals the consumer goroutine to drain and exit, then waits for it.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}
