package packet

import "sync"

// sizeClasses are the buffer capacities the pool recycles. A request larger
// than the biggest class is rejected by Acquire (it would exceed
// MaxPacketSize anyway).
var sizeClasses = [...]int{256, 1024, 4096, MaxPacketSize}

// Pool is a multi-producer/multi-consumer free list of packet buffers,
// bucketed by size class. It never shrinks: buffers released back to the
// pool stay available for the next Acquire of the same size class.
type Pool struct {
	mu       sync.Mutex
	free     [len(sizeClasses)][]*Packet
	total    int
	maxTotal int
}

// NewPool creates a Pool capped at maxTotal live+pooled buffers across all
// size classes. A maxTotal of 0 means unbounded.
func NewPool(maxTotal int) *Pool {
	return &Pool{maxTotal: maxTotal}
}

func classFor(sizeHint int) int {
	for i, c := range sizeClasses {
		if sizeHint <= c {
			return i
		}
	}
	return len(sizeClasses) - 1
}

// Acquire returns a Packet with capacity >= sizeHint and RefCount 1.
// Returns false if the pool is at its hard cap and has no free buffer to
// reuse for this size class (a Resource-kind condition for the caller), or
// if sizeHint exceeds MaxPacketSize.
func (p *Pool) Acquire(sizeHint int) (*Packet, bool) {
	if sizeHint > MaxPacketSize {
		return nil, false
	}
	class := classFor(sizeHint)

	p.mu.Lock()
	if len(p.free[class]) > 0 {
		n := len(p.free[class]) - 1
		pkt := p.free[class][n]
		p.free[class][n] = nil
		p.free[class] = p.free[class][:n]
		p.mu.Unlock()
		pkt.UsedSize = 0
		pkt.RefCount = 1
		return pkt, true
	}
	if p.maxTotal > 0 && p.total >= p.maxTotal {
		p.mu.Unlock()
		return nil, false
	}
	p.total++
	p.mu.Unlock()

	pkt := &Packet{
		buf:   make([]byte, sizeClasses[class]),
		pool:  p,
		class: class,
	}
	pkt.RefCount = 1
	return pkt, true
}

// put returns a fully-released buffer to its size class's free list.
// Called only from Packet.Release on the 1->0 transition.
func (p *Pool) put(pkt *Packet) {
	pkt.UsedSize = 0
	p.mu.Lock()
	p.free[pkt.class] = append(p.free[pkt.class], pkt)
	p.mu.Unlock()
}

// Stats reports the pool's current live+pooled buffer count, for metrics.
func (p *Pool) Stats() (total int, pooled int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, fl := range p.free {
		pooled += len(fl)
	}
	return p.total, pooled
}
