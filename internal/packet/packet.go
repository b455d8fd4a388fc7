// Package packet implements the reference-counted, pool-allocated packet
// buffers that carry framed messages between the network reactor and the
// logic dispatcher (spec component A).
package packet

import "sync/atomic"

// Packet is a reference-counted byte buffer owned by a Pool.
//
// RefCount is an atomic counter, not a plain uint32: a broadcast packet is
// handed to many sessions' send queues from one goroutine, but each
// session's own writePump then calls Release concurrently with every other
// session's writePump once it has finished writing the shared buffer. That
// is a receiver-vs-receiver race on the same *Packet, not just a
// sender-to-single-receiver handoff, so the 1->0 transition (and the
// decision to return the buffer to the pool) has to be decided atomically.
type Packet struct {
	Header   Header
	buf      []byte // full capacity backing array
	UsedSize int    // bytes currently valid in buf (header + body)
	RefCount int32

	pool  *Pool
	class int // size class index this buffer belongs to
}

// Bytes returns the valid, used portion of the packet's buffer.
func (p *Packet) Bytes() []byte { return p.buf[:p.UsedSize] }

// Body returns the payload following the header.
func (p *Packet) Body() []byte {
	if p.UsedSize <= HeaderSize {
		return nil
	}
	return p.buf[HeaderSize:p.UsedSize]
}

// Cap returns the packet's total backing capacity.
func (p *Packet) Cap() int { return len(p.buf) }

// AddRef increments the reference count. Called by the goroutine that is
// handing the packet to one more owner (e.g. one more session send queue).
func (p *Packet) AddRef() {
	atomic.AddInt32(&p.RefCount, 1)
}

// Release decrements the reference count and, on the 1->0 transition,
// returns the buffer to its origin pool. Returns true if this call freed
// the packet.
func (p *Packet) Release() bool {
	n := atomic.AddInt32(&p.RefCount, -1)
	if n < 0 {
		// Already at zero; undo the decrement so a buggy double-Release
		// doesn't leave RefCount permanently negative.
		atomic.AddInt32(&p.RefCount, 1)
		return false
	}
	if n == 0 {
		p.pool.put(p)
		return true
	}
	return false
}
