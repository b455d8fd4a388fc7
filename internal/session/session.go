// Package session implements Session lifecycle and the SessionRegistry
// (spec component H), including the Open Question resolution: session ids
// stay full-width uint64s issued by an atomic counter, never truncated.
// Any wire field narrower than 64 bits uses a separately allocated
// RoomLocalID instead (see internal/room).
package session

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/kybird/vsurv/internal/packet"
	"github.com/kybird/vsurv/internal/ratelimit"
	"github.com/kybird/vsurv/internal/recvbuf"
)

// State is a Session's lifecycle stage.
type State int32

const (
	Connecting State = iota
	Connected
	Closing
	Closed
)

// Session represents one client connection and its per-connection state.
// Session holds no back-pointer to any game-layer Player: per spec design
// note §9, Player->Session is the only owning direction; Session is looked
// up by id through the SessionRegistry.
type Session struct {
	ID uint64

	Conn        net.Conn
	RecvBuf     *recvbuf.RecvBuffer
	RateLimiter *ratelimit.TokenBucket
	SendQueue   chan *packet.Packet

	state    int32 // State, accessed atomically
	refCount int32 // accessed atomically; registry-managed liveness
}

// NewSession constructs a Session in the Connecting state.
func NewSession(id uint64, conn net.Conn, recvBufSize int, rlCapacity, rlRefill float64, sendQueueDepth int) *Session {
	return &Session{
		ID:          id,
		Conn:        conn,
		RecvBuf:     recvbuf.New(recvBufSize),
		RateLimiter: ratelimit.New(rlCapacity, rlRefill),
		SendQueue:   make(chan *packet.Packet, sendQueueDepth),
		state:       int32(Connecting),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(atomic.LoadInt32(&s.state)) }

// SetState transitions the session's lifecycle state.
func (s *Session) SetState(st State) { atomic.StoreInt32(&s.state, int32(st)) }

// addRef increments the reference count; called by WithSession.
func (s *Session) addRef() { atomic.AddInt32(&s.refCount, 1) }

// release decrements the reference count. Returns the count after release.
func (s *Session) release() int32 { return atomic.AddInt32(&s.refCount, -1) }

// RefCount reports the current reference count.
func (s *Session) RefCount() int32 { return atomic.LoadInt32(&s.refCount) }

// Send enqueues a packet for the write loop, adding a reference. Drops and
// releases the reference if the session is Closed or the queue is full.
func (s *Session) Send(p *packet.Packet) bool {
	if s.State() == Closed {
		return false
	}
	p.AddRef()
	select {
	case s.SendQueue <- p:
		return true
	default:
		p.Release()
		return false
	}
}

// Registry is the session_id -> *Session table (spec component H).
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextID   uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint64]*Session)}
}

// NextID hands out a fresh, never-reused, full-width session id.
func (r *Registry) NextID() uint64 {
	return atomic.AddUint64(&r.nextID, 1)
}

// Register adds a session to the table.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Unregister removes a session from the table. Already-acquired references
// (held by in-flight WithSession calls) continue to be valid until released;
// the Session object itself is only eligible for GC once unreferenced.
func (r *Registry) Unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// WithSession is the only way handlers obtain a Session: it looks the
// session up, increments its ref count for the duration of fn, and
// releases it afterward, guaranteeing the Session stays alive across fn.
// Returns false if no such session is registered.
func (r *Registry) WithSession(id uint64, fn func(*Session)) bool {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	s.addRef()
	defer s.release()
	fn(s)
	return true
}

// Count reports the number of currently registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
