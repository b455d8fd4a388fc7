package session

import (
	"net"
	"testing"

	"github.com/kybird/vsurv/internal/packet"
)

func newTestSession(t *testing.T, id uint64) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	s := NewSession(id, server, 4096, 10, 10, 4)
	return s, client
}

func TestRegistryRegisterAndWithSession(t *testing.T) {
	reg := NewRegistry()
	s, _ := newTestSession(t, reg.NextID())
	reg.Register(s)

	seen := false
	ok := reg.WithSession(s.ID, func(got *Session) {
		seen = true
		if got != s {
			t.Fatal("WithSession handed back a different session")
		}
	})
	if !ok || !seen {
		t.Fatal("WithSession should find the registered session")
	}
}

func TestWithSessionMissingReturnsFalse(t *testing.T) {
	reg := NewRegistry()
	if reg.WithSession(999, func(*Session) { t.Fatal("should not be called") }) {
		t.Fatal("expected false for unregistered session id")
	}
}

func TestUnregisterRemovesFromLookup(t *testing.T) {
	reg := NewRegistry()
	s, _ := newTestSession(t, reg.NextID())
	reg.Register(s)
	reg.Unregister(s.ID)

	if reg.WithSession(s.ID, func(*Session) {}) {
		t.Fatal("session should no longer be found after Unregister")
	}
}

func TestSessionIDsAreFullWidthNeverTruncated(t *testing.T) {
	reg := NewRegistry()
	// Force an id that would be corrupted by a cast to int32, as the
	// original implementation's game_id = (int32)session_id did.
	const big = uint64(1) << 40
	reg.mu.Lock()
	reg.nextID = big - 1
	reg.mu.Unlock()

	id := reg.NextID()
	if id != big {
		t.Fatalf("NextID() = %d, want %d", id, big)
	}
	if id > uint64(^uint32(0)) && int32(id) == int32(id) && uint64(uint32(id)) == id {
		t.Fatal("id unexpectedly fits in 32 bits, test is not exercising the truncation risk")
	}
}

func TestSendDropsOnClosedSession(t *testing.T) {
	s, _ := newTestSession(t, 1)
	s.SetState(Closed)

	pool := packet.NewPool(0)
	pkt, _ := pool.Acquire(64)
	defer pkt.Release()

	if s.Send(pkt) {
		t.Fatal("Send should drop packets for a Closed session")
	}
}

func TestSendAddsRefAndQueues(t *testing.T) {
	s, _ := newTestSession(t, 1)
	s.SetState(Connected)

	pool := packet.NewPool(0)
	pkt, _ := pool.Acquire(64)

	if !s.Send(pkt) {
		t.Fatal("Send on a Connected session with queue room should succeed")
	}
	if pkt.RefCount != 2 {
		t.Fatalf("RefCount after Send = %d, want 2 (original ref + queue ref)", pkt.RefCount)
	}
	<-s.SendQueue
	pkt.Release()
	pkt.Release()
}
