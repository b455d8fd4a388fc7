package roommanager

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kybird/vsurv/internal/dispatch"
	"github.com/kybird/vsurv/internal/eventbus"
	"github.com/kybird/vsurv/internal/handler"
	"github.com/kybird/vsurv/internal/packet"
	"github.com/kybird/vsurv/internal/protocol"
	"github.com/kybird/vsurv/internal/session"
	"github.com/kybird/vsurv/internal/timer"
)

func newTestManager(t *testing.T) (*Manager, *session.Registry) {
	t.Helper()

	d := dispatch.New(256, 128, zerolog.Nop())
	d.Run()
	t.Cleanup(d.Stop)

	wheel := timer.New(d)
	sessions := session.NewRegistry()
	pool := packet.NewPool(64)
	bus := eventbus.New()

	mgr := New(d, wheel, sessions, pool, nil, bus, nil, zerolog.Nop(), true, nil, DefaultSkillCatalog())
	return mgr, sessions
}

func newTestSession(t *testing.T, sessions *session.Registry) *session.Session {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close() })

	id := sessions.NextID()
	s := session.NewSession(id, serverConn, 4096, 100, 100, 16)
	s.SetState(session.Connected)
	sessions.Register(s)
	t.Cleanup(func() { sessions.Unregister(id) })
	return s
}

// waitForStrand blocks until every task submitted to r's strand ahead of
// this call has run, by submitting a sentinel and waiting for it.
func waitForStrand(t *testing.T, r interface{ Strand() *dispatch.Strand }) {
	t.Helper()
	done := make(chan struct{})
	r.Strand().Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for strand to drain")
	}
}

func recvPacket(t *testing.T, s *session.Session) (uint16, []byte) {
	t.Helper()
	select {
	case pkt := <-s.SendQueue:
		h := packet.DecodeHeader(pkt.Bytes())
		body := append([]byte(nil), pkt.Body()...)
		pkt.Release()
		return h.ID, body
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reply packet")
		return 0, nil
	}
}

func TestDefaultRoomExistsOnConstruction(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, ok := mgr.GetRoom(1); !ok {
		t.Fatal("expected room 1 to exist after New")
	}
}

func TestCreateRoomHandlerReplies(t *testing.T) {
	mgr, sessions := newTestManager(t)
	s := newTestSession(t, sessions)

	req := protocol.CreateRoomRequest{Name: "party"}
	buf := make([]byte, req.ByteSize())
	req.SerializeInto(buf)

	if err := mgr.handleCreateRoom(s, buf); err != nil {
		t.Fatalf("handleCreateRoom: %v", err)
	}

	id, body := recvPacket(t, s)
	if id != protocol.SCreateRoom {
		t.Fatalf("packet id = %d, want SCreateRoom", id)
	}
	res := protocol.DecodeCreateRoomResponse(body)
	if !res.Success {
		t.Fatal("CreateRoomResponse.Success = false")
	}
	if _, ok := mgr.GetRoom(res.RoomID); !ok {
		t.Fatalf("room %d not found after creation", res.RoomID)
	}
}

func TestJoinRoomHandlerEntersAndReplies(t *testing.T) {
	mgr, sessions := newTestManager(t)
	s := newTestSession(t, sessions)

	req := protocol.JoinRoomRequest{RoomID: 1}
	buf := make([]byte, req.ByteSize())
	req.SerializeInto(buf)

	if err := mgr.handleJoinRoom(s, buf); err != nil {
		t.Fatalf("handleJoinRoom: %v", err)
	}

	id, body := recvPacket(t, s)
	if id != protocol.SJoinRoom {
		t.Fatalf("packet id = %d, want SJoinRoom", id)
	}
	res := protocol.DecodeJoinRoomResponse(body)
	if !res.Success {
		t.Fatal("JoinRoomResponse.Success = false")
	}

	r, ok := mgr.RoomOf(s.ID)
	if !ok {
		t.Fatal("session not registered to any room after join")
	}
	if r.PlayerCount() != 1 {
		t.Fatalf("PlayerCount = %d, want 1", r.PlayerCount())
	}
	r.Stop()
}

func TestJoinRoomHandlerRejectsUnknownRoom(t *testing.T) {
	mgr, sessions := newTestManager(t)
	s := newTestSession(t, sessions)

	req := protocol.JoinRoomRequest{RoomID: 999}
	buf := make([]byte, req.ByteSize())
	req.SerializeInto(buf)

	if err := mgr.handleJoinRoom(s, buf); err != nil {
		t.Fatalf("handleJoinRoom: %v", err)
	}

	id, body := recvPacket(t, s)
	if id != protocol.SJoinRoom {
		t.Fatalf("packet id = %d, want SJoinRoom", id)
	}
	if protocol.DecodeJoinRoomResponse(body).Success {
		t.Fatal("join of a nonexistent room should fail")
	}
}

func TestMoveRoutesThroughRegisteredRoom(t *testing.T) {
	mgr, sessions := newTestManager(t)
	s := newTestSession(t, sessions)

	joinReq := protocol.JoinRoomRequest{RoomID: 1}
	buf := make([]byte, joinReq.ByteSize())
	joinReq.SerializeInto(buf)
	mgr.handleJoinRoom(s, buf)
	recvPacket(t, s) // drain S_JOIN_ROOM

	r, _ := mgr.RoomOf(s.ID)
	r.Stop() // cancel the tick loop Enter started, for deterministic tests

	moveReq := protocol.MoveRequest{VX: 1, VY: 0}
	moveBuf := make([]byte, moveReq.ByteSize())
	moveReq.SerializeInto(moveBuf)
	if err := mgr.handleMove(s, moveBuf); err != nil {
		t.Fatalf("handleMove: %v", err)
	}
	waitForStrand(t, r)
}

func TestRegisterHandlersWiresEveryRoomPacketID(t *testing.T) {
	mgr, _ := newTestManager(t)
	reg := handler.NewRegistry(zerolog.Nop())
	mgr.RegisterHandlers(reg)

	ids := []uint16{
		protocol.CCreateRoom, protocol.CJoinRoom, protocol.CLeaveRoom,
		protocol.CChat, protocol.CMove, protocol.CUseSkill, protocol.CSelectLevelUp,
	}
	for _, id := range ids {
		id := id
		func() {
			registeredAlready := false
			func() {
				defer func() {
					if recover() != nil {
						registeredAlready = true
					}
				}()
				reg.Register(id, func(*session.Session, []byte) error { return nil })
			}()
			if !registeredAlready {
				t.Fatalf("packet id %d was never registered by RegisterHandlers", id)
			}
		}()
	}
}
