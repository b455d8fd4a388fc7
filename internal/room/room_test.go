package room

import (
	"math/rand/v2"
	"net"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kybird/vsurv/internal/dispatch"
	"github.com/kybird/vsurv/internal/eventbus"
	"github.com/kybird/vsurv/internal/modifier"
	"github.com/kybird/vsurv/internal/object"
	"github.com/kybird/vsurv/internal/packet"
	"github.com/kybird/vsurv/internal/session"
	"github.com/kybird/vsurv/internal/timer"
	"github.com/kybird/vsurv/internal/wave"
)

func newTestRoom(t *testing.T, waves []wave.WaveDef) (*Room, *session.Registry) {
	t.Helper()

	d := dispatch.New(256, 128, zerolog.Nop())
	d.Run()
	t.Cleanup(d.Stop)

	strand := dispatch.NewStrand(d)
	wheel := timer.New(d)
	sessions := session.NewRegistry()
	pool := packet.NewPool(64)
	bus := eventbus.New()

	r := New(1, "test room", strand, wheel, sessions, pool, nil, bus, zerolog.Nop(), true, waves, rand.New(rand.NewPCG(1, 2)), []int32{1, 2, 3})
	return r, sessions
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

func defaultStats() map[modifier.StatType]float64 {
	return map[modifier.StatType]float64{
		modifier.Speed: 100,
		modifier.MaxHP: 100,
	}
}

func TestEnterAddsPlayerAndObject(t *testing.T) {
	r, sessions := newTestRoom(t, nil)
	s := newTestSession(t, sessions)

	p := r.Enter(s.ID, 42, defaultStats())
	r.Stop() // cancel the background tick loop Enter started, for deterministic tests

	if r.PlayerCount() != 1 {
		t.Fatalf("PlayerCount() = %d, want 1", r.PlayerCount())
	}
	if p.LocalID == 0 {
		t.Fatal("LocalID was never allocated")
	}
	obj, ok := r.objects.Get(p.ObjectID)
	if !ok {
		t.Fatal("player object missing from ObjectManager")
	}
	if obj.HP != 100 || obj.MaxHP != 100 {
		t.Fatalf("obj HP/MaxHP = %v/%v, want 100/100", obj.HP, obj.MaxHP)
	}
}

func TestLeaveRemovesPlayerAndResetsWhenEmpty(t *testing.T) {
	r, sessions := newTestRoom(t, nil)
	s := newTestSession(t, sessions)

	r.Enter(s.ID, 42, defaultStats())
	r.Stop() // cancel the background tick loop Enter started, for deterministic tests
	r.Leave(s.ID)

	if r.PlayerCount() != 0 {
		t.Fatalf("PlayerCount() = %d, want 0 after Leave", r.PlayerCount())
	}
	if r.gameStarted {
		t.Fatal("room should have reset (gameStarted=false) once the last player left")
	}
	if r.objects.Count() != 0 {
		t.Fatalf("objects.Count() = %d, want 0 after Reset", r.objects.Count())
	}
}

func TestLeaveReusesLocalIDAfterRelease(t *testing.T) {
	r, sessions := newTestRoom(t, nil)
	s1 := newTestSession(t, sessions)
	s2 := newTestSession(t, sessions)

	p1 := r.Enter(s1.ID, 1, defaultStats())
	r.Stop() // cancel the background tick loop Enter started, for deterministic tests
	r.Leave(s1.ID) // room resets, localIDs free list now has p1.LocalID
	p2 := r.Enter(s2.ID, 2, defaultStats())
	r.Stop()

	if p2.LocalID != p1.LocalID {
		t.Fatalf("expected the released local id %d to be reused, got %d", p1.LocalID, p2.LocalID)
	}
}

func TestHandleMoveScalesVelocityBySpeedStat(t *testing.T) {
	r, sessions := newTestRoom(t, nil)
	s := newTestSession(t, sessions)
	p := r.Enter(s.ID, 1, defaultStats())
	r.Stop()

	r.HandleMove(s.ID, 1, 0)

	obj, _ := r.objects.Get(p.ObjectID)
	if obj.VX != 100 || obj.VY != 0 {
		t.Fatalf("VX/VY = %v/%v, want 100/0 (unit vector * speed 100)", obj.VX, obj.VY)
	}
}

func TestTickIntegratesPosition(t *testing.T) {
	r, sessions := newTestRoom(t, nil)
	s := newTestSession(t, sessions)
	p := r.Enter(s.ID, 1, defaultStats())
	r.Stop()

	r.HandleMove(s.ID, 1, 0)
	r.tick()

	obj, _ := r.objects.Get(p.ObjectID)
	wantX := 100 * TickDT
	if obj.X < wantX-0.001 || obj.X > wantX+0.001 {
		t.Fatalf("X = %v, want ~%v after one tick", obj.X, wantX)
	}
}

func TestApplyDamageDownsPlayerAtZeroHP(t *testing.T) {
	r, sessions := newTestRoom(t, nil)
	s := newTestSession(t, sessions)
	p := r.Enter(s.ID, 1, defaultStats())
	r.Stop()

	r.ApplyDamage(p.ObjectID, 150, 0)

	obj, _ := r.objects.Get(p.ObjectID)
	if obj.HP != 0 {
		t.Fatalf("HP = %v, want clamped to 0", obj.HP)
	}
	if !p.Downed {
		t.Fatal("player should be marked Downed once HP reaches 0")
	}
}

func TestApplyDamageKillAttributesExpToAttacker(t *testing.T) {
	r, sessions := newTestRoom(t, nil)
	s := newTestSession(t, sessions)
	p := r.Enter(s.ID, 1, defaultStats())
	r.Stop()

	monster := &object.Object{ID: 999, Type: object.TypeMonster, HP: 10, MaxHP: 10, State: object.Alive}
	r.objects.AddObject(monster)
	r.grid.Add(monster.ID, 0, 0)

	r.ApplyDamage(monster.ID, 10, s.ID)
	dead := r.collectDead()
	r.despawnDead(dead)

	if _, ok := r.objects.Get(p.ObjectID); !ok {
		t.Fatal("player object should still be present")
	}
	if p.Exp != monsterExpValue {
		t.Fatalf("attacker Exp = %d, want %d after killing blow", p.Exp, monsterExpValue)
	}
}

func TestGetNearestPlayerFindsClosest(t *testing.T) {
	r, sessions := newTestRoom(t, nil)
	s1 := newTestSession(t, sessions)
	s2 := newTestSession(t, sessions)
	p1 := r.Enter(s1.ID, 1, defaultStats())
	p2 := r.Enter(s2.ID, 2, defaultStats())
	r.Stop()

	obj1, _ := r.objects.Get(p1.ObjectID)
	obj1.X, obj1.Y = 100, 0
	obj2, _ := r.objects.Get(p2.ObjectID)
	obj2.X, obj2.Y = 10, 0
	r.grid.Update(obj1.ID, obj1.X, obj1.Y)
	r.grid.Update(obj2.ID, obj2.X, obj2.Y)

	nearest, ok := r.GetNearestPlayer(0, 0)
	if !ok {
		t.Fatal("expected a nearest player")
	}
	if nearest.Player.SessionID != s2.ID {
		t.Fatalf("nearest session = %d, want %d (closer player)", nearest.Player.SessionID, s2.ID)
	}
}

func TestDebugSnapshotIncludesJoinedPlayers(t *testing.T) {
	r, sessions := newTestRoom(t, nil)
	s := newTestSession(t, sessions)
	r.Enter(s.ID, 1, defaultStats())
	r.Stop()

	snap := r.DebugSnapshot()
	if snap == "{}" {
		t.Fatal("DebugSnapshot returned empty object despite a joined player")
	}
}

func TestSpawnMonstersFromWaveAreTrackedAsMonsters(t *testing.T) {
	r, sessions := newTestRoom(t, []wave.WaveDef{
		{StartTime: 0, MonsterTypeID: 7, TotalCount: 1, Interval: 1},
	})
	s := newTestSession(t, sessions)
	r.Enter(s.ID, 1, defaultStats())
	r.Stop()
	r.wave.Start()

	r.tick()

	found := false
	for _, obj := range r.objects.AllObjects() {
		if obj.Type == object.TypeMonster {
			found = true
		}
	}
	if !found {
		t.Fatal("expected tick to spawn a monster from the wave definition")
	}
}
