// Package room implements the per-match simulation loop and player roster
// (spec component L), grounded on original_source's Game/Room.h/.cpp: a
// room owns its ObjectManager, SpatialGrid, and WaveManager, ticks at a
// fixed 50ms interval on its own strand, and broadcasts batched state to
// every joined session.
package room

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kybird/vsurv/internal/dispatch"
	"github.com/kybird/vsurv/internal/eventbus"
	"github.com/kybird/vsurv/internal/metrics"
	"github.com/kybird/vsurv/internal/modifier"
	"github.com/kybird/vsurv/internal/object"
	"github.com/kybird/vsurv/internal/packet"
	"github.com/kybird/vsurv/internal/protocol"
	"github.com/kybird/vsurv/internal/session"
	"github.com/kybird/vsurv/internal/spatial"
	"github.com/kybird/vsurv/internal/timer"
	"github.com/kybird/vsurv/internal/wave"
)

// TickInterval is the room simulation's fixed step, 20Hz per spec §4.L.
const TickInterval = 50 * time.Millisecond

// TickDT is TickInterval expressed in seconds, the fixed dt every Update
// integrates with.
const TickDT = 0.05

const gridCellSize = 2000.0 // matches original_source's Phase-1 full-broadcast cell size

// mapHalfExtent bounds the play area; objects are clamped to [-mapHalfExtent, mapHalfExtent].
const mapHalfExtent = 2000.0

// monsterExpValue is the exp a killing blow grants, a flat value since
// original_source never assigns per-monster-type exp values (only
// DebugAddExpToAll exists, with a caller-supplied amount).
const monsterExpValue = 10

// autoAttackActiveTime is how long a player's auto-attack emitter spends
// in its Active state before damage applies and it returns to Cooling,
// standing in for FieldStateEmitter's never-implemented ACTIVE phase.
const autoAttackActiveTime = 0.1

// Player is a room's view of a joined session: its simulation object plus
// progression state that UserDB persists across rooms.
type Player struct {
	SessionID uint64
	LocalID   uint32
	UserID    int64
	ObjectID  int32

	Exp    int32
	Level  int
	Downed bool

	Stats   *modifier.Container
	Emitter *wave.Emitter // auto-attack cycle driven by Stats' Cooldown/Area/Attack
}

// GameOverEvent is published on eventbus when a room ends in a loss.
type GameOverEvent struct {
	RoomID uint64
	Reason string
}

// GameWinEvent is published on eventbus when every wave is cleared.
type GameWinEvent struct {
	RoomID uint64
}

// localIDAllocator hands out small, reusable ids for wire fields narrower
// than a session's full uint64 id (spec §4.H Open Question resolution).
type localIDAllocator struct {
	next uint32
	free []uint32
}

func (a *localIDAllocator) allocate() uint32 {
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return id
	}
	a.next++
	return a.next
}

func (a *localIDAllocator) release(id uint32) {
	a.free = append(a.free, id)
}

// Room owns all in-simulation state for one match; every mutation below is
// intended to run only from a task submitted to strand (Enter/Leave/the
// packet handlers/Update itself) — Room does no locking of its own for
// game state, matching the "all mutation is strand-serialized" invariant.
type Room struct {
	ID    uint64
	Title string

	playersMu sync.RWMutex // guards players/localIDs for cross-strand reads (PlayerCount, DebugSnapshot)
	players   map[uint64]*Player
	localIDs  localIDAllocator

	objects *object.Manager
	grid    *spatial.Grid
	wave    *wave.Manager

	lastAttacker map[int32]uint64 // objectID -> sessionID of the last session to damage it
	rng          *rand.Rand
	skillCatalog []int32 // level-up option pool offered on level-up

	tickCount uint32
	simTime   float64

	strand      *dispatch.Strand
	wheel       *timer.Wheel
	timerHandle timer.Handle

	sessions *session.Registry
	pool     *packet.Pool
	metrics  *metrics.Registry
	bus      *eventbus.Bus
	logger   zerolog.Logger
	debug    bool // config.Environment != "production"; governs object.Manager's duplicate-id policy

	nextObjectID int32
	gameStarted  bool
	gameOver     bool
}

// New creates a Room with its own strand. strand must be dedicated to this
// Room (one strand per Room, sharing the server's single Dispatcher).
func New(
	id uint64, title string,
	strand *dispatch.Strand, wheel *timer.Wheel,
	sessions *session.Registry, pool *packet.Pool, m *metrics.Registry, bus *eventbus.Bus,
	logger zerolog.Logger, debug bool,
	waves []wave.WaveDef, rng *rand.Rand, skillCatalog []int32,
) *Room {
	roomLogger := logger.With().Uint64("room_id", id).Logger()
	return &Room{
		ID:           id,
		Title:        title,
		players:      make(map[uint64]*Player),
		objects:      object.NewManagerForEnvironment(debug, roomLogger),
		grid:         spatial.New(gridCellSize),
		wave:         wave.NewManager(waves, rng),
		lastAttacker: make(map[int32]uint64),
		rng:          rng,
		skillCatalog: skillCatalog,
		strand:       strand,
		wheel:        wheel,
		sessions:     sessions,
		pool:         pool,
		metrics:      m,
		bus:          bus,
		logger:       roomLogger,
		debug:        debug,
	}
}

// Strand returns the dispatch.Strand every mutating Room method must run
// on. Callers outside the room package (roommanager's packet handlers)
// use this to submit work instead of calling Room methods directly.
func (r *Room) Strand() *dispatch.Strand { return r.strand }

// PlayerCount reports the number of joined players. Safe to call from any
// goroutine.
func (r *Room) PlayerCount() int {
	r.playersMu.RLock()
	defer r.playersMu.RUnlock()
	return len(r.players)
}

// Enter admits sessionID into the room: allocates a RoomLocalID and a
// player Object, seeds its stats, inserts it into the grid, and broadcasts
// a spawn notice to everyone already in the room (including the joiner).
// Starts the game on the first player in. Must run on r.strand.
func (r *Room) Enter(sessionID uint64, userID int64, base map[modifier.StatType]float64) *Player {
	objID := r.allocateObjectID()
	stats := modifier.NewContainer(base)

	r.playersMu.Lock()
	localID := r.localIDs.allocate()
	p := &Player{
		SessionID: sessionID,
		LocalID:   localID,
		UserID:    userID,
		ObjectID:  objID,
		Level:     1,
		Stats:     stats,
		Emitter:   wave.NewEmitter(stats.GetStat(modifier.Cooldown), autoAttackActiveTime),
	}
	r.players[sessionID] = p
	r.playersMu.Unlock()

	obj := &object.Object{
		ID:             objID,
		Type:           object.TypePlayer,
		HP:             stats.GetStat(modifier.MaxHP),
		MaxHP:          stats.GetStat(modifier.MaxHP),
		State:          object.Alive,
		OwnerSessionID: sessionID,
		HasOwner:       true,
	}
	r.objects.AddObject(obj)
	r.grid.Add(obj.ID, obj.X, obj.Y)

	r.broadcastSpawn([]*object.Object{obj})

	if !r.gameStarted {
		r.Start()
	}

	r.logger.Info().Uint64("session_id", sessionID).Uint32("local_id", localID).Msg("player entered room")
	return p
}

// Leave removes sessionID's player and its Object, broadcasting a despawn
// and a leave notice. Resets the room once the last player is gone. Must
// run on r.strand.
func (r *Room) Leave(sessionID uint64) {
	r.playersMu.Lock()
	p, ok := r.players[sessionID]
	if ok {
		delete(r.players, sessionID)
		r.localIDs.release(p.LocalID)
	}
	remaining := len(r.players)
	r.playersMu.Unlock()

	if !ok {
		return
	}

	r.objects.RemoveObject(p.ObjectID)
	r.grid.Remove(p.ObjectID)
	r.broadcastDespawn([]int32{p.ObjectID})
	r.broadcastPacket(protocol.SLeaveRoom, protocol.LeaveRoomNotice{RoomLocalID: p.LocalID})

	r.logger.Info().Uint64("session_id", sessionID).Msg("player left room")

	if remaining == 0 {
		r.Reset()
	}
}

// Start begins wave progression and schedules the tick timer. A no-op if
// already started.
func (r *Room) Start() {
	if r.gameStarted {
		return
	}
	r.gameStarted = true
	r.gameOver = false
	r.wave.Start()
	r.timerHandle = r.wheel.SetInterval(TickInterval, func() {
		r.strand.Submit(r.tick)
	})
	if r.metrics != nil {
		r.metrics.RoomsActive.Inc()
	}
}

// Stop cancels the tick timer without clearing simulation state.
func (r *Room) Stop() {
	if !r.gameStarted {
		return
	}
	r.timerHandle.Cancel()
	r.gameStarted = false
	if r.metrics != nil {
		r.metrics.RoomsActive.Dec()
	}
}

// Reset stops the tick loop and clears all simulation state, leaving the
// Room ready to be entered again (matching the original's "last player
// leaves -> cancel timer and Reset").
func (r *Room) Reset() {
	r.Stop()
	r.objects = object.NewManagerForEnvironment(r.debug, r.logger)
	r.grid = spatial.New(gridCellSize)
	r.wave.Start()
	r.tickCount = 0
	r.simTime = 0
	r.gameOver = false
}

func (r *Room) allocateObjectID() int32 {
	r.nextObjectID++
	return r.nextObjectID
}

// tick runs one fixed-step simulation frame (spec §4.L steps 1-7). Must
// only ever be invoked via r.strand.Submit.
func (r *Room) tick() {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RoomTickDuration.Observe(time.Since(start).Seconds())
		}
	}()

	dt := TickDT

	r.integrate(dt)
	spawns := r.wave.Update(dt)
	r.spawnMonsters(spawns)
	r.runAI(dt)
	r.runEmitters(dt)
	dead := r.collectDead()
	if len(dead) > 0 {
		r.despawnDead(dead)
	}
	r.broadcastMoves()

	r.tickCount++
	r.simTime += dt
	r.updatePlayerStats()

	if r.metrics != nil {
		r.metrics.ObjectsAlive.Set(float64(r.objects.Count()))
	}

	r.checkEndConditions()
}

// integrate advances every live Object's position by velocity*dt, clamps
// to map bounds, and keeps the grid's cell assignment current.
func (r *Room) integrate(dt float64) {
	for _, obj := range r.objects.AllObjects() {
		if obj.State != object.Alive {
			continue
		}
		obj.X += obj.VX * dt
		obj.Y += obj.VY * dt
		obj.X = clamp(obj.X, -mapHalfExtent, mapHalfExtent)
		obj.Y = clamp(obj.Y, -mapHalfExtent, mapHalfExtent)
		r.grid.Update(obj.ID, obj.X, obj.Y)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// runAI steers monsters toward the nearest player, matching
// GetNearestPlayer's role in the original's per-tick Update.
func (r *Room) runAI(dt float64) {
	const monsterSpeed = 40.0
	for _, obj := range r.objects.AllObjects() {
		if obj.Type != object.TypeMonster || obj.State != object.Alive {
			continue
		}
		target, ok := r.GetNearestPlayer(obj.X, obj.Y)
		if !ok {
			obj.VX, obj.VY = 0, 0
			continue
		}
		dx, dy := target.X-obj.X, target.Y-obj.Y
		dist := math.Hypot(dx, dy)
		if dist < 1e-6 {
			obj.VX, obj.VY = 0, 0
			continue
		}
		obj.VX = dx / dist * monsterSpeed
		obj.VY = dy / dist * monsterSpeed
	}
}

// runEmitters ticks every living player's auto-attack emitter and, on the
// tick it fires, queries the grid for every living monster within the
// player's Area stat and applies Attack damage to each, per spec §4.L
// step 4 ("emitters query the grid in range R, apply damage").
func (r *Room) runEmitters(dt float64) {
	r.playersMu.RLock()
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	r.playersMu.RUnlock()

	for _, p := range players {
		if p.Downed || p.Emitter == nil {
			continue
		}
		if !p.Emitter.Tick(dt) {
			continue
		}
		obj, ok := r.objects.Get(p.ObjectID)
		if !ok || obj.State != object.Alive {
			continue
		}
		radius := p.Stats.GetStat(modifier.Area)
		damage := p.Stats.GetStat(modifier.Attack)
		targets := r.grid.QueryRange(obj.X, obj.Y, radius, r.objectPos, nil)
		for _, targetID := range targets {
			target, ok := r.objects.Get(targetID)
			if !ok || target.Type != object.TypeMonster || target.State != object.Alive {
				continue
			}
			r.ApplyDamage(targetID, damage, p.SessionID)
		}
	}
}

// objectPos adapts ObjectManager.Get to the (float64, float64) position
// lookup spatial.Grid.QueryRange expects.
func (r *Room) objectPos(id int32) (float64, float64) {
	obj, ok := r.objects.Get(id)
	if !ok {
		return 0, 0
	}
	return obj.X, obj.Y
}

// updatePlayerStats expires time-limited modifiers on every player's
// Container, per spec §9 scenario 4. Must run once per tick on r.strand.
func (r *Room) updatePlayerStats() {
	r.playersMu.RLock()
	defer r.playersMu.RUnlock()
	for _, p := range r.players {
		p.Stats.Update(r.simTime)
	}
}

// NearestPlayer is the result of GetNearestPlayer: the player found plus
// its Object's current position.
type NearestPlayer struct {
	Player *Player
	X, Y   float64
}

// GetNearestPlayer returns the living, non-downed player closest to (x,y).
func (r *Room) GetNearestPlayer(x, y float64) (NearestPlayer, bool) {
	var best *Player
	var bestX, bestY float64
	bestDist := math.MaxFloat64

	r.playersMu.RLock()
	defer r.playersMu.RUnlock()
	for _, p := range r.players {
		if p.Downed {
			continue
		}
		obj, found := r.objects.Get(p.ObjectID)
		if !found || obj.State != object.Alive {
			continue
		}
		dx, dy := obj.X-x, obj.Y-y
		d := dx*dx + dy*dy
		if d < bestDist {
			bestDist = d
			best = p
			bestX, bestY = obj.X, obj.Y
		}
	}
	if best == nil {
		return NearestPlayer{}, false
	}
	return NearestPlayer{Player: best, X: bestX, Y: bestY}, true
}

func (r *Room) spawnMonsters(spawns []wave.SpawnRequest) {
	if len(spawns) == 0 {
		return
	}
	var objs []*object.Object
	for _, s := range spawns {
		id := r.allocateObjectID()
		obj := &object.Object{
			ID:    id,
			Type:  object.TypeMonster,
			X:     s.X,
			Y:     s.Y,
			HP:    20,
			MaxHP: 20,
			State: object.Alive,
		}
		r.objects.AddObject(obj)
		r.grid.Add(obj.ID, obj.X, obj.Y)
		objs = append(objs, obj)
	}
	r.broadcastSpawn(objs)
}

// collectDead marks objects with HP<=0 Dead and returns their ids (spec
// §4.L step 5: death is detected this tick, removed from the grid and
// ObjectManager, and despawned next).
func (r *Room) collectDead() []int32 {
	var dead []int32
	for _, obj := range r.objects.AllObjects() {
		if obj.State == object.Alive && obj.HP <= 0 {
			obj.State = object.Dead
			dead = append(dead, obj.ID)
		}
	}
	return dead
}

// despawnDead removes ids from simulation state and grants the killing
// attacker (if any) exp for each despawned monster, per the original's
// player-reward intent (DebugAddExpToAll) generalized to real kills.
func (r *Room) despawnDead(ids []int32) {
	for _, id := range ids {
		obj, ok := r.objects.Get(id)
		isMonster := ok && obj.Type == object.TypeMonster
		attacker := r.lastAttacker[id]
		delete(r.lastAttacker, id)

		r.objects.RemoveObject(id)
		r.grid.Remove(id)

		if isMonster && attacker != 0 {
			r.GrantExp(attacker, monsterExpValue, r.skillCatalog, r.rng)
		}
	}
	r.broadcastDespawn(ids)
}

// ApplyDamage applies amount to targetObjectID's HP, broadcasts a damage
// notice, and flags a downed player at hp<=0 instead of removing the
// object immediately (players are downed, not despawned, on death; monsters
// are despawned by the next tick's collectDead). attackerSessionID records
// who dealt the blow, for exp attribution on a monster kill; pass 0 for
// environmental damage. Must run on r.strand.
func (r *Room) ApplyDamage(targetObjectID int32, amount float64, attackerSessionID uint64) {
	obj, ok := r.objects.Get(targetObjectID)
	if !ok || obj.State != object.Alive {
		return
	}
	obj.HP -= amount
	if obj.HP < 0 {
		obj.HP = 0
	}
	if attackerSessionID != 0 {
		r.lastAttacker[targetObjectID] = attackerSessionID
	}

	r.broadcastPacket(protocol.SDamageEffect, protocol.DamageEffectNotice{
		TargetObjectID: targetObjectID,
		Amount:         float32(amount),
		RemainingHP:    float32(obj.HP),
	})

	if obj.Type == object.TypePlayer && obj.HP <= 0 {
		r.downPlayerByObjectID(targetObjectID)
	}
}

func (r *Room) downPlayerByObjectID(objID int32) {
	r.playersMu.Lock()
	var p *Player
	for _, candidate := range r.players {
		if candidate.ObjectID == objID {
			p = candidate
			break
		}
	}
	if p != nil {
		p.Downed = true
	}
	r.playersMu.Unlock()

	if p == nil {
		return
	}
	r.broadcastPacket(protocol.SPlayerDowned, protocol.PlayerDownedNotice{PlayerLocalID: p.LocalID})
}

// ApplyModifier adds m to sessionID's stat Container, the skill-unlock path
// (roommanager's C_SELECT_LEVEL_UP handler) being its only caller today.
// Must run on r.strand.
func (r *Room) ApplyModifier(sessionID uint64, m modifier.StatModifier) {
	r.playersMu.RLock()
	p, ok := r.players[sessionID]
	r.playersMu.RUnlock()
	if !ok {
		return
	}
	p.Stats.AddModifier(m)
}

// Chat relays text to every joined player with the sender's RoomLocalID
// stamped in, per protocol.ChatMessage's doc comment. Must run on r.strand.
func (r *Room) Chat(sessionID uint64, text string) {
	r.playersMu.RLock()
	p, ok := r.players[sessionID]
	r.playersMu.RUnlock()
	if !ok {
		return
	}
	r.broadcastPacket(protocol.SChat, protocol.ChatMessage{SenderLocalID: p.LocalID, Text: text})
}

// HandleMove updates sessionID's player Object velocity from a MoveRequest.
// Must run on r.strand.
func (r *Room) HandleMove(sessionID uint64, vx, vy float32) {
	r.playersMu.RLock()
	p, ok := r.players[sessionID]
	r.playersMu.RUnlock()
	if !ok || p.Downed {
		return
	}
	obj, found := r.objects.Get(p.ObjectID)
	if !found {
		return
	}
	speed := p.Stats.GetStat(modifier.Speed)
	obj.VX = float64(vx) * speed
	obj.VY = float64(vy) * speed
}

// HandleUseSkill resolves a skill cast: every living monster within
// skillRadius of (aimX,aimY) takes skillDamage, and a SkillEffectNotice is
// broadcast. Must run on r.strand.
func (r *Room) HandleUseSkill(sessionID uint64, skillID int32, aimX, aimY float32, skillRadius, skillDamage float64) {
	r.playersMu.RLock()
	p, ok := r.players[sessionID]
	r.playersMu.RUnlock()
	if !ok || p.Downed {
		return
	}

	r.broadcastPacket(protocol.SSkillEffect, protocol.SkillEffectNotice{
		CasterLocalID: p.LocalID,
		SkillID:       skillID,
	})

	var hits []int32
	hits = r.grid.QueryRange(float64(aimX), float64(aimY), skillRadius, func(id int32) (float64, float64) {
		obj, found := r.objects.Get(id)
		if !found {
			return 0, 0
		}
		return obj.X, obj.Y
	}, hits[:0])

	for _, id := range hits {
		obj, found := r.objects.Get(id)
		if !found || obj.Type != object.TypeMonster || obj.State != object.Alive {
			continue
		}
		r.ApplyDamage(id, skillDamage, sessionID)
	}
}

// GrantExp adds exp to sessionID's player, broadcasting the change and
// triggering a level-up option offer every time accumulated exp crosses
// the next level's threshold (100*level, a simple linear curve). Must run
// on r.strand.
func (r *Room) GrantExp(sessionID uint64, exp int32, optionPool []int32, rng *rand.Rand) {
	r.playersMu.Lock()
	p, ok := r.players[sessionID]
	if !ok {
		r.playersMu.Unlock()
		return
	}
	p.Exp += exp
	threshold := int32(100 * p.Level)
	leveledUp := p.Exp >= threshold
	if leveledUp {
		p.Exp -= threshold
		p.Level++
	}
	localID, level, curExp := p.LocalID, p.Level, p.Exp
	r.playersMu.Unlock()

	r.broadcastPacket(protocol.SExpChange, protocol.ExpChangeNotice{
		PlayerLocalID: localID,
		Exp:           curExp,
		Level:         int32(level),
	})

	if leveledUp && len(optionPool) >= 3 {
		notice := protocol.LevelUpOptionNotice{}
		perm := rng.Perm(len(optionPool))
		for i := 0; i < 3; i++ {
			notice.OptionIDs[i] = optionPool[perm[i]]
		}
		r.sessions.WithSession(sessionID, func(s *session.Session) {
			r.sendTo(s, protocol.SLevelUpOption, notice)
		})
	}
}

// checkEndConditions declares a win once the wave manager has no more
// spawners and every spawned monster is dead, or a loss once every player
// is downed.
func (r *Room) checkEndConditions() {
	if r.gameOver {
		return
	}

	r.playersMu.RLock()
	allDowned := len(r.players) > 0
	for _, p := range r.players {
		if !p.Downed {
			allDowned = false
			break
		}
	}
	r.playersMu.RUnlock()

	if allDowned {
		r.gameOver = true
		r.broadcastPacket(protocol.SGameOver, protocol.GameOverNotice{Reason: "all players downed"})
		if r.bus != nil {
			eventbus.Publish(r.bus, GameOverEvent{RoomID: r.ID, Reason: "all players downed"})
		}
		return
	}

	if r.wave.ActiveSpawnerCount() == 0 && r.tickCount > 0 && !r.hasLiveMonsters() {
		r.gameOver = true
		r.broadcastPacket(protocol.SGameWin, protocol.GameWinNotice{})
		if r.bus != nil {
			eventbus.Publish(r.bus, GameWinEvent{RoomID: r.ID})
		}
	}
}

func (r *Room) hasLiveMonsters() bool {
	for _, obj := range r.objects.AllObjects() {
		if obj.Type == object.TypeMonster && obj.State == object.Alive {
			return true
		}
	}
	return false
}

// broadcastMoves serializes every live object's position into one
// S_MOVE_OBJECT_BATCH packet, spec §4.L step 6.
func (r *Room) broadcastMoves() {
	objs := r.objects.AllObjects()
	if len(objs) == 0 {
		return
	}
	snapshots := make([]protocol.ObjectSnapshot, 0, len(objs))
	for _, obj := range objs {
		if obj.State != object.Alive {
			continue
		}
		snapshots = append(snapshots, protocol.ObjectSnapshot{
			ObjectID:   obj.ID,
			ObjectType: uint8(obj.Type),
			X:          float32(obj.X),
			Y:          float32(obj.Y),
		})
	}
	if len(snapshots) == 0 {
		return
	}
	r.broadcastPacket(protocol.SMoveObjectBatch, protocol.MoveObjectBatch{Objects: snapshots})
}

func (r *Room) broadcastSpawn(objs []*object.Object) {
	if len(objs) == 0 {
		return
	}
	snapshots := make([]protocol.ObjectSnapshot, len(objs))
	for i, obj := range objs {
		snapshots[i] = protocol.ObjectSnapshot{
			ObjectID:   obj.ID,
			ObjectType: uint8(obj.Type),
			X:          float32(obj.X),
			Y:          float32(obj.Y),
		}
	}
	r.broadcastPacket(protocol.SSpawnObject, protocol.SpawnObjectNotice{Objects: snapshots})
}

func (r *Room) broadcastDespawn(ids []int32) {
	if len(ids) == 0 {
		return
	}
	r.broadcastPacket(protocol.SDespawnObject, protocol.DespawnObjectNotice{ObjectIDs: ids})
}

// broadcastPacket serializes msg into one pool-allocated packet and sends
// one reference to every joined session's send queue: exactly one
// serialization, ref-counted across every recipient (spec §4.L
// "Broadcast").
func (r *Room) broadcastPacket(id uint16, msg protocol.Message) {
	pkt, ok := r.pool.Acquire(packet.HeaderSize + msg.ByteSize())
	if !ok {
		r.logger.Warn().Uint16("packet_id", id).Msg("packet pool exhausted, dropping broadcast")
		return
	}
	pkt.UsedSize = packet.HeaderSize + msg.ByteSize()
	packet.EncodeHeader(pkt.Bytes(), packet.Header{Size: uint16(pkt.UsedSize), ID: id})
	msg.SerializeInto(pkt.Body())

	r.playersMu.RLock()
	sessionIDs := make([]uint64, 0, len(r.players))
	for sid := range r.players {
		sessionIDs = append(sessionIDs, sid)
	}
	r.playersMu.RUnlock()

	for _, sid := range sessionIDs {
		r.sessions.WithSession(sid, func(s *session.Session) {
			if !s.Send(pkt) {
				r.logger.Debug().Uint64("session_id", sid).Msg("broadcast dropped, send queue full")
			}
		})
	}
	pkt.Release()
}

// sendTo serializes msg and sends it to a single session, used for
// per-player notices like a level-up option offer.
func (r *Room) sendTo(s *session.Session, id uint16, msg protocol.Message) {
	pkt, ok := r.pool.Acquire(packet.HeaderSize + msg.ByteSize())
	if !ok {
		r.logger.Warn().Uint16("packet_id", id).Msg("packet pool exhausted, dropping unicast")
		return
	}
	pkt.UsedSize = packet.HeaderSize + msg.ByteSize()
	packet.EncodeHeader(pkt.Bytes(), packet.Header{Size: uint16(pkt.UsedSize), ID: id})
	msg.SerializeInto(pkt.Body())
	s.Send(pkt)
	pkt.Release()
}

// debugPlayer/debugMonster/debugProjectile are the compact-key shapes of
// DebugSnapshot, mirroring Room_Broadcast.cpp's throttled JSON dump.
type debugPlayer struct {
	ID int32   `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	HP float64 `json:"hp"`
}

type debugObject struct {
	ID int32   `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type debugSnapshot struct {
	RoomID uint64        `json:"rid"`
	Tick   uint32        `json:"t"`
	P      []debugPlayer `json:"p"`
	M      []debugObject `json:"m"`
	Pr     []debugObject `json:"pr"`
}

// DebugSnapshot renders the room's current state as compact JSON, for
// tests and an optional /debug/rooms HTTP handler — never the wire
// protocol itself.
func (r *Room) DebugSnapshot() string {
	snap := debugSnapshot{RoomID: r.ID, Tick: r.tickCount}

	r.playersMu.RLock()
	for _, p := range r.players {
		if obj, ok := r.objects.Get(p.ObjectID); ok {
			snap.P = append(snap.P, debugPlayer{ID: obj.ID, X: obj.X, Y: obj.Y, HP: obj.HP})
		}
	}
	r.playersMu.RUnlock()

	for _, obj := range r.objects.AllObjects() {
		if obj.State != object.Alive {
			continue
		}
		switch obj.Type {
		case object.TypeMonster:
			snap.M = append(snap.M, debugObject{ID: obj.ID, X: obj.X, Y: obj.Y})
		case object.TypeProjectile:
			snap.Pr = append(snap.Pr, debugObject{ID: obj.ID, X: obj.X, Y: obj.Y})
		}
	}

	b, err := json.Marshal(snap)
	if err != nil {
		return "{}"
	}
	return string(b)
}
