// Package roommanager implements the room_id -> *Room table and the packet
// handlers that route client requests onto the right Room's strand (spec's
// RoomManager, §5's "sync.RWMutex-protected map"). Grounded on
// original_source's Game/RoomManager.h/.cpp (CreateRoom/GetRoom/
// RegisterPlayer/UnregisterPlayer/GetPlayer) and Core/GamePacketHandler.cpp's
// C_CREATE_ROOM/C_JOIN_ROOM handling (auto-incrementing room id, immediate
// S_CREATE_ROOM/S_JOIN_ROOM reply built and sent from the handler itself).
package roommanager

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kybird/vsurv/internal/dispatch"
	"github.com/kybird/vsurv/internal/eventbus"
	"github.com/kybird/vsurv/internal/handler"
	"github.com/kybird/vsurv/internal/metrics"
	"github.com/kybird/vsurv/internal/modifier"
	"github.com/kybird/vsurv/internal/packet"
	"github.com/kybird/vsurv/internal/protocol"
	"github.com/kybird/vsurv/internal/room"
	"github.com/kybird/vsurv/internal/session"
	"github.com/kybird/vsurv/internal/timer"
	"github.com/kybird/vsurv/internal/userdb"
	"github.com/kybird/vsurv/internal/wave"
)

// SkillDef is a castable skill's server-side resolution rule: every
// monster within Radius of the cast's aim point takes Damage.
// UnlockCost is what C_SELECT_LEVEL_UP spends via UserDB.UnlockSkill.
type SkillDef struct {
	ID         int32
	Radius     float64
	Damage     float64
	UnlockCost int64
}

// DefaultSkillCatalog is the level-up option pool offered to every room,
// standing in for original_source's never-implemented skill data table.
func DefaultSkillCatalog() []SkillDef {
	return []SkillDef{
		{ID: 1, Radius: 80, Damage: 15, UnlockCost: 20},
		{ID: 2, Radius: 120, Damage: 10, UnlockCost: 30},
		{ID: 3, Radius: 60, Damage: 25, UnlockCost: 40},
		{ID: 4, Radius: 150, Damage: 8, UnlockCost: 50},
	}
}

func (c SkillDef) matches(id int32) bool { return c.ID == id }

// Manager owns every live Room and the session->room index that lets
// C_MOVE/C_USE_SKILL/C_CHAT/C_LEAVE_ROOM/C_SELECT_LEVEL_UP find their
// target room without the client repeating a room id on every packet,
// mirroring RoomManager::RegisterPlayer/GetPlayer.
type Manager struct {
	dispatcher *dispatch.Dispatcher
	wheel      *timer.Wheel
	sessions   *session.Registry
	pool       *packet.Pool
	metrics    *metrics.Registry
	bus        *eventbus.Bus
	userDB     *userdb.DB
	logger     zerolog.Logger
	debug      bool // config.Environment != "production", passed down to each Room

	waveDefs     []wave.WaveDef
	skillCatalog []SkillDef

	mu         sync.RWMutex
	rooms      map[uint64]*room.Room
	playerRoom map[uint64]uint64 // sessionID -> roomID
	nextRoomID uint64
}

// New creates a Manager holding one default room, Room 1, matching
// RoomManager's constructor-time default room. Like every room, it starts
// ticking when its first player enters.
func New(
	d *dispatch.Dispatcher, wheel *timer.Wheel, sessions *session.Registry,
	pool *packet.Pool, m *metrics.Registry, bus *eventbus.Bus, userDB *userdb.DB,
	logger zerolog.Logger, debug bool, waveDefs []wave.WaveDef, skillCatalog []SkillDef,
) *Manager {
	mgr := &Manager{
		dispatcher:   d,
		wheel:        wheel,
		sessions:     sessions,
		pool:         pool,
		metrics:      m,
		bus:          bus,
		userDB:       userDB,
		logger:       logger,
		debug:        debug,
		waveDefs:     waveDefs,
		skillCatalog: skillCatalog,
		rooms:        make(map[uint64]*room.Room),
		playerRoom:   make(map[uint64]uint64),
	}
	mgr.CreateRoom("Default Room")
	return mgr
}

func (m *Manager) skillIDs() []int32 {
	ids := make([]int32, len(m.skillCatalog))
	for i, s := range m.skillCatalog {
		ids[i] = s.ID
	}
	return ids
}

func (m *Manager) findSkill(id int32) (SkillDef, bool) {
	for _, s := range m.skillCatalog {
		if s.matches(id) {
			return s, true
		}
	}
	return SkillDef{}, false
}

// CreateRoom allocates a fresh room id and a dedicated strand. It does not
// start the room; the room starts ticking when its first player enters.
func (m *Manager) CreateRoom(title string) *room.Room {
	id := atomic.AddUint64(&m.nextRoomID, 1)
	strand := dispatch.NewStrand(m.dispatcher)
	rng := rand.New(rand.NewPCG(id, id^0x9e3779b97f4a7c15))

	r := room.New(id, title, strand, m.wheel, m.sessions, m.pool, m.metrics, m.bus,
		m.logger, m.debug, m.waveDefs, rng, m.skillIDs())

	m.mu.Lock()
	m.rooms[id] = r
	m.mu.Unlock()

	m.logger.Info().Uint64("room_id", id).Str("title", title).Msg("room created")
	return r
}

// GetRoom looks up a room by id.
func (m *Manager) GetRoom(id uint64) (*room.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// RoomOf returns the room sessionID is currently registered in.
func (m *Manager) RoomOf(sessionID uint64) (*room.Room, bool) {
	m.mu.RLock()
	roomID, ok := m.playerRoom[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.GetRoom(roomID)
}

func (m *Manager) registerPlayer(sessionID, roomID uint64) {
	m.mu.Lock()
	m.playerRoom[sessionID] = roomID
	m.mu.Unlock()
}

func (m *Manager) unregisterPlayer(sessionID uint64) {
	m.mu.Lock()
	delete(m.playerRoom, sessionID)
	m.mu.Unlock()
}

// RegisterHandlers installs every room-facing packet handler into reg. Each
// handler looks up its target room/session and submits the actual mutation
// onto that room's own strand, so room state is only mutated on that
// strand.
func (m *Manager) RegisterHandlers(reg *handler.Registry) {
	reg.Register(protocol.CCreateRoom, m.handleCreateRoom)
	reg.Register(protocol.CJoinRoom, m.handleJoinRoom)
	reg.Register(protocol.CLeaveRoom, m.handleLeaveRoom)
	reg.Register(protocol.CChat, m.handleChat)
	reg.Register(protocol.CMove, m.handleMove)
	reg.Register(protocol.CUseSkill, m.handleUseSkill)
	reg.Register(protocol.CSelectLevelUp, m.handleSelectLevelUp)
}

func (m *Manager) handleCreateRoom(s *session.Session, body []byte) error {
	req := protocol.DecodeCreateRoomRequest(body)
	title := req.Name
	if title == "" {
		title = "Room"
	}
	r := m.CreateRoom(title)
	m.reply(s, protocol.SCreateRoom, protocol.CreateRoomResponse{Success: true, RoomID: r.ID})
	return nil
}

func (m *Manager) handleJoinRoom(s *session.Session, body []byte) error {
	req := protocol.DecodeJoinRoomRequest(body)

	if _, already := m.RoomOf(s.ID); already {
		m.logger.Warn().Uint64("session_id", s.ID).Msg("join requested while already in a room")
		m.reply(s, protocol.SJoinRoom, protocol.JoinRoomResponse{Success: false})
		return nil
	}

	r, ok := m.GetRoom(req.RoomID)
	if !ok {
		m.logger.Warn().Uint64("room_id", req.RoomID).Msg("join requested for unknown room")
		m.reply(s, protocol.SJoinRoom, protocol.JoinRoomResponse{Success: false})
		return nil
	}

	sessionID := s.ID
	base := m.loadBaseStats(sessionID)
	r.Strand().Submit(func() {
		p := r.Enter(sessionID, int64(sessionID), base)
		m.registerPlayer(sessionID, r.ID)
		m.sessions.WithSession(sessionID, func(sess *session.Session) {
			m.reply(sess, protocol.SJoinRoom, protocol.JoinRoomResponse{Success: true, RoomLocalID: p.LocalID})
		})
	})
	return nil
}

// loadBaseStats seeds a fresh player's stats from UserDB when one is wired,
// or a zero-UserDB default otherwise (e.g. in tests that run roommanager
// without a database).
func (m *Manager) loadBaseStats(sessionID uint64) map[modifier.StatType]float64 {
	if m.userDB == nil {
		return defaultBaseStats()
	}
	stats, err := m.userDB.LoadPlayerStats(int64(sessionID))
	if err != nil {
		m.logger.Warn().Err(err).Uint64("session_id", sessionID).Msg("failed to load player stats, using defaults")
		return defaultBaseStats()
	}
	return stats
}

// defaultBaseStats seeds a fresh player's ModifierContainer when no UserDB
// is wired (e.g. tests), matching UserDB.LoadPlayerStats' own baseline for
// a user with no unlocked skills.
func defaultBaseStats() map[modifier.StatType]float64 {
	return map[modifier.StatType]float64{
		modifier.Speed:    100,
		modifier.MaxHP:    100,
		modifier.Attack:   10,
		modifier.Cooldown: 1,
		modifier.Area:     80,
	}
}

func (m *Manager) handleLeaveRoom(s *session.Session, body []byte) error {
	r, ok := m.RoomOf(s.ID)
	if !ok {
		return nil
	}
	sessionID := s.ID
	m.unregisterPlayer(sessionID)
	r.Strand().Submit(func() { r.Leave(sessionID) })
	return nil
}

func (m *Manager) handleChat(s *session.Session, body []byte) error {
	r, ok := m.RoomOf(s.ID)
	if !ok {
		return nil
	}
	msg := protocol.DecodeChatMessage(body)
	sessionID := s.ID
	r.Strand().Submit(func() { r.Chat(sessionID, msg.Text) })
	return nil
}

func (m *Manager) handleMove(s *session.Session, body []byte) error {
	r, ok := m.RoomOf(s.ID)
	if !ok {
		return nil
	}
	req := protocol.DecodeMoveRequest(body)
	sessionID := s.ID
	r.Strand().Submit(func() { r.HandleMove(sessionID, req.VX, req.VY) })
	return nil
}

func (m *Manager) handleUseSkill(s *session.Session, body []byte) error {
	r, ok := m.RoomOf(s.ID)
	if !ok {
		return nil
	}
	req := protocol.DecodeUseSkillRequest(body)
	def, ok := m.findSkill(req.SkillID)
	if !ok {
		m.logger.Warn().Int32("skill_id", req.SkillID).Msg("use-skill for unknown skill id")
		return nil
	}
	sessionID := s.ID
	r.Strand().Submit(func() {
		r.HandleUseSkill(sessionID, req.SkillID, req.AimX, req.AimY, def.Radius, def.Damage)
	})
	return nil
}

func (m *Manager) handleSelectLevelUp(s *session.Session, body []byte) error {
	req := protocol.DecodeSelectLevelUpRequest(body)
	if m.userDB == nil {
		return nil
	}
	def, ok := m.findSkill(req.OptionID)
	if !ok {
		m.logger.Warn().Int32("option_id", req.OptionID).Msg("level-up selection for unknown skill id")
		return nil
	}
	userID := int64(s.ID)
	level, err := m.userDB.SkillLevel(userID, int64(def.ID))
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to read skill level for level-up selection")
		return nil
	}
	if err := m.userDB.UnlockSkill(userID, int64(def.ID), def.UnlockCost, level+1); err != nil {
		m.logger.Info().Err(err).Int32("skill_id", def.ID).Msg("level-up selection rejected")
		return nil
	}

	newLevel := level + 1
	sessionID := s.ID
	if r, ok := m.RoomOf(sessionID); ok {
		r.Strand().Submit(func() {
			r.ApplyModifier(sessionID, modifier.StatModifier{
				Type:     modifier.Attack,
				Op:       modifier.Flat,
				Value:    def.Damage * float64(newLevel),
				SourceID: def.ID,
			})
		})
	}
	return nil
}

func (m *Manager) reply(s *session.Session, id uint16, msg protocol.Message) {
	pkt, ok := m.pool.Acquire(packet.HeaderSize + msg.ByteSize())
	if !ok {
		m.logger.Warn().Uint16("packet_id", id).Msg("packet pool exhausted, dropping reply")
		return
	}
	pkt.UsedSize = packet.HeaderSize + msg.ByteSize()
	packet.EncodeHeader(pkt.Bytes(), packet.Header{Size: uint16(pkt.UsedSize), ID: id})
	msg.SerializeInto(pkt.Body())
	s.Send(pkt)
	pkt.Release()
}
