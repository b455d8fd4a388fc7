package protocol

import "encoding/binary"

// String fields are length-prefixed with a uint16 count of bytes, matching
// the packed little-endian convention PacketHeader already uses. Arrays of
// fixed-size records carry a uint16 element count ahead of the elements.

func putString(buf []byte, s string) int {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(s)))
	n := copy(buf[2:], s)
	return 2 + n
}

func stringSize(s string) int { return 2 + len(s) }

func getString(buf []byte) (string, int) {
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	return string(buf[2 : 2+n]), 2 + n
}

// LoginRequest is the body of C_LOGIN.
type LoginRequest struct {
	UserID int64
	Token  string
}

func (m LoginRequest) ByteSize() int { return 8 + stringSize(m.Token) }

func (m LoginRequest) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(m.UserID))
	return 8 + putString(buf[8:], m.Token)
}

func DecodeLoginRequest(buf []byte) LoginRequest {
	userID := int64(binary.LittleEndian.Uint64(buf[0:8]))
	token, _ := getString(buf[8:])
	return LoginRequest{UserID: userID, Token: token}
}

// LoginResponse is the body of S_LOGIN.
type LoginResponse struct {
	Success   bool
	SessionID uint64
	Reason    string
}

func (m LoginResponse) ByteSize() int { return 1 + 8 + stringSize(m.Reason) }

func (m LoginResponse) SerializeInto(buf []byte) int {
	if m.Success {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
	binary.LittleEndian.PutUint64(buf[1:9], m.SessionID)
	return 9 + putString(buf[9:], m.Reason)
}

func DecodeLoginResponse(buf []byte) LoginResponse {
	success := buf[0] != 0
	sessionID := binary.LittleEndian.Uint64(buf[1:9])
	reason, _ := getString(buf[9:])
	return LoginResponse{Success: success, SessionID: sessionID, Reason: reason}
}

// CreateRoomRequest is the body of C_CREATE_ROOM.
type CreateRoomRequest struct {
	Name string
}

func (m CreateRoomRequest) ByteSize() int { return stringSize(m.Name) }
func (m CreateRoomRequest) SerializeInto(buf []byte) int { return putString(buf, m.Name) }

func DecodeCreateRoomRequest(buf []byte) CreateRoomRequest {
	name, _ := getString(buf)
	return CreateRoomRequest{Name: name}
}

// CreateRoomResponse is the body of S_CREATE_ROOM.
type CreateRoomResponse struct {
	Success     bool
	RoomID      uint64
	RoomLocalID uint32
}

func (m CreateRoomResponse) ByteSize() int { return 1 + 8 + 4 }

func (m CreateRoomResponse) SerializeInto(buf []byte) int {
	if m.Success {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
	binary.LittleEndian.PutUint64(buf[1:9], m.RoomID)
	binary.LittleEndian.PutUint32(buf[9:13], m.RoomLocalID)
	return 13
}

func DecodeCreateRoomResponse(buf []byte) CreateRoomResponse {
	return CreateRoomResponse{
		Success:     buf[0] != 0,
		RoomID:      binary.LittleEndian.Uint64(buf[1:9]),
		RoomLocalID: binary.LittleEndian.Uint32(buf[9:13]),
	}
}

// JoinRoomRequest is the body of C_JOIN_ROOM.
type JoinRoomRequest struct {
	RoomID uint64
}

func (m JoinRoomRequest) ByteSize() int { return 8 }
func (m JoinRoomRequest) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint64(buf[0:8], m.RoomID)
	return 8
}

func DecodeJoinRoomRequest(buf []byte) JoinRoomRequest {
	return JoinRoomRequest{RoomID: binary.LittleEndian.Uint64(buf[0:8])}
}

// JoinRoomResponse is the body of S_JOIN_ROOM.
type JoinRoomResponse struct {
	Success     bool
	RoomLocalID uint32
}

func (m JoinRoomResponse) ByteSize() int { return 1 + 4 }
func (m JoinRoomResponse) SerializeInto(buf []byte) int {
	if m.Success {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
	binary.LittleEndian.PutUint32(buf[1:5], m.RoomLocalID)
	return 5
}

func DecodeJoinRoomResponse(buf []byte) JoinRoomResponse {
	return JoinRoomResponse{Success: buf[0] != 0, RoomLocalID: binary.LittleEndian.Uint32(buf[1:5])}
}

// LeaveRoomRequest is the (empty-bodied) C_LEAVE_ROOM.
type LeaveRoomRequest struct{}

func (LeaveRoomRequest) ByteSize() int            { return 0 }
func (LeaveRoomRequest) SerializeInto([]byte) int { return 0 }

// LeaveRoomNotice is the body of S_LEAVE_ROOM.
type LeaveRoomNotice struct {
	RoomLocalID uint32
}

func (m LeaveRoomNotice) ByteSize() int { return 4 }
func (m LeaveRoomNotice) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], m.RoomLocalID)
	return 4
}

func DecodeLeaveRoomNotice(buf []byte) LeaveRoomNotice {
	return LeaveRoomNotice{RoomLocalID: binary.LittleEndian.Uint32(buf[0:4])}
}

// ChatMessage is the body of both C_CHAT and S_CHAT; the server stamps
// SenderLocalID on relay, which the client leaves zero when sending.
type ChatMessage struct {
	SenderLocalID uint32
	Text          string
}

func (m ChatMessage) ByteSize() int { return 4 + stringSize(m.Text) }

func (m ChatMessage) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], m.SenderLocalID)
	return 4 + putString(buf[4:], m.Text)
}

func DecodeChatMessage(buf []byte) ChatMessage {
	senderLocalID := binary.LittleEndian.Uint32(buf[0:4])
	text, _ := getString(buf[4:])
	return ChatMessage{SenderLocalID: senderLocalID, Text: text}
}

// ObjectSnapshot is one entry of S_SPAWN_OBJECT / S_MOVE_OBJECT_BATCH.
type ObjectSnapshot struct {
	ObjectID   int32
	ObjectType uint8
	X, Y       float32
}

const objectSnapshotSize = 4 + 1 + 4 + 4

func putObjectSnapshot(buf []byte, o ObjectSnapshot) int {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(o.ObjectID))
	buf[4] = o.ObjectType
	binary.LittleEndian.PutUint32(buf[5:9], floatBits(o.X))
	binary.LittleEndian.PutUint32(buf[9:13], floatBits(o.Y))
	return objectSnapshotSize
}

func getObjectSnapshot(buf []byte) ObjectSnapshot {
	return ObjectSnapshot{
		ObjectID:   int32(binary.LittleEndian.Uint32(buf[0:4])),
		ObjectType: buf[4],
		X:          bitsFloat(binary.LittleEndian.Uint32(buf[5:9])),
		Y:          bitsFloat(binary.LittleEndian.Uint32(buf[9:13])),
	}
}

// SpawnObjectNotice is the body of S_SPAWN_OBJECT.
type SpawnObjectNotice struct {
	Objects []ObjectSnapshot
}

func (m SpawnObjectNotice) ByteSize() int { return 2 + len(m.Objects)*objectSnapshotSize }

func (m SpawnObjectNotice) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(m.Objects)))
	off := 2
	for _, o := range m.Objects {
		off += putObjectSnapshot(buf[off:], o)
	}
	return off
}

func DecodeSpawnObjectNotice(buf []byte) SpawnObjectNotice {
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	out := make([]ObjectSnapshot, n)
	off := 2
	for i := 0; i < n; i++ {
		out[i] = getObjectSnapshot(buf[off:])
		off += objectSnapshotSize
	}
	return SpawnObjectNotice{Objects: out}
}

// DespawnObjectNotice is the body of S_DESPAWN_OBJECT.
type DespawnObjectNotice struct {
	ObjectIDs []int32
}

func (m DespawnObjectNotice) ByteSize() int { return 2 + len(m.ObjectIDs)*4 }

func (m DespawnObjectNotice) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(m.ObjectIDs)))
	off := 2
	for _, id := range m.ObjectIDs {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(id))
		off += 4
	}
	return off
}

func DecodeDespawnObjectNotice(buf []byte) DespawnObjectNotice {
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	out := make([]int32, n)
	off := 2
	for i := 0; i < n; i++ {
		out[i] = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	return DespawnObjectNotice{ObjectIDs: out}
}

// MoveObjectBatch is the body of S_MOVE_OBJECT_BATCH, the per-tick snapshot
// broadcast of every object's position.
type MoveObjectBatch struct {
	Objects []ObjectSnapshot
}

func (m MoveObjectBatch) ByteSize() int { return 2 + len(m.Objects)*objectSnapshotSize }

func (m MoveObjectBatch) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(m.Objects)))
	off := 2
	for _, o := range m.Objects {
		off += putObjectSnapshot(buf[off:], o)
	}
	return off
}

func DecodeMoveObjectBatch(buf []byte) MoveObjectBatch {
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	out := make([]ObjectSnapshot, n)
	off := 2
	for i := 0; i < n; i++ {
		out[i] = getObjectSnapshot(buf[off:])
		off += objectSnapshotSize
	}
	return MoveObjectBatch{Objects: out}
}

// MoveRequest is the body of C_MOVE.
type MoveRequest struct {
	VX, VY float32
}

func (m MoveRequest) ByteSize() int { return 8 }

func (m MoveRequest) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], floatBits(m.VX))
	binary.LittleEndian.PutUint32(buf[4:8], floatBits(m.VY))
	return 8
}

func DecodeMoveRequest(buf []byte) MoveRequest {
	return MoveRequest{
		VX: bitsFloat(binary.LittleEndian.Uint32(buf[0:4])),
		VY: bitsFloat(binary.LittleEndian.Uint32(buf[4:8])),
	}
}

// UseSkillRequest is the body of C_USE_SKILL.
type UseSkillRequest struct {
	SkillID int32
	AimX    float32
	AimY    float32
}

func (m UseSkillRequest) ByteSize() int { return 12 }

func (m UseSkillRequest) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.SkillID))
	binary.LittleEndian.PutUint32(buf[4:8], floatBits(m.AimX))
	binary.LittleEndian.PutUint32(buf[8:12], floatBits(m.AimY))
	return 12
}

func DecodeUseSkillRequest(buf []byte) UseSkillRequest {
	return UseSkillRequest{
		SkillID: int32(binary.LittleEndian.Uint32(buf[0:4])),
		AimX:    bitsFloat(binary.LittleEndian.Uint32(buf[4:8])),
		AimY:    bitsFloat(binary.LittleEndian.Uint32(buf[8:12])),
	}
}

// SkillEffectNotice is the body of S_SKILL_EFFECT.
type SkillEffectNotice struct {
	CasterLocalID uint32
	SkillID       int32
}

func (m SkillEffectNotice) ByteSize() int { return 8 }

func (m SkillEffectNotice) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], m.CasterLocalID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.SkillID))
	return 8
}

func DecodeSkillEffectNotice(buf []byte) SkillEffectNotice {
	return SkillEffectNotice{
		CasterLocalID: binary.LittleEndian.Uint32(buf[0:4]),
		SkillID:       int32(binary.LittleEndian.Uint32(buf[4:8])),
	}
}

// DamageEffectNotice is the body of S_DAMAGE_EFFECT.
type DamageEffectNotice struct {
	TargetObjectID int32
	Amount         float32
	RemainingHP    float32
}

func (m DamageEffectNotice) ByteSize() int { return 12 }

func (m DamageEffectNotice) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.TargetObjectID))
	binary.LittleEndian.PutUint32(buf[4:8], floatBits(m.Amount))
	binary.LittleEndian.PutUint32(buf[8:12], floatBits(m.RemainingHP))
	return 12
}

func DecodeDamageEffectNotice(buf []byte) DamageEffectNotice {
	return DamageEffectNotice{
		TargetObjectID: int32(binary.LittleEndian.Uint32(buf[0:4])),
		Amount:         bitsFloat(binary.LittleEndian.Uint32(buf[4:8])),
		RemainingHP:    bitsFloat(binary.LittleEndian.Uint32(buf[8:12])),
	}
}

// PlayerDownedNotice is the body of S_PLAYER_DOWNED.
type PlayerDownedNotice struct {
	PlayerLocalID uint32
}

func (m PlayerDownedNotice) ByteSize() int { return 4 }
func (m PlayerDownedNotice) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], m.PlayerLocalID)
	return 4
}

func DecodePlayerDownedNotice(buf []byte) PlayerDownedNotice {
	return PlayerDownedNotice{PlayerLocalID: binary.LittleEndian.Uint32(buf[0:4])}
}

// PlayerReviveNotice is the body of S_PLAYER_REVIVE.
type PlayerReviveNotice struct {
	PlayerLocalID uint32
}

func (m PlayerReviveNotice) ByteSize() int { return 4 }
func (m PlayerReviveNotice) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], m.PlayerLocalID)
	return 4
}

func DecodePlayerReviveNotice(buf []byte) PlayerReviveNotice {
	return PlayerReviveNotice{PlayerLocalID: binary.LittleEndian.Uint32(buf[0:4])}
}

// ExpChangeNotice is the body of S_EXP_CHANGE.
type ExpChangeNotice struct {
	PlayerLocalID uint32
	Exp           int32
	Level         int32
}

func (m ExpChangeNotice) ByteSize() int { return 12 }

func (m ExpChangeNotice) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], m.PlayerLocalID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.Exp))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.Level))
	return 12
}

func DecodeExpChangeNotice(buf []byte) ExpChangeNotice {
	return ExpChangeNotice{
		PlayerLocalID: binary.LittleEndian.Uint32(buf[0:4]),
		Exp:           int32(binary.LittleEndian.Uint32(buf[4:8])),
		Level:         int32(binary.LittleEndian.Uint32(buf[8:12])),
	}
}

// LevelUpOptionNotice is the body of S_LEVEL_UP_OPTION.
type LevelUpOptionNotice struct {
	OptionIDs [3]int32
}

func (m LevelUpOptionNotice) ByteSize() int { return 12 }

func (m LevelUpOptionNotice) SerializeInto(buf []byte) int {
	for i, id := range m.OptionIDs {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], uint32(id))
	}
	return 12
}

func DecodeLevelUpOptionNotice(buf []byte) LevelUpOptionNotice {
	var out LevelUpOptionNotice
	for i := range out.OptionIDs {
		out.OptionIDs[i] = int32(binary.LittleEndian.Uint32(buf[i*4 : i*4+4]))
	}
	return out
}

// SelectLevelUpRequest is the body of C_SELECT_LEVEL_UP.
type SelectLevelUpRequest struct {
	OptionID int32
}

func (m SelectLevelUpRequest) ByteSize() int { return 4 }
func (m SelectLevelUpRequest) SerializeInto(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.OptionID))
	return 4
}

func DecodeSelectLevelUpRequest(buf []byte) SelectLevelUpRequest {
	return SelectLevelUpRequest{OptionID: int32(binary.LittleEndian.Uint32(buf[0:4]))}
}

// GameWinNotice is the (empty-bodied) S_GAME_WIN.
type GameWinNotice struct{}

func (GameWinNotice) ByteSize() int            { return 0 }
func (GameWinNotice) SerializeInto([]byte) int { return 0 }

// GameOverNotice is the body of S_GAME_OVER.
type GameOverNotice struct {
	Reason string
}

func (m GameOverNotice) ByteSize() int            { return stringSize(m.Reason) }
func (m GameOverNotice) SerializeInto(buf []byte) int { return putString(buf, m.Reason) }

func DecodeGameOverNotice(buf []byte) GameOverNotice {
	reason, _ := getString(buf)
	return GameOverNotice{Reason: reason}
}
