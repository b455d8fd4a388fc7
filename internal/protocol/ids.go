// Package protocol defines the packet id table (spec §6) and the opaque
// serializable message contract the core consumes. The distilled spec
// treats the wire schema as an external, out-of-scope collaborator ("a
// protobuf-encoded payload"); this repo honors the same Message boundary
// (ByteSize/SerializeInto) but backs it with plain encoding/binary structs
// rather than real .proto-generated types, matching how PacketHeader is
// already packed in internal/packet.
package protocol

// Packet ids, authoritative subset per SPEC_FULL.md §6.
const (
	CLogin          uint16 = 100
	SLogin          uint16 = 101
	CCreateRoom     uint16 = 102
	SCreateRoom     uint16 = 103
	CJoinRoom       uint16 = 104
	SJoinRoom       uint16 = 105
	CLeaveRoom      uint16 = 112
	SLeaveRoom      uint16 = 113
	CChat           uint16 = 120
	SChat           uint16 = 121
	SSpawnObject    uint16 = 200
	SDespawnObject  uint16 = 201
	SMoveObjectBatch uint16 = 202
	CMove           uint16 = 203
	CUseSkill       uint16 = 300
	SSkillEffect    uint16 = 301
	SDamageEffect   uint16 = 302
	SPlayerDowned   uint16 = 303
	SPlayerRevive   uint16 = 304
	SExpChange      uint16 = 400
	SLevelUpOption  uint16 = 401
	CSelectLevelUp  uint16 = 402
	SGameWin        uint16 = 500
	SGameOver       uint16 = 501
)

// Message is the opaque serializable contract the core relies on: any
// wire payload must know its encoded size and be able to write itself into
// a caller-provided buffer.
type Message interface {
	ByteSize() int
	SerializeInto(buf []byte) int
}
