// Package object implements the id -> Object table (spec component N).
package object

import "github.com/rs/zerolog"

// Type distinguishes simulation object kinds.
type Type int

const (
	TypePlayer Type = iota
	TypeMonster
	TypeProjectile
)

// State is an Object's lifecycle stage within a Room.
type State int

const (
	Alive State = iota
	Dead
)

// Object is the authoritative per-entity simulation state.
type Object struct {
	ID              int32
	Type            Type
	X, Y            float64
	VX, VY          float64
	HP, MaxHP       float64
	State           State
	OwnerSessionID  uint64
	HasOwner        bool
}

// Manager is the id -> *Object table owned by a Room. AllObjects() returns a
// snapshot used exclusively by the strand that owns the Room.
type Manager struct {
	objects map[int32]*Object
	debug   bool
	logger  zerolog.Logger
}

// NewManager creates an empty Manager that aborts on a duplicate-id insert,
// the right default for tests and anywhere an environment isn't threaded in.
func NewManager() *Manager {
	return &Manager{objects: make(map[int32]*Object), debug: true}
}

// NewManagerForEnvironment creates an empty Manager whose duplicate-id
// policy follows debug (config.Environment != "production"): abort in
// debug, log and skip the insert in release, per §7's programmer-error
// policy.
func NewManagerForEnvironment(debug bool, logger zerolog.Logger) *Manager {
	return &Manager{objects: make(map[int32]*Object), debug: debug, logger: logger}
}

// AddObject inserts obj. A duplicate obj.ID is a Logic-kind programmer
// error (§7): in debug it panics immediately, in release it logs and
// leaves the existing object in place rather than taking down the room.
func (m *Manager) AddObject(obj *Object) {
	if _, exists := m.objects[obj.ID]; exists {
		if m.debug {
			panic("object id already present in manager")
		}
		m.logger.Error().Int32("object_id", obj.ID).Msg("duplicate object id insert, skipping")
		return
	}
	m.objects[obj.ID] = obj
}

// RemoveObject unlinks id, if present.
func (m *Manager) RemoveObject(id int32) {
	delete(m.objects, id)
}

// Get returns the object for id, if present.
func (m *Manager) Get(id int32) (*Object, bool) {
	obj, ok := m.objects[id]
	return obj, ok
}

// AllObjects returns a snapshot slice of every live object.
func (m *Manager) AllObjects() []*Object {
	out := make([]*Object, 0, len(m.objects))
	for _, obj := range m.objects {
		out = append(out, obj)
	}
	return out
}

// Count reports the number of tracked objects.
func (m *Manager) Count() int { return len(m.objects) }
