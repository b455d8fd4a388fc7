// Package wave implements the time-driven monster spawner and damage
// emitter state machines (spec component O), grounded line-for-line on
// original_source's WaveManager.cpp (Update/StartSpawner/SpawnMonster).
package wave

import (
	"math"
	"math/rand/v2"
)

// WaveDef is a time-triggered set of periodic spawners.
type WaveDef struct {
	StartTime     float64
	MonsterTypeID int32
	TotalCount    int
	Interval      float64
}

// PeriodicSpawner is one active spawn schedule started from a WaveDef.
type PeriodicSpawner struct {
	MonsterTypeID int32
	TotalCount    int
	SpawnedCount  int
	Interval      float64
	Timer         float64
}

// SpawnRequest describes one monster the Manager wants created this tick.
// The Room applies this against ObjectManager/SpatialGrid; wave itself has
// no dependency on those packages.
type SpawnRequest struct {
	MonsterTypeID int32
	X, Y          float64
}

// Manager drives wave progression and active spawners.
type Manager struct {
	currentTime    float64
	waves          []WaveDef
	waveIndex      int
	activeSpawners []PeriodicSpawner
	rng            *rand.Rand
}

// NewManager creates a Manager over the given ordered wave list. rng may be
// nil to use a process-default source; tests should inject a seeded one for
// reproducibility.
func NewManager(waves []WaveDef, rng *rand.Rand) *Manager {
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 2))
	}
	return &Manager{waves: waves, rng: rng}
}

// Start resets progression to the beginning.
func (m *Manager) Start() {
	m.currentTime = 0
	m.waveIndex = 0
	m.activeSpawners = nil
}

// Update advances wave/spawner state by dt and returns the monsters that
// should spawn this tick, each placed at a random angle/distance (5-20
// units) from the origin, matching the original's SpawnMonster sampling.
func (m *Manager) Update(dt float64) []SpawnRequest {
	m.currentTime += dt

	for m.waveIndex < len(m.waves) && m.currentTime >= m.waves[m.waveIndex].StartTime {
		m.startSpawner(m.waves[m.waveIndex])
		m.waveIndex++
	}

	var spawns []SpawnRequest
	kept := m.activeSpawners[:0]
	for i := range m.activeSpawners {
		sp := &m.activeSpawners[i]
		sp.Timer -= dt
		if sp.Timer <= 0 {
			spawns = append(spawns, m.sampleSpawn(sp.MonsterTypeID))
			sp.SpawnedCount++
			sp.Timer = sp.Interval
		}
		if sp.SpawnedCount < sp.TotalCount {
			kept = append(kept, *sp)
		}
	}
	m.activeSpawners = kept

	return spawns
}

func (m *Manager) startSpawner(w WaveDef) {
	m.activeSpawners = append(m.activeSpawners, PeriodicSpawner{
		MonsterTypeID: w.MonsterTypeID,
		TotalCount:    w.TotalCount,
		Interval:      w.Interval,
		Timer:         0,
	})
}

func (m *Manager) sampleSpawn(monsterTypeID int32) SpawnRequest {
	angle := m.rng.Float64() * 2 * math.Pi
	dist := 5 + m.rng.Float64()*15 // [5,20)
	return SpawnRequest{
		MonsterTypeID: monsterTypeID,
		X:             dist * math.Cos(angle),
		Y:             dist * math.Sin(angle),
	}
}

// ActiveSpawnerCount reports the number of spawners still producing
// monsters, for tests and diagnostics.
func (m *Manager) ActiveSpawnerCount() int { return len(m.activeSpawners) }

// EmitterState is an Emitter's simple two-state machine.
type EmitterState int

const (
	Cooling EmitterState = iota
	Active
)

// Emitter is a periodic damage-producing source (projectile launcher, aura,
// field) cycling between Cooling and Active.
type Emitter struct {
	State         EmitterState
	CooldownTime  float64
	ActiveTime    float64
	timer         float64
}

// NewEmitter creates an Emitter starting in Cooling.
func NewEmitter(cooldown, active float64) *Emitter {
	return &Emitter{State: Cooling, CooldownTime: cooldown, ActiveTime: active, timer: cooldown}
}

// Tick advances the emitter by dt. Returns true on the tick where it
// transitions from Active back to Cooling (the moment damage should apply).
func (e *Emitter) Tick(dt float64) (fired bool) {
	e.timer -= dt
	if e.timer > 0 {
		return false
	}
	switch e.State {
	case Cooling:
		e.State = Active
		e.timer = e.ActiveTime
		return false
	case Active:
		e.State = Cooling
		e.timer = e.CooldownTime
		return true
	}
	return false
}
