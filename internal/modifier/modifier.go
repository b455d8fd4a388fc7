// Package modifier implements the layered stat calculator with dirty-bit
// caching and expiry (spec component P), grounded line-for-line on
// original_source's ModifierContainer.cpp and StatModifier.h.
package modifier

import "math"

// StatType enumerates the stats a ModifierContainer can track.
type StatType int

const (
	Speed StatType = iota
	Attack
	MaxHP
	Cooldown
	Area
	ProjectileCount
)

// Op is how a StatModifier combines with a stat's base value.
type Op int

const (
	Flat Op = iota
	PercentAdd
	PercentMult
)

// StatModifier is a single stat-altering effect.
type StatModifier struct {
	Type        StatType
	Op          Op
	Value       float64
	SourceID    int32
	ExpiresAt   float64 // simulation time; 0 = permanent
	AllowStack  bool
}

// clampFns holds per-stat floor/ceiling rules. Only Speed has a floor in
// the original; other stats pass through unclamped.
var clampFns = map[StatType]func(float64) float64{
	Speed: func(v float64) float64 {
		if v < 0.1 {
			return 0.1
		}
		return v
	},
}

// Container computes a stat's current value from a base plus a list of
// active modifiers, caching per stat type until marked dirty.
type Container struct {
	base      map[StatType]float64
	modifiers []StatModifier
	cache     map[StatType]float64
	dirty     map[StatType]bool

	// Recomputes counts cache-miss recalculations, for metrics.
	Recomputes int
}

// NewContainer creates a Container seeded with the given base stat values.
func NewContainer(base map[StatType]float64) *Container {
	c := &Container{
		base:  make(map[StatType]float64, len(base)),
		cache: make(map[StatType]float64, len(base)),
		dirty: make(map[StatType]bool, len(base)),
	}
	for k, v := range base {
		c.base[k] = v
		c.dirty[k] = true
	}
	return c
}

// GetStat returns the stat's current value, recomputing if dirty.
func (c *Container) GetStat(t StatType) float64 {
	if c.dirty[t] {
		c.cache[t] = c.calculateStat(t)
		c.dirty[t] = false
	}
	return c.cache[t]
}

func (c *Container) calculateStat(t StatType) float64 {
	base := c.base[t]
	flatSum := 0.0
	percentAddSum := 0.0
	percentMultProduct := 1.0

	for _, m := range c.modifiers {
		if m.Type != t {
			continue
		}
		switch m.Op {
		case Flat:
			flatSum += m.Value
		case PercentAdd:
			percentAddSum += m.Value
		case PercentMult:
			percentMultProduct *= m.Value
		}
	}

	result := (base + flatSum) * (1.0 + percentAddSum) * percentMultProduct
	result = math.Round(result*1000) / 1000

	if clamp, ok := clampFns[t]; ok {
		result = clamp(result)
	}

	c.Recomputes++
	return result
}

// setDirty marks t for recomputation on next GetStat.
func (c *Container) setDirty(t StatType) { c.dirty[t] = true }

// AddModifier appends m. If m.AllowStack is false, any existing
// non-stacking modifier with the same (SourceID, Type) is removed first
// (refresh semantics, not additive stacking).
func (c *Container) AddModifier(m StatModifier) {
	if !m.AllowStack {
		kept := c.modifiers[:0]
		for _, existing := range c.modifiers {
			if existing.SourceID == m.SourceID && existing.Type == m.Type && !existing.AllowStack {
				continue
			}
			kept = append(kept, existing)
		}
		c.modifiers = kept
	}
	c.modifiers = append(c.modifiers, m)
	c.setDirty(m.Type)
}

// RemoveBySource removes every modifier from sourceID, marking each
// affected stat type dirty.
func (c *Container) RemoveBySource(sourceID int32) {
	kept := c.modifiers[:0]
	for _, m := range c.modifiers {
		if m.SourceID == sourceID {
			c.setDirty(m.Type)
			continue
		}
		kept = append(kept, m)
	}
	c.modifiers = kept
}

// RemoveBySourceAndType removes modifiers matching both sourceID and t.
func (c *Container) RemoveBySourceAndType(sourceID int32, t StatType) {
	kept := c.modifiers[:0]
	for _, m := range c.modifiers {
		if m.SourceID == sourceID && m.Type == t {
			c.setDirty(t)
			continue
		}
		kept = append(kept, m)
	}
	c.modifiers = kept
}

// Clear removes every modifier and marks every previously-affected stat
// dirty.
func (c *Container) Clear() {
	for _, m := range c.modifiers {
		c.setDirty(m.Type)
	}
	c.modifiers = nil
}

// Update removes modifiers whose ExpiresAt has passed (0 means permanent,
// never expires), marking their stat types dirty.
func (c *Container) Update(now float64) {
	kept := c.modifiers[:0]
	for _, m := range c.modifiers {
		if m.ExpiresAt > 0 && now >= m.ExpiresAt {
			c.setDirty(m.Type)
			continue
		}
		kept = append(kept, m)
	}
	c.modifiers = kept
}
