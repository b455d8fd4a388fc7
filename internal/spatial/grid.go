// Package spatial implements the uniform-grid range index over live
// simulation objects (spec component M). A small, self-contained index with
// no I/O or serialization surface; no pack library models a 2D uniform
// spatial grid for a game simulation, so this stays plain Go over maps.
package spatial

import "math"

type cellKey struct{ cx, cy int32 }

func cellOf(x, y, cellSize float64) cellKey {
	return cellKey{
		cx: int32(math.Floor(x / cellSize)),
		cy: int32(math.Floor(y / cellSize)),
	}
}

// Grid is a uniform grid of square cells holding object ids.
type Grid struct {
	cellSize float64
	cells    map[cellKey]map[int32]struct{}
	posOf    map[int32]cellKey // last known cell per object, for O(1) remove/update
}

// New creates a Grid with the given cell size.
func New(cellSize float64) *Grid {
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[cellKey]map[int32]struct{}),
		posOf:    make(map[int32]cellKey),
	}
}

// Add inserts id at position (x,y).
func (g *Grid) Add(id int32, x, y float64) {
	key := cellOf(x, y, g.cellSize)
	g.insert(key, id)
	g.posOf[id] = key
}

func (g *Grid) insert(key cellKey, id int32) {
	bucket, ok := g.cells[key]
	if !ok {
		bucket = make(map[int32]struct{})
		g.cells[key] = bucket
	}
	bucket[id] = struct{}{}
}

// Remove deletes id from the grid entirely.
func (g *Grid) Remove(id int32) {
	key, ok := g.posOf[id]
	if !ok {
		return
	}
	g.removeFromCell(key, id)
	delete(g.posOf, id)
}

func (g *Grid) removeFromCell(key cellKey, id int32) {
	bucket, ok := g.cells[key]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(g.cells, key)
	}
}

// Update moves id from its old cell to the cell containing (newX, newY),
// a no-op if the object did not cross a cell boundary.
func (g *Grid) Update(id int32, newX, newY float64) {
	newKey := cellOf(newX, newY, g.cellSize)
	oldKey, ok := g.posOf[id]
	if ok && oldKey == newKey {
		return
	}
	if ok {
		g.removeFromCell(oldKey, id)
	}
	g.insert(newKey, id)
	g.posOf[id] = newKey
}

// QueryRange appends to out every object id within radius of (x,y),
// visiting only the cells intersecting the circle's bounding box.
func (g *Grid) QueryRange(x, y, radius float64, posOf func(int32) (float64, float64), out []int32) []int32 {
	minKey := cellOf(x-radius, y-radius, g.cellSize)
	maxKey := cellOf(x+radius, y+radius, g.cellSize)
	r2 := radius * radius

	for cx := minKey.cx; cx <= maxKey.cx; cx++ {
		for cy := minKey.cy; cy <= maxKey.cy; cy++ {
			bucket, ok := g.cells[cellKey{cx, cy}]
			if !ok {
				continue
			}
			for id := range bucket {
				ox, oy := posOf(id)
				dx, dy := ox-x, oy-y
				if dx*dx+dy*dy <= r2 {
					out = append(out, id)
				}
			}
		}
	}
	return out
}

// Rebuild clears the grid and reinserts every (id, x, y) triple, used on
// room reset and in tests.
func (g *Grid) Rebuild(objects map[int32][2]float64) {
	g.cells = make(map[cellKey]map[int32]struct{})
	g.posOf = make(map[int32]cellKey)
	for id, pos := range objects {
		g.Add(id, pos[0], pos[1])
	}
}

// CellCount reports the number of non-empty cells, for tests/diagnostics.
func (g *Grid) CellCount() int { return len(g.cells) }
