package spatial

import "testing"

func TestQueryRangeReturnsExactMatches(t *testing.T) {
	// Three objects at (50,50), (150,50), (60,60), cell=100.
	// query_range((50,50), r=20) returns exactly the two at (50,50),(60,60).
	g := New(100)
	positions := map[int32][2]float64{
		1: {50, 50},
		2: {150, 50},
		3: {60, 60},
	}
	for id, p := range positions {
		g.Add(id, p[0], p[1])
	}
	posOf := func(id int32) (float64, float64) { return positions[id][0], positions[id][1] }

	got := g.QueryRange(50, 50, 20, posOf, nil)
	want := map[int32]bool{1: true, 3: true}
	if len(got) != 2 {
		t.Fatalf("QueryRange returned %v, want 2 ids", got)
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("QueryRange returned unexpected id %d", id)
		}
	}
}

func TestAddRemoveUpdate(t *testing.T) {
	g := New(10)
	g.Add(1, 5, 5)
	if g.CellCount() != 1 {
		t.Fatalf("CellCount = %d, want 1", g.CellCount())
	}

	g.Update(1, 25, 25) // crosses cell boundary
	if g.CellCount() != 1 {
		t.Fatalf("CellCount after cross-cell update = %d, want 1 (old cell emptied)", g.CellCount())
	}

	positions := map[int32][2]float64{1: {25, 25}}
	posOf := func(id int32) (float64, float64) { return positions[id][0], positions[id][1] }
	got := g.QueryRange(25, 25, 1, posOf, nil)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("after update, QueryRange = %v, want [1]", got)
	}

	g.Remove(1)
	if g.CellCount() != 0 {
		t.Fatalf("CellCount after Remove = %d, want 0", g.CellCount())
	}
}

func TestUpdateWithinSameCellIsNoop(t *testing.T) {
	g := New(100)
	g.Add(1, 10, 10)
	g.Update(1, 11, 11) // same cell, should not churn the bucket
	if g.CellCount() != 1 {
		t.Fatalf("CellCount = %d, want 1", g.CellCount())
	}
}

func TestRebuild(t *testing.T) {
	g := New(50)
	g.Add(1, 1, 1)
	g.Rebuild(map[int32][2]float64{2: {200, 200}})

	positions := map[int32][2]float64{2: {200, 200}}
	posOf := func(id int32) (float64, float64) { return positions[id][0], positions[id][1] }
	got := g.QueryRange(200, 200, 1, posOf, nil)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("after Rebuild, QueryRange = %v, want [2]", got)
	}
}
