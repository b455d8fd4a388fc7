package dbpool

import (
	"path/filepath"
	"testing"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := Open(filepath.Join(t.TempDir(), "state.db"), size)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestOpenCreatesSchema(t *testing.T) {
	p := newTestPool(t, 2)
	db, ok := p.Acquire()
	if !ok {
		t.Fatal("Acquire failed on a fresh pool")
	}
	defer p.Release()

	if _, err := db.Exec(`INSERT INTO user_game_data (user_id, points) VALUES (1, 100)`); err != nil {
		t.Fatalf("insert into user_game_data: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO user_skills (user_id, skill_id, level) VALUES (1, 7, 2)`); err != nil {
		t.Fatalf("insert into user_skills: %v", err)
	}
}

func TestAcquireReturnsFalseWhenExhausted(t *testing.T) {
	p := newTestPool(t, 1)

	if _, ok := p.Acquire(); !ok {
		t.Fatal("first Acquire should succeed")
	}
	if _, ok := p.Acquire(); ok {
		t.Fatal("second Acquire on a size-1 pool should report exhaustion, not block")
	}
}

func TestReleaseFreesASlotForReuse(t *testing.T) {
	p := newTestPool(t, 1)

	if _, ok := p.Acquire(); !ok {
		t.Fatal("first Acquire should succeed")
	}
	p.Release()

	if _, ok := p.Acquire(); !ok {
		t.Fatal("Acquire after Release should succeed")
	}
}
