package object

import "testing"

func TestAddGetRemove(t *testing.T) {
	m := NewManager()
	m.AddObject(&Object{ID: 1, Type: TypePlayer, HP: 100, MaxHP: 100})

	got, ok := m.Get(1)
	if !ok || got.ID != 1 {
		t.Fatalf("Get(1) = %+v, %v", got, ok)
	}

	m.RemoveObject(1)
	if _, ok := m.Get(1); ok {
		t.Fatal("object still present after RemoveObject")
	}
}

func TestAddDuplicateIDPanics(t *testing.T) {
	m := NewManager()
	m.AddObject(&Object{ID: 1})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate id insert")
		}
	}()
	m.AddObject(&Object{ID: 1})
}

func TestAllObjectsSnapshot(t *testing.T) {
	m := NewManager()
	m.AddObject(&Object{ID: 1})
	m.AddObject(&Object{ID: 2})

	all := m.AllObjects()
	if len(all) != 2 {
		t.Fatalf("AllObjects() len = %d, want 2", len(all))
	}
	if m.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", m.Count())
	}
}
