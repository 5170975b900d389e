package hashtable

import "testing"

// intKey is a trivial Key implementation for exercising Table's
// probing/growth/tombstone behavior without pulling in pkg/value.
type intKey int

func (k intKey) Hash() uint32 { return uint32(k) }
func (k intKey) Equal(other Key) bool {
	o, ok := other.(intKey)
	return ok && o == k
}

func TestValueHashTablePutGet(t *testing.T) {
	h := NewValueHashTable()
	if _, ok := h.Get(intKey(1)); ok {
		t.Fatalf("expected miss on empty table")
	}
	h.Put(intKey(1), "one")
	h.Put(intKey(2), "two")
	v, ok := h.Get(intKey(1))
	if !ok || v != "one" {
		t.Errorf("expected (one, true), got (%v, %v)", v, ok)
	}
	if h.Len() != 2 {
		t.Errorf("expected len 2, got %d", h.Len())
	}
}

func TestValueHashTablePutOverwrites(t *testing.T) {
	h := NewValueHashTable()
	h.Put(intKey(1), "one")
	h.Put(intKey(1), "uno")
	v, _ := h.Get(intKey(1))
	if v != "uno" {
		t.Errorf("expected overwrite to stick, got %v", v)
	}
	if h.Len() != 1 {
		t.Errorf("expected len 1 after overwrite, got %d", h.Len())
	}
}

func TestValueHashTableDeleteTombstones(t *testing.T) {
	h := NewValueHashTable()
	h.Put(intKey(1), "one")
	h.Put(intKey(2), "two")
	if !h.Del(intKey(1)) {
		t.Fatalf("expected Del to report the key was present")
	}
	if h.Contains(intKey(1)) {
		t.Errorf("expected key 1 gone after Del")
	}
	if !h.Contains(intKey(2)) {
		t.Errorf("expected key 2 to survive Del of a different key")
	}
	if h.Len() != 1 {
		t.Errorf("expected len 1 after delete, got %d", h.Len())
	}
}

func TestValueHashTableGrowsAndKeepsAllEntries(t *testing.T) {
	h := NewValueHashTable()
	const n = 200
	for i := 0; i < n; i++ {
		h.Put(intKey(i), i*i)
	}
	if h.Len() != n {
		t.Fatalf("expected len %d, got %d", n, h.Len())
	}
	for i := 0; i < n; i++ {
		v, ok := h.Get(intKey(i))
		if !ok || v != i*i {
			t.Fatalf("key %d: got (%v, %v), want (%d, true)", i, v, ok, i*i)
		}
	}
}

func TestValueHashTableMerge(t *testing.T) {
	a := NewValueHashTable()
	a.Put(intKey(1), "a1")
	b := NewValueHashTable()
	b.Put(intKey(2), "b2")
	a.Merge(b)
	if a.Len() != 2 {
		t.Fatalf("expected len 2 after merge, got %d", a.Len())
	}
	if v, _ := a.Get(intKey(2)); v != "b2" {
		t.Errorf("expected merged key to carry over, got %v", v)
	}
}

func TestValueHashTableEachVisitsAllLiveEntries(t *testing.T) {
	h := NewValueHashTable()
	h.Put(intKey(1), "one")
	h.Put(intKey(2), "two")
	h.Del(intKey(1))
	seen := map[int]interface{}{}
	h.Each(func(k Key, v interface{}) {
		seen[int(k.(intKey))] = v
	})
	if len(seen) != 1 {
		t.Fatalf("expected Each to visit 1 live entry, got %d: %v", len(seen), seen)
	}
	if seen[2] != "two" {
		t.Errorf("expected key 2 -> two, got %v", seen[2])
	}
}
