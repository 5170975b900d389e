// Package hashtable implements the open-addressing table shared by
// Blang's two keyed collections: the general value-to-value Table
// objects exposed to user code, and the field/global index classes
// and modules use to give names stable, append-only slot numbers.
//
// Both are thin typed facades (ValueHashTable, FieldIndex) over the
// same probing/growth core (Table) defined here, mirroring the way
// the teacher keeps a single map-shaped symbol table
// (pkg/compiler.Compiler.symbols) and reuses its resolution logic
// across locals, globals and upvalues.
package hashtable

// Key is implemented by anything usable as a table key: a hash for
// bucket selection and an equality test against another Key of the
// same concrete kind. value.Value and value.StringKey both implement it.
type Key interface {
	Hash() uint32
	Equal(other Key) bool
}

type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
	slotTombstone
)

type entry struct {
	key   Key
	value interface{}
	state slotState
}

// Table is linear-probed, uses tombstone deletion, and grows
// (doubling) once the load factor would exceed 75%; capacity is
// always a power of two so the bucket index is hash(key) & (cap-1).
type Table struct {
	entries []entry
	count   int // occupied slots, excludes tombstones
	live    int // occupied + tombstone slots, drives growth
}

const initialCapacity = 8

// New returns an empty Table. The zero value is also usable directly.
func New() *Table { return &Table{} }

// Len reports the number of live (non-tombstone) entries.
func (t *Table) Len() int { return t.count }

func (t *Table) find(k Key) (int, bool) {
	mask := uint32(len(t.entries) - 1)
	i := k.Hash() & mask
	firstTombstone := -1
	for {
		e := &t.entries[i]
		switch e.state {
		case slotEmpty:
			if firstTombstone >= 0 {
				return firstTombstone, false
			}
			return int(i), false
		case slotTombstone:
			if firstTombstone < 0 {
				firstTombstone = int(i)
			}
		case slotOccupied:
			if e.key.Equal(k) {
				return int(i), true
			}
		}
		i = (i + 1) & mask
	}
}

// Get returns the value stored for k, if any.
func (t *Table) Get(k Key) (interface{}, bool) {
	if len(t.entries) == 0 {
		return nil, false
	}
	idx, found := t.find(k)
	if !found {
		return nil, false
	}
	return t.entries[idx].value, true
}

// Put inserts or overwrites k -> v. The returned bool reports whether
// this was a new insertion, matching the "was a new insertion"
// contract every put in the spec requires.
func (t *Table) Put(k Key, v interface{}) bool {
	if len(t.entries) == 0 || (t.live+1)*4 > len(t.entries)*3 {
		t.grow()
	}
	idx, found := t.find(k)
	e := &t.entries[idx]
	if e.state == slotEmpty {
		t.live++
	}
	if !found {
		t.count++
	}
	e.key, e.value, e.state = k, v, slotOccupied
	return !found
}

func (t *Table) grow() {
	newCap := initialCapacity
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count, t.live = 0, 0
	for _, e := range old {
		if e.state == slotOccupied {
			idx, _ := t.find(e.key)
			t.entries[idx] = entry{key: e.key, value: e.value, state: slotOccupied}
			t.count++
			t.live++
		}
	}
}

// Del removes k, leaving a tombstone behind so later probes still
// reach entries that were inserted past it.
func (t *Table) Del(k Key) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx, found := t.find(k)
	if !found {
		return false
	}
	t.entries[idx] = entry{state: slotTombstone}
	t.count--
	return true
}

// Contains reports whether k has a live entry.
func (t *Table) Contains(k Key) bool {
	_, ok := t.Get(k)
	return ok
}

// Merge copies every live entry of src into t, overwriting existing
// keys on collision.
func (t *Table) Merge(src *Table) {
	src.Each(func(k Key, v interface{}) { t.Put(k, v) })
}

// Each calls fn once per live entry, in slot order. The GC mark phase
// uses this to trace table contents without exposing the slot array.
func (t *Table) Each(fn func(k Key, v interface{})) {
	for _, e := range t.entries {
		if e.state == slotOccupied {
			fn(e.key, e.value)
		}
	}
}

// GetInterned probes for an entry by precomputed hash and an equality
// callback, without requiring a materialized Key — the string intern
// pool uses this to test whether a candidate byte sequence already has
// an interned String before allocating one.
func (t *Table) GetInterned(hash uint32, equal func(k Key) bool) (Key, bool) {
	if len(t.entries) == 0 {
		return nil, false
	}
	mask := uint32(len(t.entries) - 1)
	i := hash & mask
	for {
		e := &t.entries[i]
		switch e.state {
		case slotEmpty:
			return nil, false
		case slotOccupied:
			if e.key.Hash() == hash && equal(e.key) {
				return e.key, true
			}
		}
		i = (i + 1) & mask
	}
}

// DeleteUnreached removes every live entry whose key fails keep,
// leaving a tombstone behind. Used by the GC's weak intern-pool
// cleanup sub-phase (entries whose string was not reached die here),
// driven from pkg/gc rather than duplicated into it.
func (t *Table) DeleteUnreached(keep func(k Key) bool) {
	for i := range t.entries {
		if t.entries[i].state == slotOccupied && !keep(t.entries[i].key) {
			t.entries[i] = entry{state: slotTombstone}
			t.count--
		}
	}
}
