package hashtable

// FieldIndex maps an interned string key to a stable, append-only
// slot offset (§3.3.4: "slots are append-only, never renumbered").
// Classes use it for field offsets, Modules for global variable
// slots. The spec models empty/tombstone as payload sentinels
// (-2/-1); this facade keeps that external contract (Get reports
// "no entry" as a bool rather than a magic int) while the underlying
// Table already tracks empty/tombstone/occupied explicitly, which is
// the Go-idiomatic equivalent with the same observable behavior.
type FieldIndex struct {
	t     Table
	count int32 // next slot to hand out; never decreases
}

// NewFieldIndex returns an empty FieldIndex.
func NewFieldIndex() *FieldIndex { return &FieldIndex{} }

// Get returns the slot assigned to k, if any.
func (f *FieldIndex) Get(k Key) (int32, bool) {
	v, ok := f.t.Get(k)
	if !ok {
		return 0, false
	}
	return v.(int32), true
}

// Declare assigns k the next free slot if it has none yet, and
// returns (slot, wasNew). Slots are handed out in ascending order and
// never reused even if the key is later deleted, satisfying the
// append-only invariant.
func (f *FieldIndex) Declare(k Key) (int32, bool) {
	if slot, ok := f.Get(k); ok {
		return slot, false
	}
	slot := f.count
	f.count++
	f.t.Put(k, slot)
	return slot, true
}

// Put forces k to map to slot, used when merging a superclass's
// field index into a subclass's (slots copied verbatim).
func (f *FieldIndex) Put(k Key, slot int32) bool {
	if slot >= f.count {
		f.count = slot + 1
	}
	return f.t.Put(k, slot)
}

func (f *FieldIndex) Del(k Key) bool { return f.t.Del(k) }

func (f *FieldIndex) Contains(k Key) bool { return f.t.Contains(k) }

// Count is the running fieldCount / slot high-water mark (§3.2 Class).
func (f *FieldIndex) Count() int32 { return f.count }

func (f *FieldIndex) Merge(src *FieldIndex) {
	src.t.Each(func(k Key, v interface{}) { f.Put(k, v.(int32)) })
}

func (f *FieldIndex) Each(fn func(k Key, slot int32)) {
	f.t.Each(func(k Key, v interface{}) { fn(k, v.(int32)) })
}

func (f *FieldIndex) GetInterned(hash uint32, equal func(k Key) bool) (Key, bool) {
	return f.t.GetInterned(hash, equal)
}

func (f *FieldIndex) DeleteUnreached(keep func(k Key) bool) { f.t.DeleteUnreached(keep) }

func (f *FieldIndex) Len() int { return f.t.Len() }
