package hashtable

// ValueHashTable is the Value -> Value map backing user-level Table
// objects (§4.3). It is a typed facade over Table: keys and values
// are opaque Key/interface{} here so this package never imports
// pkg/value, which in turn implements Key for the concrete Value
// type. That keeps the dependency one-directional.
type ValueHashTable struct {
	t Table
}

// NewValueHashTable returns an empty ValueHashTable.
func NewValueHashTable() *ValueHashTable { return &ValueHashTable{} }

func (h *ValueHashTable) Len() int { return h.t.Len() }

func (h *ValueHashTable) Get(k Key) (interface{}, bool) { return h.t.Get(k) }

func (h *ValueHashTable) Put(k Key, v interface{}) bool { return h.t.Put(k, v) }

func (h *ValueHashTable) Del(k Key) bool { return h.t.Del(k) }

func (h *ValueHashTable) Contains(k Key) bool { return h.t.Contains(k) }

func (h *ValueHashTable) Merge(src *ValueHashTable) { h.t.Merge(&src.t) }

func (h *ValueHashTable) Each(fn func(k Key, v interface{})) { h.t.Each(fn) }
