package value

import "github.com/blang-lang/blang/pkg/hashtable"

// ValueHashTableRef and FieldIndexRef alias the generic facades from
// pkg/hashtable so the rest of this package can spell out concrete
// field types (Class.Fields, Module.GlobalNames, Table.Entries)
// without every call site importing pkg/hashtable directly.
type ValueHashTableRef = hashtable.ValueHashTable
type FieldIndexRef = hashtable.FieldIndex

// HashKey returns the string's cached hash. It does not make *String
// a hashtable.Key; StringKey below does that.
func (s *String) HashKey() uint32 { return s.Hash }

// StringKey adapts *String to hashtable.Key; *String can't implement
// Hash() itself without colliding with its cached Hash field, so the
// FieldIndex keys traffic in this thin wrapper, whose Equal compares
// contents through String.ContentEqual.
type StringKey struct{ S *String }

func (k StringKey) Hash() uint32 { return k.S.Hash }

func (k StringKey) Equal(other hashtable.Key) bool {
	o, ok := other.(StringKey)
	if !ok {
		return false
	}
	return k.S.ContentEqual(o.S)
}
