// Package value implements Blang's tagged Value union and the heap
// object model it points into (§3.1, §3.2, §4.1).
//
// Go has no union types and no safe NaN-boxing without `unsafe`
// aliasing games that would fight the garbage collector, so Value is
// a small tagged struct rather than a true NaN-box — the Open
// Question in the spec's design notes explicitly allows a typed
// target to model the class pointer as an optional reference instead
// of a bit-packed float; the same reasoning extends to the value
// representation itself. See DESIGN.md, Component A.
package value

import (
	"math"

	"github.com/blang-lang/blang/pkg/hashtable"
)

// Kind tags the payload a Value currently holds.
type Kind byte

const (
	KindNull Kind = iota
	KindBool
	KindNum
	KindHandle
	KindObj
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNum:
		return "num"
	case KindHandle:
		return "handle"
	case KindObj:
		return "obj"
	default:
		return "unknown"
	}
}

// Value is the tagged union described in §3.1: a 64-bit float, a
// bool, null, an opaque non-GC host Handle, or a pointer to a heap
// Object.
type Value struct {
	kind   Kind
	num    float64
	b      bool
	handle interface{}
	obj    *Object
}

// Null is the singleton null value.
var Null = Value{kind: KindNull}

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Num wraps a float64. -0.0 is stored as given; hashing canonicalizes
// it to 0.0 per §9, equality does not (IEEE value equality treats
// -0.0 == 0.0 already).
func Num(f float64) Value { return Value{kind: KindNum, num: f} }

// Handle wraps an opaque, non-garbage-collected host pointer.
func Handle(h interface{}) Value { return Value{kind: KindHandle, handle: h} }

// FromObject wraps a heap object pointer.
func FromObject(o *Object) Value { return Value{kind: KindObj, obj: o} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsNum() bool    { return v.kind == KindNum }
func (v Value) IsHandle() bool { return v.kind == KindHandle }
func (v Value) IsObj() bool    { return v.kind == KindObj }

func (v Value) AsBool() bool          { return v.b }
func (v Value) AsNum() float64        { return v.num }
func (v Value) AsHandle() interface{} { return v.handle }
func (v Value) AsObject() *Object     { return v.obj }

func (v Value) Is(kind ObjKind) bool { return v.kind == KindObj && v.obj.Kind == kind }

// Truthy implements Blang's boolean-coercion rule: null and false are
// falsy, everything else (including 0 and "") is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	default:
		return true
	}
}

// SameAs implements the primitive-level equality of §3.1: numeric by
// IEEE value (so NaN != NaN), bool/null by tag, handles and heap
// references by identity. User __eq__ overload dispatch happens one
// layer up, in the interpreter, which falls back to this for the
// cases it doesn't intercept.
func (v Value) SameAs(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNum:
		return v.num == other.num
	case KindHandle:
		return v.handle == other.handle
	case KindObj:
		return v.obj == other.obj
	default:
		return false
	}
}

// Hash implements hashtable.Key for Value so ValueHashTable can key
// user-level Table objects directly on it. Only the kinds the
// language permits as table keys without a user __hash__ override are
// meaningful here; the interpreter rejects NaN and dispatches
// user-defined __hash__ before ever calling this for class instances.
func (v Value) Hash() uint32 {
	switch v.kind {
	case KindNull:
		return 0x9e3779b9
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindNum:
		f := v.num
		if f == 0 {
			f = 0 // canonicalize -0.0 to 0.0 per §9
		}
		bits := math.Float64bits(f)
		return uint32(bits) ^ uint32(bits>>32)
	case KindHandle:
		return hashPointer(v.handle)
	case KindObj:
		if v.obj.Kind == ObjString {
			return v.obj.asString().Hash
		}
		return hashPointer(v.obj)
	default:
		return 0
	}
}

// Equal implements hashtable.Key so Value can key a ValueHashTable.
func (v Value) Equal(other hashtable.Key) bool {
	ov, ok := other.(Value)
	if !ok {
		return false
	}
	if v.kind == KindObj && ov.kind == KindObj && v.obj.Kind == ObjString && ov.obj.Kind == ObjString {
		return v.obj.asString().ContentEqual(ov.obj.asString())
	}
	return v.SameAs(ov)
}

func hashPointer(p interface{}) uint32 {
	// identity hash for handles/non-string objects: derived from the
	// pointer's numeric address via fmt-free bit tricks would need
	// unsafe; a stable per-process counter assigned on allocation is
	// simpler and is what gcAlloc stamps into Object.id.
	if o, ok := p.(*Object); ok {
		return o.id
	}
	return 0
}
