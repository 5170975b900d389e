package value

// Builtins holds the pre-registered class pointers §4.1's classOf
// needs for primitive kinds, and the handful of always-rooted
// singletons listed in §4.2's root set (items 6 and 7). pkg/vm owns
// the one instance of this per VM and populates it during bootstrap
// (pkg/vm/bootstrap.go); it is threaded into classOf explicitly
// rather than kept as package state so multiple VMs never share it.
type Builtins struct {
	NumClass    *Object
	BoolClass   *Object
	NullClass   *Object
	StringClass *Object
	FunctionClass *Object
	EmptyTuple  *Object
}

// ClassOf implements §4.1: primitives return their pre-registered
// class, handles return NullClass (they carry no user-visible type),
// heap values return their header's class (a String whose header
// class is still nil, such as a compiled constant, reports StringClass).
func ClassOf(v Value, b *Builtins) *Object {
	switch v.kind {
	case KindNum:
		return b.NumClass
	case KindBool:
		return b.BoolClass
	case KindNull:
		return b.NullClass
	case KindHandle:
		return b.NullClass
	case KindObj:
		if v.obj.Class == nil && v.obj.Kind == ObjString {
			return b.StringClass
		}
		return v.obj.Class
	default:
		return nil
	}
}

// IsInstance walks classOf(v)'s super chain looking for c (§4.1).
func IsInstance(v Value, c *Object, b *Builtins) bool {
	class := ClassOf(v, b)
	for class != nil {
		if class == c {
			return true
		}
		super := class.AsClass().Super
		if super == nil {
			return false
		}
		class = super
	}
	return false
}
