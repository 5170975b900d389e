package value

// ObjKind tags the concrete shape of a heap Object, per §3.2's kind
// list.
type ObjKind byte

const (
	ObjString ObjKind = iota
	ObjModule
	ObjFunction
	ObjNative
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjList
	ObjTuple
	ObjTable
	ObjBoundMethod
	ObjStackTrace
	ObjGenerator
	ObjUserdata
)

func (k ObjKind) String() string {
	switch k {
	case ObjString:
		return "String"
	case ObjModule:
		return "Module"
	case ObjFunction:
		return "Function"
	case ObjNative:
		return "Native"
	case ObjClosure:
		return "Closure"
	case ObjUpvalue:
		return "Upvalue"
	case ObjClass:
		return "Class"
	case ObjInstance:
		return "Instance"
	case ObjList:
		return "List"
	case ObjTuple:
		return "Tuple"
	case ObjTable:
		return "Table"
	case ObjBoundMethod:
		return "BoundMethod"
	case ObjStackTrace:
		return "StackTrace"
	case ObjGenerator:
		return "Generator"
	case ObjUserdata:
		return "Userdata"
	default:
		return "?"
	}
}

// Object is the header every heap value carries (§3.2): the class it
// is an instance of, its concrete kind, the collector's mark bit, and
// the intrusive link threading the live-object list the sweep phase
// walks. Concrete kinds embed Object as their first field and store
// their own payload alongside it; a type switch on Kind recovers the
// concrete struct via the small asFoo helpers below, which keeps the
// rest of the package (and pkg/gc's mark/sweep) working against *Object
// without needing Go interfaces or reflection on the hot path.
type Object struct {
	Class   *Object // *Class, nil only for not-yet-bootstrapped heap values
	Kind    ObjKind
	Reached bool
	Next    *Object

	// id is a per-process allocation counter stamped by gcAlloc, used
	// as an identity hash for heap values that don't carry a content
	// hash of their own (everything but String).
	id uint32

	payload interface{}
}

func newObject(kind ObjKind, payload interface{}) *Object {
	return &Object{Kind: kind, payload: payload}
}

func (o *Object) asString() *String {
	return o.payload.(*String)
}

func (o *Object) AsString() *String { return o.asString() }
func (o *Object) AsModule() *Module { return o.payload.(*Module) }
func (o *Object) AsFunction() *Function {
	return o.payload.(*Function)
}
func (o *Object) AsNative() *Native           { return o.payload.(*Native) }
func (o *Object) AsClosure() *Closure         { return o.payload.(*Closure) }
func (o *Object) AsUpvalue() *Upvalue         { return o.payload.(*Upvalue) }
func (o *Object) AsClass() *Class             { return o.payload.(*Class) }
func (o *Object) AsInstance() *Instance       { return o.payload.(*Instance) }
func (o *Object) AsList() *List               { return o.payload.(*List) }
func (o *Object) AsTuple() *Tuple             { return o.payload.(*Tuple) }
func (o *Object) AsTable() *Table             { return o.payload.(*Table) }
func (o *Object) AsBoundMethod() *BoundMethod { return o.payload.(*BoundMethod) }
func (o *Object) AsStackTrace() *StackTrace   { return o.payload.(*StackTrace) }
func (o *Object) AsGenerator() *Generator     { return o.payload.(*Generator) }
func (o *Object) AsUserdata() *Userdata       { return o.payload.(*Userdata) }

// SetID stamps the allocation-order identity used for hashing
// non-string objects and handles; only pkg/gc's allocator calls this.
func (o *Object) SetID(id uint32) { o.id = id }
