package value

// Each heap kind is a plain payload struct; pkg/gc's allocator wraps
// one in an *Object header (class, kind, mark bit, live-list link)
// and returns that *Object, which is what every Value of KindObj
// actually points at. Keeping the payloads separate from Object
// mirrors the teacher's ClassDefinition/Instance split in
// pkg/bytecode and pkg/vm, generalized to the full kind list of §3.2.

// String is an immutable byte sequence with a cached FNV-1a hash and
// an interned bit (§3.2, §4.1). Interned strings compare by pointer
// identity; non-interned strings compare by content only.
type String struct {
	Bytes    []byte
	Hash     uint32
	Interned bool
	// Owner is the Object header wrapping this String; set by
	// NewStringObject so the intern pool and class/field-index keys
	// can reach from a bare *String back to its mark bit.
	Owner *Object
}

func NewStringObject(s *String) *Object {
	o := newObject(ObjString, s)
	s.Owner = o
	return o
}

func (s *String) Text() string { return string(s.Bytes) }

func (s *String) ContentEqual(o *String) bool {
	if s.Interned && o.Interned {
		return s == o
	}
	return string(s.Bytes) == string(o.Bytes)
}

// NativeRegistry is the table a loaded native extension exports:
// (className, methodName, fn) triples, className == "" meaning a
// module-level function (§4.7 step 4, §6 "Native extension ABI").
type NativeRegistry struct {
	Entries []NativeRegistryEntry
}

type NativeRegistryEntry struct {
	ClassName  string
	MethodName string
	Fn         NativeFn
}

// NativeFn is a host function bound into the VM: it receives the
// interpreter's stack-slot API and reports success or exception, per
// §4.8's embedding API shape. The concrete api type lives in pkg/vm;
// it is threaded through as interface{} here to avoid a dependency
// from pkg/value onto pkg/vm.
type NativeFn func(api interface{}) bool

// Module is a loaded compilation unit (§3.2): a dotted, interned
// name, its resolved path, a dense globals vector indexed through
// GlobalNames, and an optional attached native registry.
type Module struct {
	Name        *String
	Path        string
	GlobalNames *FieldIndexRef
	Globals     []Value
	Native      *NativeRegistry
}

func NewModuleObject(m *Module) *Object { return newObject(ObjModule, m) }

// Prototype is the signature shared by script Functions and Natives
// (§3.2).
type Prototype struct {
	Module       *Object // back-reference to the owning Module
	Name         string
	ArgCount     int
	Vararg       bool
	Defaults     []Value
	UpvalueCount int
	// IsGenerator marks a body containing a `yield` (§4.6): calling it
	// allocates a suspended Generator instead of running the body
	// immediately.
	IsGenerator bool
}

// Code is a compiled function body: raw bytecode, its constant pool,
// and an (optional) line-number table, omitted entirely from the
// serialized binary form per §4.5.
type Code struct {
	Bytes     []byte
	Constants []Value
	Lines     []int32 // Lines[i] is the source line of Bytes[i]'s instruction start, or 0
}

// Function is a compiled script function (§3.2): its Prototype, the
// declared maximum stack usage the compiler computed, and its Code.
type Function struct {
	Proto         Prototype
	MaxStackUsage int
	Code          Code
}

func NewFunctionObject(f *Function) *Object { return newObject(ObjFunction, f) }

// Native is a host-implemented function: a Prototype plus the Go
// callback invoked in its place.
type Native struct {
	Proto         Prototype
	Fn            NativeFn
	DefiningClass *Object // *Class, set by NAT_METHOD; nil for a module-level native
}

func NewNativeObject(n *Native) *Object { return newObject(ObjNative, n) }

// Closure pairs a Function with the upvalues it captured at creation
// time, one slot per upvalue declared in the function's prototype.
type Closure struct {
	Fn            *Object   // *Function
	Upvalues      []*Object // *Upvalue, one per Fn.Proto.UpvalueCount
	DefiningClass *Object   // *Class, set by DEF_METHOD; nil for a plain function closure
}

func NewClosureObject(c *Closure) *Object { return newObject(ObjClosure, c) }

// Upvalue is either Open (still pointing into a live stack slot) or
// Closed (holds its own copy of the value), per §3.2/§9's sum-type
// description. StackSlot is meaningful only while Closed == false.
type Upvalue struct {
	Closed    bool
	StackSlot int // absolute index into the VM's value stack
	Value     Value
	// Next chains the VM's open-upvalue list, kept sorted by
	// descending stack address (§3.3.6) so closing on return is a
	// single prefix sweep.
	Next *Object // *Upvalue, or nil
}

func NewUpvalueObject(u *Upvalue) *Object { return newObject(ObjUpvalue, u) }

// Class is a user-defined or built-in class: its name, optional
// superclass, method table, and field index (§3.2).
type Class struct {
	Name       *String
	Super      *Object // *Class, nil only for the bootstrap Object class
	Methods    *ValueHashTableRef
	Fields     *FieldIndexRef
	IsSelfRoot bool // true only for the bootstrap Class object (§9 "Class is its own class")
}

func NewClassObject(c *Class) *Object { return newObject(ObjClass, c) }

// Instance is a user object: a back-reference to its class and a
// fields vector indexed through the class's FieldIndex, grown on
// first write per slot (§3.2, §3.3.3).
type Instance struct {
	Fields []Value
}

func NewInstanceObject(i *Instance) *Object { return newObject(ObjInstance, i) }

// List is a growable Value vector.
type List struct {
	Elems []Value
}

func NewListObject(l *List) *Object { return newObject(ObjList, l) }

// Tuple is a fixed-size Value vector; the VM caches a single empty
// Tuple as a per-VM singleton (§3.2, and a GC root per §4.2 item 7).
type Tuple struct {
	Elems []Value
}

func NewTupleObject(t *Tuple) *Object { return newObject(ObjTuple, t) }

// Table is the open-addressing Value -> Value map exposed to user
// code (§3.2, §4.3); the hash table machinery itself lives in
// pkg/hashtable, this just owns one instance of it.
type Table struct {
	Entries *ValueHashTableRef
}

func NewTableObject(t *Table) *Object { return newObject(ObjTable, t) }

// BoundMethod pairs a receiver with the method Object (a Closure or a
// Native) looked up on its class.
type BoundMethod struct {
	Receiver Value
	Method   *Object
}

func NewBoundMethodObject(b *BoundMethod) *Object { return newObject(ObjBoundMethod, b) }

// StackTraceFrame is one captured frame (§3.2).
type StackTraceFrame struct {
	Line     int
	Module   string
	Function string
}

// StackTrace is the ordered frame sequence captured while an
// exception propagates; re-raises append only if depth increased
// (§3.2, §3.3.7).
type StackTrace struct {
	Frames          []StackTraceFrame
	LastTracedFrame int
}

func NewStackTraceObject(s *StackTrace) *Object { return newObject(ObjStackTrace, s) }

// GeneratorState is the generator's run state (§3.2).
type GeneratorState int

const (
	GeneratorStarted GeneratorState = iota
	GeneratorSuspended
	GeneratorRunning
	GeneratorDone
)

// Generator is a suspended frame: everything needed to resume
// execution where a `yield` left off (§3.2, §4.6 "Generators").
type Generator struct {
	Closure        *Object // *Closure
	State          GeneratorState
	SavedIP        int
	LastYielded    Value
	SavedHandlers  []byte // opaque, owned/interpreted by pkg/vm
	StackBuf       []Value
	SavedStackTop  int
}

func NewGeneratorObject(g *Generator) *Object { return newObject(ObjGenerator, g) }

// Userdata is an opaque host buffer with an optional collector-run
// finalizer (§3.2).
type Userdata struct {
	Data      []byte
	Finalizer func(*Userdata)
}

func NewUserdataObject(u *Userdata) *Object { return newObject(ObjUserdata, u) }
