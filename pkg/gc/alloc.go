package gc

import (
	"github.com/blang-lang/blang/pkg/hashtable"
	"github.com/blang-lang/blang/pkg/value"
)

// alloc charges size bytes against the allocation counter (possibly
// triggering a collection), links o into the live-object list, and
// stamps its class. This is gcAlloc's single funnel point (§4.2):
// every New*/CopyString call below goes through it.
func (h *Heap) alloc(o *value.Object, class *value.Object, size int64) *value.Object {
	h.gcAlloc(size)
	o.Class = class
	return h.link(o)
}

// AllocateString returns a fresh, non-interned, mutable string buffer
// (§4.1 "allocateString"), used by string builders and string-format
// natives. It is never looked up in, or inserted into, the intern
// pool.
func (h *Heap) AllocateString(bytes []byte, class *value.Object) *value.Object {
	s := &value.String{Bytes: bytes, Hash: fnv1a(bytes), Interned: false}
	return h.alloc(value.NewStringObject(s), class, int64(len(bytes))+32)
}

// CopyString implements §4.1's copyString: looks up the intern pool
// by FNV-1a hash, returning the existing String object on a hit;
// on a miss it allocates a new interned String and inserts it.
// Transitioning a string from non-interned to interned after its
// content has been observed is never done by this package — callers
// that need an interned constant always go through CopyString, never
// AllocateString-then-mutate.
func (h *Heap) CopyString(bytes []byte, class *value.Object) *value.Object {
	hash := fnv1a(bytes)
	if existing, ok := h.lookupInterned(bytes, hash); ok {
		return existing
	}
	s := &value.String{Bytes: append([]byte(nil), bytes...), Hash: hash, Interned: true}
	obj := h.alloc(value.NewStringObject(s), class, int64(len(bytes))+32)
	h.intern.Put(value.StringKey{S: s}, obj)
	return obj
}

func (h *Heap) lookupInterned(bytes []byte, hash uint32) (*value.Object, bool) {
	candidate := &value.String{Bytes: bytes}
	k, ok := h.intern.GetInterned(hash, func(k hashtable.Key) bool {
		return k.(value.StringKey).S.ContentEqual(candidate)
	})
	if !ok {
		return nil, false
	}
	return k.(value.StringKey).S.Owner, true
}

func (h *Heap) AllocateModule(name *value.Object, path string, class *value.Object) *value.Object {
	m := &value.Module{
		Name:        name.AsString(),
		Path:        path,
		GlobalNames: hashtable.NewFieldIndex(),
	}
	return h.alloc(value.NewModuleObject(m), class, 256)
}

func (h *Heap) AllocateFunction(f *value.Function, class *value.Object) *value.Object {
	size := int64(len(f.Code.Bytes)) + int64(len(f.Code.Constants))*16 + 64
	return h.alloc(value.NewFunctionObject(f), class, size)
}

func (h *Heap) AllocateNative(n *value.Native, class *value.Object) *value.Object {
	return h.alloc(value.NewNativeObject(n), class, 64)
}

func (h *Heap) AllocateClosure(fn *value.Object, upvalues []*value.Object, class *value.Object) *value.Object {
	c := &value.Closure{Fn: fn, Upvalues: upvalues}
	return h.alloc(value.NewClosureObject(c), class, int64(len(upvalues))*8+32)
}

func (h *Heap) AllocateUpvalue(stackSlot int, class *value.Object) *value.Object {
	u := &value.Upvalue{StackSlot: stackSlot}
	return h.alloc(value.NewUpvalueObject(u), class, 32)
}

func (h *Heap) AllocateClass(name *value.Object, super *value.Object, class *value.Object) *value.Object {
	c := &value.Class{
		Name:    name.AsString(),
		Super:   super,
		Methods: hashtable.NewValueHashTable(),
		Fields:  hashtable.NewFieldIndex(),
	}
	return h.alloc(value.NewClassObject(c), class, 128)
}

func (h *Heap) AllocateInstance(class *value.Object) *value.Object {
	i := &value.Instance{}
	return h.alloc(value.NewInstanceObject(i), class, 32)
}

func (h *Heap) AllocateList(class *value.Object) *value.Object {
	return h.alloc(value.NewListObject(&value.List{}), class, 32)
}

func (h *Heap) AllocateTuple(elems []value.Value, class *value.Object) *value.Object {
	t := &value.Tuple{Elems: elems}
	return h.alloc(value.NewTupleObject(t), class, int64(len(elems))*16+16)
}

func (h *Heap) AllocateTable(class *value.Object) *value.Object {
	t := &value.Table{Entries: hashtable.NewValueHashTable()}
	return h.alloc(value.NewTableObject(t), class, 64)
}

func (h *Heap) AllocateBoundMethod(recv value.Value, method *value.Object, class *value.Object) *value.Object {
	b := &value.BoundMethod{Receiver: recv, Method: method}
	return h.alloc(value.NewBoundMethodObject(b), class, 32)
}

func (h *Heap) AllocateStackTrace(class *value.Object) *value.Object {
	return h.alloc(value.NewStackTraceObject(&value.StackTrace{}), class, 64)
}

func (h *Heap) AllocateGenerator(closure *value.Object, class *value.Object) *value.Object {
	g := &value.Generator{Closure: closure, State: value.GeneratorStarted}
	return h.alloc(value.NewGeneratorObject(g), class, 256)
}

func (h *Heap) AllocateUserdata(size int, finalizer func(*value.Userdata), class *value.Object) *value.Object {
	u := &value.Userdata{Data: make([]byte, size), Finalizer: finalizer}
	return h.alloc(value.NewUserdataObject(u), class, int64(size)+16)
}

// PatchClass walks the live-object list and assigns class to every
// object of kind whose header class is still nil — used once at the
// end of bootstrap to retroactively fix up the String and Function
// objects allocated before their classes existed (§3.3.1, §4.8).
func (h *Heap) PatchClass(kind value.ObjKind, class *value.Object) {
	for o := h.objects; o != nil; o = o.Next {
		if o.Kind == kind && o.Class == nil {
			o.Class = class
		}
	}
}
