// Core class bootstrap (§4.8). Grounded on
// kristofer-smog/pkg/vm/primitives.go's pattern of binding a Go
// closure straight into a class's method table (no intermediate
// source-level declaration); generalized here to build the handful of
// core classes the root Class/Object pair themselves, rather than by
// compiling a core-library source module, since this VM's bootstrap
// has no such module to read (see DESIGN.md, Component H).
package vm

import (
	"fmt"

	"github.com/blang-lang/blang/pkg/value"
)

// Classes holds every core and exception class allocated during
// bootstrap, rooted for the collector via roots() and consulted
// throughout pkg/vm instead of re-resolving them by name each time.
type Classes struct {
	Object   *value.Object
	Class    *value.Object
	Function *value.Object
	Module   *value.Object

	Number  *value.Object
	Boolean *value.Object
	Null    *value.Object
	String  *value.Object
	List    *value.Object
	Tuple   *value.Object
	Table   *value.Object

	StackTrace   *value.Object
	Generator    *value.Object
	SeqIterator  *value.Object

	ExceptionClass            *value.Object
	TypeException             *value.Object
	NameException             *value.Object
	AttributeException        *value.Object
	InvalidArgException       *value.Object
	IndexOutOfBoundException  *value.Object
	ImportException           *value.Object
	StopIteration             *value.Object
	StackOverflowException    *value.Object
	RecursionException        *value.Object
	ProgramInterrupted        *value.Object
}

func (c *Classes) roots() []value.Value {
	all := []*value.Object{
		c.Object, c.Class, c.Function, c.Module,
		c.Number, c.Boolean, c.Null, c.String, c.List, c.Tuple, c.Table,
		c.StackTrace, c.Generator, c.SeqIterator,
		c.ExceptionClass, c.TypeException, c.NameException, c.AttributeException,
		c.InvalidArgException, c.IndexOutOfBoundException, c.ImportException,
		c.StopIteration, c.StackOverflowException, c.RecursionException, c.ProgramInterrupted,
	}
	r := make([]value.Value, 0, len(all))
	for _, o := range all {
		if o != nil {
			r = append(r, value.FromObject(o))
		}
	}
	return r
}

// bootstrap builds the root Class/Object pair, every other core class,
// and the exception hierarchy, then patches the nil-classed name
// strings allocated along the way (§4.8's "previously allocated
// string" patch step, here limited to the class-name strings
// themselves since nothing else is allocated before String exists).
func (vm *VM) bootstrap() {
	name := func(s string) *value.Object { return vm.heap.AllocateString([]byte(s), nil) }

	classClass := vm.heap.AllocateClass(name("Class"), nil, nil)
	classClass.Class = classClass
	classClass.AsClass().IsSelfRoot = true

	objectClass := vm.heap.AllocateClass(name("Object"), nil, classClass)

	// "merge Object's methods into Class" (§4.8): share the table
	// pointer so a method registered on Object is visible on Class too,
	// without Class formally subclassing Object.
	classClass.AsClass().Methods = objectClass.AsClass().Methods

	vm.classes = Classes{
		Object:   objectClass,
		Class:    classClass,
		Function: vm.heap.AllocateClass(name("Function"), objectClass, classClass),
		Module:   vm.heap.AllocateClass(name("Module"), objectClass, classClass),

		Number:  vm.heap.AllocateClass(name("Number"), objectClass, classClass),
		Boolean: vm.heap.AllocateClass(name("Boolean"), objectClass, classClass),
		Null:    vm.heap.AllocateClass(name("Null"), objectClass, classClass),
		String:  vm.heap.AllocateClass(name("String"), objectClass, classClass),
		List:    vm.heap.AllocateClass(name("List"), objectClass, classClass),
		Tuple:   vm.heap.AllocateClass(name("Tuple"), objectClass, classClass),
		Table:   vm.heap.AllocateClass(name("Table"), objectClass, classClass),

		StackTrace:  vm.heap.AllocateClass(name("StackTrace"), objectClass, classClass),
		Generator:   vm.heap.AllocateClass(name("Generator"), objectClass, classClass),
		SeqIterator: vm.heap.AllocateClass(name("SeqIterator"), objectClass, classClass),
	}
	vm.classes.ExceptionClass = vm.heap.AllocateClass(name("Exception"), objectClass, classClass)
	subException := func(n string) *value.Object {
		return vm.heap.AllocateClass(name(n), vm.classes.ExceptionClass, classClass)
	}
	vm.classes.TypeException = subException("TypeException")
	vm.classes.NameException = subException("NameException")
	vm.classes.AttributeException = subException("AttributeException")
	vm.classes.InvalidArgException = subException("InvalidArgException")
	vm.classes.IndexOutOfBoundException = subException("IndexOutOfBoundException")
	vm.classes.ImportException = subException("ImportException")
	vm.classes.StopIteration = subException("StopIteration")
	vm.classes.StackOverflowException = subException("StackOverflowException")
	vm.classes.RecursionException = subException("RecursionException")
	vm.classes.ProgramInterrupted = subException("ProgramInterrupted")

	vm.builtins = value.Builtins{
		NumClass:      vm.classes.Number,
		BoolClass:     vm.classes.Boolean,
		NullClass:     vm.classes.Null,
		StringClass:   vm.classes.String,
		FunctionClass: vm.classes.Function,
	}
	vm.builtins.EmptyTuple = vm.heap.AllocateTuple(nil, vm.classes.Tuple)

	vm.registerCoreMethods()

	vm.heap.PatchClass(value.ObjString, vm.classes.String)
	vm.heap.PatchClass(value.ObjFunction, vm.classes.Function)
}

// registerMethod binds a Go-native implementation of name onto class,
// the Go-host equivalent of the bootstrap core module's method
// declarations (§4.8).
func (vm *VM) registerMethod(class *value.Object, name string, argc int, vararg bool, fn value.NativeFn) {
	nat := &value.Native{
		Proto:         value.Prototype{Name: name, ArgCount: argc, Vararg: vararg},
		Fn:            fn,
		DefiningClass: class,
	}
	natObj := vm.heap.AllocateNative(nat, vm.classes.Function)
	class.AsClass().Methods.Put(value.StringKey{S: internedKey(name)}, value.FromObject(natObj))
}

// registerCoreMethods wires the small set of methods every built-in
// class needs to behave per §3.2/§4.6: construction, string
// conversion, equality, iteration, and the container/exception
// accessors a user program can already observe without any library
// import.
func (vm *VM) registerCoreMethods() {
	vm.registerMethod(vm.classes.Object, "toString", 0, false, vm.nativeObjectToString)
	vm.registerMethod(vm.classes.Object, "__eq__", 1, false, vm.nativeObjectEq)

	vm.registerMethod(vm.classes.String, "__add__", 1, false, vm.nativeStringAdd)
	vm.registerMethod(vm.classes.String, "__eq__", 1, false, vm.nativeStringEq)
	vm.registerMethod(vm.classes.String, "len", 0, false, vm.nativeStringLen)
	vm.registerMethod(vm.classes.String, "toString", 0, false, vm.nativeIdentityToString)
	vm.registerMethod(vm.classes.String, "__iter__", 0, false, vm.nativeSeqIter)

	vm.registerMethod(vm.classes.List, "len", 0, false, vm.nativeListLen)
	vm.registerMethod(vm.classes.List, "add", 1, false, vm.nativeListAdd)
	vm.registerMethod(vm.classes.List, "__iter__", 0, false, vm.nativeSeqIter)

	vm.registerMethod(vm.classes.Tuple, "len", 0, false, vm.nativeTupleLen)
	vm.registerMethod(vm.classes.Tuple, "__iter__", 0, false, vm.nativeSeqIter)

	vm.registerMethod(vm.classes.Table, "len", 0, false, vm.nativeTableLen)

	vm.registerMethod(vm.classes.SeqIterator, "__iter__", 0, false, vm.nativeSeqIteratorSelf)
	vm.registerMethod(vm.classes.SeqIterator, "__next__", 0, false, vm.nativeSeqIteratorNext)

	vm.registerMethod(vm.classes.Generator, "__iter__", 0, false, vm.nativeSeqIteratorSelf)
	vm.registerMethod(vm.classes.Generator, "__next__", 0, false, vm.nativeGeneratorNext)

	vm.registerMethod(vm.classes.ExceptionClass, "toString", 0, false, vm.nativeExceptionToString)
	vm.registerMethod(vm.classes.ExceptionClass, "init", 1, false, func(apiVal interface{}) bool {
		api := apiVal.(*stackAPI)
		if !api.SetField(0, "message", api.Get(1)) {
			return false
		}
		api.PushNull()
		return true
	})
}

// nativeObjectToString is Object's fallback toString: "<ClassName
// instance>", the display every Instance gets unless its own class
// overrides toString.
func (vm *VM) nativeObjectToString(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	recv := api.Get(0)
	s := fmt.Sprintf("<%s instance>", classDisplayName(value.ClassOf(recv, &vm.builtins)))
	api.PushString(s)
	return true
}

func (vm *VM) nativeIdentityToString(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	api.Push(api.Get(0))
	return true
}

func (vm *VM) nativeObjectEq(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	api.PushBool(api.Get(0).SameAs(api.Get(1)))
	return true
}

func (vm *VM) nativeStringAdd(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	a := api.Get(0)
	b := api.Get(1)
	if !a.Is(value.ObjString) || !b.Is(value.ObjString) {
		return api.Fail(vm.raiseType("__add__ expects two Strings"))
	}
	as := a.AsObject().AsString().Bytes
	bs := b.AsObject().AsString().Bytes
	joined := make([]byte, 0, len(as)+len(bs))
	joined = append(joined, as...)
	joined = append(joined, bs...)
	api.PushString(string(joined))
	return true
}

func (vm *VM) nativeStringEq(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	a := api.Get(0)
	b := api.Get(1)
	if !b.Is(value.ObjString) {
		api.PushBool(false)
		return true
	}
	api.PushBool(a.AsObject().AsString().ContentEqual(b.AsObject().AsString()))
	return true
}

func (vm *VM) nativeStringLen(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	s := api.Get(0).AsObject().AsString()
	api.PushNum(float64(len(s.Bytes)))
	return true
}

func (vm *VM) nativeListLen(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	lst := api.Get(0).AsObject().AsList()
	api.PushNum(float64(len(lst.Elems)))
	return true
}

func (vm *VM) nativeListAdd(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	lst := api.Get(0).AsObject().AsList()
	lst.Elems = append(lst.Elems, api.Get(1))
	api.Push(value.Null)
	return true
}

func (vm *VM) nativeTupleLen(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	t := api.Get(0).AsObject().AsTuple()
	api.PushNum(float64(len(t.Elems)))
	return true
}

func (vm *VM) nativeTableLen(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	t := api.Get(0).AsObject().AsTable()
	api.PushNum(float64(t.Entries.Len()))
	return true
}

func (vm *VM) nativeExceptionToString(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	api.PushString(exceptionMessage(api.Get(0)))
	return true
}

func (vm *VM) nativeSeqIteratorSelf(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	api.Push(api.Get(0))
	return true
}

// nativeSeqIter wraps a List/Tuple/String receiver in a SeqIterator
// instance tracking a cursor position, giving those three kinds a
// `for` loop's `__iter__`/`__next__` protocol (§4.6) without each
// needing its own iterator class.
func (vm *VM) nativeSeqIter(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	recv := api.Get(0)
	class := vm.classes.SeqIterator.AsClass()
	seqSlot, _ := class.Fields.Declare(value.StringKey{S: internedKey("seq")})
	idxSlot, _ := class.Fields.Declare(value.StringKey{S: internedKey("idx")})
	instObj := vm.heap.AllocateInstance(vm.classes.SeqIterator)
	inst := instObj.AsInstance()
	for int(idxSlot) >= len(inst.Fields) {
		inst.Fields = append(inst.Fields, value.Null)
	}
	inst.Fields[seqSlot] = recv
	inst.Fields[idxSlot] = value.Num(0)
	api.Push(value.FromObject(instObj))
	return true
}

// nativeSeqIteratorNext advances a SeqIterator's cursor, raising
// StopIteration once it reaches the wrapped sequence's length (§4.6).
func (vm *VM) nativeSeqIteratorNext(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	instObj := api.Get(0).AsObject()
	class := vm.classes.SeqIterator.AsClass()
	seqSlot, _ := class.Fields.Get(value.StringKey{S: internedKey("seq")})
	idxSlot, _ := class.Fields.Get(value.StringKey{S: internedKey("idx")})
	inst := instObj.AsInstance()
	seq := inst.Fields[seqSlot]
	idx := int(inst.Fields[idxSlot].AsNum())

	var elem value.Value
	var n int
	switch {
	case seq.Is(value.ObjList):
		elems := seq.AsObject().AsList().Elems
		n = len(elems)
		if idx < n {
			elem = elems[idx]
		}
	case seq.Is(value.ObjTuple):
		elems := seq.AsObject().AsTuple().Elems
		n = len(elems)
		if idx < n {
			elem = elems[idx]
		}
	case seq.Is(value.ObjString):
		s := seq.AsObject().AsString()
		n = len(s.Bytes)
		if idx < n {
			ch := vm.heap.CopyString(s.Bytes[idx:idx+1], vm.classes.String)
			elem = value.FromObject(ch)
		}
	}
	if idx >= n {
		return api.Fail(vm.doRaise(vm.newException(vm.classes.StopIteration, "iterator exhausted")))
	}
	inst.Fields[idxSlot] = value.Num(float64(idx + 1))
	api.Push(elem)
	return true
}

// nativeGeneratorNext resumes a suspended generator and drives it to
// its next yield (or completion), mirroring how the OpYield/OpReturn
// opcodes already wire into resumeGenerator/finishGenerator for the
// `for`-loop desugaring (generators.go).
func (vm *VM) nativeGeneratorNext(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	genObj := api.Get(0).AsObject()
	depth := len(vm.frames)
	if rerr := vm.resumeGenerator(genObj); rerr != nil {
		return api.Fail(rerr)
	}
	result, rerr := vm.run(depth)
	if rerr != nil {
		return api.Fail(rerr)
	}
	api.Push(result)
	return true
}
