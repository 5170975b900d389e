// Embedding API (§4.8): a C-style stack-slot surface bound into every
// Native's Fn so host code and script-defined natives share one
// calling convention. Grounded on kristofer-smog's native registration
// style (functions receiving the interpreter and indexing its value
// stack directly) generalized into a dedicated slot-addressed type
// instead of passing *VM around raw.
package vm

import (
	"github.com/blang-lang/blang/pkg/value"
)

// stackAPI is what a Native's Fn receives, wrapped as interface{} on
// the pkg/value side of the boundary (value.NativeFn's doc comment).
// base is the callee's own stack slot: slot 0 is reserved for the
// receiver (a method's self, or the called function value itself for
// a plain module-level native with no receiver), mirroring the
// compiler's own local-slot numbering (slot 0 reserved the same way
// for a script function). Slot 1 is the first real argument.
type stackAPI struct {
	vm   *VM
	base int
}

// slotIndex resolves a user-facing slot number to an absolute stack
// index: non-negative counts up from base (0 = receiver, 1.. = the
// native's declared arguments in order), negative counts back from
// the top of the stack (§4.8).
func (a *stackAPI) slotIndex(slot int) int {
	if slot >= 0 {
		return a.base + slot
	}
	return len(a.vm.stack) + slot
}

// Self returns the receiver slot (a method's self, or the native
// function object itself for a plain, receiverless call).
func (a *stackAPI) Self() value.Value { return a.Get(0) }

// Arg returns the i'th declared argument (0-based), i.e. slot i+1.
func (a *stackAPI) Arg(i int) value.Value { return a.Get(i + 1) }

func (a *stackAPI) Get(slot int) value.Value { return a.vm.stack[a.slotIndex(slot)] }

func (a *stackAPI) Set(slot int, v value.Value) { a.vm.stack[a.slotIndex(slot)] = v }

func (a *stackAPI) Push(v value.Value) { a.vm.push(v) }

func (a *stackAPI) PushNum(n float64) { a.vm.push(value.Num(n)) }

func (a *stackAPI) PushBool(b bool) { a.vm.push(value.Bool(b)) }

func (a *stackAPI) PushNull() { a.vm.push(value.Null) }

func (a *stackAPI) PushString(s string) {
	a.vm.push(value.FromObject(a.vm.heap.CopyString([]byte(s), a.vm.classes.String)))
}

func (a *stackAPI) Pop() value.Value { return a.vm.pop() }

func (a *stackAPI) Top() value.Value { return a.vm.peek(0) }

// Fail stashes rerr for callNative to surface as the propagating
// exception and returns false, the Fn-level "failed" signal (§4.8).
func (a *stackAPI) Fail(rerr *RuntimeError) bool {
	a.vm.lastError = rerr
	return false
}

// Raise* mirror the vm-level raise helpers for natives that want to
// construct a Fail without reaching past this file for a *RuntimeError.
func (a *stackAPI) RaiseType(msg string) bool        { return a.Fail(a.vm.raiseType(msg)) }
func (a *stackAPI) RaiseInvalidArg(msg string) bool   { return a.Fail(a.vm.raiseInvalidArg(msg)) }
func (a *stackAPI) RaiseIndex(msg string) bool        { return a.Fail(a.vm.raiseIndex(msg)) }
func (a *stackAPI) RaiseName(msg string) bool         { return a.Fail(a.vm.raiseName(msg)) }
func (a *stackAPI) RaiseAttribute(msg string) bool    { return a.Fail(a.vm.raiseAttribute(msg)) }

// Type predicates (§4.8).
func (a *stackAPI) IsNum(slot int) bool    { return a.Get(slot).IsNum() }
func (a *stackAPI) IsBool(slot int) bool   { return a.Get(slot).IsBool() }
func (a *stackAPI) IsNull(slot int) bool   { return a.Get(slot).IsNull() }
func (a *stackAPI) IsString(slot int) bool { return a.Get(slot).Is(value.ObjString) }
func (a *stackAPI) IsList(slot int) bool   { return a.Get(slot).Is(value.ObjList) }
func (a *stackAPI) IsTuple(slot int) bool  { return a.Get(slot).Is(value.ObjTuple) }
func (a *stackAPI) IsTable(slot int) bool  { return a.Get(slot).Is(value.ObjTable) }
func (a *stackAPI) IsInstance(slot int) bool {
	return a.Get(slot).Is(value.ObjInstance)
}
func (a *stackAPI) IsCallable(slot int) bool {
	v := a.Get(slot)
	return v.Is(value.ObjClosure) || v.Is(value.ObjNative) || v.Is(value.ObjClass) || v.Is(value.ObjBoundMethod)
}

// CheckNum/CheckString/CheckInstance are the checked-assertion half of
// §4.8: ok is false and a TypeException is stashed via Fail's contract
// when the slot doesn't hold the expected kind.
func (a *stackAPI) CheckNum(slot int) (float64, bool) {
	v := a.Get(slot)
	if !v.IsNum() {
		a.RaiseType("expected a Number argument")
		return 0, false
	}
	return v.AsNum(), true
}

func (a *stackAPI) CheckString(slot int) (*value.String, bool) {
	v := a.Get(slot)
	if !v.Is(value.ObjString) {
		a.RaiseType("expected a String argument")
		return nil, false
	}
	return v.AsObject().AsString(), true
}

func (a *stackAPI) CheckInstance(slot int, class *value.Object) (*value.Object, bool) {
	v := a.Get(slot)
	if !value.IsInstance(v, class, &a.vm.builtins) {
		a.RaiseType("expected an instance of " + classDisplayName(class))
		return nil, false
	}
	return v.AsObject(), true
}

// List/Tuple helpers (§4.8).
func (a *stackAPI) ListLen(slot int) int { return len(a.Get(slot).AsObject().AsList().Elems) }
func (a *stackAPI) ListGet(slot, i int) value.Value {
	return a.Get(slot).AsObject().AsList().Elems[i]
}
func (a *stackAPI) ListAppend(slot int, v value.Value) {
	lst := a.Get(slot).AsObject().AsList()
	lst.Elems = append(lst.Elems, v)
}
func (a *stackAPI) TupleLen(slot int) int { return len(a.Get(slot).AsObject().AsTuple().Elems) }
func (a *stackAPI) TupleGet(slot, i int) value.Value {
	return a.Get(slot).AsObject().AsTuple().Elems[i]
}

// NewList/NewTuple build a fresh container and push it (§4.8).
func (a *stackAPI) NewList() {
	a.Push(value.FromObject(a.vm.heap.AllocateList(a.vm.classes.List)))
}
func (a *stackAPI) NewTuple(elems []value.Value) {
	a.Push(value.FromObject(a.vm.heap.AllocateTuple(elems, a.vm.classes.Tuple)))
}

// GetField/SetField expose an Instance's fields; GetGlobal/SetGlobal
// resolve against the calling script frame's own module, since a
// native call pushes no Frame of its own (§4.8).
func (a *stackAPI) GetField(slot int, name string) (value.Value, bool) {
	recv := a.Get(slot)
	v, rerr := a.vm.getField(recv, internedKey(name))
	if rerr != nil {
		return value.Null, a.Fail(rerr)
	}
	return v, true
}

func (a *stackAPI) SetField(slot int, name string, v value.Value) bool {
	if rerr := a.vm.setField(a.Get(slot), internedKey(name), v); rerr != nil {
		return a.Fail(rerr)
	}
	return true
}

func (a *stackAPI) callerModule() *value.Object {
	if len(a.vm.frames) == 0 {
		return nil
	}
	f := a.vm.curFrame()
	if f.closure == nil {
		return nil
	}
	return f.closure.AsClosure().Fn.AsFunction().Proto.Module
}

func (a *stackAPI) GetGlobal(name string) (value.Value, bool) {
	mod := a.callerModule()
	if mod == nil {
		return value.Null, false
	}
	m := mod.AsModule()
	slot, ok := m.GlobalNames.Get(value.StringKey{S: internedKey(name)})
	if !ok {
		return value.Null, false
	}
	return m.Globals[slot], true
}

func (a *stackAPI) SetGlobal(name string, v value.Value) bool {
	mod := a.callerModule()
	if mod == nil {
		return false
	}
	m := mod.AsModule()
	slot, _ := m.GlobalNames.Declare(value.StringKey{S: internedKey(name)})
	for int(slot) >= len(m.Globals) {
		m.Globals = append(m.Globals, value.Null)
	}
	m.Globals[slot] = v
	return true
}

// Call and CallMethod implement §4.8's reentrant call helpers: the
// callee (and, for Call, its argc arguments) sit on top of the stack;
// on success the result replaces them all, mirroring callMethodValue's
// nested-run pattern (calls.go).
func (a *stackAPI) Call(argc int) bool {
	calleeIdx := len(a.vm.stack) - argc - 1
	callee := a.vm.stack[calleeIdx]
	depth := len(a.vm.frames)
	if rerr := a.vm.callAt(calleeIdx, callee, argc, nil); rerr != nil {
		return a.Fail(rerr)
	}
	if len(a.vm.frames) == depth {
		return true // native callee already ran synchronously and left its result on top
	}
	result, rerr := a.vm.run(depth)
	if rerr != nil {
		return a.Fail(rerr)
	}
	a.vm.truncateTo(calleeIdx)
	a.Push(result)
	return true
}

func (a *stackAPI) CallMethod(name string, argc int) bool {
	recvIdx := len(a.vm.stack) - argc - 1
	recv := a.vm.stack[recvIdx]
	method, defClass, ok := a.vm.lookupMethod(value.ClassOf(recv, &a.vm.builtins), internedKey(name))
	if !ok {
		return a.Fail(a.vm.raiseAttribute("no method named " + name))
	}
	depth := len(a.vm.frames)
	if rerr := a.vm.invokeMethodAt(recvIdx, recv, method, defClass, argc); rerr != nil {
		return a.Fail(rerr)
	}
	if len(a.vm.frames) == depth {
		return true
	}
	result, rerr := a.vm.run(depth)
	if rerr != nil {
		return a.Fail(rerr)
	}
	a.vm.truncateTo(recvIdx)
	a.Push(result)
	return true
}

// Iterate drives recv's __iter__/__next__ protocol (§4.6), feeding
// each yielded value to each until it returns false or the sequence
// raises StopIteration, which Iterate treats as normal termination
// rather than a propagating failure.
func (a *stackAPI) Iterate(recv value.Value, each func(value.Value) bool) bool {
	iterMethod, _, ok := a.vm.lookupMethodByName(value.ClassOf(recv, &a.vm.builtins), "__iter__")
	if !ok {
		return a.Fail(a.vm.raiseType(classDisplayName(value.ClassOf(recv, &a.vm.builtins)) + " is not iterable"))
	}
	iter, rerr := a.vm.callMethodValue(iterMethod, recv, nil)
	if rerr != nil {
		return a.Fail(rerr)
	}
	for {
		nextMethod, _, ok := a.vm.lookupMethodByName(value.ClassOf(iter, &a.vm.builtins), "__next__")
		if !ok {
			return a.Fail(a.vm.raiseType(classDisplayName(value.ClassOf(iter, &a.vm.builtins)) + " has no __next__"))
		}
		v, rerr := a.vm.callMethodValue(nextMethod, iter, nil)
		if rerr != nil {
			if value.IsInstance(rerr.Exc, a.vm.classes.StopIteration, &a.vm.builtins) {
				return true
			}
			return a.Fail(rerr)
		}
		if !each(v) {
			return true
		}
	}
}

// Buffer is a growable byte accumulator finalized into an interned
// String (§4.8), for natives assembling text incrementally (e.g. a
// toString building up a list's rendering) without round-tripping
// through the interpreter's stack for every piece.
type Buffer struct {
	vm  *VM
	buf []byte
}

func (a *stackAPI) NewBuffer() *Buffer { return &Buffer{vm: a.vm} }

func (b *Buffer) Append(s string) { b.buf = append(b.buf, s...) }

func (b *Buffer) AppendByte(c byte) { b.buf = append(b.buf, c) }

func (b *Buffer) Finish() *value.Object { return b.vm.heap.CopyString(b.buf, b.vm.classes.String) }
