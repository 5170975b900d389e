package vm

import (
	"fmt"
	"hash/fnv"

	"github.com/blang-lang/blang/pkg/value"
)

// doCall implements the CALL_n/CALL opcode group (§4.6): stack before
// is [..., callee, arg0..argN-1]; the new frame's slot 0 is the callee
// slot itself (clox-style convention), so arity adjustment happens in
// place above it.
func (vm *VM) doCall(argc int) *RuntimeError {
	calleeIdx := len(vm.stack) - argc - 1
	callee := vm.stack[calleeIdx]
	return vm.callAt(calleeIdx, callee, argc, nil)
}

// doInvoke implements INVOKE_n/INVOKE (§4.6): stack before is
// [..., receiver, arg0..argN-1]; method lookup starts at
// classOf(receiver).
func (vm *VM) doInvoke(nameIdx uint16, argc int, f *Frame) *RuntimeError {
	name := f.fn.Code.Constants[nameIdx].AsObject().AsString()
	recvIdx := len(vm.stack) - argc - 1
	recv := vm.stack[recvIdx]
	class := value.ClassOf(recv, &vm.builtins)
	method, defClass, ok := vm.lookupMethod(class, name)
	if !ok {
		return vm.raiseAttribute(fmt.Sprintf("%s has no method %q", classDisplayName(class), name.Text()))
	}
	return vm.invokeMethodAt(recvIdx, recv, method, defClass, argc)
}

// doSuper implements SUPER_n/SUPER (§4.6): identical stack shape to
// invoke, but the search for name starts one class above whichever
// class originally defined the currently-executing method, not
// classOf(this) — recovered from the running frame's closure/native
// DefiningClass field, since SUPER's compiled form carries no explicit
// superclass operand.
func (vm *VM) doSuper(nameIdx uint16, argc int, f *Frame) *RuntimeError {
	name := f.fn.Code.Constants[nameIdx].AsObject().AsString()
	recvIdx := len(vm.stack) - argc - 1
	recv := vm.stack[recvIdx]

	var defining *value.Object
	if f.closure != nil {
		defining = f.closure.AsClosure().DefiningClass
	} else if f.native != nil {
		defining = f.native.AsNative().DefiningClass
	}
	if defining == nil {
		return vm.raiseName("super used outside of a method body")
	}
	super := defining.AsClass().Super
	if super == nil {
		return vm.raiseAttribute(fmt.Sprintf("%s has no superclass", defining.AsClass().Name.Text()))
	}
	method, defClass, ok := vm.lookupMethod(super, name)
	if !ok {
		return vm.raiseAttribute(fmt.Sprintf("%s has no method %q", super.AsClass().Name.Text(), name.Text()))
	}
	return vm.invokeMethodAt(recvIdx, recv, method, defClass, argc)
}

// lookupMethod walks class.Super upward (§3.2 "method lookup walks the
// superclass chain at call time"; subclasses never copy a superclass's
// Methods table). Returns the class that actually owns the method, for
// DefiningClass propagation into a fresh BoundMethod.
func (vm *VM) lookupMethod(class *value.Object, name *value.String) (value.Value, *value.Object, bool) {
	for c := class; c != nil; c = c.AsClass().Super {
		if m, ok := c.AsClass().Methods.Get(value.StringKey{S: name}); ok {
			return m.(value.Value), c, true
		}
	}
	return value.Null, nil, false
}

// lookupMethodByName is lookupMethod for a literal Go string not
// already available as a *value.String (e.g. "init", "__eq__") —
// builds a throwaway key with a matching FNV-1a hash so the probe
// sequence lands on the same bucket chain as the real, interned key.
func (vm *VM) lookupMethodByName(class *value.Object, name string) (value.Value, *value.Object, bool) {
	return vm.lookupMethod(class, internedKey(name))
}

// internedKey builds a throwaway, uninterned *value.String purely to
// satisfy StringKey's (bytes,hash) comparison contract; a lookup needs
// the same FNV-1a hash the heap's CopyString stamped on the real,
// interned key already sitting in the table, or open addressing would
// probe the wrong bucket chain entirely.
func internedKey(s string) *value.String {
	h := fnv.New32a()
	h.Write([]byte(s))
	return &value.String{Bytes: []byte(s), Hash: h.Sum32()}
}

func classDisplayName(class *value.Object) string {
	if class == nil {
		return "<unknown>"
	}
	return class.AsClass().Name.Text()
}

// invokeMethodAt dispatches an already-resolved method (a Closure or
// Native) against a receiver sitting at recvIdx, in place of the
// INVOKE/SUPER opcode's own callee slot.
func (vm *VM) invokeMethodAt(recvIdx int, recv value.Value, method value.Value, defClass *value.Object, argc int) *RuntimeError {
	vm.stack[recvIdx] = recv
	return vm.callAt(recvIdx, method, argc, defClass)
}

// callAt is the single call-dispatch funnel every opcode-level call
// path (CALL/INVOKE/SUPER) and every embedding-API call funnels
// through. calleeIdx is the stack slot the new frame's "this"/callee
// occupies; callee is the value being called; defClassOverride is set
// only by invoke/super paths where the method was resolved off a
// receiver rather than being the callee value itself.
func (vm *VM) callAt(calleeIdx int, callee value.Value, argc int, defClassOverride *value.Object) *RuntimeError {
	if !callee.IsObj() {
		return vm.raiseType(fmt.Sprintf("'%s' is not callable", value.ClassOf(callee, &vm.builtins).AsClass().Name.Text()))
	}
	obj := callee.AsObject()
	switch obj.Kind {
	case value.ObjClosure:
		return vm.callClosure(calleeIdx, obj, argc)
	case value.ObjNative:
		return vm.callNative(calleeIdx, obj, argc)
	case value.ObjBoundMethod:
		bm := obj.AsBoundMethod()
		vm.stack[calleeIdx] = bm.Receiver
		return vm.callAt(calleeIdx, value.FromObject(bm.Method), argc, nil)
	case value.ObjClass:
		return vm.callClass(calleeIdx, obj, argc)
	default:
		return vm.raiseType(fmt.Sprintf("'%s' is not callable", obj.Class.AsClass().Name.Text()))
	}
}

// adjustArgs enforces arity, fills missing trailing arguments from
// Defaults, and (for a vararg function) packs the tail into a single
// Tuple argument, per §4.4's function-declaration semantics.
func (vm *VM) adjustArgs(proto *value.Prototype, calleeIdx, argc int) *RuntimeError {
	required := proto.ArgCount - len(proto.Defaults)
	if proto.Vararg {
		if argc < required {
			return vm.raiseType(fmt.Sprintf("%s() expects at least %d arguments, got %d", proto.Name, required, argc))
		}
		fixed := proto.ArgCount
		var tail []value.Value
		if argc > fixed {
			tail = append([]value.Value(nil), vm.stack[calleeIdx+1+fixed:calleeIdx+1+argc]...)
			vm.truncateTo(calleeIdx + 1 + fixed)
		} else {
			for argc < fixed {
				def := proto.Defaults[argc-required]
				vm.push(def)
				argc++
			}
		}
		vm.push(value.FromObject(vm.heap.AllocateTuple(tail, vm.classes.Tuple)))
		return nil
	}
	if argc > proto.ArgCount || argc < required {
		return vm.raiseType(fmt.Sprintf("%s() expects %d arguments, got %d", proto.Name, proto.ArgCount, argc))
	}
	for argc < proto.ArgCount {
		def := proto.Defaults[argc-required]
		vm.push(def)
		argc++
	}
	return nil
}

func (vm *VM) callClosure(calleeIdx int, closureObj *value.Object, argc int) *RuntimeError {
	closure := closureObj.AsClosure()
	fn := closure.Fn.AsFunction()
	if rerr := vm.adjustArgs(&fn.Proto, calleeIdx, argc); rerr != nil {
		return rerr
	}
	if fn.Proto.IsGenerator {
		return vm.createGenerator(calleeIdx, closureObj)
	}
	if len(vm.frames) >= vm.cfg.FrameStackSize {
		return vm.raiseStackOverflow("call stack overflow")
	}
	frame := &Frame{
		closure:    closureObj,
		fn:         fn,
		base:       calleeIdx,
		funcName:   fn.Proto.Name,
		moduleName: moduleDisplayName(fn.Proto.Module),
	}
	vm.frames = append(vm.frames, frame)
	return nil
}

// createGenerator implements §4.6 "calling a generator function
// allocates a suspended Generator rather than running its body": the
// bound-argument window adjustArgs just produced becomes the
// generator's initial saved stack, to be restored verbatim the first
// time something resumes it.
func (vm *VM) createGenerator(calleeIdx int, closureObj *value.Object) *RuntimeError {
	window := append([]value.Value(nil), vm.stack[calleeIdx:]...)
	vm.truncateTo(calleeIdx)
	genObj := vm.heap.AllocateGenerator(closureObj, vm.classes.Generator)
	gen := genObj.AsGenerator()
	gen.StackBuf = window
	vm.push(value.FromObject(genObj))
	return nil
}

func moduleDisplayName(modObj *value.Object) string {
	if modObj == nil {
		return ""
	}
	return modObj.AsModule().Name.Text()
}

// callNative invokes a host function through the embedding API boundary
// (§4.8): the native receives a fresh stackAPI window starting at
// calleeIdx, slot 0 reserved for the receiver/callee exactly as a
// script function's own local-slot numbering reserves it (slot 1 is
// the first real argument), and reports success/failure by return
// value; the VM is otherwise not reentered except through calls the
// native itself makes via the API (bounded by MaxNativeDepth).
func (vm *VM) callNative(calleeIdx int, nativeObj *value.Object, argc int) *RuntimeError {
	n := nativeObj.AsNative()
	if rerr := vm.adjustArgs(&n.Proto, calleeIdx, argc); rerr != nil {
		return rerr
	}
	if vm.nativeDepth >= vm.cfg.MaxNativeDepth {
		return vm.raiseRecursion("native call stack overflow")
	}
	vm.nativeDepth++
	api := &stackAPI{vm: vm, base: calleeIdx}
	ok := n.Fn(api)
	vm.nativeDepth--
	if !ok {
		if vm.lastError != nil {
			err := vm.lastError
			vm.lastError = nil
			vm.truncateTo(calleeIdx)
			return err
		}
		vm.truncateTo(calleeIdx)
		return vm.raiseError(fmt.Sprintf("native function %q failed", n.Proto.Name))
	}
	result := vm.pop()
	vm.truncateTo(calleeIdx)
	vm.push(result)
	return nil
}

// callClass dispatches a Class value used as a callable: allocate an
// Instance of it, then invoke its "init" method (if any) against the
// fresh instance, discarding init's own return value (§3.2
// "constructors").
func (vm *VM) callClass(calleeIdx int, classObj *value.Object, argc int) *RuntimeError {
	instObj := vm.heap.AllocateInstance(classObj)
	init, defClass, ok := vm.lookupMethodByName(classObj, "init")
	if !ok {
		if argc != 0 {
			return vm.raiseType(fmt.Sprintf("%s() expects 0 arguments, got %d", classObj.AsClass().Name.Text(), argc))
		}
		vm.truncateTo(calleeIdx)
		vm.push(value.FromObject(instObj))
		return nil
	}
	vm.stack[calleeIdx] = value.FromObject(instObj)
	depthBefore := len(vm.frames)
	if rerr := vm.invokeMethodAt(calleeIdx, value.FromObject(instObj), init, defClass, argc); rerr != nil {
		return rerr
	}
	if len(vm.frames) > depthBefore {
		// init is a script closure: its frame hasn't run yet, it will
		// complete later inside run()'s own loop. Mark it so doReturn
		// substitutes the instance for whatever init returns.
		vm.frames[len(vm.frames)-1].ctorInstance = instObj
		return nil
	}
	// init is a native and already ran synchronously: swap its result
	// for the instance right now.
	vm.pop()
	vm.push(value.FromObject(instObj))
	return nil
}

// doReturn implements RETURN (§4.6): if the current frame has any
// active SETUP_ENSURE handlers still pending, their bodies must run
// first (Except handlers along the way are silently discarded — no
// code runs for them on a normal return), draining innermost-first;
// only once the handler stack is empty does the frame actually pop and
// deliver its value to the caller.
func (vm *VM) doReturn(v value.Value) *RuntimeError {
	f := vm.curFrame()
	for len(f.handlers) > 0 {
		h := f.handlers[len(f.handlers)-1]
		f.handlers = f.handlers[:len(f.handlers)-1]
		if h.kind != handlerEnsure {
			continue
		}
		vm.truncateTo(h.stackTop)
		f.pendingKind = unwindReturn
		f.pendingValue = v
		f.ip = h.targetIP
		return nil
	}
	return vm.popFrame(v)
}

// popFrame closes every upvalue this frame's locals captured, pops the
// frame, truncates the stack back to the callee slot, and delivers v
// to the caller as that slot's new value.
func (vm *VM) popFrame(v value.Value) *RuntimeError {
	f := vm.frames[len(vm.frames)-1]
	if f.generator != nil {
		return vm.finishGenerator(f, v)
	}
	vm.closeUpvalues(f.base)
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.truncateTo(f.base)
	if f.ctorInstance != nil {
		vm.push(value.FromObject(f.ctorInstance))
	} else {
		vm.push(v)
	}
	return nil
}

// unpack implements UNPACK (§4.4 destructuring): the expression atop
// the stack must be a List/Tuple of exactly n elements; on success it
// is replaced by its n elements in order, otherwise an InvalidArgException
// is raised.
func (vm *VM) unpack(n int) *RuntimeError {
	v := vm.pop()
	var elems []value.Value
	switch {
	case v.Is(value.ObjList):
		elems = v.AsObject().AsList().Elems
	case v.Is(value.ObjTuple):
		elems = v.AsObject().AsTuple().Elems
	default:
		return vm.raiseType("only a list or tuple can be unpacked")
	}
	if len(elems) != n {
		return vm.raiseInvalidArg(fmt.Sprintf("cannot unpack %d values into %d targets", len(elems), n))
	}
	for _, e := range elems {
		vm.push(e)
	}
	return nil
}

// callMethodValue is the embedding/equality-dispatch helper used by
// valuesEqual and other special-method call sites that need a result
// back on the Go side rather than left for the bytecode loop to
// consume: it drives its own nested run() to completion.
func (vm *VM) callMethodValue(method value.Value, recv value.Value, args []value.Value) (value.Value, *RuntimeError) {
	depth := len(vm.frames)
	calleeIdx := len(vm.stack)
	vm.push(recv)
	for _, a := range args {
		vm.push(a)
	}
	if rerr := vm.callAt(calleeIdx, method, len(args), nil); rerr != nil {
		return value.Null, rerr
	}
	if len(vm.frames) == depth {
		// native call already completed synchronously
		return vm.pop(), nil
	}
	result, rerr := vm.run(depth)
	if rerr != nil {
		return value.Null, rerr
	}
	return result, nil
}
