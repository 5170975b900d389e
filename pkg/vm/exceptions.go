package vm

import (
	"github.com/blang-lang/blang/pkg/value"
)

// newException allocates a fresh Instance of class with its "message"
// field pre-set from msg — every built-in exception class declares
// that one field and nothing else, mirroring how a user subclass of
// Exception would be constructed by hand (§3.2, §4.6).
func (vm *VM) newException(class *value.Object, msg string) value.Value {
	instObj := vm.heap.AllocateInstance(class)
	msgObj := vm.heap.AllocateString([]byte(msg), vm.builtins.StringClass)
	inst := instObj.AsInstance()
	slot, _ := class.AsClass().Fields.Declare(value.StringKey{S: internedKey("message")})
	for int(slot) >= len(inst.Fields) {
		inst.Fields = append(inst.Fields, value.Null)
	}
	inst.Fields[slot] = value.FromObject(msgObj)
	return value.FromObject(instObj)
}

func (vm *VM) raiseType(msg string) *RuntimeError {
	return vm.doRaise(vm.newException(vm.classes.TypeException, msg))
}
func (vm *VM) raiseName(msg string) *RuntimeError {
	return vm.doRaise(vm.newException(vm.classes.NameException, msg))
}
func (vm *VM) raiseAttribute(msg string) *RuntimeError {
	return vm.doRaise(vm.newException(vm.classes.AttributeException, msg))
}
func (vm *VM) raiseInvalidArg(msg string) *RuntimeError {
	return vm.doRaise(vm.newException(vm.classes.InvalidArgException, msg))
}
func (vm *VM) raiseIndex(msg string) *RuntimeError {
	return vm.doRaise(vm.newException(vm.classes.IndexOutOfBoundException, msg))
}
func (vm *VM) raiseImport(msg string) *RuntimeError {
	return vm.doRaise(vm.newException(vm.classes.ImportException, msg))
}

// raiseStackOverflow is a script call whose frame-stack depth would
// exceed FrameStackSize (§8 "Recursion limit"); raiseRecursion is the
// separate, narrower limit on native-to-script reentrant call depth
// (§4.4 calling conventions).
func (vm *VM) raiseStackOverflow(msg string) *RuntimeError {
	return vm.doRaise(vm.newException(vm.classes.StackOverflowException, msg))
}
func (vm *VM) raiseRecursion(msg string) *RuntimeError {
	return vm.doRaise(vm.newException(vm.classes.RecursionException, msg))
}
func (vm *VM) raiseError(msg string) *RuntimeError {
	return vm.doRaise(vm.newException(vm.classes.ExceptionClass, msg))
}

// doRaise implements §4.6's raise() algorithm: search the current
// frame's handler stack innermost-first; on an Except match, truncate
// the stack to the handler's recorded height, push exc, and resume
// there. If the frame has no (more) handlers, close its upvalues, pop
// it, and retry in the caller — exhausting every frame produces an
// uncaught RuntimeError. An Ensure handler along the way runs first
// but does not stop the raise: it stashes the exception for
// OpEnsureEnd to re-raise once the ensure body finishes.
func (vm *VM) doRaise(exc value.Value) *RuntimeError {
	trace := vm.captureTrace()
	for len(vm.frames) > 0 {
		f := vm.curFrame()
		for len(f.handlers) > 0 {
			h := f.handlers[len(f.handlers)-1]
			f.handlers = f.handlers[:len(f.handlers)-1]
			switch h.kind {
			case handlerExcept:
				vm.truncateTo(h.stackTop)
				vm.push(exc)
				f.ip = h.targetIP
				return nil
			case handlerEnsure:
				vm.truncateTo(h.stackTop)
				// The ensure body's compiled form never explicitly binds
				// the propagating exception; it sits on the stack as an
				// extra slot beneath whatever the body itself pushes,
				// popped back off by ENSURE_END before re-raising.
				vm.push(exc)
				f.pendingKind = unwindException
				f.pendingValue = exc
				f.ip = h.targetIP
				return nil
			}
		}
		// No handler left in this frame: it unwinds entirely.
		if f.generator != nil {
			vm.closeUpvalues(f.base)
			vm.frames = vm.frames[:len(vm.frames)-1]
			f.generator.AsGenerator().State = value.GeneratorDone
			continue
		}
		vm.closeUpvalues(f.base)
		vm.frames = vm.frames[:len(vm.frames)-1]
		vm.truncateTo(f.base)
	}
	msg := exceptionMessage(exc)
	return newRuntimeError(msg, exc, trace)
}

// exceptionMessage reads the conventional "message" field off a raised
// exception instance for RuntimeError.Error()'s text, falling back to
// the class name alone if the field was never set.
func exceptionMessage(exc value.Value) string {
	if !exc.Is(value.ObjInstance) {
		return "exception"
	}
	instObj := exc.AsObject()
	class := instObj.Class
	slot, ok := class.AsClass().Fields.Get(value.StringKey{S: internedKey("message")})
	if !ok {
		return class.AsClass().Name.Text()
	}
	fields := instObj.AsInstance().Fields
	if int(slot) >= len(fields) || !fields[slot].Is(value.ObjString) {
		return class.AsClass().Name.Text()
	}
	return class.AsClass().Name.Text() + ": " + fields[slot].AsObject().AsString().Text()
}

// endEnsure implements ENSURE_END (§4.6): if the frame is in the
// middle of propagating an exception past this ensure body, pop the
// exception's extra stack slot and re-raise so the search resumes
// further out; if it is in the middle of propagating a return value,
// resume draining any remaining handlers (doReturn's own loop) using
// the stashed pending value; otherwise (a plain fall-through ensure,
// entered without any active unwind) this is a no-op.
func (vm *VM) endEnsure(f *Frame) *RuntimeError {
	switch f.pendingKind {
	case unwindException:
		exc := vm.pop()
		f.pendingKind = unwindNone
		return vm.doRaise(exc)
	case unwindReturn:
		v := f.pendingValue
		f.pendingKind = unwindNone
		f.pendingValue = value.Null
		return vm.doReturn(v)
	default:
		return nil
	}
}
