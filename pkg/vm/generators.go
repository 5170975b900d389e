package vm

import "github.com/blang-lang/blang/pkg/value"

// doYield implements YIELD (§4.6 "Generators"): suspends the current
// frame by copying its instruction pointer, its stack window (from
// base to the current top), and its handler stack into the owning
// Generator object (its pending-unwind state is not saved), then pops the frame exactly like a
// return, delivering v to whoever called .__next__()/.resume().
//
// A plain function call (no enclosing Generator) cannot yield; the
// compiler only emits YIELD inside a body containsYield found a yield
// in, which by construction is always invoked through the generator
// machinery, so an absent f.generator here indicates a compiler/VM
// mismatch rather than a user error.
func (vm *VM) doYield(f *Frame, v value.Value) *RuntimeError {
	if f.generator == nil {
		return vm.raiseType("yield used outside of a generator")
	}
	gen := f.generator.AsGenerator()
	gen.State = value.GeneratorSuspended
	gen.SavedIP = f.ip
	gen.LastYielded = v
	gen.StackBuf = append([]value.Value(nil), vm.stack[f.base:]...)
	gen.SavedStackTop = len(vm.stack) - f.base
	gen.SavedHandlers = encodeHandlers(f.handlers)

	vm.closeUpvalues(f.base)
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.truncateTo(f.base)
	vm.push(v)
	return nil
}

// finishGenerator implements a generator body's ordinary RETURN
// (§4.6): rather than delivering its value to a caller the way a plain
// function would, it marks the generator Done and raises StopIteration
// to whoever's resume triggered this step, Python-generator style —
// documented as a deliberate simplification rather than a distinct
// exhausted/value-carrying return channel.
func (vm *VM) finishGenerator(f *Frame, v value.Value) *RuntimeError {
	gen := f.generator.AsGenerator()
	gen.State = value.GeneratorDone
	vm.closeUpvalues(f.base)
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.truncateTo(f.base)
	return vm.doRaise(vm.newException(vm.classes.StopIteration, "generator exhausted"))
}

// resumeGenerator pushes a fresh Frame that continues gen's closure
// from its saved suspension point, restoring the stack window and
// handler stack exactly as doYield captured them. Called by the
// built-in iterator's __next__ (bootstrap.go).
func (vm *VM) resumeGenerator(genObj *value.Object) *RuntimeError {
	gen := genObj.AsGenerator()
	if gen.State == value.GeneratorDone {
		return vm.doRaise(vm.newException(vm.classes.StopIteration, "generator exhausted"))
	}
	closure := gen.Closure.AsClosure()
	fn := closure.Fn.AsFunction()
	base := len(vm.stack)
	starting := gen.State == value.GeneratorStarted

	vm.stack = append(vm.stack, gen.StackBuf...)
	frame := &Frame{
		closure: gen.Closure, fn: fn, base: base,
		generator: genObj, funcName: fn.Proto.Name, moduleName: moduleDisplayName(fn.Proto.Module),
	}
	if !starting {
		frame.ip = gen.SavedIP
		frame.handlers = decodeHandlers(gen.SavedHandlers)
	}
	vm.frames = append(vm.frames, frame)
	gen.State = value.GeneratorRunning
	return nil
}

// encodeHandlers/decodeHandlers serialize a frame's handler stack into
// the opaque byte buffer value.Generator.SavedHandlers declares
// (pkg/value can't import pkg/vm's handler type, so the Generator
// payload only promises "opaque, owned/interpreted by pkg/vm").
func encodeHandlers(hs []handler) []byte {
	buf := make([]byte, 0, len(hs)*9)
	for _, h := range hs {
		buf = append(buf, byte(h.kind))
		buf = appendInt(buf, h.targetIP)
		buf = appendInt(buf, h.stackTop)
	}
	return buf
}

func decodeHandlers(buf []byte) []handler {
	var hs []handler
	for i := 0; i+9 <= len(buf); i += 9 {
		kind := handlerKind(buf[i])
		targetIP := readInt(buf[i+1:])
		stackTop := readInt(buf[i+5:])
		hs = append(hs, handler{kind: kind, targetIP: targetIP, stackTop: stackTop})
	}
	return hs
}

func appendInt(buf []byte, v int) []byte {
	u := uint32(v)
	return append(buf, byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
}

func readInt(buf []byte) int {
	return int(uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]))
}
