// Package vm implements Blang's stack-based bytecode interpreter
// (§4.6): a frame stack walking a Function's Code, full opcode
// dispatch (arithmetic/comparison with operator overloading, stack
// management, variable access, field/subscript, calls/invokes/supers,
// control flow, closures/upvalues, exceptions, imports, classes,
// generators), calling conventions, and reentrancy limiting.
//
// Grounded on the teacher's pkg/vm/vm.go for the overall shape — a VM
// struct driving an instruction-pointer loop, StackFrame/RuntimeError
// from pkg/vm/errors.go — generalized from smog's SEND-based
// message-dispatch loop to the stack-machine opcode groups
// pkg/bytecode defines. Generators and the open/closed upvalue duality
// are grounded on other_examples' frame/continuation-shaped
// interpreters (see DESIGN.md, Component F).
package vm

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/blang-lang/blang/pkg/bytecode"
	"github.com/blang-lang/blang/pkg/gc"
	"github.com/blang-lang/blang/pkg/hashtable"
	"github.com/blang-lang/blang/pkg/value"
)

// Config configures a VM at construction time (§4.2 "a VM owns exactly
// one Heap", §4.6 calling conventions, §5 concurrency model).
type Config struct {
	StackSize          int   // value stack depth, default 4096
	FrameStackSize     int   // max nested script calls, default 512
	MaxNativeDepth     int   // reentrant native->script call depth, default 1000 (§4.6)
	InitialGCThreshold int64
	HeapGrowRate       float64
	Stress             bool
	Stats              bool

	// OnError receives one diagnostic per compile error (§7.2).
	OnError func(line int, msg string)

	// ImportSource resolves a dotted module name to source bytes for
	// the host-provided precompiled-module hook (§4.7 step 2); nil
	// means no built-in modules beyond the bootstrap core.
	ImportSource func(dotted string) ([]byte, bool)

	// ImportPaths is the path-prefix search list (§4.7 step 3).
	ImportPaths []string

	// Loader resolves native extensions (§4.7 step 4); DefaultLoader
	// is used when nil.
	Loader NativeLoader

	// HostData is opaque embedder state reachable from native
	// functions through the embedding API (§4.8).
	HostData interface{}

	// Stdout is where the bootstrap-installed `print` writes; os.Stdout
	// when nil.
	Stdout io.Writer
}

func (c Config) withDefaults() Config {
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.StackSize == 0 {
		c.StackSize = 4096
	}
	if c.FrameStackSize == 0 {
		c.FrameStackSize = 512
	}
	if c.MaxNativeDepth == 0 {
		c.MaxNativeDepth = 1000
	}
	if c.Loader == nil {
		c.Loader = DefaultLoader{}
	}
	return c
}

// handlerKind distinguishes SETUP_EXCEPT from SETUP_ENSURE handlers
// within a frame's bounded handler stack (§4.6).
type handlerKind byte

const (
	handlerExcept handlerKind = iota
	handlerEnsure
)

// handler is one entry of a frame's exception-handler stack, bounded
// by the compiler's MaxHandlers.
type handler struct {
	kind     handlerKind
	targetIP int
	stackTop int // value-stack height to restore to when this handler fires
}

// unwindKind records what a frame is in the middle of propagating past
// an active SETUP_ENSURE handler (§4.6 "return inside a try with an
// active ensure").
type unwindKind byte

const (
	unwindNone unwindKind = iota
	unwindException
	unwindReturn
)

// Frame is one activation record: the executing closure, its
// instruction pointer, the slice of vm.stack it addresses as its
// local-variable window, its bounded handler stack, and (for a
// generator body) the generator object it belongs to.
type Frame struct {
	closure *value.Object // *Closure
	native  *value.Object // *Native, mutually exclusive with closure
	fn      *value.Function
	ip      int
	base    int // vm.stack[base] is this frame's slot 0

	handlers []handler

	generator *value.Object // *Generator, nil for an ordinary call

	// ctorInstance is set when this frame is running a class's "init"
	// method invoked on the instance's behalf (§3.2 "constructors"):
	// the CALL that constructed the instance wants the instance back,
	// not whatever init itself returns, so doReturn substitutes it in.
	ctorInstance *value.Object

	pendingKind  unwindKind
	pendingValue value.Value

	// funcName/moduleName feed StackFrame capture in captureTrace (§3.2, §3.3.7).
	funcName   string
	moduleName string
}

// VM is one interpreter instance: its own Heap, module registry, and
// value/frame stacks. §5: single-threaded, cooperative, never shared
// across goroutines except for the lazily-polled evalBreak flag.
type VM struct {
	cfg  Config
	heap *gc.Heap

	classes  Classes
	builtins value.Builtins

	modules     map[string]*value.Object // dotted name -> *Module
	moduleOrder []string

	stack  []value.Value
	frames []*Frame

	openUpvalues *value.Object // *Upvalue, head of descending-address list

	curImport *value.Object // *Module mid-resolution for an "import X for ..." statement (§4.6)

	nativeDepth int

	evalBreak atomic.Bool

	lastError *RuntimeError

	debugger *Debugger
}

// AttachDebugger installs an interactive debugger hook the run loop
// consults before every instruction; pass nil to detach it.
func (vm *VM) AttachDebugger(d *Debugger) { vm.debugger = d }

// New builds a VM and runs the core bootstrap sequence (§4.8).
func New(cfg Config) *VM {
	cfg = cfg.withDefaults()
	vm := &VM{cfg: cfg, modules: make(map[string]*value.Object)}
	vm.heap = gc.New(gc.Config{
		InitialGCThreshold: cfg.InitialGCThreshold,
		HeapGrowRate:       cfg.HeapGrowRate,
		Stress:             cfg.Stress,
		Roots:              vm.roots,
	})
	if cfg.Stats {
		vm.heap.EnableStats()
	}
	vm.stack = make([]value.Value, 0, cfg.StackSize)

	// bootstrap allocates every core class before vm.classes/vm.builtins
	// hold any of them, so roots() cannot see them yet; disable the
	// collector for the duration so a Stress-mode (or otherwise
	// triggered) collection can't sweep them out from under it.
	vm.heap.Disable()
	vm.bootstrap()
	vm.heap.Enable()
	return vm
}

// Heap exposes the owned collector, e.g. for an embedder-triggered
// Collect() or GC-discipline tests.
func (vm *VM) Heap() *gc.Heap { return vm.heap }

// Interrupt is the async-safe entry point a signal handler calls to
// request cooperative interruption (§5): evalBreak is polled lazily
// at instruction boundaries and never locks.
func (vm *VM) Interrupt() { vm.evalBreak.Store(true) }

// roots implements gc.RootsFunc (§4.2's ten-item root set): the value
// stack, every frame's closure/native/generator, open upvalues, the
// module registry, and the handful of always-rooted class/singleton
// objects.
func (vm *VM) roots() []value.Value {
	var r []value.Value
	for _, v := range vm.stack {
		r = append(r, v)
	}
	for _, f := range vm.frames {
		if f.closure != nil {
			r = append(r, value.FromObject(f.closure))
		}
		if f.native != nil {
			r = append(r, value.FromObject(f.native))
		}
		if f.generator != nil {
			r = append(r, value.FromObject(f.generator))
		}
		if f.pendingKind == unwindException || f.pendingKind == unwindReturn {
			r = append(r, f.pendingValue)
		}
	}
	for u := vm.openUpvalues; u != nil; u = u.AsUpvalue().Next {
		r = append(r, value.FromObject(u))
	}
	for _, m := range vm.modules {
		r = append(r, value.FromObject(m))
	}
	r = append(r, vm.classes.roots()...)
	if vm.builtins.EmptyTuple != nil {
		r = append(r, value.FromObject(vm.builtins.EmptyTuple))
	}
	return r
}

// --- value stack helpers ---

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(fromTop int) value.Value { return vm.stack[len(vm.stack)-1-fromTop] }

func (vm *VM) setTop(fromTop int, v value.Value) { vm.stack[len(vm.stack)-1-fromTop] = v }

func (vm *VM) truncateTo(height int) { vm.stack = vm.stack[:height] }

func (vm *VM) curFrame() *Frame { return vm.frames[len(vm.frames)-1] }

// Eval compiles and runs source as a fresh top-level module body
// (§4.4 "Output", §4.8's embedding entry point), returning the value
// of a top-level `return` statement (null when the body finishes
// without one; expression statements' values are discarded) or a
// *RuntimeError on an uncaught exception. Grounded on importModule's
// own source-compile path in module.go, but the module is named name
// and is neither entered into the module registry nor resolved
// against the import search order.
func (vm *VM) Eval(name, source string) (value.Value, error) {
	v, rerr := vm.loadSource(name, []byte(source))
	if rerr != nil {
		return value.Null, rerr
	}
	return v, nil
}

func (vm *VM) reportError(line int, format string, args ...interface{}) {
	if vm.cfg.OnError != nil {
		vm.cfg.OnError(line, fmt.Sprintf(format, args...))
	}
}

// run drives the dispatch loop until the frame stack depth returns to
// targetDepth (the depth recorded right before the call that started
// this run, so nested native->script calls made through the embedding
// API can each drive their own sub-loop). Returns the value the
// completed call produced.
func (vm *VM) run(targetDepth int) (value.Value, *RuntimeError) {
	for len(vm.frames) > targetDepth {
		if vm.evalBreak.Load() {
			vm.evalBreak.Store(false)
			if rerr := vm.doRaise(vm.newException(vm.classes.ProgramInterrupted, "interrupted")); rerr != nil {
				return value.Null, rerr
			}
			continue
		}
		f := vm.curFrame()
		if vm.debugger != nil && vm.debugger.ShouldPause(f) {
			if !vm.debugger.InteractivePrompt(f) {
				return value.Null, vm.raiseError("execution aborted by debugger")
			}
		}
		code := f.fn.Code.Bytes
		op := bytecode.Opcode(code[f.ip])
		f.ip++
		if rerr := vm.step(f, op, code); rerr != nil {
			return value.Null, rerr
		}
		if len(vm.frames) <= targetDepth {
			break
		}
	}
	if len(vm.stack) == 0 {
		return value.Null, nil
	}
	return vm.pop(), nil
}

// step executes one instruction. A non-nil *RuntimeError means the
// exception propagated past every frame down to targetDepth and the
// caller of run() must treat the call as failed.
func (vm *VM) step(f *Frame, op bytecode.Opcode, code []byte) *RuntimeError {
	switch op {
	// --- arithmetic / comparison ---
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpPow,
		bytecode.OpGt, bytecode.OpGe, bytecode.OpLt, bytecode.OpLe:
		return vm.binaryOp(op)
	case bytecode.OpEq:
		b := vm.pop()
		a := vm.pop()
		vm.push(value.Bool(vm.valuesEqual(a, b)))
	case bytecode.OpNot:
		a := vm.pop()
		vm.push(value.Bool(!a.Truthy()))
	case bytecode.OpNeg:
		a := vm.pop()
		if !a.IsNum() {
			return vm.raiseType("operand of unary - must be a number")
		}
		vm.push(value.Num(-a.AsNum()))
	case bytecode.OpIs:
		b := vm.pop()
		a := vm.pop()
		vm.push(value.Bool(vm.isInstance(a, b)))

	// --- stack management ---
	case bytecode.OpPop:
		vm.pop()
	case bytecode.OpDup:
		vm.push(vm.peek(0))
	case bytecode.OpNull:
		vm.push(value.Null)
	case bytecode.OpGetConst:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		vm.push(f.fn.Code.Constants[idx])
	case bytecode.OpUnpack:
		n := int(code[f.ip])
		f.ip++
		return vm.unpack(n)
	case bytecode.OpNewList:
		n := int(code[f.ip])
		f.ip++
		elems := append([]value.Value(nil), vm.stack[len(vm.stack)-n:]...)
		vm.truncateTo(len(vm.stack) - n)
		vm.push(value.FromObject(vm.heap.AllocateList(vm.classes.List)))
		vm.peek(0).AsObject().AsList().Elems = elems
	case bytecode.OpAppendList:
		v := vm.pop()
		l := vm.peek(0)
		lst := l.AsObject().AsList()
		lst.Elems = append(lst.Elems, v)
	case bytecode.OpNewTuple:
		n := int(code[f.ip])
		f.ip++
		if n == 0 {
			vm.push(value.FromObject(vm.builtins.EmptyTuple))
			break
		}
		elems := append([]value.Value(nil), vm.stack[len(vm.stack)-n:]...)
		vm.truncateTo(len(vm.stack) - n)
		vm.push(value.FromObject(vm.heap.AllocateTuple(elems, vm.classes.Tuple)))
	case bytecode.OpNewTable:
		n := int(code[f.ip])
		f.ip++
		tblObj := vm.heap.AllocateTable(vm.classes.Table)
		tbl := tblObj.AsTable()
		base := len(vm.stack) - 2*n
		for i := 0; i < n; i++ {
			k := vm.stack[base+2*i]
			v := vm.stack[base+2*i+1]
			if k.IsNum() && isNaN(k.AsNum()) {
				return vm.raiseInvalidArg("NaN is not a valid table key")
			}
			tbl.Entries.Put(k, v)
		}
		vm.truncateTo(base)
		vm.push(value.FromObject(tblObj))

	// --- variable access ---
	case bytecode.OpGetLocal:
		slot := int(code[f.ip])
		f.ip++
		vm.push(vm.stack[f.base+slot])
	case bytecode.OpSetLocal:
		slot := int(code[f.ip])
		f.ip++
		vm.stack[f.base+slot] = vm.peek(0)
	case bytecode.OpGetUpvalue:
		slot := int(code[f.ip])
		f.ip++
		up := f.closure.AsClosure().Upvalues[slot].AsUpvalue()
		if up.Closed {
			vm.push(up.Value)
		} else {
			vm.push(vm.stack[up.StackSlot])
		}
	case bytecode.OpSetUpvalue:
		slot := int(code[f.ip])
		f.ip++
		up := f.closure.AsClosure().Upvalues[slot].AsUpvalue()
		if up.Closed {
			up.Value = vm.peek(0)
		} else {
			vm.stack[up.StackSlot] = vm.peek(0)
		}
	case bytecode.OpGetGlobal:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		name := f.fn.Code.Constants[idx].AsObject().AsString()
		mod := f.fn.Proto.Module.AsModule()
		slot, ok := mod.GlobalNames.Get(value.StringKey{S: name})
		if !ok {
			return vm.raiseName(fmt.Sprintf("name %q is not defined", name.Text()))
		}
		vm.push(mod.Globals[slot])
	case bytecode.OpSetGlobal:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		name := f.fn.Code.Constants[idx].AsObject().AsString()
		mod := f.fn.Proto.Module.AsModule()
		slot, ok := mod.GlobalNames.Get(value.StringKey{S: name})
		if !ok {
			return vm.raiseName(fmt.Sprintf("name %q is not defined", name.Text()))
		}
		mod.Globals[slot] = vm.peek(0)
	case bytecode.OpDefineGlobal:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		name := f.fn.Code.Constants[idx].AsObject().AsString()
		mod := f.fn.Proto.Module.AsModule()
		slot, _ := mod.GlobalNames.Declare(value.StringKey{S: name})
		v := vm.pop()
		for int(slot) >= len(mod.Globals) {
			mod.Globals = append(mod.Globals, value.Null)
		}
		mod.Globals[slot] = v

	// --- field / subscript ---
	case bytecode.OpGetField:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		name := f.fn.Code.Constants[idx].AsObject().AsString()
		recv := vm.pop()
		v, rerr := vm.getField(recv, name)
		if rerr != nil {
			return rerr
		}
		vm.push(v)
	case bytecode.OpSetField:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		name := f.fn.Code.Constants[idx].AsObject().AsString()
		v := vm.pop()
		recv := vm.pop()
		if rerr := vm.setField(recv, name, v); rerr != nil {
			return rerr
		}
		vm.push(v)
	case bytecode.OpSubscrGet:
		idx := vm.pop()
		recv := vm.pop()
		v, rerr := vm.subscriptGet(recv, idx)
		if rerr != nil {
			return rerr
		}
		vm.push(v)
	case bytecode.OpSubscrSet:
		v := vm.pop()
		idx := vm.pop()
		recv := vm.pop()
		if rerr := vm.subscriptSet(recv, idx, v); rerr != nil {
			return rerr
		}
		vm.push(v)

	// --- calls ---
	case bytecode.OpCall0, bytecode.OpCall1, bytecode.OpCall2, bytecode.OpCall3, bytecode.OpCall4,
		bytecode.OpCall5, bytecode.OpCall6, bytecode.OpCall7, bytecode.OpCall8, bytecode.OpCall9, bytecode.OpCall10:
		return vm.doCall(bytecode.ArityOf(op))
	case bytecode.OpCall:
		argc := int(code[f.ip])
		f.ip++
		return vm.doCall(argc)
	case bytecode.OpInvoke0, bytecode.OpInvoke1, bytecode.OpInvoke2, bytecode.OpInvoke3, bytecode.OpInvoke4,
		bytecode.OpInvoke5, bytecode.OpInvoke6, bytecode.OpInvoke7, bytecode.OpInvoke8, bytecode.OpInvoke9, bytecode.OpInvoke10:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		return vm.doInvoke(idx, bytecode.ArityOf(op), f)
	case bytecode.OpInvoke:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		argc := int(code[f.ip])
		f.ip++
		return vm.doInvoke(idx, argc, f)
	case bytecode.OpSuper0, bytecode.OpSuper1, bytecode.OpSuper2, bytecode.OpSuper3, bytecode.OpSuper4,
		bytecode.OpSuper5, bytecode.OpSuper6, bytecode.OpSuper7, bytecode.OpSuper8, bytecode.OpSuper9, bytecode.OpSuper10:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		return vm.doSuper(idx, bytecode.ArityOf(op), f)
	case bytecode.OpSuper:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		argc := int(code[f.ip])
		f.ip++
		return vm.doSuper(idx, argc, f)

	// --- control flow ---
	case bytecode.OpJump:
		disp := bytecode.ReadI16(code, f.ip)
		f.ip = f.ip + 2 + int(disp)
	case bytecode.OpJumpT:
		// Peek-only: never pops. Both the taken and fallthrough paths
		// are compiled with their own explicit POP where one is needed
		// (plain `if`), or rely on the value surviving the jump for
		// short-circuit evaluation (`||`/`&&`).
		disp := bytecode.ReadI16(code, f.ip)
		f.ip += 2
		if vm.peek(0).Truthy() {
			f.ip += int(disp)
		}
	case bytecode.OpJumpF:
		disp := bytecode.ReadI16(code, f.ip)
		f.ip += 2
		if !vm.peek(0).Truthy() {
			f.ip += int(disp)
		}
	case bytecode.OpReturn:
		v := vm.pop()
		return vm.doReturn(v)

	// --- closures / upvalues ---
	case bytecode.OpClosure:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		fnObj := f.fn.Code.Constants[idx].AsObject()
		fn := fnObj.AsFunction()
		upvalues := make([]*value.Object, fn.Proto.UpvalueCount)
		for i := range upvalues {
			isLocal := code[f.ip] != 0
			index := int(code[f.ip+1])
			f.ip += 2
			if isLocal {
				upvalues[i] = vm.captureUpvalue(f.base + index)
			} else {
				upvalues[i] = f.closure.AsClosure().Upvalues[index]
			}
		}
		closureObj := vm.heap.AllocateClosure(fnObj, upvalues, vm.classes.Function)
		vm.push(value.FromObject(closureObj))
	case bytecode.OpCloseUpvalue:
		vm.closeUpvalues(len(vm.stack) - 1)
		vm.pop()

	// --- exceptions ---
	case bytecode.OpSetupExcept:
		addr := int(bytecode.ReadU16(code, f.ip))
		f.ip += 2
		f.handlers = append(f.handlers, handler{kind: handlerExcept, targetIP: addr, stackTop: len(vm.stack)})
	case bytecode.OpSetupEnsure:
		addr := int(bytecode.ReadU16(code, f.ip))
		f.ip += 2
		f.handlers = append(f.handlers, handler{kind: handlerEnsure, targetIP: addr, stackTop: len(vm.stack)})
	case bytecode.OpPopHandler:
		f.handlers = f.handlers[:len(f.handlers)-1]
	case bytecode.OpRaise:
		exc := vm.pop()
		return vm.doRaise(exc)
	case bytecode.OpEnsureEnd:
		return vm.endEnsure(f)

	// --- imports ---
	case bytecode.OpImport:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		dotted := f.fn.Code.Constants[idx].AsObject().AsString().Text()
		modObj, err := vm.importModule(dotted)
		if err != nil {
			return vm.raiseImport(err.Error())
		}
		vm.push(value.FromObject(modObj))
	case bytecode.OpImportAs:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		dotted := f.fn.Code.Constants[idx].AsObject().AsString().Text()
		modObj, err := vm.importModule(dotted)
		if err != nil {
			return vm.raiseImport(err.Error())
		}
		vm.push(value.FromObject(modObj))
	case bytecode.OpImportFrom:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		dotted := f.fn.Code.Constants[idx].AsObject().AsString().Text()
		modObj, err := vm.importModule(dotted)
		if err != nil {
			return vm.raiseImport(err.Error())
		}
		// Load without push (§4.6): the module is already reachable
		// through vm.modules, so stashing it here instead of pushing it
		// lets the following OpImportNames read it without leaving a
		// stack slot behind for the compiler's local-slot numbering to
		// account for.
		vm.curImport = modObj
	case bytecode.OpImportName:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		name := f.fn.Code.Constants[idx].AsObject().AsString()
		mod := vm.curImport.AsModule()
		slot, ok := mod.GlobalNames.Get(value.StringKey{S: name})
		if !ok {
			return vm.raiseImport(fmt.Sprintf("module %q has no name %q", mod.Name.Text(), name.Text()))
		}
		vm.push(mod.Globals[slot])

	// --- classes ---
	case bytecode.OpNewClass:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		name := f.fn.Code.Constants[idx].AsObject()
		classObj := vm.heap.AllocateClass(name, vm.classes.Object, vm.classes.Class)
		vm.push(value.FromObject(classObj))
	case bytecode.OpNewSubclass:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		name := f.fn.Code.Constants[idx].AsObject()
		super := vm.pop()
		if !super.Is(value.ObjClass) {
			return vm.raiseType("superclass expression did not evaluate to a class")
		}
		classObj := vm.heap.AllocateClass(name, super.AsObject(), vm.classes.Class)
		vm.push(value.FromObject(classObj))
	case bytecode.OpDefMethod:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		name := f.fn.Code.Constants[idx].AsObject().AsString()
		method := vm.pop()
		classObj := vm.peek(0).AsObject()
		method.AsObject().AsClosure().DefiningClass = classObj
		classObj.AsClass().Methods.Put(value.StringKey{S: name}, method)
	case bytecode.OpNatMethod:
		idx := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		name := f.fn.Code.Constants[idx].AsObject().AsString()
		method := vm.pop()
		classObj := vm.peek(0).AsObject()
		method.AsObject().AsNative().DefiningClass = classObj
		classObj.AsClass().Methods.Put(value.StringKey{S: name}, method)

	// --- generators ---
	case bytecode.OpYield:
		v := vm.pop()
		return vm.doYield(f, v)

	default:
		return vm.raiseType(fmt.Sprintf("unimplemented opcode %s", op))
	}
	return nil
}

func isNaN(f float64) bool { return f != f }

// valuesEqual implements §4.6's EQ dispatch: primitive SameAs first,
// then the overloadable __eq__ special method, with no reversed
// fallback (equality is defined by the left operand or not at all).
func (vm *VM) valuesEqual(a, b value.Value) bool {
	if a.SameAs(b) {
		return true
	}
	if a.Is(value.ObjString) && b.Is(value.ObjString) {
		return a.AsObject().AsString().ContentEqual(b.AsObject().AsString())
	}
	if method, _, ok := vm.lookupMethodByName(value.ClassOf(a, &vm.builtins), "__eq__"); ok {
		result, rerr := vm.callMethodValue(method, a, []value.Value{b})
		if rerr == nil {
			return result.Truthy()
		}
	}
	return false
}

// isInstance implements the IS opcode (§4.6): b must be a class; reports
// whether classOf(a)'s super chain reaches it.
func (vm *VM) isInstance(a, b value.Value) bool {
	if !b.Is(value.ObjClass) {
		return false
	}
	return value.IsInstance(a, b.AsObject(), &vm.builtins)
}

var _ = hashtable.Key(value.StringKey{})
