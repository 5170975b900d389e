// Package compiler implements Blang's single-pass, recursive-descent
// compiler (§4.4): AST in, a root Function bound to a Module out.
//
// Grounded directly on kristofer/smog's pkg/compiler/compiler.go — the
// same New()/Compile()/emit()/addConstant() shape and the same
// single-pass statement/expression switch — generalized with a
// parent-compiler chain for nested function bodies (the teacher never
// nests compilers; this closure/upvalue resolution is grounded on
// clarete-langlang's nested codegen and on §4.4/§9's own description
// of the pattern).
package compiler

import (
	"fmt"

	"github.com/blang-lang/blang/pkg/ast"
	"github.com/blang-lang/blang/pkg/bytecode"
	"github.com/blang-lang/blang/pkg/gc"
	"github.com/blang-lang/blang/pkg/value"
)

// MaxHandlers bounds the exception handlers nestable within a single
// frame (§4.4).
const MaxHandlers = 6

// MaxLocals matches the single-byte local-slot operand (§4.4).
const MaxLocals = 255

type localVar struct {
	name     string
	depth    int
	captured bool
}

type upvalueRef struct {
	index   int
	isLocal bool
}

type loopCtx struct {
	depth         int
	start         int
	breaks        []int
	continues     []int
	inHandler     bool // true once a try/except/ensure has been entered since this loop started
}

// classCtx tracks the class body currently being compiled, so method
// bodies can resolve `super` and the constructor name.
type classCtx struct {
	name       string
	hasSuper   bool
	parent     *classCtx
}

// ErrorFunc receives one diagnostic per compile error (§7.2); the VM
// wires this to its configured error callback.
type ErrorFunc func(line int, msg string)

// Compiler compiles one function body (the module's top level, or a
// nested function/method) at a time. Nested bodies open a child
// Compiler holding a back-pointer to the parent, exactly as §4.4
// describes.
type Compiler struct {
	heap  *gc.Heap
	onErr ErrorFunc

	parent *Compiler
	module *value.Object

	builder    *bytecode.Builder
	locals     []localVar
	scopeDepth int
	upvalues   []upvalueRef

	loops        []*loopCtx
	handlerDepth int

	class *classCtx

	funcName    string
	params      []string
	vararg      bool
	defaults    []ast.Expression
	isGenerator bool
	isMethod    bool

	stackHeight int
	maxStack    int

	hadError bool
}

// NewRoot creates the compiler for a module's top-level body.
func NewRoot(heap *gc.Heap, module *value.Object, onErr ErrorFunc) *Compiler {
	return &Compiler{
		heap:    heap,
		onErr:   onErr,
		module:  module,
		builder: bytecode.NewBuilder(),
		locals:  []localVar{{name: "", depth: 0}}, // slot 0 reserved, mirrors method receiver slot convention
	}
}

func (c *Compiler) child(name string, params []string, vararg bool, defaults []ast.Expression, isGenerator, isMethod bool) *Compiler {
	ch := &Compiler{
		heap:        c.heap,
		onErr:       c.onErr,
		parent:      c,
		module:      c.module,
		builder:     bytecode.NewBuilder(),
		funcName:    name,
		params:      params,
		vararg:      vararg,
		defaults:    defaults,
		isGenerator: isGenerator,
		isMethod:    isMethod,
		class:       c.class,
	}
	recvName := ""
	if isMethod {
		recvName = "this"
	}
	ch.locals = append(ch.locals, localVar{name: recvName, depth: 0})
	for _, p := range params {
		ch.locals = append(ch.locals, localVar{name: p, depth: 0})
	}
	return ch
}

func (c *Compiler) errorf(line int, format string, args ...interface{}) {
	c.hadError = true
	if c.onErr != nil {
		c.onErr(line, fmt.Sprintf(format, args...))
	}
}

// --- stack height bookkeeping, used only to compute MaxStackUsage ---

func (c *Compiler) push(n int) {
	c.stackHeight += n
	if c.stackHeight > c.maxStack {
		c.maxStack = c.stackHeight
	}
}
func (c *Compiler) pop(n int) { c.stackHeight -= n }

// --- constants ---

func (c *Compiler) constString(s string) uint16 {
	obj := c.heap.CopyString([]byte(s), nil)
	return c.builder.AddConstant(value.FromObject(obj))
}

func (c *Compiler) constNum(f float64) uint16 { return c.builder.AddConstant(value.Num(f)) }

// --- locals/scopes ---

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope(line int) {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		last := c.locals[len(c.locals)-1]
		if last.captured {
			c.builder.Emit(bytecode.OpCloseUpvalue, line)
		} else {
			c.builder.Emit(bytecode.OpPop, line)
		}
		c.pop(1)
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) declareLocal(name string, line int) int {
	if c.scopeDepth == 0 {
		return -1
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].depth != -1 && c.locals[i].depth < c.scopeDepth {
			break
		}
		if c.locals[i].name == name {
			c.errorf(line, "variable %q already declared in this scope", name)
		}
	}
	if len(c.locals) >= MaxLocals {
		c.errorf(line, "too many local variables in function")
		return -1
	}
	c.locals = append(c.locals, localVar{name: name, depth: -1})
	return len(c.locals) - 1
}

func (c *Compiler) defineLocal(slot int) {
	if slot < 0 {
		return
	}
	c.locals[slot].depth = c.scopeDepth
}

func (c *Compiler) resolveLocal(name string, line int) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == -1 {
				c.errorf(line, "cannot read local %q in its own initializer", name)
			}
			return i, true
		}
	}
	return -1, false
}

func (c *Compiler) resolveUpvalue(name string, line int) (int, bool) {
	if c.parent == nil {
		return -1, false
	}
	if idx, ok := c.parent.resolveLocal(name, line); ok {
		c.parent.locals[idx].captured = true
		return c.addUpvalue(idx, true), true
	}
	if idx, ok := c.parent.resolveUpvalue(name, line); ok {
		return c.addUpvalue(idx, false), true
	}
	return -1, false
}

func (c *Compiler) addUpvalue(index int, isLocal bool) int {
	for i, u := range c.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(c.upvalues) - 1
}

// --- top-level entry point ---

// Compile compiles prog as a module body and returns the resulting
// root Function object, or (nil, false) if any compile error was
// reported — matching §4.4's "Output" contract exactly.
func Compile(heap *gc.Heap, module *value.Object, functionClass *value.Object, prog *ast.Program, onErr ErrorFunc) (*value.Object, bool) {
	c := NewRoot(heap, module, onErr)
	for _, s := range prog.Statements {
		c.compileStatement(s)
	}
	c.builder.Emit(bytecode.OpNull, 0)
	c.builder.Emit(bytecode.OpReturn, 0)
	if c.hadError {
		return nil, false
	}
	fn := &value.Function{
		Proto: value.Prototype{
			Module:       module,
			Name:         "<module>",
			ArgCount:     0,
			Vararg:       false,
			UpvalueCount: 0,
		},
		MaxStackUsage: c.maxStack,
		Code:          c.builder.Finish(),
	}
	return heap.AllocateFunction(fn, functionClass), true
}

// finishFunction is the child-compiler counterpart of Compile's tail,
// used for nested FunLiterals and methods.
func (c *Compiler) finishFunction(functionClass *value.Object) *value.Object {
	c.builder.Emit(bytecode.OpNull, 0)
	c.builder.Emit(bytecode.OpReturn, 0)
	defaults := make([]value.Value, 0, len(c.defaults))
	for _, d := range c.defaults {
		defaults = append(defaults, c.constantFold(d))
	}
	fn := &value.Function{
		Proto: value.Prototype{
			Module:       c.module,
			Name:         c.funcName,
			ArgCount:     len(c.params),
			Vararg:       c.vararg,
			Defaults:     defaults,
			UpvalueCount: len(c.upvalues),
			IsGenerator:  c.isGenerator,
		},
		MaxStackUsage: c.maxStack,
		Code:          c.builder.Finish(),
	}
	return heapAllocateFunctionWithClass(c.heap, fn, functionClass)
}

func heapAllocateFunctionWithClass(heap *gc.Heap, fn *value.Function, class *value.Object) *value.Object {
	return heap.AllocateFunction(fn, class)
}

// constantFold evaluates the handful of expression shapes allowed as
// a parameter default (literals only) at compile time; anything else
// is a compile error, since defaults are stored as plain Values in
// the Prototype rather than compiled code (§3.2).
func (c *Compiler) constantFold(e ast.Expression) value.Value {
	switch n := e.(type) {
	case *ast.NumberLiteral:
		return value.Num(n.Value)
	case *ast.StringLiteral:
		return value.FromObject(c.heap.CopyString([]byte(n.Value), nil))
	case *ast.BoolLiteral:
		return value.Bool(n.Value)
	case *ast.NullLiteral:
		return value.Null
	default:
		c.errorf(e.Line(), "default argument values must be literals")
		return value.Null
	}
}

// --- statements ---

func (c *Compiler) compileStatement(s ast.Statement) {
	switch n := s.(type) {
	case *ast.VarDecl:
		c.compileVarDecl(n)
	case *ast.FunDecl:
		c.compileFunDecl(n)
	case *ast.ClassDecl:
		c.compileClassDecl(n)
	case *ast.ExprStmt:
		c.compileExpression(n.X)
		c.builder.Emit(bytecode.OpPop, n.Line())
		c.pop(1)
	case *ast.Block:
		c.beginScope()
		for _, st := range n.Statements {
			c.compileStatement(st)
		}
		c.endScope(n.Line())
	case *ast.If:
		c.compileIf(n)
	case *ast.While:
		c.compileWhile(n)
	case *ast.For:
		c.compileFor(n)
	case *ast.ForIn:
		c.compileForIn(n)
	case *ast.Return:
		c.compileReturn(n)
	case *ast.Break:
		c.compileBreak(n)
	case *ast.Continue:
		c.compileContinue(n)
	case *ast.Try:
		c.compileTry(n)
	case *ast.Raise:
		c.compileExpression(n.X)
		c.builder.Emit(bytecode.OpRaise, n.Line())
		c.pop(1)
	case *ast.Import:
		c.compileImport(n)
	default:
		c.errorf(s.Line(), "compiler: unhandled statement %T", s)
	}
}

func (c *Compiler) compileVarDecl(n *ast.VarDecl) {
	for i, name := range n.Names {
		if i < len(n.Values) {
			c.compileExpression(n.Values[i])
		} else {
			c.builder.Emit(bytecode.OpNull, n.Line())
			c.push(1)
		}
		c.finishVarTarget(name, n.Line())
	}
}

func (c *Compiler) finishVarTarget(name string, line int) {
	if c.scopeDepth > 0 {
		slot := c.declareLocal(name, line)
		c.defineLocal(slot)
		return
	}
	idx := c.constString(name)
	c.builder.EmitU16(bytecode.OpDefineGlobal, idx, line)
	c.pop(1)
}

func (c *Compiler) compileFunDecl(n *ast.FunDecl) {
	if c.scopeDepth > 0 {
		// Declare and define the local before compiling the body, so a
		// recursive call inside the function resolves to its own slot
		// rather than falling through to a global lookup.
		slot := c.declareLocal(n.Name, n.Line())
		c.defineLocal(slot)
		c.compileFunLiteral(n.Fn, n.Name)
		return
	}
	c.compileFunLiteral(n.Fn, n.Name)
	idx := c.constString(n.Name)
	c.builder.EmitU16(bytecode.OpDefineGlobal, idx, n.Line())
	c.pop(1)
}

func (c *Compiler) compileClassDecl(n *ast.ClassDecl) {
	nameIdx := c.constString(n.Name)
	if n.Super != "" {
		c.emitVariableLoad(n.Super, n.Line())
		c.builder.EmitU16(bytecode.OpNewSubclass, nameIdx, n.Line())
		c.pop(1) // NEW_SUBCLASS consumes the superclass it was pushed alongside
	} else {
		c.builder.EmitU16(bytecode.OpNewClass, nameIdx, n.Line())
		c.push(1)
	}

	parentClass := c.class
	c.class = &classCtx{name: n.Name, hasSuper: n.Super != "", parent: parentClass}
	for _, field := range n.Fields {
		_ = field // field declarations emit no code; the VM assigns an instance field's slot on the first write to it (setField)
	}
	for _, m := range n.Methods {
		c.compileMethod(m)
	}
	c.class = parentClass

	c.finishVarTarget(n.Name, n.Line())
}

func (c *Compiler) compileMethod(m *ast.MethodDecl) {
	name := m.Name
	methodNameIdx := c.constString(name)
	if m.IsNative {
		// Native methods are bound by the host at module-load time
		// under their mangled Class.name identity (§4.4); the
		// compiler just reserves the slot with an empty Native stub
		// the loader overwrites.
		proto := value.Prototype{Module: c.module, Name: name, ArgCount: len(m.Params), Vararg: m.Vararg}
		nativeObj := c.heap.AllocateNative(&value.Native{Proto: proto}, nil)
		idx := c.builder.AddConstant(value.FromObject(nativeObj))
		c.builder.EmitU16(bytecode.OpGetConst, idx, m.Line())
		c.push(1)
		c.builder.EmitU16(bytecode.OpNatMethod, methodNameIdx, m.Line())
		c.pop(1)
		return
	}
	isGenerator := containsYield(m.Body)
	child := c.child(name, m.Params, m.Vararg, m.Defaults, isGenerator, true)
	child.beginScope()
	for _, st := range m.Body {
		child.compileStatement(st)
	}
	child.endScope(m.Line())
	fnObj := child.finishFunction(nil)
	c.emitClosure(fnObj, child.upvalues, m.Line())
	c.builder.EmitU16(bytecode.OpDefMethod, methodNameIdx, m.Line())
	c.pop(1)
}

func (c *Compiler) emitClosure(fnObj *value.Object, upvalues []upvalueRef, line int) {
	idx := c.builder.AddConstant(value.FromObject(fnObj))
	c.builder.EmitU16(bytecode.OpClosure, idx, line)
	for _, u := range upvalues {
		c.builder.EmitUpvalueRef(u.isLocal, u.index, line)
	}
	c.push(1)
}

func (c *Compiler) compileIf(n *ast.If) {
	c.compileExpression(n.Cond)
	elseJump := c.builder.EmitJump(bytecode.OpJumpF, n.Line())
	c.builder.Emit(bytecode.OpPop, n.Line())
	c.pop(1)
	c.beginScope()
	for _, st := range n.Then {
		c.compileStatement(st)
	}
	c.endScope(n.Line())
	endJump := c.builder.EmitJump(bytecode.OpJump, n.Line())
	c.builder.PatchJump(elseJump)
	c.builder.Emit(bytecode.OpPop, n.Line())
	c.beginScope()
	for _, st := range n.Else {
		c.compileStatement(st)
	}
	c.endScope(n.Line())
	c.builder.PatchJump(endJump)
}

func (c *Compiler) pushLoop(start int) *loopCtx {
	l := &loopCtx{depth: c.scopeDepth, start: start}
	c.loops = append(c.loops, l)
	return l
}

func (c *Compiler) popLoop() *loopCtx {
	l := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	return l
}

func (c *Compiler) compileWhile(n *ast.While) {
	start := c.builder.Here()
	l := c.pushLoop(start)
	c.compileExpression(n.Cond)
	exitJump := c.builder.EmitJump(bytecode.OpJumpF, n.Line())
	c.builder.Emit(bytecode.OpPop, n.Line())
	c.pop(1)
	c.beginScope()
	for _, st := range n.Body {
		c.compileStatement(st)
	}
	c.endScope(n.Line())
	for _, at := range l.continues {
		c.builder.PatchJumpTo(at, start)
	}
	back := c.builder.EmitJump(bytecode.OpJump, n.Line())
	c.builder.PatchJumpTo(back, start)
	c.builder.PatchJump(exitJump)
	c.builder.Emit(bytecode.OpPop, n.Line())
	for _, at := range l.breaks {
		c.builder.PatchJump(at)
	}
	c.popLoop()
}

func (c *Compiler) compileFor(n *ast.For) {
	c.beginScope()
	if n.Init != nil {
		c.compileStatement(n.Init)
	}
	start := c.builder.Here()
	l := c.pushLoop(start)
	var exitJump int
	hasCond := n.Cond != nil
	if hasCond {
		c.compileExpression(n.Cond)
		exitJump = c.builder.EmitJump(bytecode.OpJumpF, n.Line())
		c.builder.Emit(bytecode.OpPop, n.Line())
		c.pop(1)
	}
	c.beginScope()
	for _, st := range n.Body {
		c.compileStatement(st)
	}
	c.endScope(n.Line())
	postStart := c.builder.Here()
	for _, at := range l.continues {
		c.builder.PatchJumpTo(at, postStart)
	}
	if n.Post != nil {
		c.compileStatement(n.Post)
	}
	back := c.builder.EmitJump(bytecode.OpJump, n.Line())
	c.builder.PatchJumpTo(back, start)
	if hasCond {
		c.builder.PatchJump(exitJump)
		c.builder.Emit(bytecode.OpPop, n.Line())
	}
	for _, at := range l.breaks {
		c.builder.PatchJump(at)
	}
	c.popLoop()
	c.endScope(n.Line())
}

// compileForIn desugars `for name in iterable do body end` onto the
// __iter__/__next__ protocol (GLOSSARY), reusing the same
// SETUP_EXCEPT handler shape a `try`/`except StopIteration` would
// compile to: the loop body runs inside a handler that catches
// StopIteration and turns it into a normal loop exit.
func (c *Compiler) compileForIn(n *ast.ForIn) {
	line := n.Line()
	c.beginScope()

	c.compileExpression(n.Iterable)
	iterIdx := c.constString("__iter__")
	c.builder.EmitU16(bytecode.InvokeOpcode(0), iterIdx, line)
	iterSlot := c.declareLocal("@iter", line)
	c.defineLocal(iterSlot)

	start := c.builder.Here()
	l := c.pushLoop(start)

	handlerAddr := c.builder.EmitAbsolute(bytecode.OpSetupExcept, line)
	c.emitVariableLoad("@iter", line)
	nextIdx := c.constString("__next__")
	c.builder.EmitU16(bytecode.InvokeOpcode(0), nextIdx, line)
	c.push(1)
	c.builder.Emit(bytecode.OpPopHandler, line)

	c.beginScope()
	slot := c.declareLocal(n.Name, line)
	c.defineLocal(slot)
	for _, st := range n.Body {
		c.compileStatement(st)
	}
	c.endScope(line)

	for _, at := range l.continues {
		c.builder.PatchJumpTo(at, start)
	}
	back := c.builder.EmitJump(bytecode.OpJump, line)
	c.builder.PatchJumpTo(back, start)

	// Handler entry: the exception value is on top of the stack. If it
	// is a StopIteration, discard it and fall out of the loop;
	// otherwise re-raise so an unrelated exception keeps propagating.
	c.builder.PatchAbsolute(handlerAddr)
	c.builder.Emit(bytecode.OpDup, line)
	c.emitVariableLoad("StopIteration", line)
	c.builder.Emit(bytecode.OpIs, line)
	mismatch := c.builder.EmitJump(bytecode.OpJumpF, line)
	c.builder.Emit(bytecode.OpPop, line) // discard the IS result
	c.builder.Emit(bytecode.OpPop, line) // discard the exception itself
	loopEnd := c.builder.EmitJump(bytecode.OpJump, line)
	c.builder.PatchJump(mismatch)
	c.builder.Emit(bytecode.OpPop, line) // discard the IS result
	c.builder.Emit(bytecode.OpRaise, line)
	c.builder.PatchJump(loopEnd)

	for _, at := range l.breaks {
		c.builder.PatchJump(at)
	}
	c.popLoop()
	c.endScope(line)
}

func (c *Compiler) compileReturn(n *ast.Return) {
	if n.X != nil {
		c.compileExpression(n.X)
	} else {
		c.builder.Emit(bytecode.OpNull, n.Line())
		c.push(1)
	}
	c.unwindEnsuresForReturn(n.Line())
	c.builder.Emit(bytecode.OpReturn, n.Line())
	c.pop(1)
}

// unwindEnsuresForReturn emits nothing extra beyond what ENSURE_END
// handles at runtime; the VM's unwinder walks active ensure handlers
// with a "return" cause before the RETURN opcode actually pops the
// frame (§4.6 "Return inside a try with an active ensure").
func (c *Compiler) unwindEnsuresForReturn(line int) {}

func (c *Compiler) compileBreak(n *ast.Break) {
	if len(c.loops) == 0 {
		c.errorf(n.Line(), "break outside of a loop")
		return
	}
	l := c.loops[len(c.loops)-1]
	if l.inHandler {
		c.errorf(n.Line(), "break inside a try/except is not allowed")
		return
	}
	at := c.builder.EmitJump(bytecode.OpJump, n.Line())
	l.breaks = append(l.breaks, at)
}

func (c *Compiler) compileContinue(n *ast.Continue) {
	if len(c.loops) == 0 {
		c.errorf(n.Line(), "continue outside of a loop")
		return
	}
	l := c.loops[len(c.loops)-1]
	if l.inHandler {
		c.errorf(n.Line(), "continue inside a try/except is not allowed")
		return
	}
	at := c.builder.EmitJump(bytecode.OpJump, n.Line())
	l.continues = append(l.continues, at)
}

// compileTry emits §4.4's `try`/`except`/`ensure` handler setup:
// SETUP_ENSURE if present, then a single SETUP_EXCEPT whose target
// runs the except clauses as a source-order cascade; each handler is
// dropped with POP_HANDLER once the protected body completes normally.
// The ensure body runs after normal completion, after a handled
// exception, and, through the VM's unwinder, while an exception
// propagates past it.
func (c *Compiler) compileTry(n *ast.Try) {
	if len(n.Excepts)+boolToInt(n.Ensure != nil) > MaxHandlers {
		c.errorf(n.Line(), "too many handlers in one try (max %d)", MaxHandlers)
	}
	if len(c.loops) > 0 {
		c.loops[len(c.loops)-1].inHandler = true
		defer func() { c.loops[len(c.loops)-1].inHandler = false }()
	}
	c.handlerDepth++
	defer func() { c.handlerDepth-- }()

	var ensureAddr int
	hasEnsure := n.Ensure != nil
	if hasEnsure {
		ensureAddr = c.builder.EmitAbsolute(bytecode.OpSetupEnsure, n.Line())
	}
	hasExcepts := len(n.Excepts) > 0
	var exceptAddr int
	if hasExcepts {
		// One handler covers every except clause; its target runs the
		// clauses as a source-order cascade, re-raising only if none
		// of them match (§4.4 "first matching except wins").
		exceptAddr = c.builder.EmitAbsolute(bytecode.OpSetupExcept, n.Line())
	}

	c.beginScope()
	for _, st := range n.Body {
		c.compileStatement(st)
	}
	c.endScope(n.Line())
	if hasExcepts {
		c.builder.Emit(bytecode.OpPopHandler, n.Line())
	}
	if hasEnsure {
		c.builder.Emit(bytecode.OpPopHandler, n.Line())
	}
	afterBody := c.builder.EmitJump(bytecode.OpJump, n.Line())

	if hasExcepts {
		c.builder.PatchAbsolute(exceptAddr)
		// Handler entry: the raised exception sits on top of the stack.
		var handledJumps []int
		for _, ex := range n.Excepts {
			c.builder.Emit(bytecode.OpDup, ex.Line())
			c.emitVariableLoad(ex.Class, ex.Line())
			c.builder.Emit(bytecode.OpIs, ex.Line())
			mismatch := c.builder.EmitJump(bytecode.OpJumpF, ex.Line())
			c.builder.Emit(bytecode.OpPop, ex.Line()) // discard the IS result
			c.beginScope()
			slot := c.declareLocal(ex.Name, ex.Line())
			c.defineLocal(slot) // binds the exception, already on stack
			for _, st := range ex.Body {
				c.compileStatement(st)
			}
			c.endScope(ex.Line())
			handledJumps = append(handledJumps, c.builder.EmitJump(bytecode.OpJump, ex.Line()))
			c.builder.PatchJump(mismatch)
			c.builder.Emit(bytecode.OpPop, ex.Line()) // discard the IS result
		}
		// No except clause matched: the exception is still on top of
		// the stack (never consumed by a mismatched DUP/IS pair), so a
		// bare RAISE re-propagates it.
		c.builder.Emit(bytecode.OpRaise, n.Line())
		for _, hj := range handledJumps {
			c.builder.PatchJump(hj)
		}
		if hasEnsure {
			// A handled exception leaves the ensure handler installed.
			c.builder.Emit(bytecode.OpPopHandler, n.Line())
		}
	}
	if hasEnsure {
		c.builder.PatchJump(afterBody) // normal completion runs the ensure body too
		c.builder.PatchAbsolute(ensureAddr)
		c.beginScope()
		for _, st := range n.Ensure {
			c.compileStatement(st)
		}
		c.endScope(n.Line())
		c.builder.Emit(bytecode.OpEnsureEnd, n.Line())
		return
	}
	c.builder.PatchJump(afterBody)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (c *Compiler) compileImport(n *ast.Import) {
	line := n.Line()
	fullIdx := c.constString(joinDots(n.Names))
	switch {
	case n.As != "":
		c.builder.EmitU16(bytecode.OpImportAs, fullIdx, line)
		c.push(1)
		c.finishVarTarget(n.As, line)
	case len(n.For) > 0:
		// OpImportFrom loads the module without pushing it (§4.6), so
		// each OpImportName only pushes the one bound name's value.
		c.builder.EmitU16(bytecode.OpImportFrom, fullIdx, line)
		for _, name := range n.For {
			idx := c.constString(name)
			c.builder.EmitU16(bytecode.OpImportName, idx, line)
			c.push(1)
			c.finishVarTarget(name, line)
		}
	default:
		c.builder.EmitU16(bytecode.OpImport, fullIdx, line)
		c.push(1)
		last := n.Names[len(n.Names)-1]
		c.finishVarTarget(last, line)
	}
}

func joinDots(parts []string) string {
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += "."
		}
		s += p
	}
	return s
}

// --- expressions ---

func (c *Compiler) compileExpression(e ast.Expression) {
	switch n := e.(type) {
	case *ast.NumberLiteral:
		idx := c.constNum(n.Value)
		c.builder.EmitU16(bytecode.OpGetConst, idx, n.Line())
		c.push(1)
	case *ast.StringLiteral:
		idx := c.constString(n.Value)
		c.builder.EmitU16(bytecode.OpGetConst, idx, n.Line())
		c.push(1)
	case *ast.BoolLiteral:
		idx := c.builder.AddConstant(value.Bool(n.Value))
		c.builder.EmitU16(bytecode.OpGetConst, idx, n.Line())
		c.push(1)
	case *ast.NullLiteral:
		c.builder.Emit(bytecode.OpNull, n.Line())
		c.push(1)
	case *ast.Identifier:
		c.emitVariableLoad(n.Name, n.Line())
	case *ast.Super:
		c.errorf(n.Line(), "super is only valid as a call receiver")
	case *ast.ListLiteral:
		for _, el := range n.Elements {
			c.compileExpression(el)
		}
		c.builder.EmitByte(bytecode.OpNewList, byte(len(n.Elements)), n.Line())
		c.pop(len(n.Elements))
		c.push(1)
	case *ast.TupleLiteral:
		for _, el := range n.Elements {
			c.compileExpression(el)
		}
		c.builder.EmitByte(bytecode.OpNewTuple, byte(len(n.Elements)), n.Line())
		c.pop(len(n.Elements))
		c.push(1)
	case *ast.TableLiteral:
		for _, ent := range n.Entries {
			c.compileExpression(ent.Key)
			c.compileExpression(ent.Value)
		}
		c.builder.EmitByte(bytecode.OpNewTable, byte(len(n.Entries)), n.Line())
		c.pop(len(n.Entries) * 2)
		c.push(1)
	case *ast.FunLiteral:
		c.compileFunLiteral(n, "<anonymous>")
	case *ast.Yield:
		if n.X != nil {
			c.compileExpression(n.X)
		} else {
			c.builder.Emit(bytecode.OpNull, n.Line())
			c.push(1)
		}
		c.builder.Emit(bytecode.OpYield, n.Line())
	case *ast.Assign:
		c.compileAssign(n)
	case *ast.Unpack:
		c.compileUnpack(n)
	case *ast.Unary:
		c.compileExpression(n.X)
		switch n.Op {
		case "-":
			c.builder.Emit(bytecode.OpNeg, n.Line())
		case "!", "not":
			c.builder.Emit(bytecode.OpNot, n.Line())
		}
	case *ast.Binary:
		c.compileBinary(n)
	case *ast.Logical:
		c.compileLogical(n)
	case *ast.FieldAccess:
		c.compileExpression(n.X)
		idx := c.constString(n.Name)
		c.builder.EmitU16(bytecode.OpGetField, idx, n.Line())
	case *ast.Subscript:
		c.compileExpression(n.X)
		c.compileExpression(n.Index)
		c.builder.Emit(bytecode.OpSubscrGet, n.Line())
		c.pop(1)
	case *ast.Call:
		c.compileCall(n)
	default:
		c.errorf(e.Line(), "compiler: unhandled expression %T", e)
	}
}

func (c *Compiler) emitVariableLoad(name string, line int) {
	if idx, ok := c.resolveLocal(name, line); ok {
		c.builder.EmitByte(bytecode.OpGetLocal, byte(idx), line)
		c.push(1)
		return
	}
	if idx, ok := c.resolveUpvalue(name, line); ok {
		c.builder.EmitByte(bytecode.OpGetUpvalue, byte(idx), line)
		c.push(1)
		return
	}
	nameIdx := c.constString(name)
	c.builder.EmitU16(bytecode.OpGetGlobal, nameIdx, line)
	c.push(1)
}

func (c *Compiler) compileFunLiteral(n *ast.FunLiteral, name string) {
	isGenerator := n.IsGenerator || containsYield(n.Body)
	child := c.child(name, n.Params, n.Vararg, n.Defaults, isGenerator, false)
	child.beginScope()
	for _, st := range n.Body {
		child.compileStatement(st)
	}
	child.endScope(n.Line())
	fnObj := child.finishFunction(nil)
	c.emitClosure(fnObj, child.upvalues, n.Line())
}

// containsYield walks body looking for a `yield` not nested inside
// another (non-lambda) function, marking the enclosing FunLiteral as
// a generator per §4.6.
func containsYield(body []ast.Statement) bool {
	found := false
	var walkStmt func(ast.Statement)
	var walkExpr func(ast.Expression)
	walkExpr = func(e ast.Expression) {
		if e == nil || found {
			return
		}
		switch n := e.(type) {
		case *ast.Yield:
			found = true
		case *ast.Binary:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.Logical:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.Unary:
			walkExpr(n.X)
		case *ast.Assign:
			walkExpr(n.Value)
		case *ast.Call:
			for _, a := range n.Args {
				walkExpr(a)
			}
		case *ast.FieldAccess:
			walkExpr(n.X)
		case *ast.Subscript:
			walkExpr(n.X)
			walkExpr(n.Index)
		}
	}
	walkStmt = func(s ast.Statement) {
		if found {
			return
		}
		switch n := s.(type) {
		case *ast.ExprStmt:
			walkExpr(n.X)
		case *ast.Block:
			for _, st := range n.Statements {
				walkStmt(st)
			}
		case *ast.If:
			walkExpr(n.Cond)
			for _, st := range n.Then {
				walkStmt(st)
			}
			for _, st := range n.Else {
				walkStmt(st)
			}
		case *ast.While:
			walkExpr(n.Cond)
			for _, st := range n.Body {
				walkStmt(st)
			}
		case *ast.For:
			for _, st := range n.Body {
				walkStmt(st)
			}
		case *ast.ForIn:
			for _, st := range n.Body {
				walkStmt(st)
			}
		case *ast.Return:
			walkExpr(n.X)
		case *ast.VarDecl:
			for _, v := range n.Values {
				walkExpr(v)
			}
		}
	}
	for _, st := range body {
		walkStmt(st)
	}
	return found
}

func (c *Compiler) compileAssign(n *ast.Assign) {
	switch t := n.Target.(type) {
	case *ast.Identifier:
		c.compileExpression(n.Value)
		if idx, ok := c.resolveLocal(t.Name, n.Line()); ok {
			c.builder.EmitByte(bytecode.OpSetLocal, byte(idx), n.Line())
			return
		}
		if idx, ok := c.resolveUpvalue(t.Name, n.Line()); ok {
			c.builder.EmitByte(bytecode.OpSetUpvalue, byte(idx), n.Line())
			return
		}
		nameIdx := c.constString(t.Name)
		c.builder.EmitU16(bytecode.OpSetGlobal, nameIdx, n.Line())
	case *ast.FieldAccess:
		c.compileExpression(t.X)
		c.compileExpression(n.Value)
		idx := c.constString(t.Name)
		c.builder.EmitU16(bytecode.OpSetField, idx, n.Line())
		c.pop(1)
	case *ast.Subscript:
		c.compileExpression(t.X)
		c.compileExpression(t.Index)
		c.compileExpression(n.Value)
		c.builder.Emit(bytecode.OpSubscrSet, n.Line())
		c.pop(2)
	default:
		c.errorf(n.Line(), "invalid assignment target %T", t)
	}
}

// compileUnpack implements §4.4's unpacking assignment: a literal
// list/tuple r.h.s with exactly N elements for N targets compiles
// without materializing the aggregate; anything else emits OP_UNPACK.
func (c *Compiler) compileUnpack(n *ast.Unpack) {
	targets := n.Targets
	if lit, ok := literalElements(n.Value); ok && len(lit) == len(targets) {
		for _, el := range lit {
			c.compileExpression(el)
		}
	} else {
		c.compileExpression(n.Value)
		c.builder.EmitByte(bytecode.OpUnpack, byte(len(targets)), n.Line())
		c.push(len(targets) - 1)
	}
	for i := len(targets) - 1; i >= 0; i-- {
		c.assignUnpackTarget(targets[i], n.Line())
		c.builder.Emit(bytecode.OpPop, n.Line())
		c.pop(1)
	}
}

// assignUnpackTarget stores the value already sitting on top of the
// stack into target. Unlike compileAssign, it never compiles a value
// expression — unpacking only ever targets simple variables (§4.4
// gives field/subscript targets no mention alongside unpacking).
func (c *Compiler) assignUnpackTarget(target ast.Expression, line int) {
	t, ok := target.(*ast.Identifier)
	if !ok {
		c.errorf(line, "unpacking assignment only supports simple variable targets")
		return
	}
	if idx, ok := c.resolveLocal(t.Name, line); ok {
		c.builder.EmitByte(bytecode.OpSetLocal, byte(idx), line)
		return
	}
	if idx, ok := c.resolveUpvalue(t.Name, line); ok {
		c.builder.EmitByte(bytecode.OpSetUpvalue, byte(idx), line)
		return
	}
	nameIdx := c.constString(t.Name)
	c.builder.EmitU16(bytecode.OpSetGlobal, nameIdx, line)
}

func literalElements(e ast.Expression) ([]ast.Expression, bool) {
	switch n := e.(type) {
	case *ast.ListLiteral:
		return n.Elements, true
	case *ast.TupleLiteral:
		return n.Elements, true
	default:
		return nil, false
	}
}

func (c *Compiler) compileBinary(n *ast.Binary) {
	c.compileExpression(n.Left)
	c.compileExpression(n.Right)
	switch n.Op {
	case "+":
		c.builder.Emit(bytecode.OpAdd, n.Line())
	case "-":
		c.builder.Emit(bytecode.OpSub, n.Line())
	case "*":
		c.builder.Emit(bytecode.OpMul, n.Line())
	case "/":
		c.builder.Emit(bytecode.OpDiv, n.Line())
	case "%":
		c.builder.Emit(bytecode.OpMod, n.Line())
	case "^":
		c.builder.Emit(bytecode.OpPow, n.Line())
	case "==":
		c.builder.Emit(bytecode.OpEq, n.Line())
	case "!=":
		c.builder.Emit(bytecode.OpEq, n.Line())
		c.builder.Emit(bytecode.OpNot, n.Line())
	case ">":
		c.builder.Emit(bytecode.OpGt, n.Line())
	case ">=":
		c.builder.Emit(bytecode.OpGe, n.Line())
	case "<":
		c.builder.Emit(bytecode.OpLt, n.Line())
	case "<=":
		c.builder.Emit(bytecode.OpLe, n.Line())
	default:
		c.errorf(n.Line(), "unknown binary operator %q", n.Op)
	}
	c.pop(1)
}

func (c *Compiler) compileLogical(n *ast.Logical) {
	c.compileExpression(n.Left)
	var jump int
	switch n.Op {
	case "&&", "and":
		jump = c.builder.EmitJump(bytecode.OpJumpF, n.Line())
	case "||", "or":
		jump = c.builder.EmitJump(bytecode.OpJumpT, n.Line())
	default:
		c.errorf(n.Line(), "unknown logical operator %q", n.Op)
		return
	}
	c.builder.Emit(bytecode.OpPop, n.Line())
	c.pop(1)
	c.compileExpression(n.Right)
	c.builder.PatchJump(jump)
}

func (c *Compiler) compileCall(n *ast.Call) {
	line := n.Line()
	if _, isSuper := n.Recv.(*ast.Super); isSuper {
		c.emitVariableLoad("this", line)
		for _, a := range n.Args {
			c.compileExpression(a)
		}
		nameIdx := c.constString(n.Name)
		op := bytecode.SuperOpcode(len(n.Args))
		if op == bytecode.OpSuper {
			c.builder.EmitU16Byte(op, nameIdx, byte(len(n.Args)), line)
		} else {
			c.builder.EmitU16(op, nameIdx, line)
		}
		c.pop(len(n.Args))
		return
	}
	if n.Name != "" {
		c.compileExpression(n.Recv)
		for _, a := range n.Args {
			c.compileExpression(a)
		}
		nameIdx := c.constString(n.Name)
		op := bytecode.InvokeOpcode(len(n.Args))
		if op == bytecode.OpInvoke {
			c.builder.EmitU16Byte(op, nameIdx, byte(len(n.Args)), line)
		} else {
			c.builder.EmitU16(op, nameIdx, line)
		}
		c.pop(len(n.Args))
		return
	}
	c.compileExpression(n.Recv)
	for _, a := range n.Args {
		c.compileExpression(a)
	}
	op := bytecode.CallOpcode(len(n.Args))
	if op == bytecode.OpCall {
		c.builder.EmitByte(op, byte(len(n.Args)), line)
	} else {
		c.builder.Emit(op, line)
	}
	c.pop(len(n.Args))
}
