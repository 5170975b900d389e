package compiler

import (
	"strings"
	"testing"

	"github.com/blang-lang/blang/pkg/bytecode"
	"github.com/blang-lang/blang/pkg/gc"
	"github.com/blang-lang/blang/pkg/parser"
	"github.com/blang-lang/blang/pkg/value"
)

func mustCompile(t *testing.T, src string) *value.Object {
	t.Helper()
	p := parser.New(src)
	prog, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	heap := gc.New(gc.Config{})
	mod := heap.AllocateModule(heap.CopyString([]byte("test"), nil), "test", nil)
	var errs []string
	fn, ok := Compile(heap, mod, nil, prog, func(line int, msg string) {
		errs = append(errs, msg)
	})
	if !ok {
		t.Fatalf("Compile(%q) reported errors: %v", src, errs)
	}
	return fn
}

// disasm renders code through bytecode.Disassemble, so opcode
// mnemonics can be searched for without re-deriving each
// instruction's operand width by hand.
func disasm(code []byte, constants []value.Value) string {
	return bytecode.Disassemble("test", code, constants)
}

func countMnemonic(disassembly, mnemonic string) int {
	n := 0
	for _, line := range strings.Split(disassembly, "\n") {
		fields := strings.Fields(line)
		for _, f := range fields {
			if f == mnemonic {
				n++
			}
		}
	}
	return n
}

func TestModuleLevelVarDeclCompilesToGlobal(t *testing.T) {
	fn := mustCompile(t, "var x = 1;")
	code := fn.AsFunction().Code
	if countMnemonic(disasm(code.Bytes, code.Constants), "DEFINE_GLOBAL") != 1 {
		t.Errorf("expected a module-level var to compile to DEFINE_GLOBAL")
	}
}

func TestFunctionBodyVarDeclCompilesToLocalNotGlobal(t *testing.T) {
	fn := mustCompile(t, `
fun f()
    var x = 1
    return x
end`)
	outerCode := fn.AsFunction().Code
	if countMnemonic(disasm(outerCode.Bytes, outerCode.Constants), "DEFINE_GLOBAL") != 1 {
		t.Errorf("expected exactly one DEFINE_GLOBAL at module level (for f itself)")
	}

	// The compiled closure is the sole constant referencing a nested
	// Function; its own body must resolve `x` as a local, never a
	// global (the scope-depth bug: a body-level var leaking to
	// DEFINE_GLOBAL breaks recursion and closures over it).
	var inner *value.Function
	for _, c := range outerCode.Constants {
		if c.Is(value.ObjFunction) {
			inner = c.AsObject().AsFunction()
		}
	}
	if inner == nil {
		t.Fatalf("expected a nested Function constant for f's body")
	}
	innerDisasm := disasm(inner.Code.Bytes, inner.Code.Constants)
	if countMnemonic(innerDisasm, "DEFINE_GLOBAL") != 0 {
		t.Errorf("expected f's body-level var to compile to a local, got DEFINE_GLOBAL")
	}
	if countMnemonic(innerDisasm, "SET_LOCAL")+countMnemonic(innerDisasm, "GET_LOCAL") == 0 {
		t.Errorf("expected f's body to reference x through a local slot")
	}
}

func TestMethodBodyVarDeclCompilesToLocal(t *testing.T) {
	fn := mustCompile(t, `
class Counter is Object
    fun inc()
        var step = 1
        return step
    end
end`)
	var methodFn *value.Function
	for _, c := range fn.AsFunction().Code.Constants {
		if c.Is(value.ObjFunction) {
			methodFn = c.AsObject().AsFunction()
		}
	}
	if methodFn == nil {
		t.Fatalf("expected inc's compiled Function among the module's constants")
	}
	if countMnemonic(disasm(methodFn.Code.Bytes, methodFn.Code.Constants), "DEFINE_GLOBAL") != 0 {
		t.Errorf("expected inc's body-level var to compile to a local, got DEFINE_GLOBAL")
	}
}

func TestImportForDoesNotLeaveModuleOnStack(t *testing.T) {
	fn := mustCompile(t, `import math for sqrt, pow;`)
	code := fn.AsFunction().Code
	d := disasm(code.Bytes, code.Constants)
	if n := countMnemonic(d, "IMPORT_FROM"); n != 1 {
		t.Fatalf("expected exactly one IMPORT_FROM, got %d", n)
	}
	if n := countMnemonic(d, "IMPORT_NAME"); n != 2 {
		t.Fatalf("expected one IMPORT_NAME per bound name, got %d", n)
	}
	// Each bound name should be consumed by its own DEFINE_GLOBAL (at
	// module scope); no stray POP should be needed to balance a
	// leftover module value since IMPORT_FROM no longer pushes one.
	if n := countMnemonic(d, "DEFINE_GLOBAL"); n != 2 {
		t.Errorf("expected 2 DEFINE_GLOBAL (sqrt, pow), got %d", n)
	}
	if n := countMnemonic(d, "POP"); n != 0 {
		t.Errorf("expected no stray POP balancing a leaked import module value, got %d", n)
	}
}

func TestIfBodyVarDeclCompilesToLocal(t *testing.T) {
	fn := mustCompile(t, `
if true then
    var y = 2
end`)
	code := fn.AsFunction().Code
	if countMnemonic(disasm(code.Bytes, code.Constants), "DEFINE_GLOBAL") != 0 {
		t.Errorf("expected an if-body var to already compile to a local (pre-existing beginScope/endScope around if)")
	}
}

func TestCompileReportsSyntaxLevelErrorsThroughCallback(t *testing.T) {
	p := parser.New("fun f() return 1 end")
	prog, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	heap := gc.New(gc.Config{})
	mod := heap.AllocateModule(heap.CopyString([]byte("test"), nil), "test", nil)
	_, ok := Compile(heap, mod, nil, prog, func(line int, msg string) {})
	if !ok {
		t.Fatalf("expected this well-formed program to compile cleanly")
	}
}
