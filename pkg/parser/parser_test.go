package parser

import (
	"testing"

	"github.com/blang-lang/blang/pkg/ast"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := New(src)
	prog, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v (errors: %v)", src, err, p.Errors())
	}
	return prog
}

func TestParsesVarDecl(t *testing.T) {
	prog := mustParse(t, "var x = 1 + 2;")
	if len(prog.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(prog.Statements))
	}
	decl, ok := prog.Statements[0].(*ast.VarDecl)
	if !ok {
		t.Fatalf("expected *ast.VarDecl, got %T", prog.Statements[0])
	}
	if len(decl.Names) != 1 || decl.Names[0] != "x" {
		t.Errorf("expected name x, got %v", decl.Names)
	}
	if _, ok := decl.Values[0].(*ast.Binary); !ok {
		t.Errorf("expected Binary initializer, got %T", decl.Values[0])
	}
}

func TestParsesFunDecl(t *testing.T) {
	prog := mustParse(t, "fun add(a, b) return a + b end")
	decl, ok := prog.Statements[0].(*ast.FunDecl)
	if !ok {
		t.Fatalf("expected *ast.FunDecl, got %T", prog.Statements[0])
	}
	if decl.Name != "add" {
		t.Errorf("expected name add, got %q", decl.Name)
	}
	if len(decl.Fn.Params) != 2 {
		t.Errorf("expected 2 params, got %d", len(decl.Fn.Params))
	}
}

func TestParsesClassDecl(t *testing.T) {
	prog := mustParse(t, `
class Dog is Object
    fun bark()
        return "woof"
    end
end`)
	decl, ok := prog.Statements[0].(*ast.ClassDecl)
	if !ok {
		t.Fatalf("expected *ast.ClassDecl, got %T", prog.Statements[0])
	}
	if decl.Name != "Dog" || decl.Super != "Object" {
		t.Errorf("expected Dog is Object, got %s is %s", decl.Name, decl.Super)
	}
	if len(decl.Methods) != 1 || decl.Methods[0].Name != "bark" {
		t.Errorf("expected method bark, got %v", decl.Methods)
	}
}

func TestParsesIfElse(t *testing.T) {
	prog := mustParse(t, `
if x > 0 then
    print(x)
else
    print(0)
end`)
	if _, ok := prog.Statements[0].(*ast.If); !ok {
		t.Fatalf("expected *ast.If, got %T", prog.Statements[0])
	}
}

func TestParsesTryExceptRaise(t *testing.T) {
	prog := mustParse(t, `
try
    raise InvalidArgException("bad")
except InvalidArgException e
    print(e)
end`)
	if _, ok := prog.Statements[0].(*ast.Try); !ok {
		t.Fatalf("expected *ast.Try, got %T", prog.Statements[0])
	}
}

func TestParserReportsSyntaxError(t *testing.T) {
	p := New("var = ;")
	_, err := p.Parse()
	if err == nil && len(p.Errors()) == 0 {
		t.Fatalf("expected a parse error for malformed var decl")
	}
}
