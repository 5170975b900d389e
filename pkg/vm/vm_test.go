package vm

import (
	"testing"

	"github.com/blang-lang/blang/pkg/value"
)

func newTestVM(t *testing.T, cfg Config) *VM {
	t.Helper()
	if cfg.OnError == nil {
		cfg.OnError = func(line int, msg string) { t.Logf("line %d: %s", line, msg) }
	}
	return New(cfg)
}

// TestNewSurvivesStressModeBootstrap regression-tests the bootstrap
// rooting gap: before vm.heap.Disable()/Enable() bracketed bootstrap(),
// a Stress-mode Heap collected on the very first allocation inside
// bootstrap and freed classes nothing rooted yet.
func TestNewSurvivesStressModeBootstrap(t *testing.T) {
	machine := newTestVM(t, Config{Stress: true})
	result, err := machine.Eval("<test>", "return 1 + 1;")
	if err != nil {
		t.Fatalf("Eval under Stress-mode bootstrap: %v", err)
	}
	if !result.IsNum() || result.AsNum() != 2 {
		t.Errorf("expected 2, got %v", result)
	}
}

func TestClosureCapturesLocalAcrossCalls(t *testing.T) {
	machine := newTestVM(t, Config{})
	src := `
fun make_counter()
    var count = 0
    fun inc()
        count = count + 1
        return count
    end
    return inc
end
var c1 = make_counter()
var c2 = make_counter()
c1()
c1()
c2()
return c1() + c2();
`
	result, err := machine.Eval("<test>", src)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	// c1 called 3 times (1,2,3), c2 called 2 times (1,2): 3 + 2 = 5.
	if !result.IsNum() || result.AsNum() != 5 {
		t.Errorf("expected independently-captured counters to sum to 5, got %v", result)
	}
}

func TestRecursiveFunctionBodyLocalDoesNotShareSlot(t *testing.T) {
	machine := newTestVM(t, Config{})
	src := `
fun fact(n)
    var result = 1
    if n > 1 then
        result = n * fact(n - 1)
    end
    return result
end
return fact(5);
`
	result, err := machine.Eval("<test>", src)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !result.IsNum() || result.AsNum() != 120 {
		t.Errorf("expected fact(5) == 120 (would corrupt if result were a shared global), got %v", result)
	}
}

func TestDeepRecursionRaisesStackOverflowInsteadOfCrashing(t *testing.T) {
	machine := newTestVM(t, Config{FrameStackSize: 64})
	src := `
fun recurse(n)
    return recurse(n + 1)
end
return recurse(0);
`
	_, err := machine.Eval("<test>", src)
	if err == nil {
		t.Fatalf("expected unbounded recursion to raise a RuntimeError, got none")
	}
}

func TestImportForDoesNotLeakStackSlots(t *testing.T) {
	machine := newTestVM(t, Config{
		ImportSource: func(dotted string) ([]byte, bool) {
			if dotted == "mathlib" {
				return []byte("fun sqrt(x) return x; end\nfun pow(x, y) return x; end\n"), true
			}
			return nil, false
		},
	})
	before := len(machine.stack)
	result, err := machine.Eval("<test>", `
import mathlib for sqrt, pow;
return sqrt(4) + pow(2, 3);
`)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !result.IsNum() {
		t.Fatalf("expected a numeric result, got %v", result)
	}
	after := len(machine.stack)
	if after != before {
		t.Errorf("expected the value stack to return to its pre-import height (%d), got %d — OpImportFrom/OpImportName leaked a slot", before, after)
	}
}

func TestRepeatedImportReturnsSameModuleObject(t *testing.T) {
	machine := newTestVM(t, Config{
		ImportSource: func(dotted string) ([]byte, bool) {
			if dotted == "once" {
				return []byte("var loaded = true;\n"), true
			}
			return nil, false
		},
	})
	first, err := machine.importModule("once")
	if err != nil {
		t.Fatalf("importModule: %v", err)
	}
	second, err := machine.importModule("once")
	if err != nil {
		t.Fatalf("importModule (second): %v", err)
	}
	if first != second {
		t.Errorf("expected a repeated import to be idempotent and return the cached module")
	}
}

func TestUncaughtExceptionPropagatesAsRuntimeError(t *testing.T) {
	machine := newTestVM(t, Config{})
	_, err := machine.Eval("<test>", `raise InvalidArgException("boom");`)
	if err == nil {
		t.Fatalf("expected a raised exception to surface as an error")
	}
	if _, ok := err.(*RuntimeError); !ok {
		t.Errorf("expected *RuntimeError, got %T", err)
	}
}

func TestTryExceptCatchesRaisedException(t *testing.T) {
	machine := newTestVM(t, Config{})
	result, err := machine.Eval("<test>", `
try
    raise InvalidArgException("boom")
except InvalidArgException e
    return "caught";
end
return "not caught";
`)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !result.Is(value.ObjString) {
		t.Fatalf("expected a String result, got %v", result)
	}
	if s := result.AsObject().AsString().Text(); s != "caught" {
		t.Errorf("expected the except clause to run, got %q", s)
	}
}
