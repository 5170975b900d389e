// Package test exercises the interpreter end to end: source in,
// result out, through the same Eval path the CLI and REPL use.
package test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blang-lang/blang/pkg/vm"
)

func newMachine(t *testing.T) *vm.VM {
	t.Helper()
	return vm.New(vm.Config{
		OnError: func(line int, msg string) {
			t.Logf("line %d: %s", line, msg)
		},
	})
}

func TestArithmeticExpression(t *testing.T) {
	machine := newMachine(t)
	result, err := machine.Eval("<test>", "return 2 + 3 * 4;")
	require.NoError(t, err)
	require.True(t, result.IsNum())
	assert.Equal(t, 14.0, result.AsNum())
}

func TestVarAndControlFlow(t *testing.T) {
	machine := newMachine(t)
	src := `
var total = 0;
for var i = 0; i < 5; i = i + 1 do
    total = total + i;
end
return total;
`
	result, err := machine.Eval("<test>", src)
	require.NoError(t, err)
	assert.Equal(t, 10.0, result.AsNum())
}

func TestFunctionDefinitionAndCall(t *testing.T) {
	machine := newMachine(t)
	src := `
fun square(x)
    return x * x;
end
return square(7);
`
	result, err := machine.Eval("<test>", src)
	require.NoError(t, err)
	assert.Equal(t, 49.0, result.AsNum())
}

func TestClassInstanceAndMethod(t *testing.T) {
	machine := newMachine(t)
	src := `
class Counter is Object
    var n;

    fun init()
        this.n = 0;
    end

    fun increment()
        this.n = this.n + 1;
        return this.n;
    end
end

var c = Counter();
c.increment();
c.increment();
return c.increment();
`
	result, err := machine.Eval("<test>", src)
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.AsNum())
}

func TestInheritanceAndSuper(t *testing.T) {
	machine := newMachine(t)
	src := `
class Animal is Object
    fun speak()
        return "...";
    end
end

class Dog is Animal
    fun speak()
        return "woof";
    end
end

var d = Dog();
return d.speak();
`
	result, err := machine.Eval("<test>", src)
	require.NoError(t, err)
	s, derr := machine.ToDisplayString(result)
	require.NoError(t, derr)
	assert.Equal(t, "woof", s)
}

func TestTryExceptCatchesRaisedException(t *testing.T) {
	machine := newMachine(t)
	src := `
var caught = false;
try
    raise InvalidArgException("bad value");
except InvalidArgException e
    caught = true;
end
return caught;
`
	result, err := machine.Eval("<test>", src)
	require.NoError(t, err)
	require.True(t, result.IsBool())
	assert.True(t, result.AsBool())
}

func TestPrintBuiltinWritesToStdout(t *testing.T) {
	var buf strings.Builder
	machine := vm.New(vm.Config{Stdout: &buf})
	_, err := machine.Eval("<test>", `print("hello", "world");`)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", buf.String())
}

func TestListLiteralAndIndexing(t *testing.T) {
	machine := newMachine(t)
	src := `
var xs = [1, 2, 3];
return xs[1];
`
	result, err := machine.Eval("<test>", src)
	require.NoError(t, err)
	assert.Equal(t, 2.0, result.AsNum())
}
