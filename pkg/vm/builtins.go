package vm

import (
	"fmt"
	"time"

	"github.com/blang-lang/blang/pkg/value"
)

// nativePrint implements the always-available `print(...)` every
// module starts with (installBuiltins, module.go): each argument's
// toString is written to cfg.Stdout separated by a space, followed by
// a trailing newline. Declared vararg, so adjustArgs has already
// packed every call-site argument into the single Tuple sitting at
// arg slot 0 (§4.4).
func (vm *VM) nativePrint(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	args := api.Arg(0).AsObject().AsTuple().Elems
	for i, a := range args {
		if i > 0 {
			fmt.Fprint(vm.cfg.Stdout, " ")
		}
		s, rerr := vm.toDisplayString(a)
		if rerr != nil {
			return api.Fail(rerr)
		}
		fmt.Fprint(vm.cfg.Stdout, s)
	}
	fmt.Fprintln(vm.cfg.Stdout)
	api.PushNull()
	return true
}

// toDisplayString dispatches to a value's toString method (§4.6), the
// same special-method lookup arithmetic falls back to for non-numeric
// operands.
func (vm *VM) toDisplayString(v value.Value) (string, *RuntimeError) {
	method, _, ok := vm.lookupMethodByName(value.ClassOf(v, &vm.builtins), "toString")
	if !ok {
		return classDisplayName(value.ClassOf(v, &vm.builtins)), nil
	}
	result, rerr := vm.callMethodValue(method, v, nil)
	if rerr != nil {
		return "", rerr
	}
	if !result.Is(value.ObjString) {
		return "", vm.raiseType("toString() must return a String")
	}
	return result.AsObject().AsString().Text(), nil
}

// ToDisplayString is toDisplayString exposed to embedders (e.g. a REPL
// printing an Eval result) that have no other way to render a Value
// as text.
func (vm *VM) ToDisplayString(v value.Value) (string, error) {
	s, rerr := vm.toDisplayString(v)
	if rerr != nil {
		return "", rerr
	}
	return s, nil
}

// nativeTypeof returns the argument's class (§4.1 classOf), the
// reflective counterpart to toString.
func (vm *VM) nativeTypeof(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	class := value.ClassOf(api.Arg(0), &vm.builtins)
	api.Push(value.FromObject(class))
	return true
}

// nativeClock exposes a monotonic wall-clock reading in seconds, for
// benchmarking scripts the way most scripting-language standard
// libraries do.
func (vm *VM) nativeClock(apiVal interface{}) bool {
	api := apiVal.(*stackAPI)
	api.PushNum(float64(time.Now().UnixNano()) / 1e9)
	return true
}
