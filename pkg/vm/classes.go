package vm

import (
	"fmt"
	"math"

	"github.com/blang-lang/blang/pkg/bytecode"
	"github.com/blang-lang/blang/pkg/value"
)

// getField implements GET_FIELD (§3.3.3, §4.6): an Instance's own
// field index is consulted first; a hit returns the stored value.
// Otherwise this falls back to a bound-method lookup on the
// receiver's class chain (field-or-method attribute resolution), and
// only raises an AttributeException if neither resolves. Module and
// Class receivers expose their own attribute-namespaces directly
// instead of going through an Instance's Fields vector.
func (vm *VM) getField(recv value.Value, name *value.String) (value.Value, *RuntimeError) {
	if recv.Is(value.ObjInstance) {
		inst := recv.AsObject()
		class := inst.Class
		if slot, ok := class.AsClass().Fields.Get(value.StringKey{S: name}); ok {
			fields := inst.AsInstance().Fields
			if int(slot) < len(fields) {
				return fields[slot], nil
			}
			return value.Null, nil
		}
	}
	if recv.Is(value.ObjModule) {
		mod := recv.AsObject().AsModule()
		if slot, ok := mod.GlobalNames.Get(value.StringKey{S: name}); ok {
			return mod.Globals[slot], nil
		}
		return value.Null, vm.raiseAttribute(fmt.Sprintf("module %q has no name %q", mod.Name.Text(), name.Text()))
	}
	if recv.Is(value.ObjClass) {
		if m, _, ok := vm.lookupMethod(recv.AsObject(), name); ok {
			return value.FromObject(vm.heap.AllocateBoundMethod(recv, m.AsObject(), vm.classes.Function)), nil
		}
	}
	class := value.ClassOf(recv, &vm.builtins)
	if method, _, ok := vm.lookupMethod(class, name); ok {
		bound := vm.heap.AllocateBoundMethod(recv, method.AsObject(), vm.classes.Function)
		return value.FromObject(bound), nil
	}
	return value.Null, vm.raiseAttribute(fmt.Sprintf("%s has no field or method %q", classDisplayName(class), name.Text()))
}

// setField implements SET_FIELD (§3.3.3, §4.6): the receiver must be
// an Instance (or a Module, for top-level `module.NAME = value`
// rebinding) and the field slot is declared on first write, growing
// both the class's shared FieldIndex and this instance's Fields
// vector — never merged from a superclass; each class owns an
// independent slot numbering for its own declared fields.
func (vm *VM) setField(recv value.Value, name *value.String, v value.Value) *RuntimeError {
	if recv.Is(value.ObjModule) {
		mod := recv.AsObject().AsModule()
		slot, _ := mod.GlobalNames.Declare(value.StringKey{S: name})
		for int(slot) >= len(mod.Globals) {
			mod.Globals = append(mod.Globals, value.Null)
		}
		mod.Globals[slot] = v
		return nil
	}
	if !recv.Is(value.ObjInstance) {
		return vm.raiseType(fmt.Sprintf("cannot set field %q on a %s", name.Text(), classDisplayName(value.ClassOf(recv, &vm.builtins))))
	}
	instObj := recv.AsObject()
	class := instObj.Class
	slot, _ := class.AsClass().Fields.Declare(value.StringKey{S: name})
	inst := instObj.AsInstance()
	for int(slot) >= len(inst.Fields) {
		inst.Fields = append(inst.Fields, value.Null)
	}
	inst.Fields[slot] = v
	return nil
}

// subscriptGet implements SUBSCR_GET (§3.2) across the built-in
// sequence/mapping kinds; user classes instead overload `__get__`
// through an ordinary method invoke the compiler never special-cases,
// so this only needs to handle List/Tuple/Table/String.
func (vm *VM) subscriptGet(recv, idx value.Value) (value.Value, *RuntimeError) {
	switch {
	case recv.Is(value.ObjList):
		elems := recv.AsObject().AsList().Elems
		i, rerr := vm.indexInto(idx, len(elems))
		if rerr != nil {
			return value.Null, rerr
		}
		return elems[i], nil
	case recv.Is(value.ObjTuple):
		elems := recv.AsObject().AsTuple().Elems
		i, rerr := vm.indexInto(idx, len(elems))
		if rerr != nil {
			return value.Null, rerr
		}
		return elems[i], nil
	case recv.Is(value.ObjString):
		s := recv.AsObject().AsString()
		i, rerr := vm.indexInto(idx, len(s.Bytes))
		if rerr != nil {
			return value.Null, rerr
		}
		ch := vm.heap.CopyString(s.Bytes[i:i+1], vm.builtins.StringClass)
		return value.FromObject(ch), nil
	case recv.Is(value.ObjTable):
		tbl := recv.AsObject().AsTable()
		if idx.IsNum() && isNaN(idx.AsNum()) {
			return value.Null, vm.raiseInvalidArg("NaN is not a valid table key")
		}
		if v, ok := tbl.Entries.Get(idx); ok {
			return v.(value.Value), nil
		}
		return value.Null, vm.raiseIndex("key not found in table")
	default:
		return value.Null, vm.raiseType(fmt.Sprintf("%s is not subscriptable", classDisplayName(value.ClassOf(recv, &vm.builtins))))
	}
}

// subscriptSet implements SUBSCR_SET (§3.2).
func (vm *VM) subscriptSet(recv, idx, v value.Value) *RuntimeError {
	switch {
	case recv.Is(value.ObjList):
		lst := recv.AsObject().AsList()
		i, rerr := vm.indexInto(idx, len(lst.Elems))
		if rerr != nil {
			return rerr
		}
		lst.Elems[i] = v
		return nil
	case recv.Is(value.ObjTable):
		tbl := recv.AsObject().AsTable()
		if idx.IsNum() && isNaN(idx.AsNum()) {
			return vm.raiseInvalidArg("NaN is not a valid table key")
		}
		tbl.Entries.Put(idx, v)
		return nil
	default:
		return vm.raiseType(fmt.Sprintf("%s does not support item assignment", classDisplayName(value.ClassOf(recv, &vm.builtins))))
	}
}

// indexInto resolves a user-facing numeric index against a sequence
// of length n, accepting negative indices counted from the end
// (§3.2), and raises an IndexOutOfBoundException otherwise.
func (vm *VM) indexInto(idx value.Value, n int) (int, *RuntimeError) {
	if !idx.IsNum() {
		return 0, vm.raiseType("index must be a number")
	}
	i := int(idx.AsNum())
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, vm.raiseIndex(fmt.Sprintf("index %d out of bounds for length %d", int(idx.AsNum()), n))
	}
	return i, nil
}

// binaryOp implements §4.6's arithmetic/comparison dispatch: when both
// operands are numbers the operator runs inline; otherwise it falls
// back to the overloadable special method on the left operand (and,
// failing that, the reversed method on the right), per the opcode
// group's doc comment in pkg/bytecode.
func (vm *VM) binaryOp(op bytecode.Opcode) *RuntimeError {
	b := vm.pop()
	a := vm.pop()
	if a.IsNum() && b.IsNum() {
		vm.push(numericOp(op, a.AsNum(), b.AsNum()))
		return nil
	}
	name, reversedName := specialMethodFor(op)
	if method, _, ok := vm.lookupMethodByName(value.ClassOf(a, &vm.builtins), name); ok {
		result, rerr := vm.callMethodValue(method, a, []value.Value{b})
		if rerr != nil {
			return rerr
		}
		vm.push(result)
		return nil
	}
	if reversedName != "" {
		if method, _, ok := vm.lookupMethodByName(value.ClassOf(b, &vm.builtins), reversedName); ok {
			result, rerr := vm.callMethodValue(method, b, []value.Value{a})
			if rerr != nil {
				return rerr
			}
			vm.push(result)
			return nil
		}
	}
	return vm.raiseType(fmt.Sprintf("unsupported operand types for %s: %s and %s", name,
		classDisplayName(value.ClassOf(a, &vm.builtins)), classDisplayName(value.ClassOf(b, &vm.builtins))))
}

// numericOp runs an arithmetic/comparison opcode against two plain
// float64 operands, producing either a Num or a Bool result.
func numericOp(op bytecode.Opcode, a, b float64) value.Value {
	switch op {
	case bytecode.OpAdd:
		return value.Num(a + b)
	case bytecode.OpSub:
		return value.Num(a - b)
	case bytecode.OpMul:
		return value.Num(a * b)
	case bytecode.OpDiv:
		return value.Num(a / b)
	case bytecode.OpMod:
		return value.Num(math.Mod(a, b))
	case bytecode.OpPow:
		return value.Num(math.Pow(a, b))
	case bytecode.OpGt:
		return value.Bool(a > b)
	case bytecode.OpGe:
		return value.Bool(a >= b)
	case bytecode.OpLt:
		return value.Bool(a < b)
	case bytecode.OpLe:
		return value.Bool(a <= b)
	default:
		return value.Null
	}
}

// specialMethodFor names the overloadable method pair a non-numeric
// operand falls back to for each arithmetic/comparison opcode (§4.6);
// comparisons have no reversed fallback since flipping > into < would
// silently change program behavior rather than failing loudly.
func specialMethodFor(op bytecode.Opcode) (name, reversed string) {
	switch op {
	case bytecode.OpAdd:
		return "__add__", "__radd__"
	case bytecode.OpSub:
		return "__sub__", "__rsub__"
	case bytecode.OpMul:
		return "__mul__", "__rmul__"
	case bytecode.OpDiv:
		return "__div__", "__rdiv__"
	case bytecode.OpMod:
		return "__mod__", "__rmod__"
	case bytecode.OpPow:
		return "__pow__", "__rpow__"
	case bytecode.OpGt:
		return "__gt__", ""
	case bytecode.OpGe:
		return "__ge__", ""
	case bytecode.OpLt:
		return "__lt__", ""
	case bytecode.OpLe:
		return "__le__", ""
	default:
		return "", ""
	}
}
