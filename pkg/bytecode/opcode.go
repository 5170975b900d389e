// Package bytecode defines Blang's instruction set and the binary
// file format the compiler's output and the interpreter's input share
// (§4.5, §4.6, §6).
//
// The layout mirrors the teacher's bytecode package — a single
// Opcode byte enum grouped by concern, a Chunk-shaped constant pool —
// generalized from smog's message-send opcode set to the stack-
// machine opcode groups the runtime core's interpreter dispatches.
package bytecode

// Opcode is a single bytecode instruction's operation.
type Opcode byte

const (
	// === Arithmetic and comparison (§4.6) ===
	//
	// When both operands are numbers these run inline; otherwise the
	// VM dispatches to the overloadable special method on the left
	// operand, falling back to the reversed method on the right.
	OpAdd Opcode = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpPow
	OpEq
	OpNot
	OpGt
	OpGe
	OpLt
	OpLe
	OpIs

	// === Stack management ===
	OpPop
	OpDup
	OpNull
	OpGetConst   // operand: constant pool index
	OpUnpack     // operand: N, materializes exactly N values or raises
	OpNewList    // operand: element count
	OpAppendList // appends TOS to the list beneath it
	OpNewTuple   // operand: element count
	OpNewTable   // operand: entry count (2*count values on stack)

	// === Variable access ===
	OpGetLocal
	OpSetLocal
	OpGetUpvalue
	OpSetUpvalue
	OpGetGlobal // operand: name constant index, looked up by name on every access (no symbol cache)
	OpSetGlobal
	OpDefineGlobal

	// === Field and subscript ===
	OpGetField
	OpSetField
	OpSubscrGet
	OpSubscrSet

	// === Calls ===
	OpCall // operand: argc (for argc > 10)
	OpCall0
	OpCall1
	OpCall2
	OpCall3
	OpCall4
	OpCall5
	OpCall6
	OpCall7
	OpCall8
	OpCall9
	OpCall10
	OpInvoke // operand: (name constant index, argc)
	OpInvoke0
	OpInvoke1
	OpInvoke2
	OpInvoke3
	OpInvoke4
	OpInvoke5
	OpInvoke6
	OpInvoke7
	OpInvoke8
	OpInvoke9
	OpInvoke10
	OpSuper // operand: (name constant index, argc)
	OpSuper0
	OpSuper1
	OpSuper2
	OpSuper3
	OpSuper4
	OpSuper5
	OpSuper6
	OpSuper7
	OpSuper8
	OpSuper9
	OpSuper10

	// === Control flow ===
	OpJump  // operand: signed 16-bit displacement
	OpJumpT // jump if TOS truthy; TOS is left on the stack
	OpJumpF // jump if TOS falsy; TOS is left on the stack
	OpReturn

	// === Closures and upvalues ===
	OpClosure // operand: function constant index, followed by (isLocal, index) pairs
	OpCloseUpvalue

	// === Exceptions ===
	OpSetupExcept // operand: absolute handler address
	OpSetupEnsure // operand: absolute handler address
	OpPopHandler
	OpRaise
	OpEnsureEnd

	// === Imports ===
	OpImport     // operand: dotted-name constant index prefix count
	OpImportAs
	OpImportFrom
	OpImportName

	// === Classes ===
	OpNewClass    // operand: name constant index
	OpNewSubclass // operand: name constant index; pops superclass
	OpDefMethod   // operand: name constant index; pops closure
	OpNatMethod   // operand: name constant index; pops native

	// === Generators ===
	OpYield
)

var opcodeNames = map[Opcode]string{
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD",
	OpNeg: "NEG", OpPow: "POW", OpEq: "EQ", OpNot: "NOT", OpGt: "GT",
	OpGe: "GE", OpLt: "LT", OpLe: "LE", OpIs: "IS",
	OpPop: "POP", OpDup: "DUP", OpNull: "NULL", OpGetConst: "GET_CONST",
	OpUnpack: "UNPACK", OpNewList: "NEW_LIST", OpAppendList: "APPEND_LIST",
	OpNewTuple: "NEW_TUPLE", OpNewTable: "NEW_TABLE",
	OpGetLocal: "GET_LOCAL", OpSetLocal: "SET_LOCAL",
	OpGetUpvalue: "GET_UPVALUE", OpSetUpvalue: "SET_UPVALUE",
	OpGetGlobal: "GET_GLOBAL", OpSetGlobal: "SET_GLOBAL", OpDefineGlobal: "DEFINE_GLOBAL",
	OpGetField: "GET_FIELD", OpSetField: "SET_FIELD",
	OpSubscrGet: "SUBSCR_GET", OpSubscrSet: "SUBSCR_SET",
	OpCall: "CALL", OpCall0: "CALL_0", OpCall1: "CALL_1", OpCall2: "CALL_2",
	OpCall3: "CALL_3", OpCall4: "CALL_4", OpCall5: "CALL_5", OpCall6: "CALL_6",
	OpCall7: "CALL_7", OpCall8: "CALL_8", OpCall9: "CALL_9", OpCall10: "CALL_10",
	OpInvoke: "INVOKE", OpInvoke0: "INVOKE_0", OpInvoke1: "INVOKE_1", OpInvoke2: "INVOKE_2",
	OpInvoke3: "INVOKE_3", OpInvoke4: "INVOKE_4", OpInvoke5: "INVOKE_5", OpInvoke6: "INVOKE_6",
	OpInvoke7: "INVOKE_7", OpInvoke8: "INVOKE_8", OpInvoke9: "INVOKE_9", OpInvoke10: "INVOKE_10",
	OpSuper: "SUPER", OpSuper0: "SUPER_0", OpSuper1: "SUPER_1", OpSuper2: "SUPER_2",
	OpSuper3: "SUPER_3", OpSuper4: "SUPER_4", OpSuper5: "SUPER_5", OpSuper6: "SUPER_6",
	OpSuper7: "SUPER_7", OpSuper8: "SUPER_8", OpSuper9: "SUPER_9", OpSuper10: "SUPER_10",
	OpJump: "JUMP", OpJumpT: "JUMPT", OpJumpF: "JUMPF", OpReturn: "RETURN",
	OpClosure: "CLOSURE", OpCloseUpvalue: "CLOSE_UPVALUE",
	OpSetupExcept: "SETUP_EXCEPT", OpSetupEnsure: "SETUP_ENSURE",
	OpPopHandler: "POP_HANDLER", OpRaise: "RAISE", OpEnsureEnd: "ENSURE_END",
	OpImport: "IMPORT", OpImportAs: "IMPORT_AS", OpImportFrom: "IMPORT_FROM", OpImportName: "IMPORT_NAME",
	OpNewClass: "NEW_CLASS", OpNewSubclass: "NEW_SUBCLASS",
	OpDefMethod: "DEF_METHOD", OpNatMethod: "NAT_METHOD",
	OpYield: "YIELD",
}

func (op Opcode) String() string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return "UNKNOWN"
}

// CallOpcode returns the inline-arity CALL_n opcode for argc in
// [0,10], or OpCall (with an explicit operand) for larger argc —
// the same inline-arity trick smog's SEND encoding uses, generalized
// into one opcode per arity instead of one packed operand.
func CallOpcode(argc int) Opcode {
	if argc >= 0 && argc <= 10 {
		return OpCall0 + Opcode(argc)
	}
	return OpCall
}

// InvokeOpcode is CallOpcode's counterpart for named method invokes.
func InvokeOpcode(argc int) Opcode {
	if argc >= 0 && argc <= 10 {
		return OpInvoke0 + Opcode(argc)
	}
	return OpInvoke
}

// SuperOpcode is CallOpcode's counterpart for super-sends.
func SuperOpcode(argc int) Opcode {
	if argc >= 0 && argc <= 10 {
		return OpSuper0 + Opcode(argc)
	}
	return OpSuper
}

// ArityOf returns the argc implied by an inline CALL_n/INVOKE_n/SUPER_n
// opcode, or -1 if op carries its arity in an explicit operand instead.
func ArityOf(op Opcode) int {
	switch {
	case op >= OpCall0 && op <= OpCall10:
		return int(op - OpCall0)
	case op >= OpInvoke0 && op <= OpInvoke10:
		return int(op - OpInvoke0)
	case op >= OpSuper0 && op <= OpSuper10:
		return int(op - OpSuper0)
	default:
		return -1
	}
}
