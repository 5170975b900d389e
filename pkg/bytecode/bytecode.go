package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/blang-lang/blang/pkg/value"
)

// Builder accumulates one Function's bytecode during compilation: the
// raw instruction stream, its constant pool, and a parallel line
// table. pkg/compiler owns one Builder per in-progress function body;
// Finish hands the result to value.Code, which the serializer and
// interpreter both consume.
//
// Operand widths are fixed by opcode group rather than packed into a
// single int the way the teacher's SEND operand is (high bits
// selector, low 8 bits argc): locals/upvalues/inline counts take one
// byte (§4.4 "Local count is bounded by 255 per frame"), constant-pool
// and global indices take two bytes, and jump/handler displacements
// take two bytes (signed for jumps, per §4.6).
type Builder struct {
	Code      []byte
	Constants []value.Value
	Lines     []int32
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) emitByte(by byte, line int) {
	b.Code = append(b.Code, by)
	b.Lines = append(b.Lines, int32(line))
}

// Emit appends a bare opcode with no operand (POP, DUP, ADD, RETURN, …).
func (b *Builder) Emit(op Opcode, line int) {
	b.emitByte(byte(op), line)
}

// EmitByte appends op followed by a single-byte operand.
func (b *Builder) EmitByte(op Opcode, operand byte, line int) {
	b.emitByte(byte(op), line)
	b.emitByte(operand, line)
}

// EmitU16 appends op followed by a big-endian two-byte operand (a
// constant-pool index, such as a global's name constant, or an
// absolute handler address).
func (b *Builder) EmitU16(op Opcode, operand uint16, line int) {
	b.emitByte(byte(op), line)
	b.emitByte(byte(operand>>8), line)
	b.emitByte(byte(operand), line)
}

// EmitJump appends a jump opcode with a placeholder displacement and
// returns the offset of the placeholder's high byte, to be patched by
// PatchJump once the true target is known.
func (b *Builder) EmitJump(op Opcode, line int) int {
	b.emitByte(byte(op), line)
	at := len(b.Code)
	b.emitByte(0xFF, line)
	b.emitByte(0xFF, line)
	return at
}

// PatchJump rewrites the displacement placeholder at "at" (as
// returned by EmitJump) to jump to the bytecode stream's current end.
func (b *Builder) PatchJump(at int) {
	b.PatchJumpTo(at, len(b.Code))
}

// PatchJumpTo rewrites the displacement placeholder at "at" to jump
// to an arbitrary, already-known target — used for `continue`, which
// jumps backward to a loop's condition or post-increment code rather
// than forward to the jump's own textual end.
func (b *Builder) PatchJumpTo(at, target int) {
	disp := target - (at + 2)
	b.Code[at] = byte(int16(disp) >> 8)
	b.Code[at+1] = byte(int16(disp))
}

// EmitU16Byte appends op followed by a two-byte operand and then a
// single trailing byte — the shape OpInvoke/OpSuper use for their
// explicit (name index, argc) operand pair once argc exceeds the
// inline-arity opcodes.
func (b *Builder) EmitU16Byte(op Opcode, operand uint16, extra byte, line int) {
	b.emitByte(byte(op), line)
	b.emitByte(byte(operand>>8), line)
	b.emitByte(byte(operand), line)
	b.emitByte(extra, line)
}

// EmitUpvalueRef appends one (isLocal, index) pair following a
// CLOSURE instruction's function-constant operand.
func (b *Builder) EmitUpvalueRef(isLocal bool, index int, line int) {
	local := byte(0)
	if isLocal {
		local = 1
	}
	b.emitByte(local, line)
	b.emitByte(byte(index), line)
}

// EmitAbsolute appends op followed by the two-byte absolute address
// target (SETUP_EXCEPT/SETUP_ENSURE); the target is not yet known at
// the call site, so a placeholder is written and its offset returned,
// to be patched once the handler code is reached, via PatchAbsolute.
func (b *Builder) EmitAbsolute(op Opcode, line int) int {
	b.emitByte(byte(op), line)
	at := len(b.Code)
	b.emitByte(0xFF, line)
	b.emitByte(0xFF, line)
	return at
}

func (b *Builder) PatchAbsolute(at int) {
	target := len(b.Code)
	b.Code[at] = byte(uint16(target) >> 8)
	b.Code[at+1] = byte(uint16(target))
}

// AddConstant interns v into the constant pool (no dedup beyond what
// the string intern pool already gives identical string constants)
// and returns its index.
func (b *Builder) AddConstant(v value.Value) uint16 {
	b.Constants = append(b.Constants, v)
	return uint16(len(b.Constants) - 1)
}

// Here returns the current end-of-stream offset, used by loop
// compilation to remember a jump-back target.
func (b *Builder) Here() int { return len(b.Code) }

// Finish produces the value.Code the rest of the runtime consumes.
func (b *Builder) Finish() value.Code {
	return value.Code{Bytes: b.Code, Constants: b.Constants, Lines: b.Lines}
}

// --- decoding helpers shared by the interpreter and the disassembler ---

func ReadU16(code []byte, at int) uint16 {
	return binary.BigEndian.Uint16(code[at:])
}

func ReadI16(code []byte, at int) int16 {
	return int16(binary.BigEndian.Uint16(code[at:]))
}

// operandWidth reports how many operand bytes follow op in the
// instruction stream, excluding the opcode byte itself; -1 marks a
// variable-width instruction (CLOSURE, whose upvalue pairs follow the
// function constant index) that the caller must decode specially.
func operandWidth(op Opcode) int {
	switch op {
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue,
		OpUnpack, OpNewList, OpNewTuple, OpNewTable, OpAppendList,
		OpCall:
		return 1
	case OpGetConst, OpGetGlobal, OpSetGlobal, OpDefineGlobal,
		OpGetField, OpSetField, OpJump, OpJumpT, OpJumpF,
		OpSetupExcept, OpSetupEnsure, OpNewClass, OpNewSubclass,
		OpDefMethod, OpNatMethod,
		OpImport, OpImportAs, OpImportFrom, OpImportName:
		return 2
	case OpInvoke0, OpInvoke1, OpInvoke2, OpInvoke3, OpInvoke4, OpInvoke5,
		OpInvoke6, OpInvoke7, OpInvoke8, OpInvoke9, OpInvoke10,
		OpSuper0, OpSuper1, OpSuper2, OpSuper3, OpSuper4, OpSuper5,
		OpSuper6, OpSuper7, OpSuper8, OpSuper9, OpSuper10:
		return 2 // 2-byte name index; argc is implied by the opcode
	case OpInvoke, OpSuper:
		return 3 // 2-byte name index + 1-byte argc
	case OpClosure:
		return -1
	default:
		return 0
	}
}

// Disassemble renders code as human-readable instruction listing,
// mirroring the teacher's debugger output shape (one line per
// instruction: offset, opcode mnemonic, decoded operand).
func Disassemble(name string, code []byte, constants []value.Value) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s ==\n", name)
	offset := 0
	for offset < len(code) {
		offset = disassembleInstruction(&sb, code, constants, offset)
	}
	return sb.String()
}

func disassembleInstruction(sb *strings.Builder, code []byte, constants []value.Value, offset int) int {
	op := Opcode(code[offset])
	fmt.Fprintf(sb, "%04d %-14s", offset, op)
	switch w := operandWidth(op); w {
	case 0:
		fmt.Fprintln(sb)
		return offset + 1
	case 1:
		fmt.Fprintf(sb, " %d\n", code[offset+1])
		return offset + 2
	case 2:
		idx := ReadU16(code, offset+1)
		if isConstOperand(op) && int(idx) < len(constants) {
			fmt.Fprintf(sb, " %d ; %v\n", idx, constants[idx])
		} else {
			fmt.Fprintf(sb, " %d\n", idx)
		}
		return offset + 3
	case 3:
		idx := ReadU16(code, offset+1)
		argc := code[offset+3]
		fmt.Fprintf(sb, " %d argc=%d\n", idx, argc)
		return offset + 4
	default: // OpClosure: function index, then argc-of-upvalues pairs
		fnIdx := ReadU16(code, offset+1)
		next := offset + 3
		n := 0
		if int(fnIdx) < len(constants) {
			if fn, ok := asFunctionConstant(constants[fnIdx]); ok {
				n = fn.Proto.UpvalueCount
			}
		}
		fmt.Fprintf(sb, " %d\n", fnIdx)
		for i := 0; i < n; i++ {
			isLocal, idx := code[next], code[next+1]
			fmt.Fprintf(sb, "     | upvalue isLocal=%d idx=%d\n", isLocal, idx)
			next += 2
		}
		return next
	}
}

func isConstOperand(op Opcode) bool {
	switch op {
	case OpGetConst, OpGetField, OpSetField, OpNewClass, OpNewSubclass, OpDefMethod, OpNatMethod:
		return true
	default:
		return false
	}
}

func asFunctionConstant(v value.Value) (*value.Function, bool) {
	if v.Is(value.ObjFunction) {
		return v.AsObject().AsFunction(), true
	}
	return nil, false
}
