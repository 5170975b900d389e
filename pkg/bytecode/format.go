// File format: binary (de)serialization of a compiled Function tree
// (§4.5, §6). Grounded almost directly on the teacher's
// pkg/bytecode/format.go — same encoding/binary + magic/version
// header + tagged constant-pool shape — swapped from the teacher's
// 4-byte "SMOG" header to the spec's 5-byte magic and forced
// big-endian throughout.
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/blang-lang/blang/pkg/gc"
	"github.com/blang-lang/blang/pkg/value"
)

// Magic is the five-byte file signature every .jsc file starts with.
var Magic = [5]byte{0xB5, 'J', 's', 'r', 'C'}

const (
	VersionMajor = 1
	VersionMinor = 0
)

// Errors reported through the embedding API's error callback (§4.5,
// §7.1 bucket 3) as JSR_VERSION_ERR / JSR_DESERIALIZE_ERR.
var (
	ErrBadMagic      = fmt.Errorf("bytecode: bad magic number")
	ErrVersionMismatch = fmt.Errorf("bytecode: major version mismatch")
	ErrShortRead     = fmt.Errorf("bytecode: short read")
	ErrTrailingBytes = fmt.Errorf("bytecode: trailing bytes after root function")
)

const (
	tagNum byte = iota
	tagBool
	tagNull
	tagString
	tagHandle
	tagFunction
	tagNative
)

// WriteFile serializes root (a top-level compiled Function) to w in
// the §4.5/§6 binary format.
func WriteFile(w io.Writer, root *value.Object) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{VersionMajor, VersionMinor}); err != nil {
		return err
	}
	return writeFunction(w, root.AsFunction())
}

func writePrototype(w io.Writer, p *value.Prototype) error {
	if err := writeU8(w, byte(p.ArgCount)); err != nil {
		return err
	}
	varargByte := byte(0)
	if p.Vararg {
		varargByte = 1
	}
	if err := writeU8(w, varargByte); err != nil {
		return err
	}
	if err := writeOptionalString(w, p.Name); err != nil {
		return err
	}
	if err := writeU8(w, byte(len(p.Defaults))); err != nil {
		return err
	}
	for _, d := range p.Defaults {
		if err := writeConstant(w, d); err != nil {
			return err
		}
	}
	return writeU16(w, uint16(p.UpvalueCount))
}

func writeFunction(w io.Writer, f *value.Function) error {
	if err := writePrototype(w, &f.Proto); err != nil {
		return err
	}
	if err := writeU16(w, uint16(f.MaxStackUsage)); err != nil {
		return err
	}
	if err := writeU64(w, uint64(len(f.Code.Bytes))); err != nil {
		return err
	}
	if _, err := w.Write(f.Code.Bytes); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(f.Code.Constants))); err != nil {
		return err
	}
	for _, c := range f.Code.Constants {
		if err := writeConstant(w, c); err != nil {
			return err
		}
	}
	return nil
}

func writeNative(w io.Writer, n *value.Native) error {
	return writePrototype(w, &n.Proto)
}

func writeConstant(w io.Writer, v value.Value) error {
	switch {
	case v.IsNum():
		if err := writeU8(w, tagNum); err != nil {
			return err
		}
		return writeU64(w, binaryFloatBits(v.AsNum()))
	case v.IsBool():
		if err := writeU8(w, tagBool); err != nil {
			return err
		}
		b := byte(0)
		if v.AsBool() {
			b = 1
		}
		return writeU8(w, b)
	case v.IsNull():
		return writeU8(w, tagNull)
	case v.IsHandle():
		// Handles are non-GC host pointers with no stable identity
		// across a process; §4.5 serializes them as a null placeholder.
		return writeU8(w, tagHandle)
	case v.Is(value.ObjString):
		if err := writeU8(w, tagString); err != nil {
			return err
		}
		return writeStringBytes(w, v.AsObject().AsString().Bytes)
	case v.Is(value.ObjFunction):
		if err := writeU8(w, tagFunction); err != nil {
			return err
		}
		return writeFunction(w, v.AsObject().AsFunction())
	case v.Is(value.ObjNative):
		if err := writeU8(w, tagNative); err != nil {
			return err
		}
		return writeNative(w, v.AsObject().AsNative())
	default:
		return fmt.Errorf("bytecode: constant kind %v is not serializable", v.Kind())
	}
}

func writeOptionalString(w io.Writer, s string) error {
	if s == "" {
		return writeU8(w, 0)
	}
	if err := writeU8(w, 1); err != nil {
		return err
	}
	return writeStringBytes(w, []byte(s))
}

// writeStringBytes encodes a short length (<=254) in one byte, else a
// marker byte of 255 followed by an 8-byte length, per §4.5.
func writeStringBytes(w io.Writer, b []byte) error {
	if len(b) <= 254 {
		if err := writeU8(w, byte(len(b))); err != nil {
			return err
		}
	} else {
		if err := writeU8(w, 255); err != nil {
			return err
		}
		if err := writeU64(w, uint64(len(b))); err != nil {
			return err
		}
	}
	_, err := w.Write(b)
	return err
}

// --- deserialization ---

// ReadFile deserializes a root Function from r, allocating every
// object through heap (so the collector's invariants hold for
// deserialized state exactly as for compiled-then-run state).
func ReadFile(r io.Reader, heap *gc.Heap, functionClass *value.Object) (*value.Object, error) {
	var magic [5]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	if magic != Magic {
		return nil, ErrBadMagic
	}
	var version [2]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	if version[0] != VersionMajor {
		return nil, ErrVersionMismatch
	}
	fn, err := readFunction(r, heap, functionClass)
	if err != nil {
		return nil, err
	}
	var trailing [1]byte
	if _, err := r.Read(trailing[:]); err != io.EOF {
		return nil, ErrTrailingBytes
	}
	return heap.AllocateFunction(fn, functionClass), nil
}

func readPrototype(r io.Reader) (value.Prototype, error) {
	var p value.Prototype
	argc, err := readU8(r)
	if err != nil {
		return p, err
	}
	p.ArgCount = int(argc)
	varargByte, err := readU8(r)
	if err != nil {
		return p, err
	}
	p.Vararg = varargByte != 0
	name, err := readOptionalString(r)
	if err != nil {
		return p, err
	}
	p.Name = name
	defaultsCount, err := readU8(r)
	if err != nil {
		return p, err
	}
	p.Defaults = make([]value.Value, defaultsCount)
	for i := range p.Defaults {
		v, err := readConstant(r, nil, nil)
		if err != nil {
			return p, err
		}
		p.Defaults[i] = v
	}
	upvalCount, err := readU16(r)
	if err != nil {
		return p, err
	}
	p.UpvalueCount = int(upvalCount)
	return p, nil
}

func readFunction(r io.Reader, heap *gc.Heap, functionClass *value.Object) (*value.Function, error) {
	proto, err := readPrototype(r)
	if err != nil {
		return nil, err
	}
	f := &value.Function{Proto: proto}
	maxStack, err := readU16(r)
	if err != nil {
		return nil, err
	}
	f.MaxStackUsage = int(maxStack)
	codeLen, err := readU64(r)
	if err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(r, code); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	f.Code.Bytes = code
	constCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	f.Code.Constants = make([]value.Value, constCount)
	for i := range f.Code.Constants {
		v, err := readConstant(r, heap, functionClass)
		if err != nil {
			return nil, err
		}
		f.Code.Constants[i] = v
	}
	return f, nil
}

func readConstant(r io.Reader, heap *gc.Heap, functionClass *value.Object) (value.Value, error) {
	tag, err := readU8(r)
	if err != nil {
		return value.Null, err
	}
	switch tag {
	case tagNum:
		bits, err := readU64(r)
		if err != nil {
			return value.Null, err
		}
		return value.Num(floatFromBits(bits)), nil
	case tagBool:
		b, err := readU8(r)
		if err != nil {
			return value.Null, err
		}
		return value.Bool(b != 0), nil
	case tagNull:
		return value.Null, nil
	case tagHandle:
		return value.Null, nil // placeholder per §4.5
	case tagString:
		bs, err := readStringBytes(r)
		if err != nil {
			return value.Null, err
		}
		if heap == nil {
			return value.Null, fmt.Errorf("bytecode: string constant in default requires a heap")
		}
		return value.FromObject(heap.CopyString(bs, nil)), nil
	case tagFunction:
		if heap == nil {
			return value.Null, fmt.Errorf("bytecode: nested function constant requires a heap")
		}
		f, err := readFunction(r, heap, functionClass)
		if err != nil {
			return value.Null, err
		}
		return value.FromObject(heap.AllocateFunction(f, functionClass)), nil
	case tagNative:
		proto, err := readPrototype(r)
		if err != nil {
			return value.Null, err
		}
		if heap == nil {
			return value.Null, fmt.Errorf("bytecode: native constant requires a heap")
		}
		return value.FromObject(heap.AllocateNative(&value.Native{Proto: proto}, nil)), nil
	default:
		return value.Null, fmt.Errorf("bytecode: unknown constant tag %d", tag)
	}
}

func readOptionalString(r io.Reader) (string, error) {
	present, err := readU8(r)
	if err != nil {
		return "", err
	}
	if present == 0 {
		return "", nil
	}
	bs, err := readStringBytes(r)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func readStringBytes(r io.Reader) ([]byte, error) {
	l, err := readU8(r)
	if err != nil {
		return nil, err
	}
	length := uint64(l)
	if l == 255 {
		length, err = readU64(r)
		if err != nil {
			return nil, err
		}
	}
	bs := make([]byte, length)
	if _, err := io.ReadFull(r, bs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	return bs, nil
}

// --- raw integer I/O, all big-endian per §4.5 ---

func writeU8(w io.Writer, b byte) error    { _, err := w.Write([]byte{b}); return err }
func writeU16(w io.Writer, v uint16) error { return binary.Write(w, binary.BigEndian, v) }
func writeU32(w io.Writer, v uint32) error { return binary.Write(w, binary.BigEndian, v) }
func writeU64(w io.Writer, v uint64) error { return binary.Write(w, binary.BigEndian, v) }

func readU8(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	return b[0], nil
}

func readU16(r io.Reader) (uint16, error) {
	var v uint16
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	return v, nil
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	return v, nil
}

func readU64(r io.Reader) (uint64, error) {
	var v uint64
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	return v, nil
}

func binaryFloatBits(f float64) uint64 { return math.Float64bits(f) }
func floatFromBits(b uint64) float64   { return math.Float64frombits(b) }
