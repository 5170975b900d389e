package bytecode

import (
	"bytes"
	"testing"

	"github.com/blang-lang/blang/pkg/gc"
	"github.com/blang-lang/blang/pkg/value"
)

func sampleFunction(heap *gc.Heap) *value.Object {
	nested := &value.Function{
		Proto: value.Prototype{Name: "inner", ArgCount: 1},
		Code:  value.Code{Bytes: []byte{byte(OpReturn)}},
	}
	fn := &value.Function{
		Proto: value.Prototype{
			Name:     "outer",
			ArgCount: 2,
			Vararg:   true,
			Defaults: []value.Value{value.Num(1)},
		},
		MaxStackUsage: 4,
		Code: value.Code{
			Bytes: []byte{byte(OpNull), byte(OpPop)},
			Constants: []value.Value{
				value.Num(3.5),
				value.Bool(true),
				value.Null,
				value.FromObject(heap.CopyString([]byte("greeting"), nil)),
				value.FromObject(heap.AllocateFunction(nested, nil)),
			},
		},
	}
	return heap.AllocateFunction(fn, nil)
}

func TestWriteFileThenReadFileRoundTrips(t *testing.T) {
	heap := gc.New(gc.Config{})
	root := sampleFunction(heap)

	var buf bytes.Buffer
	if err := WriteFile(&buf, root); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadFile(&buf, heap, nil)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	gotFn := got.AsFunction()
	wantFn := root.AsFunction()

	if gotFn.Proto.Name != wantFn.Proto.Name || gotFn.Proto.ArgCount != wantFn.Proto.ArgCount || gotFn.Proto.Vararg != wantFn.Proto.Vararg {
		t.Errorf("prototype mismatch: got %+v, want %+v", gotFn.Proto, wantFn.Proto)
	}
	if gotFn.MaxStackUsage != wantFn.MaxStackUsage {
		t.Errorf("MaxStackUsage: got %d, want %d", gotFn.MaxStackUsage, wantFn.MaxStackUsage)
	}
	if !bytes.Equal(gotFn.Code.Bytes, wantFn.Code.Bytes) {
		t.Errorf("code bytes mismatch: got %v, want %v", gotFn.Code.Bytes, wantFn.Code.Bytes)
	}
	if len(gotFn.Code.Constants) != len(wantFn.Code.Constants) {
		t.Fatalf("constant count: got %d, want %d", len(gotFn.Code.Constants), len(wantFn.Code.Constants))
	}
	if gotFn.Code.Constants[0].AsNum() != 3.5 {
		t.Errorf("constant 0: got %v, want 3.5", gotFn.Code.Constants[0])
	}
	if !gotFn.Code.Constants[1].AsBool() {
		t.Errorf("constant 1: want true")
	}
	if !gotFn.Code.Constants[2].IsNull() {
		t.Errorf("constant 2: want null")
	}
	if gotFn.Code.Constants[3].AsObject().AsString().Text() != "greeting" {
		t.Errorf("constant 3: got %q, want \"greeting\"", gotFn.Code.Constants[3].AsObject().AsString().Text())
	}
	nestedGot := gotFn.Code.Constants[4].AsObject().AsFunction()
	if nestedGot.Proto.Name != "inner" || nestedGot.Proto.ArgCount != 1 {
		t.Errorf("nested function constant: got %+v", nestedGot.Proto)
	}
}

func TestReadFileRejectsBadMagic(t *testing.T) {
	heap := gc.New(gc.Config{})
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0, 0, VersionMajor, VersionMinor})
	if _, err := ReadFile(buf, heap, nil); err != ErrBadMagic {
		t.Errorf("expected ErrBadMagic, got %v", err)
	}
}

func TestReadFileRejectsMajorVersionMismatch(t *testing.T) {
	heap := gc.New(gc.Config{})
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.Write([]byte{VersionMajor + 1, 0})
	if _, err := ReadFile(&buf, heap, nil); err != ErrVersionMismatch {
		t.Errorf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestReadFileRejectsTrailingBytes(t *testing.T) {
	heap := gc.New(gc.Config{})
	root := sampleFunction(heap)

	var buf bytes.Buffer
	if err := WriteFile(&buf, root); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	buf.Write([]byte{0xFF})

	if _, err := ReadFile(&buf, heap, nil); err != ErrTrailingBytes {
		t.Errorf("expected ErrTrailingBytes, got %v", err)
	}
}

func TestWriteFileRejectsUnserializableConstant(t *testing.T) {
	heap := gc.New(gc.Config{})
	fn := &value.Function{
		Code: value.Code{
			Constants: []value.Value{value.FromObject(heap.AllocateList(nil))},
		},
	}
	root := heap.AllocateFunction(fn, nil)

	var buf bytes.Buffer
	if err := WriteFile(&buf, root); err == nil {
		t.Errorf("expected an error serializing a List constant")
	}
}
