// Module registry, source/binary resolution, and the native extension
// hook (§4.7). Grounded on kristofer/smog/cmd/smog/main.go's
// extension-driven dispatch (.sg source vs. a would-be compiled form),
// generalized into the spec's full path-search order and registry-as-
// map pattern, the latter grounded on the teacher's own
// `vm.classes map[string]*bytecode.ClassDefinition` field.
package vm

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blang-lang/blang/pkg/bytecode"
	"github.com/blang-lang/blang/pkg/compiler"
	"github.com/blang-lang/blang/pkg/parser"
	"github.com/blang-lang/blang/pkg/value"
)

// CompileToBytecode parses and compiles src into a standalone Function
// object and serializes it as a binary .jsc module, without running
// it — the embedder-facing half of the same path loadSource drives
// synchronously, exposed for a `compile` CLI subcommand (§4.5, §6).
func (vm *VM) CompileToBytecode(w io.Writer, name string, src []byte) error {
	nameObj := vm.heap.CopyString([]byte(name), vm.builtins.StringClass)
	modObj := vm.heap.AllocateModule(nameObj, name, vm.classes.Module)
	fnObj, err := vm.compileSource(modObj, string(src), name)
	if err != nil {
		return err
	}
	return bytecode.WriteFile(w, fnObj)
}

// RunBytecode deserializes a binary .jsc module and runs its body to
// completion (§4.5, §6).
func (vm *VM) RunBytecode(r io.Reader, name string) (value.Value, error) {
	nameObj := vm.heap.CopyString([]byte(name), vm.builtins.StringClass)
	modObj := vm.heap.AllocateModule(nameObj, name, vm.classes.Module)
	vm.installBuiltins(modObj)
	fnObj, err := bytecode.ReadFile(r, vm.heap, vm.classes.Function)
	if err != nil {
		return value.Null, fmt.Errorf("deserializing %q: %v", name, err)
	}
	result, rerr := vm.runClosureBody(fnObj)
	if rerr != nil {
		return value.Null, rerr
	}
	return result, nil
}

// loadSource compiles src as a fresh top-level module under name and
// runs its body to completion, without entering it into the import
// registry or consulting the search order — the path Eval uses (§4.4
// "Output"), distinct from a dotted importModule.
func (vm *VM) loadSource(name string, src []byte) (value.Value, error) {
	nameObj := vm.heap.CopyString([]byte(name), vm.builtins.StringClass)
	modObj := vm.heap.AllocateModule(nameObj, name, vm.classes.Module)
	vm.installBuiltins(modObj)
	fnObj, err := vm.compileSource(modObj, string(src), name)
	if err != nil {
		return value.Null, err
	}
	result, rerr := vm.runClosureBody(fnObj)
	if rerr != nil {
		return value.Null, rerr
	}
	return result, nil
}

// compileSource parses and compiles src against modObj, reporting
// every compile error through cfg.OnError (§7.2) and surfacing the
// first one as a plain Go error for callers with no other channel to
// observe it on (§7's "compiler accumulates hadError, root function is
// not produced").
func (vm *VM) compileSource(modObj *value.Object, src, label string) (*value.Object, error) {
	p := parser.New(src)
	prog, err := p.Parse()
	if err != nil {
		vm.reportError(0, "%s: %v", label, err)
		return nil, fmt.Errorf("%s: %v", label, err)
	}
	var firstErr string
	fnObj, ok := compiler.Compile(vm.heap, modObj, vm.classes.Function, prog, func(line int, msg string) {
		if firstErr == "" {
			firstErr = fmt.Sprintf("%s:%d: %s", label, line, msg)
		}
		vm.reportError(line, "%s", msg)
	})
	if !ok {
		return nil, fmt.Errorf("%s", firstErr)
	}
	return fnObj, nil
}

// runClosureBody wraps fn (a module's compiled top-level body, zero
// upvalues, zero arity) in a Closure, pushes its Frame, and drives a
// nested dispatch loop to completion — the same reentrant-call shape
// callMethodValue and the embedding API's Call use (§5 "native
// boundaries may recursively call back into call").
func (vm *VM) runClosureBody(fnObj *value.Object) (value.Value, *RuntimeError) {
	closureObj := vm.heap.AllocateClosure(fnObj, nil, vm.classes.Function)
	depth := len(vm.frames)
	calleeIdx := len(vm.stack)
	vm.push(value.FromObject(closureObj))
	if rerr := vm.callClosure(calleeIdx, closureObj, 0); rerr != nil {
		return value.Null, rerr
	}
	return vm.run(depth)
}

// installBuiltins declares the handful of always-available globals
// every module starts with (§4.8's bootstrap-hook natives, kept
// in-line here rather than re-implementing a hosted standard library —
// see DESIGN.md, Component G/H).
func (vm *VM) installBuiltins(modObj *value.Object) {
	mod := modObj.AsModule()
	declare := func(name string, fn value.NativeFn, argc int, vararg bool) {
		nat := &value.Native{
			Proto: value.Prototype{Module: modObj, Name: name, ArgCount: argc, Vararg: vararg},
			Fn:    fn,
		}
		natObj := vm.heap.AllocateNative(nat, vm.classes.Function)
		slot, _ := mod.GlobalNames.Declare(value.StringKey{S: internedKey(name)})
		for int(slot) >= len(mod.Globals) {
			mod.Globals = append(mod.Globals, value.Null)
		}
		mod.Globals[slot] = value.FromObject(natObj)
	}
	declare("print", vm.nativePrint, 0, true)
	declare("typeof", vm.nativeTypeof, 1, false)
	declare("clock", vm.nativeClock, 0, false)
	for _, c := range vm.classes.roots() {
		slot, _ := mod.GlobalNames.Declare(value.StringKey{S: c.AsObject().AsClass().Name})
		for int(slot) >= len(mod.Globals) {
			mod.Globals = append(mod.Globals, value.Null)
		}
		mod.Globals[slot] = c
	}
}

// importModule implements §4.7's five-step algorithm.
func (vm *VM) importModule(dotted string) (*value.Object, error) {
	if mod, ok := vm.modules[dotted]; ok {
		return mod, nil
	}

	if vm.cfg.ImportSource != nil {
		if src, ok := vm.cfg.ImportSource(dotted); ok {
			modObj, err := vm.compileAndRunModule(dotted, dotted, src, false)
			if err != nil {
				return nil, err
			}
			vm.registerModule(dotted, modObj)
			return modObj, nil
		}
	}

	segments := strings.Split(dotted, ".")
	dirPath := filepath.Join(segments...)
	simpleName := segments[len(segments)-1]

	type candidate struct {
		rel    string
		binary bool
	}
	candidates := []candidate{
		{filepath.Join(dirPath, "__package__.jsc"), true},
		{filepath.Join(dirPath, "__package__.jsr"), false},
		{dirPath + ".jsc", true},
		{dirPath + ".jsr", false},
	}

	for _, prefix := range vm.cfg.ImportPaths {
		for _, cand := range candidates {
			full := filepath.Join(prefix, cand.rel)
			data, err := os.ReadFile(full)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("import %q: %v", dotted, err)
			}
			modObj, err := vm.compileAndRunModule(dotted, full, data, cand.binary)
			if err != nil {
				return nil, err
			}
			vm.loadNativeExtension(modObj, filepath.Dir(full), simpleName)
			vm.registerModule(dotted, modObj)
			return modObj, nil
		}
	}

	return nil, fmt.Errorf("no module named %q", dotted)
}

// compileAndRunModule builds the Module object and either deserializes
// a binary .jsc payload or parses+compiles a .jsr source payload,
// then runs its top-level body (§4.7 steps 2/3).
func (vm *VM) compileAndRunModule(dotted, path string, data []byte, binary bool) (*value.Object, error) {
	nameObj := vm.heap.CopyString([]byte(dotted), vm.builtins.StringClass)
	modObj := vm.heap.AllocateModule(nameObj, path, vm.classes.Module)
	vm.installBuiltins(modObj)

	var fnObj *value.Object
	if binary {
		obj, err := bytecode.ReadFile(bytes.NewReader(data), vm.heap, vm.classes.Function)
		if err != nil {
			return nil, fmt.Errorf("deserializing %q: %v", path, err)
		}
		fnObj = obj
	} else {
		obj, err := vm.compileSource(modObj, string(data), path)
		if err != nil {
			return nil, err
		}
		fnObj = obj
	}
	if _, rerr := vm.runClosureBody(fnObj); rerr != nil {
		return nil, rerr
	}
	return modObj, nil
}

// loadNativeExtension implements §4.7 step 4: an adjacent shared
// library named by platform convention, exporting
// Jsr_open_<simplename>, is attached to modObj's Native registry if
// present. "Not found" is not an error here; any other failure to open
// or call the hook is (a malformed/incompatible extension must not be
// silently ignored).
func (vm *VM) loadNativeExtension(modObj *value.Object, dir, simpleName string) {
	libPath := filepath.Join(dir, platformLibName(simpleName))
	if _, err := os.Stat(libPath); err != nil {
		return
	}
	registry, err := vm.cfg.Loader.Load(libPath, simpleName)
	if err != nil {
		vm.reportError(0, "loading native extension %q: %v", libPath, err)
		return
	}
	modObj.AsModule().Native = registry
}

func platformLibName(simpleName string) string {
	return "lib" + simpleName + ".so"
}

// registerModule implements §4.7 step 5: enter the module into the
// registry and, if its dotted name has a parent, bind it as a global
// in the parent module under its unqualified (last-segment) name.
func (vm *VM) registerModule(dotted string, modObj *value.Object) {
	vm.modules[dotted] = modObj
	vm.moduleOrder = append(vm.moduleOrder, dotted)

	idx := strings.LastIndexByte(dotted, '.')
	if idx < 0 {
		return
	}
	parentDotted, simpleName := dotted[:idx], dotted[idx+1:]
	parent, ok := vm.modules[parentDotted]
	if !ok {
		return
	}
	pmod := parent.AsModule()
	slot, _ := pmod.GlobalNames.Declare(value.StringKey{S: internedKey(simpleName)})
	for int(slot) >= len(pmod.Globals) {
		pmod.Globals = append(pmod.Globals, value.Null)
	}
	pmod.Globals[slot] = value.FromObject(modObj)
}
