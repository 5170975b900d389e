// Package vm - error handling with stack traces (§3.2, §3.3.7).
package vm

import (
	"fmt"
	"strings"

	"github.com/blang-lang/blang/pkg/value"
)

// StackFrame represents a single frame in the call stack. doRaise
// captures the whole frame stack each time it raises (a re-raise from
// ENSURE_END included); frames are not appended to an earlier capture.
type StackFrame struct {
	Name       string // function/method name
	Module     string // owning module's dotted name
	SourceLine int    // source line number (0 if unknown)
}

// RuntimeError represents an uncaught exception that propagated past
// every frame on the stack (§4.6 "exhausting all frames produces an
// uncaught RuntimeError"). Exc is the heap Exception instance itself
// (or a subclass of it) that was raised; Trace is the frame stack,
// innermost first, as it stood at the last raise (a plain Go slice,
// not a heap StackTrace object).
type RuntimeError struct {
	Message string
	Exc      value.Value
	Trace    []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Trace) > 0 {
		b.WriteString("\n\nStack trace:")
		for i := len(e.Trace) - 1; i >= 0; i-- {
			f := e.Trace[i]
			b.WriteString(fmt.Sprintf("\n  at %s", f.Name))
			if f.Module != "" {
				b.WriteString(fmt.Sprintf(" (%s)", f.Module))
			}
			if f.SourceLine > 0 {
				b.WriteString(fmt.Sprintf(" [line %d]", f.SourceLine))
			}
		}
	}
	return b.String()
}

func newRuntimeError(message string, exc value.Value, trace []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, Exc: exc, Trace: trace}
}

// captureTrace walks the current frame stack innermost-first, the
// shape §3.3.7 describes a raised exception's StackTrace accumulating
// as it unwinds.
func (vm *VM) captureTrace() []StackFrame {
	trace := make([]StackFrame, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		trace = append(trace, StackFrame{Name: f.funcName, Module: f.moduleName, SourceLine: vm.lineOf(f)})
	}
	return trace
}

func (vm *VM) lineOf(f *Frame) int {
	if f.fn == nil || f.ip <= 0 || f.ip > len(f.fn.Code.Lines) {
		return 0
	}
	return int(f.fn.Code.Lines[f.ip-1])
}
