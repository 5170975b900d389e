// Package vm - interactive debugger support, adapted from the
// teacher's instruction-position breakpoint model onto this VM's
// Frame/Opcode shape: ShouldPause/InteractivePrompt are now consulted
// once per bytecode instruction from run()'s dispatch loop instead of
// from a separate bc.Instructions array, and stack/call-stack/global
// inspection reads the VM's actual stack/frames/module-registry fields
// rather than the teacher's flat sp/locals/globals.
package vm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blang-lang/blang/pkg/bytecode"
)

// Debugger provides interactive debugging capabilities for the VM.
type Debugger struct {
	vm          *VM
	breakpoints map[int]bool // absolute bytecode offsets within whatever frame is current
	stepMode    bool
	enabled     bool
}

// NewDebugger creates a new debugger instance attached to vm.
func NewDebugger(vm *VM) *Debugger {
	return &Debugger{vm: vm, breakpoints: make(map[int]bool)}
}

func (d *Debugger) Enable()  { d.enabled = true }
func (d *Debugger) Disable() { d.enabled = false }

func (d *Debugger) SetStepMode(enabled bool) { d.stepMode = enabled }

func (d *Debugger) AddBreakpoint(ip int)    { d.breakpoints[ip] = true }
func (d *Debugger) RemoveBreakpoint(ip int) { delete(d.breakpoints, ip) }
func (d *Debugger) ClearBreakpoints()       { d.breakpoints = make(map[int]bool) }

// ShouldPause reports whether execution should pause before running
// f's next instruction.
func (d *Debugger) ShouldPause(f *Frame) bool {
	if !d.enabled {
		return false
	}
	return d.stepMode || d.breakpoints[f.ip]
}

// ShowCurrentInstruction displays the instruction f.ip is about to
// execute.
func (d *Debugger) ShowCurrentInstruction(f *Frame) {
	code := f.fn.Code.Bytes
	if f.ip >= len(code) {
		fmt.Println("No current instruction")
		return
	}
	op := bytecode.Opcode(code[f.ip])
	fmt.Printf("  %4d: %s", f.ip, op)
	d.formatOperand(f, op)
	fmt.Println()
}

// formatOperand prints the inline u16 operand most opcode groups
// carry (constant-pool index, jump target, slot number); it does not
// attempt to know every opcode's exact encoding width, so it only
// peeks the next two bytes when they exist.
func (d *Debugger) formatOperand(f *Frame, op bytecode.Opcode) {
	code := f.fn.Code.Bytes
	if f.ip+3 > len(code) {
		return
	}
	operand := bytecode.ReadU16(code, f.ip+1)
	fmt.Printf(" %d", operand)
}

// ShowStack displays the current VM value stack, top to bottom.
func (d *Debugger) ShowStack() {
	fmt.Println("Stack (top to bottom):")
	if len(d.vm.stack) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for i := len(d.vm.stack) - 1; i >= 0; i-- {
		fmt.Printf("  [%d] %v\n", i, d.vm.stack[i])
	}
}

// ShowLocals displays f's local-slot window.
func (d *Debugger) ShowLocals(f *Frame) {
	fmt.Println("Local variables:")
	if f.base >= len(d.vm.stack) {
		fmt.Println("  (none set)")
		return
	}
	for i := f.base; i < len(d.vm.stack); i++ {
		fmt.Printf("  [%d] %v\n", i-f.base, d.vm.stack[i])
	}
}

// ShowGlobals displays f's owning module's declared globals.
func (d *Debugger) ShowGlobals(f *Frame) {
	fmt.Println("Global variables:")
	if f.closure == nil {
		fmt.Println("  (none)")
		return
	}
	mod := f.closure.AsClosure().Fn.AsFunction().Proto.Module
	if mod == nil {
		fmt.Println("  (none)")
		return
	}
	m := mod.AsModule()
	if len(m.Globals) == 0 {
		fmt.Println("  (none)")
		return
	}
	for i, v := range m.Globals {
		fmt.Printf("  [%d] %v\n", i, v)
	}
}

// ShowCallStack displays the current frame stack, innermost first.
func (d *Debugger) ShowCallStack() {
	fmt.Println("Call stack (top to bottom):")
	if len(d.vm.frames) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for i := len(d.vm.frames) - 1; i >= 0; i-- {
		fr := d.vm.frames[i]
		fmt.Printf("  %s", fr.funcName)
		if fr.moduleName != "" {
			fmt.Printf(" (%s)", fr.moduleName)
		}
		fmt.Printf(" [ip=%d]\n", fr.ip)
	}
}

// InteractivePrompt is called when execution pauses at a breakpoint or
// in step mode; it returns false if the user asked to abort execution.
func (d *Debugger) InteractivePrompt(f *Frame) (continueExecution bool) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("\n=== Debugger Paused ===")
	d.ShowCurrentInstruction(f)

	for {
		fmt.Print("debug> ")
		if !scanner.Scan() {
			return false
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		command := parts[0]

		switch command {
		case "help", "h", "?":
			d.printHelp()
		case "continue", "c":
			d.SetStepMode(false)
			return true
		case "step", "s", "next", "n":
			d.SetStepMode(true)
			return true
		case "stack", "st":
			d.ShowStack()
		case "locals", "l":
			d.ShowLocals(f)
		case "globals", "g":
			d.ShowGlobals(f)
		case "callstack", "cs":
			d.ShowCallStack()
		case "instruction", "i":
			d.ShowCurrentInstruction(f)
		case "breakpoint", "b":
			if len(parts) < 2 {
				fmt.Println("Usage: breakpoint <instruction_offset>")
				continue
			}
			ip, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("Invalid instruction offset")
				continue
			}
			d.AddBreakpoint(ip)
			fmt.Printf("Breakpoint added at offset %d\n", ip)
		case "delete", "d":
			if len(parts) < 2 {
				fmt.Println("Usage: delete <instruction_offset>")
				continue
			}
			ip, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("Invalid instruction offset")
				continue
			}
			d.RemoveBreakpoint(ip)
			fmt.Printf("Breakpoint removed at offset %d\n", ip)
		case "quit", "q":
			return false
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", command)
		}
	}
}

func (d *Debugger) printHelp() {
	fmt.Println("Debugger commands:")
	fmt.Println("  help, h, ?           Show this help")
	fmt.Println("  continue, c          Continue execution")
	fmt.Println("  step, s, next, n     Execute one more instruction, then pause again")
	fmt.Println("  stack, st            Show the value stack")
	fmt.Println("  locals, l            Show the current frame's local slots")
	fmt.Println("  globals, g           Show the current frame's module globals")
	fmt.Println("  callstack, cs        Show the frame stack")
	fmt.Println("  instruction, i       Show the current instruction")
	fmt.Println("  breakpoint <n>, b    Add a breakpoint at bytecode offset n")
	fmt.Println("  delete <n>, d        Remove a breakpoint at bytecode offset n")
	fmt.Println("  quit, q              Abort execution")
}
