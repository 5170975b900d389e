// Command blang is the interpreter's CLI front end: run a source or
// precompiled module, precompile one ahead of time, or drop into a
// REPL. Grounded on kristofer-smog/cmd/smog/main.go's command
// dispatch and REPL loop shape, generalized from its .smog/.sg
// extensions to this project's .jsr/.jsc pair and from its persistent
// Compiler/VM REPL state to a single long-lived vm.VM (§4.7, §6).
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blang-lang/blang/pkg/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		runREPL()
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("blang version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL()
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(os.Args[2])
	case "compile":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			fmt.Fprintln(os.Stderr, "\nUsage: blang compile <input.jsr> [output.jsc]")
			os.Exit(1)
		}
		inputFile := os.Args[2]
		outputFile := ""
		if len(os.Args) >= 4 {
			outputFile = os.Args[3]
		}
		compileFile(inputFile, outputFile)
	default:
		runFile(os.Args[1])
	}
}

func printUsage() {
	fmt.Println("blang - a dynamically-typed, class-based scripting language")
	fmt.Println("\nUsage:")
	fmt.Println("  blang                        Start interactive REPL")
	fmt.Println("  blang [file]                 Run a .jsr or .jsc file")
	fmt.Println("  blang run [file]             Run a .jsr or .jsc file")
	fmt.Println("  blang compile <in> [out]     Compile .jsr to .jsc bytecode")
	fmt.Println("  blang repl                   Start interactive REPL")
	fmt.Println("  blang version                Show version")
	fmt.Println("  blang help                   Show this help")
	fmt.Println("\nFile extensions:")
	fmt.Println("  .jsr    Source code files (text)")
	fmt.Println("  .jsc    Compiled bytecode files (binary)")
}

func newVM() *vm.VM {
	return vm.New(vm.Config{
		ImportPaths: []string{"."},
		OnError: func(line int, msg string) {
			fmt.Fprintf(os.Stderr, "line %d: %s\n", line, msg)
		},
	})
}

// runFile runs a .jsr source file or a .jsc bytecode file, chosen by
// extension exactly as the import search order's two candidate
// extensions are (§4.7).
func runFile(filename string) {
	machine := newVM()
	if filepath.Ext(filename) == ".jsc" {
		f, err := os.Open(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if _, err := machine.RunBytecode(f, filename); err != nil {
			fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}
	if _, err := machine.Eval(filename, string(data)); err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		os.Exit(1)
	}
}

// compileFile precompiles a .jsr source file to a .jsc binary module
// (§4.5), the path that lets a deployed program skip parsing at
// startup.
func compileFile(inputFile, outputFile string) {
	if outputFile == "" {
		if filepath.Ext(inputFile) == ".jsr" {
			outputFile = inputFile[:len(inputFile)-len(".jsr")] + ".jsc"
		} else {
			outputFile = inputFile + ".jsc"
		}
	}

	data, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	outFile, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	machine := newVM()
	if err := machine.CompileToBytecode(outFile, inputFile, data); err != nil {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Compiled %s -> %s\n", inputFile, outputFile)
}

// runREPL starts an interactive Read-Eval-Print loop. Each accepted
// input is a complete, independently-named top-level module run
// against the same long-lived VM, so top-level globals from one line
// are not visible to the next (§3.2's module-scoped globals) — only
// instances and values returned or stored through the class hierarchy
// persist across inputs, same as running several source files in
// sequence would.
func runREPL() {
	fmt.Printf("blang REPL v%s\n", version)
	fmt.Println("Type ':help' for help, ':quit' or ':exit' to exit")
	fmt.Println()

	machine := newVM()
	scanner := bufio.NewScanner(os.Stdin)
	lineNo := 0

	for {
		fmt.Print("blang> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case ":quit", ":exit":
			fmt.Println("Goodbye!")
			return
		case ":help":
			printREPLHelp()
			continue
		case "":
			continue
		}

		lineNo++
		result, err := machine.Eval(fmt.Sprintf("<repl:%d>", lineNo), line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if s, derr := machine.ToDisplayString(result); derr == nil {
			fmt.Printf("=> %s\n", s)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
	}
}

func printREPLHelp() {
	fmt.Println("blang REPL help")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  :help     Show this help message")
	fmt.Println("  :quit     Exit the REPL")
	fmt.Println("  :exit     Exit the REPL")
	fmt.Println()
	fmt.Println("Each line you enter runs as its own top-level module.")
}
