package vm

import (
	"fmt"
	"plugin"

	"github.com/blang-lang/blang/pkg/value"
)

// NativeLoader resolves a compiled native extension adjacent to an
// imported module (§4.7 step 4). libPath is the shared-library file
// found on disk; simpleName is the import's last dotted segment,
// which the extension's exported symbol is named after
// (Jsr_open_<simpleName>, capitalised so the plugin exports it).
type NativeLoader interface {
	Load(libPath, simpleName string) (*value.NativeRegistry, error)
}

// DefaultLoader implements NativeLoader with Go's own plugin package,
// the standard-library mechanism for loading a separately-built
// shared object at runtime (no ecosystem alternative in the example
// pack exercises this concern — see DESIGN.md, Component G).
type DefaultLoader struct{}

func (DefaultLoader) Load(libPath, simpleName string) (*value.NativeRegistry, error) {
	p, err := plugin.Open(libPath)
	if err != nil {
		return nil, fmt.Errorf("opening native extension %q: %w", libPath, err)
	}
	symName := "Jsr_open_" + simpleName
	sym, err := p.Lookup(symName)
	if err != nil {
		return nil, fmt.Errorf("extension %q missing %s: %w", libPath, symName, err)
	}
	open, ok := sym.(func() *value.NativeRegistry)
	if !ok {
		return nil, fmt.Errorf("extension %q's %s has the wrong signature", libPath, symName)
	}
	return open(), nil
}
