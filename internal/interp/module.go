package interp

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/dop251/goja"

	"github.com/glazeware/glaze/internal/registry"
)

// Module is a compiled component script. The program is compiled once and
// shared by all workers (goja programs are safe for concurrent use across
// runtimes); each worker instantiates it into its own runtime on demand.
type Module struct {
	ID   string
	Hash string

	// Actions holds the action names declared by the script, discovered
	// at compile time by scanning declarations. Dispatch goes through
	// this registered map, never through runtime reflection.
	Actions map[string]bool

	HasLoad bool

	program *goja.Program
}

var (
	loadDeclRe   = regexp.MustCompile(`(?m)^\s*function\s+load\s*\(`)
	actionDeclRe = regexp.MustCompile(`(?m)^\s*function\s+(action_[A-Za-z0-9_]+)\s*\(`)
)

// CompileComponent compiles a component's script into a Module. Components
// without a script yield (nil, nil).
func CompileComponent(c *registry.Component) (*Module, error) {
	if !c.HasScript() {
		return nil, nil
	}

	src, err := os.ReadFile(c.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", c.ScriptPath, err)
	}

	module := &Module{
		ID:      c.ID,
		Hash:    c.ScriptHash,
		Actions: make(map[string]bool),
		HasLoad: loadDeclRe.Match(src),
	}

	var exports []string
	if module.HasLoad {
		exports = append(exports, `"load": (typeof load === "function") ? load : undefined`)
	}
	for _, m := range actionDeclRe.FindAllStringSubmatch(string(src), -1) {
		name := m[1]
		if module.Actions[strings.TrimPrefix(name, "action_")] {
			continue
		}
		module.Actions[strings.TrimPrefix(name, "action_")] = true
		exports = append(exports, fmt.Sprintf(`%q: (typeof %s === "function") ? %s : undefined`, name, name, name))
	}

	// Each script evaluates inside its own function scope so top-level
	// declarations of different components never collide in one runtime.
	wrapped := fmt.Sprintf("(function () {\n%s\nreturn {%s};\n})()", src, strings.Join(exports, ", "))

	program, err := goja.Compile(c.ScriptPath, wrapped, true)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", c.ScriptPath, err)
	}
	module.program = program
	return module, nil
}

// ModuleSet is the immutable mapping from component id to compiled module
// for one registry generation.
type ModuleSet struct {
	modules    map[string]*Module
	generation uint64
}

// BuildModuleSet compiles every scripted component in the snapshot.
// Compile failures are reported through the returned error slice; the
// failing component is excluded while the rest of the set stays usable.
func BuildModuleSet(snap *registry.Snapshot) (*ModuleSet, []error) {
	set := &ModuleSet{
		modules:    make(map[string]*Module),
		generation: snap.Generation(),
	}
	var errs []error
	for id, c := range snap.Components() {
		module, err := CompileComponent(c)
		if err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", id, err))
			continue
		}
		if module != nil {
			set.modules[id] = module
		}
	}
	return set, errs
}

// Lookup returns the module for a component id, if it has one.
func (s *ModuleSet) Lookup(id string) (*Module, bool) {
	m, ok := s.modules[id]
	return m, ok
}

// Len returns the number of compiled modules.
func (s *ModuleSet) Len() int { return len(s.modules) }
