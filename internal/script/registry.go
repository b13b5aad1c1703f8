package script

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Engine describes how scripts with a given extension are executed.
// InProcess engines run inside the host; all others are launched through
// Command with the script path appended.
type Engine struct {
	Extension string
	Command   []string
	InProcess bool
}

var defaultEngines = []Engine{
	{Extension: ".js", Command: []string{"node"}},
	{Extension: ".py", Command: []string{"python3"}},
	{Extension: ".sh", Command: []string{"bash"}},
	{Extension: ".ps1", Command: []string{"pwsh", "-NoProfile", "-File"}},
	{Extension: ".php", Command: []string{"php"}},
	{Extension: ".cmd", Command: []string{"cmd", "/c"}},
	{Extension: ".bat", Command: []string{"cmd", "/c"}},
	{Extension: ".lua", InProcess: true},
}

// Registry maps script extensions to engines. It is the fixed set of
// supported script types the descriptor providers query.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// DefaultRegistry returns a registry with the built-in engines.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, e := range defaultEngines {
		_ = r.Register(e)
	}
	return r
}

// NormalizeExtension lower-cases ext and makes sure it has a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func (r *Registry) Register(e Engine) error {
	e.Extension = NormalizeExtension(e.Extension)
	if e.Extension == "" {
		return fmt.Errorf("engine extension is required")
	}
	if !e.InProcess && len(e.Command) == 0 {
		return fmt.Errorf("engine %q: command is required", e.Extension)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[e.Extension]; exists {
		return fmt.Errorf("engine %q already registered", e.Extension)
	}
	r.engines[e.Extension] = e
	return nil
}

// Override replaces the command used for ext, registering the extension
// if it is not known yet.
func (r *Registry) Override(ext string, command []string) error {
	ext = NormalizeExtension(ext)
	if ext == "" {
		return fmt.Errorf("engine extension is required")
	}
	if len(command) == 0 {
		return fmt.Errorf("engine %q: command is required", ext)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[ext] = Engine{Extension: ext, Command: append([]string(nil), command...)}
	return nil
}

func (r *Registry) Lookup(ext string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[NormalizeExtension(ext)]
	return e, ok
}

func (r *Registry) IsSupported(ext string) bool {
	_, ok := r.Lookup(ext)
	return ok
}

// Extensions returns the supported extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for ext := range r.engines {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// NewInvoker builds the invoker for a script. It does not touch the file
// system; the script is only read when the invoker runs.
func (r *Registry) NewInvoker(ext, scriptPath, function string, configuration map[string]any) (Invoker, error) {
	e, ok := r.Lookup(ext)
	if !ok {
		return nil, fmt.Errorf("unsupported script type %q", ext)
	}
	if e.InProcess {
		return NewLuaInvoker(scriptPath, function, configuration), nil
	}
	return NewProcessInvoker(e.Command, scriptPath, function, configuration), nil
}
