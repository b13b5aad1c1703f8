package script

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Invocation carries the positional arguments of a function call: the
// trigger payload, the logger and the output binder.
type Invocation struct {
	Function string
	Input    string
	Logger   *slog.Logger
	Binder   *Binder
}

type Result struct {
	Output   string
	Bindings map[string]string
}

// Invoker is the opaque handle a descriptor holds for its script. Creating
// one never executes anything.
type Invoker interface {
	ScriptPath() string
	Configuration() map[string]any
	Invoke(ctx context.Context, inv Invocation) (*Result, error)
}

// Binder collects output bindings produced by a function. Writing them to
// their destinations is the caller's job.
type Binder struct {
	mu     sync.Mutex
	values map[string]string
}

func NewBinder() *Binder {
	return &Binder{values: make(map[string]string)}
}

func (b *Binder) Bind(name, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[name] = value
}

// Values returns a copy of the bound outputs.
func (b *Binder) Values() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

// Names returns the bound output names in sorted order.
func (b *Binder) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.values))
	for k := range b.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func invocationDefaults(inv Invocation) Invocation {
	if inv.Logger == nil {
		inv.Logger = slog.Default()
	}
	if inv.Binder == nil {
		inv.Binder = NewBinder()
	}
	return inv
}

func triggerName(configuration map[string]any) string {
	trigger, ok := configuration["trigger"].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := trigger["name"].(string)
	return name
}
