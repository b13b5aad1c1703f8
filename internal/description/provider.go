package description

import (
	"path/filepath"
	"strings"
)

// Provider attempts to turn a function folder into a descriptor.
// It returns (nil, false, nil) to decline, a complete descriptor with
// true to accept, or an error when it recognized the folder but its
// configuration is invalid.
type Provider interface {
	TryCreate(folder FunctionFolderInfo) (*FunctionDescriptor, bool, error)
}

// Pipeline offers folders to an ordered, fixed list of providers. More
// specific providers go first.
type Pipeline struct {
	providers []Provider
}

func NewPipeline(providers ...Provider) *Pipeline {
	return &Pipeline{providers: append([]Provider(nil), providers...)}
}

func (p *Pipeline) Providers() []Provider {
	return append([]Provider(nil), p.providers...)
}

func (p *Pipeline) Resolve(folder FunctionFolderInfo) (*FunctionDescriptor, error) {
	return Resolve(folder, p.providers)
}

// Resolve returns the descriptor from the first provider that accepts
// folder. A provider error stops the chain for this folder.
func Resolve(folder FunctionFolderInfo, providers []Provider) (*FunctionDescriptor, error) {
	for _, prov := range providers {
		d, ok, err := prov.TryCreate(folder)
		if err != nil {
			return nil, err
		}
		if ok && d != nil {
			return d, nil
		}
	}
	return nil, &NoMatchingProviderError{
		Function:    folder.Name,
		Extension:   strings.ToLower(filepath.Ext(folder.Source)),
		TriggerType: triggerType(folder.Configuration),
	}
}

func triggerType(cfg Configuration) string {
	trigger, ok := cfg["trigger"].(map[string]any)
	if !ok {
		return ""
	}
	typ, _ := trigger["type"].(string)
	return typ
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(folder FunctionFolderInfo) (*FunctionDescriptor, bool, error)

func (f ProviderFunc) TryCreate(folder FunctionFolderInfo) (*FunctionDescriptor, bool, error) {
	return f(folder)
}
