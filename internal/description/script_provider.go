package description

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/opentalon/funchost/internal/script"
)

// ScriptFunctionDescriptorProvider resolves folders whose source is a
// script type known to the engine registry.
type ScriptFunctionDescriptorProvider struct {
	rootPath   string
	engines    *script.Registry
	triggers   *TriggerParsers
	extensions map[string]bool
}

// ScriptProviderOption configures a ScriptFunctionDescriptorProvider.
type ScriptProviderOption func(*ScriptFunctionDescriptorProvider)

// WithExtensions restricts the provider to a subset of the registry's
// script types.
func WithExtensions(exts ...string) ScriptProviderOption {
	return func(p *ScriptFunctionDescriptorProvider) {
		p.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			p.extensions[script.NormalizeExtension(e)] = true
		}
	}
}

// WithTriggerParsers replaces the built-in trigger kinds.
func WithTriggerParsers(t *TriggerParsers) ScriptProviderOption {
	return func(p *ScriptFunctionDescriptorProvider) { p.triggers = t }
}

func NewScriptProvider(rootPath string, engines *script.Registry, opts ...ScriptProviderOption) *ScriptFunctionDescriptorProvider {
	p := &ScriptFunctionDescriptorProvider{
		rootPath: rootPath,
		engines:  engines,
		triggers: DefaultTriggerParsers(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewLuaProvider returns a provider that only accepts in-process .lua
// functions.
func NewLuaProvider(rootPath string, engines *script.Registry, opts ...ScriptProviderOption) *ScriptFunctionDescriptorProvider {
	return NewScriptProvider(rootPath, engines, append([]ScriptProviderOption{WithExtensions(".lua")}, opts...)...)
}

// Supports reports whether the provider accepts scripts with ext.
func (p *ScriptFunctionDescriptorProvider) Supports(ext string) bool {
	ext = script.NormalizeExtension(ext)
	if p.extensions != nil && !p.extensions[ext] {
		return false
	}
	return p.engines.IsSupported(ext)
}

func (p *ScriptFunctionDescriptorProvider) TryCreate(folder FunctionFolderInfo) (*FunctionDescriptor, bool, error) {
	ext := strings.ToLower(filepath.Ext(folder.Source))
	if ext == "" || !p.Supports(ext) {
		return nil, false, nil
	}

	trigger, err := ResolveTrigger(folder.Name, folder.Configuration)
	if err != nil {
		return nil, false, err
	}
	triggerParam, err := p.triggers.Parse(trigger)
	if err != nil {
		return nil, false, err
	}
	if triggerParam.Name == LoggerParameterName || triggerParam.Name == BinderParameterName {
		return nil, false, trigger.fieldError("name", "is reserved")
	}

	scriptPath, err := filepath.Abs(filepath.Join(p.rootPath, folder.Source))
	if err != nil {
		return nil, false, fmt.Errorf("function %s: resolving script path: %w", folder.Name, err)
	}
	invoker, err := p.engines.NewInvoker(ext, scriptPath, folder.Name, trigger.WithTrigger(folder.Configuration))
	if err != nil {
		return nil, false, err
	}

	return &FunctionDescriptor{
		Name:    folder.Name,
		Invoker: invoker,
		Parameters: []ParameterDescriptor{
			triggerParam,
			LoggerParameter(),
			BinderParameter(),
		},
	}, true, nil
}
