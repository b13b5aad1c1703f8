package description

import (
	"fmt"

	"github.com/opentalon/funchost/internal/script"
)

const (
	ProviderLua    = "lua"
	ProviderScript = "script"
)

// ProvidersFromConfig builds the provider chain from an ordered list of
// provider names:
//   - "lua"    -> in-process .lua functions
//   - "script" -> every script type in the engine registry
func ProvidersFromConfig(names []string, rootPath string, engines *script.Registry) ([]Provider, error) {
	providers := make([]Provider, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("provider %q listed twice", name)
		}
		seen[name] = true
		switch name {
		case ProviderLua:
			providers = append(providers, NewLuaProvider(rootPath, engines))
		case ProviderScript:
			providers = append(providers, NewScriptProvider(rootPath, engines))
		default:
			return nil, fmt.Errorf("unknown descriptor provider %q (supported: %s, %s)",
				name, ProviderLua, ProviderScript)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one descriptor provider is required")
	}
	return providers, nil
}
