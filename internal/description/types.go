package description

import (
	"github.com/opentalon/funchost/internal/script"
)

// Configuration is the parsed function document (function.json).
type Configuration map[string]any

// Clone returns a copy of c deep enough that replacing or editing the
// trigger subtree of the copy leaves c untouched.
func (c Configuration) Clone() Configuration {
	if c == nil {
		return nil
	}
	out := make(Configuration, len(c))
	for k, v := range c {
		out[k] = v
	}
	if trigger, ok := c["trigger"].(map[string]any); ok {
		out["trigger"] = cloneMap(trigger)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FunctionFolderInfo is one discovered function folder. Source is the
// script path relative to the script root.
type FunctionFolderInfo struct {
	Name          string
	Source        string
	Configuration Configuration
}

// SemanticType identifies the binding kind of a parameter.
type SemanticType string

const (
	TypeQueueTrigger      SemanticType = "queue-trigger"
	TypeBlobTrigger       SemanticType = "blob-trigger"
	TypeServiceBusTrigger SemanticType = "service-bus-trigger"
	TypeTimerTrigger      SemanticType = "timer-trigger"
	TypeHTTPTrigger       SemanticType = "http-trigger"
	TypeLogger            SemanticType = "logger"
	TypeBinder            SemanticType = "binder"
)

// Value types handed to the function for each parameter.
const (
	ValueString      = "string"
	ValueStream      = "stream"
	ValueMessage     = "message"
	ValueTimerInfo   = "TimerInfo"
	ValueHTTPRequest = "HttpRequest"
	ValueLogger      = "Logger"
	ValueBinder      = "Binder"
)

const (
	LoggerParameterName = "log"
	BinderParameterName = "binder"
)

type ParameterDescriptor struct {
	Name       string            `json:"name"`
	Type       SemanticType      `json:"type"`
	ValueType  string            `json:"valueType,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// IsTrigger reports whether p binds the function's trigger.
func (p ParameterDescriptor) IsTrigger() bool {
	switch p.Type {
	case TypeLogger, TypeBinder:
		return false
	}
	return p.Type != ""
}

func LoggerParameter() ParameterDescriptor {
	return ParameterDescriptor{Name: LoggerParameterName, Type: TypeLogger, ValueType: ValueLogger}
}

func BinderParameter() ParameterDescriptor {
	return ParameterDescriptor{Name: BinderParameterName, Type: TypeBinder, ValueType: ValueBinder}
}

// FunctionDescriptor is the resolved invocation contract of one function.
// Parameters are positional: trigger, log, binder.
type FunctionDescriptor struct {
	Name       string
	Invoker    script.Invoker
	Parameters []ParameterDescriptor
}

// Trigger returns the trigger parameter.
func (d *FunctionDescriptor) Trigger() ParameterDescriptor {
	return d.Parameters[0]
}

// ParameterNames returns the parameter names in positional order.
func (d *FunctionDescriptor) ParameterNames() []string {
	names := make([]string, len(d.Parameters))
	for i, p := range d.Parameters {
		names[i] = p.Name
	}
	return names
}
