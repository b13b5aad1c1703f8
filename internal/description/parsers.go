package description

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Known trigger kinds.
const (
	TriggerQueue      = "queue"
	TriggerBlob       = "blob"
	TriggerServiceBus = "serviceBus"
	TriggerTimer      = "timer"
	TriggerWebHook    = "webHook"
)

// TriggerParser validates one trigger kind and builds its parameter.
// Parsers are pure: no I/O, same input gives the same output.
type TriggerParser func(spec TriggerSpec) (ParameterDescriptor, error)

// TriggerParsers maps trigger types to parsers. Kinds are registered at
// startup; lookups are safe for concurrent use.
type TriggerParsers struct {
	mu      sync.RWMutex
	parsers map[string]TriggerParser
}

func NewTriggerParsers() *TriggerParsers {
	return &TriggerParsers{parsers: make(map[string]TriggerParser)}
}

// DefaultTriggerParsers returns a registry with the built-in kinds.
func DefaultTriggerParsers() *TriggerParsers {
	r := NewTriggerParsers()
	_ = r.Register(TriggerQueue, ParseQueueTrigger)
	_ = r.Register(TriggerBlob, ParseBlobTrigger)
	_ = r.Register(TriggerServiceBus, ParseServiceBusTrigger)
	_ = r.Register(TriggerTimer, ParseTimerTrigger)
	_ = r.Register(TriggerWebHook, ParseWebHookTrigger)
	return r
}

func (r *TriggerParsers) Register(kind string, p TriggerParser) error {
	if kind == "" {
		return fmt.Errorf("trigger kind is required")
	}
	if p == nil {
		return fmt.Errorf("trigger kind %q: parser is nil", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.parsers[kind]; exists {
		return fmt.Errorf("trigger kind %q already registered", kind)
	}
	r.parsers[kind] = p
	return nil
}

func (r *TriggerParsers) Lookup(kind string) (TriggerParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[kind]
	return p, ok
}

func (r *TriggerParsers) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Parse dispatches spec to the parser registered for its type.
func (r *TriggerParsers) Parse(spec TriggerSpec) (ParameterDescriptor, error) {
	p, ok := r.Lookup(spec.Type)
	if !ok {
		return ParameterDescriptor{}, &UnknownTriggerTypeError{Function: spec.Function, Type: spec.Type}
	}
	return p(spec)
}

func ParseQueueTrigger(spec TriggerSpec) (ParameterDescriptor, error) {
	queue, err := spec.required("queueName")
	if err != nil {
		return ParameterDescriptor{}, err
	}
	attrs := map[string]string{"queueName": queue}
	copyOptional(spec, attrs, "connection")
	return ParameterDescriptor{
		Name:       spec.Name,
		Type:       TypeQueueTrigger,
		ValueType:  ValueString,
		Attributes: attrs,
	}, nil
}

func ParseBlobTrigger(spec TriggerSpec) (ParameterDescriptor, error) {
	path, err := spec.required("path")
	if err != nil {
		return ParameterDescriptor{}, err
	}
	// container/blob pattern, e.g. "images/{name}.png"
	if strings.HasPrefix(path, "/") || !strings.Contains(path, "/") {
		return ParameterDescriptor{}, spec.fieldError("path", "must have the form container/blob-pattern")
	}
	attrs := map[string]string{"path": path}
	copyOptional(spec, attrs, "connection")
	return ParameterDescriptor{
		Name:       spec.Name,
		Type:       TypeBlobTrigger,
		ValueType:  ValueStream,
		Attributes: attrs,
	}, nil
}

func ParseServiceBusTrigger(spec TriggerSpec) (ParameterDescriptor, error) {
	queue := spec.Value("queueName")
	topic := spec.Value("topicName")
	subscription := spec.Value("subscriptionName")

	attrs := map[string]string{}
	switch {
	case queue != "" && (topic != "" || subscription != ""):
		return ParameterDescriptor{}, spec.fieldError("queueName", "cannot be combined with topicName/subscriptionName")
	case queue != "":
		attrs["queueName"] = queue
	case topic != "" && subscription == "":
		return ParameterDescriptor{}, spec.fieldError("subscriptionName", "is required with topicName")
	case topic == "" && subscription != "":
		return ParameterDescriptor{}, spec.fieldError("topicName", "is required with subscriptionName")
	case topic != "":
		attrs["topicName"] = topic
		attrs["subscriptionName"] = subscription
	default:
		return ParameterDescriptor{}, spec.fieldError("queueName", "or topicName and subscriptionName is required")
	}

	if rights := spec.Value("accessRights"); rights != "" {
		rights = strings.ToLower(rights)
		if rights != "manage" && rights != "listen" {
			return ParameterDescriptor{}, spec.fieldError("accessRights", "must be manage or listen")
		}
		attrs["accessRights"] = rights
	}
	copyOptional(spec, attrs, "connection")
	return ParameterDescriptor{
		Name:       spec.Name,
		Type:       TypeServiceBusTrigger,
		ValueType:  ValueMessage,
		Attributes: attrs,
	}, nil
}

func ParseTimerTrigger(spec TriggerSpec) (ParameterDescriptor, error) {
	expr, err := spec.required("schedule")
	if err != nil {
		return ParameterDescriptor{}, err
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return ParameterDescriptor{}, spec.fieldError("schedule", err.Error())
	}
	attrs := map[string]string{
		"schedule":     expr,
		"scheduleKind": sched.Kind,
	}
	runOnStartup, present, err := spec.Bool("runOnStartup")
	if err != nil {
		return ParameterDescriptor{}, err
	}
	if present {
		attrs["runOnStartup"] = fmt.Sprint(runOnStartup)
	}
	return ParameterDescriptor{
		Name:       spec.Name,
		Type:       TypeTimerTrigger,
		ValueType:  ValueTimerInfo,
		Attributes: attrs,
	}, nil
}

func ParseWebHookTrigger(spec TriggerSpec) (ParameterDescriptor, error) {
	route := strings.Trim(spec.Value("route"), "/")
	if route == "" {
		route = spec.Function
	}
	if route == "" {
		return ParameterDescriptor{}, spec.fieldError("route", "is required when the function has no name")
	}
	attrs := map[string]string{"route": route}
	copyOptional(spec, attrs, "webHookType")

	methods, err := spec.Strings("methods")
	if err != nil {
		return ParameterDescriptor{}, err
	}
	if len(methods) > 0 {
		for i, m := range methods {
			methods[i] = strings.ToUpper(strings.TrimSpace(m))
		}
		sort.Strings(methods)
		attrs["methods"] = strings.Join(methods, ",")
	}
	return ParameterDescriptor{
		Name:       spec.Name,
		Type:       TypeHTTPTrigger,
		ValueType:  ValueHTTPRequest,
		Attributes: attrs,
	}, nil
}

func copyOptional(spec TriggerSpec, attrs map[string]string, keys ...string) {
	for _, k := range keys {
		if v := spec.Value(k); v != "" {
			attrs[k] = v
		}
	}
}
