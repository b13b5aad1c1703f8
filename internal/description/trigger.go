package description

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTriggerName is the parameter name used when a trigger has none.
const DefaultTriggerName = "input"

// TriggerSpec is the resolved "trigger" subtree of a function document.
// Fields holds every key of the subtree, with "name" already defaulted.
type TriggerSpec struct {
	Function string
	Type     string
	Name     string
	Fields   map[string]any
}

// ResolveTrigger reads the trigger subtree of cfg and returns a new spec
// with the name defaulted. cfg is not modified.
func ResolveTrigger(function string, cfg Configuration) (TriggerSpec, error) {
	raw, ok := cfg["trigger"]
	if !ok || raw == nil {
		return TriggerSpec{}, &TriggerConfigError{Function: function, Field: "trigger", Reason: "is required"}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return TriggerSpec{}, &TriggerConfigError{Function: function, Field: "trigger", Reason: "must be an object"}
	}

	typ, ok := obj["type"].(string)
	if !ok || typ == "" {
		return TriggerSpec{}, &TriggerConfigError{Function: function, Field: "type", Reason: "is required"}
	}

	name := ""
	if v, present := obj["name"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return TriggerSpec{}, &TriggerConfigError{Function: function, Trigger: typ, Field: "name", Reason: "must be a string"}
		}
		name = s
	}
	if name == "" {
		name = DefaultTriggerName
	}

	fields := cloneMap(obj)
	fields["name"] = name
	return TriggerSpec{Function: function, Type: typ, Name: name, Fields: fields}, nil
}

// WithTrigger returns a copy of cfg whose trigger subtree is the resolved
// spec, so the invoker sees the same parameter name as the descriptor.
func (t TriggerSpec) WithTrigger(cfg Configuration) Configuration {
	out := cfg.Clone()
	if out == nil {
		out = make(Configuration, 1)
	}
	out["trigger"] = cloneMap(t.Fields)
	return out
}

// Value returns the string value of key. Numbers and booleans are
// formatted; absent or null keys yield "".
func (t TriggerSpec) Value(key string) string {
	switch v := t.Fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprint(v)
	}
}

// Bool reads an optional boolean. Strings "true"/"false" are accepted.
func (t TriggerSpec) Bool(key string) (value, present bool, err error) {
	switch v := t.Fields[key].(type) {
	case nil:
		return false, false, nil
	case bool:
		return v, true, nil
	case string:
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return false, true, t.fieldError(key, "must be a boolean")
		}
		return b, true, nil
	default:
		return false, true, t.fieldError(key, "must be a boolean")
	}
}

// Strings reads an optional list of strings; a single string is a
// one-element list.
func (t TriggerSpec) Strings(key string) ([]string, error) {
	switch v := t.Fields[key].(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, t.fieldError(key, "must be a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, t.fieldError(key, "must be a list of strings")
	}
}

func (t TriggerSpec) required(key string) (string, error) {
	v := strings.TrimSpace(t.Value(key))
	if v == "" {
		return "", t.fieldError(key, "is required")
	}
	return v, nil
}

func (t TriggerSpec) fieldError(field, reason string) error {
	return &TriggerConfigError{Function: t.Function, Trigger: t.Type, Field: field, Reason: reason}
}
