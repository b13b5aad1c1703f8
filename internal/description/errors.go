package description

import (
	"errors"
	"fmt"
)

// TriggerConfigError reports a trigger configuration that is missing a
// required field or combines fields that cannot be used together.
type TriggerConfigError struct {
	Function string
	Trigger  string
	Field    string
	Reason   string
}

func (e *TriggerConfigError) Error() string {
	if e.Trigger == "" {
		return fmt.Sprintf("function %q: trigger field %q %s", e.Function, e.Field, e.Reason)
	}
	return fmt.Sprintf("function %q: %s trigger field %q %s", e.Function, e.Trigger, e.Field, e.Reason)
}

type UnknownTriggerTypeError struct {
	Function string
	Type     string
}

func (e *UnknownTriggerTypeError) Error() string {
	return fmt.Sprintf("function %q: unknown trigger type %q", e.Function, e.Type)
}

// NoMatchingProviderError is returned when every provider declined a folder.
type NoMatchingProviderError struct {
	Function    string
	Extension   string
	TriggerType string
}

func (e *NoMatchingProviderError) Error() string {
	return fmt.Sprintf("function %q: no descriptor provider accepted it (extension %q, trigger type %q)",
		e.Function, e.Extension, e.TriggerType)
}

func IsTriggerConfigError(err error) bool {
	var target *TriggerConfigError
	return errors.As(err, &target)
}

func IsUnknownTriggerType(err error) bool {
	var target *UnknownTriggerTypeError
	return errors.As(err, &target)
}

func IsNoMatchingProvider(err error) bool {
	var target *NoMatchingProviderError
	return errors.As(err, &target)
}
