package errors

import (
	"errors"
	"log/slog"
)

const (
	contextKeyOperation = "operation"
	contextKeyInterface = "interface"
	contextKeyPath      = "path"
	contextKeyKey       = "key"
	contextKeyCommand   = "command"
	contextKeyValue     = "value"
	contextKeyExpected  = "expected"
	contextKeyActual    = "actual"
)

// ErrorContext captures structured metadata for categorized errors.
type ErrorContext struct {
	Operation string
	Interface string
	Path      string
	Key       string
	Command   string
	Value     string
	Expected  string
	Actual    string
	Extra     map[string]any
}

// Merge returns a new ErrorContext combining the receiver with the provided context.
// Non-empty fields from the other context override existing values. Extra maps are merged.
func (ec ErrorContext) Merge(other ErrorContext) ErrorContext {
	result := ec

	overrides := []struct {
		dst *string
		src string
	}{
		{&result.Operation, other.Operation},
		{&result.Interface, other.Interface},
		{&result.Path, other.Path},
		{&result.Key, other.Key},
		{&result.Command, other.Command},
		{&result.Value, other.Value},
		{&result.Expected, other.Expected},
		{&result.Actual, other.Actual},
	}
	for _, o := range overrides {
		if o.src != "" {
			*o.dst = o.src
		}
	}

	if len(other.Extra) > 0 {
		merged := make(map[string]any, len(ec.Extra)+len(other.Extra))
		for k, v := range ec.Extra {
			merged[k] = v
		}
		for k, v := range other.Extra {
			merged[k] = v
		}
		result.Extra = merged
	}

	return result
}

// ToMap converts the context into a map for logging compatibility.
func (ec ErrorContext) ToMap() map[string]any {
	result := make(map[string]any)

	fields := []struct {
		key   string
		value string
	}{
		{contextKeyOperation, ec.Operation},
		{contextKeyInterface, ec.Interface},
		{contextKeyPath, ec.Path},
		{contextKeyKey, ec.Key},
		{contextKeyCommand, ec.Command},
		{contextKeyValue, ec.Value},
		{contextKeyExpected, ec.Expected},
		{contextKeyActual, ec.Actual},
	}
	for _, f := range fields {
		if f.value != "" {
			result[f.key] = f.value
		}
	}

	for k, v := range ec.Extra {
		result[k] = v
	}

	return result
}

// LogArgs renders err as slog arguments: category, message and any attached context.
func LogArgs(err error, defaultCategory Category) (Category, []any) {
	category := defaultCategory
	var ctxMap map[string]any

	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		category = typed.Category
		ctxMap = typed.Context.ToMap()
	}

	args := []any{
		slog.String("category", category.String()),
		slog.String("error", err.Error()),
	}
	if len(ctxMap) > 0 {
		args = append(args, slog.Any("context", ctxMap))
	}
	return category, args
}
