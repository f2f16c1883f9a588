package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDocument reports a configuration or boot script that cannot be handled as text.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrPrecondition reports an environment check that failed before any mutation.
	ErrPrecondition = errors.New("precondition failed")
)

// Category classifies an error to guide handling strategy.
type Category int

const (
	CategoryCritical Category = iota
	CategoryRecoverable
	CategoryOptional
)

func (c Category) String() string {
	switch c {
	case CategoryCritical:
		return "critical"
	case CategoryRecoverable:
		return "recoverable"
	case CategoryOptional:
		return "optional"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Error wraps an underlying error with a handling category and optional context.
type Error struct {
	Category Category
	Err      error
	Context  ErrorContext
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	ctxMap := e.Context.ToMap()
	if len(ctxMap) == 0 {
		return fmt.Sprintf("[%s] %v", e.Category, e.Err)
	}
	return fmt.Sprintf("[%s] %v (context=%v)", e.Category, e.Err, ctxMap)
}

// Unwrap exposes the wrapped root cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New constructs an Error with the provided category, cause, and context.
func New(category Category, err error, context ErrorContext) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Category: category,
		Err:      err,
		Context:  context,
	}
}

// WrapRecoverable wraps an existing error as recoverable while merging context maps.
func WrapRecoverable(err error, operation string, contexts ...ErrorContext) *Error {
	if err == nil {
		return nil
	}
	ctx := ErrorContext{Operation: operation}
	for _, c := range contexts {
		ctx = ctx.Merge(c)
	}
	return New(CategoryRecoverable, err, ctx)
}

// InvalidDocument builds a critical error for a file whose content cannot be processed.
func InvalidDocument(path, reason string) *Error {
	return New(
		CategoryCritical,
		fmt.Errorf("%w: %s", ErrInvalidDocument, reason),
		ErrorContext{Operation: "read_document", Path: path},
	)
}

// Precondition builds a critical error for a failed environment check.
func Precondition(operation, reason string, contexts ...ErrorContext) *Error {
	ctx := ErrorContext{Operation: operation}
	for _, c := range contexts {
		ctx = ctx.Merge(c)
	}
	return New(CategoryCritical, fmt.Errorf("%w: %s", ErrPrecondition, reason), ctx)
}

// CategoryOf returns the category carried by err, or fallback when err is uncategorised.
func CategoryOf(err error, fallback Category) Category {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Category
	}
	return fallback
}
