package errors

import "strings"

// MultiError aggregates multiple errors and implements the error interface.
// errors.Is and errors.As see every collected error through Unwrap.
type MultiError struct {
	Errors []error
}

// Add appends an error to the collection if it is non-nil.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Len returns the number of collected errors.
func (m *MultiError) Len() int {
	return len(m.Errors)
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return ""
	}
	messages := make([]string, 0, len(m.Errors))
	for _, err := range m.Errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ErrorOrNil returns nil when no errors are recorded, otherwise the MultiError itself.
func (m *MultiError) ErrorOrNil() error {
	if m == nil || len(m.Errors) == 0 {
		return nil
	}
	return m
}

// Unwrap returns all wrapped errors.
func (m *MultiError) Unwrap() []error {
	if m == nil {
		return nil
	}
	return m.Errors
}
