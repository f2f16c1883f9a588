package bootscript

import (
	"errors"
	"path/filepath"
	"strings"
)

// Directive is a single boot-time shell command and the resource it configures.
type Directive struct {
	Command string
	// Comment describes the purpose of the command for the operator.
	Comment string
	// Identity lists the tokens naming what the command configures, independent of
	// how. A script line targets the same resource when its fields contain these
	// tokens as an ordered subsequence.
	Identity []string
	// Alternatives are further identities naming the same resource through
	// another tool, such as ifconfig instead of ip.
	Alternatives [][]string
}

// Validate reports whether the directive can be appended.
func (d Directive) Validate() error {
	if strings.TrimSpace(d.Command) == "" {
		return errors.New("directive command is empty")
	}
	if strings.ContainsAny(d.Command, "\r\n") {
		return errors.New("directive command spans multiple lines")
	}
	if strings.ContainsAny(d.Comment, "\r\n") {
		return errors.New("directive comment spans multiple lines")
	}
	if len(d.Identity) == 0 {
		return errors.New("directive identity is empty")
	}
	for _, alt := range d.Alternatives {
		if len(alt) == 0 {
			return errors.New("directive alternative identity is empty")
		}
	}
	return nil
}

// Matches reports whether line targets the directive's resource.
func (d Directive) Matches(line string) bool {
	fields := commandFields(line)
	if len(fields) == 0 {
		return false
	}
	if containsOrdered(fields, d.Identity) {
		return true
	}
	for _, alt := range d.Alternatives {
		if containsOrdered(fields, alt) {
			return true
		}
	}
	return false
}

func containsOrdered(fields, identity []string) bool {
	if len(identity) == 0 {
		return false
	}
	next := 0
	for _, field := range fields {
		if next < len(identity) && field == identity[next] {
			next++
		}
	}
	return next == len(identity)
}

// SameCommand reports whether line runs exactly the directive's command, ignoring
// whitespace layout and the directory of the executable.
func (d Directive) SameCommand(line string) bool {
	a, b := commandFields(line), commandFields(d.Command)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// commandFields splits a script line into fields; comments and blank lines yield nil.
func commandFields(line string) []string {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	fields[0] = filepath.Base(fields[0])
	return fields
}
