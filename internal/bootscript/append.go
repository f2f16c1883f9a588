package bootscript

import (
	"fmt"
	"strings"

	terr "fdtune/internal/errors"
	"fdtune/internal/sysctlconf"
)

const terminalLine = "exit 0"

// Skeleton is the minimal script synthesized when none exists.
func Skeleton() string {
	return "#!/bin/sh -e\n\n" + terminalLine + "\n"
}

// OutcomeKind is the result of reconciling a directive against a script.
type OutcomeKind int

const (
	Inserted OutcomeKind = iota
	AlreadyIdentical
	ConflictDetected
)

func (k OutcomeKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case AlreadyIdentical:
		return "already-identical"
	case ConflictDetected:
		return "conflict"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome describes what Append did.
type Outcome struct {
	Kind OutcomeKind
	// Existing is the conflicting or identical script line, as found.
	Existing string
	// Proposed is the directive command.
	Proposed string
	// Line is the 1-based line number of Existing, or of the inserted command.
	Line int
	// Synthesized is set when the script was created from Skeleton.
	Synthesized bool
}

// Append reconciles d against the current boot script text.
//
// When no line targets the directive's resource, a comment and the command are
// inserted before the terminal "exit 0" (or at the end when the script has none).
// An identical line leaves the text untouched. A differing line for the same
// resource is reported as ConflictDetected and the text is returned unchanged;
// conflicts are never resolved here.
func Append(current string, d Directive, stamp sysctlconf.Stamp) (string, Outcome, error) {
	if err := d.Validate(); err != nil {
		return "", Outcome{}, terr.New(terr.CategoryCritical, err, terr.ErrorContext{
			Operation: "validate_directive",
			Command:   d.Command,
		})
	}

	outcome := Outcome{Proposed: d.Command}
	text := current
	if strings.TrimSpace(current) == "" {
		if err := sysctlconf.ValidateText(current); err != nil {
			return "", Outcome{}, err
		}
		text = Skeleton()
		outcome.Synthesized = true
	}

	lines, err := sysctlconf.SplitLines(text)
	if err != nil {
		return "", Outcome{}, err
	}

	identical := -1
	for i, raw := range lines.Items {
		if !d.Matches(raw) {
			continue
		}
		if !d.SameCommand(raw) {
			outcome.Kind = ConflictDetected
			outcome.Existing = strings.TrimSuffix(raw, "\r")
			outcome.Line = i + 1
			return current, outcome, nil
		}
		if identical < 0 {
			identical = i
		}
	}

	if identical >= 0 {
		outcome.Kind = AlreadyIdentical
		outcome.Existing = strings.TrimSuffix(lines.Items[identical], "\r")
		outcome.Line = identical + 1
		return current, outcome, nil
	}

	comment := fmt.Sprintf("# Added by %s on %s", toolName(stamp), stamp.Date())
	if purpose := strings.TrimSpace(d.Comment); purpose != "" {
		comment += ": " + purpose
	}
	insert := []string{lines.Generated(comment), lines.Generated(strings.TrimSpace(d.Command))}

	at := terminalIndex(lines.Items)
	if at < 0 {
		at = len(lines.Items)
	}
	items := make([]string, 0, len(lines.Items)+len(insert))
	items = append(items, lines.Items[:at]...)
	items = append(items, insert...)
	items = append(items, lines.Items[at:]...)
	lines.Items = items

	outcome.Kind = Inserted
	outcome.Line = at + 2
	return lines.Join(), outcome, nil
}

// terminalIndex returns the index of the trailing "exit 0" line, or -1 when the last
// command of the script is something else.
func terminalIndex(items []string) int {
	for i := len(items) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(items[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if trimmed == terminalLine {
			return i
		}
		return -1
	}
	return -1
}

func toolName(stamp sysctlconf.Stamp) string {
	if stamp.Tool == "" {
		return sysctlconf.DefaultTool
	}
	return stamp.Tool
}
