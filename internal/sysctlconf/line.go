package sysctlconf

import "strings"

// LineKind classifies a single line of a sysctl configuration file.
type LineKind int

const (
	LineBlank LineKind = iota
	LineComment
	LineAssignment
	LineOther
)

// Line is the classification of one raw line.
type Line struct {
	Kind LineKind
	// Key is the normalized parameter key; set only for LineAssignment.
	Key string
	// Value is the text after the assignment marker with surrounding whitespace removed.
	Value string
}

// ClassifyLine applies the sysctl.conf line grammar:
//
//	line       = [ws] ( comment | assignment | other | "" )
//	comment    = ("#" | ";") *any
//	assignment = ["-"] key [ws] "=" [ws] value
//	key        = 1*( any except ws and "=" )
//
// A leading "-" (ignore-failure marker) is not part of the key, and "/" separators
// are treated as ".", so "-net/core/rmem_max=1" and "net.core.rmem_max = 1" name the
// same parameter. Anything else is LineOther and is never matched.
func ClassifyLine(raw string) Line {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return Line{Kind: LineBlank}
	case trimmed[0] == '#' || trimmed[0] == ';':
		return Line{Kind: LineComment}
	}

	idx := strings.IndexByte(trimmed, '=')
	if idx <= 0 {
		return Line{Kind: LineOther}
	}

	key := strings.TrimRight(trimmed[:idx], " \t")
	if strings.ContainsAny(key, " \t") {
		return Line{Kind: LineOther}
	}
	key = NormalizeKey(key)
	if key == "" {
		return Line{Kind: LineOther}
	}

	return Line{
		Kind:  LineAssignment,
		Key:   key,
		Value: strings.TrimSpace(trimmed[idx+1:]),
	}
}

// NormalizeKey strips the ignore-failure marker and converts "/" separators to ".".
func NormalizeKey(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "-")
	return strings.ReplaceAll(key, "/", ".")
}

// sameValue compares values ignoring runs of whitespace, so "4096  87380 6291456"
// equals "4096 87380 6291456".
func sameValue(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}
