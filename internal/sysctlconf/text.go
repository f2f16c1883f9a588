package sysctlconf

import (
	"strings"
	"unicode/utf8"

	terr "fdtune/internal/errors"
)

// Lines is a document split on "\n". Items keep any "\r" so untouched lines are
// written back byte-for-byte; CRLF records the convention for generated lines.
type Lines struct {
	Items []string
	CRLF  bool
}

// SplitLines validates text and splits it into lines. A trailing terminator does not
// produce an empty final line. Invalid UTF-8 or NUL bytes yield ErrInvalidDocument.
func SplitLines(text string) (Lines, error) {
	if err := ValidateText(text); err != nil {
		return Lines{}, err
	}

	var lines Lines
	if i := strings.IndexByte(text, '\n'); i > 0 && text[i-1] == '\r' {
		lines.CRLF = true
	}
	if text == "" {
		return lines, nil
	}

	items := strings.Split(text, "\n")
	if items[len(items)-1] == "" {
		items = items[:len(items)-1]
	}
	lines.Items = items
	return lines, nil
}

// Generated renders a line produced by the tool using the document's terminator.
func (l Lines) Generated(text string) string {
	if l.CRLF {
		return text + "\r"
	}
	return text
}

// Join renders the lines, ending with exactly one terminator.
func (l Lines) Join() string {
	if len(l.Items) == 0 {
		return ""
	}
	items := l.Items
	if last := items[len(items)-1]; l.CRLF && !strings.HasSuffix(last, "\r") {
		items = append(append([]string(nil), items[:len(items)-1]...), last+"\r")
	}
	return strings.Join(items, "\n") + "\n"
}

// ValidateText reports whether text can be processed as a line-oriented document.
func ValidateText(text string) error {
	if !utf8.ValidString(text) {
		return terr.InvalidDocument("", "content is not valid UTF-8")
	}
	if strings.IndexByte(text, 0) >= 0 {
		return terr.InvalidDocument("", "content contains NUL bytes")
	}
	return nil
}
