package sysctlconf

import (
	"fmt"
	"sort"
	"time"
)

// DefaultTool identifies generated lines when a Stamp carries no tool name.
const DefaultTool = "fdtune"

// Stamp identifies the tool and moment that generated a change.
type Stamp struct {
	Tool string
	Time time.Time
}

func (s Stamp) tool() string {
	if s.Tool == "" {
		return DefaultTool
	}
	return s.Tool
}

// Timestamp renders the stamp time in UTC.
func (s Stamp) Timestamp() string {
	return s.Time.UTC().Format("2006-01-02 15:04:05Z")
}

// Date renders the stamp date in UTC.
func (s Stamp) Date() string {
	return s.Time.UTC().Format("2006-01-02")
}

// Header is the comment that opens a block of appended parameters.
func (s Stamp) Header() string {
	return fmt.Sprintf("# Added by %s on %s", s.tool(), s.Timestamp())
}

func (s Stamp) supersededPrefix() string {
	return fmt.Sprintf("# superseded by %s on %s: ", s.tool(), s.Timestamp())
}

// Classification states how a desired key was reconciled.
type Classification int

const (
	Added Classification = iota
	AlreadyPresent
)

func (c Classification) String() string {
	switch c {
	case Added:
		return "added"
	case AlreadyPresent:
		return "already-present"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

const (
	ReasonValueDiffers = "value differs"
	ReasonDuplicate    = "duplicate"
)

// Superseded records an active line that was commented out.
type Superseded struct {
	Key string
	// Line is the 1-based line number in the original document.
	Line     int
	Original string
	Reason   string
}

// MergeResult classifies each desired key. Every key appears in exactly one of
// Added or AlreadyPresent; Replaced is the subset of AlreadyPresent whose active
// line was commented out and followed by a line carrying the desired value.
type MergeResult struct {
	Added          []string
	AlreadyPresent []string
	Replaced       []string
	Superseded     []Superseded
}

// Classify returns the classification of key.
func (r MergeResult) Classify(key string) (Classification, bool) {
	for _, k := range r.Added {
		if k == key {
			return Added, true
		}
	}
	for _, k := range r.AlreadyPresent {
		if k == key {
			return AlreadyPresent, true
		}
	}
	return 0, false
}

// Changed reports whether the merge altered the document.
func (r MergeResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Superseded) > 0
}

type keyState struct {
	key      string
	value    string
	keep     int
	last     int
	occurred bool
}

// Merge reconciles desired against the current sysctl configuration text.
//
// Lines for keys outside desired are preserved byte-for-byte and in order. An
// active line already holding the desired value stays in place; every other active
// line for a desired key is commented out with a superseded annotation, never
// deleted, and when no line held the desired value a replacement follows the last
// superseded line. Keys with no active line are appended, sorted, under a
// timestamped header. Merging the output again with the same desired set classifies
// every key as AlreadyPresent and returns the text unchanged.
func Merge(current string, desired *ParameterSet, stamp Stamp) (string, MergeResult, error) {
	lines, err := SplitLines(current)
	if err != nil {
		return "", MergeResult{}, err
	}

	states := make(map[string]*keyState, desired.Len())
	order := make([]*keyState, 0, desired.Len())
	for _, p := range desired.Params() {
		st := &keyState{key: p.Key, value: p.Value, keep: -1, last: -1}
		states[p.Key] = st
		order = append(order, st)
	}

	for i, raw := range lines.Items {
		cl := ClassifyLine(raw)
		if cl.Kind != LineAssignment {
			continue
		}
		st, ok := states[cl.Key]
		if !ok {
			continue
		}
		st.occurred = true
		st.last = i
		if st.keep < 0 && sameValue(cl.Value, st.value) {
			st.keep = i
		}
	}

	var result MergeResult
	out := make([]string, 0, len(lines.Items)+desired.Len()+2)
	prefix := stamp.supersededPrefix()

	for i, raw := range lines.Items {
		cl := ClassifyLine(raw)
		st, ok := states[cl.Key]
		if cl.Kind != LineAssignment || !ok || i == st.keep {
			out = append(out, raw)
			continue
		}

		reason := ReasonValueDiffers
		if sameValue(cl.Value, st.value) {
			reason = ReasonDuplicate
		}
		out = append(out, prefix+raw)
		result.Superseded = append(result.Superseded, Superseded{
			Key:      st.key,
			Line:     i + 1,
			Original: raw,
			Reason:   reason,
		})

		if st.keep < 0 && i == st.last {
			out = append(out, lines.Generated(Param{Key: st.key, Value: st.value}.String()))
			result.Replaced = append(result.Replaced, st.key)
		}
	}

	var added []Param
	for _, st := range order {
		if st.occurred {
			result.AlreadyPresent = append(result.AlreadyPresent, st.key)
			continue
		}
		added = append(added, Param{Key: st.key, Value: st.value})
	}
	sort.SliceStable(added, func(i, j int) bool { return added[i].Key < added[j].Key })

	if len(added) > 0 {
		if n := len(out); n > 0 && ClassifyLine(out[n-1]).Kind != LineBlank {
			out = append(out, lines.Generated(""))
		}
		out = append(out, lines.Generated(stamp.Header()))
		for _, p := range added {
			out = append(out, lines.Generated(p.String()))
			result.Added = append(result.Added, p.Key)
		}
	}

	lines.Items = out
	return lines.Join(), result, nil
}
