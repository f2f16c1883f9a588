package sysctlconf

import "fmt"

// Param is a single kernel parameter assignment.
type Param struct {
	Key   string
	Value string
}

func (p Param) String() string {
	return fmt.Sprintf("%s = %s", p.Key, p.Value)
}

// ParameterSet is an ordered mapping of parameter keys to values. Keys are
// stored in normalized form, so "net/core/rmem_max" and "net.core.rmem_max"
// name the same entry. Values are opaque; the merger only compares them.
type ParameterSet struct {
	params []Param
	index  map[string]int
}

// NewParameterSet builds a set from key/value pairs in the given order.
func NewParameterSet(params ...Param) *ParameterSet {
	ps := &ParameterSet{index: make(map[string]int, len(params))}
	for _, p := range params {
		ps.Set(p.Key, p.Value)
	}
	return ps
}

// Set adds key or replaces its value, keeping the original insertion position.
func (ps *ParameterSet) Set(key, value string) {
	key = NormalizeKey(key)
	if ps.index == nil {
		ps.index = make(map[string]int)
	}
	if i, ok := ps.index[key]; ok {
		ps.params[i].Value = value
		return
	}
	ps.index[key] = len(ps.params)
	ps.params = append(ps.params, Param{Key: key, Value: value})
}

// Delete removes key from the set if present.
func (ps *ParameterSet) Delete(key string) {
	key = NormalizeKey(key)
	i, ok := ps.index[key]
	if !ok {
		return
	}
	ps.params = append(ps.params[:i], ps.params[i+1:]...)
	delete(ps.index, key)
	for j := i; j < len(ps.params); j++ {
		ps.index[ps.params[j].Key] = j
	}
}

// Get returns the value stored for key.
func (ps *ParameterSet) Get(key string) (string, bool) {
	if ps == nil {
		return "", false
	}
	i, ok := ps.index[NormalizeKey(key)]
	if !ok {
		return "", false
	}
	return ps.params[i].Value, true
}

// Len reports the number of parameters.
func (ps *ParameterSet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.params)
}

// Keys returns the keys in insertion order.
func (ps *ParameterSet) Keys() []string {
	if ps == nil {
		return nil
	}
	keys := make([]string, len(ps.params))
	for i, p := range ps.params {
		keys[i] = p.Key
	}
	return keys
}

// Params returns a copy of the parameters in insertion order.
func (ps *ParameterSet) Params() []Param {
	if ps == nil {
		return nil
	}
	out := make([]Param, len(ps.params))
	copy(out, ps.params)
	return out
}
