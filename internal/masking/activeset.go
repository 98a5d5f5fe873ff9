package masking

import (
	"container/list"
	"errors"
)

// ActiveSet is the ordered, override-resolved set of bindings in effect.
// It is never mutated after construction and is safe for concurrent readers.
type ActiveSet struct {
	bindings []*Binding
}

// DefaultActiveSet returns every preset in registry order.
func DefaultActiveSet() *ActiveSet {
	set, _ := buildActiveSet(nil)
	return set
}

// BuildActiveSet starts from the preset defaults and merges options in order.
// The returned set is always usable; the error joins one *ConfigError per
// option that was skipped or degraded.
func BuildActiveSet(options []string) (*ActiveSet, error) {
	set, errs := buildActiveSet(options)
	return set, errors.Join(errs...)
}

func buildActiveSet(options []string) (*ActiveSet, []error) {
	m := newOrderedBindings()
	for _, p := range presets {
		m.put(p.mustBinding())
	}

	var errs []error
	for _, option := range options {
		b, err := ParseOption(option)
		if err != nil {
			errs = append(errs, err)
		}
		if b != nil {
			m.put(b)
		}
	}

	return &ActiveSet{bindings: m.values()}, errs
}

// NewActiveSet builds a set from explicit bindings, applying the same
// override-by-expression rule as BuildActiveSet.
func NewActiveSet(bindings ...*Binding) *ActiveSet {
	m := newOrderedBindings()
	for _, b := range bindings {
		if b != nil {
			m.put(b)
		}
	}
	return &ActiveSet{bindings: m.values()}
}

// Bindings returns a copy of the bindings in evaluation order.
func (s *ActiveSet) Bindings() []*Binding {
	if s == nil {
		return nil
	}
	out := make([]*Binding, len(s.bindings))
	copy(out, s.bindings)
	return out
}

// Len returns the number of bindings.
func (s *ActiveSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bindings)
}

// orderedBindings is an insertion-ordered map keyed by expression source.
// Re-inserting a key moves it to the end.
type orderedBindings struct {
	order *list.List
	index map[string]*list.Element
}

func newOrderedBindings() *orderedBindings {
	return &orderedBindings{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

func (m *orderedBindings) put(b *Binding) {
	if e, ok := m.index[b.Source()]; ok {
		m.order.Remove(e)
	}
	m.index[b.Source()] = m.order.PushBack(b)
}

func (m *orderedBindings) values() []*Binding {
	out := make([]*Binding, 0, m.order.Len())
	for e := m.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Binding))
	}
	return out
}
