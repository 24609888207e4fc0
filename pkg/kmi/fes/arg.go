package fes

import (
	"fmt"

	"github.com/lox/openkmi/pkg/kmi"
)

// ArgKind tells which variant an Arg holds.
type ArgKind int

const (
	ArgNone ArgKind = iota
	ArgSingle
	ArgList
)

func (k ArgKind) String() string {
	switch k {
	case ArgNone:
		return "none"
	case ArgSingle:
		return "single"
	case ArgList:
		return "list"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// Arg is an optional caller-supplied filter: nothing, one predicate, or a
// list of predicates. The zero value is None.
type Arg struct {
	kind   ArgKind
	single Filter
	list   []Filter
}

// None is the empty filter argument.
func None() Arg {
	return Arg{}
}

// Single wraps one predicate.
func Single(f Filter) Arg {
	return Arg{kind: ArgSingle, single: f}
}

// List wraps several predicates, combined conjunctively by the client.
func List(filters ...Filter) Arg {
	return Arg{kind: ArgList, list: filters}
}

// Kind returns the variant held by a.
func (a Arg) Kind() ArgKind {
	return a.kind
}

// Filters validates a and returns its predicates in order. Every element
// must be one of the predicate types of this package with a property name.
func (a Arg) Filters() ([]Filter, error) {
	switch a.kind {
	case ArgNone:
		return nil, nil
	case ArgSingle:
		if err := Validate(a.single); err != nil {
			return nil, &kmi.ValidationError{
				Field:   "filter",
				Message: fmt.Sprintf("filter should be (a list of) valid predicate(s): %s", err),
			}
		}
		return []Filter{a.single}, nil
	case ArgList:
		out := make([]Filter, 0, len(a.list))
		for i, f := range a.list {
			if err := Validate(f); err != nil {
				return nil, &kmi.ValidationError{
					Field:   fmt.Sprintf("filter[%d]", i),
					Message: fmt.Sprintf("all elements of the filter list should be valid predicates: %s", err),
				}
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, &kmi.ValidationError{Field: "filter", Message: fmt.Sprintf("unknown filter argument kind %s", a.kind)}
	}
}

// Validate reports why f is not a usable predicate, or nil.
func Validate(f Filter) error {
	switch v := f.(type) {
	case nil:
		return fmt.Errorf("nil predicate")
	case PropertyIsEqualTo:
		return checkProperty(v.PropertyName)
	case PropertyIsGreaterThanOrEqualTo:
		return checkProperty(v.PropertyName)
	case PropertyIsLessThan:
		return checkProperty(v.PropertyName)
	case And:
		if len(v.Filters) < 2 {
			return fmt.Errorf("And needs at least two predicates, got %d", len(v.Filters))
		}
		for i, child := range v.Filters {
			if err := Validate(child); err != nil {
				return fmt.Errorf("And[%d]: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%T is not a recognised predicate type", f)
	}
}

func checkProperty(name string) error {
	if name == "" {
		return fmt.Errorf("predicate has no property name")
	}
	return nil
}
