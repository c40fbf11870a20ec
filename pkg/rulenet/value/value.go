// Package value implements the engine's tagged-union Value type: the
// dynamically typed scalar that flows through facts, bindings, and
// expressions.
//
// Value mirrors String/Equal from the teacher engine's Term interface (it has
// no Clone, since every variant is immutable) and adds Kind and Compare, since the rule language
// needs ordering comparisons (>, <=, ...) that a pure unification substrate
// does not.
package value

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ruleforge/rulenet/internal/rerr"
)

// Kind tags the variant of a Value.
type Kind int

const (
	Int Kind = iota
	Float
	Bool
	String
	Time
	List
	Null
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Time:
		return "timestamp"
	case List:
		return "list"
	case Null:
		return "null"
	default:
		return "unknown"
	}
}

// Value is any member of the tagged union. All variants are immutable.
type Value interface {
	// Kind reports the variant tag.
	Kind() Kind
	// String renders a human-readable form, used in error messages and trace output.
	String() string
	// Equal reports structural equality. Int and Float are equal when their
	// numeric values are; otherwise values of different Kind are never equal,
	// and Null is equal only to Null.
	Equal(other Value) bool
	// Compare orders two values of the same Kind, or an Int with a Float.
	// Other mixed-Kind comparisons, and comparisons involving Bool/List/Null,
	// fail with a Type error.
	Compare(other Value) (int, error)
}

// --- Int ---

type IntValue int64

func NewInt(v int64) IntValue { return IntValue(v) }

func (v IntValue) Kind() Kind      { return Int }
func (v IntValue) String() string  { return fmt.Sprintf("%d", int64(v)) }
func (v IntValue) Equal(o Value) bool {
	if other, ok := o.(IntValue); ok {
		return v == other
	}
	if other, ok := o.(FloatValue); ok {
		return float64(v) == float64(other)
	}
	return false
}
func (v IntValue) Compare(o Value) (int, error) {
	switch other := o.(type) {
	case IntValue:
		return cmpInt64(int64(v), int64(other)), nil
	case FloatValue:
		return cmpFloat64(float64(v), float64(other)), nil
	default:
		return 0, typeErr(v, o)
	}
}

// --- Float ---

type FloatValue float64

func NewFloat(v float64) FloatValue { return FloatValue(v) }

func (v FloatValue) Kind() Kind     { return Float }
func (v FloatValue) String() string { return fmt.Sprintf("%g", float64(v)) }
func (v FloatValue) Equal(o Value) bool {
	switch other := o.(type) {
	case FloatValue:
		return v == other
	case IntValue:
		return float64(v) == float64(other)
	}
	return false
}
func (v FloatValue) Compare(o Value) (int, error) {
	switch other := o.(type) {
	case FloatValue:
		return cmpFloat64(float64(v), float64(other)), nil
	case IntValue:
		return cmpFloat64(float64(v), float64(other)), nil
	default:
		return 0, typeErr(v, o)
	}
}

// --- Bool ---

type BoolValue bool

func NewBool(v bool) BoolValue { return BoolValue(v) }

func (v BoolValue) Kind() Kind     { return Bool }
func (v BoolValue) String() string { return fmt.Sprintf("%t", bool(v)) }
func (v BoolValue) Equal(o Value) bool {
	other, ok := o.(BoolValue)
	return ok && v == other
}
func (v BoolValue) Compare(o Value) (int, error) {
	return 0, typeErr(v, o)
}

// --- String ---

type StringValue string

func NewString(v string) StringValue { return StringValue(v) }

func (v StringValue) Kind() Kind     { return String }
func (v StringValue) String() string { return string(v) }
func (v StringValue) Equal(o Value) bool {
	other, ok := o.(StringValue)
	return ok && v == other
}
func (v StringValue) Compare(o Value) (int, error) {
	other, ok := o.(StringValue)
	if !ok {
		return 0, typeErr(v, o)
	}
	return strings.Compare(string(v), string(other)), nil
}

// --- Time (milliseconds since epoch) ---

type TimeValue int64

func NewTime(millis int64) TimeValue { return TimeValue(millis) }

func (v TimeValue) Kind() Kind     { return Time }
func (v TimeValue) String() string { return fmt.Sprintf("ts(%d)", int64(v)) }
func (v TimeValue) Equal(o Value) bool {
	other, ok := o.(TimeValue)
	return ok && v == other
}
func (v TimeValue) Compare(o Value) (int, error) {
	other, ok := o.(TimeValue)
	if !ok {
		return 0, typeErr(v, o)
	}
	return cmpInt64(int64(v), int64(other)), nil
}

// --- List ---

type ListValue []Value

func NewList(items ...Value) ListValue { return ListValue(items) }

func (v ListValue) Kind() Kind { return List }
func (v ListValue) String() string {
	parts := make([]string, len(v))
	for i, item := range v {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (v ListValue) Equal(o Value) bool {
	other, ok := o.(ListValue)
	if !ok || len(v) != len(other) {
		return false
	}
	for i := range v {
		if !v[i].Equal(other[i]) {
			return false
		}
	}
	return true
}
func (v ListValue) Compare(o Value) (int, error) {
	return 0, typeErr(v, o)
}

// --- Null ---

type NullValue struct{}

// NullVal is the singleton null value.
var NullVal = NullValue{}

func (v NullValue) Kind() Kind     { return Null }
func (v NullValue) String() string { return "null" }
func (v NullValue) Equal(o Value) bool {
	_, ok := o.(NullValue)
	return ok
}
func (v NullValue) Compare(o Value) (int, error) {
	return 0, typeErr(v, o)
}

func typeErr(a, b Value) error {
	return rerr.New(rerr.TypeErr, "cannot compare %s with %s", a.Kind(), b.Kind())
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// SortValues sorts a slice of same-kind comparable values ascending. Values
// that fail to compare are left in place.
func SortValues(vs []Value) {
	sort.SliceStable(vs, func(i, j int) bool {
		c, err := vs[i].Compare(vs[j])
		return err == nil && c < 0
	})
}
