package value

import "github.com/ruleforge/rulenet/internal/rerr"

// Add implements the '+' operator. Two ints yield an int; any float operand
// promotes the result to float; strings concatenate; other combinations fail.
func Add(a, b Value) (Value, error) {
	if as, ok := a.(StringValue); ok {
		if bs, ok := b.(StringValue); ok {
			return StringValue(string(as) + string(bs)), nil
		}
	}
	return numericOp(a, b, func(x, y int64) int64 { return x + y }, func(x, y float64) float64 { return x + y })
}

func Sub(a, b Value) (Value, error) {
	return numericOp(a, b, func(x, y int64) int64 { return x - y }, func(x, y float64) float64 { return x - y })
}

func Mul(a, b Value) (Value, error) {
	return numericOp(a, b, func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y })
}

func Div(a, b Value) (Value, error) {
	if isZero(b) {
		return nil, rerr.New(rerr.Arithmetic, "division by zero")
	}
	return numericOp(a, b, func(x, y int64) int64 { return x / y }, func(x, y float64) float64 { return x / y })
}

func isZero(v Value) bool {
	switch n := v.(type) {
	case IntValue:
		return n == 0
	case FloatValue:
		return n == 0
	}
	return false
}

func numericOp(a, b Value, intOp func(int64, int64) int64, floatOp func(float64, float64) float64) (Value, error) {
	ai, aIsInt := a.(IntValue)
	bi, bIsInt := b.(IntValue)
	if aIsInt && bIsInt {
		return IntValue(intOp(int64(ai), int64(bi))), nil
	}
	af, aOk := toFloat(a)
	bf, bOk := toFloat(b)
	if !aOk || !bOk {
		return nil, rerr.New(rerr.TypeErr, "arithmetic operator requires numeric operands, got %s and %s", a.Kind(), b.Kind())
	}
	return FloatValue(floatOp(af, bf)), nil
}

func toFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case IntValue:
		return float64(n), true
	case FloatValue:
		return float64(n), true
	default:
		return 0, false
	}
}

// Neg implements unary minus.
func Neg(a Value) (Value, error) {
	switch n := a.(type) {
	case IntValue:
		return IntValue(-n), nil
	case FloatValue:
		return FloatValue(-n), nil
	default:
		return nil, rerr.New(rerr.TypeErr, "unary '-' requires a numeric operand, got %s", a.Kind())
	}
}

// Not implements unary logical negation.
func Not(a Value) (Value, error) {
	b, ok := a.(BoolValue)
	if !ok {
		return nil, rerr.New(rerr.TypeErr, "unary 'not' requires a bool operand, got %s", a.Kind())
	}
	return BoolValue(!b), nil
}

// Truthy reports whether a Value counts as true in a boolean context
// (test conditions, && / ||). Only BoolValue is truthy/falsy; everything
// else is a Type error.
func Truthy(v Value) (bool, error) {
	b, ok := v.(BoolValue)
	if !ok {
		return false, rerr.New(rerr.TypeErr, "expected bool, got %s", v.Kind())
	}
	return bool(b), nil
}
