package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualityAcrossNumericVariants(t *testing.T) {
	require.True(t, NewInt(5).Equal(NewFloat(5.0)))
	require.True(t, NewFloat(5.0).Equal(NewInt(5)))
	require.False(t, NewInt(5).Equal(NewString("5")))
}

func TestCompareMixedVariantFails(t *testing.T) {
	_, err := NewString("a").Compare(NewInt(1))
	require.Error(t, err)
}

func TestCompareOrdering(t *testing.T) {
	c, err := NewInt(1).Compare(NewInt(2))
	require.NoError(t, err)
	require.Equal(t, -1, c)

	c, err = NewString("b").Compare(NewString("a"))
	require.NoError(t, err)
	require.Equal(t, 1, c)
}

func TestArithPromotion(t *testing.T) {
	v, err := Add(NewInt(2), NewFloat(3.5))
	require.NoError(t, err)
	require.Equal(t, FloatValue(5.5), v)

	v, err = Add(NewInt(2), NewInt(3))
	require.NoError(t, err)
	require.Equal(t, IntValue(5), v)
}

func TestDivisionByZero(t *testing.T) {
	_, err := Div(NewInt(1), NewInt(0))
	require.Error(t, err)
}

func TestStringConcat(t *testing.T) {
	v, err := Add(NewString("foo"), NewString("bar"))
	require.NoError(t, err)
	require.Equal(t, StringValue("foobar"), v)
}

func TestListEquality(t *testing.T) {
	a := NewList(NewInt(1), NewInt(2))
	b := NewList(NewInt(1), NewInt(2))
	c := NewList(NewInt(1), NewInt(3))
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestSortValues(t *testing.T) {
	vs := []Value{NewInt(3), NewInt(1), NewInt(2)}
	SortValues(vs)
	require.Equal(t, []Value{NewInt(1), NewInt(2), NewInt(3)}, vs)
}
