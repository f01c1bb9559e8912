package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_Truthy(t *testing.T) {
	assert.True(t, NumberVal(0).Truthy(), "0 is truthy in Vortex")
	assert.True(t, StringVal("").Truthy(), "empty string is truthy in Vortex")
	assert.False(t, NoneVal().Truthy())
	assert.False(t, BooleanVal(false).Truthy())
	assert.True(t, BooleanVal(true).Truthy())
}

func TestValue_EqualsStructuralForLists(t *testing.T) {
	a := ListVal([]Value{NumberVal(1), NumberVal(2)})
	b := ListVal([]Value{NumberVal(1), NumberVal(2)})
	assert.True(t, a.Equals(b))

	c := ListVal([]Value{NumberVal(1), NumberVal(3)})
	assert.False(t, a.Equals(c))
}

func TestValue_EqualsByIdentityForObjects(t *testing.T) {
	a := ObjectVal()
	b := ObjectVal()
	assert.False(t, a.Equals(b), "two distinct objects with no fields are still not equal")
	assert.True(t, a.Equals(a))
}

func TestValue_DistinctIDsPerConstruction(t *testing.T) {
	a := NumberVal(1)
	b := NumberVal(1)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestErrorToValue_DefaultsSyntaxKind(t *testing.T) {
	err := NewError("boom", 1, 1)
	v := err.ToValue()
	assert.True(t, v.IsError())
	assert.Equal(t, SyntaxErrorKind, v.Err.Kind)
}
