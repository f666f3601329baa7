package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestValidator(t *testing.T) {
	empty := "  "
	v := NewValidator().
		Field("name", "", Required).
		Field("ptr", &empty, Required).
		Field("long", "abcdef", MaxLength(5)).
		Field("kind", "video", OneOf("text", "file")).
		Field("bound", 11, IntRange(0, 10)).
		Field("bound2", "x", IntRange(0, 10)).
		Check(true, "ok", nil, "never")

	require.True(t, v.HasErrors())
	fields := make([]string, 0, len(v.Errors()))
	for _, e := range v.Errors() {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"name", "ptr", "long", "kind", "bound", "bound2"}, fields)
	assert.ErrorIs(t, v.Error(), ErrValidation)
	assert.Contains(t, v.ErrorMessage(), "must be one of text, file")
}

func TestValidator_Passes(t *testing.T) {
	v := NewValidator().
		Field("name", "scan.png", Required, MaxLength(255)).
		Field("kind", "text", OneOf("text", "file")).
		Field("bound", 10, IntRange(0, 10))
	assert.False(t, v.HasErrors())
	assert.NoError(t, v.Error())
	assert.Empty(t, v.ErrorMessage())
	assert.NoError(t, ValidateAndReturnError(v))
}

func TestValidateAndReturnError(t *testing.T) {
	v := NewValidator().Field("stepBound", -1, IntRange(0, 100))
	err := ValidateAndReturnError(v)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestMaxLength_CountsRunes(t *testing.T) {
	v := NewValidator().Field("name", "₦₦₦", MaxLength(3))
	assert.False(t, v.HasErrors())
}
