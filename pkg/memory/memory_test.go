package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	createdAt := time.Date(2024, 5, 1, 10, 30, 0, 123456000, time.UTC)
	cursor := EncodeCursor(createdAt, "mem-42")

	ts, id, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.True(t, createdAt.Equal(ts))
	assert.Equal(t, "mem-42", id)
}

func TestDecodeCursorMalformed(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!!"},
		{"no separator", "bm9zZXBhcmF0b3I"},
		{"bad timestamp", "bm90YXRpbWV8aWQ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeCursor(tt.cursor)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			var v *ValidationError
			require.ErrorAs(t, err, &v)
			assert.Equal(t, "cursor", v.Field)
		})
	}
}

func TestCreateMemoryValidate(t *testing.T) {
	valid := CreateMemory{Content: "Rust is great"}
	assert.NoError(t, valid.Validate())

	empty := CreateMemory{Content: "   "}
	err := empty.Validate()
	require.Error(t, err)
	var v *ValidationError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "content", v.Field)
}

func TestUpdateMemoryEmpty(t *testing.T) {
	assert.True(t, (&UpdateMemory{}).Empty())

	content := "new"
	assert.False(t, (&UpdateMemory{Content: &content}).Empty())

	tags := []string{"a"}
	assert.False(t, (&UpdateMemory{Tags: &tags}).Empty())
}

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, IsValidation(NewValidation("f", "m")))
	assert.False(t, IsValidation(NewNotFound("x")))

	assert.True(t, IsNotFound(NewNotFound("x")))
	assert.False(t, IsNotFound(NewStorage("d", nil)))

	storageErr := NewStorage("insert failed", assert.AnError)
	assert.ErrorIs(t, storageErr, assert.AnError)
	assert.Contains(t, storageErr.Error(), "insert failed")
}

func TestDefaultSalienceState(t *testing.T) {
	st := DefaultSalienceState("m1")
	assert.Equal(t, "m1", st.MemoryID)
	assert.Equal(t, 1.0, st.Stability)
	assert.Equal(t, 5.0, st.Difficulty)
	assert.Equal(t, int64(0), st.ReinforcementCount)
	assert.Nil(t, st.LastReinforcedAt)
}
