package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

func TestJSONArray(t *testing.T) {
	assert.Equal(t, `[]`, jsonArray(nil))
	assert.Equal(t, `[]`, jsonArray([]string{}))
	assert.Equal(t, `["lang","systems"]`, jsonArray([]string{"lang", "systems"}))
	assert.Equal(t, `["with \"quotes\""]`, jsonArray([]string{`with "quotes"`}))
}

func TestFilterClausesEmpty(t *testing.T) {
	conds, args, idx := filterClauses(memory.ListFilter{}, 1)
	assert.Empty(t, conds)
	assert.Empty(t, args)
	assert.Equal(t, 1, idx)
}

func TestFilterClausesNumbering(t *testing.T) {
	typeHint := "fact"
	source := "chat"
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	conds, args, idx := filterClauses(memory.ListFilter{
		TypeHint:     &typeHint,
		Source:       &source,
		CreatedAfter: &after,
	}, 1)

	require.Len(t, conds, 3)
	assert.Equal(t, "type_hint = $1", conds[0])
	assert.Equal(t, "source = $2", conds[1])
	assert.Equal(t, "created_at > $3", conds[2])
	assert.Equal(t, []any{typeHint, source, after}, args)
	assert.Equal(t, 4, idx)
}

func TestFilterClausesStartIndex(t *testing.T) {
	source := "chat"
	conds, _, idx := filterClauses(memory.ListFilter{Source: &source}, 5)
	require.Len(t, conds, 1)
	assert.Equal(t, "source = $5", conds[0])
	assert.Equal(t, 6, idx)
}

func TestSearchFilterActive(t *testing.T) {
	var nilFilter *SearchFilter
	assert.False(t, nilFilter.active())
	assert.False(t, (&SearchFilter{}).active())

	source := "chat"
	assert.True(t, (&SearchFilter{Source: &source}).active())

	now := time.Now()
	assert.True(t, (&SearchFilter{After: &now}).active())
}
