package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestDefaults(t *testing.T) {
	req, err := ParseRequest([]byte(`{"searchWords":["math","exam"],"searchId":"s1"}`))
	require.NoError(t, err)

	assert.Equal(t, Words{"math", "exam"}, req.SearchWords)
	assert.Equal(t, "", req.UserID)
	assert.Equal(t, 0, req.Page)
	assert.Equal(t, 0, req.Limit)
	assert.Equal(t, []string{}, req.GroupIDs)
	assert.Equal(t, []string{}, req.ColumnsHeader)
	assert.Equal(t, []string{}, req.AppFilters)
	assert.Equal(t, "fr", req.Locale)
}

func TestParseRequestWordsAsString(t *testing.T) {
	req, err := ParseRequest([]byte(`{"searchWords":"  math  exam ","locale":"en","page":2,"limit":10}`))
	require.NoError(t, err)
	assert.Equal(t, Words{"math", "exam"}, req.SearchWords)
	assert.Equal(t, "en", req.Locale)
	assert.Equal(t, 20, req.Query().Offset())
}

func TestParseRequestRejectsGarbage(t *testing.T) {
	_, err := ParseRequest([]byte(`{"searchWords":12}`))
	assert.Error(t, err)
	_, err = ParseRequest([]byte(`not json`))
	assert.Error(t, err)
}

func TestQueryAllows(t *testing.T) {
	assert.True(t, Query{}.Allows("workspace"))
	q := Query{AppFilters: []string{"Workspace"}}
	assert.True(t, q.Allows("workspace"))
	assert.False(t, q.Allows("blog"))
}

func TestResourceRow(t *testing.T) {
	mod := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := Resource{Title: "Notes", Description: "d", Modified: mod, OwnerDisplayName: "Ann", OwnerID: "u1", URL: "/x"}

	assert.Equal(t, map[string]any{
		"title": "Notes", "description": "d", "modified": mod,
		"ownerDisplayName": "Ann", "ownerId": "u1", "url": "/x",
	}, r.Row(nil))

	assert.Equal(t, map[string]any{"titre": "Notes", "desc": "d"}, r.Row([]string{"titre", "desc"}))
	assert.Len(t, r.Row([]string{"a", "b", "c", "d", "e", "f", "g"}), 6)
}
