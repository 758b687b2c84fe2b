package workspace

import (
	"context"
	"testing"

	"github.com/dgu123/entcore/internal/docstore"
	"github.com/dgu123/entcore/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestSearchProvider(t *testing.T) {
	docs := docstore.NewMemory()
	docs.Insert(DocumentsCollection,
		bson.M{"_id": "d1", "owner": "u1", "ownerName": "Ann", "name": "Math exam.pdf", "file": "b1", "modified": "2024-01-02 10:00.00.000"},
		bson.M{"_id": "d2", "owner": "u2", "name": "math notes", "file": "b2", "modified": "2024-01-03 10:00.00.000",
			"shared": bson.A{bson.M{"groupId": "g1"}}},
		bson.M{"_id": "d3", "owner": "u2", "name": "math secret", "file": "b3"},
		bson.M{"_id": "d4", "owner": "u1", "name": "math folder"},
	)
	p := NewSearchProvider(docs)

	rows, err := p.SearchResource(context.Background(), search.Query{
		UserID:        "u1",
		GroupIDs:      []string{"g1"},
		SearchWords:   []string{"MATH"},
		ColumnsHeader: []string{"name", "summary", "date", "author", "authorId", "link"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "math notes", rows[0]["name"])
	assert.Equal(t, "Math exam.pdf", rows[1]["name"])
	assert.Equal(t, "Ann", rows[1]["author"])
	assert.Equal(t, "/workspace/document/d1", rows[1]["link"])
	assert.Equal(t, 2024, rows[1]["date"].(interface{ Year() int }).Year())
}

func TestSearchProviderFilters(t *testing.T) {
	docs := docstore.NewMemory()
	docs.Insert(DocumentsCollection, bson.M{"_id": "d1", "owner": "u1", "name": "exam", "file": "b1"})
	p := NewSearchProvider(docs)

	rows, err := p.SearchResource(context.Background(), search.Query{UserID: "u1", SearchWords: []string{"exam"}, AppFilters: []string{"blog"}})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = p.SearchResource(context.Background(), search.Query{UserID: "u1", SearchWords: []string{"exam", "final"}})
	require.NoError(t, err)
	assert.Empty(t, rows)

	docs.FailOn("find", DocumentsCollection, "down")
	_, err = p.SearchResource(context.Background(), search.Query{UserID: "u1", SearchWords: []string{"exam"}})
	assert.Error(t, err)
}
