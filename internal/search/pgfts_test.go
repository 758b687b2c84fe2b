package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgFTSSearch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mod := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, application, title, description, owner_id, owner_display_name, modified, url\s+FROM search_resources`).
		WithArgs("math exam", "u1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "application", "title", "description", "owner_id", "owner_display_name", "modified", "url"}).
			AddRow("r1", "workspace", "Math exam", "", "u1", "Ann", mod, "/workspace/document/r1"))

	p := NewPgFTS(mock)
	rows, err := p.Search(context.Background(), Query{
		UserID:      "u1",
		GroupIDs:    []string{"g1"},
		AppFilters:  []string{"workspace"},
		SearchWords: []string{"math", "exam"},
		Limit:       5,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Math exam", rows[0]["title"])
	assert.Equal(t, "/workspace/document/r1", rows[0]["url"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgFTSSearchEmptyWords(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows, err := NewPgFTS(mock).Search(context.Background(), Query{SearchWords: []string{"  "}})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgFTSSearchError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM search_resources`).WillReturnError(errors.New("connection reset"))
	_, err = NewPgFTS(mock).Search(context.Background(), Query{SearchWords: []string{"x"}})
	assert.ErrorContains(t, err, "pgfts query")
}

func TestPgFTSDeleteOwnedBy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`DELETE FROM search_resources`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("r1").AddRow("r2"))

	ids, err := NewPgFTS(mock).DeleteOwnedBy(context.Background(), []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogueFallsBackToPg(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM search_resources`).
		WithArgs("notes", "u1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "application", "title", "description", "owner_id", "owner_display_name", "modified", "url"}))

	c := NewCatalogue("catalogue", nil, NewPgFTS(mock), zerolog.Nop())
	rows, err := c.SearchResource(context.Background(), Query{UserID: "u1", SearchWords: []string{"notes"}})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, "catalogue", c.Name())
	assert.NoError(t, mock.ExpectationsWereMet())
}
