package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchKeepsOrder(t *testing.T) {
	b := NewBatch().
		Add("MATCH (a) RETURN a", nil).
		Add("MATCH (b) RETURN b", map[string]any{"id": "x"})

	st := b.Statements()
	require.Len(t, st, 2)
	assert.Equal(t, "MATCH (a) RETURN a", st[0].Query)
	assert.NotNil(t, st[0].Params)
	assert.Equal(t, "x", st[1].Params["id"])

	st[0].Query = "changed"
	assert.Equal(t, "MATCH (a) RETURN a", b.Statements()[0].Query)
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	r := &Recorder{}

	_, err := r.ExecuteTransaction(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	sum, err := r.ExecuteTransaction(ctx, NewBatch().Add("RETURN 1", nil).Statements())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Statements)

	r.Err = errors.New("unavailable")
	_, err = r.ExecuteTransaction(ctx, NewBatch().Add("RETURN 2", nil).Statements())
	assert.EqualError(t, err, "unavailable")
	assert.Len(t, r.Batches(), 2)
}
