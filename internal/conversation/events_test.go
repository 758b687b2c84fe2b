package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgu123/entcore/internal/graph"
	"github.com/dgu123/entcore/internal/lifecycle"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)


func TestDeleteGroupsSingleTransaction(t *testing.T) {
	rec := &graph.Recorder{}
	events := NewRepositoryEvents(rec, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	report, err := events.DeleteGroups(ctx, []lifecycle.Group{
		{ID: "g1", DisplayName: "Group One", Users: []string{"u1"}},
		{ID: "g2", DisplayName: "Group Two"},
	}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)

	batches := rec.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 6)
	assert.Equal(t, freezeFromName, batches[0][0].Query)
	assert.Equal(t, freezeToName, batches[0][1].Query)
	assert.Equal(t, freezeCcName, batches[0][2].Query)
	assert.Equal(t, map[string]any{"id": "g2", "displayName": "Group Two"}, batches[0][3].Params)
	assert.NotContains(t, batches[0][0].Params, "users")
}

func TestDeleteGroupsAppendsAtomically(t *testing.T) {
	for _, q := range []string{freezeToName, freezeCcName} {
		assert.Contains(t, q, "coalesce(")
		assert.Contains(t, q, "+ $displayName")
	}
}

func TestDeleteUsersOrder(t *testing.T) {
	rec := &graph.Recorder{}
	events := NewRepositoryEvents(rec, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	report, err := events.DeleteUsers(ctx, []lifecycle.User{{ID: "u1", DisplayName: "Ann"}, {ID: "u2", DisplayName: "Bob"}}).Wait(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())

	batch := rec.Batches()[0]
	require.Len(t, batch, 8)
	assert.Equal(t, deleteContainers, batch[0].Query)
	assert.Equal(t, []string{"u1", "u2"}, batch[0].Params["userIds"])
	assert.Equal(t, deleteOrphanMessages, batch[1].Query)
	assert.Equal(t, "Bob", batch[5].Params["displayName"])
}

func TestDeleteUsersFailureIsReported(t *testing.T) {
	rec := &graph.Recorder{Err: errors.New("neo4j down")}
	events := NewRepositoryEvents(rec, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	report, err := events.DeleteUsers(ctx, []lifecycle.User{{ID: "u1"}}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
}

func TestNoOps(t *testing.T) {
	rec := &graph.Recorder{}
	events := NewRepositoryEvents(rec, zerolog.Nop())
	ctx := context.Background()

	ok, err := events.ExportResources(ctx, lifecycle.ExportRequest{UserID: "u1"}).Wait(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	report, err := events.DeleteUsers(ctx, nil).Wait(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	report, err = events.DeleteGroups(ctx, []lifecycle.Group{{ID: ""}}).Wait(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Empty(t, rec.Batches())
}
