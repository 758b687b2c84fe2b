package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dgu123/entcore/internal/async"
	"github.com/dgu123/entcore/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUsers(t *testing.T) {
	users := parseUsers([]string{"u1:Ann Lee", " u2 ", ":nobody", "u3:"})
	assert.Equal(t, []lifecycle.User{
		{ID: "u1", DisplayName: "Ann Lee"},
		{ID: "u2"},
		{ID: "u3"},
	}, users)
}

func TestWaitReports(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var out bytes.Buffer
	err := waitReports(ctx, &out, map[string]*async.Future[lifecycle.Report]{
		"workspace": async.Resolved(lifecycle.Report{Module: "workspace", Succeeded: 2}),
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"workspace"`)

	out.Reset()
	err = waitReports(ctx, &out, map[string]*async.Future[lifecycle.Report]{
		"conversation": async.Resolved(lifecycle.Report{Module: "conversation", Failed: 1}),
	})
	assert.ErrorContains(t, err, "conversation")
}

func TestCommandsRegistered(t *testing.T) {
	root := newRootCmd()
	for _, c := range []string{"serve", "types", "purge-users", "delete-groups", "export", "search", "reindex"} {
		found, _, err := root.Find([]string{c})
		require.NoError(t, err, c)
		assert.Equal(t, c, found.Name())
	}
}
