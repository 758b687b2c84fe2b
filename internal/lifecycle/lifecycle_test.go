package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgu123/entcore/internal/async"
	"github.com/dgu123/entcore/internal/bus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	mu       sync.Mutex
	exported bool
	users    []User
	groups   []Group
	panics   bool
}

func (f *fakeHandler) ExportResources(_ context.Context, req ExportRequest) *async.Future[bool] {
	if f.panics {
		panic("boom")
	}
	return async.Resolved(f.exported && req.UserID != "")
}

func (f *fakeHandler) DeleteGroups(_ context.Context, groups []Group) *async.Future[Report] {
	f.mu.Lock()
	f.groups = append(f.groups, groups...)
	f.mu.Unlock()
	return async.Resolved(Report{Operation: "deleteGroups", Succeeded: len(groups)})
}

func (f *fakeHandler) DeleteUsers(_ context.Context, users []User) *async.Future[Report] {
	return Run(zerolog.Nop(), "deleteUsers", Report{Failed: 1}, func() Report {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.users = append(f.users, users...)
		return Report{Operation: "deleteUsers", Succeeded: len(users)}
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Workspace", &fakeHandler{}))
	require.NoError(t, r.Register("conversation", &fakeHandler{}))
	assert.ErrorIs(t, r.Register(" workspace ", &fakeHandler{}), ErrDuplicateHandler)
	assert.Error(t, r.Register("", &fakeHandler{}))
	assert.Error(t, r.Register("timeline", nil))

	assert.Equal(t, []string{"conversation", "workspace"}, r.Names())
	_, ok := r.Lookup("WORKSPACE")
	assert.True(t, ok)
}

func TestDispatcherIsolatesHandlers(t *testing.T) {
	r := NewRegistry()
	good := &fakeHandler{exported: true}
	require.NoError(t, r.Register("good", good))
	require.NoError(t, r.Register("broken", &fakeHandler{panics: true}))
	d := NewDispatcher(r, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	exports, err := WaitAll(ctx, d.ExportResources(ctx, ExportRequest{UserID: "u1"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"good": true, "broken": false}, exports)

	reports, err := WaitAll(ctx, d.Dispatch(ctx, UserDeleted{Users: []User{{ID: "u1"}, {ID: "u2"}}}).Reports)
	require.NoError(t, err)
	assert.Equal(t, 2, reports["good"].Succeeded)
	assert.True(t, reports["good"].OK())
}

func TestRunRecoversPanics(t *testing.T) {
	f := Run(zerolog.Nop(), "test", Report{Failed: 1}, func() Report { panic("nope") })
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, v.OK())
}

func TestBusAPI(t *testing.T) {
	r := NewRegistry()
	h := &fakeHandler{exported: true}
	require.NoError(t, r.Register("workspace", h))
	api := NewBusAPI(NewDispatcher(r, zerolog.Nop()), time.Second, zerolog.Nop())

	b := bus.NewLocal()
	ctx := context.Background()
	_, err := api.Subscribe(ctx, b)
	require.NoError(t, err)

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	raw, err := b.Request(reqCtx, Address, map[string]any{
		"action": ActionExport, "exportId": "e1", "userId": "u1", "path": "/tmp/x", "locale": "fr",
	})
	require.NoError(t, err)
	var reply struct {
		Status  string          `json:"status"`
		Modules map[string]bool `json:"modules"`
	}
	require.NoError(t, json.Unmarshal(raw, &reply))
	assert.Equal(t, "ok", reply.Status)
	assert.True(t, reply.Modules["workspace"])

	raw, err = b.Request(reqCtx, Address, map[string]any{
		"action": ActionDeleteGroups, "old-groups": []map[string]any{{"group": "g1", "groupName": "Group One"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))
	assert.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.groups) == 1 && h.groups[0].ID == "g1"
	}, time.Second, 10*time.Millisecond)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBusAPILogsCascadeTotal(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("workspace", &fakeHandler{}))
	require.NoError(t, r.Register("conversation", &fakeHandler{}))
	out := &lockedBuffer{}
	api := NewBusAPI(NewDispatcher(r, zerolog.Nop()), time.Second, zerolog.New(out))

	b := bus.NewLocal()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := api.Subscribe(ctx, b)
	require.NoError(t, err)

	raw, err := b.Request(ctx, Address, map[string]any{
		"action": ActionDeleteUsers, "old-users": []map[string]any{{"id": "u1"}, {"id": "u2"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "lifecycle cascade complete")
	}, time.Second, 10*time.Millisecond)
	var total struct {
		Message   string `json:"message"`
		Modules   int    `json:"modules"`
		Succeeded int    `json:"succeeded"`
		Failed    int    `json:"failed"`
	}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		require.NoError(t, json.Unmarshal([]byte(line), &total))
		if total.Message == "lifecycle cascade complete" {
			break
		}
	}
	assert.Equal(t, "lifecycle cascade complete", total.Message)
	assert.Equal(t, 2, total.Modules)
	assert.Equal(t, 4, total.Succeeded)
	assert.Zero(t, total.Failed)
}
