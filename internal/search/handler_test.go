package search

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgu123/entcore/internal/bus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name string
	rows []map[string]any
	err  error

	mu   sync.Mutex
	seen []Query
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) SearchResource(_ context.Context, q Query) ([]map[string]any, error) {
	s.mu.Lock()
	s.seen = append(s.seen, q)
	s.mu.Unlock()
	return s.rows, s.err
}

func TestServeRepliesToSearchAddress(t *testing.T) {
	b := bus.NewLocal()
	ctx := context.Background()

	got := make(chan Reply, 1)
	_, err := b.Subscribe(ctx, ReplyAddress("s1"), func(_ context.Context, msg bus.Message) any {
		var r Reply
		_ = msg.Decode(&r)
		got <- r
		return map[string]string{"status": "ok"}
	})
	require.NoError(t, err)

	p := &stubProvider{name: "workspace", rows: []map[string]any{{"title": "Notes"}}}
	h := NewHandler(p, b, zerolog.Nop())

	state, err := h.Serve(ctx, Request{SearchID: "s1", UserID: "u1", SearchWords: Words{"notes"}}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, state)

	select {
	case r := <-got:
		assert.Equal(t, "workspace", r.Application)
		assert.Equal(t, "Notes", r.Results[0]["title"])
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
	assert.Equal(t, "u1", p.seen[0].UserID)
}

func TestServeProviderFailureSendsNothing(t *testing.T) {
	b := bus.NewLocal()
	ctx := context.Background()

	replied := make(chan struct{}, 1)
	_, err := b.Subscribe(ctx, ReplyAddress("s2"), func(context.Context, bus.Message) any {
		replied <- struct{}{}
		return map[string]string{"status": "ok"}
	})
	require.NoError(t, err)

	h := NewHandler(&stubProvider{name: "blog", err: errors.New("index down")}, b, zerolog.Nop())
	state, err := h.Serve(ctx, Request{SearchID: "s2"}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)

	select {
	case <-replied:
		t.Fatal("failed provider must not reply")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServeToleratesMissingRequester(t *testing.T) {
	h := NewHandler(&stubProvider{name: "wiki"}, bus.NewLocal(), zerolog.Nop())
	h.timeout = 20 * time.Millisecond
	state, err := h.Serve(context.Background(), Request{SearchID: "gone"}).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, state)
}

func TestBroadcastFansOutOverRedis(t *testing.T) {
	s := miniredis.RunT(t)
	b, err := bus.NewRedis("redis://"+s.Addr(), zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	handlers := []*Handler{
		NewHandler(&stubProvider{name: "workspace", rows: []map[string]any{{"title": "a"}}}, b, zerolog.Nop()),
		NewHandler(&stubProvider{name: "blog", rows: []map[string]any{{"title": "b"}}}, b, zerolog.Nop()),
		NewHandler(&stubProvider{name: "broken", err: errors.New("nope")}, b, zerolog.Nop()),
	}
	subs, err := Subscribe(ctx, b, Address, handlers...)
	require.NoError(t, err)
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	replies, err := Broadcast(waitCtx, b, Address, Request{UserID: "u1", SearchWords: Words{"x"}}, 2)
	require.NoError(t, err)

	var apps []string
	for _, r := range replies {
		apps = append(apps, r.Application)
	}
	sort.Strings(apps)
	assert.Equal(t, []string{"blog", "workspace"}, apps)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeLogsEveryTransition(t *testing.T) {
	out := &syncBuffer{}
	log := zerolog.New(out).Level(zerolog.DebugLevel)
	h := NewHandler(&stubProvider{name: "blog", err: errors.New("index offline")}, bus.NewLocal(), log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state, err := h.Serve(ctx, Request{SearchID: "s7", UserID: "u1"}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"state":"failed"`)
	}, time.Second, 10*time.Millisecond)
	logged := out.String()
	received := strings.Index(logged, `"state":"received"`)
	dispatched := strings.Index(logged, `"state":"dispatched"`)
	require.GreaterOrEqual(t, received, 0)
	assert.Greater(t, dispatched, received)
	assert.Greater(t, strings.Index(logged, `"state":"failed"`), dispatched)
	assert.Contains(t, logged, `"searchId":"s7"`)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "dispatched", StateDispatched.String())
	assert.Equal(t, "state(9)", State(9).String())
}
