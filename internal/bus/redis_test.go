package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *Redis {
	s := miniredis.RunT(t)
	b, err := NewRedis("redis://"+s.Addr(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

type echo struct {
	Text string `json:"text"`
}

func TestRedisRequestReply(t *testing.T) {
	b := setupTestRedis(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "echo", func(_ context.Context, msg Message) any {
		var in echo
		if err := msg.Decode(&in); err != nil {
			return map[string]string{"status": "error"}
		}
		return echo{Text: "re: " + in.Text}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	raw, err := b.Request(reqCtx, "echo", echo{Text: "hi"})
	require.NoError(t, err)

	var out echo
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "re: hi", out.Text)
}

func TestRedisPublishWithoutSubscribers(t *testing.T) {
	b := setupTestRedis(t)
	err := b.Publish(context.Background(), "nobody", echo{Text: "x"})
	assert.ErrorIs(t, err, ErrNoHandlers)
}

func TestRedisRequestTimesOut(t *testing.T) {
	b := setupTestRedis(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "silent", func(context.Context, Message) any { return nil })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	reqCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = b.Request(reqCtx, "silent", echo{Text: "x"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRedisPublishDelivers(t *testing.T) {
	b := setupTestRedis(t)
	ctx := context.Background()

	got := make(chan string, 1)
	sub, err := b.Subscribe(ctx, "events", func(_ context.Context, msg Message) any {
		var in echo
		_ = msg.Decode(&in)
		got <- in.Text
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(ctx, "events", echo{Text: "fired"}))
	select {
	case text := <-got:
		assert.Equal(t, "fired", text)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}
