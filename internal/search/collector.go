package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgu123/entcore/internal/bus"
	"github.com/dgu123/entcore/internal/util"
)

// Broadcast publishes req to address and gathers provider replies until
// expected replies arrived or ctx is done. A zero expected waits for ctx.
func Broadcast(ctx context.Context, b bus.Bus, address string, req Request, expected int) ([]Reply, error) {
	if req.SearchID == "" {
		req.SearchID = util.NewID("search")
	}
	req.applyDefaults()

	var (
		mu      sync.Mutex
		replies []Reply
		full    = make(chan struct{})
		once    sync.Once
	)
	sub, err := b.Subscribe(ctx, ReplyAddress(req.SearchID), func(_ context.Context, msg bus.Message) any {
		var r Reply
		if err := json.Unmarshal(msg.Body, &r); err != nil {
			return map[string]string{"status": "error", "message": "malformed reply"}
		}
		mu.Lock()
		replies = append(replies, r)
		if expected > 0 && len(replies) >= expected {
			once.Do(func() { close(full) })
		}
		mu.Unlock()
		return map[string]string{"status": "ok"}
	})
	if err != nil {
		return nil, fmt.Errorf("listen for search replies: %w", err)
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, address, req); err != nil {
		return nil, fmt.Errorf("broadcast search: %w", err)
	}

	select {
	case <-full:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]Reply, len(replies))
	copy(out, replies)
	return out, nil
}
