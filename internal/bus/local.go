package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Local is an in-process Bus.
type Local struct {
	mu       sync.RWMutex
	handlers map[string]map[int]HandlerFunc
	nextID   int
}

func NewLocal() *Local {
	return &Local{handlers: map[string]map[int]HandlerFunc{}}
}

func (l *Local) bound(address string) []HandlerFunc {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]HandlerFunc, 0, len(l.handlers[address]))
	for _, h := range l.handlers[address] {
		out = append(out, h)
	}
	return out
}

func (l *Local) Publish(ctx context.Context, address string, body any) error {
	raw, err := encode(body)
	if err != nil {
		return err
	}
	handlers := l.bound(address)
	if len(handlers) == 0 {
		return fmt.Errorf("%w: %s", ErrNoHandlers, address)
	}
	msg := Message{Address: address, Body: raw}
	hctx := context.WithoutCancel(ctx)
	for _, h := range handlers {
		go h(hctx, msg)
	}
	return nil
}

func (l *Local) Request(ctx context.Context, address string, body any) (json.RawMessage, error) {
	raw, err := encode(body)
	if err != nil {
		return nil, err
	}
	handlers := l.bound(address)
	if len(handlers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHandlers, address)
	}

	replies := make(chan json.RawMessage, len(handlers))
	msg := Message{Address: address, ReplyTo: "local", Body: raw}
	hctx := context.WithoutCancel(ctx)
	for _, h := range handlers {
		go func(h HandlerFunc) {
			reply := h(hctx, msg)
			if reply == nil {
				return
			}
			b, err := encode(reply)
			if err != nil {
				return
			}
			replies <- b
		}(h)
	}

	select {
	case b := <-replies:
		return b, nil
	case <-ctx.Done():
		return nil, timeoutError(address, ctx.Err())
	}
}

func (l *Local) Subscribe(_ context.Context, address string, h HandlerFunc) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	if l.handlers[address] == nil {
		l.handlers[address] = map[int]HandlerFunc{}
	}
	l.handlers[address][id] = h
	return &localSubscription{bus: l, address: address, id: id}, nil
}

type localSubscription struct {
	bus     *Local
	address string
	id      int
}

func (s *localSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.handlers[s.address], s.id)
	return nil
}
