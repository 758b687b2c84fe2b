package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgu123/entcore/internal/async"
	"github.com/dgu123/entcore/internal/bus"
	"github.com/rs/zerolog"
)

// State is the progress of one search request through a handler.
type State int

const (
	StateReceived State = iota
	StateDispatched
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateDispatched:
		return "dispatched"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Handler forwards search requests to exactly one provider and relays its
// results to the requester's reply address.
type Handler struct {
	provider Provider
	bus      bus.Bus
	timeout  time.Duration
	log      zerolog.Logger
}

func NewHandler(p Provider, b bus.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		provider: p,
		bus:      b,
		timeout:  ReplyTimeout,
		log:      log.With().Str("component", "search").Str("provider", p.Name()).Logger(),
	}
}

// Serve runs req against the provider without blocking. Every transition is
// logged; the future holds the final state: succeeded once the provider
// answered, failed otherwise. Reply delivery problems are logged only.
func (h *Handler) Serve(ctx context.Context, req Request) *async.Future[State] {
	out := async.New[State]()
	out.OnComplete(func(s State) { h.transition(req.SearchID, s) })
	h.transition(req.SearchID, StateReceived)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.log.Error().Str("searchId", req.SearchID).Interface("panic", r).Msg("search provider panicked")
				out.Resolve(StateFailed)
			}
		}()

		h.transition(req.SearchID, StateDispatched)
		results, err := h.provider.SearchResource(ctx, req.Query())
		if err != nil {
			h.log.Error().Err(err).Str("searchId", req.SearchID).Msg("search provider failed")
			out.Resolve(StateFailed)
			return
		}
		if results == nil {
			results = []map[string]any{}
		}
		out.Resolve(StateSucceeded)
		h.reply(ctx, req.SearchID, results)
	}()
	return out
}

func (h *Handler) transition(searchID string, s State) {
	h.log.Debug().Str("searchId", searchID).Stringer("state", s).Msg("search request")
}

func (h *Handler) reply(ctx context.Context, searchID string, results []map[string]any) {
	replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()

	raw, err := h.bus.Request(replyCtx, ReplyAddress(searchID), Reply{
		Application: h.provider.Name(),
		Results:     results,
	})
	if err != nil {
		h.log.Error().Err(err).Str("searchId", searchID).Msg("search reply failed")
		return
	}
	var ack struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &ack); err != nil || ack.Status != "ok" {
		h.log.Error().Str("searchId", searchID).Str("status", ack.Status).Str("message", ack.Message).
			Msg("search reply rejected")
	}
}

// Handle is the bus entry point. It never replies on the inbound address.
func (h *Handler) Handle(ctx context.Context, msg bus.Message) any {
	req, err := ParseRequest(msg.Body)
	if err != nil {
		h.log.Error().Err(err).Msg("malformed search request")
		return nil
	}
	h.Serve(ctx, req)
	return nil
}

// Subscribe binds every handler to address.
func Subscribe(ctx context.Context, b bus.Bus, address string, handlers ...*Handler) ([]bus.Subscription, error) {
	subs := make([]bus.Subscription, 0, len(handlers))
	for _, h := range handlers {
		s, err := b.Subscribe(ctx, address, h.Handle)
		if err != nil {
			for _, prev := range subs {
				_ = prev.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe %s provider: %w", h.provider.Name(), err)
		}
		subs = append(subs, s)
	}
	return subs, nil
}
