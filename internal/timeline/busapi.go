package timeline

import (
	"context"
	"encoding/json"

	"github.com/dgu123/entcore/internal/bus"
	"github.com/dgu123/entcore/internal/docstore"
)

// Address is the bus address serving the event store.
const Address = "wse.timeline"

const (
	ActionAdd               = "add"
	ActionGet               = "get"
	ActionDelete            = "delete"
	ActionDeleteSubResource = "deleteSubResource"
	ActionListTypes         = "list-types"
)

type command struct {
	Action      string              `json:"action"`
	Event       map[string]any      `json:"event,omitempty"`
	User        User                `json:"user"`
	Types       []string            `json:"types,omitempty"`
	Offset      int                 `json:"offset"`
	Limit       int                 `json:"limit"`
	Restriction map[string][]string `json:"restrictionFilter,omitempty"`
	Resource    string              `json:"resource,omitempty"`
}

// Handle answers one store command with the store's result document.
func (s *Store) Handle(ctx context.Context, msg bus.Message) any {
	var cmd command
	if err := json.Unmarshal(msg.Body, &cmd); err != nil {
		s.log.Error().Err(err).Msg("malformed timeline command")
		return docstore.InvalidArguments()
	}
	switch cmd.Action {
	case ActionAdd:
		return s.Add(ctx, cmd.Event)
	case ActionGet:
		return s.Get(ctx, cmd.User, cmd.Types, cmd.Offset, cmd.Limit, cmd.Restriction)
	case ActionDelete:
		return s.Delete(ctx, cmd.Resource)
	case ActionDeleteSubResource:
		return s.DeleteSubResource(ctx, cmd.Resource)
	case ActionListTypes:
		return map[string]any{"status": docstore.StatusOK, "types": s.ListTypes(ctx)}
	}
	s.log.Warn().Str("action", cmd.Action).Msg("unknown timeline action")
	return docstore.ErrorResult("unknown action")
}

func (s *Store) Subscribe(ctx context.Context, b bus.Bus) (bus.Subscription, error) {
	return b.Subscribe(ctx, Address, s.Handle)
}
