package lifecycle

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dgu123/entcore/internal/async"
	"github.com/dgu123/entcore/internal/bus"
	"github.com/rs/zerolog"
)

// Address is the bus address on which the platform publishes lifecycle events.
const Address = "user.repository"

const (
	ActionDeleteUsers  = "delete-users"
	ActionDeleteGroups = "delete-groups"
	ActionExport       = "export"
)

type command struct {
	Action string  `json:"action"`
	Users  []User  `json:"old-users"`
	Groups []Group `json:"old-groups"`
	ExportRequest
}

// BusAPI exposes a Dispatcher on the bus.
type BusAPI struct {
	dispatcher    *Dispatcher
	exportTimeout time.Duration
	log           zerolog.Logger
}

func NewBusAPI(d *Dispatcher, exportTimeout time.Duration, log zerolog.Logger) *BusAPI {
	if exportTimeout <= 0 {
		exportTimeout = 10 * time.Minute
	}
	return &BusAPI{dispatcher: d, exportTimeout: exportTimeout, log: log.With().Str("component", "lifecycle-bus").Logger()}
}

func (a *BusAPI) Subscribe(ctx context.Context, b bus.Bus) (bus.Subscription, error) {
	return b.Subscribe(ctx, Address, a.Handle)
}

// Handle runs one command. Deletions are acknowledged immediately and their
// reports logged on completion; exports reply once every module finished.
func (a *BusAPI) Handle(ctx context.Context, msg bus.Message) any {
	var cmd command
	if err := json.Unmarshal(msg.Body, &cmd); err != nil {
		a.log.Error().Err(err).Msg("malformed lifecycle command")
		return map[string]any{"status": "error", "message": "invalid command"}
	}

	switch cmd.Action {
	case ActionDeleteUsers:
		a.observe(a.dispatcher.DeleteUsers(ctx, cmd.Users))
		return map[string]any{"status": "ok"}
	case ActionDeleteGroups:
		a.observe(a.dispatcher.DeleteGroups(ctx, cmd.Groups))
		return map[string]any{"status": "ok"}
	case ActionExport:
		waitCtx, cancel := context.WithTimeout(ctx, a.exportTimeout)
		defer cancel()
		results, err := WaitAll(waitCtx, a.dispatcher.ExportResources(ctx, cmd.ExportRequest))
		if err != nil {
			a.log.Error().Err(err).Str("export", cmd.ExportID).Msg("export did not complete")
			return map[string]any{"status": "error", "message": err.Error(), "exportId": cmd.ExportID}
		}
		status := "ok"
		for _, ok := range results {
			if !ok {
				status = "error"
			}
		}
		return map[string]any{"status": status, "exportId": cmd.ExportID, "modules": results}
	}
	a.log.Warn().Str("action", cmd.Action).Msg("unknown lifecycle action")
	return map[string]any{"status": "error", "message": "unknown action"}
}

func (a *BusAPI) observe(reports map[string]*async.Future[Report]) {
	var (
		mu        sync.Mutex
		total     Report
		remaining = len(reports)
	)
	for name, f := range reports {
		f.OnComplete(func(r Report) {
			ev := a.log.Info()
			if !r.OK() {
				ev = a.log.Error()
			}
			ev.Str("module", name).Str("op", r.Operation).
				Int("succeeded", r.Succeeded).Int("failed", r.Failed).Msg("lifecycle cascade finished")

			mu.Lock()
			total.Operation = r.Operation
			total.Add(r)
			remaining--
			done, sum := remaining == 0, total
			mu.Unlock()
			if done {
				a.log.Info().Str("op", sum.Operation).Int("modules", len(reports)).
					Int("succeeded", sum.Succeeded).Int("failed", sum.Failed).Msg("lifecycle cascade complete")
			}
		})
	}
}
