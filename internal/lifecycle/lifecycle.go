// Package lifecycle defines how modules react to platform-wide user and
// group deletions and to export requests.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/dgu123/entcore/internal/async"
	"github.com/rs/zerolog"
)

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type Group struct {
	ID          string   `json:"group"`
	DisplayName string   `json:"groupName"`
	Users       []string `json:"users,omitempty"`
}

type ExportRequest struct {
	ExportID   string   `json:"exportId"`
	UserID     string   `json:"userId"`
	GroupIDs   []string `json:"groups"`
	ExportPath string   `json:"path"`
	Locale     string   `json:"locale"`
	Host       string   `json:"host,omitempty"`
}

// Event is one of UserDeleted, GroupDeleted or ExportRequested.
type Event interface {
	Kind() string
}

type UserDeleted struct {
	Users []User
}

type GroupDeleted struct {
	Groups []Group
}

type ExportRequested struct {
	Request ExportRequest
}

func (UserDeleted) Kind() string     { return "user-deleted" }
func (GroupDeleted) Kind() string    { return "group-deleted" }
func (ExportRequested) Kind() string { return "export-requested" }

// Report is the aggregate outcome of a fire-and-observe cascade.
type Report struct {
	Module    string `json:"module"`
	Operation string `json:"operation"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

func (r Report) OK() bool {
	return r.Failed == 0
}

// Add merges o into r.
func (r *Report) Add(o Report) {
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
}

// Handler is implemented by every module owning data affected by lifecycle
// events. All methods return immediately; the returned future is resolved
// exactly once when the work completes. Failures are logged and reflected in
// the resolved value, never returned or raised.
type Handler interface {
	ExportResources(ctx context.Context, req ExportRequest) *async.Future[bool]
	DeleteGroups(ctx context.Context, groups []Group) *async.Future[Report]
	DeleteUsers(ctx context.Context, users []User) *async.Future[Report]
}

// Run executes fn in a goroutine and resolves the returned future with its
// result, or with onPanic if fn panics.
func Run[T any](log zerolog.Logger, op string, onPanic T, fn func() T) *async.Future[T] {
	return async.Go(func() (v T) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("op", op).Str("panic", fmt.Sprint(r)).Msg("lifecycle handler panicked")
				v = onPanic
			}
		}()
		return fn()
	})
}

// UserIDs returns the non-empty ids of users.
func UserIDs(users []User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u.ID != "" {
			out = append(out, u.ID)
		}
	}
	return out
}
