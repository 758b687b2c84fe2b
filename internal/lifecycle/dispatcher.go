package lifecycle

import (
	"context"

	"github.com/dgu123/entcore/internal/async"
	"github.com/rs/zerolog"
)

// Dispatcher invokes every registered handler for an event. Handlers run
// independently; one handler's failure does not affect the others.
type Dispatcher struct {
	registry *Registry
	log      zerolog.Logger
}

func NewDispatcher(registry *Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, log: log.With().Str("component", "lifecycle").Logger()}
}

// Outcome holds the futures of one dispatched event keyed by module.
type Outcome struct {
	Exports map[string]*async.Future[bool]
	Reports map[string]*async.Future[Report]
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Outcome {
	switch e := ev.(type) {
	case UserDeleted:
		return Outcome{Reports: d.DeleteUsers(ctx, e.Users)}
	case GroupDeleted:
		return Outcome{Reports: d.DeleteGroups(ctx, e.Groups)}
	case ExportRequested:
		return Outcome{Exports: d.ExportResources(ctx, e.Request)}
	}
	d.log.Warn().Str("kind", ev.Kind()).Msg("unknown lifecycle event")
	return Outcome{}
}

func (d *Dispatcher) DeleteUsers(ctx context.Context, users []User) map[string]*async.Future[Report] {
	return dispatchEach(d, "deleteUsers", Report{Operation: "deleteUsers", Failed: 1}, func(h Handler) *async.Future[Report] {
		return h.DeleteUsers(ctx, users)
	})
}

func (d *Dispatcher) DeleteGroups(ctx context.Context, groups []Group) map[string]*async.Future[Report] {
	return dispatchEach(d, "deleteGroups", Report{Operation: "deleteGroups", Failed: 1}, func(h Handler) *async.Future[Report] {
		return h.DeleteGroups(ctx, groups)
	})
}

func (d *Dispatcher) ExportResources(ctx context.Context, req ExportRequest) map[string]*async.Future[bool] {
	return dispatchEach(d, "exportResources", false, func(h Handler) *async.Future[bool] {
		return h.ExportResources(ctx, req)
	})
}

func dispatchEach[T any](d *Dispatcher, op string, onPanic T, call func(Handler) *async.Future[T]) map[string]*async.Future[T] {
	out := map[string]*async.Future[T]{}
	for _, name := range d.registry.Names() {
		h, ok := d.registry.Lookup(name)
		if !ok {
			continue
		}
		out[name] = safeCall(d.log.With().Str("module", name).Logger(), op, onPanic, h, call)
	}
	return out
}

func safeCall[T any](log zerolog.Logger, op string, onPanic T, h Handler, call func(Handler) *async.Future[T]) (f *async.Future[T]) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("op", op).Interface("panic", r).Msg("lifecycle handler panicked")
			f = async.Resolved(onPanic)
		}
	}()
	f = call(h)
	if f == nil {
		log.Error().Str("op", op).Msg("lifecycle handler returned no future")
		f = async.Resolved(onPanic)
	}
	return f
}

// WaitAll blocks until every future is resolved or ctx is done.
func WaitAll[T any](ctx context.Context, futures map[string]*async.Future[T]) (map[string]T, error) {
	out := make(map[string]T, len(futures))
	for name, f := range futures {
		v, err := f.Wait(ctx)
		if err != nil {
			return out, err
		}
		out[name] = v
	}
	return out, nil
}
