package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgu123/entcore/internal/bus"
	"github.com/dgu123/entcore/internal/lifecycle"
	"github.com/dgu123/entcore/internal/search"
	"github.com/dgu123/entcore/internal/workspace"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the bus and serve lifecycle, search and timeline messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	b, err := bus.NewRedis(rt.cfg.RedisURL, rt.log)
	if err != nil {
		return err
	}
	defer b.Close()

	var subs []bus.Subscription
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()

	api := lifecycle.NewBusAPI(rt.dispatcher(), rt.cfg.ExportTimeout, rt.log)
	s, err := api.Subscribe(ctx, b)
	if err != nil {
		return err
	}
	subs = append(subs, s)

	searchSubs, err := search.Subscribe(ctx, b, search.Address,
		search.NewHandler(workspace.NewSearchProvider(rt.docs), b, rt.log),
		search.NewHandler(rt.catalogue, b, rt.log),
	)
	subs = append(subs, searchSubs...)
	if err != nil {
		return err
	}

	if s, err = rt.timeline.Subscribe(ctx, b); err != nil {
		return err
	}
	subs = append(subs, s)

	if s, err = b.Subscribe(ctx, search.IndexAddress, rt.catalogue.HandleIndex); err != nil {
		return err
	}
	subs = append(subs, s)

	rt.log.Info().Strs("modules", rt.registry.Names()).Msg("entcore serving")
	<-ctx.Done()
	rt.log.Info().Msg("shutting down")
	rt.timeline.Flush()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
