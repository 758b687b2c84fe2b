package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgu123/entcore/internal/blob"
	"github.com/dgu123/entcore/internal/config"
	"github.com/dgu123/entcore/internal/conversation"
	"github.com/dgu123/entcore/internal/docstore"
	"github.com/dgu123/entcore/internal/graph"
	"github.com/dgu123/entcore/internal/i18n"
	"github.com/dgu123/entcore/internal/lifecycle"
	"github.com/dgu123/entcore/internal/logging"
	"github.com/dgu123/entcore/internal/search"
	"github.com/dgu123/entcore/internal/store"
	"github.com/dgu123/entcore/internal/timeline"
	"github.com/dgu123/entcore/internal/workspace"
	"github.com/rs/zerolog"
)

// runtime holds the connected backends and the services built on them.
type runtime struct {
	cfg config.Config
	log zerolog.Logger

	docs      docstore.Gateway
	storage   blob.Storage
	catalogue *search.Catalogue
	workspace *workspace.RepositoryEvents
	timeline  *timeline.Store
	registry  *lifecycle.Registry

	closers []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	r := &runtime{cfg: cfg, log: logging.New(cfg.Service, cfg.LogLevel)}
	if err := r.open(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *runtime) open(ctx context.Context) error {
	cfg := r.cfg

	client, err := docstore.OpenMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return err
	}
	r.closers = append(r.closers, func() { _ = client.Disconnect(context.Background()) })
	r.docs = docstore.NewMongo(client.Database(cfg.Mongo.Database), r.log)

	if r.storage, err = r.openStorage(ctx); err != nil {
		return err
	}

	driver, err := graph.OpenNeo4j(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
	if err != nil {
		return err
	}
	r.closers = append(r.closers, func() { _ = driver.Close(context.Background()) })

	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	r.closers = append(r.closers, pool.Close)
	if err := store.ApplyMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.Search.MeiliURL) != "" {
		meili = search.NewMeili(cfg.Search.MeiliURL, cfg.Search.MeiliMasterKey, r.log)
		r.closers = append(r.closers, meili.Close)
	}
	r.catalogue = search.NewCatalogue("catalogue", meili, search.NewPgFTS(pool), r.log).
		MigrateGroupMembers(cfg.Workspace.ShareOldGroupsToUsers)

	policy := workspace.PolicyArchive
	if cfg.Workspace.ShareOldGroupsToUsers {
		policy = workspace.PolicyMigrate
	}
	r.workspace = workspace.NewRepositoryEvents(r.docs, r.storage, i18n.Default(), workspace.Options{
		Policy:      policy,
		Concurrency: cfg.Workspace.Concurrency,
	}, r.log)

	if r.timeline, err = timeline.NewStore(r.docs, r.log); err != nil {
		return err
	}

	r.registry = lifecycle.NewRegistry()
	return errors.Join(
		r.registry.Register(workspace.Module, r.workspace),
		r.registry.Register(conversation.Module, conversation.NewRepositoryEvents(graph.NewNeo4j(driver, cfg.Neo4j.Database, r.log), r.log)),
		r.registry.Register(r.catalogue.Name(), r.catalogue),
	)
}

func (r *runtime) openStorage(ctx context.Context) (blob.Storage, error) {
	sc := r.cfg.Storage
	if sc.Endpoint == "" {
		return blob.NewLocal(sc.LocalRoot)
	}
	m, err := blob.NewMinio(blob.MinioConfig{
		Endpoint:  sc.Endpoint,
		AccessKey: sc.AccessKey,
		SecretKey: sc.SecretKey,
		Bucket:    sc.Bucket,
		UseSSL:    sc.UseSSL,
	}, r.log)
	if err != nil {
		return nil, err
	}
	if err := m.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *runtime) dispatcher() *lifecycle.Dispatcher {
	return lifecycle.NewDispatcher(r.registry, r.log)
}
