package search

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Catalogue is a Provider for the shared resource catalogue. It queries
// Meilisearch while it is healthy and falls back to PostgreSQL FTS.
type Catalogue struct {
	name  string
	meili *Meili
	pgfts *PgFTS
	log   zerolog.Logger

	migrateMembers bool
}

// NewCatalogue creates the provider. meili may be nil if Meilisearch is not configured.
func NewCatalogue(name string, meili *Meili, pgfts *PgFTS, log zerolog.Logger) *Catalogue {
	return &Catalogue{name: name, meili: meili, pgfts: pgfts, log: log.With().Str("provider", name).Logger()}
}

// MigrateGroupMembers makes DeleteGroups share a deleted group's resources
// with its members, mirroring the workspace migrate policy.
func (c *Catalogue) MigrateGroupMembers(on bool) *Catalogue {
	c.migrateMembers = on
	return c
}

func (c *Catalogue) Name() string {
	return c.name
}

func (c *Catalogue) SearchResource(ctx context.Context, q Query) ([]map[string]any, error) {
	if c.meili != nil && c.meili.Healthy() {
		rows, err := c.meili.Search(ctx, q)
		if err == nil {
			return rows, nil
		}
		c.log.Warn().Err(err).Msg("meilisearch error, falling back to pgfts")
	}
	if c.pgfts == nil {
		return nil, errors.New("no search backend available")
	}
	return c.pgfts.Search(ctx, q)
}

// Index writes r to the catalogue and, fire-and-forget, to Meilisearch.
func (c *Catalogue) Index(ctx context.Context, r Resource) error {
	if c.pgfts != nil {
		if err := c.pgfts.Upsert(ctx, r); err != nil {
			return err
		}
	}
	if c.meili == nil || !c.meili.Healthy() {
		return nil
	}
	go func() {
		if err := c.meili.IndexResources([]Resource{r}); err != nil {
			c.log.Error().Err(err).Str("resource", r.ID).Msg("index resource")
		}
	}()
	return nil
}

// ReindexAllFromPG pushes the whole PostgreSQL catalogue to Meilisearch.
func (c *Catalogue) ReindexAllFromPG(ctx context.Context) {
	if c.meili == nil || !c.meili.Healthy() || c.pgfts == nil {
		return
	}
	resources, err := c.pgfts.LoadAllResources(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("reindex load failed")
		return
	}
	if err := c.meili.IndexResources(resources); err != nil {
		c.log.Error().Err(err).Msg("reindex resources")
	}
}
