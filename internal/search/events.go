package search

import (
	"context"
	"encoding/json"

	"github.com/dgu123/entcore/internal/async"
	"github.com/dgu123/entcore/internal/bus"
	"github.com/dgu123/entcore/internal/lifecycle"
)

// IndexAddress receives resources that modules want searchable.
const IndexAddress = "search.catalogue.index"

var _ lifecycle.Handler = (*Catalogue)(nil)

// ExportResources has nothing to write: the catalogue only mirrors module data.
func (c *Catalogue) ExportResources(context.Context, lifecycle.ExportRequest) *async.Future[bool] {
	return async.Resolved(true)
}

// DeleteUsers drops the resources owned by users from both backends.
func (c *Catalogue) DeleteUsers(ctx context.Context, users []lifecycle.User) *async.Future[lifecycle.Report] {
	op := "deleteUsers"
	failed := lifecycle.Report{Module: c.name, Operation: op, Failed: 1}
	return lifecycle.Run(c.log, op, failed, func() lifecycle.Report {
		ids := lifecycle.UserIDs(users)
		if len(ids) == 0 || c.pgfts == nil {
			return lifecycle.Report{Module: c.name, Operation: op}
		}
		removed, err := c.pgfts.DeleteOwnedBy(ctx, ids)
		if err != nil {
			c.log.Error().Err(err).Strs("users", ids).Msg("delete owned resources failed")
			return failed
		}
		if len(removed) > 0 && c.meili != nil && c.meili.Healthy() {
			if err := c.meili.DeleteResources(removed); err != nil {
				c.log.Warn().Err(err).Int("resources", len(removed)).Msg("meilisearch delete failed")
			}
		}
		return lifecycle.Report{Module: c.name, Operation: op, Succeeded: len(removed)}
	})
}

// DeleteGroups removes the groups from the visibility of every resource,
// archiving the reference. Members are granted access when the catalogue
// migrates group shares.
func (c *Catalogue) DeleteGroups(ctx context.Context, groups []lifecycle.Group) *async.Future[lifecycle.Report] {
	op := "deleteGroups"
	failed := lifecycle.Report{Module: c.name, Operation: op, Failed: 1}
	return lifecycle.Run(c.log, op, failed, func() lifecycle.Report {
		ids := make([]string, 0, len(groups))
		for _, g := range groups {
			if g.ID != "" {
				ids = append(ids, g.ID)
			}
		}
		if len(ids) == 0 || c.pgfts == nil {
			return lifecycle.Report{Module: c.name, Operation: op}
		}
		changed, err := c.pgfts.RemoveGroups(ctx, groups, c.migrateMembers)
		if err != nil {
			c.log.Error().Err(err).Strs("groups", ids).Msg("remove groups failed")
			return failed
		}
		if len(changed) > 0 && c.meili != nil && c.meili.Healthy() {
			if err := c.meili.IndexResources(changed); err != nil {
				c.log.Warn().Err(err).Int("resources", len(changed)).Msg("meilisearch reindex failed")
			}
		}
		return lifecycle.Report{Module: c.name, Operation: op, Succeeded: len(changed)}
	})
}

// HandleIndex upserts the Resource carried by msg.
func (c *Catalogue) HandleIndex(ctx context.Context, msg bus.Message) any {
	var r Resource
	if err := json.Unmarshal(msg.Body, &r); err != nil || r.ID == "" || r.Application == "" {
		return map[string]string{"status": "error", "message": "invalid resource"}
	}
	if err := c.Index(ctx, r); err != nil {
		c.log.Error().Err(err).Str("resource", r.ID).Msg("index failed")
		return map[string]string{"status": "error", "message": err.Error()}
	}
	return map[string]string{"status": "ok"}
}
