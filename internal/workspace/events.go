// Package workspace applies lifecycle events to the file workspace: owned
// and shared documents, racks (files sent to a user) and revisions.
package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgu123/entcore/internal/async"
	"github.com/dgu123/entcore/internal/blob"
	"github.com/dgu123/entcore/internal/docstore"
	"github.com/dgu123/entcore/internal/i18n"
	"github.com/dgu123/entcore/internal/lifecycle"
	"github.com/dgu123/entcore/internal/share"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

const (
	DocumentsCollection = "documents"
	RacksCollection     = "racks"
	RevisionsCollection = "documentsRevisions"

	Module = "workspace"
)

// GroupPolicy decides what happens to grants of a deleted group.
type GroupPolicy string

const (
	// PolicyArchive moves the group grant to old_shared.
	PolicyArchive GroupPolicy = "archive"
	// PolicyMigrate replaces the group grant with one grant per former member.
	PolicyMigrate GroupPolicy = "migrate"
)

type Options struct {
	Policy      GroupPolicy
	Concurrency int
}

// RepositoryEvents is the workspace lifecycle.Handler.
type RepositoryEvents struct {
	docs        docstore.Gateway
	storage     blob.Storage
	catalog     *i18n.Catalog
	policy      GroupPolicy
	concurrency int
	log         zerolog.Logger
}

var _ lifecycle.Handler = (*RepositoryEvents)(nil)

func NewRepositoryEvents(docs docstore.Gateway, storage blob.Storage, catalog *i18n.Catalog, opts Options, log zerolog.Logger) *RepositoryEvents {
	if opts.Policy == "" {
		opts.Policy = PolicyArchive
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if catalog == nil {
		catalog = i18n.Default()
	}
	return &RepositoryEvents{
		docs:        docs,
		storage:     storage,
		catalog:     catalog,
		policy:      opts.Policy,
		concurrency: opts.Concurrency,
		log:         log.With().Str("module", Module).Logger(),
	}
}

func (r *RepositoryEvents) ExportResources(ctx context.Context, req lifecycle.ExportRequest) *async.Future[bool] {
	return lifecycle.Run(r.log, "exportResources", false, func() bool {
		return r.export(ctx, req)
	})
}

func (r *RepositoryEvents) export(ctx context.Context, req lifecycle.ExportRequest) bool {
	log := r.log.With().Str("export", req.ExportID).Str("user", req.UserID).Logger()

	grantees := bson.A{bson.M{share.FieldUserID: req.UserID}}
	for _, g := range req.GroupIDs {
		if g != "" {
			grantees = append(grantees, bson.M{share.FieldGroupID: g})
		}
	}
	filter := bson.M{
		"$or": bson.A{
			bson.M{"owner": req.UserID},
			bson.M{"shared": bson.M{"$elemMatch": bson.M{"$or": grantees}}},
			bson.M{"old_shared": bson.M{"$elemMatch": bson.M{"$or": grantees}}},
		},
		"file": bson.M{"$exists": true},
	}
	keys := bson.M{"file": 1, "name": 1}

	documents := r.docs.Find(ctx, DocumentsCollection, filter, docstore.FindOptions{Projection: keys})
	if !documents.OK() {
		log.Error().Str("collection", DocumentsCollection).Str("message", documents.Message).Msg("export find failed")
		return false
	}
	racks := r.docs.Find(ctx, RacksCollection, bson.M{"to": req.UserID, "file": bson.M{"$exists": true}},
		docstore.FindOptions{Projection: keys})
	if !racks.OK() {
		log.Error().Str("collection", RacksCollection).Str("message", racks.Message).Msg("export find failed")
		return false
	}

	var entries []lifecycle.AliasEntry
	for _, res := range [][]bson.M{documents.Results, racks.Results} {
		for _, doc := range res {
			if file := docstore.String(doc, "file"); file != "" {
				entries = append(entries, lifecycle.AliasEntry{BlobID: file, Name: docstore.String(doc, "name")})
			}
		}
	}
	alias := lifecycle.BuildAliases(entries)
	ids := make([]string, 0, len(alias))
	seen := map[string]bool{}
	for _, e := range entries {
		if !seen[e.BlobID] {
			seen[e.BlobID] = true
			ids = append(ids, e.BlobID)
		}
	}

	path := filepath.Join(req.ExportPath, r.catalog.Translate("workspace.title", req.Locale))
	if err := os.MkdirAll(path, 0o755); err != nil {
		log.Error().Err(err).Str("path", path).Msg("create export directory")
		return false
	}
	if err := r.storage.WriteToFileSystem(ctx, ids, path, alias); err != nil {
		log.Error().Err(err).Strs("blobs", ids).Msg("write export files")
		return false
	}
	log.Info().Int("files", len(ids)).Msg("workspace exported")
	return true
}

func (r *RepositoryEvents) DeleteGroups(ctx context.Context, groups []lifecycle.Group) *async.Future[lifecycle.Report] {
	failed := lifecycle.Report{Module: Module, Operation: "deleteGroups", Failed: len(groups)}
	return lifecycle.Run(r.log, "deleteGroups", failed, func() lifecycle.Report {
		return r.deleteGroups(ctx, groups)
	})
}

func (r *RepositoryEvents) deleteGroups(ctx context.Context, groups []lifecycle.Group) lifecycle.Report {
	report := lifecycle.Report{Module: Module, Operation: "deleteGroups"}
	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(r.concurrency)
	for _, g := range groups {
		if g.ID == "" {
			continue
		}
		eg.Go(func() error {
			ok := r.deleteGroup(ctx, g)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				report.Succeeded++
			} else {
				report.Failed++
			}
			return nil
		})
	}
	_ = eg.Wait()
	return report
}

func (r *RepositoryEvents) deleteGroup(ctx context.Context, g lifecycle.Group) bool {
	if r.policy == PolicyMigrate && len(g.Users) > 0 {
		return r.migrateGroup(ctx, g)
	}
	return r.archiveGroup(ctx, g)
}

func (r *RepositoryEvents) archiveGroup(ctx context.Context, g lifecycle.Group) bool {
	ref := bson.M{share.FieldGroupID: g.ID}
	res := r.docs.Update(ctx, DocumentsCollection,
		bson.M{"shared.groupId": g.ID},
		bson.M{"$pull": bson.M{"shared": ref}, "$addToSet": bson.M{"old_shared": ref}},
		true)
	if !res.OK() {
		r.log.Error().Str("group", g.ID).Str("message", res.Message).Msg("archive group grants failed")
		return false
	}
	r.log.Info().Str("group", g.ID).Int64("documents", res.Number).Msg("group grants archived")
	return true
}

// migrateGroup adds the member grants of every document before removing the
// group grant from it, so a failed write never leaves a document unshared.
func (r *RepositoryEvents) migrateGroup(ctx context.Context, g lifecycle.Group) bool {
	found := r.docs.Find(ctx, DocumentsCollection, bson.M{"shared.groupId": g.ID},
		docstore.FindOptions{Projection: bson.M{"shared": 1}})
	if !found.OK() {
		r.log.Error().Str("group", g.ID).Str("message", found.Message).Msg("find group documents failed")
		return false
	}

	ok := true
	for _, doc := range found.Results {
		grants := share.MemberGrants(groupGrant(doc, g.ID), g.Users)
		add := r.docs.Update(ctx, DocumentsCollection,
			bson.M{"_id": doc["_id"]},
			bson.M{"$addToSet": bson.M{"shared": bson.M{"$each": share.Docs(grants)}}},
			false)
		if !add.OK() {
			r.log.Error().Str("group", g.ID).Interface("document", doc["_id"]).Str("message", add.Message).
				Msg("migrate group grant failed")
			ok = false
			continue
		}
		pull := r.docs.Update(ctx, DocumentsCollection,
			bson.M{"_id": doc["_id"]},
			bson.M{"$pull": bson.M{"shared": bson.M{share.FieldGroupID: g.ID}}},
			false)
		if !pull.OK() {
			r.log.Error().Str("group", g.ID).Interface("document", doc["_id"]).Str("message", pull.Message).
				Msg("remove migrated group grant failed")
			ok = false
		}
	}
	if ok {
		r.log.Info().Str("group", g.ID).Int("documents", len(found.Results)).Int("members", len(g.Users)).
			Msg("group grants migrated")
	}
	return ok
}

// groupGrant reads the grant of groupID on doc, falling back to the default
// member actions when it is missing or unreadable.
func groupGrant(doc bson.M, groupID string) share.Grant {
	shared, _ := docstore.List(doc["shared"])
	for _, s := range shared {
		m, ok := docstore.Doc(s)
		if !ok || docstore.String(m, share.FieldGroupID) != groupID {
			continue
		}
		if g, err := share.FromDoc(m); err == nil && len(g.Actions) > 0 {
			return g
		}
	}
	return share.ForGroup(groupID, share.DefaultMemberActions...)
}

func (r *RepositoryEvents) DeleteUsers(ctx context.Context, users []lifecycle.User) *async.Future[lifecycle.Report] {
	failed := lifecycle.Report{Module: Module, Operation: "deleteUsers", Failed: 1}
	return lifecycle.Run(r.log, "deleteUsers", failed, func() lifecycle.Report {
		return r.deleteUsers(ctx, users)
	})
}

func (r *RepositoryEvents) deleteUsers(ctx context.Context, users []lifecycle.User) lifecycle.Report {
	report := lifecycle.Report{Module: Module, Operation: "deleteUsers"}
	ids := lifecycle.UserIDs(users)
	if len(ids) == 0 {
		return report
	}

	owned := bson.M{"owner": bson.M{"$in": ids}}
	purges := []struct {
		collection string
		filter     bson.M
	}{
		{DocumentsCollection, owned},
		{RacksCollection, bson.M{"to": bson.M{"$in": ids}}},
		{RevisionsCollection, owned},
	}

	files := make([][]string, len(purges))
	results := make([]bool, len(purges))
	var eg errgroup.Group
	eg.SetLimit(r.concurrency)
	for i, p := range purges {
		eg.Go(func() error {
			files[i], results[i] = r.purge(ctx, p.collection, p.filter)
			return nil
		})
	}
	_ = eg.Wait()
	for _, ok := range results {
		if ok {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	removed := map[string]bool{}
	for _, list := range files {
		for _, id := range list {
			if removed[id] {
				continue
			}
			removed[id] = true
			if err := r.storage.RemoveFile(ctx, id); err != nil {
				r.log.Error().Err(err).Str("blob", id).Msg("delete file failed")
				report.Failed++
				continue
			}
			report.Succeeded++
		}
	}

	oldShared := make(bson.A, 0, len(ids))
	for _, id := range ids {
		oldShared = append(oldShared, bson.M{share.FieldUserID: id})
	}
	res := r.docs.Update(ctx, DocumentsCollection,
		bson.M{"shared.userId": bson.M{"$in": ids}},
		bson.M{
			"$pull":     bson.M{"shared": bson.M{share.FieldUserID: bson.M{"$in": ids}}},
			"$addToSet": bson.M{"old_shared": bson.M{"$each": oldShared}},
		},
		true)
	if !res.OK() {
		r.log.Error().Strs("users", ids).Str("message", res.Message).Msg("archive user grants failed")
		report.Failed++
	} else {
		report.Succeeded++
	}
	return report
}

// purge deletes the items matching filter and returns the blob ids they
// referenced. Blob ids are returned only once the items are gone.
func (r *RepositoryEvents) purge(ctx context.Context, collection string, filter bson.M) ([]string, bool) {
	found := r.docs.Find(ctx, collection, filter, docstore.FindOptions{Projection: bson.M{"file": 1}})
	if !found.OK() {
		r.log.Error().Str("collection", collection).Str("message", found.Message).Msg("find items to delete failed")
		return nil, false
	}
	if len(found.Results) == 0 {
		return nil, true
	}

	ids := make(bson.A, 0, len(found.Results))
	var files []string
	for _, doc := range found.Results {
		ids = append(ids, doc["_id"])
		if f := docstore.String(doc, "file"); f != "" {
			files = append(files, f)
		}
	}
	del := r.docs.Delete(ctx, collection, bson.M{"_id": bson.M{"$in": ids}})
	if !del.OK() {
		r.log.Error().Str("collection", collection).Str("message", del.Message).Msg("delete items failed")
		return nil, false
	}
	r.log.Info().Str("collection", collection).Int64("deleted", del.Number).Msg("items deleted")
	return files, true
}
