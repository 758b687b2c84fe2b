package workspace

import (
	"context"
	"regexp"
	"time"

	"github.com/dgu123/entcore/internal/docstore"
	"github.com/dgu123/entcore/internal/search"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// SearchProvider finds workspace documents visible to the searching user
// whose name contains every search word.
type SearchProvider struct {
	docs docstore.Gateway
}

var _ search.Provider = (*SearchProvider)(nil)

func NewSearchProvider(docs docstore.Gateway) *SearchProvider {
	return &SearchProvider{docs: docs}
}

func (p *SearchProvider) Name() string {
	return Module
}

func (p *SearchProvider) SearchResource(ctx context.Context, q search.Query) ([]map[string]any, error) {
	rows := make([]map[string]any, 0)
	if !q.Allows(Module) || len(q.SearchWords) == 0 {
		return rows, nil
	}

	grantees := bson.A{bson.M{"userId": q.UserID}}
	for _, g := range q.GroupIDs {
		grantees = append(grantees, bson.M{"groupId": g})
	}
	words := bson.A{}
	for _, w := range q.SearchWords {
		words = append(words, bson.M{"name": bson.M{"$regex": regexp.QuoteMeta(w), "$options": "i"}})
	}
	filter := bson.M{
		"$or": bson.A{
			bson.M{"owner": q.UserID},
			bson.M{"shared": bson.M{"$elemMatch": bson.M{"$or": grantees}}},
		},
		"$and": words,
		"file":  bson.M{"$exists": true},
	}

	res := p.docs.Find(ctx, DocumentsCollection, filter, docstore.FindOptions{
		Sort:       bson.D{{Key: "modified", Value: -1}},
		Projection: bson.M{"name": 1, "modified": 1, "owner": 1, "ownerName": 1},
		Offset:     q.Offset(),
		Limit:      q.Limit,
	})
	if err := res.Err(); err != nil {
		return nil, err
	}
	for _, doc := range res.Results {
		id, _ := doc["_id"].(string)
		rows = append(rows, search.Resource{
			ID:               id,
			Application:      Module,
			Title:            docstore.String(doc, "name"),
			Modified:         modifiedAt(doc["modified"]),
			OwnerID:          docstore.String(doc, "owner"),
			OwnerDisplayName: docstore.String(doc, "ownerName"),
			URL:              "/workspace/document/" + id,
		}.Row(q.ColumnsHeader))
	}
	return rows, nil
}

func modifiedAt(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case bson.DateTime:
		return t.Time().UTC()
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04.05.000"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}
