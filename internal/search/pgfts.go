package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgu123/entcore/internal/lifecycle"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool used by PgFTS.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgFTS searches the search_resources catalogue with PostgreSQL full-text search.
type PgFTS struct {
	db Querier
}

func NewPgFTS(db Querier) *PgFTS {
	return &PgFTS{db: db}
}

const resourceColumns = `id, application, title, description, owner_id, owner_display_name, modified, url`

// Search returns rows visible to q.UserID that match every search word,
// best ranked first.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]map[string]any, error) {
	text := strings.TrimSpace(strings.Join(q.SearchWords, " "))
	if text == "" {
		return []map[string]any{}, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	groups := q.GroupIDs
	if groups == nil {
		groups = []string{}
	}
	args := []any{text, q.UserID, groups}
	where := `fts @@ plainto_tsquery('simple', $1)
		AND (owner_id = $2 OR $2 = ANY(shared_user_ids) OR shared_group_ids && $3::text[])`
	if len(q.AppFilters) > 0 {
		args = append(args, q.AppFilters)
		where += fmt.Sprintf(" AND application = ANY($%d::text[])", len(args))
	}

	sql := fmt.Sprintf(`SELECT %s
		FROM search_resources
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('simple', $1)) DESC, modified DESC
		LIMIT %d OFFSET %d`, resourceColumns, where, limit, q.Offset())

	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("pgfts scan: %w", err)
		}
		out = append(out, r.Row(q.ColumnsHeader))
	}
	return out, rows.Err()
}

func scanResource(rows pgx.Rows) (Resource, error) {
	var r Resource
	err := rows.Scan(&r.ID, &r.Application, &r.Title, &r.Description, &r.OwnerID, &r.OwnerDisplayName, &r.Modified, &r.URL)
	return r, err
}

// Upsert writes r into the catalogue.
func (p *PgFTS) Upsert(ctx context.Context, r Resource) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO search_resources (id, application, title, description, owner_id, owner_display_name, modified, url, shared_user_ids, shared_group_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			application = EXCLUDED.application,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			owner_id = EXCLUDED.owner_id,
			owner_display_name = EXCLUDED.owner_display_name,
			modified = EXCLUDED.modified,
			url = EXCLUDED.url,
			shared_user_ids = EXCLUDED.shared_user_ids,
			shared_group_ids = EXCLUDED.shared_group_ids`,
		r.ID, r.Application, r.Title, r.Description, r.OwnerID, r.OwnerDisplayName, r.Modified, r.URL,
		nonNilStrings(r.SharedUserIDs), nonNilStrings(r.SharedGroupIDs))
	if err != nil {
		return fmt.Errorf("upsert resource %s: %w", r.ID, err)
	}
	return nil
}

// DeleteOwnedBy removes every resource owned by one of userIDs and returns their ids.
func (p *PgFTS) DeleteOwnedBy(ctx context.Context, userIDs []string) ([]string, error) {
	rows, err := p.db.Query(ctx, `DELETE FROM search_resources WHERE owner_id = ANY($1::text[]) RETURNING id`, nonNilStrings(userIDs))
	if err != nil {
		return nil, fmt.Errorf("delete resources: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RemoveGroups drops each group from the shared groups of every resource and
// records it in old_shared_group_ids. With grantMembers the group's users
// join shared_user_ids so former members keep their visibility. It returns
// the resources that changed, each once.
func (p *PgFTS) RemoveGroups(ctx context.Context, groups []lifecycle.Group, grantMembers bool) ([]Resource, error) {
	changed := make(map[string]Resource)
	order := make([]string, 0)
	for _, g := range groups {
		if g.ID == "" {
			continue
		}
		members := []string{}
		if grantMembers {
			members = nonNilStrings(g.Users)
		}
		rows, err := p.db.Query(ctx, `
			UPDATE search_resources
			SET shared_group_ids = array_remove(shared_group_ids, $1::text),
				old_shared_group_ids = CASE WHEN $1::text = ANY(old_shared_group_ids)
					THEN old_shared_group_ids ELSE array_append(old_shared_group_ids, $1::text) END,
				shared_user_ids = shared_user_ids ||
					ARRAY(SELECT unnest($2::text[]) EXCEPT SELECT unnest(shared_user_ids))
			WHERE $1::text = ANY(shared_group_ids)
			RETURNING `+resourceColumns+`, shared_user_ids, shared_group_ids`, g.ID, members)
		if err != nil {
			return nil, fmt.Errorf("remove group %s: %w", g.ID, err)
		}
		resources, err := collectResources(rows)
		if err != nil {
			return nil, fmt.Errorf("remove group %s: %w", g.ID, err)
		}
		for _, r := range resources {
			if _, seen := changed[r.ID]; !seen {
				order = append(order, r.ID)
			}
			changed[r.ID] = r
		}
	}
	out := make([]Resource, 0, len(order))
	for _, id := range order {
		out = append(out, changed[id])
	}
	return out, nil
}

// LoadAllResources returns the whole catalogue for reindexing.
func (p *PgFTS) LoadAllResources(ctx context.Context) ([]Resource, error) {
	rows, err := p.db.Query(ctx, `SELECT `+resourceColumns+`, shared_user_ids, shared_group_ids FROM search_resources`)
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	return collectResources(rows)
}

func collectResources(rows pgx.Rows) ([]Resource, error) {
	defer rows.Close()
	out := make([]Resource, 0)
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.ID, &r.Application, &r.Title, &r.Description, &r.OwnerID, &r.OwnerDisplayName,
			&r.Modified, &r.URL, &r.SharedUserIDs, &r.SharedGroupIDs); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return out, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
