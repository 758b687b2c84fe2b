package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const idxResources = "entcore_resources"

// Meili searches the shared resource index of Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	log     zerolog.Logger
}

// NewMeili creates a Meilisearch client and configures the index. An
// unreachable server is tolerated; the health loop picks it up later.
func NewMeili(url, apiKey string, log zerolog.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
		log:    log.With().Str("component", "meilisearch").Logger(),
	}

	if _, err := client.Health(); err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxResources,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug().Err(err).Msg("create index (may already exist)")
	}

	index := m.client.Index(idxResources)
	filterable := []interface{}{"application", "ownerId", "sharedUserIds", "sharedGroupIds"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn().Err(err).Msg("update filterable attributes")
	}
	searchable := []string{"title", "description", "ownerDisplayName"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn().Err(err).Msg("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info().Msg("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search returns the rows of the resources q may see.
func (m *Meili) Search(_ context.Context, q Query) ([]map[string]any, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}
	sr := &meili.SearchRequest{
		IndexUID: idxResources,
		Query:    strings.Join(q.SearchWords, " "),
		Limit:    limit,
		Offset:   int64(q.Offset()),
		Filter:   meiliFilters(q),
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	rows := make([]map[string]any, 0)
	for _, res := range resp.Results {
		for _, hit := range res.Hits {
			rows = append(rows, hitToResource(hit).Row(q.ColumnsHeader))
		}
	}
	return rows, nil
}

func meiliFilters(q Query) []string {
	access := []string{fmt.Sprintf("ownerId = %q", q.UserID), fmt.Sprintf("sharedUserIds = %q", q.UserID)}
	if len(q.GroupIDs) > 0 {
		access = append(access, fmt.Sprintf("sharedGroupIds IN [%s]", quoteAll(q.GroupIDs)))
	}
	filters := []string{"(" + strings.Join(access, " OR ") + ")"}
	if len(q.AppFilters) > 0 {
		filters = append(filters, fmt.Sprintf("application IN [%s]", quoteAll(q.AppFilters)))
	}
	return filters
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}

func hitToResource(hit meili.Hit) Resource {
	r := Resource{
		ID:               decodeString(hit, "id"),
		Application:      decodeString(hit, "application"),
		Title:            decodeString(hit, "title"),
		Description:      decodeString(hit, "description"),
		OwnerID:          decodeString(hit, "ownerId"),
		OwnerDisplayName: decodeString(hit, "ownerDisplayName"),
		URL:              decodeString(hit, "url"),
	}
	if raw, ok := hit["modified"]; ok {
		_ = json.Unmarshal(raw, &r.Modified)
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// IndexResources adds or replaces resources in the index.
func (m *Meili) IndexResources(resources []Resource) error {
	if len(resources) == 0 {
		return nil
	}
	_, err := m.client.Index(idxResources).AddDocuments(resources, nil)
	return err
}

// DeleteResources removes resources from the index.
func (m *Meili) DeleteResources(ids []string) error {
	index := m.client.Index(idxResources)
	for _, id := range ids {
		if _, err := index.DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("delete resource %s: %w", id, err)
		}
	}
	return nil
}
