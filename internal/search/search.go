package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// Address is where search requests are broadcast to every provider handler.
	Address = "search.resources"
	// ReplyTimeout bounds the delivery of one provider's reply.
	ReplyTimeout  = 5 * time.Second
	DefaultLocale = "fr"
)

// ReplyAddress is the address a requester listens on for searchID.
func ReplyAddress(searchID string) string {
	return "search." + searchID
}

// Words accepts either a JSON array of terms or a single space separated string.
type Words []string

func (w *Words) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*w = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("searchWords: %w", err)
	}
	*w = strings.Fields(s)
	return nil
}

// Request is the inbound search envelope.
type Request struct {
	SearchWords   Words    `json:"searchWords"`
	UserID        string   `json:"userId"`
	Page          int      `json:"page"`
	Limit         int      `json:"limit"`
	SearchID      string   `json:"searchId"`
	GroupIDs      []string `json:"groupIds"`
	ColumnsHeader []string `json:"columnsHeader"`
	AppFilters    []string `json:"appFilters"`
	Locale        string   `json:"locale"`
}

// ParseRequest decodes raw and fills defaults for absent fields.
func ParseRequest(raw []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(raw, &r); err != nil {
		return Request{}, fmt.Errorf("parse search request: %w", err)
	}
	r.applyDefaults()
	return r, nil
}

func (r *Request) applyDefaults() {
	if r.SearchWords == nil {
		r.SearchWords = Words{}
	}
	if r.GroupIDs == nil {
		r.GroupIDs = []string{}
	}
	if r.ColumnsHeader == nil {
		r.ColumnsHeader = []string{}
	}
	if r.AppFilters == nil {
		r.AppFilters = []string{}
	}
	if r.Locale == "" {
		r.Locale = DefaultLocale
	}
}

// Query is what a provider receives.
type Query struct {
	AppFilters    []string
	UserID        string
	GroupIDs      []string
	SearchWords   []string
	Page          int
	Limit         int
	ColumnsHeader []string
	Locale        string
}

func (r Request) Query() Query {
	return Query{
		AppFilters:    r.AppFilters,
		UserID:        r.UserID,
		GroupIDs:      r.GroupIDs,
		SearchWords:   r.SearchWords,
		Page:          r.Page,
		Limit:         r.Limit,
		ColumnsHeader: r.ColumnsHeader,
		Locale:        r.Locale,
	}
}

// Offset is the index of the first hit of the requested page.
func (q Query) Offset() int {
	if q.Page <= 0 || q.Limit <= 0 {
		return 0
	}
	return q.Page * q.Limit
}

// Allows reports whether app passes the application filter.
func (q Query) Allows(app string) bool {
	if len(q.AppFilters) == 0 {
		return true
	}
	for _, f := range q.AppFilters {
		if strings.EqualFold(f, app) {
			return true
		}
	}
	return false
}

// Provider searches one application's resources.
type Provider interface {
	Name() string
	SearchResource(ctx context.Context, q Query) ([]map[string]any, error)
}

// Reply is what a handler sends back to the requester.
type Reply struct {
	Application string           `json:"application"`
	Results     []map[string]any `json:"results"`
}

// ResourceColumns is the order in which resource fields fill columnsHeader.
var ResourceColumns = []string{"title", "description", "modified", "ownerDisplayName", "ownerId", "url"}

// Resource is one searchable item as indexed by the search backends.
type Resource struct {
	ID               string    `json:"id"`
	Application      string    `json:"application"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	OwnerID          string    `json:"ownerId"`
	OwnerDisplayName string    `json:"ownerDisplayName"`
	Modified         time.Time `json:"modified"`
	URL              string    `json:"url"`
	SharedUserIDs    []string  `json:"sharedUserIds"`
	SharedGroupIDs   []string  `json:"sharedGroupIds"`
}

// Row renders r under the caller's column names, positionally mapped onto
// ResourceColumns. Without columns the default names are used.
func (r Resource) Row(columns []string) map[string]any {
	values := []any{r.Title, r.Description, r.Modified, r.OwnerDisplayName, r.OwnerID, r.URL}
	if len(columns) == 0 {
		columns = ResourceColumns
	}
	row := make(map[string]any, len(columns))
	for i, c := range columns {
		if i >= len(values) {
			break
		}
		row[c] = values[i]
	}
	return row
}
