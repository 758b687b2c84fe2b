// Package timeline stores notification events and serves them per recipient.
package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgu123/entcore/internal/docstore"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	Collection = "timeline"
	// MaxPage bounds the number of events returned by one Get.
	MaxPage = 100
)

// Fields is the whitelist of attributes persisted by Add.
var Fields = []string{
	"resource", "sender", "message", "type", "recipients", "comments",
	"add-comment", "archive", "date", "params", "sub-resource", "event-type",
}

var projection = bson.M{
	"message": 1, "params": 1, "date": 1, "sender": 1, "recipients.$": 1, "comments": 1,
	"type": 1, "event-type": 1, "resource": 1, "sub-resource": 1, "add-comment": 1,
}

const eventSchema = `{
  "type": "object",
  "required": ["message", "type"],
  "properties": {
    "message": {"type": ["string", "object"]},
    "type": {"type": "string", "minLength": 1},
    "event-type": {"type": "string"},
    "recipients": {
      "type": "array",
      "items": {"type": "object", "required": ["userId"], "properties": {"userId": {"type": "string"}}}
    }
  }
}`

// User identifies the reader of a timeline.
type User struct {
	ID         string `json:"userId"`
	ExternalID string `json:"externalId,omitempty"`
}

// Store implements the notification event store over a document gateway.
type Store struct {
	docs   docstore.Gateway
	schema *jsonschema.Schema
	log    zerolog.Logger
	now    func() time.Time

	pending sync.WaitGroup
}

func NewStore(docs docstore.Gateway, log zerolog.Logger) (*Store, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	return &Store{
		docs:   docs,
		schema: schema,
		log:    log.With().Str("module", Collection).Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(eventSchema))
	if err != nil {
		return nil, fmt.Errorf("parse event schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("event.json", doc); err != nil {
		return nil, fmt.Errorf("add event schema: %w", err)
	}
	schema, err := c.Compile("event.json")
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	return schema, nil
}

// Add keeps the whitelisted, non-null attributes of event and saves it,
// stamping the current date when none is given.
func (s *Store) Add(ctx context.Context, event map[string]any) docstore.Result {
	doc, err := s.validAndGet(event)
	if err != nil {
		s.log.Debug().Err(err).Msg("event rejected")
		return docstore.InvalidArguments()
	}
	if v, ok := doc["date"]; ok {
		at, err := eventDate(v)
		if err != nil {
			s.log.Debug().Err(err).Msg("event rejected")
			return docstore.InvalidArguments()
		}
		doc["date"] = at
	} else {
		doc["date"] = s.now()
	}
	res := s.docs.Save(ctx, Collection, doc)
	if !res.OK() {
		s.log.Error().Str("collection", Collection).Str("message", res.Message).Msg("save event failed")
	}
	return res
}

// eventDate reads a date given as a time, an RFC3339 string, epoch
// milliseconds or an extended JSON {"$date": ...} document.
func eventDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case bson.DateTime:
		return t.Time().UTC(), nil
	case string:
		at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t))
		if err != nil {
			return time.Time{}, fmt.Errorf("date: %w", err)
		}
		return at.UTC(), nil
	case float64:
		return time.UnixMilli(int64(t)).UTC(), nil
	case int64:
		return time.UnixMilli(t).UTC(), nil
	case int:
		return time.UnixMilli(int64(t)).UTC(), nil
	case json.Number:
		ms, err := t.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("date: %w", err)
		}
		return time.UnixMilli(ms).UTC(), nil
	case map[string]any:
		if inner, ok := t["$date"]; ok {
			return eventDate(inner)
		}
	case bson.M:
		if inner, ok := t["$date"]; ok {
			return eventDate(inner)
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %v", v)
}

func (s *Store) validAndGet(event map[string]any) (bson.M, error) {
	if event == nil {
		return nil, fmt.Errorf("nil event")
	}
	doc := bson.M{}
	for _, f := range Fields {
		if v, ok := event[f]; ok && v != nil {
			doc[f] = v
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if err := s.schema.Validate(inst); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get returns the page of past events addressed to user, newest first.
// Once the page is read, the user's unread markers on exactly those events
// are cleared in the background.
func (s *Store) Get(ctx context.Context, user User, types []string, offset, limit int, restriction map[string][]string) docstore.Result {
	recipient := strings.TrimSpace(user.ID)
	if recipient == "" {
		return docstore.InvalidArguments()
	}

	query := bson.M{"date": bson.M{"$lt": s.now()}}
	if ext := strings.TrimSpace(user.ExternalID); ext == "" {
		query["recipients.userId"] = recipient
	} else {
		query["recipients.userId"] = bson.M{"$in": bson.A{recipient, ext}}
	}
	switch len(types) {
	case 0:
	case 1:
		query["type"] = types[0]
	default:
		or := make(bson.A, 0, len(types))
		for _, t := range types {
			or = append(or, bson.M{"type": t})
		}
		query["$or"] = or
	}
	if nor := restrictionClauses(restriction); len(nor) > 0 {
		query["$nor"] = nor
	}

	res := s.docs.Find(ctx, Collection, query, docstore.FindOptions{
		Sort:       bson.D{{Key: "date", Value: -1}},
		Projection: projection,
		Offset:     offset,
		Limit:      limit,
		Cap:        MaxPage,
	})
	if !res.OK() {
		s.log.Error().Str("collection", Collection).Str("user", recipient).Str("message", res.Message).Msg("find events failed")
		return res
	}
	s.markAsRead(ctx, res.Results, user)
	return res
}

func restrictionClauses(restriction map[string][]string) bson.A {
	var nor bson.A
	for typ, eventTypes := range restriction {
		for _, et := range eventTypes {
			nor = append(nor, bson.M{"type": typ, "event-type": et})
		}
	}
	return nor
}

func (s *Store) markAsRead(ctx context.Context, events []bson.M, user User) {
	recipient := strings.TrimSpace(user.ID)
	ids := make(bson.A, 0, len(events))
	for _, e := range events {
		if id, ok := e["_id"]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	filter := bson.M{
		"_id":        bson.M{"$in": ids},
		"recipients": bson.M{"$elemMatch": bson.M{"userId": recipient, "unread": 1}},
	}
	if ext := strings.TrimSpace(user.ExternalID); ext != "" {
		filter["recipients"] = bson.M{"$elemMatch": bson.M{"userId": bson.M{"$in": bson.A{recipient, ext}}, "unread": 1}}
	}
	update := bson.M{"$set": bson.M{"recipients.$.unread": 0}}

	bg := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(bg, 10*time.Second)
		defer cancel()
		res := s.docs.Update(ctx, Collection, filter, update, true)
		if !res.OK() {
			s.log.Error().Str("user", recipient).Int("events", len(ids)).Str("message", res.Message).Msg("mark events as read failed")
			return
		}
		s.log.Debug().Str("user", recipient).Int64("updated", res.Number).Msg("events marked as read")
	}()
}

// Flush waits for background read-marker updates.
func (s *Store) Flush() {
	s.pending.Wait()
}

// Delete removes every event about resource.
func (s *Store) Delete(ctx context.Context, resource string) docstore.Result {
	return s.deleteBy(ctx, "resource", resource)
}

// DeleteSubResource removes every event about the sub-resource.
func (s *Store) DeleteSubResource(ctx context.Context, subResource string) docstore.Result {
	return s.deleteBy(ctx, "sub-resource", subResource)
}

func (s *Store) deleteBy(ctx context.Context, field, value string) docstore.Result {
	if strings.TrimSpace(value) == "" {
		return docstore.InvalidArguments()
	}
	res := s.docs.Delete(ctx, Collection, bson.M{field: value})
	if !res.OK() {
		s.log.Error().Str(field, value).Str("message", res.Message).Msg("delete events failed")
	}
	return res
}

// ListTypes returns the distinct event types, or an empty list when the
// store cannot answer.
func (s *Store) ListTypes(ctx context.Context) []any {
	res := s.docs.Distinct(ctx, Collection, "type", nil)
	if !res.OK() {
		s.log.Warn().Str("message", res.Message).Msg("list types failed")
		return []any{}
	}
	if res.Values == nil {
		return []any{}
	}
	return res.Values
}
