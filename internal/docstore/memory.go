package docstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Memory is an in-process Gateway evaluating the subset of the query and
// update language used by the lifecycle handlers and the timeline store.
// It backs local development and the package tests of the handlers.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]map[string]any
	failures    map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		collections: map[string][]map[string]any{},
		failures:    map[string]string{},
	}
}

// FailOn makes every call of op ("find", "save", "update", "delete",
// "distinct") against collection report an error until cleared.
func (m *Memory) FailOn(op, collection, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+":"+collection] = message
}

func (m *Memory) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = map[string]string{}
}

func (m *Memory) failure(op, collection string) (Result, bool) {
	if msg, ok := m.failures[op+":"+collection]; ok {
		return ErrorResult(msg), true
	}
	return Result{}, false
}

// Insert stores docs as-is, assigning ids where missing. It is a seeding helper.
func (m *Memory) Insert(collection string, docs ...bson.M) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		doc := deepCopy(d)
		if _, ok := doc["_id"]; !ok {
			doc["_id"] = uuid.NewString()
		}
		m.collections[collection] = append(m.collections[collection], doc)
	}
}

// All returns a copy of every document of collection in insertion order.
func (m *Memory) All(collection string) []bson.M {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]bson.M, 0, len(m.collections[collection]))
	for _, doc := range m.collections[collection] {
		out = append(out, toBSON(deepCopy(doc)))
	}
	return out
}

// Get returns a copy of the document with the given id.
func (m *Memory) Get(collection string, id any) (bson.M, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.collections[collection] {
		if equal(doc["_id"], id) {
			return toBSON(deepCopy(doc)), true
		}
	}
	return nil, false
}

func (m *Memory) Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) Result {
	if err := ctx.Err(); err != nil {
		return ErrorResult(err.Error())
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if res, failed := m.failure("find", collection); failed {
		return res
	}

	query := deepCopy(filter)
	var hits []map[string]any
	for _, doc := range m.collections[collection] {
		ok, err := matches(doc, query)
		if err != nil {
			return ErrorResult(fmt.Sprintf("find %s: %v", collection, err))
		}
		if ok {
			hits = append(hits, deepCopy(doc))
		}
	}

	sortDocs(hits, opts.Sort)
	if opts.Offset > 0 {
		if opts.Offset >= len(hits) {
			hits = nil
		} else {
			hits = hits[opts.Offset:]
		}
	}
	if limit := opts.effectiveLimit(); limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	res := okResult()
	res.Results = make([]bson.M, 0, len(hits))
	for _, doc := range hits {
		res.Results = append(res.Results, toBSON(project(doc, query, opts.Projection)))
	}
	res.Number = int64(len(res.Results))
	return res
}

func (m *Memory) Save(ctx context.Context, collection string, doc bson.M) Result {
	if err := ctx.Err(); err != nil {
		return ErrorResult(err.Error())
	}
	if doc == nil {
		return InvalidArguments()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if res, failed := m.failure("save", collection); failed {
		return res
	}

	stored := deepCopy(doc)
	id, ok := stored["_id"]
	if !ok || id == nil || id == "" {
		id = uuid.NewString()
		stored["_id"] = id
	}
	docs := m.collections[collection]
	for i, existing := range docs {
		if equal(existing["_id"], id) {
			docs[i] = stored
			res := okResult()
			res.ID = id
			return res
		}
	}
	m.collections[collection] = append(docs, stored)
	res := okResult()
	res.ID = id
	return res
}

func (m *Memory) Update(ctx context.Context, collection string, filter, update bson.M, multi bool) Result {
	if err := ctx.Err(); err != nil {
		return ErrorResult(err.Error())
	}
	if len(update) == 0 {
		return InvalidArguments()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if res, failed := m.failure("update", collection); failed {
		return res
	}

	query := deepCopy(filter)
	changes := deepCopy(update)
	for op := range changes {
		if !strings.HasPrefix(op, "$") {
			return ErrorResult("update document requires atomic operators")
		}
	}

	var modified int64
	for i, doc := range m.collections[collection] {
		ok, err := matches(doc, query)
		if err != nil {
			return ErrorResult(fmt.Sprintf("update %s: %v", collection, err))
		}
		if !ok {
			continue
		}
		working := deepCopy(doc)
		changed, err := applyUpdate(working, query, changes)
		if err != nil {
			return ErrorResult(fmt.Sprintf("update %s: %v", collection, err))
		}
		if changed {
			m.collections[collection][i] = working
			modified++
		}
		if !multi {
			break
		}
	}

	res := okResult()
	res.Number = modified
	return res
}

func (m *Memory) Delete(ctx context.Context, collection string, filter bson.M) Result {
	if err := ctx.Err(); err != nil {
		return ErrorResult(err.Error())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if res, failed := m.failure("delete", collection); failed {
		return res
	}

	query := deepCopy(filter)
	kept := make([]map[string]any, 0, len(m.collections[collection]))
	var deleted int64
	for _, doc := range m.collections[collection] {
		ok, err := matches(doc, query)
		if err != nil {
			return ErrorResult(fmt.Sprintf("delete %s: %v", collection, err))
		}
		if ok {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	m.collections[collection] = kept

	res := okResult()
	res.Number = deleted
	return res
}

func (m *Memory) Distinct(ctx context.Context, collection, field string, filter bson.M) Result {
	if err := ctx.Err(); err != nil {
		return ErrorResult(err.Error())
	}
	if field == "" {
		return InvalidArguments()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if res, failed := m.failure("distinct", collection); failed {
		return res
	}

	query := deepCopy(filter)
	values := make([]any, 0)
	for _, doc := range m.collections[collection] {
		ok, err := matches(doc, query)
		if err != nil {
			return ErrorResult(fmt.Sprintf("distinct %s: %v", collection, err))
		}
		if !ok {
			continue
		}
		for _, v := range expand(resolve(doc, strings.Split(field, "."))) {
			if !containsValue(values, v) {
				values = append(values, v)
			}
		}
	}

	res := okResult()
	res.Values = values
	return res
}

// project keeps the included top-level fields of doc. A "field.$" key keeps
// only the first array element matched by the query.
func project(doc, query map[string]any, projection bson.M) map[string]any {
	if len(projection) == 0 {
		return doc
	}
	out := map[string]any{"_id": doc["_id"]}
	for key, include := range projection {
		if n, ok := normalize(include).(float64); ok && n == 0 {
			if key == "_id" {
				delete(out, "_id")
			}
			continue
		}
		if strings.HasSuffix(key, ".$") {
			arrayPath := strings.TrimSuffix(key, ".$")
			arr, ok := doc[arrayPath].([]any)
			if !ok {
				continue
			}
			if i, found, _ := positionalIndex(doc, query, arrayPath); found {
				out[arrayPath] = []any{arr[i]}
			}
			continue
		}
		top := strings.SplitN(key, ".", 2)[0]
		if v, ok := doc[top]; ok {
			out[top] = v
		}
	}
	return out
}
