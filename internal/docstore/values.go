package docstore

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// normalize converts bson containers and numeric types into plain Go values
// (map[string]any, []any, float64) so that documents coming from different
// call sites compare the same way.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeMap(map[string]any(t))
	case map[string]any:
		return normalizeMap(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		return normalizeSlice([]any(t))
	case []any:
		return normalizeSlice(t)
	case []bson.M:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = normalize(m)
		}
		return out
	case []bson.D:
		out := make([]any, len(t))
		for i, d := range t {
			out[i] = normalize(d)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = normalize(m)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case bson.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = normalize(v)
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	m, ok := normalize(v).(map[string]any)
	return m, ok
}

func asSlice(v any) ([]any, bool) {
	s, ok := normalize(v).([]any)
	return s, ok
}

func equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two scalar values of the same kind.
func compare(a, b any) (int, bool) {
	a, b = normalize(a), normalize(b)
	switch ta := a.(type) {
	case float64:
		tb, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case ta < tb:
			return -1, true
		case ta > tb:
			return 1, true
		}
		return 0, true
	case string:
		tb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(ta, tb), true
	case time.Time:
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	return 0, false
}

// sortDocs orders docs by the keys of order; missing values sort first.
func sortDocs(docs []map[string]any, order bson.D) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range order {
			dir := 1
			if n, ok := normalize(key.Value).(float64); ok && n < 0 {
				dir = -1
			}
			vi, iok := lookup(docs[i], key.Key)
			vj, jok := lookup(docs[j], key.Key)
			switch {
			case !iok && !jok:
				continue
			case !iok:
				return dir > 0
			case !jok:
				return dir < 0
			}
			c, ok := compare(vi, vj)
			if !ok || c == 0 {
				continue
			}
			return c*dir < 0
		}
		return false
	})
}

// lookup returns the value at a dotted path without traversing arrays.
func lookup(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// resolve returns every value reachable at a dotted path, descending into
// arrays of sub-documents the way the query language does.
func resolve(v any, parts []string) []any {
	if len(parts) == 0 {
		return []any{v}
	}
	switch t := v.(type) {
	case map[string]any:
		next, ok := t[parts[0]]
		if !ok {
			return nil
		}
		return resolve(next, parts[1:])
	case []any:
		var out []any
		for _, elem := range t {
			if _, ok := elem.(map[string]any); ok {
				out = append(out, resolve(elem, parts)...)
			}
		}
		return out
	}
	return nil
}

func deepCopy(doc map[string]any) map[string]any {
	m, _ := normalize(doc).(map[string]any)
	return m
}

func toBSON(doc map[string]any) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// Doc converts a nested result value (bson.M, bson.D or a plain map) into a map.
func Doc(v any) (map[string]any, bool) {
	return asMap(v)
}

// List converts a nested result value (bson.A or a slice) into a slice.
func List(v any) ([]any, bool) {
	return asSlice(v)
}

// String returns doc[key] when it holds a string.
func String(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}
