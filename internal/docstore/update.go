package docstore

import (
	"fmt"
	"strconv"
	"strings"
)

// applyUpdate mutates doc according to update. filter is needed to resolve
// the positional "$" operator. It reports whether doc changed.
func applyUpdate(doc, filter, update map[string]any) (bool, error) {
	before := deepCopy(doc)
	for op, arg := range update {
		fields, ok := arg.(map[string]any)
		if !ok {
			return false, fmt.Errorf("%s expects a document", op)
		}
		for path, value := range fields {
			resolved, err := resolvePositional(doc, filter, path)
			if err != nil {
				return false, err
			}
			switch op {
			case "$set":
				setPath(doc, resolved, value)
			case "$unset":
				unsetPath(doc, resolved)
			case "$inc":
				cur, _ := lookupIndexed(doc, resolved)
				a, _ := normalize(cur).(float64)
				b, ok := normalize(value).(float64)
				if !ok {
					return false, fmt.Errorf("$inc expects a number")
				}
				setPath(doc, resolved, a+b)
			case "$addToSet":
				if err := pushValues(doc, resolved, value, true); err != nil {
					return false, err
				}
			case "$push":
				if err := pushValues(doc, resolved, value, false); err != nil {
					return false, err
				}
			case "$pull":
				if err := pullValues(doc, resolved, value); err != nil {
					return false, err
				}
			default:
				return false, fmt.Errorf("unsupported update operator %s", op)
			}
		}
	}
	return !equal(before, doc), nil
}

func eachValues(value any) []any {
	if m, ok := value.(map[string]any); ok {
		if each, ok := m["$each"]; ok {
			list, _ := asSlice(each)
			return list
		}
	}
	return []any{value}
}

func pushValues(doc map[string]any, path string, value any, unique bool) error {
	cur, exists := lookupIndexed(doc, path)
	var arr []any
	if exists && cur != nil {
		var ok bool
		arr, ok = cur.([]any)
		if !ok {
			return fmt.Errorf("field %s is not an array", path)
		}
	}
	for _, v := range eachValues(value) {
		if unique && containsValue(arr, v) {
			continue
		}
		arr = append(arr, v)
	}
	if arr == nil {
		arr = []any{}
	}
	setPath(doc, path, arr)
	return nil
}

func pullValues(doc map[string]any, path string, cond any) error {
	cur, exists := lookupIndexed(doc, path)
	if !exists || cur == nil {
		return nil
	}
	arr, ok := cur.([]any)
	if !ok {
		return fmt.Errorf("field %s is not an array", path)
	}
	kept := make([]any, 0, len(arr))
	for _, elem := range arr {
		hit, err := elemMatches(elem, cond)
		if err != nil {
			return err
		}
		if !hit {
			kept = append(kept, elem)
		}
	}
	setPath(doc, path, kept)
	return nil
}

func containsValue(arr []any, v any) bool {
	for _, elem := range arr {
		if equal(elem, v) {
			return true
		}
	}
	return false
}

// resolvePositional replaces a ".$" segment with the index of the first array
// element matched by the filter.
func resolvePositional(doc, filter map[string]any, path string) (string, error) {
	idx := strings.Index(path, ".$")
	if idx < 0 || (len(path) > idx+2 && path[idx+2] != '.') {
		return path, nil
	}
	arrayPath := path[:idx]
	i, ok, err := positionalIndex(doc, filter, arrayPath)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("positional operator did not find the match needed from the query on %s", arrayPath)
	}
	return fmt.Sprintf("%s.%d%s", arrayPath, i, path[idx+2:]), nil
}

// positionalIndex finds the first element of the array at arrayPath satisfying
// the filter's conditions on that array.
func positionalIndex(doc, filter map[string]any, arrayPath string) (int, bool, error) {
	cur, ok := lookup(doc, arrayPath)
	if !ok {
		return 0, false, nil
	}
	arr, ok := cur.([]any)
	if !ok {
		return 0, false, nil
	}
	for i, elem := range arr {
		hit, err := elementSatisfies(elem, filter, arrayPath)
		if err != nil {
			return 0, false, err
		}
		if hit {
			return i, true, nil
		}
	}
	return 0, false, nil
}

func elementSatisfies(elem any, filter map[string]any, arrayPath string) (bool, error) {
	constrained := false
	for key, cond := range filter {
		switch {
		case key == arrayPath:
			constrained = true
			if ops, ok := isOperatorDoc(cond); ok {
				if em, ok := ops["$elemMatch"]; ok {
					hit, err := elemMatches(elem, em)
					if err != nil || !hit {
						return false, err
					}
					continue
				}
				hit, err := matchOperators([]any{elem}, ops)
				if err != nil || !hit {
					return false, err
				}
				continue
			}
			if !equal(elem, cond) {
				return false, nil
			}
		case strings.HasPrefix(key, arrayPath+"."):
			constrained = true
			sub, ok := elem.(map[string]any)
			if !ok {
				return false, nil
			}
			hit, err := matchField(sub, strings.TrimPrefix(key, arrayPath+"."), cond)
			if err != nil || !hit {
				return false, err
			}
		}
	}
	return constrained, nil
}

// lookupIndexed is lookup with support for numeric array indexes.
func lookupIndexed(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, p := range strings.Split(path, ".") {
		switch t := cur.(type) {
		case map[string]any:
			v, ok := t[p]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, ok := arrayIndex(p, len(t))
			if !ok {
				return nil, false
			}
			cur = t[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for i, p := range parts {
		last := i == len(parts)-1
		switch t := cur.(type) {
		case map[string]any:
			if last {
				t[p] = normalize(value)
				return
			}
			next, ok := t[p]
			if !ok || next == nil {
				next = map[string]any{}
				t[p] = next
			}
			cur = next
		case []any:
			idx, ok := arrayIndex(p, len(t))
			if !ok {
				return
			}
			if last {
				t[idx] = normalize(value)
				return
			}
			cur = t[idx]
		default:
			return
		}
	}
}

func unsetPath(doc map[string]any, path string) {
	parts := strings.Split(path, ".")
	parent, ok := lookupIndexed(doc, strings.Join(parts[:len(parts)-1], "."))
	if len(parts) == 1 {
		parent, ok = doc, true
	}
	if !ok {
		return
	}
	if m, ok := parent.(map[string]any); ok {
		delete(m, parts[len(parts)-1])
	}
}

func arrayIndex(p string, n int) (int, bool) {
	i, err := strconv.Atoi(p)
	if err != nil {
		return 0, false
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}
