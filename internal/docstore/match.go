package docstore

import (
	"fmt"
	"regexp"
	"strings"
)

var valueOperators = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true, "$exists": true, "$regex": true, "$options": true,
	"$elemMatch": true, "$size": true,
}

// matches evaluates a query document against doc. Both are expected to be normalized.
func matches(doc map[string]any, filter map[string]any) (bool, error) {
	for key, cond := range filter {
		var (
			ok  bool
			err error
		)
		switch key {
		case "$or":
			ok, err = matchAny(doc, cond)
		case "$nor":
			ok, err = matchAny(doc, cond)
			ok = !ok
		case "$and":
			ok, err = matchAll(doc, cond)
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("unsupported query operator %s", key)
			}
			ok, err = matchField(doc, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchAny(doc map[string]any, cond any) (bool, error) {
	clauses, ok := asSlice(cond)
	if !ok {
		return false, fmt.Errorf("logical operator expects an array")
	}
	for _, c := range clauses {
		sub, ok := c.(map[string]any)
		if !ok {
			return false, fmt.Errorf("logical operator clause must be a document")
		}
		hit, err := matches(doc, sub)
		if err != nil {
			return false, err
		}
		if hit {
			return true, nil
		}
	}
	return false, nil
}

func matchAll(doc map[string]any, cond any) (bool, error) {
	clauses, ok := asSlice(cond)
	if !ok {
		return false, fmt.Errorf("$and expects an array")
	}
	for _, c := range clauses {
		sub, ok := c.(map[string]any)
		if !ok {
			return false, fmt.Errorf("$and clause must be a document")
		}
		hit, err := matches(doc, sub)
		if err != nil || !hit {
			return false, err
		}
	}
	return true, nil
}

func isOperatorDoc(cond any) (map[string]any, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !valueOperators[k] {
			return nil, false
		}
	}
	return m, true
}

func matchField(doc map[string]any, path string, cond any) (bool, error) {
	values := resolve(doc, strings.Split(path, "."))
	if ops, ok := isOperatorDoc(cond); ok {
		return matchOperators(values, ops)
	}
	return anyEqual(values, cond), nil
}

// anyEqual reports whether any candidate equals want, or is an array holding want.
func anyEqual(values []any, want any) bool {
	for _, v := range values {
		if equal(v, want) {
			return true
		}
		if arr, ok := v.([]any); ok {
			for _, elem := range arr {
				if equal(elem, want) {
					return true
				}
			}
		}
	}
	if want == nil && len(values) == 0 {
		return true
	}
	return false
}

// expand flattens one level of arrays for scalar comparisons.
func expand(values []any) []any {
	var out []any
	for _, v := range values {
		if arr, ok := v.([]any); ok {
			out = append(out, arr...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func matchOperators(values []any, ops map[string]any) (bool, error) {
	for op, arg := range ops {
		ok, err := matchOperator(values, op, arg, ops)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOperator(values []any, op string, arg any, ops map[string]any) (bool, error) {
	switch op {
	case "$eq":
		return anyEqual(values, arg), nil
	case "$ne":
		return !anyEqual(values, arg), nil
	case "$in":
		list, ok := asSlice(arg)
		if !ok {
			return false, fmt.Errorf("$in expects an array")
		}
		for _, want := range list {
			if anyEqual(values, want) {
				return true, nil
			}
		}
		return false, nil
	case "$nin":
		list, ok := asSlice(arg)
		if !ok {
			return false, fmt.Errorf("$nin expects an array")
		}
		for _, want := range list {
			if anyEqual(values, want) {
				return false, nil
			}
		}
		return true, nil
	case "$gt", "$gte", "$lt", "$lte":
		for _, v := range expand(values) {
			c, ok := compare(v, arg)
			if !ok {
				continue
			}
			if (op == "$gt" && c > 0) || (op == "$gte" && c >= 0) ||
				(op == "$lt" && c < 0) || (op == "$lte" && c <= 0) {
				return true, nil
			}
		}
		return false, nil
	case "$exists":
		want, _ := arg.(bool)
		return (len(values) > 0) == want, nil
	case "$size":
		n, ok := normalize(arg).(float64)
		if !ok {
			return false, fmt.Errorf("$size expects a number")
		}
		for _, v := range values {
			if arr, ok := v.([]any); ok && float64(len(arr)) == n {
				return true, nil
			}
		}
		return false, nil
	case "$regex":
		pattern, ok := arg.(string)
		if !ok {
			return false, fmt.Errorf("$regex expects a string")
		}
		if flags, _ := ops["$options"].(string); strings.Contains(flags, "i") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("$regex: %w", err)
		}
		for _, v := range expand(values) {
			if s, ok := v.(string); ok && re.MatchString(s) {
				return true, nil
			}
		}
		return false, nil
	case "$options":
		return true, nil
	case "$elemMatch":
		for _, v := range values {
			arr, ok := v.([]any)
			if !ok {
				continue
			}
			for _, elem := range arr {
				hit, err := elemMatches(elem, arg)
				if err != nil {
					return false, err
				}
				if hit {
					return true, nil
				}
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unsupported query operator %s", op)
}

// elemMatches evaluates an $elemMatch condition against one array element.
func elemMatches(elem, cond any) (bool, error) {
	if ops, ok := isOperatorDoc(cond); ok {
		return matchOperators([]any{elem}, ops)
	}
	sub, ok := cond.(map[string]any)
	if !ok {
		return equal(elem, cond), nil
	}
	doc, ok := elem.(map[string]any)
	if !ok {
		return false, nil
	}
	return matches(doc, sub)
}
