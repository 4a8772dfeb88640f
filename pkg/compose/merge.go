package compose

import (
	"reflect"

	"github.com/iziplay/bibref-api/pkg/bib"
)

// MergeBodies deep-merges record bodies field by field:
//
//   - map vs map: recursive key-wise merge
//   - list vs list: union preserving first-seen order, nulls dropped
//   - scalar conflict: both kept, coerced into a deduplicated list
//
// Equal values always collapse to one.
func MergeBodies(bodies []map[string]any) map[string]any {
	merged := map[string]any{}
	for _, body := range bodies {
		for key, value := range body {
			if value == nil {
				continue
			}
			existing, ok := merged[key]
			if !ok {
				merged[key] = value
				continue
			}
			merged[key] = mergeValues(existing, value)
		}
	}
	return merged
}

func mergeValues(a, b any) any {
	if ma, ok := a.(map[string]any); ok {
		if mb, ok := b.(map[string]any); ok {
			return mergeMaps(ma, mb)
		}
	}
	if reflect.DeepEqual(a, b) {
		return a
	}

	_, aList := a.([]any)
	_, bList := b.([]any)
	union := unionLists(toList(a), toList(b))
	if len(union) == 1 && !aList && !bList {
		return union[0]
	}
	return union
}

func mergeMaps(a, b map[string]any) map[string]any {
	merged := make(map[string]any, len(a))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		if v == nil {
			continue
		}
		existing, ok := merged[k]
		if !ok {
			merged[k] = v
			continue
		}
		merged[k] = mergeValues(existing, v)
	}
	return merged
}

func toList(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{v}
}

func unionLists(a, b []any) []any {
	var union []any
	for _, v := range a {
		union = appendUnique(union, v)
	}
	for _, v := range b {
		union = appendUnique(union, v)
	}
	return union
}

func appendUnique(list []any, v any) []any {
	if v == nil {
		return list
	}
	for _, existing := range list {
		if reflect.DeepEqual(existing, v) {
			return list
		}
	}
	return append(list, v)
}

// checkDocidCollisions verifies no two records claim the same non-scoped
// identifier value under different types. Such a collision means two
// distinct bibliographic entities accidentally share an id and must never
// be merged silently.
func checkDocidCollisions(bodies []map[string]any) error {
	claimed := map[string]string{}
	for _, body := range bodies {
		for _, d := range bib.DocidsFromBody(body) {
			if d.Scope != "" || d.ID == "" || d.Type == "" {
				continue
			}
			prev, ok := claimed[d.ID]
			if !ok {
				claimed[d.ID] = d.Type
				continue
			}
			if prev != d.Type {
				return &bib.AmbiguousInputError{ID: d.ID, Types: []string{prev, d.Type}}
			}
		}
	}
	return nil
}
