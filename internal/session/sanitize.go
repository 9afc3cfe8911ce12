package session

import (
	"fmt"
	"reflect"
	"time"
)

// stripAbsent removes values Firestore rejects or that mean "not set":
// nils, nil pointers and slices, and zero timestamps, recursing through
// nested maps and slices. Empty strings and empty collections are real
// values and stay.
func stripAbsent(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if cleaned, ok := sanitizeValue(v); ok {
			out[k] = cleaned
		}
	}
	return out
}

func sanitizeValue(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return nil, false
		}
		return t, true
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil, false
		}
		return *t, true
	case map[string]any:
		return stripAbsent(t), true
	case []any:
		return sanitizeSlice(reflect.ValueOf(t))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, false
		}
		return sanitizeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return nil, false
		}
		return sanitizeSlice(rv)
	case reflect.Map:
		if rv.IsNil() {
			return nil, false
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			if cleaned, ok := sanitizeValue(iter.Value().Interface()); ok {
				out[fmt.Sprint(iter.Key().Interface())] = cleaned
			}
		}
		return out, true
	}
	return v, true
}

func sanitizeSlice(rv reflect.Value) (any, bool) {
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if cleaned, ok := sanitizeValue(rv.Index(i).Interface()); ok {
			out = append(out, cleaned)
		}
	}
	return out, true
}
