package session

import (
	"reflect"
	"testing"
	"time"
)

func TestStripAbsent(t *testing.T) {
	when := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	var nilSlice []map[string]any
	var nilPtr *time.Time

	in := map[string]any{
		"nil":        nil,
		"nil_ptr":    nilPtr,
		"nil_slice":  nilSlice,
		"zero_time":  time.Time{},
		"time":       when,
		"empty_str":  "",
		"empty_list": []any{},
		"count":      int64(0),
		"nested": map[string]any{
			"keep": "v",
			"drop": nil,
		},
		"list": []any{"a", nil, map[string]any{"x": nil, "y": 1}},
	}

	out := stripAbsent(in)

	for _, absent := range []string{"nil", "nil_ptr", "nil_slice", "zero_time"} {
		if _, ok := out[absent]; ok {
			t.Fatalf("%q should be stripped", absent)
		}
	}
	if out["time"] != when {
		t.Fatalf("time = %v", out["time"])
	}
	if v, ok := out["empty_str"]; !ok || v != "" {
		t.Fatal("empty strings are real values and must stay")
	}
	if v, ok := out["empty_list"].([]any); !ok || len(v) != 0 {
		t.Fatalf("empty_list = %v", out["empty_list"])
	}
	if out["count"] != int64(0) {
		t.Fatalf("count = %v", out["count"])
	}

	nested := out["nested"].(map[string]any)
	if nested["keep"] != "v" {
		t.Fatalf("nested = %+v", nested)
	}
	if _, ok := nested["drop"]; ok {
		t.Fatal("nested nil should be stripped")
	}

	want := []any{"a", map[string]any{"y": 1}}
	if !reflect.DeepEqual(out["list"], want) {
		t.Fatalf("list = %v, want %v", out["list"], want)
	}
}

func TestStripAbsentTypedSlices(t *testing.T) {
	in := map[string]any{
		"maps":    []map[string]any{{"a": 1}, {"b": nil}},
		"strings": []string{"x", ""},
	}
	out := stripAbsent(in)

	maps := out["maps"].([]any)
	if len(maps) != 2 {
		t.Fatalf("maps = %v", maps)
	}
	if _, ok := maps[1].(map[string]any)["b"]; ok {
		t.Fatal("nested nil inside typed slice should be stripped")
	}

	strs := out["strings"].([]any)
	if len(strs) != 2 || strs[0] != "x" || strs[1] != "" {
		t.Fatalf("strings = %v", strs)
	}
}

func TestStripAbsentLeavesInputAlone(t *testing.T) {
	in := map[string]any{"a": nil, "b": "keep"}
	_ = stripAbsent(in)

	if _, ok := in["a"]; !ok {
		t.Fatal("input map should not be mutated")
	}
}
