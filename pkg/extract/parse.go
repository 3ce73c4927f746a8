package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Sternrassler/archive-crawler/pkg/record"
)

// ParseRecords decodes model output into records.
//
// Accepted shapes: a JSON array of objects, the same wrapped in a markdown
// code fence, a single record object, or a wrapper object holding the items
// in one of its properties. Every object item becomes a record, with missing
// or non-string fields set to ""; items that are not objects are dropped.
func ParseRecords(text string) ([]record.Record, error) {
	payload := stripFence(strings.TrimSpace(text))
	if payload == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}

	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		// Models sometimes wrap the array in prose; fall back to the outermost brackets.
		inner, ok := outerArray(payload)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		if err := json.Unmarshal([]byte(inner), &decoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
	}

	items, err := itemsOf(decoded)
	if err != nil {
		return nil, err
	}

	records := make([]record.Record, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, record.FromMap(obj))
	}
	return records, nil
}

func itemsOf(decoded any) ([]any, error) {
	switch v := decoded.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if isRecordObject(v) {
			return []any{v}, nil
		}
		return wrappedItems(v)
	default:
		return nil, fmt.Errorf("%w: expected array, got %T", ErrMalformedOutput, decoded)
	}
}

// isRecordObject reports whether obj carries any schema field name.
func isRecordObject(obj map[string]any) bool {
	for key := range obj {
		for _, f := range record.Fields {
			if strings.EqualFold(key, f.Name) {
				return true
			}
		}
	}
	return false
}

// wrappedItems picks the item array out of a wrapper object such as
// {"news": [...]}. Properties are visited in key order; the first non-empty
// array holding objects wins, and an object whose arrays are all empty
// yields no items.
func wrappedItems(obj map[string]any) ([]any, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sawArray := false
	for _, k := range keys {
		arr, ok := obj[k].([]any)
		if !ok {
			continue
		}
		sawArray = true
		if holdsObjects(arr) {
			return arr, nil
		}
	}
	if sawArray {
		return []any{}, nil
	}
	return nil, fmt.Errorf("%w: object holds no records", ErrMalformedOutput)
}

func holdsObjects(arr []any) bool {
	for _, item := range arr {
		if _, ok := item.(map[string]any); ok {
			return true
		}
	}
	return false
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func outerArray(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
