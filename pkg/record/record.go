// Package record declares the news record extracted from archive listing pages
// and the field schema shared by the extraction request and the CSV writer.
package record

import (
	"encoding/json"
	"strings"
)

// Record is one news item from a listing page.
type Record struct {
	Title string `json:"Title"`
	Time  string `json:"Time"`
	Link  string `json:"Link"`
}

// Field describes one column of the record schema.
type Field struct {
	// Name is the key used both in LLM output objects and as the CSV header.
	Name string

	// Description is handed to the language model as the field instruction.
	Description string
}

// Fields is the ordered record schema. Column order in the CSV output and
// property order in the extraction schema both follow this slice.
var Fields = []Field{
	{Name: "Title", Description: "The title of the news"},
	{Name: "Time", Description: "The time of the news"},
	{Name: "Link", Description: "The link of the news, as an absolute URL"},
}

// Header returns the field names in schema order.
func Header() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}

// Values returns the record values in schema order.
func (r Record) Values() []string {
	values := make([]string, len(Fields))
	for i, f := range Fields {
		values[i] = r.Get(f.Name)
	}
	return values
}

// Get returns the value of a named field, or "" for unknown names.
func (r Record) Get(name string) string {
	switch name {
	case "Title":
		return r.Title
	case "Time":
		return r.Time
	case "Link":
		return r.Link
	default:
		return ""
	}
}

// FromValues builds a record from schema-ordered values.
// Missing trailing values stay empty.
func FromValues(values []string) Record {
	var r Record
	for i, f := range Fields {
		if i >= len(values) {
			break
		}
		r.set(f.Name, values[i])
	}
	return r
}

// FromMap builds a record from a loosely typed extraction object.
// Field names match case-insensitively; absent or non-string values become "".
func FromMap(m map[string]any) Record {
	var r Record
	for key, raw := range m {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		for _, f := range Fields {
			if strings.EqualFold(key, f.Name) {
				r.set(f.Name, strings.TrimSpace(s))
			}
		}
	}
	return r
}

func (r *Record) set(name, value string) {
	switch name {
	case "Title":
		r.Title = value
	case "Time":
		r.Time = value
	case "Link":
		r.Link = value
	}
}

type jsonProperty struct {
	Type        string `json:"type"`
	Default     string `json:"default"`
	Description string `json:"description"`
	Title       string `json:"title"`
}

// JSONSchema renders the schema of a single record as a JSON Schema object.
// Properties are emitted in schema order.
func JSONSchema() string {
	var b strings.Builder
	b.WriteString(`{"title":"NewsResult","type":"object","properties":{`)
	for i, f := range Fields {
		if i > 0 {
			b.WriteByte(',')
		}
		name, _ := json.Marshal(f.Name)
		prop, _ := json.Marshal(jsonProperty{
			Type:        "string",
			Default:     "",
			Description: f.Description,
			Title:       f.Name,
		})
		b.Write(name)
		b.WriteByte(':')
		b.Write(prop)
	}
	b.WriteString(`}}`)
	return b.String()
}
