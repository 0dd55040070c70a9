package protocol

import (
	"strings"

	"github.com/tidwall/sjson"
)

// Record is one normalized result unit. Keys keep the order they were
// first set in, matching the server's column order.
type Record struct {
	keys   []string
	fields map[string]interface{}
}

func NewRecord() *Record {
	return &Record{
		fields: map[string]interface{}{},
	}
}

// Set stores a field, appending the key on first use. Setting an
// existing key overwrites the value but keeps its position.
func (r *Record) Set(key string, value interface{}) {
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = value
}

func (r *Record) Get(key string) (interface{}, bool) {
	value, ok := r.fields[key]
	return value, ok
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	return r.keys
}

func (r *Record) Len() int {
	return len(r.keys)
}

// Map returns the fields as a plain map. Key order is lost.
func (r *Record) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// JSON renders the record as a JSON object with fields in key order.
func (r *Record) JSON() string {
	doc := "{}"

	for _, key := range r.keys {
		doc, _ = sjson.Set(doc, escapePath(key), r.fields[key])
	}

	return doc
}

// escapePath neutralizes path metacharacters so a key like "a.b" stays
// a single literal key instead of nesting.
func escapePath(key string) string {
	var b strings.Builder

	for _, c := range key {
		switch c {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(c)
	}

	return b.String()
}
