// Package models defines shared request, response, and record types.
package models

import "reflect"

// Metadata is the free-form attribute record associated with one stored image.
// Well-known keys: product_id, name, category, image_path. A missing record is
// treated as an empty map, never as an error.
type Metadata map[string]interface{}

// ProductID returns the product_id field, or fallback when absent or empty.
// Items sharing a product_id are the same logical product (multiple reference
// images), which is the grouping key for result deduplication.
func (m Metadata) ProductID(fallback string) string {
	if m == nil {
		return fallback
	}
	if v, ok := m["product_id"].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Category returns the category field, or "" when absent.
func (m Metadata) Category() string {
	if m == nil {
		return ""
	}
	if v, ok := m["category"].(string); ok {
		return v
	}
	return ""
}

// Matches reports whether the record satisfies every key/value pair in filters.
// A key present in the record with a different value fails the match; a key
// absent from the record does not constrain it. Values decoded from JSON may
// be slices or maps, so comparison must be deep, not ==.
func (m Metadata) Matches(filters map[string]interface{}) bool {
	for key, want := range filters {
		if got, ok := m[key]; ok && !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy of the record.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
