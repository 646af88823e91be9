package dataflow

import (
	"sort"

	"github.com/dreamware/k9db/internal/record"
)

// GroupedData indexes records.Record values by a Key, keeping every live
// row for that key in insertion order. It is the shared state shape
// EquiJoin, Aggregate, and MatView all build on; ported from
// original_source/dataflow/grouped_data.h, whose insert/erase-on-polarity
// behavior this mirrors: a positive record is appended, a negative record
// removes the first equal positive record found under the same key.
type GroupedData struct {
	rows map[record.Key][]*record.Record
}

// NewGroupedData returns an empty GroupedData.
func NewGroupedData() *GroupedData {
	return &GroupedData{rows: make(map[record.Key][]*record.Record)}
}

// Apply inserts rec under key if rec is positive, or removes the first
// stored row equal to rec under key if rec is negative. It reports whether
// the grouped state actually changed (a negative delta for a row that
// isn't there is a no-op, not an error: base-table deletes of rows a view
// never saw are expected under partial materialization).
func (g *GroupedData) Apply(key record.Key, rec *record.Record) (changed bool) {
	if rec.Positive {
		g.rows[key] = append(g.rows[key], rec)
		return true
	}
	bucket := g.rows[key]
	for i, existing := range bucket {
		if existing.Equal(rec) {
			g.rows[key] = append(bucket[:i], bucket[i+1:]...)
			if len(g.rows[key]) == 0 {
				delete(g.rows, key)
			}
			return true
		}
	}
	return false
}

// Lookup returns the live rows stored under key.
func (g *GroupedData) Lookup(key record.Key) []*record.Record {
	return g.rows[key]
}

// Len returns the number of distinct keys with at least one live row.
func (g *GroupedData) Len() int {
	return len(g.rows)
}

// Keys returns every key with at least one live row, in ascending byte
// order. record.Key's encoding (fixed-width big-endian for numeric
// columns, raw bytes for text) makes this byte order coincide with the
// engine's default ascending ORDER BY over the same columns, except that
// negative KindInt/KindDatetime values sort after non-negative ones; this is what
// lets MatView's "greater than" range lookup (spec.md section 4.6) walk
// Keys() instead of needing a separate sorted index.
func (g *GroupedData) Keys() []record.Key {
	keys := make([]record.Key, 0, len(g.rows))
	for k := range g.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
