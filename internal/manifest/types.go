package manifest

import "sort"

// ArrayID names a columnar array file. Case-sensitive, unique within a manifest.
type ArrayID = string

// Location is a 0-based cursor position in source text.
type Location struct {
	Line   int `json:"lineno" validate:"gte=0"`
	Column int `json:"column" validate:"gte=0"`
}

// Before reports whether l sorts strictly before o.
func (l Location) Before(o Location) bool {
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Column < o.Column
}

// Column is one named field of a snapshot, backed by a single array.
type Column struct {
	Name  string  `json:"name" validate:"required"`
	Array ArrayID `json:"array" validate:"required"`
}

// Snapshot is a captured data view attributable to the half-open source
// range [Start, End). All columns are joined row-for-row, so they are
// expected to have the same number of rows.
type Snapshot struct {
	ID      int      `json:"-"`
	Start   Location `json:"start"`
	End     Location `json:"end"`
	Columns []Column `json:"columns" validate:"dive"`
}

// Arrays returns the array ids of the snapshot's columns, in column order.
func (s *Snapshot) Arrays() []ArrayID {
	ids := make([]ArrayID, len(s.Columns))
	for i, c := range s.Columns {
		ids[i] = c.Array
	}
	return ids
}

// Mapping records a data-lineage edge between two arrays.
type Mapping struct {
	SourceArray      ArrayID `json:"sourceArray" validate:"required"`
	TargetArray      ArrayID `json:"targetArray" validate:"required"`
	SourceIndexArray ArrayID `json:"sourceIndexArray" validate:"required"`
	TargetIndexArray ArrayID `json:"targetIndexArray" validate:"required"`
}

// ArraySet is an unordered, deduplicated set of array ids.
type ArraySet map[ArrayID]struct{}

// Add inserts ids into the set.
func (s ArraySet) Add(ids ...ArrayID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Has reports whether id is in the set.
func (s ArraySet) Has(id ArrayID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s ArraySet) Sorted() []ArrayID {
	ids := make([]ArrayID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
