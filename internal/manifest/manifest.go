package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrOutOfRange is returned for positions or offsets outside the source.
	ErrOutOfRange = errors.New("out of range")

	// ErrNotFound is returned for snapshot ids outside the snapshot list.
	ErrNotFound = errors.New("not found")
)

// Manifest describes one traced program: its source text, its snapshots and
// its array-lineage mappings. A Manifest is immutable once built and owns
// the position index over its source.
type Manifest struct {
	source   []rune
	text     string
	snaps    []Snapshot
	mappings []Mapping

	// rowToOffset[r] is the character offset of the first column of line r.
	rowToOffset []int

	// offsetToSnapshot holds entries only for offsets covered by at least
	// one snapshot; the value is the most specific covering snapshot id.
	offsetToSnapshot map[int]int
}

// NormalizeNewlines rewrites \r\n and lone \r line endings to \n.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Build constructs a Manifest and its index. Snapshot ids are assigned from
// list position. The snapshot and mapping slices are copied. A snapshot
// whose end precedes its start covers nothing.
func Build(source string, snapshots []Snapshot, mappings []Mapping) *Manifest {
	text := NormalizeNewlines(source)
	m := &Manifest{
		source:           []rune(text),
		text:             text,
		snaps:            make([]Snapshot, len(snapshots)),
		mappings:         append([]Mapping(nil), mappings...),
		offsetToSnapshot: make(map[int]int),
	}
	for i, s := range snapshots {
		s.ID = i
		s.Columns = append([]Column(nil), s.Columns...)
		m.snaps[i] = s
	}

	m.rowToOffset = []int{0}
	for offset, r := range m.source {
		if r == '\n' {
			m.rowToOffset = append(m.rowToOffset, offset+1)
		}
	}

	// Most specific first. Identical spans put the later-listed snapshot
	// first so that it is written last.
	order := make([]int, len(m.snaps))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := &m.snaps[order[i]], &m.snaps[order[j]]
		if sameSpan(a, b) {
			return a.ID > b.ID
		}
		return moreSpecific(a, b)
	})

	// Least specific first, so later writes leave the most specific
	// snapshot at each offset.
	for i := len(order) - 1; i >= 0; i-- {
		m.fill(order[i])
	}
	return m
}

// moreSpecific orders snapshots by (-start.line, -start.col, end.line, end.col).
func moreSpecific(a, b *Snapshot) bool {
	if a.Start != b.Start {
		return b.Start.Before(a.Start)
	}
	return a.End.Before(b.End)
}

func sameSpan(a, b *Snapshot) bool {
	return a.Start == b.Start && a.End == b.End
}

func (m *Manifest) fill(id int) {
	s := &m.snaps[id]
	start := m.clampedOffset(s.Start)
	end := m.clampedOffset(s.End)
	for offset := start; offset < end; offset++ {
		m.offsetToSnapshot[offset] = id
	}
}

// clampedOffset converts a snapshot location to an offset. Negative fields
// count as 0; rows past the last line and offsets past the end of the
// source clamp to the source length.
func (m *Manifest) clampedOffset(loc Location) int {
	line, col := max(loc.Line, 0), max(loc.Column, 0)
	if line >= len(m.rowToOffset) {
		return len(m.source)
	}
	return min(m.rowToOffset[line]+col, len(m.source))
}

// Source returns the newline-normalized source text.
func (m *Manifest) Source() string {
	return m.text
}

// SourceLength returns the length of the source in characters.
func (m *Manifest) SourceLength() int {
	return len(m.source)
}

// LineCount returns the number of lines in the source.
func (m *Manifest) LineCount() int {
	return len(m.rowToOffset)
}

// RowToOffset returns a copy of the line start table.
func (m *Manifest) RowToOffset() []int {
	return append([]int(nil), m.rowToOffset...)
}

// Snapshots returns a copy of the snapshot list.
func (m *Manifest) Snapshots() []Snapshot {
	out := make([]Snapshot, len(m.snaps))
	for i, s := range m.snaps {
		s.Columns = append([]Column(nil), s.Columns...)
		out[i] = s
	}
	return out
}

// Mappings returns a copy of the mapping list.
func (m *Manifest) Mappings() []Mapping {
	return append([]Mapping(nil), m.mappings...)
}

// Offset converts a row and column to an absolute character offset.
func (m *Manifest) Offset(row, col int) (int, error) {
	if row < 0 || row >= len(m.rowToOffset) || col < 0 {
		return 0, fmt.Errorf("position %d:%d: %w", row, col, ErrOutOfRange)
	}
	offset := m.rowToOffset[row] + col
	if offset > len(m.source) {
		return 0, fmt.Errorf("position %d:%d: offset %d beyond source length %d: %w",
			row, col, offset, len(m.source), ErrOutOfRange)
	}
	return offset, nil
}

// SnapshotIDAt returns the id of the most specific snapshot covering offset.
func (m *Manifest) SnapshotIDAt(offset int) (int, bool) {
	id, ok := m.offsetToSnapshot[offset]
	return id, ok
}

// SnapshotByID returns the snapshot with the given id.
func (m *Manifest) SnapshotByID(id int) (*Snapshot, error) {
	if id < 0 || id >= len(m.snaps) {
		return nil, fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
	}
	s := m.snaps[id]
	s.Columns = append([]Column(nil), s.Columns...)
	return &s, nil
}

// SnapshotByRowColumn returns the most specific snapshot covering the
// position, or nil if none does.
func (m *Manifest) SnapshotByRowColumn(row, col int) (*Snapshot, error) {
	offset, err := m.Offset(row, col)
	if err != nil {
		return nil, err
	}
	id, ok := m.SnapshotIDAt(offset)
	if !ok {
		return nil, nil
	}
	return m.SnapshotByID(id)
}

// ReferencedArrays returns every array reachable from a snapshot column or
// from any of a mapping's four array fields.
func (m *Manifest) ReferencedArrays() ArraySet {
	set := make(ArraySet)
	for i := range m.snaps {
		set.Add(m.snaps[i].Arrays()...)
	}
	for _, mp := range m.mappings {
		set.Add(mp.SourceArray, mp.TargetArray, mp.SourceIndexArray, mp.TargetIndexArray)
	}
	return set
}
