package dtlview

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jward/dtlview/internal/arraystore"
	"github.com/jward/dtlview/internal/engine"
)

// Engine is the query engine a Session reads arrays through.
type Engine interface {
	// RegisterRemoteFile makes the file at url queryable as relation name.
	// Registering the same name twice must be harmless.
	RegisterRemoteFile(ctx context.Context, name, url string) error

	// Query runs a read-only statement and returns its typed result.
	Query(ctx context.Context, stmt string) (*Table, error)

	// Close releases the engine.
	Close() error
}

// Page selects a window of rows. A nil Offset starts at row 0; a nil Limit
// leaves the window open-ended.
type Page struct {
	Offset *int
	Limit  *int
}

// PageOf returns the window [offset, offset+limit).
func PageOf(offset, limit int) Page {
	return Page{Offset: &offset, Limit: &limit}
}

func (p Page) validate() error {
	if p.Offset != nil && *p.Offset < 0 {
		return fmt.Errorf("page offset %d: %w", *p.Offset, ErrOutOfRange)
	}
	if p.Limit != nil && *p.Limit < 0 {
		return fmt.Errorf("page limit %d: %w", *p.Limit, ErrOutOfRange)
	}
	return nil
}

func (p Page) equal(o Page) bool {
	return intPtrEqual(p.Offset, o.Offset) && intPtrEqual(p.Limit, o.Limit)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// String renders the page as [offset, offset+limit).
func (p Page) String() string {
	lo := 0
	if p.Offset != nil {
		lo = *p.Offset
	}
	hi := "∞"
	if p.Limit != nil {
		hi = strconv.Itoa(lo + *p.Limit)
	}
	return fmt.Sprintf("[%d, %s)", lo, hi)
}

// Planner turns snapshot ids into schema, length and data reads against
// the arrays backing each snapshot column.
//
// Columns of one snapshot are joined by physical row position: row N of
// one array is row N of every other. Nothing enforces that the arrays
// share a row order or a length; the manifest producer is trusted on both.
type Planner struct {
	manifest *Manifest
	engine   Engine
}

// NewPlanner returns a Planner reading m's arrays through e. The arrays
// must already be registered with e.
func NewPlanner(m *Manifest, e Engine) *Planner {
	return &Planner{manifest: m, engine: e}
}

// Schema returns one field per snapshot column, named after the column and
// typed as the engine reports for the backing array's value column.
func (p *Planner) Schema(ctx context.Context, snapshotID int) ([]Field, error) {
	snap, err := p.manifest.SnapshotByID(snapshotID)
	if err != nil {
		return nil, err
	}

	fields := make([]Field, 0, len(snap.Columns))
	for _, c := range snap.Columns {
		t, err := p.engine.Query(ctx, schemaStatement(c))
		if err != nil {
			return nil, &EngineError{Op: "schema", Relation: relationName(c.Array), Err: err}
		}
		if t.NumCols() != 1 {
			return nil, &EngineError{Op: "schema", Relation: relationName(c.Array),
				Err: fmt.Errorf("probe returned %d columns", t.NumCols())}
		}
		fields = append(fields, Field{Name: c.Name, Type: t.Fields[0].Type})
	}
	return fields, nil
}

// Length returns the row count of the snapshot's first column. A snapshot
// without columns has no rows.
func (p *Planner) Length(ctx context.Context, snapshotID int) (int64, error) {
	snap, err := p.manifest.SnapshotByID(snapshotID)
	if err != nil {
		return 0, err
	}
	if len(snap.Columns) == 0 {
		return 0, nil
	}

	rel := relationName(snap.Columns[0].Array)
	t, err := p.engine.Query(ctx, lengthStatement(snap.Columns[0]))
	if err != nil {
		return 0, &EngineError{Op: "length", Relation: rel, Err: err}
	}
	if t.NumRows() != 1 || t.NumCols() != 1 {
		return 0, &EngineError{Op: "length", Relation: rel,
			Err: fmt.Errorf("count returned %dx%d result", t.NumRows(), t.NumCols())}
	}
	switch n := t.Value(0, 0).(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, &EngineError{Op: "length", Relation: rel, Err: fmt.Errorf("count returned %T", n)}
	}
}

// Data reads the page of the snapshot's rows. Every column is read
// independently with the same window and the reads are zipped by position.
// The result has as many rows as the first column's read; a shorter later
// column leaves nil cells.
func (p *Planner) Data(ctx context.Context, snapshotID int, page Page) (*Table, error) {
	snap, err := p.manifest.SnapshotByID(snapshotID)
	if err != nil {
		return nil, err
	}
	if err := page.validate(); err != nil {
		return nil, err
	}

	out := &Table{Fields: make([]Field, len(snap.Columns))}
	reads := make([]*Table, len(snap.Columns))
	for i, c := range snap.Columns {
		t, err := p.engine.Query(ctx, dataStatement(c, page))
		if err != nil {
			return nil, &EngineError{Op: "data", Relation: relationName(c.Array), Err: err}
		}
		if t.NumCols() != 1 {
			return nil, &EngineError{Op: "data", Relation: relationName(c.Array),
				Err: fmt.Errorf("read returned %d columns", t.NumCols())}
		}
		reads[i] = t
		out.Fields[i] = Field{Name: c.Name, Type: t.Fields[0].Type}
	}
	if len(reads) == 0 {
		return out, nil
	}

	n := reads[0].NumRows()
	out.Rows = make([][]any, n)
	for r := range n {
		row := make([]any, len(reads))
		for i, t := range reads {
			if r < t.NumRows() {
				row[i] = t.Rows[r][0]
			}
		}
		out.Rows[r] = row
	}
	return out, nil
}

// relationName is the engine relation an array is registered under.
func relationName(id ArrayID) string {
	return arraystore.FileName(id)
}

// schemaStatement probes a column's type without reading rows.
func schemaStatement(c Column) string {
	return fmt.Sprintf("SELECT %s AS %s FROM %s LIMIT 0",
		engine.QuoteIdent(arraystore.ValueField),
		engine.QuoteIdent(c.Name),
		engine.QuoteIdent(relationName(c.Array)))
}

func lengthStatement(c Column) string {
	return fmt.Sprintf("SELECT COUNT(*) AS %s FROM %s",
		engine.QuoteIdent("length"),
		engine.QuoteIdent(relationName(c.Array)))
}

// dataStatement reads one column's window in physical row order.
func dataStatement(c Column, page Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s AS %s FROM %s ORDER BY rowid",
		engine.QuoteIdent(arraystore.ValueField),
		engine.QuoteIdent(c.Name),
		engine.QuoteIdent(relationName(c.Array)))
	switch {
	case page.Limit != nil:
		fmt.Fprintf(&b, " LIMIT %d", *page.Limit)
	case page.Offset != nil:
		// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
		b.WriteString(" LIMIT -1")
	}
	if page.Offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *page.Offset)
	}
	return b.String()
}
