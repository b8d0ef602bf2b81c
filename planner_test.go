package dtlview

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(n int) *int { return &n }

// buildManifest returns the "a\nbb\nccc" manifest with a single snapshot
// over arr1.
func buildManifest(t *testing.T) *Manifest {
	t.Helper()
	return BuildManifest("a\nbb\nccc", []Snapshot{{
		Start:   Location{Line: 1, Column: 0},
		End:     Location{Line: 2, Column: 3},
		Columns: []Column{{Name: "x", Array: "arr1"}},
	}}, nil)
}

// =============================================================================
// Statements
// =============================================================================

func TestSchemaStatement(t *testing.T) {
	t.Parallel()
	got := schemaStatement(Column{Name: "x", Array: "arr1"})
	assert.Equal(t, `SELECT "values" AS "x" FROM "arr1.parquet" LIMIT 0`, got)
}

func TestLengthStatement(t *testing.T) {
	t.Parallel()
	got := lengthStatement(Column{Name: "x", Array: "arr1"})
	assert.Equal(t, `SELECT COUNT(*) AS "length" FROM "arr1.parquet"`, got)
}

func TestDataStatement(t *testing.T) {
	t.Parallel()
	c := Column{Name: `we"ird`, Array: "a"}
	tests := []struct {
		name string
		page Page
		want string
	}{
		{"whole", Page{}, `SELECT "values" AS "we""ird" FROM "a.parquet" ORDER BY rowid`},
		{"limit only", Page{Limit: ptr(5)}, `SELECT "values" AS "we""ird" FROM "a.parquet" ORDER BY rowid LIMIT 5`},
		{"offset only", Page{Offset: ptr(3)}, `SELECT "values" AS "we""ird" FROM "a.parquet" ORDER BY rowid LIMIT -1 OFFSET 3`},
		{"both", PageOf(10, 20), `SELECT "values" AS "we""ird" FROM "a.parquet" ORDER BY rowid LIMIT 20 OFFSET 10`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dataStatement(c, tt.page))
		})
	}
}

func TestPage_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[0, ∞)", Page{}.String())
	assert.Equal(t, "[10, 30)", PageOf(10, 20).String())
	assert.Equal(t, "[0, 5)", Page{Limit: ptr(5)}.String())
}

// =============================================================================
// Planner against the SQLite engine
// =============================================================================

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	return newTestSession(t, newTraceFixture(t)).Query()
}

func TestPlanner_Schema(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(t)

	fields, err := p.Schema(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []Field{
		{Name: "i", Type: "BIGINT"},
		{Name: "s", Type: "VARCHAR"},
		{Name: "f", Type: "DOUBLE"},
	}, fields)

	fields, err = p.Schema(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestPlanner_Length(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(t)
	ctx := context.Background()

	n, err := p.Length(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	// First column decides, the shorter second column is not checked.
	n, err = p.Length(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	n, err = p.Length(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPlanner_Data(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(t)

	tbl, err := p.Data(context.Background(), 1, PageOf(2, 3))
	require.NoError(t, err)
	assert.Equal(t, []Field{
		{Name: "i", Type: "BIGINT"},
		{Name: "s", Type: "VARCHAR"},
		{Name: "f", Type: "DOUBLE"},
	}, tbl.Fields)
	assert.Equal(t, [][]any{
		{int64(2), "s2", 1.0},
		{int64(3), "s3", 1.5},
		{int64(4), "s4", 2.0},
	}, tbl.Rows)
}

func TestPlanner_DataWholeAndOpenEnded(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(t)
	ctx := context.Background()

	tbl, err := p.Data(ctx, 0, Page{})
	require.NoError(t, err)
	assert.Equal(t, 10, tbl.NumRows())

	tbl, err = p.Data(ctx, 0, Page{Offset: ptr(8)})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(8), int64(9)}, tbl.Column(0))

	tbl, err = p.Data(ctx, 0, PageOf(50, 10))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.NumRows())
}

func TestPlanner_DataShortColumnLeavesNils(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(t)

	tbl, err := p.Data(context.Background(), 2, PageOf(0, 4))
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{int64(0), int64(100)},
		{int64(1), int64(200)},
		{int64(2), nil},
		{int64(3), nil},
	}, tbl.Rows)
}

func TestPlanner_DataNoColumns(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(t)

	tbl, err := p.Data(context.Background(), 3, PageOf(0, 10))
	require.NoError(t, err)
	assert.Empty(t, tbl.Fields)
	assert.Equal(t, 0, tbl.NumRows())
}

func TestPlanner_PaginationConcatenates(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(t)
	ctx := context.Background()

	for _, split := range [][2]int{{0, 4}, {3, 5}, {4, 6}, {7, 10}} {
		n, m := split[0], split[1]
		first, err := p.Data(ctx, 1, PageOf(0, n))
		require.NoError(t, err)
		second, err := p.Data(ctx, 1, PageOf(n, m))
		require.NoError(t, err)
		whole, err := p.Data(ctx, 1, PageOf(0, n+m))
		require.NoError(t, err)

		joined := append(append([][]any{}, first.Rows...), second.Rows...)
		assert.Equal(t, whole.Rows, joined, "N=%d M=%d", n, m)
	}
}

func TestPlanner_UnknownSnapshot(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(t)
	ctx := context.Background()

	_, err := p.Schema(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = p.Length(ctx, -1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = p.Data(ctx, 5, Page{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlanner_NegativePage(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(t)

	_, err := p.Data(context.Background(), 1, PageOf(-1, 5))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = p.Data(context.Background(), 1, Page{Limit: ptr(-5)})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

// =============================================================================
// Engine failures
// =============================================================================

// failingEngine fails every query.
type failingEngine struct{ err error }

func (e failingEngine) RegisterRemoteFile(context.Context, string, string) error { return nil }
func (e failingEngine) Query(context.Context, string) (*Table, error)            { return nil, e.err }
func (e failingEngine) Close() error                                             { return nil }

func TestPlanner_WrapsEngineErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	p := NewPlanner(buildManifest(t), failingEngine{err: boom})
	ctx := context.Background()

	_, err := p.Schema(ctx, 0)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "schema", ee.Op)
	assert.Equal(t, "arr1.parquet", ee.Relation)
	assert.ErrorIs(t, err, boom)

	_, err = p.Length(ctx, 0)
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "length", ee.Op)

	_, err = p.Data(ctx, 0, Page{})
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "data", ee.Op)
	assert.Equal(t, `engine data arr1.parquet: boom`, err.Error())
}
