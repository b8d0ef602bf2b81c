package dtlview

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jward/dtlview/internal/arraystore"
)

// The fixture trace:
//
//	line 0: "x = 1"
//	line 1: "for i in range(10):"
//	line 2: "    y = i"
//
// Snapshots:
//
//	0: [0:0, 1:0)  x                   (a)
//	1: [1:0, 3:0)  i, s, f             (a, b, c)
//	2: [2:4, 2:9)  i, t                (a, short)
//	3: [0:0, 0:1)  no columns
//	4: [2:0, 2:4)  s                   (b)
const fixtureManifest = `{
  "source": "x = 1\r\nfor i in range(10):\r\n    y = i\r\n",
  "snapshots": [
    {"start": {"lineno": 0, "column": 0}, "end": {"lineno": 1, "column": 0},
     "columns": [{"name": "x", "array": "a"}]},
    {"start": {"lineno": 1, "column": 0}, "end": {"lineno": 3, "column": 0},
     "columns": [{"name": "i", "array": "a"}, {"name": "s", "array": "b"}, {"name": "f", "array": "c"}]},
    {"start": {"lineno": 2, "column": 4}, "end": {"lineno": 2, "column": 9},
     "columns": [{"name": "i", "array": "a"}, {"name": "t", "array": "short"}]},
    {"start": {"lineno": 0, "column": 0}, "end": {"lineno": 0, "column": 1},
     "columns": []},
    {"start": {"lineno": 2, "column": 0}, "end": {"lineno": 2, "column": 4},
     "columns": [{"name": "s", "array": "b"}]}
  ],
  "mappings": [
    {"sourceArray": "a", "targetArray": "b", "sourceIndexArray": "idx_a", "targetIndexArray": "idx_b"}
  ]
}`

var fixtureArrays = []string{"a", "b", "c", "idx_a", "idx_b", "short"}

// traceFixture serves a manifest and its arrays over HTTP.
//
//	/trace/manifest.json
//	/trace/data/{id}.parquet
//	/slow/manifest.json   blocks until release is called
type traceFixture struct {
	dir  string
	srv  *httptest.Server
	hits atomic.Int64

	gate     chan struct{}
	gateOnce sync.Once
}

func newTraceFixture(t testing.TB) *traceFixture {
	t.Helper()
	f := &traceFixture{dir: t.TempDir(), gate: make(chan struct{})}
	require.NoError(t, os.MkdirAll(filepath.Join(f.dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "manifest.json"), []byte(fixtureManifest), 0o644))

	ints := make([]int64, 10)
	strs := make([]string, 10)
	floats := make([]float64, 10)
	for i := range 10 {
		ints[i] = int64(i)
		strs[i] = "s" + string(rune('0'+i))
		floats[i] = float64(i) / 2
	}
	f.putArray(t, "a", arraystore.Int64s(ints...))
	f.putArray(t, "b", arraystore.Strings(strs...))
	f.putArray(t, "c", arraystore.Float64s(floats...))
	f.putArray(t, "idx_a", arraystore.Int64s(0, 1, 2))
	f.putArray(t, "idx_b", arraystore.Int64s(2, 1, 0))
	f.putArray(t, "short", arraystore.Int64s(100, 200))

	files := http.StripPrefix("/trace", http.FileServer(http.Dir(f.dir)))
	mux := http.NewServeMux()
	mux.HandleFunc("/trace/", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		files.ServeHTTP(w, r)
	})
	mux.HandleFunc("/slow/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-f.gate:
		case <-r.Context().Done():
			return
		}
		http.ServeFile(w, r, filepath.Join(f.dir, "manifest.json"))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	t.Cleanup(f.release)
	return f
}

func (f *traceFixture) putArray(t testing.TB, id string, arr *arraystore.Array) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, arraystore.Write(&buf, arr))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "data", arraystore.FileName(id)), buf.Bytes(), 0o644))
}

func (f *traceFixture) manifestURL() string     { return f.srv.URL + "/trace/manifest.json" }
func (f *traceFixture) slowManifestURL() string { return f.srv.URL + "/slow/manifest.json" }
func (f *traceFixture) arrayURL() string        { return f.srv.URL + "/trace/data" }

// release unblocks /slow requests.
func (f *traceFixture) release() {
	f.gateOnce.Do(func() { close(f.gate) })
}

func newTestSession(t testing.TB, f *traceFixture) *Session {
	t.Helper()
	eng, err := OpenSQLite("")
	require.NoError(t, err)
	s, err := OpenSession(context.Background(), f.manifestURL(), f.arrayURL(), eng)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// trackedEngine records Close calls and can hold queries touching one
// relation until released.
type trackedEngine struct {
	Engine
	closed atomic.Bool

	block    string
	gate     chan struct{}
	gateOnce sync.Once
}

func (e *trackedEngine) Query(ctx context.Context, stmt string) (*Table, error) {
	if e.block != "" && strings.Contains(stmt, `"`+e.block+`"`) {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.Engine.Query(ctx, stmt)
}

func (e *trackedEngine) Close() error {
	e.closed.Store(true)
	e.release()
	return e.Engine.Close()
}

func (e *trackedEngine) release() {
	e.gateOnce.Do(func() {
		if e.gate != nil {
			close(e.gate)
		}
	})
}

// engineRecorder is an EngineFactory that keeps every engine it creates.
type engineRecorder struct {
	block string

	mu      sync.Mutex
	engines []*trackedEngine
}

func (r *engineRecorder) factory(ctx context.Context) (Engine, error) {
	inner, err := OpenSQLite("")
	if err != nil {
		return nil, err
	}
	e := &trackedEngine{Engine: inner, block: r.block}
	if r.block != "" {
		e.gate = make(chan struct{})
	}
	r.mu.Lock()
	r.engines = append(r.engines, e)
	r.mu.Unlock()
	return e, nil
}

func (r *engineRecorder) all() []*trackedEngine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*trackedEngine(nil), r.engines...)
}

func (r *engineRecorder) releaseAll() {
	for _, e := range r.all() {
		e.release()
	}
}
