package manifest

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
  "source": "a\r\nbb\r\nccc",
  "snapshots": [
    {"start": {"lineno": 1, "column": 0}, "end": {"lineno": 2, "column": 3},
     "columns": [{"name": "x", "array": "arr1"}, {"name": "y", "array": "arr2"}]}
  ],
  "mappings": [
    {"sourceArray": "arr1", "targetArray": "arr2", "sourceIndexArray": "idx1", "targetIndexArray": "idx2"}
  ]
}`

func TestDecode_Document(t *testing.T) {
	t.Parallel()
	m, err := Decode(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, "a\nbb\nccc", m.Source())
	assert.Equal(t, []int{0, 2, 5}, m.RowToOffset())
	require.Len(t, m.Snapshots(), 1)
	assert.Equal(t, Location{Line: 2, Column: 3}, m.Snapshots()[0].End)
	assert.Equal(t, []string{"arr1", "arr2", "idx1", "idx2"}, m.ReferencedArrays().Sorted())

	s, err := m.SnapshotByRowColumn(1, 1)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "y", s.Columns[1].Name)
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()
	for name, doc := range map[string]string{
		"not json":         `{"source": `,
		"missing source":   `{"snapshots": [], "mappings": []}`,
		"negative line":    `{"source": "", "snapshots": [{"start": {"lineno": -1, "column": 0}, "end": {"lineno": 0, "column": 0}, "columns": []}]}`,
		"empty array id":   `{"source": "", "snapshots": [{"start": {"lineno": 0, "column": 0}, "end": {"lineno": 0, "column": 0}, "columns": [{"name": "x", "array": ""}]}]}`,
		"partial mapping":  `{"source": "", "mappings": [{"sourceArray": "a", "targetArray": "b"}]}`,
	} {
		_, err := Decode(strings.NewReader(doc))
		assert.ErrorIs(t, err, ErrInvalidManifest, name)
	}
}

func TestDecode_EndBeforeStartCoversNothing(t *testing.T) {
	t.Parallel()
	doc := `{"source": "abc\ndef", "snapshots": [
	  {"start": {"lineno": 0, "column": 0}, "end": {"lineno": 1, "column": 3}, "columns": [{"name": "outer", "array": "o"}]},
	  {"start": {"lineno": 0, "column": 2}, "end": {"lineno": 0, "column": 1}, "columns": [{"name": "bad", "array": "b"}]}
	]}`
	m, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, m.Snapshots(), 2)

	for col := range 3 {
		s, err := m.SnapshotByRowColumn(0, col)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, 0, s.ID, "column %d", col)
	}
	assert.True(t, m.ReferencedArrays().Has("b"))
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()
	m, err := Decode(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	again, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.Source(), again.Source())
	assert.Equal(t, m.Snapshots(), again.Snapshots())
	assert.Equal(t, m.Mappings(), again.Mappings())
}

func TestFetch_HTTP(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/manifest.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(sampleDoc))
	}))
	t.Cleanup(srv.Close)

	m, err := Fetch(context.Background(), srv.Client(), srv.URL+"/manifest.json")
	require.NoError(t, err)
	assert.Len(t, m.Snapshots(), 1)

	_, err = Fetch(context.Background(), srv.Client(), srv.URL+"/missing.json")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, srv.URL+"/missing.json", fe.URL)
}

func TestFetch_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	m, err := Fetch(context.Background(), nil, path)
	require.NoError(t, err)
	assert.Equal(t, 3, m.LineCount())

	m, err = Fetch(context.Background(), nil, "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, 3, m.LineCount())
}

func TestFetch_InvalidJSONIsFetchError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	_, err := Fetch(context.Background(), nil, path)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, ErrInvalidManifest)
}
