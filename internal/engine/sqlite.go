// Package engine is an embedded SQL engine over remote columnar array files.
//
// Each registered file becomes a relation named after the file, with a single
// column "values" whose declared type is the array's value type. Rows keep
// the file's physical order, exposed through SQLite's rowid.
//
// Relation names are case-sensitive. Each one is stored in its own table
// with a hex-encoded name, and statements refer to relations as
// FROM "name", which Query rewrites to the backing table.
package engine

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jward/dtlview/internal/arraystore"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is an Engine backed by a private SQLite database.
type SQLite struct {
	db     *sql.DB
	client *http.Client
	logger zerolog.Logger

	mu         sync.Mutex
	registered map[string]string // relation name -> source url
}

// tableName returns the backing table of relation name. SQLite folds the
// case of table names, so the name is hex-encoded.
func tableName(name string) string {
	return "r_" + hex.EncodeToString([]byte(name))
}

// Option configures a SQLite engine.
type Option func(*SQLite)

// WithHTTPClient sets the client used to download remote files.
func WithHTTPClient(c *http.Client) Option {
	return func(s *SQLite) {
		s.client = c
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *SQLite) {
		s.logger = l
	}
}

// Open creates an engine. An empty path keeps the database in memory;
// otherwise path names a scratch database file.
func Open(path string, opts ...Option) (*SQLite, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=30000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{
		db:         db,
		client:     http.DefaultClient,
		logger:     zerolog.Nop(),
		registered: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Registered returns the names of registered relations, sorted.
func (s *SQLite) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.registered))
	for name := range s.registered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterRemoteFile makes the array file at url queryable as relation
// name. Registering the same name and url again is a no-op; a different url
// replaces the relation.
func (s *SQLite) RegisterRemoteFile(ctx context.Context, name, url string) error {
	s.mu.Lock()
	prev, ok := s.registered[name]
	s.mu.Unlock()
	if ok && prev == url {
		return nil
	}

	data, err := arraystore.Fetch(ctx, s.client, url)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	arr, err := arraystore.Decode(ctx, data)
	if err != nil {
		return fmt.Errorf("register %s: decode %s: %w", name, url, err)
	}
	if err := s.load(ctx, name, arr); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	s.mu.Lock()
	s.registered[name] = url
	s.mu.Unlock()

	s.logger.Debug().
		Str("relation", name).
		Str("url", url).
		Str("type", string(arr.Type)).
		Int("rows", arr.Len()).
		Msg("registered array")
	return nil
}

// load replaces relation name with the contents of arr.
func (s *SQLite) load(ctx context.Context, name string, arr *arraystore.Array) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rel := QuoteIdent(tableName(name))
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+rel); err != nil {
		return fmt.Errorf("drop relation: %w", err)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s %s)", rel, QuoteIdent(arraystore.ValueField), arr.Type)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create relation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)", rel, QuoteIdent(arraystore.ValueField)))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for i, v := range arr.Values {
		// database/sql rejects uint64 with the high bit set. Query restores
		// UBIGINT cells from the stored bits.
		if u, ok := v.(uint64); ok {
			v = int64(u)
		}
		if _, err := stmt.ExecContext(ctx, v); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// rewrite points every FROM "name" of a registered relation at its table.
func (s *SQLite) rewrite(stmt string) string {
	s.mu.Lock()
	names := make([]string, 0, len(s.registered))
	for name := range s.registered {
		names = append(names, name)
	}
	s.mu.Unlock()

	// Longest first, so a quoted name never matches inside a longer one.
	slices.SortFunc(names, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})
	for _, name := range names {
		stmt = strings.ReplaceAll(stmt, "FROM "+QuoteIdent(name), "FROM "+QuoteIdent(tableName(name)))
	}
	return stmt
}

// Query runs stmt and returns its full result.
func (s *SQLite) Query(ctx context.Context, stmt string) (*Table, error) {
	rows, err := s.db.QueryContext(ctx, s.rewrite(stmt))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	t := &Table{Fields: make([]Field, len(colTypes))}
	for i, ct := range colTypes {
		t.Fields[i] = Field{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		row := make([]any, len(colTypes))
		ptrs := make([]any, len(row))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range t.Fields {
		if t.Fields[i].Type == string(arraystore.TypeUBigInt) {
			restoreUnsigned(t.Rows, i)
			continue
		}
		if t.Fields[i].Type != "" {
			continue
		}
		for _, row := range t.Rows {
			if row[i] != nil {
				t.Fields[i].Type = inferType(row[i])
				break
			}
		}
	}
	return t, nil
}

// restoreUnsigned turns the int64 cells of column i back into uint64.
func restoreUnsigned(rows [][]any, i int) {
	for _, row := range rows {
		if v, ok := row[i].(int64); ok {
			row[i] = uint64(v)
		}
	}
}
