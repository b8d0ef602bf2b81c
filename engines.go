package dtlview

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jward/dtlview/internal/engine"
)

// EngineFactory creates a fresh Engine for each new Session.
type EngineFactory func(ctx context.Context) (Engine, error)

// OpenSQLite opens the bundled SQLite engine. An empty path keeps the
// database in memory; otherwise path names a scratch database file that is
// only ever used as a cache.
func OpenSQLite(path string, opts ...Option) (Engine, error) {
	o := newOptions(opts)
	e, err := engine.Open(path,
		engine.WithHTTPClient(o.client),
		engine.WithLogger(o.logger.With().Str("component", "engine").Logger()),
	)
	if err != nil {
		return nil, &EngineError{Op: "open", Err: err}
	}
	return e, nil
}

// SQLiteEngines returns a factory opening one SQLite engine per session.
// With an empty dir every engine is in memory; otherwise each gets its own
// scratch file in dir.
func SQLiteEngines(dir string, opts ...Option) EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("open engine: %w", err)
		}
		path := ""
		if dir != "" {
			path = filepath.Join(dir, uuid.NewString()+".db")
		}
		return OpenSQLite(path, opts...)
	}
}
