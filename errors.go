package dtlview

import (
	"errors"
	"fmt"

	"github.com/jward/dtlview/internal/manifest"
)

var (
	// ErrOutOfRange reports a row, column, offset or page bound outside
	// the valid range.
	ErrOutOfRange = manifest.ErrOutOfRange

	// ErrNotFound reports an unknown snapshot id.
	ErrNotFound = manifest.ErrNotFound

	// ErrInvalidManifest reports a manifest document that failed to decode
	// or validate. It is always wrapped in a *FetchError.
	ErrInvalidManifest = manifest.ErrInvalidManifest

	// ErrNoSession is returned by Pipeline operations that need a ready
	// session when there is none.
	ErrNoSession = errors.New("no session")
)

// FetchError reports a manifest that was unreachable or invalid.
type FetchError = manifest.FetchError

// EngineError wraps a failure reported by the query engine.
type EngineError struct {
	Op       string // schema, length, data, register or open
	Relation string // relation involved, if any
	Err      error
}

func (e *EngineError) Error() string {
	if e.Relation != "" {
		return fmt.Sprintf("engine %s %s: %v", e.Op, e.Relation, e.Err)
	}
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
