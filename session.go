package dtlview

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/jward/dtlview/internal/arraystore"
	"github.com/jward/dtlview/internal/manifest"
)

// Session pairs a loaded Manifest with a query engine on which every array
// the manifest references has been registered.
type Session struct {
	id          uuid.UUID
	manifestURL string
	arrayURL    string
	manifest    *Manifest
	engine      Engine
	registered  []string
	planner     *Planner
	logger      zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// OpenSession fetches the manifest at manifestURL and registers its arrays,
// found under arrayURL, with eng. The Session owns eng from here on: eng is
// closed if opening fails, and by Session.Close otherwise.
//
// A relative arrayURL is resolved against an http(s) manifestURL.
func OpenSession(ctx context.Context, manifestURL, arrayURL string, eng Engine, opts ...Option) (*Session, error) {
	o := newOptions(opts)
	m, err := manifest.Fetch(ctx, o.client, manifestURL)
	if err != nil {
		eng.Close()
		return nil, err
	}
	return newSession(ctx, m, manifestURL, arrayURL, eng, o)
}

// NewSession registers the arrays of an already loaded manifest with eng.
// Ownership of eng follows OpenSession.
func NewSession(ctx context.Context, m *Manifest, arrayURL string, eng Engine, opts ...Option) (*Session, error) {
	return newSession(ctx, m, "", arrayURL, eng, newOptions(opts))
}

func newSession(ctx context.Context, m *Manifest, manifestURL, arrayURL string, eng Engine, o options) (*Session, error) {
	s := &Session{
		id:          uuid.New(),
		manifestURL: manifestURL,
		arrayURL:    resolveStoreURL(manifestURL, arrayURL),
		manifest:    m,
		engine:      eng,
		planner:     NewPlanner(m, eng),
	}
	s.logger = o.logger.With().Str("session", s.id.String()).Logger()

	if err := s.register(ctx, o.registerConcurrency); err != nil {
		eng.Close()
		s.logger.Warn().Err(err).Msg("session registration failed")
		return nil, err
	}
	s.logger.Info().
		Str("manifest", manifestURL).
		Str("store", s.arrayURL).
		Int("snapshots", len(m.Snapshots())).
		Int("arrays", len(s.registered)).
		Msg("session ready")
	return s, nil
}

// register makes every referenced array queryable as {id}.parquet.
func (s *Session) register(ctx context.Context, concurrency int) error {
	ids := s.manifest.ReferencedArrays().Sorted()
	p := pool.New().
		WithErrors().
		WithFirstError().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(concurrency)
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			name := relationName(id)
			loc, err := arraystore.ResolveURL(s.arrayURL, id)
			if err != nil {
				return &EngineError{Op: "register", Relation: name, Err: err}
			}
			if err := s.engine.RegisterRemoteFile(ctx, name, loc); err != nil {
				return &EngineError{Op: "register", Relation: name, Err: err}
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}

	s.registered = make([]string, len(ids))
	for i, id := range ids {
		s.registered[i] = relationName(id)
	}
	return nil
}

// resolveStoreURL resolves a relative array store URL against an http(s)
// manifest URL, leaving it unchanged otherwise.
func resolveStoreURL(manifestURL, arrayURL string) string {
	base, err := url.Parse(manifestURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return arrayURL
	}
	ref, err := url.Parse(arrayURL)
	if err != nil || ref.IsAbs() {
		return arrayURL
	}
	return base.ResolveReference(ref).String()
}

// ID uniquely identifies the session.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// ManifestURL returns the URL the manifest was loaded from, or "" for a
// session built with NewSession.
func (s *Session) ManifestURL() string {
	return s.manifestURL
}

// ArrayURL returns the resolved array store URL.
func (s *Session) ArrayURL() string {
	return s.arrayURL
}

// Manifest returns the session's manifest.
func (s *Session) Manifest() *Manifest {
	return s.manifest
}

// Registered returns the relation names registered with the engine, sorted.
func (s *Session) Registered() []string {
	return append([]string(nil), s.registered...)
}

// Query returns the session's Planner.
func (s *Session) Query() *Planner {
	return s.planner
}

// SnapshotAt returns the most specific snapshot covering the source
// position, or nil if there is none.
func (s *Session) SnapshotAt(row, col int) (*Snapshot, error) {
	return s.manifest.SnapshotByRowColumn(row, col)
}

// Close releases the engine. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.engine.Close(); err != nil {
			s.closeErr = fmt.Errorf("close engine: %w", err)
		}
		s.logger.Debug().Msg("session closed")
	})
	return s.closeErr
}
