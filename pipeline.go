package dtlview

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// SessionState is the state of the pipeline's session stream.
type SessionState int

const (
	SessionEmpty SessionState = iota
	SessionLoading
	SessionReady
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionEmpty:
		return "empty"
	case SessionLoading:
		return "loading"
	case SessionReady:
		return "ready"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReadState is the state of one derived read (schema, length or data).
type ReadState int

const (
	// ReadInapplicable means there is no session or no selected snapshot,
	// so no read is meaningful.
	ReadInapplicable ReadState = iota
	ReadLoading
	ReadReady
	ReadFailed
)

func (s ReadState) String() string {
	switch s {
	case ReadInapplicable:
		return "inapplicable"
	case ReadLoading:
		return "loading"
	case ReadReady:
		return "ready"
	case ReadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ViewKey identifies the (session, snapshot) pair a read belongs to.
type ViewKey struct {
	SessionID  uuid.UUID
	SnapshotID int
}

// Derived is the latest state of one derived read. Value is only meaningful
// when State is ReadReady, Err only when it is ReadFailed.
type Derived[T any] struct {
	State ReadState
	Key   ViewKey
	Value T
	Err   error
}

// SessionStatus describes the pipeline's current session.
type SessionStatus struct {
	State       SessionState
	ManifestURL string
	ArrayURL    string
	Session     *Session // set when State is SessionReady
	Err         error    // set when State is SessionFailed
}

// View is a consistent picture of the pipeline. Schema, Length and Data are
// only populated when Displayable, and then all belong to Key.
type View struct {
	Session     SessionStatus
	Snapshot    *int
	Page        Page
	Displayable bool
	Key         ViewKey
	Schema      []Field
	Length      int64
	Data        *Table
	Err         error
}

// Pipeline keeps one Session current for the latest (manifest, array store)
// pair and re-issues schema, length and data reads whenever the session,
// the selected snapshot or the page changes. Results of superseded sessions
// and reads are discarded, never delivered.
//
// Pipeline is safe for concurrent use.
type Pipeline struct {
	factory EngineFactory
	opts    []Option
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu          sync.Mutex
	closed      bool
	manifestURL string
	arrayURL    string
	sessGen     uint64
	sessState   SessionState
	sess        *Session
	sessErr     error
	snapshot    *int
	page        Page
	readGen     uint64
	dataGen     uint64
	schema      Derived[[]Field]
	length      Derived[int64]
	data        Derived[*Table]
	subs        map[int]chan View
	nextSub     int
}

// NewPipeline returns an empty Pipeline creating engines with factory. opts
// are passed on to every OpenSession call.
func NewPipeline(factory EngineFactory, opts ...Option) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		factory: factory,
		opts:    opts,
		logger:  newOptions(opts).logger.With().Str("component", "pipeline").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[int]chan View),
	}
}

// SetManifestURL changes the manifest URL, keeping the array store URL.
func (p *Pipeline) SetManifestURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setSourcesLocked(u, p.arrayURL)
}

// SetArrayURL changes the array store URL, keeping the manifest URL.
func (p *Pipeline) SetArrayURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setSourcesLocked(p.manifestURL, u)
}

// SetSources changes both URLs at once, starting a single new session.
func (p *Pipeline) SetSources(manifestURL, arrayURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setSourcesLocked(manifestURL, arrayURL)
}

func (p *Pipeline) setSourcesLocked(manifestURL, arrayURL string) {
	if p.closed || (manifestURL == p.manifestURL && arrayURL == p.arrayURL) {
		return
	}
	p.manifestURL, p.arrayURL = manifestURL, arrayURL
	p.sessGen++
	p.releaseLocked()

	if manifestURL == "" || arrayURL == "" {
		p.sessState = SessionEmpty
	} else {
		p.sessState = SessionLoading
		p.open(p.sessGen, manifestURL, arrayURL)
	}
	p.logger.Debug().
		Uint64("generation", p.sessGen).
		Str("manifest", manifestURL).
		Str("store", arrayURL).
		Stringer("state", p.sessState).
		Msg("sources changed")
	p.resetReadsLocked()
	p.notifyLocked()
}

// releaseLocked drops the current session, closing it off the caller's
// goroutine.
func (p *Pipeline) releaseLocked() {
	s := p.sess
	p.sess = nil
	p.sessErr = nil
	if s != nil {
		p.wg.Go(func() { s.Close() })
	}
}

func (p *Pipeline) open(gen uint64, manifestURL, arrayURL string) {
	p.wg.Go(func() {
		var s *Session
		eng, err := p.factory(p.ctx)
		if err == nil {
			s, err = OpenSession(p.ctx, manifestURL, arrayURL, eng, p.opts...)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed || gen != p.sessGen {
			if s != nil {
				s.Close()
			}
			p.logger.Debug().Uint64("generation", gen).Msg("discarded superseded session")
			return
		}
		if err != nil {
			p.sessState = SessionFailed
			p.sessErr = err
			p.logger.Warn().Err(err).Str("manifest", manifestURL).Msg("session failed")
		} else {
			p.sessState = SessionReady
			p.sess = s
		}
		p.resetReadsLocked()
		p.notifyLocked()
	})
}

// SelectSnapshot selects the snapshot whose schema, length and data are
// read. An id the manifest does not know yields failed reads carrying
// ErrNotFound.
func (p *Pipeline) SelectSnapshot(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || (p.snapshot != nil && *p.snapshot == id) {
		return
	}
	p.snapshot = &id
	p.resetReadsLocked()
	p.notifyLocked()
}

// ClearSnapshot deselects the snapshot; reads become inapplicable.
func (p *Pipeline) ClearSnapshot() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.snapshot == nil {
		return
	}
	p.snapshot = nil
	p.resetReadsLocked()
	p.notifyLocked()
}

// SelectPosition selects the most specific snapshot covering the source
// position of the current session, or clears the selection when none
// does. It returns the selected snapshot.
func (p *Pipeline) SelectPosition(row, col int) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.sess == nil {
		return nil, ErrNoSession
	}
	snap, err := p.sess.SnapshotAt(row, col)
	if err != nil {
		return nil, err
	}

	var next *int
	if snap != nil {
		id := snap.ID
		next = &id
	}
	if intPtrEqual(next, p.snapshot) {
		return snap, nil
	}
	p.snapshot = next
	p.resetReadsLocked()
	p.notifyLocked()
	return snap, nil
}

// SetPage changes the data window. Only the data read is re-issued.
func (p *Pipeline) SetPage(page Page) error {
	if err := page.validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || page.equal(p.page) {
		return nil
	}
	p.page = page
	if p.sess == nil || p.snapshot == nil {
		p.notifyLocked()
		return nil
	}
	p.dataGen++
	p.issueDataLocked(p.data.Key)
	p.notifyLocked()
	return nil
}

// resetReadsLocked supersedes every pending read and issues reads for the
// current (session, snapshot) pair when there is one.
func (p *Pipeline) resetReadsLocked() {
	p.readGen++
	p.dataGen++

	switch {
	case p.sessState == SessionLoading:
		p.schema = Derived[[]Field]{State: ReadLoading}
		p.length = Derived[int64]{State: ReadLoading}
		p.data = Derived[*Table]{State: ReadLoading}
		return
	case p.sess == nil || p.snapshot == nil:
		p.schema = Derived[[]Field]{}
		p.length = Derived[int64]{}
		p.data = Derived[*Table]{}
		return
	}

	key := ViewKey{SessionID: p.sess.ID(), SnapshotID: *p.snapshot}
	planner := p.sess.Query()
	readGen := p.readGen

	p.schema = Derived[[]Field]{State: ReadLoading, Key: key}
	startRead(p, "schema", key, &p.schema,
		func() bool { return p.readGen == readGen },
		func(ctx context.Context) ([]Field, error) { return planner.Schema(ctx, key.SnapshotID) })

	p.length = Derived[int64]{State: ReadLoading, Key: key}
	startRead(p, "length", key, &p.length,
		func() bool { return p.readGen == readGen },
		func(ctx context.Context) (int64, error) { return planner.Length(ctx, key.SnapshotID) })

	p.issueDataLocked(key)
}

func (p *Pipeline) issueDataLocked(key ViewKey) {
	planner := p.sess.Query()
	readGen, dataGen, page := p.readGen, p.dataGen, p.page

	p.data = Derived[*Table]{State: ReadLoading, Key: key}
	startRead(p, "data", key, &p.data,
		func() bool { return p.readGen == readGen && p.dataGen == dataGen },
		func(ctx context.Context) (*Table, error) { return planner.Data(ctx, key.SnapshotID, page) })
}

// startRead runs read in the background and stores its outcome in slot
// unless current reports, under the pipeline lock, that it was superseded.
func startRead[T any](p *Pipeline, what string, key ViewKey, slot *Derived[T], current func() bool, read func(context.Context) (T, error)) {
	p.wg.Go(func() {
		v, err := read(p.ctx)

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed || !current() {
			p.logger.Debug().
				Str("read", what).
				Int("snapshot", key.SnapshotID).
				Msg("discarded stale read")
			return
		}
		if err != nil {
			*slot = Derived[T]{State: ReadFailed, Key: key, Err: err}
			p.logger.Warn().Err(err).Str("read", what).Int("snapshot", key.SnapshotID).Msg("read failed")
		} else {
			*slot = Derived[T]{State: ReadReady, Key: key, Value: v}
		}
		p.notifyLocked()
	})
}

// Session returns the current ready session, or nil.
func (p *Pipeline) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess
}

// Schema returns the latest schema read.
func (p *Pipeline) Schema() Derived[[]Field] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.schema
}

// Length returns the latest length read.
func (p *Pipeline) Length() Derived[int64] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.length
}

// Data returns the latest data read.
func (p *Pipeline) Data() Derived[*Table] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

// View returns the current combined view.
func (p *Pipeline) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *Pipeline) viewLocked() View {
	v := View{
		Session: SessionStatus{
			State:       p.sessState,
			ManifestURL: p.manifestURL,
			ArrayURL:    p.arrayURL,
			Session:     p.sess,
			Err:         p.sessErr,
		},
		Page: p.page,
	}
	if p.snapshot != nil {
		id := *p.snapshot
		v.Snapshot = &id
	}

	if p.schema.State == ReadReady && p.length.State == ReadReady && p.data.State == ReadReady &&
		p.schema.Key == p.length.Key && p.length.Key == p.data.Key {
		v.Displayable = true
		v.Key = p.schema.Key
		v.Schema = p.schema.Value
		v.Length = p.length.Value
		v.Data = p.data.Value
		return v
	}

	switch {
	case p.sessErr != nil:
		v.Err = p.sessErr
	case p.schema.Err != nil:
		v.Err = p.schema.Err
	case p.length.Err != nil:
		v.Err = p.length.Err
	case p.data.Err != nil:
		v.Err = p.data.Err
	}
	return v
}

// Subscribe returns a channel that always holds the most recent View,
// starting with the current one, and a function that ends the
// subscription. Intermediate views a slow reader misses are dropped. The
// channel is closed on unsubscribe or when the pipeline closes.
func (p *Pipeline) Subscribe() (<-chan View, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan View, 1)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	ch <- p.viewLocked()

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
}

func (p *Pipeline) notifyLocked() {
	if len(p.subs) == 0 {
		return
	}
	v := p.viewLocked()
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Close disconnects the pipeline: pending results are discarded, background
// work is waited for and the current session is closed. Inputs given after
// Close are ignored.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	s := p.sess
	p.sess = nil
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.logger.Debug().Msg("pipeline closed")
	if s != nil {
		return s.Close()
	}
	return nil
}
