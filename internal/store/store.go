// Package store is the client-side state core for a clinical record
// editor: an in-memory copy of the server-known resource graph, an overlay
// of uncommitted local edits, query and save coordination against the
// remote server, and the read/unread tracker.
//
// All state lives in one container with single-writer discipline: every
// mutation step runs entirely inside one critical section, and network
// awaits happen strictly outside it, bracketed by explicit state
// transitions. Readers take immutable snapshots; derived views are always
// computed from one consistent snapshot, never from a mix of pre- and
// post-mutation state.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/chartcore/internal/platform/fhir"
	"github.com/ehr/chartcore/internal/platform/telemetry"
	"github.com/ehr/chartcore/internal/views"
)

// ErrNotFound is returned when a command names a resource the working view
// does not hold.
var ErrNotFound = errors.New("resource not found")

// Remote is the consumed capability of the remote resource server. Both
// flows run to completion once issued; timeout policy belongs to the
// implementation (its HTTP client), never to the store.
type Remote interface {
	// Get runs a resource-type-prefixed query and returns either a single
	// resource or a bundle of entries.
	Get(ctx context.Context, query string) (*fhir.QueryResult, error)
	// Post submits an atomic transaction bundle.
	Post(ctx context.Context, tx *fhir.Bundle) (*fhir.Bundle, error)
	// Delete removes a single resource by its type+id reference.
	Delete(ctx context.Context, res *fhir.Resource) error
}

// Store is the process-wide state container.
type Store struct {
	log     zerolog.Logger
	remote  Remote
	metrics *telemetry.Metrics

	mu sync.Mutex

	server  *Graph // server-confirmed snapshot
	autoGen *Graph // display-only synthesized resources, not user edits
	edits   *Graph // the uncommitted-edit overlay

	deleted map[string]*fhir.Resource // soft deletions, held for undo
	removed map[string]*fhir.Resource // optimistic immediate removals

	queries    map[string]*queryRecord
	showErrors bool

	saveStatus SaveStatus
	saveErr    error
	saveGen    uint64
	saving     bool

	unread       map[string]bool
	trackingList string
	lastList     *fhir.Resource

	searchFilter string
	hiddenGroups map[string]bool
	obsIndex     map[string][]*fhir.Resource
}

type queryRecord struct {
	status            QueryStatus
	showLoadingScreen bool
	err               error
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics attaches a metric set.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithTrackingList designates the List resource that drives the unread
// tracker, by reference ("List/id").
func WithTrackingList(ref string) Option {
	return func(s *Store) { s.trackingList = ref }
}

// New creates an empty store over the remote capability.
func New(remote Remote, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		log:          log,
		remote:       remote,
		metrics:      telemetry.New(nil),
		server:       NewGraph(),
		autoGen:      NewGraph(),
		edits:        NewGraph(),
		deleted:      make(map[string]*fhir.Resource),
		removed:      make(map[string]*fhir.Resource),
		queries:      make(map[string]*queryRecord),
		unread:       make(map[string]bool),
		hiddenGroups: make(map[string]bool),
		obsIndex:     make(map[string][]*fhir.Resource),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// workingLocked recomputes the merged working view: server-confirmed
// resources, overlaid with auto-generated entries, overlaid with edits,
// minus everything deleted or optimistically removed. Recomputing from
// scratch on every read keeps stale-merge bugs structurally impossible.
func (s *Store) workingLocked() *Graph {
	g := s.server.Clone()
	s.autoGen.Each(g.Put)
	s.edits.Each(g.Put)
	for _, r := range s.deleted {
		g.Remove(r.Kind, r.ID)
	}
	for _, r := range s.removed {
		g.Remove(r.Kind, r.ID)
	}
	return g
}

func (s *Store) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		working:      s.workingLocked(),
		Queries:      make(map[string]QueryState, len(s.queries)),
		Save:         SaveState{Status: s.saveStatus, Err: s.saveErr, Generation: s.saveGen},
		Unread:       make(map[string]bool, len(s.unread)),
		SearchFilter: s.searchFilter,
		HiddenGroups: make(map[string]bool, len(s.hiddenGroups)),
		ObsIndex:     s.obsIndex,
		ShowErrors:   s.showErrors,
	}
	for q, rec := range s.queries {
		snap.Queries[q] = QueryState{Status: rec.status, ShowLoadingScreen: rec.showLoadingScreen, Err: rec.err}
	}
	for ref := range s.unread {
		snap.Unread[ref] = true
	}
	for g, hidden := range s.hiddenGroups {
		snap.HiddenGroups[g] = hidden
	}
	return snap
}

// SnapshotView returns an immutable view of the current state.
func (s *Store) SnapshotView() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SaveStateNow returns the current save state and generation.
func (s *Store) SaveStateNow() SaveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SaveState{Status: s.saveStatus, Err: s.saveErr, Generation: s.saveGen}
}

// ShowErrors reports whether any query has failed since startup.
func (s *Store) ShowErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showErrors
}

// SetSearchFilter sets the free-text timeline filter.
func (s *Store) SetSearchFilter(filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchFilter = filter
}

// SetTimelineVisibility shows or hides a timeline item group.
func (s *Store) SetTimelineVisibility(group string, shown bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shown {
		delete(s.hiddenGroups, group)
	} else {
		s.hiddenGroups[group] = true
	}
}

// ImportServer seeds the server-confirmed graph, e.g. from an offline
// snapshot. Entries go through the same commit path as confirmed query
// results.
func (s *Store) ImportServer(resources []*fhir.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range resources {
		s.server.Put(r.Clone())
	}
	s.rebuildObsIndexLocked()
	s.maybeRefreshUnreadLocked()
}

// ExportServer returns the server-confirmed resources, for snapshot
// persistence. Uncommitted edits and deletions are never exported.
func (s *Store) ExportServer() []*fhir.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fhir.Resource
	for _, k := range fhir.AllKinds {
		out = append(out, s.server.All(k)...)
	}
	return out
}

// PendingEdits returns the uncommitted overlay entries, sorted by
// reference. UIs use it for unsaved-change indicators.
func (s *Store) PendingEdits() []*fhir.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fhir.Resource
	s.edits.Each(func(r *fhir.Resource) { out = append(out, r) })
	sort.Slice(out, func(i, j int) bool { return out[i].Ref() < out[j].Ref() })
	return out
}

// SynthesizeStandaloneTopics wraps unreferenced conditions and encounters
// in auto-generated topic compositions and inserts them into the working
// view (not the overlay). Idempotent: already-wrapped resources are seen as
// referenced on the next call.
func (s *Store) SynthesizeStandaloneTopics() []*fhir.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := views.SynthesizeStandaloneTopics(s.snapshotLocked())
	for _, c := range created {
		s.autoGen.Put(c.Clone())
	}
	return created
}

func (s *Store) rebuildObsIndexLocked() {
	s.obsIndex = views.ObservationsByCode(s.snapshotLocked())
}

// currentLocked returns the working-view entry for (kind, id), honoring
// overlay precedence and deletions.
func (s *Store) currentLocked(kind fhir.Kind, id string) *fhir.Resource {
	var r *fhir.Resource
	if e, ok := s.edits.Get(kind, id); ok {
		r = e
	} else if a, ok := s.autoGen.Get(kind, id); ok {
		r = a
	} else if sv, ok := s.server.Get(kind, id); ok {
		r = sv
	}
	if r == nil {
		return nil
	}
	ref := r.Ref()
	if _, gone := s.deleted[ref]; gone {
		return nil
	}
	if _, gone := s.removed[ref]; gone {
		return nil
	}
	return r
}
