package store

import (
	"fmt"
	"strings"

	"github.com/ehr/chartcore/internal/platform/fhir"
)

// QueryStatus is the lifecycle state of one dispatched query string.
// Loaded and Error are terminal; the coordinator never re-fetches.
type QueryStatus int

const (
	QueryLoading QueryStatus = iota
	QueryLoaded
	QueryError
)

func (s QueryStatus) String() string {
	switch s {
	case QueryLoading:
		return "loading"
	case QueryLoaded:
		return "loaded"
	case QueryError:
		return "error"
	}
	return "unknown"
}

// QueryState is the externally visible state of one query string.
type QueryState struct {
	Status            QueryStatus
	ShowLoadingScreen bool
	Err               error
}

// SaveStatus is the process-wide save lifecycle state.
type SaveStatus int

const (
	SaveIdle SaveStatus = iota
	SaveSaving
	SaveError
	SaveSaved
)

func (s SaveStatus) String() string {
	switch s {
	case SaveIdle:
		return "idle"
	case SaveSaving:
		return "saving"
	case SaveError:
		return "error"
	case SaveSaved:
		return "saved"
	}
	return "unknown"
}

// SaveState carries the save status plus the monotonically increasing
// generation counter. Generation moves forward each time a save or delete
// is confirmed by the server.
type SaveState struct {
	Status     SaveStatus
	Err        error
	Generation uint64
}

// Snapshot is an immutable read view of the store taken at one consistent
// point: the merged working view plus the coordinator and tracker state.
// Derived-view builders always work from a Snapshot, never from live store
// internals, so they can never observe a half-applied mutation.
type Snapshot struct {
	working *Graph

	Queries      map[string]QueryState
	Save         SaveState
	Unread       map[string]bool
	SearchFilter string
	HiddenGroups map[string]bool
	ObsIndex     map[string][]*fhir.Resource
	ShowErrors   bool
}

// Resource looks up a working-view resource by kind and id.
func (s *Snapshot) Resource(kind fhir.Kind, id string) (*fhir.Resource, bool) {
	return s.working.Get(kind, id)
}

// Resources returns the working-view resources of a kind, sorted by id.
func (s *Snapshot) Resources(kind fhir.Kind) []*fhir.Resource {
	return s.working.All(kind)
}

// ResourceByRef resolves a "Type/id" reference against the working view.
// A reference naming an unrecognized resource type yields
// fhir.ErrUnknownKind (a configuration error, not a runtime miss); empty or
// otherwise malformed input resolves leniently to a miss.
func (s *Snapshot) ResourceByRef(ref string) (*fhir.Resource, bool, error) {
	p := fhir.ParseRef(ref)
	if p == nil {
		if i := strings.Index(ref, "/"); i > 0 && !strings.Contains(ref, "://") {
			if _, ok := fhir.KindFromType(ref[:i]); !ok {
				return nil, false, fmt.Errorf("%w: %q", fhir.ErrUnknownKind, ref[:i])
			}
		}
		return nil, false, nil
	}
	r, ok := s.working.Get(p.Kind(), p.ID)
	return r, ok, nil
}

// Len returns the number of resources in the working view.
func (s *Snapshot) Len() int {
	return s.working.Len()
}
