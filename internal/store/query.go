package store

import (
	"context"
	"strings"

	"github.com/ehr/chartcore/internal/platform/fhir"
)

// QueryOptions tune one query dispatch. ShowLoadingScreen marks the query
// as gating the full-screen loading indicator.
type QueryOptions struct {
	ShowLoadingScreen bool
}

// Query drives the per-query-string state machine
// absent→loading→{loaded|error}. The first dispatch of a query string
// issues the fetch and blocks until it resolves; re-dispatching while
// loading or resolved is a no-op, so at most one fetch is ever issued per
// query string. Loaded and error are terminal: there is no automatic retry
// or invalidation.
func (s *Store) Query(ctx context.Context, query string, opts QueryOptions) error {
	s.mu.Lock()
	if _, dispatched := s.queries[query]; dispatched {
		s.mu.Unlock()
		return nil
	}
	s.queries[query] = &queryRecord{status: QueryLoading, showLoadingScreen: opts.ShowLoadingScreen}
	s.mu.Unlock()

	s.metrics.QueriesDispatched.Inc()
	s.log.Debug().Str("query", query).Msg("dispatching query")

	result, err := s.remote.Get(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.queries[query]
	if err != nil {
		rec.status = QueryError
		rec.err = err
		s.showErrors = true
		s.metrics.QueryErrors.Inc()
		s.log.Error().Err(err).Str("query", query).Msg("query failed")
		return err
	}

	for _, rt := range result.Unrecognized {
		s.log.Warn().Str("query", query).Str("resourceType", rt).Msg("skipping unrecognized resource in query result")
	}
	for _, r := range result.Resources {
		s.server.Put(r)
	}
	rec.status = QueryLoaded
	s.metrics.QueriesLoaded.Inc()

	if strings.HasPrefix(query, fhir.KindObservation.Type()) {
		s.rebuildObsIndexLocked()
	}
	s.maybeRefreshUnreadLocked()

	s.log.Debug().Str("query", query).Int("resources", len(result.Resources)).Msg("query loaded")
	return nil
}

// QueryStateFor returns the state of a query string, if it was ever
// dispatched.
func (s *Store) QueryStateFor(query string) (QueryState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.queries[query]
	if !ok {
		return QueryState{}, false
	}
	return QueryState{Status: rec.status, ShowLoadingScreen: rec.showLoadingScreen, Err: rec.err}, true
}

// AnyLoadingScreen reports whether any loading-screen-flagged query is
// still in flight. UIs gate the full-screen indicator on it.
func (s *Store) AnyLoadingScreen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.queries {
		if rec.status == QueryLoading && rec.showLoadingScreen {
			return true
		}
	}
	return false
}
