package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ehr/chartcore/internal/platform/fhir"
	"github.com/ehr/chartcore/pkg/fhirmodels"
)

// ErrSaveInFlight is returned when a save is dispatched while a transaction
// is already outstanding. The pending edits are untouched; the caller may
// retry after the in-flight save resolves.
var ErrSaveInFlight = errors.New("save transaction already in flight")

// ErrSaveFailed tags any save response that is not a full success. The
// store never models partial server application: either the whole batch is
// reflected locally or none of it is.
var ErrSaveFailed = errors.New("save transaction failed")

// NoteDraft is freeform rich-text content attached to a save. The
// coordinator synthesizes a document resource from it, referencing every
// saved resource annotated with its source version id.
type NoteDraft struct {
	Title string
	Text  string
}

// SaveScope selects which pending edits a save drains.
type SaveScope struct {
	ref   string
	match func(*fhir.Resource) bool
	all   bool
	note  *NoteDraft
}

// SaveResource scopes the save to the single pending edit with the given
// reference.
func SaveResource(ref string) SaveScope {
	return SaveScope{ref: ref}
}

// SaveMatching scopes the save to pending edits satisfying the predicate.
func SaveMatching(match func(*fhir.Resource) bool) SaveScope {
	return SaveScope{match: match}
}

// SaveAll scopes the save to every pending edit.
func SaveAll() SaveScope {
	return SaveScope{all: true}
}

// WithNote attaches a note draft to the scope.
func (sc SaveScope) WithNote(n NoteDraft) SaveScope {
	sc.note = &n
	return sc
}

// Save drains the scoped pending edits into one atomic transaction. On
// success every saved resource is committed into the server-confirmed graph
// and removed from the overlay in the same mutation step, and the save
// generation increments once. On failure the overlay is left exactly as it
// was, so the caller can retry.
//
// At most one transaction is outstanding at a time; a concurrent dispatch
// gets ErrSaveInFlight rather than queueing or merging.
func (s *Store) Save(ctx context.Context, scope SaveScope) error {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInFlight
	}
	selected := s.selectPendingLocked(scope)
	if scope.note != nil {
		selected = append(selected, composeNote(*scope.note, selected))
	}
	if len(selected) == 0 {
		s.mu.Unlock()
		return nil
	}
	tx := fhir.NewTransaction(selected)
	s.saving = true
	s.saveStatus = SaveSaving
	s.saveErr = nil
	s.mu.Unlock()

	s.metrics.SavesAttempted.Inc()
	s.metrics.TransactionEntries.Observe(float64(len(selected)))

	resp, err := s.remote.Post(ctx, tx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false

	committed, err := reconcile(selected, resp, err)
	if err != nil {
		s.saveStatus = SaveError
		s.saveErr = err
		s.metrics.SaveErrors.Inc()
		payload, _ := json.Marshal(tx)
		s.log.Error().Err(err).RawJSON("transaction", payload).Msg("save failed, pending edits preserved")
		return err
	}

	for i, r := range selected {
		s.server.Put(committed[i])
		// Clear the overlay entry only if it is still the exact edit we
		// submitted; an edit made while the save was in flight stays pending.
		if cur, ok := s.edits.Get(r.Kind, r.ID); ok && cur == r {
			s.edits.Remove(r.Kind, r.ID)
		}
	}
	s.saveGen++
	if s.edits.Empty() {
		s.saveStatus = SaveSaved
	} else {
		s.saveStatus = SaveIdle
	}
	s.metrics.SavesSucceeded.Inc()
	s.maybeRefreshUnreadLocked()
	s.log.Info().Int("resources", len(selected)).Uint64("generation", s.saveGen).Msg("save committed")
	return nil
}

// reconcile validates the transaction response and produces the committed
// resources, with server-assigned ids and versions applied. Any shortfall
// fails the whole batch before a single local commit happens.
func reconcile(selected []*fhir.Resource, resp *fhir.Bundle, postErr error) ([]*fhir.Resource, error) {
	if postErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrSaveFailed, postErr)
	}
	if !fhir.IsTransactionSuccess(resp) {
		return nil, fmt.Errorf("%w: response is not a full transaction success", ErrSaveFailed)
	}
	if len(resp.Entry) != len(selected) {
		return nil, fmt.Errorf("%w: %d entries submitted, %d confirmed", ErrSaveFailed, len(selected), len(resp.Entry))
	}
	committed := make([]*fhir.Resource, len(selected))
	for i, r := range selected {
		c := r.Clone()
		if c.IsTemp() {
			assigned := fhir.AssignedRef(resp.Entry[i])
			if assigned == nil {
				return nil, fmt.Errorf("%w: no id assigned for created resource %s", ErrSaveFailed, r.Ref())
			}
			c.ID = assigned.ID
		}
		if v := fhir.AssignedVersion(resp.Entry[i]); v != "" {
			c.VersionID = v
		}
		committed[i] = c
	}
	return committed, nil
}

// selectPendingLocked picks the overlay entries matching the scope, in
// deterministic reference order.
func (s *Store) selectPendingLocked(scope SaveScope) []*fhir.Resource {
	var out []*fhir.Resource
	s.edits.Each(func(r *fhir.Resource) {
		switch {
		case scope.all:
			out = append(out, r)
		case scope.ref != "":
			if r.Ref() == scope.ref {
				out = append(out, r)
			}
		case scope.match != nil:
			if scope.match(r) {
				out = append(out, r)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Ref() < out[j].Ref() })
	return out
}

// composeNote synthesizes the document resource for a note draft. Each
// section entry references a saved resource, annotated with the version id
// it had at composition time so later diffs can tell what the author saw.
func composeNote(draft NoteDraft, saved []*fhir.Resource) *fhir.Resource {
	entries := make([]any, 0, len(saved))
	for _, r := range saved {
		entry := map[string]any{"reference": r.Ref()}
		if r.VersionID != "" {
			entry["extension"] = []any{
				map[string]any{
					"url":         fhirmodels.ExtSourceVersionID,
					"valueString": r.VersionID,
				},
			}
		}
		entries = append(entries, entry)
	}
	body := map[string]any{
		"resourceType": fhir.KindComposition.Type(),
		"status":       fhirmodels.CompositionStatusPreliminary,
		"title":        draft.Title,
		"date":         time.Now().UTC().Format(time.RFC3339),
		"section": []any{
			map[string]any{
				"text": map[string]any{
					"status": "additional",
					"div":    draft.Text,
				},
				"entry": entries,
			},
		},
	}
	return &fhir.Resource{
		Kind: fhir.KindComposition,
		ID:   fhir.NewTempID(),
		Body: body,
	}
}

// DeleteImmediately removes the resource from the working view right away
// and issues a direct server delete. On success the removal is committed
// into the server-confirmed graph and the save generation increments. On
// failure the error is surfaced but the optimistic local removal stays: the
// working view does not roll back automatically.
//
// A resource still carrying a temporary id was never persisted server-side;
// it is dropped locally without a remote call. Immediate deletion is not
// undoable.
func (s *Store) DeleteImmediately(ctx context.Context, res *fhir.Resource) error {
	if err := validKind(res); err != nil {
		return err
	}
	s.mu.Lock()
	r := res.Clone()
	s.edits.Remove(r.Kind, r.ID)
	s.autoGen.Remove(r.Kind, r.ID)
	if r.IsTemp() {
		s.maybeRefreshUnreadLocked()
		s.mu.Unlock()
		return nil
	}
	s.removed[r.Ref()] = r
	s.mu.Unlock()

	s.metrics.DeletesAttempted.Inc()
	err := s.remote.Delete(ctx, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.saveStatus = SaveError
		s.saveErr = err
		s.metrics.DeleteErrors.Inc()
		s.log.Error().Err(err).Str("ref", r.Ref()).Msg("immediate delete failed, optimistic removal kept")
		return err
	}
	s.server.Remove(r.Kind, r.ID)
	delete(s.removed, r.Ref())
	s.saveGen++
	s.maybeRefreshUnreadLocked()
	s.log.Info().Str("ref", r.Ref()).Uint64("generation", s.saveGen).Msg("immediate delete committed")
	return nil
}
