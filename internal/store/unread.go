package store

import (
	"fmt"

	"github.com/ehr/chartcore/internal/platform/fhir"
)

// MarkRead removes a single reference from the unread set, independently of
// the tracking list resource.
func (s *Store) MarkRead(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unread, ref)
}

// MarkUnread adds a single reference to the unread set.
func (s *Store) MarkUnread(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[ref] = true
}

// IsUnread reports whether the reference is currently unread.
func (s *Store) IsUnread(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[ref]
}

// AddToList appends an entry to a tracking List resource, routed through
// the standard edit path so the change is saved and undone like any other
// edit. Adding an entry that is already present is a no-op.
func (s *Store) AddToList(listRef, entryRef string) error {
	return s.mutateList(listRef, func(entries []any) ([]any, bool) {
		for _, e := range entries {
			if entry, ok := e.(map[string]any); ok {
				if fhir.StrAt(fhir.MapAt(entry, "item"), "reference") == entryRef {
					return entries, false
				}
			}
		}
		return append(entries, map[string]any{"item": map[string]any{"reference": entryRef}}), true
	})
}

// RemoveFromList removes an entry from a tracking List resource, routed
// through the standard edit path.
func (s *Store) RemoveFromList(listRef, entryRef string) error {
	return s.mutateList(listRef, func(entries []any) ([]any, bool) {
		kept := make([]any, 0, len(entries))
		changed := false
		for _, e := range entries {
			if entry, ok := e.(map[string]any); ok {
				if fhir.StrAt(fhir.MapAt(entry, "item"), "reference") == entryRef {
					changed = true
					continue
				}
			}
			kept = append(kept, e)
		}
		return kept, changed
	})
}

func (s *Store) mutateList(listRef string, mutate func([]any) ([]any, bool)) error {
	p := fhir.ParseRef(listRef)
	if p == nil || p.Kind() != fhir.KindList {
		return fmt.Errorf("not a list reference: %q", listRef)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.currentLocked(fhir.KindList, p.ID)
	if cur == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, listRef)
	}
	list := cur.Clone()
	entries, changed := mutate(fhir.SliceAt(list.Body, "entry"))
	if !changed {
		return nil
	}
	list.Body["entry"] = entries
	s.editLocked(list)
	return nil
}

// maybeRefreshUnreadLocked fully replaces the unread set whenever the
// designated tracking list resource changed: the new unread set is exactly
// the list's current entries. MarkRead/MarkUnread mutations survive until
// the list itself changes again.
func (s *Store) maybeRefreshUnreadLocked() {
	if s.trackingList == "" {
		return
	}
	p := fhir.ParseRef(s.trackingList)
	if p == nil {
		return
	}
	cur := s.currentLocked(p.Kind(), p.ID)
	if cur == s.lastList {
		return
	}
	s.lastList = cur
	s.unread = make(map[string]bool)
	if cur == nil {
		return
	}
	for _, ref := range listEntryRefs(cur) {
		s.unread[ref] = true
	}
}

func listEntryRefs(list *fhir.Resource) []string {
	var refs []string
	for _, e := range fhir.SliceAt(list.Body, "entry") {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if ref := fhir.StrAt(fhir.MapAt(entry, "item"), "reference"); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}
