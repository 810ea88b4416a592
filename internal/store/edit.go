package store

import (
	"fmt"

	"github.com/ehr/chartcore/internal/platform/fhir"
)

// Edit records the resource as a pending local change. The overlay entry
// overrides the server-confirmed value in the working view. Editing clears
// any save confirmation state, since a new unsaved change now exists.
func (s *Store) Edit(res *fhir.Resource) error {
	if err := validKind(res); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editLocked(res.Clone())
	return nil
}

// editLocked is the shared edit path; res must already be a private clone.
func (s *Store) editLocked(res *fhir.Resource) {
	// A previously auto-generated resource becomes a real edit on the first
	// explicit touch.
	s.autoGen.Remove(res.Kind, res.ID)
	s.edits.Put(res)
	s.saveStatus = SaveIdle
	s.saveErr = nil
	s.maybeRefreshUnreadLocked()
}

// UndoEdits drops the resource's pending changes. The working view reverts
// to the server-confirmed entry, or to absence when the server never held
// it.
func (s *Store) UndoEdits(res *fhir.Resource) error {
	if err := validKind(res); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits.Remove(res.Kind, res.ID)
	s.maybeRefreshUnreadLocked()
	return nil
}

// UndoAll clears every overlay bucket. Auto-generated display resources and
// soft deletions are untouched.
func (s *Store) UndoAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = NewGraph()
	s.maybeRefreshUnreadLocked()
}

// AddAutoGenerated inserts a resource into the working view only, not the
// overlay. Used for resources synthesized for display that the user has not
// actively edited.
func (s *Store) AddAutoGenerated(res *fhir.Resource) error {
	if err := validKind(res); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoGen.Put(res.Clone())
	s.maybeRefreshUnreadLocked()
	return nil
}

// Delete soft-deletes the resource: it disappears from the working view and
// the overlay but is held in the deletion set for undo. Nothing is sent to
// the server until the deletion is saved or the resource is deleted
// immediately.
func (s *Store) Delete(res *fhir.Resource) error {
	if err := validKind(res); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := res.Clone()
	s.deleted[r.Ref()] = r
	s.edits.Remove(r.Kind, r.ID)
	s.autoGen.Remove(r.Kind, r.ID)
	s.maybeRefreshUnreadLocked()
	return nil
}

// UndoDelete reverses a soft deletion. The working view's entry reverts to
// the server-confirmed payload.
func (s *Store) UndoDelete(res *fhir.Resource) error {
	if err := validKind(res); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, res.Ref())
	s.maybeRefreshUnreadLocked()
	return nil
}

func validKind(res *fhir.Resource) error {
	if res == nil {
		return fmt.Errorf("%w: nil resource", ErrNotFound)
	}
	if res.Kind.Type() == "" {
		return fmt.Errorf("%w: kind %d", fhir.ErrUnknownKind, res.Kind)
	}
	return nil
}
