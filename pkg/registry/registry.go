// Package registry holds the ordered, UI-facing list of annotations and the
// session label counter.
package registry

import (
	"sync"

	"github.com/aretw0/regions/pkg/domain"
)

// Registry is the local annotation list. Insertion order drives display order
// and uids are unique within it. The label counter only ever grows.
type Registry struct {
	mu      sync.RWMutex
	entries []domain.Annotation
	counter int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Append registers uid under the next label. It returns false, without
// consuming a label, if uid is already present.
func (r *Registry) Append(uid string, payload map[string]any) (domain.Annotation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(uid) >= 0 {
		return domain.Annotation{}, false
	}
	r.counter++
	a := domain.Annotation{
		UID:         uid,
		DisplayName: domain.LabelName(r.counter),
		Payload:     payload,
		Visible:     true,
	}
	r.entries = append(r.entries, a)
	return a, true
}

// Remove drops uid. It reports whether the entry existed.
func (r *Registry) Remove(uid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(uid)
	if i < 0 {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return true
}

// Get looks up uid.
func (r *Registry) Get(uid string) (domain.Annotation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(uid)
	if i < 0 {
		return domain.Annotation{}, false
	}
	return r.entries[i], true
}

// Contains reports whether uid is registered.
func (r *Registry) Contains(uid string) bool {
	_, ok := r.Get(uid)
	return ok
}

// SetActive marks uid active and every other entry inactive.
func (r *Registry) SetActive(uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		r.entries[i].Active = r.entries[i].UID == uid
		if r.entries[i].Active {
			r.entries[i].Visible = true
		}
	}
}

// SetAllPassive marks every entry visible and inactive.
func (r *Registry) SetAllPassive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		r.entries[i].Visible = true
		r.entries[i].Active = false
	}
}

// Snapshot returns a copy of the entries in display order.
func (r *Registry) Snapshot() []domain.Annotation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Annotation(nil), r.entries...)
}

// Labels returns the presentation list in display order.
func (r *Registry) Labels() []domain.Label {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Label, len(r.entries))
	for i, a := range r.entries {
		out[i] = a.Label()
	}
	return out
}

// UIDs returns the registered uids in display order.
func (r *Registry) UIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.entries))
	for i, a := range r.entries {
		out[i] = a.UID
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Counter returns the highest label number issued so far.
func (r *Registry) Counter() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counter
}

// Rebuild atomically replaces the list with kept followed by fresh.
// Entries in fresh receive new labels continuing from the counter; their
// DisplayName is overwritten. It returns the resulting list.
func (r *Registry) Rebuild(kept, fresh []domain.Annotation) []domain.Annotation {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]domain.Annotation, 0, len(kept)+len(fresh))
	next = append(next, kept...)
	for _, a := range fresh {
		r.counter++
		a.DisplayName = domain.LabelName(r.counter)
		next = append(next, a)
	}
	r.entries = next
	return append([]domain.Annotation(nil), next...)
}

// Clear drops every entry. The label counter is kept so names are never reissued.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

func (r *Registry) indexOf(uid string) int {
	for i, a := range r.entries {
		if a.UID == uid {
			return i
		}
	}
	return -1
}
