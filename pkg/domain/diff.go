package domain

// RegistryDiff represents the changes between two label lists.
// It is designed to be serialized to JSON for partial updates on the client.
type RegistryDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	// Appended contains labels that were not in the old list, in display order.
	Appended []Label `json:"appended,omitempty"`

	// Removed contains uids that are no longer present.
	Removed []string `json:"removed,omitempty"`

	// Renamed maps uid to its new display name when a label survived but changed name.
	Renamed map[string]string `json:"renamed,omitempty"`

	// Selection is set when the selection changed. An empty UID means none.
	Selection *Selection `json:"selection,omitempty"`
}

// Diff calculates the difference between two registry snapshots.
// It returns nil when nothing changed.
func Diff(sessionID string, old, new []Label, oldSel, newSel Selection) *RegistryDiff {
	diff := &RegistryDiff{SessionID: sessionID}

	oldNames := make(map[string]string, len(old))
	for _, l := range old {
		oldNames[l.UID] = l.DisplayName
	}
	newUIDs := make(map[string]struct{}, len(new))

	for _, l := range new {
		newUIDs[l.UID] = struct{}{}
		name, existed := oldNames[l.UID]
		if !existed {
			diff.Appended = append(diff.Appended, l)
			continue
		}
		if name != l.DisplayName {
			if diff.Renamed == nil {
				diff.Renamed = make(map[string]string)
			}
			diff.Renamed[l.UID] = l.DisplayName
		}
	}

	for _, l := range old {
		if _, ok := newUIDs[l.UID]; !ok {
			diff.Removed = append(diff.Removed, l.UID)
		}
	}

	if oldSel != newSel {
		sel := newSel
		diff.Selection = &sel
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *RegistryDiff) IsEmpty() bool {
	return len(d.Appended) == 0 &&
		len(d.Removed) == 0 &&
		len(d.Renamed) == 0 &&
		d.Selection == nil
}
