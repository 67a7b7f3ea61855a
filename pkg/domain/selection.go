package domain

// Selection is either none or a single annotation in edit focus.
type Selection struct {
	UID string `json:"uid,omitempty"`
}

// NoSelection is the initial selection state.
var NoSelection = Selection{}

// Selected returns the selection focused on uid.
func Selected(uid string) Selection {
	return Selection{UID: uid}
}

// IsNone reports whether nothing is selected.
func (s Selection) IsNone() bool {
	return s.UID == ""
}
