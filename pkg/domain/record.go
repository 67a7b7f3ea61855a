package domain

// Record is an entry in the external annotation store.
// Data is owned by the rendering engine; only identity fields are read here.
type Record struct {
	Data    map[string]any `json:"data"`
	Visible bool           `json:"visible"`
	Active  bool           `json:"active"`
}

// NewRecord returns a visible, passive record carrying data.
func NewRecord(data map[string]any) Record {
	if data == nil {
		data = make(map[string]any)
	}
	return Record{Data: data, Visible: true}
}

// Clone returns a copy whose top-level data map can be mutated independently.
func (r Record) Clone() Record {
	out := r
	out.Data = make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		out.Data[k] = v
	}
	return out
}

// CompletionEvent is a raw "annotation completed" notification from the engine.
// Index is the position of the completed record in the store, or -1 when the
// engine did not report one.
type CompletionEvent struct {
	Surface string `json:"surface"`
	Tool    string `json:"tool"`
	Record  Record `json:"record"`
	Index   int    `json:"index"`
}

// ToolOptions are passed when activating a tool.
type ToolOptions struct {
	MouseButtonMask int `json:"mouse_button_mask"`
}
