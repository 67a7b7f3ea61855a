package domain

// Identity field names probed on external store records.
// FieldUID is the canonical field stamped by this engine; the rest are legacy
// names still emitted by older tool versions.
const (
	FieldUID           = "uid"
	FieldAnnotationUID = "annotationUID"
	FieldUUID          = "uuid"
	FieldID            = "id"
)

// DefaultIdentityFields is the probe order used when none is configured.
var DefaultIdentityFields = []string{FieldUID, FieldAnnotationUID, FieldUUID, FieldID}

// DefaultTool is the free-form region tool registered with the rendering engine.
const DefaultTool = "FreehandRoi"

// LabelPrefix is prepended to the label counter to build display names.
const LabelPrefix = "Label"
