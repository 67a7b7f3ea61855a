package middleware

import "github.com/aretw0/regions/pkg/ports"

// Middleware allows wrapping a RecordStore to add behavior.
// Wrappers keep ports.Splicer when the wrapped store has it.
type Middleware func(ports.RecordStore) ports.RecordStore
