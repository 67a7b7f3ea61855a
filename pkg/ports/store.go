package ports

import (
	"context"

	"github.com/aretw0/regions/pkg/domain"
)

// RecordStore is the annotation store owned by the rendering engine.
// Records are addressed by surface and tool and kept in insertion order.
type RecordStore interface {
	// Records returns a copy of every record for the surface and tool.
	Records(ctx context.Context, surface, tool string) ([]domain.Record, error)

	// AddRecord appends a record.
	AddRecord(ctx context.Context, surface, tool string, rec domain.Record) error

	// ReplaceRecord overwrites the record at index.
	// Returns domain.ErrIndexOutOfRange when index is not addressable.
	ReplaceRecord(ctx context.Context, surface, tool string, index int, rec domain.Record) error

	// ClearStore removes every record for the surface and tool.
	ClearStore(ctx context.Context, surface, tool string) error
}

// Splicer is implemented by stores that can remove a single record in place.
type Splicer interface {
	// RemoveRecordAt removes the record at index, shifting later records down.
	// Returns domain.ErrIndexOutOfRange when index is not addressable.
	RemoveRecordAt(ctx context.Context, surface, tool string, index int) error
}

// ImageSource resolves an uploaded image reference into an engine image id.
type ImageSource interface {
	Resolve(ctx context.Context, ref string) (string, error)
}
