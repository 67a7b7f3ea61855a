package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/regions/pkg/domain"
)

// Store implements ports.RecordStore and ports.Splicer in memory.
// Safe for concurrent use.
type Store struct {
	data map[string][]domain.Record
	mu   sync.RWMutex

	failRemovals  bool
	hideOnRemoval bool
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]domain.Record),
	}
}

// FailRemovals makes RemoveRecordAt report success without removing anything,
// the way some engines silently ignore positional removal.
func (s *Store) FailRemovals(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRemovals = fail
}

// HideSiblingsOnRemoval makes a successful removal clear the visible flag of
// every remaining record.
func (s *Store) HideSiblingsOnRemoval(hide bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hideOnRemoval = hide
}

// Records returns a copy of the records for surface and tool.
func (s *Store) Records(ctx context.Context, surface, tool string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.data[key(surface, tool)]
	out := make([]domain.Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out, nil
}

// AddRecord appends a copy of rec.
func (s *Store) AddRecord(ctx context.Context, surface, tool string, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(surface, tool)
	s.data[k] = append(s.data[k], rec.Clone())
	return nil
}

// ReplaceRecord overwrites the record at index.
func (s *Store) ReplaceRecord(ctx context.Context, surface, tool string, index int, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(surface, tool)
	if index < 0 || index >= len(s.data[k]) {
		return fmt.Errorf("replace %s[%d]: %w", k, index, domain.ErrIndexOutOfRange)
	}
	s.data[k][index] = rec.Clone()
	return nil
}

// RemoveRecordAt splices out the record at index.
func (s *Store) RemoveRecordAt(ctx context.Context, surface, tool string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(surface, tool)
	if index < 0 || index >= len(s.data[k]) {
		return fmt.Errorf("remove %s[%d]: %w", k, index, domain.ErrIndexOutOfRange)
	}
	if s.failRemovals {
		return nil
	}
	s.splice(k, index)
	return nil
}

// ClearStore drops every record for surface and tool.
func (s *Store) ClearStore(ctx context.Context, surface, tool string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key(surface, tool))
	return nil
}

// Drop removes the record at index regardless of FailRemovals, the way a user
// erasing a region inside the engine would. It reports whether a record was removed.
func (s *Store) Drop(surface, tool string, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(surface, tool)
	if index < 0 || index >= len(s.data[k]) {
		return false
	}
	s.data[k] = append(s.data[k][:index], s.data[k][index+1:]...)
	return true
}

func (s *Store) splice(k string, index int) {
	s.data[k] = append(s.data[k][:index], s.data[k][index+1:]...)
	if s.hideOnRemoval {
		for i := range s.data[k] {
			s.data[k][i].Visible = false
		}
	}
}

// add appends rec and returns its index. Caller must not hold the lock.
func (s *Store) add(surface, tool string, rec domain.Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(surface, tool)
	s.data[k] = append(s.data[k], rec.Clone())
	return len(s.data[k]) - 1
}

func (s *Store) at(surface, tool string, index int) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.data[key(surface, tool)]
	if index < 0 || index >= len(recs) {
		return domain.Record{}, false
	}
	return recs[index].Clone(), true
}

func key(surface, tool string) string {
	return surface + "/" + tool
}
