package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/psantana5/ytconvert/pkg/models"
)

// DefaultMaxRecords bounds the in-memory log
const DefaultMaxRecords = 1000

// MemoryStore keeps the most recent records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.ConversionRecord
	order   []string // insertion order, oldest first
	max     int
}

// NewMemoryStore creates an in-memory store holding at most max records
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	return &MemoryStore{
		records: make(map[string]*models.ConversionRecord),
		max:     max,
	}
}

// SaveConversion stores a copy of rec, evicting the oldest record when full
func (s *MemoryStore) SaveConversion(rec *models.ConversionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("conversion record has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = &cp

	for len(s.order) > s.max {
		delete(s.records, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// GetConversion retrieves a record by id
func (s *MemoryStore) GetConversion(id string) (*models.ConversionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListConversions returns up to limit records, newest first
func (s *MemoryStore) ListConversions(limit int) ([]*models.ConversionRecord, error) {
	limit = normalizeLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ConversionRecord, 0, len(s.records))
	for _, rec := range s.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteConversionsBefore drops records created before cutoff
func (s *MemoryStore) DeleteConversionsBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	kept := s.order[:0]
	for _, id := range s.order {
		if s.records[id].CreatedAt.Before(cutoff) {
			delete(s.records, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// HealthCheck always succeeds
func (s *MemoryStore) HealthCheck() error { return nil }

// Vacuum is a no-op
func (s *MemoryStore) Vacuum() error { return nil }
