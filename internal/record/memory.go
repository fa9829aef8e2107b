package record

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// MemoryStore is a thread-safe in-process Store. Records are copied through
// JSON on the way in and out, so callers observe the same value types an
// HTTP-backed store produces (numbers as float64, nil for null).
//
// Create assigns the next free key of the collection unless the record
// already carries one.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[int64]Record // records by collection and key
	nextID  map[string]int64            // last assigned key per collection
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[int64]Record),
		nextID:  make(map[string]int64),
	}
}

func (s *MemoryStore) Get(_ context.Context, c Collection, id int64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, found := s.records[c.Name][id]
	if !found {
		return nil, &NotFoundError{Collection: c.Name, ID: id}
	}
	return clone(r)
}

// List returns the matching records ordered by key.
func (s *MemoryStore) List(_ context.Context, c Collection, f Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.records[c.Name]))
	for id, r := range s.records[c.Name] {
		if Matches(r, f) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]Record, 0, len(ids))
	for _, id := range ids {
		r, err := clone(s.records[c.Name][id])
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

func (s *MemoryStore) Create(_ context.Context, c Collection, fields Record) (Record, error) {
	r, err := clone(fields)
	if err != nil {
		return nil, NewStoreError("create", c, 0, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[c.Name] == nil {
		s.records[c.Name] = make(map[int64]Record)
	}

	id, ok := IDOf(c, r)
	if !ok || id <= 0 {
		id = s.nextID[c.Name] + 1
	} else if _, taken := s.records[c.Name][id]; taken {
		return nil, NewStoreError("create", c, id, errors.New("duplicate key"))
	}
	if id > s.nextID[c.Name] {
		s.nextID[c.Name] = id
	}

	r[c.Key] = float64(id)
	s.records[c.Name][id] = r
	return clone(r)
}

// Update merges fields into the stored record. The key cannot change.
func (s *MemoryStore) Update(_ context.Context, c Collection, id int64, fields Record) (Record, error) {
	patch, err := clone(fields)
	if err != nil {
		return nil, NewStoreError("update", c, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, found := s.records[c.Name][id]
	if !found {
		return nil, &NotFoundError{Collection: c.Name, ID: id}
	}
	for k, v := range patch {
		r[k] = v
	}
	r[c.Key] = float64(id)
	return clone(r)
}

func (s *MemoryStore) Delete(_ context.Context, c Collection, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.records[c.Name][id]; !found {
		return &NotFoundError{Collection: c.Name, ID: id}
	}
	delete(s.records[c.Name], id)
	return nil
}

// Len returns the number of records held for c.
func (s *MemoryStore) Len(c Collection) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[c.Name])
}

func clone(r Record) (Record, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = make(Record)
	}
	return out, nil
}
