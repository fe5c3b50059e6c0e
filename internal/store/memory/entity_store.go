// Package memory provides the in-memory entity store. It is the only
// store the service has: state does not survive a restart.
package memory

import (
	"sort"
	"sync"

	"datewatch/internal/tracker"
)

type record struct {
	entity tracker.Entity
	// cycleMu serializes poll cycles and config updates for one entity.
	cycleMu *sync.Mutex
}

// EntityStore is a process-wide map from identity to entity state.
type EntityStore struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewEntityStore constructs an empty EntityStore.
func NewEntityStore() *EntityStore {
	return &EntityStore{records: make(map[string]*record)}
}

// Create registers a new entity. Returns ErrConflict when the identity
// is already present.
func (s *EntityStore) Create(entity tracker.Entity) (tracker.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[entity.Identity]; exists {
		return tracker.Entity{}, tracker.ErrConflict
	}
	s.records[entity.Identity] = &record{entity: entity, cycleMu: &sync.Mutex{}}
	return entity, nil
}

// Get fetches an entity snapshot by identity.
func (s *EntityStore) Get(identity string) (tracker.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identity]
	if !ok {
		return tracker.Entity{}, tracker.ErrNotFound
	}
	return rec.entity, nil
}

// List returns snapshots of all entities ordered by identity.
func (s *EntityStore) List() []tracker.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tracker.Entity, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Delete removes an entity.
func (s *EntityStore) Delete(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[identity]; !ok {
		return tracker.ErrNotFound
	}
	delete(s.records, identity)
	return nil
}

// ApplyConfig updates the mutable configuration fields named in the
// patch and returns the resulting snapshot.
func (s *EntityStore) ApplyConfig(identity string, patch tracker.ConfigPatch) (tracker.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identity]
	if !ok {
		return tracker.Entity{}, tracker.ErrNotFound
	}
	if patch.SourceLocator != nil {
		rec.entity.SourceLocator = *patch.SourceLocator
	}
	if patch.ModelCredential != nil {
		rec.entity.ModelCredential = *patch.ModelCredential
	}
	if patch.LocaleMode != nil {
		rec.entity.LocaleMode = *patch.LocaleMode
	}
	if patch.PollIntervalSeconds != nil {
		rec.entity.PollIntervalSeconds = *patch.PollIntervalSeconds
	}
	if patch.Timezone != nil {
		rec.entity.Timezone = *patch.Timezone
	}
	return rec.entity, nil
}

// RecordObserved stores the raw text of the latest successful fetch,
// regardless of whether the cycle goes on to commit.
func (s *EntityStore) RecordObserved(identity string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identity]
	if !ok {
		return tracker.ErrNotFound
	}
	rec.entity.LastObservedText = text
	return nil
}

// ApplyCommit writes the derived fields of a successful cycle as one
// atomic update. Readers see either the full prior state or the full
// new state.
func (s *EntityStore) ApplyCommit(identity string, commit tracker.Commit) (tracker.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identity]
	if !ok {
		return tracker.Entity{}, tracker.ErrNotFound
	}
	dayCount := commit.DayCount
	at := commit.At
	rec.entity.ResolvedDate = commit.ResolvedDate
	rec.entity.DayCount = &dayCount
	rec.entity.Weekday = commit.Weekday
	rec.entity.LastProcessedText = commit.ProcessedText
	rec.entity.LastUpdatedAt = &at
	return rec.entity, nil
}

// SetPolling flips the scheduler flag.
func (s *EntityStore) SetPolling(identity string, polling bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identity]
	if !ok {
		return tracker.ErrNotFound
	}
	rec.entity.IsPolling = polling
	return nil
}

// LockCycle acquires the entity's cycle lock, waiting if a cycle or
// config update is in flight.
func (s *EntityStore) LockCycle(identity string) (func(), error) {
	mu, err := s.cycleMutex(identity)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	return mu.Unlock, nil
}

// TryLockCycle acquires the cycle lock only if it is free.
func (s *EntityStore) TryLockCycle(identity string) (func(), bool, error) {
	mu, err := s.cycleMutex(identity)
	if err != nil {
		return nil, false, err
	}
	if !mu.TryLock() {
		return nil, false, nil
	}
	return mu.Unlock, true, nil
}

func (s *EntityStore) cycleMutex(identity string) (*sync.Mutex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identity]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	return rec.cycleMu, nil
}
