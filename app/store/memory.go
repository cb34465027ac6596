package store

import (
	"context"
	"sync"

	"github.com/lysyi3m/feedwatch/app/feed"
)

// MemoryStore keeps seen fingerprints in process memory. Nothing is evicted
// and nothing survives a restart.
type MemoryStore struct {
	seen map[string]map[string]struct{}
	mu   sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) HasSeenFeed(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.seen[url]
	return ok, nil
}

func (s *MemoryStore) SeenFingerprints(_ context.Context, url string, candidates []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fingerprints := s.seen[url]
	var seen []string
	for _, fp := range candidates {
		if _, ok := fingerprints[fp]; ok {
			seen = append(seen, fp)
		}
	}
	return seen, nil
}

func (s *MemoryStore) RecordFingerprints(_ context.Context, url string, fingerprints []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.seen[url]
	if !ok {
		set = make(map[string]struct{}, len(fingerprints))
		s.seen[url] = set
	}
	for _, fp := range fingerprints {
		set[fp] = struct{}{}
	}
	return nil
}

// Count returns the number of fingerprints recorded for url.
func (s *MemoryStore) Count(url string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen[url])
}

type MemoryValidators struct {
	validators map[string]feed.Validators
	mu         sync.RWMutex
}

func NewMemoryValidators() *MemoryValidators {
	return &MemoryValidators{
		validators: make(map[string]feed.Validators),
	}
}

func (v *MemoryValidators) GetValidators(_ context.Context, url string) (feed.Validators, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	validators, ok := v.validators[url]
	return validators, ok, nil
}

func (v *MemoryValidators) SetValidators(_ context.Context, url string, validators feed.Validators) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.validators[url] = validators
	return nil
}

func (v *MemoryValidators) DeleteValidators(_ context.Context, url string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.validators, url)
	return nil
}
