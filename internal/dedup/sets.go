// Package dedup implements the run-owned, in-memory duplicate and overlap
// indexes that make expansion O(1) per candidate instead of O(N) database
// probes. Every structure here is built fresh per run and never shared
// across runs (see the concurrency model's shared-resource policy).
package dedup

import "github.com/rezkam/shiftengine/internal/domain"

// KeySet holds the two dedup key sets (K_std, K_open) loaded from the
// snapshot and mutated during expansion as candidates are committed.
type KeySet struct {
	std  map[domain.StdKey]struct{}
	open map[domain.OpenKey]struct{}
}

// NewKeySet returns an empty KeySet sized for the expected number of
// existing instances in the expansion window.
func NewKeySet(stdCap, openCap int) *KeySet {
	return &KeySet{
		std:  make(map[domain.StdKey]struct{}, stdCap),
		open: make(map[domain.OpenKey]struct{}, openCap),
	}
}

// LoadStd seeds the K_std set from a snapshot read.
func (s *KeySet) LoadStd(keys []domain.StdKey) {
	for _, k := range keys {
		s.std[k] = struct{}{}
	}
}

// LoadOpen seeds the K_open set from a snapshot read.
func (s *KeySet) LoadOpen(keys []domain.OpenKey) {
	for _, k := range keys {
		s.open[k] = struct{}{}
	}
}

// HasStd reports whether k is already present in K_std.
func (s *KeySet) HasStd(k domain.StdKey) bool {
	_, ok := s.std[k]
	return ok
}

// HasOpen reports whether k is already present in K_open.
func (s *KeySet) HasOpen(k domain.OpenKey) bool {
	_, ok := s.open[k]
	return ok
}

// Commit inserts both keys for an accepted candidate. Every committed candidate
// occupies both K_std and K_open so that a later open-claim probe against the
// same slot, from a different template, still coexists correctly.
func (s *KeySet) Commit(std domain.StdKey, open domain.OpenKey) {
	s.std[std] = struct{}{}
	s.open[open] = struct{}{}
}

// Len returns (|K_std|, |K_open|), mostly useful for tests and metrics.
func (s *KeySet) Len() (int, int) {
	return len(s.std), len(s.open)
}
