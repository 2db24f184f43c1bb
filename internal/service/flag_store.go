package service

import (
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/wms-audit-api/internal/models"
)

// FlagStore mirrors the flags last fetched from the source.
// Flags from a degraded page never overwrite flags the live source returned.
type FlagStore struct {
	mu        sync.RWMutex
	flags     map[int64]models.Flag
	fixture   map[int64]bool
	degraded  bool
	fetchedAt time.Time
}

// NewFlagStore constructs an empty store.
func NewFlagStore() *FlagStore {
	return &FlagStore{flags: make(map[int64]models.Flag), fixture: make(map[int64]bool)}
}

// Replace swaps the mirror for a complete listing. A degraded listing only replaces
// fixture entries; live entries stay until the live source answers again.
func (s *FlagStore) Replace(page models.FlagPage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[int64]models.Flag, len(page.Flags))
	fixture := make(map[int64]bool)
	if page.Degraded {
		for id, flag := range s.flags {
			if !s.fixture[id] {
				next[id] = flag
			}
		}
	}
	for _, flag := range page.Flags {
		if _, live := next[flag.ID]; live && page.Degraded {
			continue
		}
		next[flag.ID] = flag.Clone()
		if page.Degraded {
			fixture[flag.ID] = true
		}
	}
	s.flags = next
	s.fixture = fixture
	s.degraded = page.Degraded
	s.fetchedAt = time.Now().UTC()
}

// Merge upserts the flags of a filtered listing.
func (s *FlagStore) Merge(page models.FlagPage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, flag := range page.Flags {
		if _, ok := s.flags[flag.ID]; ok && page.Degraded && !s.fixture[flag.ID] {
			continue
		}
		s.flags[flag.ID] = flag.Clone()
		if page.Degraded {
			s.fixture[flag.ID] = true
		} else {
			delete(s.fixture, flag.ID)
		}
	}
	s.degraded = page.Degraded
	s.fetchedAt = time.Now().UTC()
}

// Get returns a copy of a mirrored flag.
func (s *FlagStore) Get(id int64) (models.Flag, bool) {
	flag, _, ok := s.Entry(id)
	return flag, ok
}

// Entry returns a copy of a mirrored flag and whether it came from a degraded listing.
func (s *FlagStore) Entry(id int64) (models.Flag, bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flag, ok := s.flags[id]
	if !ok {
		return models.Flag{}, false, false
	}
	return flag.Clone(), s.fixture[id], true
}

// List returns mirrored flags matching filter ordered by creation time, newest first.
func (s *FlagStore) List(filter models.FlagFilter) []models.Flag {
	s.mu.RLock()
	out := make([]models.Flag, 0, len(s.flags))
	for _, flag := range s.flags {
		if filter.Matches(flag) {
			out = append(out, flag.Clone())
		}
	}
	s.mu.RUnlock()
	sortFlags(out)
	return out
}

// Degraded reports whether the mirror was filled from the local fixture.
func (s *FlagStore) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// FetchedAt returns when the mirror was last refreshed.
func (s *FlagStore) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

// MarkResolved records a confirmed resolution.
func (s *FlagStore) MarkResolved(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if flag, ok := s.flags[id]; ok && flag.IsPending() {
		flag.Status = models.FlagStatusResolved
		s.flags[id] = flag
	}
}

// MarkRejected records a confirmed rejection.
func (s *FlagStore) MarkRejected(id int64, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if flag, ok := s.flags[id]; ok && flag.IsPending() {
		flag.Status = models.FlagStatusRejected
		flag.RejectionReason = &reason
		s.flags[id] = flag
	}
}

func sortFlags(flags []models.Flag) {
	sort.SliceStable(flags, func(i, j int) bool {
		if flags[i].CreatedAt != flags[j].CreatedAt {
			return flags[i].CreatedAt > flags[j].CreatedAt
		}
		return flags[i].ID < flags[j].ID
	})
}
