// Package store keeps confirmed account/external links in memory with 1:1 enforcement.
package store

import (
	"sort"
	"sync"
	"time"

	"linkgate/internal/linking/domain"
)

// Store is the authoritative in-memory link table. Forward and reverse maps are kept
// mutual inverses under mu.
type Store struct {
	mu        sync.RWMutex
	byAccount map[string]domain.Link
	byExt     map[int64]string
	nowF      func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byAccount: make(map[string]domain.Link),
		byExt:     make(map[int64]string),
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// IsLinked reports whether accountID has a link.
func (s *Store) IsLinked(accountID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byAccount[accountID]
	return ok
}

// ExternalOf returns the external id linked to accountID.
func (s *Store) ExternalOf(accountID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byAccount[accountID]
	return l.ExternalID, ok
}

// AccountOf returns the account linked to externalID.
func (s *Store) AccountOf(externalID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byExt[externalID]
	return a, ok
}

// Get returns the full link for accountID.
func (s *Store) Get(accountID string) (domain.Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byAccount[accountID]
	return l, ok
}

// GetByExternal returns the full link for externalID.
func (s *Store) GetByExternal(externalID int64) (domain.Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byExt[externalID]
	if !ok {
		return domain.Link{}, false
	}
	return s.byAccount[a], true
}

// Link installs l, first removing any link held by its account or by its external id.
// The displaced links are returned. A zero LinkedAt is set to now.
func (s *Store) Link(l domain.Link) []domain.Link {
	if l.LinkedAt.IsZero() {
		l.LinkedAt = s.nowF()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkLocked(l)
}

func (s *Store) linkLocked(l domain.Link) []domain.Link {
	var displaced []domain.Link
	if old, ok := s.byAccount[l.AccountID]; ok {
		delete(s.byExt, old.ExternalID)
		delete(s.byAccount, l.AccountID)
		displaced = append(displaced, old)
	}
	if a, ok := s.byExt[l.ExternalID]; ok {
		displaced = append(displaced, s.byAccount[a])
		delete(s.byAccount, a)
		delete(s.byExt, l.ExternalID)
	}
	s.byAccount[l.AccountID] = l
	s.byExt[l.ExternalID] = l.AccountID
	return displaced
}

// UnlinkByAccount removes the link held by accountID.
func (s *Store) UnlinkByAccount(accountID string) (domain.Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byAccount[accountID]
	if !ok {
		return domain.Link{}, false
	}
	delete(s.byAccount, accountID)
	delete(s.byExt, l.ExternalID)
	return l, true
}

// UnlinkByExternal removes the link held by externalID.
func (s *Store) UnlinkByExternal(externalID int64) (domain.Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byExt[externalID]
	if !ok {
		return domain.Link{}, false
	}
	l := s.byAccount[a]
	delete(s.byAccount, a)
	delete(s.byExt, externalID)
	return l, true
}

// Len returns the number of links.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAccount)
}

// Snapshot copies every link, ordered by account id.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	links := make([]domain.Link, 0, len(s.byAccount))
	for _, l := range s.byAccount {
		links = append(links, l)
	}
	s.mu.RUnlock()
	sort.Slice(links, func(i, j int) bool { return links[i].AccountID < links[j].AccountID })
	return domain.Snapshot{Links: links, TakenAt: s.nowF()}
}

// Restore replaces the table with links, applying them oldest first through the same
// swap as Link so duplicates resolve to the most recent entry. Returns the resulting size.
func (s *Store) Restore(links []domain.Link) int {
	ordered := make([]domain.Link, len(links))
	copy(ordered, links)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].LinkedAt.Before(ordered[j].LinkedAt) })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAccount = make(map[string]domain.Link, len(ordered))
	s.byExt = make(map[int64]string, len(ordered))
	for _, l := range ordered {
		if l.AccountID == "" || l.ExternalID <= 0 {
			continue
		}
		s.linkLocked(l)
	}
	return len(s.byAccount)
}
