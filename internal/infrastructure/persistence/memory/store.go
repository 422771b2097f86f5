// Package memory implements progression.Repository in process memory.
// It backs tests and the "memory" database driver for local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/domain/shared"
)

// Store is a mutex-guarded Repository. Every read returns a deep copy so
// callers can mutate results without touching stored state.
type Store struct {
	mu      sync.RWMutex
	seq     int64
	users   map[string]*progression.User
	ledger  map[string][]*progression.LedgerEntry // newest last
	idemKey map[string]*progression.LedgerEntry   // userID + "\x00" + key

	// commitHook runs inside Commit before the version check. Tests use it
	// to inject conflicts or failures.
	commitHook func(c progression.Commit) error
}

// Compile-time check.
var _ progression.Repository = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:   make(map[string]*progression.User),
		ledger:  make(map[string][]*progression.LedgerEntry),
		idemKey: make(map[string]*progression.LedgerEntry),
	}
}

// SetCommitHook installs fn to run at the start of every Commit.
func (s *Store) SetCommitHook(fn func(c progression.Commit) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = fn
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// CreateUser stores a new user.
func (s *Store) CreateUser(_ context.Context, user *progression.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return shared.ErrUserAlreadyExists
	}
	s.seq++
	user.Seq = s.seq
	s.users[user.ID] = user.Clone()
	return nil
}

// GetUser returns a copy of the user.
func (s *Store) GetUser(_ context.Context, id string) (*progression.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return u.Clone(), nil
}

// Commit writes state and ledger entry together.
func (s *Store) Commit(_ context.Context, c progression.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitHook != nil {
		if err := s.commitHook(c); err != nil {
			return err
		}
	}

	current, ok := s.users[c.User.ID]
	if !ok {
		return shared.ErrUserNotFound
	}
	if current.Version != c.ExpectedVersion {
		return shared.ErrVersionMismatch
	}

	if key := c.Entry.IdempotencyKey; key != "" {
		if _, dup := s.idemKey[idemIndex(c.User.ID, key)]; dup {
			return shared.ErrDuplicateAction
		}
	}

	c.User.Version = c.ExpectedVersion + 1
	stored := c.User.Clone()
	stored.Seq = current.Seq
	stored.CreatedAt = current.CreatedAt
	s.users[c.User.ID] = stored

	entry := cloneEntry(c.Entry)
	s.ledger[c.User.ID] = append(s.ledger[c.User.ID], entry)
	if entry.IdempotencyKey != "" {
		s.idemKey[idemIndex(c.User.ID, entry.IdempotencyKey)] = entry
	}
	return nil
}

// RecentEntries returns the newest entries first.
func (s *Store) RecentEntries(_ context.Context, userID string, limit int) ([]*progression.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledger[userID]
	out := make([]*progression.LedgerEntry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneEntry(entries[i]))
	}
	return out, nil
}

// FindEntryByIdempotencyKey returns the entry recorded with key, or nil.
func (s *Store) FindEntryByIdempotencyKey(_ context.Context, userID, key string) (*progression.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.idemKey[idemIndex(userID, key)]
	if !ok {
		return nil, nil
	}
	return cloneEntry(e), nil
}

// Leaderboard orders by experience, ties by creation order.
func (s *Store) Leaderboard(_ context.Context, limit int) ([]*progression.User, error) {
	s.mu.RLock()
	all := make([]*progression.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Experience != all[j].Experience {
			return all[i].Experience > all[j].Experience
		}
		return all[i].Seq < all[j].Seq
	})
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// LedgerTotals compares each user's experience with their ledger sum.
func (s *Store) LedgerTotals(_ context.Context) ([]progression.LedgerTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]progression.LedgerTotal, 0, len(s.users))
	for id, u := range s.users {
		t := progression.LedgerTotal{UserID: id, Experience: u.Experience}
		for _, e := range s.ledger[id] {
			t.LedgerPoints += int64(e.PointsAwarded)
			t.Entries++
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func idemIndex(userID, key string) string {
	return userID + "\x00" + key
}

func cloneEntry(e *progression.LedgerEntry) *progression.LedgerEntry {
	out := *e
	out.Metadata = make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	return &out
}
