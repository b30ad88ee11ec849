package interaction

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
// It enforces the same version-conflict semantics as the Postgres store.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Interaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Interaction)}
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (Interaction, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.rows[id]
	if !ok {
		return Interaction{}, ErrNotFound
	}
	return it, nil
}

func (s *MemoryStore) FindPendingDueBy(ctx context.Context, now time.Time) ([]Interaction, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Interaction
	for _, it := range s.rows {
		if it.Status == StatusPending && !it.ScheduledFor.After(now) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindFailedRetryableBy(ctx context.Context, now time.Time, maxAttempts int) ([]Interaction, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Interaction
	for _, it := range s.rows {
		if it.RetryEligible(maxAttempts) && !it.ScheduledFor.After(now) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindByExternalID(ctx context.Context, externalID string) (Interaction, bool, error) {
	_ = ctx
	if externalID == "" {
		return Interaction{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.rows {
		if it.ExternalMessageID == externalID {
			return it, true, nil
		}
	}
	return Interaction{}, false, nil
}

func (s *MemoryStore) FindMostRecentByContact(ctx context.Context, contact string, statuses []Status) (Interaction, bool, error) {
	_ = ctx
	if contact == "" {
		return Interaction{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best Interaction
	found := false
	for _, it := range s.rows {
		if it.Metadata.RecipientContact != contact {
			continue
		}
		if !statusIn(it.Status, statuses) {
			continue
		}
		if !found || it.CreatedAt.After(best.CreatedAt) {
			best = it
			found = true
		}
	}
	return best, found, nil
}

func (s *MemoryStore) FindSentNotDelivered(ctx context.Context, sentAfter time.Time) ([]Interaction, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Interaction
	for _, it := range s.rows {
		if it.Status != StatusSent || it.SentAt == nil {
			continue
		}
		if it.SentAt.Before(sentAfter) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// FindCreatedBetween serves reporting; not part of the Store contract.
func (s *MemoryStore) FindCreatedBetween(ctx context.Context, from, to time.Time) ([]Interaction, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Interaction
	for _, it := range s.rows {
		if it.CreatedAt.Before(from) || !it.CreatedAt.Before(to) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, it Interaction) (Interaction, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rows[it.ID]; ok && cur.Version != it.Version {
		return Interaction{}, ErrVersionConflict
	}
	it.Version++
	s.rows[it.ID] = it
	return it, nil
}

func statusIn(st Status, in []Status) bool {
	for _, s := range in {
		if s == st {
			return true
		}
	}
	return false
}
