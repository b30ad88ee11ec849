package contacts

import (
	"context"
	"sync"

	"marketplace-messaging/internal/interaction"
)

// Resolver looks up the verified contact address for a subject and message
// direction. The marketplace CRUD service owns the user/professional records;
// this port is the only thing the messaging core sees.
//
// A missing or unverified contact is (found=false), not an error: the caller
// marks the interaction failed without retrying.
type Resolver interface {
	Resolve(ctx context.Context, subjectID string, dir interaction.Direction) (contact string, found bool, err error)
}

// MemoryResolver is a Resolver backed by a map, for tests and local runs.
type MemoryResolver struct {
	mu       sync.RWMutex
	contacts map[string]string
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{contacts: make(map[string]string)}
}

func (r *MemoryResolver) Set(subjectID string, dir interaction.Direction, contact string) {
	r.mu.Lock()
	r.contacts[key(subjectID, dir)] = contact
	r.mu.Unlock()
}

func (r *MemoryResolver) Resolve(ctx context.Context, subjectID string, dir interaction.Direction) (string, bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[key(subjectID, dir)]
	if !ok || c == "" {
		return "", false, nil
	}
	return c, true, nil
}

func key(subjectID string, dir interaction.Direction) string {
	return subjectID + "|" + string(dir)
}
