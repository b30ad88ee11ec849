package workflow

import (
	"context"
	"sync"
)

// Subjects is the port to the workflow aggregate store. The real
// implementation lives with the marketplace CRUD side; the engine only reads
// the current status and writes the transitioned one.
type Subjects interface {
	Get(ctx context.Context, subjectID string) (Subject, error)
	SetStatus(ctx context.Context, subjectID string, status Status) error
}

// MemorySubjects is the in-memory Subjects used by tests and local runs.
type MemorySubjects struct {
	mu       sync.RWMutex
	subjects map[string]Subject
}

func NewMemorySubjects() *MemorySubjects {
	return &MemorySubjects{subjects: make(map[string]Subject)}
}

func (m *MemorySubjects) Put(s Subject) {
	m.mu.Lock()
	m.subjects[s.ID] = s
	m.mu.Unlock()
}

func (m *MemorySubjects) Get(_ context.Context, subjectID string) (Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[subjectID]
	if !ok {
		return Subject{}, ErrSubjectNotFound
	}
	return s, nil
}

func (m *MemorySubjects) SetStatus(_ context.Context, subjectID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[subjectID]
	if !ok {
		return ErrSubjectNotFound
	}
	s.Status = status
	m.subjects[subjectID] = s
	return nil
}
