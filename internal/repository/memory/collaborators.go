package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/services"
	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
)

// Enrollments is a fixed enrollment provider.
type Enrollments struct {
	mu   sync.RWMutex
	byID map[string]models.Enrollment
}

func NewEnrollments(list ...models.Enrollment) *Enrollments {
	e := &Enrollments{byID: make(map[string]models.Enrollment)}
	for _, en := range list {
		e.Put(en)
	}
	return e
}

func (e *Enrollments) Put(en models.Enrollment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID[en.ID] = en
}

func (e *Enrollments) GetEnrollment(_ context.Context, id string) (*models.Enrollment, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	en, ok := e.byID[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &en, nil
}

func (e *Enrollments) FindEnrollments(_ context.Context, courseID, mentorID string) ([]models.Enrollment, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := []models.Enrollment{}
	for _, en := range e.byID {
		if en.CourseID == courseID && contains(en.Mentors, mentorID) {
			out = append(out, en)
		}
	}
	return out, nil
}

// Directory is a fixed identity directory.
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile
}

func NewDirectory(profiles ...models.Profile) *Directory {
	d := &Directory{profiles: make(map[string]models.Profile)}
	for _, p := range profiles {
		d.Put(p)
	}
	return d
}

func (d *Directory) Put(p models.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}

func (d *Directory) ResolveIdentity(_ context.Context, id string) (*models.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.profiles[id]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", id, services.ErrNotFound)
	}
	return &p, nil
}

// Sessions maps static bearer tokens to identities.
type Sessions struct {
	mu     sync.RWMutex
	tokens map[string]identity.ID
}

func NewSessions() *Sessions {
	return &Sessions{tokens: make(map[string]identity.ID)}
}

func (s *Sessions) Put(token string, id identity.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = id
}

func (s *Sessions) ValidateSession(_ context.Context, token string) (identity.ID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokens[token]
	return id, ok, nil
}
