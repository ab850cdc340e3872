// Package memory provides in-process implementations of the database interfaces, used when
// no PostgreSQL URL is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/hair-advisor/internal/database"
)

// QuizSessionStore keeps session snapshots in a map.
type QuizSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]database.StoredQuizSession

	// Error injection
	SaveError error
	GetError  error
}

// NewQuizSessionStore creates an empty store.
func NewQuizSessionStore() *QuizSessionStore {
	return &QuizSessionStore{sessions: make(map[string]database.StoredQuizSession)}
}

// Save inserts or replaces a session snapshot.
func (m *QuizSessionStore) Save(_ context.Context, s database.StoredQuizSession) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sessions[s.ID]; ok && !prev.CreatedAt.IsZero() {
		s.CreatedAt = prev.CreatedAt
	}
	m.sessions[s.ID] = s
	return nil
}

// Get returns the session unless it is missing or expired.
func (m *QuizSessionStore) Get(_ context.Context, id string) (*database.StoredQuizSession, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &s, nil
}

// Delete removes a session.
func (m *QuizSessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// DeleteExpired removes sessions expired at now.
func (m *QuizSessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *QuizSessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SubmissionStore keeps submissions in insertion order.
type SubmissionStore struct {
	mu          sync.RWMutex
	submissions []database.StoredSubmission

	// Error injection
	SaveError error
}

// NewSubmissionStore creates an empty store.
func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{}
}

// Save stores a submission. The user ID must be unique.
func (m *SubmissionStore) Save(_ context.Context, s database.StoredSubmission) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.submissions {
		if existing.UserID == s.UserID {
			return fmt.Errorf("submission %s already exists", s.UserID)
		}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.submissions = append(m.submissions, s)
	return nil
}

// Get retrieves a submission by user ID.
func (m *SubmissionStore) Get(_ context.Context, userID string) (*database.StoredSubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.submissions {
		if s.UserID == userID {
			return &s, nil
		}
	}
	return nil, nil
}

// Recent returns up to limit submissions, newest first.
func (m *SubmissionStore) Recent(_ context.Context, limit int) ([]database.StoredSubmission, error) {
	m.mu.RLock()
	out := append([]database.StoredSubmission(nil), m.submissions...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of submissions.
func (m *SubmissionStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.submissions), nil
}

var (
	_ database.QuizSessionStore = (*QuizSessionStore)(nil)
	_ database.SubmissionWriter = (*SubmissionStore)(nil)
)
