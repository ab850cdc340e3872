package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/constants"
	"github.com/kozaktomas/hair-advisor/internal/database"
	"github.com/kozaktomas/hair-advisor/internal/flow"
	"github.com/kozaktomas/hair-advisor/internal/quiz"
)

// Session is one quiz in progress together with the camera feeding it.
type Session struct {
	ID        string
	Flow      *flow.Flow
	Camera    *capture.PushSource
	CreatedAt time.Time

	mu        sync.Mutex
	expiresAt time.Time
}

// ExpiresAt returns when the session expires unless it is used again.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

func (s *Session) touch(until time.Time) {
	s.mu.Lock()
	s.expiresAt = until
	s.mu.Unlock()
}

// SessionConfig holds everything needed to build a session's flow.
type SessionConfig struct {
	Catalog   *quiz.Catalog
	Submitter quiz.Submitter
	Loader    capture.DetectorLoader
	Capture   capture.Options
	Quiz      quiz.Options
	TTL       time.Duration
	Logger    logrus.FieldLogger
}

// SessionManager keeps quiz sessions in memory with idle expiry, snapshotting them to a
// repository when one is configured so they survive restarts.
type SessionManager struct {
	cfg      SessionConfig
	repo     database.QuizSessionStore
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewSessionManager creates a session manager. repo may be nil for in-memory only.
// Cameras of all sessions stop when ctx is cancelled or Stop is called.
func NewSessionManager(ctx context.Context, cfg SessionConfig, repo database.QuizSessionStore) *SessionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = constants.DefaultSessionTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	sm := &SessionManager{
		cfg:      cfg,
		repo:     repo,
		sessions: make(map[string]*Session),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go sm.cleanupLoop(constants.SessionSweepInterval)
	return sm
}

func (sm *SessionManager) newSession(id string, qs *quiz.Session, createdAt time.Time) *Session {
	camera := capture.NewPushSource(constants.CameraFrameBuffer)
	log := sm.cfg.Logger.WithField("session", id)

	f := flow.New(sm.ctx, qs, camera, sm.cfg.Loader, flow.Options{Capture: sm.cfg.Capture, Logger: log})

	s := &Session{ID: id, Flow: f, Camera: camera, CreatedAt: createdAt}
	s.touch(sm.now().Add(sm.cfg.TTL))
	return s
}

// CreateSession starts a new quiz on the capture step with the camera starting.
func (sm *SessionManager) CreateSession(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	qs := quiz.NewSession(sm.cfg.Catalog, sm.cfg.Submitter, sm.quizOptions(id))
	s := sm.newSession(id, qs, sm.now())

	if err := s.Flow.Open(); err != nil {
		_ = s.Flow.Close()
		return nil, fmt.Errorf("open camera: %w", err)
	}

	sm.mu.Lock()
	sm.sessions[s.ID] = s
	sm.mu.Unlock()

	sm.Persist(ctx, s)
	return s, nil
}

func (sm *SessionManager) quizOptions(id string) quiz.Options {
	opts := sm.cfg.Quiz
	opts.Logger = sm.cfg.Logger.WithField("session", id)
	return opts
}

// GetSession returns a live session, restoring it from the repository if it is not in memory.
// Returns nil if the session does not exist or has expired.
func (sm *SessionManager) GetSession(ctx context.Context, id string) *Session {
	sm.mu.RLock()
	s, ok := sm.sessions[id]
	sm.mu.RUnlock()

	if ok {
		if sm.now().After(s.ExpiresAt()) {
			sm.DeleteSession(ctx, id)
			return nil
		}
		s.touch(sm.now().Add(sm.cfg.TTL))
		return s
	}

	if sm.repo == nil {
		return nil
	}
	s, err := sm.restore(ctx, id)
	if err != nil {
		sm.cfg.Logger.WithError(err).WithField("session", id).Warn("failed to restore session")
		return nil
	}
	return s
}

func (sm *SessionManager) restore(ctx context.Context, id string) (*Session, error) {
	stored, err := sm.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if stored == nil {
		return nil, nil
	}

	var st quiz.State
	if err := json.Unmarshal(stored.State, &st); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if st.Image != nil {
		st.Image.JPEG = st.ImageJPEG
	}
	qs, err := quiz.RestoreSession(sm.cfg.Catalog, sm.cfg.Submitter, sm.quizOptions(id), st)
	if err != nil {
		return nil, err
	}

	s := sm.newSession(id, qs, stored.CreatedAt)

	sm.mu.Lock()
	if existing, ok := sm.sessions[id]; ok {
		// Restored concurrently by another request.
		sm.mu.Unlock()
		_ = s.Flow.Close()
		return existing, nil
	}
	sm.sessions[id] = s
	sm.mu.Unlock()

	if err := s.Flow.Open(); err != nil {
		sm.cfg.Logger.WithError(err).WithField("session", id).Warn("could not start camera for restored session")
	}
	sm.cfg.Logger.WithField("session", id).Info("restored quiz session")
	return s, nil
}

// Persist snapshots the session to the repository. Failures are logged, not returned.
func (sm *SessionManager) Persist(ctx context.Context, s *Session) {
	if sm.repo == nil {
		return
	}
	st := s.Flow.Session().State()
	data, err := json.Marshal(st)
	if err != nil {
		sm.cfg.Logger.WithError(err).WithField("session", s.ID).Error("failed to encode session state")
		return
	}
	now := sm.now()
	err = sm.repo.Save(ctx, database.StoredQuizSession{
		ID:        s.ID,
		State:     data,
		Active:    st.Active,
		Completed: st.Completed,
		CreatedAt: s.CreatedAt,
		UpdatedAt: now,
		ExpiresAt: s.ExpiresAt(),
	})
	if err != nil {
		sm.cfg.Logger.WithError(err).WithField("session", s.ID).Warn("failed to persist session")
	}
}

// DeleteSession stops the session's camera and forgets it.
func (sm *SessionManager) DeleteSession(ctx context.Context, id string) {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if ok {
		sm.closeSession(s)
	}
	if sm.repo != nil {
		if err := sm.repo.Delete(ctx, id); err != nil {
			sm.cfg.Logger.WithError(err).WithField("session", id).Warn("failed to delete stored session")
		}
	}
}

func (sm *SessionManager) closeSession(s *Session) {
	if err := s.Flow.Close(); err != nil {
		sm.cfg.Logger.WithError(err).WithField("session", s.ID).Warn("failed to close session")
	}
}

// Len returns the number of sessions in memory.
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupExpired evicts expired sessions from memory and the repository.
func (sm *SessionManager) CleanupExpired(ctx context.Context) int {
	now := sm.now()

	var expired []*Session
	sm.mu.Lock()
	for id, s := range sm.sessions {
		if now.After(s.ExpiresAt()) {
			expired = append(expired, s)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, s := range expired {
		sm.closeSession(s)
	}

	if sm.repo != nil {
		n, err := sm.repo.DeleteExpired(ctx, now)
		if err != nil && !errors.Is(err, context.Canceled) {
			sm.cfg.Logger.WithError(err).Warn("failed to delete expired sessions")
		} else if n > 0 {
			sm.cfg.Logger.WithField("count", n).Debug("deleted expired stored sessions")
		}
	}
	return len(expired)
}

func (sm *SessionManager) cleanupLoop(interval time.Duration) {
	defer close(sm.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.CleanupExpired(sm.ctx)
		case <-sm.stopCh:
			return
		case <-sm.ctx.Done():
			return
		}
	}
}

// Stop ends the cleanup loop and closes every session. Stored snapshots are kept.
func (sm *SessionManager) Stop() {
	sm.once.Do(func() {
		close(sm.stopCh)
		<-sm.done

		sm.mu.Lock()
		sessions := sm.sessions
		sm.sessions = make(map[string]*Session)
		sm.mu.Unlock()

		for _, s := range sessions {
			sm.closeSession(s)
		}
		sm.cancel()
	})
}
