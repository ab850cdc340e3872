package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/hair-advisor/internal/database"
)

// QuizSessionRepository provides PostgreSQL-backed quiz session snapshots
type QuizSessionRepository struct {
	pool *Pool
}

// NewQuizSessionRepository creates a new PostgreSQL quiz session repository
func NewQuizSessionRepository(pool *Pool) *QuizSessionRepository {
	return &QuizSessionRepository{pool: pool}
}

// Save upserts a session snapshot. The original creation time is kept on update.
func (r *QuizSessionRepository) Save(ctx context.Context, s database.StoredQuizSession) error {
	query := `
		INSERT INTO quiz_sessions (id, state, active_step, completed, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			active_step = EXCLUDED.active_step,
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
	`

	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, query, s.ID, []byte(s.State), s.Active, s.Completed, createdAt, updatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save quiz session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID, returns nil if not found or expired
func (r *QuizSessionRepository) Get(ctx context.Context, id string) (*database.StoredQuizSession, error) {
	query := `
		SELECT id, state, active_step, completed, created_at, updated_at, expires_at
		FROM quiz_sessions
		WHERE id = $1 AND expires_at > NOW()
	`

	var s database.StoredQuizSession
	var state []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&state,
		&s.Active,
		&s.Completed,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz session: %w", err)
	}
	s.State = state

	return &s, nil
}

// Delete removes a session from the database
func (r *QuizSessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM quiz_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete quiz session: %w", err)
	}
	return nil
}

// DeleteExpired removes all sessions expired at now and returns the count deleted
func (r *QuizSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM quiz_sessions WHERE expires_at <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired quiz sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}

var _ database.QuizSessionStore = (*QuizSessionRepository)(nil)
