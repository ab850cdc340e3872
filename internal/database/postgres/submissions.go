package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/hair-advisor/internal/database"
)

// SubmissionRepository provides PostgreSQL-backed submission storage
type SubmissionRepository struct {
	pool *Pool
}

// NewSubmissionRepository creates a new PostgreSQL submission repository
func NewSubmissionRepository(pool *Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const submissionColumns = `user_id, quiz_data, has_image, image_analysis, recommended_line, reason,
	product_routine, alternative, raw_advice, provider, model, input_tokens, output_tokens, cost, created_at`

// Save stores a submission
func (r *SubmissionRepository) Save(ctx context.Context, s database.StoredSubmission) error {
	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, COALESCE($15, NOW()))
	`

	var createdAt any
	if !s.CreatedAt.IsZero() {
		createdAt = s.CreatedAt
	}

	_, err := r.pool.Exec(ctx, query,
		s.UserID, []byte(s.QuizData), s.HasImage, s.ImageAnalysis, s.RecommendedLine, s.Reason,
		s.ProductRoutine, s.Alternative, s.RawAdvice, s.Provider, s.Model, s.InputTokens, s.OutputTokens,
		s.Cost, createdAt,
	)
	if err != nil {
		return fmt.Errorf("save submission: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (database.StoredSubmission, error) {
	var s database.StoredSubmission
	var quizData []byte
	err := row.Scan(
		&s.UserID, &quizData, &s.HasImage, &s.ImageAnalysis, &s.RecommendedLine, &s.Reason,
		&s.ProductRoutine, &s.Alternative, &s.RawAdvice, &s.Provider, &s.Model, &s.InputTokens,
		&s.OutputTokens, &s.Cost, &s.CreatedAt,
	)
	s.QuizData = quizData
	return s, err
}

// Get retrieves a submission by user ID, returns nil if not found
func (r *SubmissionRepository) Get(ctx context.Context, userID string) (*database.StoredSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE user_id = $1`

	s, err := scanSubmission(r.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &s, nil
}

// Recent returns the latest submissions, newest first
func (r *SubmissionRepository) Recent(ctx context.Context, limit int) ([]database.StoredSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []database.StoredSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

// Count returns the total number of submissions stored
func (r *SubmissionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM submissions").Scan(&count); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return count, nil
}

var _ database.SubmissionWriter = (*SubmissionRepository)(nil)
