package database

import (
	"context"
	"time"
)

// QuizSessionStore persists quiz session snapshots
type QuizSessionStore interface {
	// Save inserts or replaces a session snapshot
	Save(ctx context.Context, s StoredQuizSession) error
	// Get retrieves a session by ID, returns nil if not found or expired
	Get(ctx context.Context, id string) (*StoredQuizSession, error)
	// Delete removes a session
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions that expired before now and returns the count deleted
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SubmissionReader provides read-only access to submissions
type SubmissionReader interface {
	// Get retrieves a submission by user ID, returns nil if not found
	Get(ctx context.Context, userID string) (*StoredSubmission, error)
	// Recent returns the latest submissions, newest first
	Recent(ctx context.Context, limit int) ([]StoredSubmission, error)
	// Count returns the total number of submissions stored
	Count(ctx context.Context) (int, error)
}

// SubmissionWriter provides write access to submissions
type SubmissionWriter interface {
	SubmissionReader

	// Save stores a submission
	Save(ctx context.Context, s StoredSubmission) error
}
